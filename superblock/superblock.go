// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package superblock describes persistent volume geometry, device
// identity, format profile, feature flags, and counters (spec §3). It
// is the analogue of the teacher's dbm.Options/on-disk header: a small,
// versioned struct that is loaded once at mount and validated before
// any allocator touches the volume.
package superblock

import (
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/hn4-dev/hn4-sub009/geo"
	"github.com/hn4-dev/hn4-sub009/hn4errors"
	"github.com/hn4-dev/hn4-sub009/state"
)

// Geometry is the fixed, format-time layout of the volume (spec §3
// "Geometry").
type Geometry struct {
	LBAFluxStart    uint64 `yaml:"lba_flux_start"`
	LBAHorizonStart uint64 `yaml:"lba_horizon_start"`
	JournalStart    uint64 `yaml:"journal_start"`
	LBACortexStart  uint64 `yaml:"lba_cortex_start"`
	LBABitmapStart  uint64 `yaml:"lba_bitmap_start"`
	TotalBlocks     uint64 `yaml:"total_blocks"`
	BlockSize       uint32 `yaml:"block_size"`
	SectorSize      uint32 `yaml:"sector_size"`

	DeviceType    geo.DeviceType    `yaml:"-"`
	FormatProfile geo.FormatProfile `yaml:"-"`
}

// Counters are the volume's persistent, atomically maintained tallies
// (spec §3 "Counters").
type Counters struct {
	UsedBlocks       uint64
	HorizonWriteHead uint64
	HealCount        uint64
	TaintCounter     uint64
	LastAllocG       uint64
}

// Superblock is the persistent root of a volume: geometry, identity,
// format profile, feature flags, and counters.
type Superblock struct {
	DeviceUUID  uuid.UUID
	Geometry    Geometry
	Counters    Counters
	Flags       *state.Flags
	StrictAudit bool
}

// UUIDLow56 returns the low 56 bits of the device UUID, the XOR mask
// used by the Armored Word version-mux (spec §6).
func (sb *Superblock) UUIDLow56() uint64 {
	b := sb.DeviceUUID
	var v uint64
	for i := 9; i < 16; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v & ((1 << 56) - 1)
}

// New constructs a fresh Superblock for a newly formatted volume.
func New(geometry Geometry, strictAudit bool) *Superblock {
	return &Superblock{
		DeviceUUID:  uuid.New(),
		Geometry:    geometry,
		Flags:       &state.Flags{},
		StrictAudit: strictAudit,
	}
}

// ProfileDefaults captures the handful of geometry knobs that vary by
// format profile (spec §4.6.1, §4.9), parsed from a YAML document (the
// teacher's own dbm.Options is a Go-literal struct, not YAML-driven, but
// calvinalkan-agent-task's config layer shows the pack's idiom for
// loading small operator-tunable structs with gopkg.in/yaml.v3).
// Nothing in this module applies the parsed values: the allocator uses
// the threshold and probe-budget constants defined in package alloc.
type ProfileDefaults struct {
	Profile            string  `yaml:"profile"`
	GenesisThreshold   float64 `yaml:"genesis_threshold"`
	UpdateThreshold    float64 `yaml:"update_threshold"`
	RecoveryThreshold  float64 `yaml:"recovery_threshold"`
	HorizonProbeBudget int     `yaml:"horizon_probe_budget"`
}

// LoadProfileDefaults parses a YAML document of profile defaults.
func LoadProfileDefaults(doc []byte) (ProfileDefaults, error) {
	var pd ProfileDefaults
	if err := yaml.Unmarshal(doc, &pd); err != nil {
		return ProfileDefaults{}, &hn4errors.ErrBadSuperblock{Reason: "profile defaults: " + err.Error()}
	}
	return pd, nil
}

// Validate checks the geometry invariants the allocator relies on
// (spec §3 invariants, §4.7 step 1).
func (sb *Superblock) Validate() error {
	g := sb.Geometry
	switch {
	case g.LBAFluxStart > g.TotalBlocks:
		return &hn4errors.ErrBadSuperblock{Reason: "flux_start beyond total_blocks"}
	case g.JournalStart <= g.LBAHorizonStart:
		return &hn4errors.ErrBadSuperblock{Reason: "journal_start must exceed horizon_start"}
	case g.LBACortexStart > g.LBABitmapStart:
		return &hn4errors.ErrBadSuperblock{Reason: "cortex region must precede bitmap region"}
	case g.BlockSize == 0 || g.SectorSize == 0:
		return &hn4errors.ErrBadSuperblock{Reason: "block_size/sector_size must be nonzero"}
	case g.BlockSize%g.SectorSize != 0:
		return &hn4errors.ErrBadSuperblock{Reason: "block_size must be a multiple of sector_size"}
	}
	return nil
}

// HorizonCapacity returns the length of the Horizon ring in blocks.
func (g Geometry) HorizonCapacity() uint64 {
	return g.JournalStart - g.LBAHorizonStart
}
