// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command hn4fsck is the offline diagnostic tool for a Hydra-Nexus
// volume: validate a geometry and build a fresh volume for a device,
// verify a mounted bitmap against its counters and L2 Summary, or dump
// its allocator counters.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hn4-dev/hn4-sub009/geo"
	"github.com/hn4-dev/hn4-sub009/hal"
	"github.com/hn4-dev/hn4-sub009/superblock"
	"github.com/hn4-dev/hn4-sub009/volume"
)

var log = logrus.WithField("cmd", "hn4fsck")

func main() {
	rootCmd := &cobra.Command{
		Use:   "hn4fsck",
		Short: "Format, verify, and inspect Hydra-Nexus volumes",
	}

	var devicePath string
	var totalBlocks uint64
	var fluxStart, horizonStart, journalStart, cortexStart, bitmapStart uint64
	var blockSize, sectorSize uint32
	var deviceTypeStr, profileStr string
	var strictAudit bool

	geometryFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&devicePath, "device", "", "path to the backing device file (required)")
		cmd.Flags().Uint64Var(&totalBlocks, "total-blocks", 0, "total addressable blocks")
		cmd.Flags().Uint64Var(&fluxStart, "flux-start", 0, "lba_flux_start")
		cmd.Flags().Uint64Var(&horizonStart, "horizon-start", 0, "lba_horizon_start")
		cmd.Flags().Uint64Var(&journalStart, "journal-start", 0, "journal_start")
		cmd.Flags().Uint64Var(&cortexStart, "cortex-start", 0, "lba_cortex_start")
		cmd.Flags().Uint64Var(&bitmapStart, "bitmap-start", 0, "lba_bitmap_start")
		cmd.Flags().Uint32Var(&blockSize, "block-size", 4096, "block size in bytes")
		cmd.Flags().Uint32Var(&sectorSize, "sector-size", 512, "sector size in bytes")
		cmd.Flags().StringVar(&deviceTypeStr, "device-type", "SSD", "HDD, SSD, NVM, or ZNS")
		cmd.Flags().StringVar(&profileStr, "profile", "DEFAULT", "DEFAULT, PICO, USB, SYSTEM, or AI")
		_ = cmd.MarkFlagRequired("device")
		_ = cmd.MarkFlagRequired("total-blocks")
	}

	buildGeometry := func() (superblock.Geometry, error) {
		dt, err := parseDeviceType(deviceTypeStr)
		if err != nil {
			return superblock.Geometry{}, err
		}
		fp, err := parseFormatProfile(profileStr)
		if err != nil {
			return superblock.Geometry{}, err
		}
		return superblock.Geometry{
			LBAFluxStart:    fluxStart,
			LBAHorizonStart: horizonStart,
			JournalStart:    journalStart,
			LBACortexStart:  cortexStart,
			LBABitmapStart:  bitmapStart,
			TotalBlocks:     totalBlocks,
			BlockSize:       blockSize,
			SectorSize:      sectorSize,
			DeviceType:      dt,
			FormatProfile:   fp,
		}, nil
	}

	formatCmd := &cobra.Command{
		Use:   "format",
		Short: "Validate a geometry and build a fresh volume for a device (no superblock or bitmap is written)",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := buildGeometry()
			if err != nil {
				return err
			}
			dev, err := hal.OpenFileDevice(devicePath, hal.Capabilities{
				SectorSize: g.SectorSize,
				Capacity:   g.TotalBlocks,
				Device:     g.DeviceType,
			})
			if err != nil {
				return fmt.Errorf("open device: %w", err)
			}
			defer dev.Close()

			v, err := volume.Format(dev, g, strictAudit, log)
			if err != nil {
				return fmt.Errorf("format: %w", err)
			}
			defer v.Unmount()

			fmt.Printf("formatted %s: %d blocks, uuid %s\n", devicePath, g.TotalBlocks, v.Superblock.DeviceUUID)
			return nil
		},
	}
	geometryFlags(formatCmd)
	formatCmd.Flags().BoolVar(&strictAudit, "strict-audit", false, "flag DIRTY on idempotent CLEAR (spec §4.2)")

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Walk the bitmap and cross-check it against its counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := buildGeometry()
			if err != nil {
				return err
			}
			dev, err := hal.OpenFileDevice(devicePath, hal.Capabilities{
				SectorSize: g.SectorSize,
				Capacity:   g.TotalBlocks,
				Device:     g.DeviceType,
			})
			if err != nil {
				return fmt.Errorf("open device: %w", err)
			}
			defer dev.Close()

			sb := superblock.New(g, strictAudit)
			v, err := volume.MountReadOnly(dev, sb, log)
			if err != nil {
				return fmt.Errorf("mount: %w", err)
			}
			defer v.Unmount()

			stats, err := v.Verify()
			if err != nil {
				fmt.Printf("DRIFT DETECTED: %v\n", err)
				fmt.Printf("  total=%d popcount=%d used_counter=%d heal_count=%d\n",
					stats.TotalBlocks, stats.PopcountBlocks, stats.UsedBlocksCounter, stats.HealCount)
				return err
			}
			fmt.Printf("clean: total=%d popcount=%d used_counter=%d heal_count=%d\n",
				stats.TotalBlocks, stats.PopcountBlocks, stats.UsedBlocksCounter, stats.HealCount)
			return nil
		},
	}
	geometryFlags(verifyCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Dump a mounted volume's allocator counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := buildGeometry()
			if err != nil {
				return err
			}
			dev, err := hal.OpenFileDevice(devicePath, hal.Capabilities{
				SectorSize: g.SectorSize,
				Capacity:   g.TotalBlocks,
				Device:     g.DeviceType,
			})
			if err != nil {
				return fmt.Errorf("open device: %w", err)
			}
			defer dev.Close()

			sb := superblock.New(g, strictAudit)
			v, err := volume.MountReadOnly(dev, sb, log)
			if err != nil {
				return fmt.Errorf("mount: %w", err)
			}
			defer v.Unmount()

			fmt.Printf("used_blocks:        %d / %d (%.2f%%)\n",
				v.Bitmap.UsedBlocks(), v.Bitmap.TotalBlocks(),
				100*v.Core.Gate.Usage())
			fmt.Printf("heal_count:         %d\n", v.Bitmap.HealCount())
			fmt.Printf("horizon_write_head: %d\n", v.Core.HorizonWriteHead())
			fmt.Printf("last_alloc_g:       %d\n", v.Core.LastAllocG())
			fmt.Printf("oob_free_count:     %d\n", v.Core.OOBFreeCount())
			fmt.Printf("panicked:           %t\n", v.Panicked())
			return nil
		},
	}
	geometryFlags(statsCmd)

	rootCmd.AddCommand(formatCmd, verifyCmd, statsCmd)
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("hn4fsck failed")
		os.Exit(1)
	}
}

func parseDeviceType(s string) (geo.DeviceType, error) {
	switch strings.ToUpper(s) {
	case "HDD":
		return geo.HDD, nil
	case "SSD":
		return geo.SSD, nil
	case "NVM":
		return geo.NVM, nil
	case "ZNS":
		return geo.ZNS, nil
	default:
		return 0, fmt.Errorf("unknown --device-type %q: want HDD, SSD, NVM, or ZNS", s)
	}
}

func parseFormatProfile(s string) (geo.FormatProfile, error) {
	switch strings.ToUpper(s) {
	case "DEFAULT":
		return geo.DEFAULT, nil
	case "PICO":
		return geo.PICO, nil
	case "USB":
		return geo.USB, nil
	case "SYSTEM":
		return geo.SYSTEM, nil
	case "AI":
		return geo.AI, nil
	default:
		return 0, fmt.Errorf("unknown --profile %q: want DEFAULT, PICO, USB, SYSTEM, or AI", s)
	}
}
