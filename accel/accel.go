// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package accel drives the dual-lane SHA3-256 proof-of-work accelerator
// through its memory-mapped control/status registers.
//
// A search goes through the following steps:
//   - reset and configure (target, input length, timeout, attempt limit),
//   - upload the header message,
//   - start, then poll the status register until a terminal state,
//   - decode the result registers and arbitrate between the two lanes.
//
// Device.Search runs all of them.
package accel // import "github.com/go-lpc/txpow/accel"

import (
	"errors"
	"fmt"

	"github.com/go-lpc/txpow/accel/internal/regs"
)

const (
	BlockSize    = 136                   // bytes absorbed per SHA3-256 block
	MaxBlocks    = 16                    // blocks of header memory
	MaxHeaderLen = MaxBlocks * BlockSize // maximum header message length, in bytes
	MaxTargetCLZ = 256

	HashLen     = 32
	NonceLen    = 30 // mutable nonce field
	NonceOffset = 4  // offset of the nonce field within a header message
	SpacingLen  = 2
)

const (
	BaseAddr = regs.BASE
	Span     = regs.SPAN
)

var (
	ErrAcquisition           = errors.New("accel: could not acquire register window")
	ErrInvalidInput          = errors.New("accel: invalid input")
	ErrProtocolInconsistency = errors.New("accel: protocol inconsistency")
)

// Revision identifies a register-map layout.
type Revision int

const (
	RevLegacy       Revision = iota + 1 // no attempt-limit register
	RevAttemptLimit                     // attempt-limit register at 0x0E8
)

func (rev Revision) String() string {
	switch rev {
	case RevLegacy:
		return regs.Legacy.Name
	case RevAttemptLimit:
		return regs.AttemptLimit.Name
	default:
		return fmt.Sprintf("Revision(%d)", int(rev))
	}
}

// ParseRevision returns the revision named s.
func ParseRevision(s string) (Revision, error) {
	switch s {
	case regs.Legacy.Name, "v1":
		return RevLegacy, nil
	case regs.AttemptLimit.Name, "v2":
		return RevAttemptLimit, nil
	}
	return 0, fmt.Errorf("%w: unknown register map revision %q", ErrInvalidInput, s)
}

func (rev Revision) layout() (regs.Map, error) {
	switch rev {
	case RevLegacy:
		return regs.Legacy, nil
	case RevAttemptLimit:
		return regs.AttemptLimit, nil
	}
	return regs.Map{}, fmt.Errorf("%w: unknown register map revision %d", ErrInvalidInput, int(rev))
}
