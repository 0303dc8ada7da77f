// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package accel

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/go-lpc/txpow/accel/internal/regs"
)

// Lane identifies one of the two search lanes of the accelerator.
type Lane int

const (
	Lane0 Lane = 0 // linear nonce increment
	Lane1 Lane = 1 // stochastic chain: next nonce derived from the previous hash
)

func (lane Lane) String() string {
	switch lane {
	case Lane0:
		return "Linear Search"
	case Lane1:
		return "Stochastic Chain"
	default:
		return fmt.Sprintf("Lane(%d)", int(lane))
	}
}

// Outcome is the result of a search.
type Outcome struct {
	State      State  `json:"state"`
	Iterations uint64 `json:"iterations"`

	// The fields below are only meaningful when State is Found.

	Nonce      [HashLen]byte `json:"nonce"` // spacing (2 bytes) followed by the 30-byte nonce
	Hash       [HashLen]byte `json:"hash"`
	Lane       Lane          `json:"lane"`
	Comparison uint32        `json:"comparison"` // raw lane comparison bits

	// Other is the candidate value the non-winning lane held when the
	// winner was found. It is derived from the winning nonce and is only an
	// approximation for the stochastic-chain lane, whose true state is a
	// hash-chain value that cannot be read back.
	Other uint64 `json:"other"`
}

// Spacing returns the spacing field echoed from the header.
func (o Outcome) Spacing() [SpacingLen]byte {
	var v [SpacingLen]byte
	copy(v[:], o.Nonce[:SpacingLen])
	return v
}

// NonceField returns the 30-byte winning nonce.
func (o Outcome) NonceField() [NonceLen]byte {
	var v [NonceLen]byte
	copy(v[:], o.Nonce[SpacingLen:])
	return v
}

// CLZ returns the number of leading zero bits of the outcome hash.
func (o Outcome) CLZ() int {
	return CLZ(o.Hash[:])
}

// CLZ returns the number of leading zero bits of p, scanned from the first
// byte, most significant bit first.
// An all-zero 32-byte hash has 256 leading zeros.
func CLZ(p []byte) int {
	n := 0
	for _, b := range p {
		if b != 0 {
			return n + bits.LeadingZeros8(b)
		}
		n += 8
	}
	return n
}

// Arbitrate returns the winning lane from the comparison bits.
// Lane 0 has priority when both lanes met the target.
func Arbitrate(cmp uint32) Lane {
	if cmp&regs.CMP_LANE0 != 0 {
		return Lane0
	}
	if cmp&regs.CMP_LANE1 != 0 {
		return Lane1
	}
	return Lane0
}

// Reconstruct returns the candidate held by the non-winning lane, given the
// winning 30-byte nonce. Its low 8 bytes are read as a little-endian integer:
// the other lane is one step ahead when lane 0 won, one step behind when
// lane 1 won.
//
// The arithmetic is modulo 2^64: a zero low word behind lane 1 yields
// math.MaxUint64, an all-ones low word behind lane 0 yields 0.
// The value is a diagnostic approximation, not a verified fact.
func Reconstruct(nonce [NonceLen]byte, winner Lane) uint64 {
	v := binary.LittleEndian.Uint64(nonce[:8])
	if winner == Lane0 {
		return v + 1
	}
	return v - 1
}

func decodeOutcome(state State, iters uint64, nonce, hash []byte, cmp uint32) Outcome {
	out := Outcome{
		State:      state,
		Iterations: iters,
	}
	if state != Found {
		return out
	}

	copy(out.Nonce[:], nonce)
	copy(out.Hash[:], hash)
	out.Comparison = cmp
	out.Lane = Arbitrate(cmp)
	out.Other = Reconstruct(out.NonceField(), out.Lane)
	return out
}

// Result reads the result registers once the search reached a terminal state.
// Result registers are undefined while a search is running.
//
// A found outcome with fewer than target leading zeros is returned along
// with an error wrapping ErrProtocolInconsistency.
func (dev *Device) Result(target uint32) (Outcome, error) {
	if !dev.state.Terminal() {
		return Outcome{State: dev.state}, fmt.Errorf(
			"accel: result registers read in non-terminal state %v", dev.state,
		)
	}

	var (
		state = dev.state
		iters = dev.regs.iters.r()
		nonce []byte
		hash  []byte
		cmp   uint32
	)
	if state == Found {
		nonce = dev.regs.nonce.r()
		hash = dev.regs.hash.r()
		cmp = dev.regs.dbg.cmp.r()
	}
	if dev.err != nil {
		return Outcome{State: state}, fmt.Errorf("accel: could not read result registers: %w", dev.err)
	}

	out := decodeOutcome(state, iters, nonce, hash, cmp)
	switch out.State {
	case Found:
		dev.msg.Printf(
			"found nonce after %d iterations (lane=%d, %s)",
			out.Iterations, out.Lane, out.Lane,
		)
		if clz := out.CLZ(); clz < int(target) {
			return out, fmt.Errorf(
				"%w: found hash with %d leading zeros, target=%d (comparison=0b%02b, map=%s)",
				ErrProtocolInconsistency, clz, target, cmp, dev.layout.Name,
			)
		}
	case TimedOut:
		dev.msg.Printf("search timed out after %d iterations", out.Iterations)
	case Exhausted:
		dev.msg.Printf("attempt limit reached after %d iterations", out.Iterations)
	}

	return out, nil
}
