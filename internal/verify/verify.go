// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package verify recomputes accelerator search results in software.
package verify // import "github.com/go-lpc/txpow/internal/verify"

import (
	"bytes"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/go-lpc/txpow/accel"
)

// InsertNonce returns a copy of header with the 32-byte nonce register
// content (spacing and nonce fields) written at its nonce offset.
func InsertNonce(header []byte, nonce [32]byte) ([]byte, error) {
	if len(header) < accel.NonceOffset+accel.NonceLen {
		return nil, fmt.Errorf(
			"verify: header too short (len=%d) to hold a nonce",
			len(header),
		)
	}
	msg := make([]byte, len(header))
	copy(msg, header)
	copy(msg[accel.NonceOffset:accel.NonceOffset+accel.NonceLen], nonce[accel.SpacingLen:])
	return msg, nil
}

// Sum returns the SHA3-256 digest of msg.
func Sum(msg []byte) [accel.HashLen]byte {
	return sha3.Sum256(msg)
}

// Check recomputes the hash of the header completed with the outcome nonce
// and compares it with the hash reported by the accelerator.
// It also checks the reported hash meets the target leading zero count.
func Check(header []byte, out accel.Outcome, target uint32) error {
	if out.State != accel.Found {
		return fmt.Errorf("verify: no nonce found (state=%v)", out.State)
	}

	msg, err := InsertNonce(header, out.Nonce)
	if err != nil {
		return err
	}

	sum := Sum(msg)
	if !bytes.Equal(sum[:], out.Hash[:]) {
		return fmt.Errorf(
			"verify: hash mismatch:\ngot= %x\nwant=%x",
			out.Hash, sum,
		)
	}

	if n := accel.CLZ(sum[:]); n < int(target) {
		return fmt.Errorf(
			"verify: hash has %d leading zeros, target=%d",
			n, target,
		)
	}
	return nil
}
