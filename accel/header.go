// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package accel

import (
	"fmt"
)

// Header message layout.
const (
	HeaderScale  = 1  // value of the scale field (byte 0)
	HeaderLength = 32 // value of the length field (byte 1)
)

var (
	PatternDefault = [8]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}
	PatternBench   = [8]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x00, 0x11}
)

// NewTestHeader returns a n-byte header message filled with the repeating
// pattern, with the structural fields set and the spacing and nonce fields
// cleared.
func NewTestHeader(n int, pattern [8]byte) ([]byte, error) {
	if n < NonceOffset+NonceLen || n > MaxHeaderLen {
		return nil, fmt.Errorf(
			"%w: test header length %d out of range [%d, %d]",
			ErrInvalidInput, n, NonceOffset+NonceLen, MaxHeaderLen,
		)
	}

	buf := make([]byte, n)
	for i := range buf {
		buf[i] = pattern[i%len(pattern)]
	}
	buf[0] = HeaderScale
	buf[1] = HeaderLength
	for i := SpacingLen; i < NonceOffset+NonceLen; i++ {
		buf[i] = 0
	}
	return buf, nil
}

// Blocks returns the number of SHA3-256 blocks absorbed for a n-byte message.
func Blocks(n int) int {
	return (n + BlockSize - 1) / BlockSize
}

// TargetCLZ returns the number of leading zero bits of a big-endian
// difficulty target, capped at MaxTargetCLZ.
func TargetCLZ(target []byte) uint32 {
	n := CLZ(target)
	if n > MaxTargetCLZ {
		n = MaxTargetCLZ
	}
	return uint32(n)
}
