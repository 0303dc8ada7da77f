// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package accel

import (
	"encoding/binary"
)

// Upload packing: bytes are packed 8 at a time, little-endian, into 64-bit
// header words which are then written as two 32-bit halves.
//
// Block read-back: a N-word CSR block is stored most significant word first
// (physical word N-1 holds logical bytes 0..3), each word being itself
// little-endian.
//
// The two conventions are not interchangeable.

// NumWords returns the number of 64-bit header words needed to hold n bytes.
func NumWords(n int) int {
	return (n + 7) / 8
}

// PackWords packs p into little-endian 64-bit words.
// The last word is zero-padded.
func PackWords(p []byte) []uint64 {
	words := make([]uint64, NumWords(len(p)))
	for i := range words {
		var buf [8]byte
		copy(buf[:], p[8*i:])
		words[i] = binary.LittleEndian.Uint64(buf[:])
	}
	return words
}

// UnpackWords returns the first n bytes held by the little-endian 64-bit words.
func UnpackWords(words []uint64, n int) []byte {
	buf := make([]byte, 8*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[8*i:], w)
	}
	if n > len(buf) {
		n = len(buf)
	}
	return buf[:n]
}

// SplitWord returns the low and high 32-bit halves of w.
func SplitWord(w uint64) (lo, hi uint32) {
	return uint32(w), uint32(w >> 32)
}

// JoinWord is the inverse of SplitWord.
func JoinWord(lo, hi uint32) uint64 {
	return uint64(hi)<<32 | uint64(lo)
}

// DecodeBlock decodes the physical words of a CSR block into bytes.
func DecodeBlock(words []uint32) []byte {
	var (
		n   = len(words)
		out = make([]byte, 4*n)
	)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(out[4*i:], words[n-1-i])
	}
	return out
}

// EncodeBlock returns the physical words of a CSR block holding p.
// len(p) must be a multiple of 4.
func EncodeBlock(p []byte) []uint32 {
	var (
		n     = len(p) / 4
		words = make([]uint32, n)
	)
	for i := 0; i < n; i++ {
		words[n-1-i] = binary.LittleEndian.Uint32(p[4*i:])
	}
	return words
}

// EncodeSplit64 returns the two register values of a 64-bit field.
// The high word goes at the lower offset.
func EncodeSplit64(v uint64) [2]uint32 {
	return [2]uint32{uint32(v >> 32), uint32(v)}
}

// DecodeSplit64 is the inverse of EncodeSplit64.
func DecodeSplit64(w [2]uint32) uint64 {
	return uint64(w[0])<<32 | uint64(w[1])
}
