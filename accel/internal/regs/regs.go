// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regs describes the CSR layouts of the txpow accelerator.
package regs // import "github.com/go-lpc/txpow/accel/internal/regs"

const (
	BASE = 0xF0000000 // physical base address of the CSR window
	SPAN = 4096       // size of the CSR window
)

// Control register bits.
const (
	CTRL_START = 1 << 0
	CTRL_STOP  = 1 << 1
)

// Status register bits.
const (
	STATUS_IDLE    = 1 << 0
	STATUS_RUNNING = 1 << 1
	STATUS_FOUND   = 1 << 2
	STATUS_TIMEOUT = 1 << 3
)

// Comparison register bits.
const (
	CMP_LANE0 = 1 << 0
	CMP_LANE1 = 1 << 1
)

// Block sizes, in 32-bit words.
const (
	NONCE_WORDS = 8
	HASH_WORDS  = 8
	BLOCK_WORDS = 16
)

// NONE marks a register absent from a layout.
const NONE = -1

// Map holds the byte offsets of every CSR for one layout revision.
type Map struct {
	Name string

	Control int64
	Status  int64

	NonceResult    int64 // NONCE_WORDS words
	HashResult     int64 // HASH_WORDS words
	IterationCount int64 // 2 words, high first
	TargetCLZ      int64

	DebugHash0      int64 // HASH_WORDS words
	DebugHash1      int64 // HASH_WORDS words
	DebugCLZ0       int64
	DebugCLZ1       int64
	DebugComparison int64
	DebugBlock0     int64 // BLOCK_WORDS words

	Timeout      int64 // 2 words, high first
	AttemptLimit int64 // 2 words, high first. NONE if absent.
	InputLen     int64

	HeaderDataLow  int64
	HeaderDataHigh int64
	HeaderAddr     int64
	HeaderWE       int64
}

// HasAttemptLimit reports whether the layout exposes an attempt-limit register.
func (m Map) HasAttemptLimit() bool { return m.AttemptLimit != NONE }

var common = Map{
	Control:         0x000,
	Status:          0x004,
	NonceResult:     0x008,
	HashResult:      0x028,
	IterationCount:  0x048,
	TargetCLZ:       0x050,
	DebugHash0:      0x054,
	DebugHash1:      0x074,
	DebugCLZ0:       0x094,
	DebugCLZ1:       0x098,
	DebugComparison: 0x09C,
	DebugBlock0:     0x0A0,
	Timeout:         0x0E0,
}

// Legacy is the layout without attempt-limit register.
var Legacy = func() Map {
	m := common
	m.Name = "legacy"
	m.AttemptLimit = NONE
	m.InputLen = 0x0E8
	m.HeaderDataLow = 0x0EC
	m.HeaderDataHigh = 0x0F0
	m.HeaderAddr = 0x0F4
	m.HeaderWE = 0x0F8
	return m
}()

// AttemptLimit is the layout with an attempt-limit register inserted
// after the timeout register.
var AttemptLimit = func() Map {
	m := common
	m.Name = "attempt-limit"
	m.AttemptLimit = 0x0E8
	m.InputLen = 0x0F0
	m.HeaderDataLow = 0x0F4
	m.HeaderDataHigh = 0x0F8
	m.HeaderAddr = 0x0FC
	m.HeaderWE = 0x100
	return m
}()
