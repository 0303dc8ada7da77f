// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package accel

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/go-lpc/txpow/accel/internal/regs"
)

// fakeHW is an in-memory accelerator CSR window.
//
// It captures header words on the rising edge of the write-enable register
// and replays a scripted sequence of status values once started.
// The last scripted value sticks.
type fakeHW struct {
	mu     sync.Mutex
	layout regs.Map
	mem    [regs.SPAN]byte

	header map[uint32]uint64
	we     uint32

	started bool
	script  []uint32
	pos     int

	record   bool
	ops      []string
	ctrl     []uint32
	barriers int

	failRead  int64 // offset of a register failing on read, if non-zero
	failWrite int64
}

func newFakeHW(m regs.Map, script ...uint32) *fakeHW {
	return &fakeHW{
		layout: m,
		header: make(map[uint32]uint64),
		script: script,
	}
}

func (hw *fakeHW) ReadAt(p []byte, off int64) (int, error) {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	if hw.failRead != 0 && off == hw.failRead {
		return 0, io.ErrUnexpectedEOF
	}

	if off == hw.layout.Status && len(p) == 4 {
		binary.LittleEndian.PutUint32(p, hw.status())
		return 4, nil
	}
	n := copy(p, hw.mem[off:])
	return n, nil
}

func (hw *fakeHW) status() uint32 {
	if !hw.started {
		return regs.STATUS_IDLE
	}
	if len(hw.script) == 0 {
		return regs.STATUS_RUNNING
	}
	v := hw.script[hw.pos]
	if hw.pos < len(hw.script)-1 {
		hw.pos++
	}
	return v
}

func (hw *fakeHW) WriteAt(p []byte, off int64) (int, error) {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	if hw.failWrite != 0 && off == hw.failWrite {
		return 0, io.ErrShortWrite
	}

	n := copy(hw.mem[off:], p)
	v := binary.LittleEndian.Uint32(p)
	if hw.record {
		hw.ops = append(hw.ops, fmt.Sprintf("w 0x%03x 0x%x", off, v))
	}

	switch off {
	case hw.layout.Control:
		hw.ctrl = append(hw.ctrl, v)
		switch {
		case v&regs.CTRL_STOP != 0:
			hw.started = false
		case v&regs.CTRL_START != 0:
			hw.started = true
			hw.pos = 0
		}
	case hw.layout.HeaderWE:
		if v == 1 && hw.we == 0 {
			addr := hw.u32(hw.layout.HeaderAddr)
			lo := hw.u32(hw.layout.HeaderDataLow)
			hi := hw.u32(hw.layout.HeaderDataHigh)
			hw.header[addr] = JoinWord(lo, hi)
		}
		hw.we = v
	}
	return n, nil
}

func (hw *fakeHW) Barrier() {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.barriers++
	if hw.record {
		hw.ops = append(hw.ops, "barrier")
	}
}

func (hw *fakeHW) u32(off int64) uint32 {
	return binary.LittleEndian.Uint32(hw.mem[off:])
}

func (hw *fakeHW) setU32(off int64, v uint32) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	binary.LittleEndian.PutUint32(hw.mem[off:], v)
}

func (hw *fakeHW) setU64(off int64, v uint64) {
	w := EncodeSplit64(v)
	hw.setU32(off+0, w[0])
	hw.setU32(off+4, w[1])
}

func (hw *fakeHW) u64(off int64) uint64 {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return DecodeSplit64([2]uint32{hw.u32(off), hw.u32(off + 4)})
}

func (hw *fakeHW) setBlock(off int64, p []byte) {
	for i, w := range EncodeBlock(p) {
		hw.setU32(off+int64(4*i), w)
	}
}

// captured returns the first n bytes of the captured header memory.
func (hw *fakeHW) captured(n int) []byte {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	words := make([]uint64, NumWords(n))
	for i := range words {
		words[i] = hw.header[uint32(i)]
	}
	return UnpackWords(words, n)
}

// found sets the result registers of a search that found nonce/hash.
func (hw *fakeHW) found(nonce, hash [32]byte, cmp uint32, iters uint64) {
	hw.setBlock(hw.layout.NonceResult, nonce[:])
	hw.setBlock(hw.layout.HashResult, hash[:])
	hw.setU32(hw.layout.DebugComparison, cmp)
	hw.setU64(hw.layout.IterationCount, iters)
}

func newTestDevice(hw *fakeHW, opts ...Option) *Device {
	rev := RevAttemptLimit
	if !hw.layout.HasAttemptLimit() {
		rev = RevLegacy
	}
	opts = append([]Option{
		WithRevision(rev),
		WithLogger(log.New(io.Discard, "accel: ", 0)),
		WithPollInterval(1),
	}, opts...)
	dev, err := New(hw, opts...)
	if err != nil {
		panic(err)
	}
	return dev
}
