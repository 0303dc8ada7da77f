// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package accel

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/go-lpc/txpow/accel/internal/regs"
)

// RegisterFile is a window of 32-bit CSRs addressed by byte offset.
type RegisterFile interface {
	io.ReaderAt
	io.WriterAt
}

// barrierer is implemented by register files that need an explicit
// flush between ordered writes.
type barrierer interface {
	Barrier()
}

var fence uint32

// barrier orders all previous register accesses before any later one.
//
// On the /dev/mem window, ordering comes from the register accesses
// themselves: internal/mmap performs every aligned 32-bit read and write
// with a sequentially consistent atomic load or store, and the fence
// counter below adds a further synchronizing operation between them.
// Register files implementing Barrier are flushed on top of that.
func (dev *Device) barrier() {
	atomic.AddUint32(&fence, 1)
	if b, ok := dev.rw.(barrierer); ok {
		b.Barrier()
	}
}

func (dev *Device) readU32(offset int64) uint32 {
	if dev.err != nil {
		return 0
	}
	_, dev.err = dev.rw.ReadAt(dev.xbuf[:], offset)
	if dev.err != nil {
		dev.err = fmt.Errorf("accel: could not read register 0x%x: %w", offset, dev.err)
		return 0
	}
	return binary.LittleEndian.Uint32(dev.xbuf[:])
}

func (dev *Device) writeU32(offset int64, v uint32) {
	if dev.err != nil {
		return
	}
	binary.LittleEndian.PutUint32(dev.xbuf[:], v)
	_, dev.err = dev.rw.WriteAt(dev.xbuf[:], offset)
	if dev.err != nil {
		dev.err = fmt.Errorf("accel: could not write register 0x%x: %w", offset, dev.err)
	}
}

type reg32 struct {
	addr int64
	r    func() uint32
	w    func(v uint32)
}

func newReg32(dev *Device, offset int64) reg32 {
	return reg32{
		addr: offset,
		r: func() uint32 {
			return dev.readU32(offset)
		},
		w: func(v uint32) {
			dev.writeU32(offset, v)
		},
	}
}

// reg64 is a 64-bit field split over two consecutive registers,
// high word first.
type reg64 struct {
	words [2]reg32
}

func newReg64(dev *Device, offset int64) reg64 {
	return reg64{
		words: [2]reg32{
			newReg32(dev, offset+0),
			newReg32(dev, offset+4),
		},
	}
}

func (reg *reg64) r() uint64 {
	var w [2]uint32
	w[0] = reg.words[0].r()
	w[1] = reg.words[1].r()
	return DecodeSplit64(w)
}

func (reg *reg64) w(v uint64) {
	w := EncodeSplit64(v)
	reg.words[0].w(w[0])
	reg.words[1].w(w[1])
}

// block is a N-word CSR block.
type block struct {
	words []reg32
}

func newBlock(dev *Device, offset int64, n int) block {
	blk := block{words: make([]reg32, n)}
	for i := range blk.words {
		blk.words[i] = newReg32(dev, offset+int64(4*i))
	}
	return blk
}

func (blk *block) r() []byte {
	words := make([]uint32, len(blk.words))
	for i := range words {
		words[i] = blk.words[i].r()
	}
	return DecodeBlock(words)
}

type csrs struct {
	ctrl   reg32
	status reg32

	nonce  block
	hash   block
	iters  reg64
	target reg32

	dbg struct {
		hash  [2]block
		clz   [2]reg32
		cmp   reg32
		block block
	}

	timeout  reg64
	limit    *reg64 // nil when the layout has no attempt-limit register
	inputLen reg32

	hdr struct {
		lo   reg32
		hi   reg32
		addr reg32
		we   reg32
	}
}

func (dev *Device) bind(m regs.Map) {
	dev.layout = m
	dev.regs = csrs{
		ctrl:     newReg32(dev, m.Control),
		status:   newReg32(dev, m.Status),
		nonce:    newBlock(dev, m.NonceResult, regs.NONCE_WORDS),
		hash:     newBlock(dev, m.HashResult, regs.HASH_WORDS),
		iters:    newReg64(dev, m.IterationCount),
		target:   newReg32(dev, m.TargetCLZ),
		timeout:  newReg64(dev, m.Timeout),
		inputLen: newReg32(dev, m.InputLen),
	}
	dev.regs.dbg.hash[0] = newBlock(dev, m.DebugHash0, regs.HASH_WORDS)
	dev.regs.dbg.hash[1] = newBlock(dev, m.DebugHash1, regs.HASH_WORDS)
	dev.regs.dbg.clz[0] = newReg32(dev, m.DebugCLZ0)
	dev.regs.dbg.clz[1] = newReg32(dev, m.DebugCLZ1)
	dev.regs.dbg.cmp = newReg32(dev, m.DebugComparison)
	dev.regs.dbg.block = newBlock(dev, m.DebugBlock0, regs.BLOCK_WORDS)

	if m.HasAttemptLimit() {
		limit := newReg64(dev, m.AttemptLimit)
		dev.regs.limit = &limit
	}

	dev.regs.hdr.lo = newReg32(dev, m.HeaderDataLow)
	dev.regs.hdr.hi = newReg32(dev, m.HeaderDataHigh)
	dev.regs.hdr.addr = newReg32(dev, m.HeaderAddr)
	dev.regs.hdr.we = newReg32(dev, m.HeaderWE)
}
