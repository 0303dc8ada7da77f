// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package accel

import (
	"fmt"
	"io"

	"github.com/go-lpc/txpow/accel/internal/regs"
)

// DebugBlockLen is the number of message bytes exposed by the debug block.
const DebugBlockLen = 4 * regs.BLOCK_WORDS

// LaneResult holds the per-lane debug registers.
type LaneResult struct {
	Hash      [HashLen]byte `json:"hash"`
	CLZ       uint32        `json:"clz"`
	MetTarget bool          `json:"met_target"` // CLZ >= target
	Flagged   bool          `json:"flagged"`    // comparison bit set by the accelerator
}

// Lanes reads the debug registers of both lanes and the raw comparison bits.
// They are meant for verification, not for normal operation.
func (dev *Device) Lanes(target uint32) ([2]LaneResult, uint32, error) {
	var lanes [2]LaneResult
	cmp := dev.regs.dbg.cmp.r()
	for i := range lanes {
		copy(lanes[i].Hash[:], dev.regs.dbg.hash[i].r())
		lanes[i].CLZ = dev.regs.dbg.clz[i].r()
		lanes[i].MetTarget = lanes[i].CLZ >= target
		lanes[i].Flagged = (cmp>>uint(i))&1 == 1
	}
	if dev.err != nil {
		return lanes, cmp, fmt.Errorf("accel: could not read lane debug registers: %w", dev.err)
	}
	return lanes, cmp, nil
}

// DebugBlock returns the first bytes of the message block currently
// absorbed by the accelerator, with the nonce injected.
func (dev *Device) DebugBlock() ([DebugBlockLen]byte, error) {
	var blk [DebugBlockLen]byte
	copy(blk[:], dev.regs.dbg.block.r())
	if dev.err != nil {
		return blk, fmt.Errorf("accel: could not read debug block: %w", dev.err)
	}
	return blk, nil
}

// DetectBlock returns the index of the header block whose leading bytes
// match the debug block blk, or -1.
// The nonce field of block 0 is not compared as the accelerator overwrites it.
// Blocks with identical content are reported as the first one.
func DetectBlock(blk []byte, header []byte) int {
	for i := 0; i*BlockSize < len(header); i++ {
		var (
			beg = i * BlockSize
			end = beg + len(blk)
			n   = 0
			ok  = true
		)
		if end > len(header) {
			end = len(header)
		}
		for j, v := range header[beg:end] {
			if i == 0 && j >= NonceOffset && j < NonceOffset+NonceLen {
				continue
			}
			n++
			if blk[j] != v {
				ok = false
				break
			}
		}
		if ok && n > 0 {
			return i
		}
	}
	return -1
}

// DumpRegisters writes a human readable dump of the accelerator CSRs to w.
func (dev *Device) DumpRegisters(w io.Writer) error {
	var (
		regs = &dev.regs
		err  error
	)
	printf := func(format string, args ...interface{}) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(w, format, args...)
	}

	printf("map=             %s\n", dev.layout.Name)
	printf("ctrl=            0x%08x\n", regs.ctrl.r())
	printf("status=          0x%08x (%s)\n", regs.status.r(), statusString(regs.status.r()))
	printf("iterations=      %d\n", regs.iters.r())
	printf("target-clz=      %d\n", regs.target.r())
	printf("input-len=       %d\n", regs.inputLen.r())
	printf("timeout=         %d\n", regs.timeout.r())
	if regs.limit != nil {
		printf("attempt-limit=   %d\n", regs.limit.r())
	}
	printf("nonce=           %x\n", regs.nonce.r())
	printf("hash=            %x\n", regs.hash.r())
	printf("dbg.hash[0]=     %x\n", regs.dbg.hash[0].r())
	printf("dbg.hash[1]=     %x\n", regs.dbg.hash[1].r())
	printf("dbg.clz[0]=      %d\n", regs.dbg.clz[0].r())
	printf("dbg.clz[1]=      %d\n", regs.dbg.clz[1].r())
	printf("dbg.cmp=         0b%02b\n", regs.dbg.cmp.r())
	printf("dbg.block=       %x\n", regs.dbg.block.r())

	if dev.err != nil {
		return dev.err
	}
	return err
}

func statusString(v uint32) string {
	var (
		o     []byte
		names = [...]string{"idle", "running", "found", "timeout"}
	)
	for i, name := range names {
		if (v>>uint(i))&1 == 0 {
			continue
		}
		if len(o) > 0 {
			o = append(o, '|')
		}
		o = append(o, name...)
	}
	if len(o) == 0 {
		return "-"
	}
	return string(o)
}

// Peek reads the 32-bit register at byte offset off of the CSR window.
func (dev *Device) Peek(off int64) (uint32, error) {
	err := checkOffset(off)
	if err != nil {
		return 0, err
	}
	v := dev.readU32(off)
	return v, dev.err
}

// Poke writes v to the 32-bit register at byte offset off of the CSR window.
func (dev *Device) Poke(off int64, v uint32) error {
	err := checkOffset(off)
	if err != nil {
		return err
	}
	dev.writeU32(off, v)
	dev.barrier()
	return dev.err
}

func checkOffset(off int64) error {
	if off < 0 || off+4 > Span || off%4 != 0 {
		return fmt.Errorf("%w: invalid register offset 0x%x", ErrInvalidInput, off)
	}
	return nil
}
