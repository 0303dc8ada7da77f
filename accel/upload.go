// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package accel

// DefaultSettle is the default number of bus cycles the header
// write-enable is held asserted.
const DefaultSettle = 20

// settle holds the current bus state for n read transactions of the status
// register, so the accelerator captures a pulsed write synchronously.
// It never sleeps and its duration is bounded by n bus round trips.
func (dev *Device) settle(n int) {
	for i := 0; i < n; i++ {
		_ = dev.regs.status.r()
	}
}

// Upload writes the header message into the accelerator memory,
// one 64-bit word at a time.
//
// Each word goes through the handshake:
//
//	addr, barrier, data-low, data-high, barrier, we=1, barrier, settle, we=0, barrier.
//
// The header is not interpreted beyond its length.
func (dev *Device) Upload(header []byte) error {
	err := validateHeader(header)
	if err != nil {
		return err
	}

	for i, word := range PackWords(header) {
		lo, hi := SplitWord(word)
		dev.regs.hdr.addr.w(uint32(i))
		dev.barrier()
		dev.regs.hdr.lo.w(lo)
		dev.regs.hdr.hi.w(hi)
		dev.barrier()

		dev.regs.hdr.we.w(1)
		dev.barrier()
		dev.settle(dev.cfg.settle)
		dev.regs.hdr.we.w(0)
		dev.barrier()

		if dev.err != nil {
			return dev.err
		}
	}

	return dev.err
}
