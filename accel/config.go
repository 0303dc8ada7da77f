// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package accel

import (
	"fmt"

	"github.com/go-lpc/txpow/accel/internal/regs"
)

// SearchConfig describes one search.
type SearchConfig struct {
	TargetCLZ    uint32 `json:"target_clz"`    // required leading zero bits, 0..=256
	Timeout      uint64 `json:"timeout"`       // accelerator clock cycles, 0 to disable
	AttemptLimit uint64 `json:"attempt_limit"` // maximum number of attempts, 0 to disable
	InputLen     uint32 `json:"input_len"`     // header message length, in bytes
}

func (cfg SearchConfig) validate(m regs.Map) error {
	if cfg.TargetCLZ > MaxTargetCLZ {
		return fmt.Errorf(
			"%w: target leading zero count %d out of range [0, %d]",
			ErrInvalidInput, cfg.TargetCLZ, MaxTargetCLZ,
		)
	}
	if cfg.InputLen < 1 || cfg.InputLen > MaxHeaderLen {
		return fmt.Errorf(
			"%w: input length %d out of range [1, %d]",
			ErrInvalidInput, cfg.InputLen, MaxHeaderLen,
		)
	}
	if cfg.AttemptLimit != 0 && !m.HasAttemptLimit() {
		return fmt.Errorf(
			"%w: attempt limit not supported by %q register map",
			ErrInvalidInput, m.Name,
		)
	}
	return nil
}

func validateHeader(p []byte) error {
	if n := len(p); n < 1 || n > MaxHeaderLen {
		return fmt.Errorf(
			"%w: header length %d out of range [1, %d]",
			ErrInvalidInput, n, MaxHeaderLen,
		)
	}
	return nil
}

// Reset stops any running search and clears the control register.
func (dev *Device) Reset() error {
	dev.regs.ctrl.w(regs.CTRL_STOP)
	dev.barrier()
	dev.regs.ctrl.w(0)
	dev.barrier()
	dev.state = Idle
	return dev.err
}

// Configure resets the accelerator and writes the search configuration.
// Nothing is written if the configuration is invalid.
func (dev *Device) Configure(cfg SearchConfig) error {
	err := cfg.validate(dev.layout)
	if err != nil {
		return err
	}

	err = dev.Reset()
	if err != nil {
		return err
	}

	dev.regs.target.w(cfg.TargetCLZ)
	dev.regs.inputLen.w(cfg.InputLen)
	dev.regs.timeout.w(cfg.Timeout)
	if dev.regs.limit != nil {
		dev.regs.limit.w(cfg.AttemptLimit)
	}
	dev.barrier()

	return dev.err
}
