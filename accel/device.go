// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package accel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/txpow/accel/internal/regs"
	"github.com/go-lpc/txpow/internal/mmap"
)

// Device is a session over the accelerator CSR window.
//
// A Device is not safe for concurrent use.
// Only one Device may address a given window at a time.
type Device struct {
	msg *log.Logger
	cfg config

	rw  RegisterFile
	mem io.Closer // window owned by the device, if any

	layout regs.Map
	regs   csrs

	err    error
	xbuf   [4]byte
	state  State
	status uint32 // last status word read by Poll
}

// Open maps the accelerator window from the devmem file (usually /dev/mem)
// and returns a new session over it.
func Open(devmem string, opts ...Option) (*Device, error) {
	mem, err := mmap.Open(devmem, regs.BASE, regs.SPAN)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquisition, err)
	}

	dev, err := New(mem, opts...)
	if err != nil {
		_ = mem.Close()
		return nil, err
	}
	dev.mem = mem

	return dev, nil
}

// New returns a new session over the provided register window.
// The window is not closed by Device.Close.
func New(rw RegisterFile, opts ...Option) (*Device, error) {
	if rw == nil {
		return nil, fmt.Errorf("%w: nil register window", ErrAcquisition)
	}

	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	layout, err := cfg.rev.layout()
	if err != nil {
		return nil, err
	}

	dev := &Device{
		msg: cfg.msg,
		cfg: cfg,
		rw:  rw,
	}
	dev.bind(layout)

	return dev, nil
}

// Revision returns the register-map layout used by the device.
func (dev *Device) Revision() Revision {
	return dev.cfg.rev
}

// Err returns the first register I/O error encountered by the device.
func (dev *Device) Err() error {
	return dev.err
}

// Close stops any running search and releases the window.
func (dev *Device) Close() error {
	if dev.rw == nil {
		return nil
	}

	var errs []error
	if err := dev.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("accel: could not stop accelerator: %w", err))
	}

	if dev.mem != nil {
		if err := dev.mem.Close(); err != nil {
			errs = append(errs, fmt.Errorf("accel: could not close register window: %w", err))
		}
		dev.mem = nil
	}
	dev.rw = nil

	return errors.Join(errs...)
}

// Search runs a complete search of header with the provided configuration.
//
// Timeout and exhaustion are reported through the returned outcome.
// A found outcome whose hash does not meet the target is returned together
// with an error wrapping ErrProtocolInconsistency.
// When ctx expires, the search is stopped and the context error is returned.
func (dev *Device) Search(ctx context.Context, header []byte, cfg SearchConfig) (Outcome, error) {
	if cfg.InputLen == 0 {
		cfg.InputLen = uint32(len(header))
	}
	err := validateHeader(header)
	if err != nil {
		return Outcome{}, err
	}
	if int(cfg.InputLen) != len(header) {
		return Outcome{}, fmt.Errorf(
			"%w: input length %d does not match header length %d",
			ErrInvalidInput, cfg.InputLen, len(header),
		)
	}
	err = cfg.validate(dev.layout)
	if err != nil {
		return Outcome{}, err
	}

	if err := ctx.Err(); err != nil {
		return Outcome{State: dev.state}, fmt.Errorf("accel: search interrupted: %w", err)
	}

	err = dev.Configure(cfg)
	if err != nil {
		return Outcome{}, fmt.Errorf("accel: could not configure search: %w", err)
	}

	err = dev.Upload(header)
	if err != nil {
		return Outcome{}, fmt.Errorf("accel: could not upload header: %w", err)
	}

	err = dev.Start()
	if err != nil {
		return Outcome{}, fmt.Errorf("accel: could not start search: %w", err)
	}

	state, err := dev.Wait(ctx)
	if err != nil {
		return Outcome{State: state}, err
	}

	out, err := dev.Result(cfg.TargetCLZ)
	if e := dev.Stop(); e != nil && err == nil {
		err = fmt.Errorf("accel: could not stop accelerator: %w", e)
	}

	return out, err
}
