// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package accel

import (
	"context"
	"fmt"
	"time"

	"github.com/go-lpc/txpow/accel/internal/regs"
)

// State is the state of a search, as observed from the status register.
type State int

const (
	Idle      State = iota // no search started, or search stopped
	Running                // search in progress
	Found                  // a nonce meeting the target was found
	TimedOut               // the cycle timeout expired
	Exhausted              // the attempt limit was reached
)

func (st State) String() string {
	switch st {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Found:
		return "found"
	case TimedOut:
		return "timeout"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(st))
	}
}

func (st State) MarshalText() ([]byte, error) {
	return []byte(st.String()), nil
}

func (st *State) UnmarshalText(p []byte) error {
	for _, v := range []State{Idle, Running, Found, TimedOut, Exhausted} {
		if v.String() == string(p) {
			*st = v
			return nil
		}
	}
	return fmt.Errorf("accel: invalid state %q", p)
}

// Terminal reports whether st ends a search.
func (st State) Terminal() bool {
	switch st {
	case Found, TimedOut, Exhausted:
		return true
	}
	return false
}

// Progress is reported while a search is running.
type Progress struct {
	Iterations uint64
	Elapsed    time.Duration
	Status     uint32
}

// stateFrom decodes a status word read while a search is active.
// There is no dedicated status bit for exhaustion: a search that neither
// runs, found a nonce nor timed out ran out of attempts.
func stateFrom(status uint32) State {
	switch {
	case status&regs.STATUS_FOUND != 0:
		return Found
	case status&regs.STATUS_TIMEOUT != 0:
		return TimedOut
	case status&regs.STATUS_RUNNING != 0:
		return Running
	default:
		return Exhausted
	}
}

// Start asserts the start bit. The device must have been configured and
// the header uploaded beforehand.
func (dev *Device) Start() error {
	dev.regs.ctrl.w(regs.CTRL_START)
	dev.barrier()
	if dev.err != nil {
		return dev.err
	}
	dev.state = Running
	return nil
}

// Stop issues the stop sequence. It is always safe to call and leaves the
// device in the Idle state.
func (dev *Device) Stop() error {
	err := dev.Reset()
	if err != nil {
		return fmt.Errorf("accel: could not issue stop sequence: %w", err)
	}
	return nil
}

// State returns the last observed state.
func (dev *Device) State() State {
	return dev.state
}

// Status returns the raw status register.
func (dev *Device) Status() (uint32, error) {
	v := dev.regs.status.r()
	return v, dev.err
}

// Iterations returns the number of attempts performed so far.
func (dev *Device) Iterations() (uint64, error) {
	v := dev.regs.iters.r()
	return v, dev.err
}

// Poll reads the status register once and updates the device state.
// Poll never blocks and can be used by callers driving their own event loop.
func (dev *Device) Poll() (State, error) {
	status := dev.regs.status.r()
	if dev.err != nil {
		return dev.state, dev.err
	}
	dev.status = status
	if dev.state != Running {
		return dev.state, nil
	}
	dev.state = stateFrom(status)
	return dev.state, nil
}

// Wait polls the status register until the search reaches a terminal state.
//
// If ctx is done first, the stop sequence is issued and the context error
// is returned.
func (dev *Device) Wait(ctx context.Context) (State, error) {
	if dev.state != Running {
		return dev.state, fmt.Errorf("accel: no search running (state=%v)", dev.state)
	}

	var (
		start = time.Now()
		last  uint64
		tick  = time.NewTimer(0)
	)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			dev.msg.Printf("search interrupted: %v", ctx.Err())
			err := dev.Stop()
			if err != nil {
				return dev.state, fmt.Errorf("accel: could not stop interrupted search: %w", err)
			}
			return dev.state, fmt.Errorf("accel: search interrupted: %w", ctx.Err())
		case <-tick.C:
		}

		state, err := dev.Poll()
		if err != nil {
			return state, fmt.Errorf("accel: could not poll status: %w", err)
		}
		if state.Terminal() {
			return state, nil
		}

		if f := dev.cfg.progress.f; f != nil {
			iters, err := dev.Iterations()
			if err != nil {
				return state, fmt.Errorf("accel: could not read iteration count: %w", err)
			}
			if iters >= last+dev.cfg.progress.step {
				last = iters
				f(Progress{
					Iterations: iters,
					Elapsed:    time.Since(start),
					Status:     dev.status,
				})
			}
		}

		tick.Reset(dev.cfg.poll)
	}
}
