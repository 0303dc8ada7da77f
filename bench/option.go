// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bench

import (
	"log"
	"time"
)

// Option configures a benchmark Runner.
type Option func(*Runner)

// WithClock sets the accelerator clock frequency, in Hz, used to
// estimate cycle counts from wall-clock durations.
func WithClock(hz float64) Option {
	return func(r *Runner) {
		r.freq = hz
	}
}

// WithRepetitions sets the number of runs averaged per sweep step.
func WithRepetitions(n int) Option {
	return func(r *Runner) {
		r.reps = n
	}
}

// WithInputSize sets the header length of the attempts sweep.
func WithInputSize(n int) Option {
	return func(r *Runner) {
		r.size = n
	}
}

// WithAttempts sets the attempt limits of the attempts sweep.
func WithAttempts(vs []uint64) Option {
	return func(r *Runner) {
		r.attempts = vs
	}
}

// WithSizes sets the header lengths of the input-size and pulse sweeps.
func WithSizes(vs []int) Option {
	return func(r *Runner) {
		r.sizes = vs
	}
}

// WithAttemptLimit sets the attempt limit of the input-size sweep.
func WithAttemptLimit(n uint64) Option {
	return func(r *Runner) {
		r.limit = n
	}
}

// WithPulse sets the hardware timeout, in cycles, of the pulse sweep.
func WithPulse(cycles uint64) Option {
	return func(r *Runner) {
		r.pulse = cycles
	}
}

// WithTimeout sets the software safety timeout of a single run.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.safety = d
	}
}

func WithLogger(msg *log.Logger) Option {
	return func(r *Runner) {
		r.msg = msg
	}
}
