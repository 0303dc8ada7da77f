// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package accel

import (
	"log"
	"os"
	"time"
)

type config struct {
	rev    Revision
	poll   time.Duration
	settle int
	msg    *log.Logger

	progress struct {
		step uint64
		f    func(Progress)
	}
}

func newConfig() config {
	cfg := config{
		rev:    RevAttemptLimit,
		poll:   50 * time.Millisecond,
		settle: DefaultSettle,
		msg:    log.New(os.Stdout, "accel: ", 0),
	}
	cfg.progress.step = 100000
	return cfg
}

// Option configures a Device.
type Option func(*config)

// WithRevision selects the register-map layout.
func WithRevision(rev Revision) Option {
	return func(cfg *config) {
		cfg.rev = rev
	}
}

// WithPollInterval sets the interval between two status reads.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.poll = d
		}
	}
}

// WithSettle sets the number of bus cycles the header write-enable
// is held asserted.
func WithSettle(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.settle = n
		}
	}
}

// WithProgress installs a callback invoked from the poll loop whenever
// the iteration count grew by at least step since the last report.
func WithProgress(step uint64, f func(Progress)) Option {
	return func(cfg *config) {
		if step > 0 {
			cfg.progress.step = step
		}
		cfg.progress.f = f
	}
}

// WithLogger sets the logger of the device.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		if msg != nil {
			cfg.msg = msg
		}
	}
}
