// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bench measures the hash rate of the txpow accelerator.
//
// Three sweeps are provided:
//   - Attempts: fixed input size, attempt limit from 10 to 1e8,
//     with an impossible target so each run lasts until the limit.
//   - InputSize: fixed attempt limit, input size from 100 to 1024 bytes.
//   - Pulse: fixed hardware timeout, unlimited attempts.
package bench // import "github.com/go-lpc/txpow/bench"

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go-hep.org/x/hep/csvutil"

	"github.com/go-lpc/txpow/accel"
)

// Mode is a benchmark sweep.
type Mode int

const (
	Attempts Mode = iota
	InputSize
	Pulse
)

func (m Mode) String() string {
	switch m {
	case Attempts:
		return "attempts"
	case InputSize:
		return "inputsize"
	case Pulse:
		return "pulse"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode returns the sweep named s.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "attempts":
		return Attempts, nil
	case "inputsize", "input-size", "size":
		return InputSize, nil
	case "pulse":
		return Pulse, nil
	}
	return 0, fmt.Errorf("bench: unknown mode %q", s)
}

const (
	// ImpossibleTarget is a leading zero count no hash is expected to reach.
	ImpossibleTarget = 255

	DefaultClock       = 100e6 // accelerator clock frequency, in Hz
	DefaultInputSize   = 100
	DefaultSizeLimit   = 10000000
	DefaultPulseCycles = 100000000 // 1s at 100 MHz
)

var (
	DefaultAttempts = []uint64{10, 100, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8}
	DefaultSizes    = []int{100, 200, 350, 450, 600, 750, 850, 1024}
)

// Header is the CSV header of benchmark result tables.
const Header = "Attempts,Input Size,Blocks,AvgCpuCycles,AvgTime (s),AvgHashRate (MH/s),AvgCyclesPerHash"

// Point is the averaged result of the runs of one sweep step.
type Point struct {
	Attempts      float64 // attempt limit, or average number of hashes for pulses
	InputSize     int
	Blocks        int
	Cycles        float64 // average number of cycles
	Time          float64 // average duration, in seconds
	HashRate      float64 // in MH/s
	CyclesPerHash float64
}

type device interface {
	Configure(cfg accel.SearchConfig) error
	Upload(header []byte) error
	Start() error
	Wait(ctx context.Context) (accel.State, error)
	Iterations() (uint64, error)
	Stop() error
}

var _ device = (*accel.Device)(nil)

// Runner runs benchmark sweeps on an accelerator.
type Runner struct {
	dev device
	msg *log.Logger

	freq     float64
	reps     int
	size     int
	attempts []uint64
	sizes    []int
	limit    uint64
	pulse    uint64
	safety   time.Duration

	now func() time.Time
}

// NewRunner returns a benchmark runner driving dev.
func NewRunner(dev device, opts ...Option) *Runner {
	r := &Runner{
		dev:      dev,
		msg:      log.New(os.Stdout, "bench: ", 0),
		freq:     DefaultClock,
		size:     DefaultInputSize,
		attempts: DefaultAttempts,
		sizes:    DefaultSizes,
		limit:    DefaultSizeLimit,
		pulse:    DefaultPulseCycles,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type sample struct {
	elapsed time.Duration
	hashes  uint64
}

// Run runs the sweep m and returns one point per step.
func (r *Runner) Run(ctx context.Context, m Mode) ([]Point, error) {
	switch m {
	case Attempts:
		return r.runAttempts(ctx)
	case InputSize:
		return r.runInputSize(ctx)
	case Pulse:
		return r.runPulse(ctx)
	}
	return nil, fmt.Errorf("bench: unknown mode %v", m)
}

func (r *Runner) runAttempts(ctx context.Context) ([]Point, error) {
	header, err := accel.NewTestHeader(r.size, accel.PatternBench)
	if err != nil {
		return nil, fmt.Errorf("bench: could not create test header: %w", err)
	}
	reps := r.repetitions(10)
	safety := r.timeout(1000 * time.Second)

	r.msg.Printf("attempts sweep: input=%d bytes (%d blocks), target=%d, reps=%d",
		r.size, accel.Blocks(r.size), ImpossibleTarget, reps,
	)

	pts := make([]Point, 0, len(r.attempts))
	for _, n := range r.attempts {
		cfg := accel.SearchConfig{
			TargetCLZ:    ImpossibleTarget,
			AttemptLimit: n,
			InputLen:     uint32(len(header)),
		}
		var (
			elapsed time.Duration
			hashes  uint64
		)
		for i := 0; i < reps; i++ {
			s, err := r.run(ctx, header, cfg, safety)
			if err != nil {
				return pts, fmt.Errorf("bench: could not run attempts=%d: %w", n, err)
			}
			elapsed += s.elapsed
			hashes += s.hashes
		}
		pt := r.average(elapsed, hashes, reps)
		pt.Attempts = float64(n)
		pt.InputSize = r.size
		pt.Blocks = accel.Blocks(r.size)
		r.print(pt)
		pts = append(pts, pt)
	}
	return pts, nil
}

func (r *Runner) runInputSize(ctx context.Context) ([]Point, error) {
	reps := r.repetitions(1)
	safety := r.timeout(200 * time.Second)

	r.msg.Printf("input-size sweep: attempts=%d, target=%d, reps=%d",
		r.limit, ImpossibleTarget, reps,
	)

	pts := make([]Point, 0, len(r.sizes))
	for _, sz := range r.sizes {
		header, err := accel.NewTestHeader(sz, accel.PatternDefault)
		if err != nil {
			return pts, fmt.Errorf("bench: could not create test header: %w", err)
		}
		cfg := accel.SearchConfig{
			TargetCLZ:    ImpossibleTarget,
			AttemptLimit: r.limit,
			InputLen:     uint32(sz),
		}
		var (
			elapsed time.Duration
			hashes  uint64
		)
		for i := 0; i < reps; i++ {
			s, err := r.run(ctx, header, cfg, safety)
			if err != nil {
				return pts, fmt.Errorf("bench: could not run input-size=%d: %w", sz, err)
			}
			elapsed += s.elapsed
			hashes += s.hashes
		}
		pt := r.average(elapsed, hashes, reps)
		pt.Attempts = float64(r.limit)
		pt.InputSize = sz
		pt.Blocks = accel.Blocks(sz)
		r.print(pt)
		pts = append(pts, pt)
	}
	return pts, nil
}

func (r *Runner) runPulse(ctx context.Context) ([]Point, error) {
	reps := r.repetitions(10)
	safety := r.timeout(3 * time.Second)

	r.msg.Printf("pulse sweep: pulse=%d cycles (%v @ %g MHz), reps=%d",
		r.pulse, r.duration(float64(r.pulse)), r.freq/1e6, reps,
	)

	pts := make([]Point, 0, len(r.sizes))
	for _, sz := range r.sizes {
		header, err := accel.NewTestHeader(sz, accel.PatternDefault)
		if err != nil {
			return pts, fmt.Errorf("bench: could not create test header: %w", err)
		}
		cfg := accel.SearchConfig{
			TargetCLZ: ImpossibleTarget,
			Timeout:   r.pulse,
			InputLen:  uint32(sz),
		}

		var pt Point
		for i := 0; i < reps; i++ {
			s, err := r.run(ctx, header, cfg, safety)
			if err != nil {
				return pts, fmt.Errorf("bench: could not run pulse input-size=%d: %w", sz, err)
			}
			secs := s.elapsed.Seconds()
			pt.Attempts += float64(s.hashes)
			pt.Time += secs
			if secs > 0 {
				pt.HashRate += float64(s.hashes) / secs / 1e6
			}
			if s.hashes > 0 {
				pt.CyclesPerHash += float64(r.pulse) / float64(s.hashes)
			}
		}
		n := float64(reps)
		pt.Attempts /= n
		pt.Time /= n
		pt.HashRate /= n
		pt.CyclesPerHash /= n
		pt.Cycles = float64(r.pulse)
		pt.InputSize = sz
		pt.Blocks = accel.Blocks(sz)
		r.print(pt)
		pts = append(pts, pt)
	}
	return pts, nil
}

// run performs a single search, timed from start to completion.
// A software timeout stops the search and keeps its partial count.
func (r *Runner) run(ctx context.Context, header []byte, cfg accel.SearchConfig, safety time.Duration) (sample, error) {
	var s sample

	err := r.dev.Configure(cfg)
	if err != nil {
		return s, fmt.Errorf("could not configure accelerator: %w", err)
	}

	err = r.dev.Upload(header)
	if err != nil {
		return s, fmt.Errorf("could not upload header: %w", err)
	}

	tctx, cancel := context.WithTimeout(ctx, safety)
	defer cancel()

	start := r.now()
	err = r.dev.Start()
	if err != nil {
		return s, fmt.Errorf("could not start accelerator: %w", err)
	}

	_, err = r.dev.Wait(tctx)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		r.msg.Printf("software timeout (%v) reached", safety)
	default:
		return s, err
	}
	s.elapsed = r.now().Sub(start)

	s.hashes, err = r.dev.Iterations()
	if err != nil {
		return s, fmt.Errorf("could not read iteration count: %w", err)
	}

	err = r.dev.Stop()
	if err != nil {
		return s, fmt.Errorf("could not stop accelerator: %w", err)
	}
	return s, nil
}

func (r *Runner) average(elapsed time.Duration, hashes uint64, reps int) Point {
	var (
		n       = float64(reps)
		pt      Point
		avgHash = float64(hashes) / n
	)
	pt.Time = elapsed.Seconds() / n
	pt.Cycles = pt.Time * r.freq
	if pt.Time > 0 {
		pt.HashRate = avgHash / pt.Time / 1e6
	}
	if avgHash > 0 {
		pt.CyclesPerHash = pt.Cycles / avgHash
	}
	return pt
}

func (r *Runner) repetitions(def int) int {
	if r.reps > 0 {
		return r.reps
	}
	return def
}

func (r *Runner) timeout(def time.Duration) time.Duration {
	if r.safety > 0 {
		return r.safety
	}
	return def
}

func (r *Runner) duration(cycles float64) time.Duration {
	return time.Duration(cycles / r.freq * float64(time.Second))
}

func (r *Runner) print(pt Point) {
	r.msg.Printf(
		"attempts=%-12s size=%-5d blocks=%-3d time=%.6fs rate=%.4f MH/s cycles/hash=%.2f",
		formatAttempts(pt.Attempts), pt.InputSize, pt.Blocks,
		pt.Time, pt.HashRate, pt.CyclesPerHash,
	)
}

func formatAttempts(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes the benchmark points to the CSV file fname.
func WriteCSV(fname string, pts []Point) error {
	tbl, err := csvutil.Create(fname)
	if err != nil {
		return fmt.Errorf("bench: could not create CSV file %q: %w", fname, err)
	}
	defer tbl.Close()
	tbl.Writer.Comma = ','

	err = tbl.WriteHeader(Header + "\n")
	if err != nil {
		return fmt.Errorf("bench: could not write CSV header: %w", err)
	}

	for i, pt := range pts {
		err = tbl.WriteRow(
			formatAttempts(pt.Attempts),
			strconv.Itoa(pt.InputSize),
			strconv.Itoa(pt.Blocks),
			fmt.Sprintf("%.0f", pt.Cycles),
			fmt.Sprintf("%.6f", pt.Time),
			fmt.Sprintf("%.4f", pt.HashRate),
			fmt.Sprintf("%.2f", pt.CyclesPerHash),
		)
		if err != nil {
			return fmt.Errorf("bench: could not write CSV row %d: %w", i, err)
		}
	}

	err = tbl.Close()
	if err != nil {
		return fmt.Errorf("bench: could not close CSV file %q: %w", fname, err)
	}
	return nil
}
