// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command txpow-bench measures the hash rate of the txpow accelerator.
//
// Usage: txpow-bench [OPTIONS]
//
// Example:
//
//	$> txpow-bench -mode=attempts -size=1024 -o attempts.csv
//	$> txpow-bench -mode=inputsize -o inputsize.csv
//	$> txpow-bench -mode=pulse -pmon -o pulse.csv
package main // import "github.com/go-lpc/txpow/cmd/txpow-bench"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"

	"github.com/go-lpc/txpow/accel"
	"github.com/go-lpc/txpow/bench"
)

type options struct {
	devmem string
	rev    string
	mode   string
	oname  string

	size  int
	reps  int
	clock float64
	limit uint64
	pulse uint64
	poll  time.Duration

	doMon bool
	freq  time.Duration
	mname string
}

func main() {
	var opts options

	flag.StringVar(&opts.devmem, "dev-mem", "/dev/mem", "path to the physical memory device")
	flag.StringVar(&opts.rev, "rev", "attempt-limit", "register map revision (legacy|attempt-limit)")
	flag.StringVar(&opts.mode, "mode", "attempts", "benchmark sweep (attempts|inputsize|pulse)")
	flag.StringVar(&opts.oname, "o", "", "output CSV file (default: hashtest_<mode>_results.csv)")
	flag.IntVar(&opts.size, "size", bench.DefaultInputSize, "input size of the attempts sweep, in bytes")
	flag.IntVar(&opts.reps, "reps", 0, "number of runs per step (0: sweep default)")
	flag.Float64Var(&opts.clock, "clock", bench.DefaultClock, "accelerator clock frequency, in Hz")
	flag.Uint64Var(&opts.limit, "limit", bench.DefaultSizeLimit, "attempt limit of the input-size sweep")
	flag.Uint64Var(&opts.pulse, "pulse", bench.DefaultPulseCycles, "hardware timeout of the pulse sweep, in cycles")
	flag.DurationVar(&opts.poll, "poll", time.Millisecond, "status polling interval")
	flag.BoolVar(&opts.doMon, "pmon", false, "enable pmon monitoring")
	flag.DurationVar(&opts.freq, "freq", 1*time.Second, "pmon frequency")
	flag.StringVar(&opts.mname, "pmon-o", "txpow-bench-pmon.log", "pmon output file")

	log.SetPrefix("txpow-bench: ")
	log.SetFlags(0)

	flag.Parse()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	err := run(context.Background(), opts, stop)
	if err != nil {
		log.Fatalf("could not run benchmark: %+v", err)
	}
}

func run(ctx context.Context, opts options, stop chan os.Signal) error {
	mode, err := bench.ParseMode(opts.mode)
	if err != nil {
		return err
	}

	rev, err := accel.ParseRevision(opts.rev)
	if err != nil {
		return err
	}

	if opts.oname == "" {
		opts.oname = fmt.Sprintf("hashtest_%v_results.csv", mode)
	}

	dev, err := accel.Open(
		opts.devmem,
		accel.WithRevision(rev),
		accel.WithPollInterval(opts.poll),
	)
	if err != nil {
		return fmt.Errorf("could not open accelerator: %w", err)
	}
	defer dev.Close()

	if opts.doMon {
		p, err := pmon.Monitor(os.Getpid())
		if err != nil {
			return fmt.Errorf("could not start monitoring (pid=%d): %w", os.Getpid(), err)
		}
		// the monitor and its log file live until the process exits.
		f, err := os.Create(opts.mname)
		if err != nil {
			return fmt.Errorf("could not create pmon log file: %w", err)
		}
		p.W = f
		p.Freq = opts.freq

		go func() {
			log.Printf("run pmon (pid=%d)...", os.Getpid())
			err := p.Run()
			if err != nil {
				log.Printf("could not run monitoring: %+v", err)
			}
		}()
	}

	r := bench.NewRunner(
		dev,
		bench.WithClock(opts.clock),
		bench.WithRepetitions(opts.reps),
		bench.WithInputSize(opts.size),
		bench.WithAttemptLimit(opts.limit),
		bench.WithPulse(opts.pulse),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		grp errgroup.Group
		pts []bench.Point
	)
	grp.Go(func() error {
		select {
		case <-stop:
			log.Printf("interrupt received, stopping benchmark...")
			cancel()
		case <-ctx.Done():
		}
		return nil
	})
	grp.Go(func() error {
		defer cancel()
		var err error
		pts, err = r.Run(ctx, mode)
		return err
	})

	err = grp.Wait()
	if err != nil {
		if len(pts) == 0 {
			return err
		}
		log.Printf("benchmark interrupted: %+v", err)
	}

	err = bench.WriteCSV(opts.oname, pts)
	if err != nil {
		return err
	}
	log.Printf("results written to %q (%d points)", opts.oname, len(pts))

	return nil
}
