// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command txpow-mine runs a proof-of-work search on the txpow accelerator.
//
// Usage: txpow-mine [OPTIONS]
//
// Example:
//
//	$> txpow-mine -target=16 -size=200 -verify
//	$> txpow-mine -header=0120000000[...] -attempts=1000000 -deadline=10s
package main // import "github.com/go-lpc/txpow/cmd/txpow-mine"

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-lpc/txpow/accel"
	"github.com/go-lpc/txpow/internal/verify"
)

type options struct {
	devmem string
	rev    string

	target   uint64
	timeout  uint64
	attempts uint64
	size     int
	header   string
	deadline time.Duration

	verify bool
	debug  bool
	step   uint64
	poll   time.Duration
}

func main() {
	var opts options

	flag.StringVar(&opts.devmem, "dev-mem", "/dev/mem", "path to the physical memory device")
	flag.StringVar(&opts.rev, "rev", "attempt-limit", "register map revision (legacy|attempt-limit)")
	flag.Uint64Var(&opts.target, "target", 8, "required number of leading zero bits")
	flag.Uint64Var(&opts.timeout, "timeout", 0, "hardware timeout in clock cycles (0: none)")
	flag.Uint64Var(&opts.attempts, "attempts", 0, "maximum number of attempts (0: unlimited)")
	flag.IntVar(&opts.size, "size", 100, "length of the generated test header, in bytes")
	flag.StringVar(&opts.header, "header", "", "hex-encoded header message (overrides -size)")
	flag.DurationVar(&opts.deadline, "deadline", 0, "software deadline (0: none)")
	flag.BoolVar(&opts.verify, "verify", false, "verify the found hash in software")
	flag.BoolVar(&opts.debug, "debug", false, "monitor the message block being absorbed")
	flag.Uint64Var(&opts.step, "step", 1000000, "progress report interval, in iterations")
	flag.DurationVar(&opts.poll, "poll", 50*time.Millisecond, "status polling interval")

	log.SetPrefix("txpow-mine: ")
	log.SetFlags(0)

	flag.Parse()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	err := run(context.Background(), opts, stop)
	if err != nil {
		log.Fatalf("could not run search: %+v", err)
	}
}

func run(ctx context.Context, opts options, stop chan os.Signal) error {
	rev, err := accel.ParseRevision(opts.rev)
	if err != nil {
		return err
	}

	if opts.target > math.MaxUint32 {
		return fmt.Errorf("%w: target %d out of uint32 range", accel.ErrInvalidInput, opts.target)
	}

	var header []byte
	switch opts.header {
	case "":
		header, err = accel.NewTestHeader(opts.size, accel.PatternDefault)
	default:
		header, err = hex.DecodeString(opts.header)
	}
	if err != nil {
		return fmt.Errorf("could not create header: %w", err)
	}

	var (
		dev   *accel.Device
		block = -1
	)
	progress := func(p accel.Progress) {
		log.Printf("iterations=%d elapsed=%v rate=%.4f MH/s",
			p.Iterations, p.Elapsed, rate(p.Iterations, p.Elapsed),
		)
		if !opts.debug {
			return
		}
		blk, err := dev.DebugBlock()
		if err != nil {
			log.Printf("could not read debug block: %+v", err)
			return
		}
		if i := accel.DetectBlock(blk[:], header); i != block {
			log.Printf("block: %d -> %d (%d blocks)", block, i, accel.Blocks(len(header)))
			block = i
		}
	}

	dev, err = accel.Open(
		opts.devmem,
		accel.WithRevision(rev),
		accel.WithPollInterval(opts.poll),
		accel.WithProgress(opts.step, progress),
	)
	if err != nil {
		return fmt.Errorf("could not open accelerator: %w", err)
	}
	defer dev.Close()

	cfg := accel.SearchConfig{
		TargetCLZ:    uint32(opts.target),
		Timeout:      opts.timeout,
		AttemptLimit: opts.attempts,
		InputLen:     uint32(len(header)),
	}
	log.Printf("searching: input=%d bytes (%d blocks), target=%d, timeout=%d, attempts=%d, map=%v",
		len(header), accel.Blocks(len(header)), cfg.TargetCLZ,
		cfg.Timeout, cfg.AttemptLimit, rev,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.deadline > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.deadline)
		defer cancel()
	}

	var (
		out   accel.Outcome
		start = time.Now()
		grp   errgroup.Group
	)
	grp.Go(func() error {
		select {
		case <-stop:
			log.Printf("interrupt received, stopping search...")
			cancel()
		case <-ctx.Done():
		}
		return nil
	})
	grp.Go(func() error {
		defer cancel()
		var err error
		out, err = dev.Search(ctx, header, cfg)
		return err
	})

	err = grp.Wait()
	elapsed := time.Since(start)
	switch {
	case err == nil:
	case errors.Is(err, accel.ErrProtocolInconsistency):
		display(out, elapsed)
		return err
	default:
		return err
	}

	display(out, elapsed)

	if opts.verify {
		if out.State != accel.Found {
			log.Printf("no nonce found, skipping verification")
			return nil
		}
		err = verify.Check(header, out, cfg.TargetCLZ)
		if err != nil {
			return fmt.Errorf("could not verify outcome: %w", err)
		}
		log.Printf("verification: OK")
	}

	return nil
}

func display(out accel.Outcome, elapsed time.Duration) {
	log.Printf("state:      %v", out.State)
	log.Printf("iterations: %d", out.Iterations)
	log.Printf("elapsed:    %v (%.4f MH/s)", elapsed, rate(out.Iterations, elapsed))
	if out.State != accel.Found {
		return
	}
	nonce := out.NonceField()
	log.Printf("nonce:      %x", nonce)
	log.Printf("hash:       %x", out.Hash)
	log.Printf("clz:        %d", out.CLZ())
	log.Printf("lane:       %v (comparison=0b%02b)", out.Lane, out.Comparison)
	log.Printf("other:      %d (reconstructed)", out.Other)
}

func rate(n uint64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds() / 1e6
}
