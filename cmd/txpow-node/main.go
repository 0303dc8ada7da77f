// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command txpow-node starts a TDAQ server driving a txpow accelerator.
package main // import "github.com/go-lpc/txpow/cmd/txpow-node"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/config"
	"github.com/go-daq/tdaq/flags"

	"github.com/go-lpc/txpow/accel"
	"github.com/go-lpc/txpow/node"
)

type options struct {
	devmem   string
	rev      string
	poll     time.Duration
	size     int
	target   uint64
	attempts uint64
}

func main() {
	var opts options

	flag.StringVar(&opts.devmem, "dev-mem", "/dev/mem", "path to the physical memory device")
	flag.StringVar(&opts.rev, "rev", "attempt-limit", "register map revision (legacy|attempt-limit)")
	flag.DurationVar(&opts.poll, "poll", 50*time.Millisecond, "status polling interval")
	flag.IntVar(&opts.size, "size", 100, "length of the default test header, in bytes")
	flag.Uint64Var(&opts.target, "target", 8, "default required number of leading zero bits")
	flag.Uint64Var(&opts.attempts, "attempts", 0, "default attempt limit (0: unlimited)")

	cmd := flags.New()

	dev, err := newNode(opts)
	if err != nil {
		log.Panicf("error: %+v", err)
	}

	srv := newServer(cmd, dev, os.Stdout)
	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

func newNode(opts options) (*node.Server, error) {
	r, err := accel.ParseRevision(opts.rev)
	if err != nil {
		return nil, err
	}

	if opts.target > math.MaxUint32 {
		return nil, fmt.Errorf("%w: target %d out of uint32 range", accel.ErrInvalidInput, opts.target)
	}

	header, err := accel.NewTestHeader(opts.size, accel.PatternDefault)
	if err != nil {
		return nil, err
	}

	dev := node.New(opts.devmem, accel.WithRevision(r), accel.WithPollInterval(opts.poll))
	dev.Configure(accel.SearchConfig{
		TargetCLZ:    uint32(opts.target),
		AttemptLimit: opts.attempts,
		InputLen:     uint32(len(header)),
	}, header)

	return dev, nil
}

func newServer(cmd config.Process, dev *node.Server, stdout io.Writer) *tdaq.Server {
	srv := tdaq.New(cmd, stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/outcomes", dev.Outcomes)

	srv.RunHandle(dev.Run)

	return srv
}
