// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/txpow/accel"
)

var cmdNames = []string{
	"block", "dump", "help", "lanes", "peek", "poke",
	"quit", "search", "status", "stop",
}

type console struct {
	dev *accel.Device
	w   io.Writer

	header   []byte        // last searched header
	deadline time.Duration // software deadline of searches
}

func newConsole(dev *accel.Device, w io.Writer) *console {
	return &console{
		dev:      dev,
		w:        w,
		deadline: 60 * time.Second,
	}
}

func (con *console) printf(format string, args ...interface{}) {
	fmt.Fprintf(con.w, format, args...)
}

// exec runs a single command line.
func (con *console) exec(line string) (quit bool, err error) {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(toks[0]), toks[1:]

	switch name {
	case "help", "?":
		con.help()

	case "quit", "exit", "q":
		return true, nil

	case "status":
		status, err := con.dev.Status()
		if err != nil {
			return false, err
		}
		iters, err := con.dev.Iterations()
		if err != nil {
			return false, err
		}
		con.printf("state=%v status=0x%08x iterations=%d\n", con.dev.State(), status, iters)

	case "dump":
		return false, con.dev.DumpRegisters(con.w)

	case "peek":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: peek <offset>")
		}
		off, err := parseU32(args[0])
		if err != nil {
			return false, err
		}
		v, err := con.dev.Peek(int64(off))
		if err != nil {
			return false, err
		}
		con.printf("[0x%03x] = 0x%08x (%d)\n", off, v, v)

	case "poke":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: poke <offset> <value>")
		}
		off, err := parseU32(args[0])
		if err != nil {
			return false, err
		}
		v, err := parseU32(args[1])
		if err != nil {
			return false, err
		}
		return false, con.dev.Poke(int64(off), v)

	case "stop":
		return false, con.dev.Stop()

	case "lanes":
		var target uint32
		if len(args) > 0 {
			target, err = parseU32(args[0])
			if err != nil {
				return false, err
			}
		}
		lanes, cmp, err := con.dev.Lanes(target)
		if err != nil {
			return false, err
		}
		for i, lane := range lanes {
			con.printf("lane[%d] (%v): clz=%d met=%v flagged=%v hash=%x\n",
				i, accel.Lane(i), lane.CLZ, lane.MetTarget, lane.Flagged, lane.Hash,
			)
		}
		con.printf("comparison=0b%02b winner=%v\n", cmp, accel.Arbitrate(cmp))

	case "block":
		blk, err := con.dev.DebugBlock()
		if err != nil {
			return false, err
		}
		con.printf("block=%x\n", blk)
		if con.header != nil {
			con.printf("block-index=%d\n", accel.DetectBlock(blk[:], con.header))
		}

	case "search":
		return false, con.search(args)

	default:
		return false, fmt.Errorf("unknown command %q", toks[0])
	}

	return false, nil
}

// search runs: search <size> <target> [attempts [timeout]]
func (con *console) search(args []string) error {
	if len(args) < 2 || len(args) > 4 {
		return fmt.Errorf("usage: search <size> <target> [attempts [timeout]]")
	}
	size, err := parseU32(args[0])
	if err != nil {
		return err
	}
	target, err := parseU32(args[1])
	if err != nil {
		return err
	}
	var limits [2]uint64 // attempts, timeout
	for i, arg := range args[2:] {
		v, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			return fmt.Errorf("could not parse %q: %w", arg, err)
		}
		limits[i] = v
	}

	header, err := accel.NewTestHeader(int(size), accel.PatternDefault)
	if err != nil {
		return err
	}
	con.header = header

	cfg := accel.SearchConfig{
		TargetCLZ:    target,
		AttemptLimit: limits[0],
		Timeout:      limits[1],
		InputLen:     uint32(len(header)),
	}

	ctx, cancel := context.WithTimeout(context.Background(), con.deadline)
	defer cancel()

	out, err := con.dev.Search(ctx, header, cfg)
	con.printf("state=%v iterations=%d\n", out.State, out.Iterations)
	if out.State == accel.Found {
		con.printf("nonce=%x\nhash=%x clz=%d lane=%v\n",
			out.Nonce, out.Hash, out.CLZ(), out.Lane,
		)
	}
	return err
}

func (con *console) help() {
	con.printf(`commands:
  status                          display the device state and status register
  dump                            dump all registers
  peek <offset>                   read a 32-bit register
  poke <offset> <value>           write a 32-bit register
  stop                            stop the running search
  lanes [target]                  display the per-lane debug registers
  block                           display the debug message block
  search <size> <target> [attempts [timeout]]
                                  run a search on a generated test header
  quit                            leave the console
`)
}

func parseU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("could not parse %q: %w", s, err)
	}
	return uint32(v), nil
}
