// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/txpow/accel"
)

type memRegs struct {
	buf [accel.Span]byte
}

func (m *memRegs) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, m.buf[off:]), nil
}

func (m *memRegs) WriteAt(p []byte, off int64) (int, error) {
	return copy(m.buf[off:], p), nil
}

func newTestConsole(t *testing.T) (*console, *strings.Builder) {
	t.Helper()

	dev, err := accel.New(
		new(memRegs),
		accel.WithRevision(accel.RevLegacy),
		accel.WithPollInterval(time.Millisecond),
		accel.WithLogger(log.New(io.Discard, "accel: ", 0)),
	)
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}

	o := new(strings.Builder)
	return newConsole(dev, o), o
}

func TestConsole(t *testing.T) {
	con, o := newTestConsole(t)

	for _, tc := range []struct {
		line string
		want string
		err  string
		quit bool
	}{
		{line: "   "},
		{line: "help", want: "commands:\n"},
		{line: "poke 0x50 12"},
		{line: "peek 0x50", want: "[0x050] = 0x0000000c (12)\n"},
		{line: "status", want: "state=idle status=0x00000000 iterations=0\n"},
		{line: "dump", want: "target-clz=      12\n"},
		{line: "lanes 4", want: "comparison=0b00 winner=Linear Search\n"},
		{line: "search 200 8", want: "state=exhausted iterations=0\n"},
		{line: "block", want: "block-index=-1\n"},
		{line: "stop"},
		{line: "peek", err: "usage: peek <offset>"},
		{line: "peek 0x2", err: "accel: invalid input: invalid register offset 0x2"},
		{line: "poke 0x50", err: "usage: poke <offset> <value>"},
		{line: "poke 0x50 boo", err: `could not parse "boo": strconv.ParseUint: parsing "boo": invalid syntax`},
		{line: "search 10 8", err: "accel: invalid input: test header length 10 out of range [34, 2176]"},
		{line: "search 100 4294967304", err: `could not parse "4294967304": strconv.ParseUint: parsing "4294967304": value out of range`},
		{line: "search 4294967396 8", err: `could not parse "4294967396": strconv.ParseUint: parsing "4294967396": value out of range`},
		{line: "search 100 8 -1", err: `could not parse "-1": strconv.ParseUint: parsing "-1": invalid syntax`},
		{line: "search 100", err: "usage: search <size> <target> [attempts [timeout]]"},
		{line: "search 100 8 10", err: `accel: invalid input: attempt limit not supported by "legacy" register map`},
		{line: "boo", err: `unknown command "boo"`},
		{line: "quit", quit: true},
	} {
		t.Run(tc.line, func(t *testing.T) {
			o.Reset()
			quit, err := con.exec(tc.line)
			switch {
			case err != nil && tc.err != "":
				if got, want := err.Error(), tc.err; got != want {
					t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
				}
			case err != nil:
				t.Fatalf("could not run %q: %+v", tc.line, err)
			case tc.err != "":
				t.Fatalf("expected an error")
			}
			if quit != tc.quit {
				t.Fatalf("invalid quit: got=%v, want=%v", quit, tc.quit)
			}
			if !strings.Contains(o.String(), tc.want) {
				t.Fatalf("invalid output:\ngot:\n%s\nwant:\n%s", o.String(), tc.want)
			}
		})
	}
}
