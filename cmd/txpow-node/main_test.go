// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/config"
	"github.com/go-daq/tdaq/log"

	"github.com/go-lpc/txpow/accel"
	"github.com/go-lpc/txpow/node"
)

// newDevMem creates a sparse file large enough to map the CSR window.
func newDevMem(t *testing.T) string {
	t.Helper()

	fname := filepath.Join(t.TempDir(), "dev-mem")
	f, err := os.Create(fname)
	if err != nil {
		t.Fatalf("could not create fake dev-mem: %+v", err)
	}
	defer f.Close()

	_, err = f.WriteAt([]byte{0}, accel.BaseAddr+accel.Span-1)
	if err != nil {
		t.Fatalf("could not write to dev-mem: %+v", err)
	}
	err = f.Close()
	if err != nil {
		t.Fatalf("could not close dev-mem: %+v", err)
	}
	return fname
}

func TestNewNode(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts options
		want string
	}{
		{
			name: "default",
			opts: options{rev: "attempt-limit", size: 100, target: 8},
		},
		{
			name: "invalid-rev",
			opts: options{rev: "v3", size: 100, target: 8},
			want: `accel: invalid input: unknown register map revision "v3"`,
		},
		{
			name: "invalid-target",
			opts: options{rev: "v2", size: 100, target: 1<<32 + 8},
			want: "accel: invalid input: target 4294967304 out of uint32 range",
		},
		{
			name: "invalid-size",
			opts: options{rev: "v2", size: 10, target: 8},
			want: "accel: invalid input: test header length 10 out of range [34, 2176]",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dev, err := newNode(tc.opts)
			switch {
			case tc.want == "" && err != nil:
				t.Fatalf("could not create node: %+v", err)
			case tc.want != "" && err == nil:
				t.Fatalf("expected an error")
			case tc.want != "":
				if got, want := err.Error(), tc.want; got != want {
					t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
				}
				return
			}
			if dev == nil {
				t.Fatalf("invalid nil node")
			}
		})
	}
}

func TestNode(t *testing.T) {
	dev, err := newNode(options{
		devmem: newDevMem(t),
		rev:    "attempt-limit",
		poll:   time.Millisecond,
		size:   100,
		target: 8,
	})
	if err != nil {
		t.Fatalf("could not create node: %+v", err)
	}

	srv := newServer(config.Process{
		Name:   "txpow-node",
		Level:  log.LvlDebug,
		Trans:  "tcp",
		RunCtl: "localhost:44000",
	}, dev, io.Discard)
	if srv == nil {
		t.Fatalf("invalid nil tdaq server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tctx := tdaq.Context{
		Ctx: ctx,
		Msg: log.NewMsgStream("txpow-node", log.LvlDebug, io.Discard),
	}

	var resp tdaq.Frame
	for _, h := range []struct {
		name string
		f    func(tdaq.Context, *tdaq.Frame, tdaq.Frame) error
	}{
		{"/config", dev.OnConfig},
		{"/init", dev.OnInit},
		{"/reset", dev.OnReset},
		{"/start", dev.OnStart},
	} {
		err := h.f(tctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not run %s: %+v", h.name, err)
		}
	}

	errc := make(chan error, 1)
	go func() {
		errc <- dev.Run(tctx)
	}()

	var dst tdaq.Frame
	err = dev.Outcomes(tctx, &dst)
	if err != nil {
		t.Fatalf("could not read outcome: %+v", err)
	}

	// an all-zero status word while running decodes as exhausted.
	out, err := node.DecodeOutcome(bytes.NewReader(dst.Body))
	if err != nil {
		t.Fatalf("could not decode outcome: %+v", err)
	}
	if got, want := out.State, accel.Exhausted; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}

	cancel()
	err = <-errc
	if err != nil {
		t.Fatalf("could not run node: %+v", err)
	}

	for _, h := range []struct {
		name string
		f    func(tdaq.Context, *tdaq.Frame, tdaq.Frame) error
	}{
		{"/stop", dev.OnStop},
		{"/quit", dev.OnQuit},
	} {
		err := h.f(tctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not run %s: %+v", h.name, err)
		}
	}
}
