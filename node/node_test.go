// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/log"

	"github.com/go-lpc/txpow/accel"
)

type fakeDev struct {
	out   accel.Outcome
	err   error
	block bool // wait for the context to be done

	header []byte
	cfg    accel.SearchConfig

	stops  int
	closed bool
}

func (dev *fakeDev) Search(ctx context.Context, header []byte, cfg accel.SearchConfig) (accel.Outcome, error) {
	dev.header = header
	dev.cfg = cfg
	if dev.block {
		<-ctx.Done()
		return accel.Outcome{State: accel.Idle}, fmt.Errorf("accel: search interrupted: %w", ctx.Err())
	}
	return dev.out, dev.err
}

func (dev *fakeDev) Stop() error {
	dev.stops++
	return nil
}

func (dev *fakeDev) Close() error {
	dev.closed = true
	return nil
}

func newTestContext(ctx context.Context) tdaq.Context {
	return tdaq.Context{
		Ctx: ctx,
		Msg: log.NewMsgStream("txpow-node", log.LvlDebug, io.Discard),
	}
}

func newTestServer(dev *fakeDev) *Server {
	srv := New("/dev/mem")
	srv.open = func(devmem string, opts ...accel.Option) (device, error) {
		if dev == nil {
			return nil, fmt.Errorf("could not open %q", devmem)
		}
		return dev, nil
	}
	return srv
}

func configFrame(t *testing.T, target uint32, timeout, limit uint64, header string) tdaq.Frame {
	t.Helper()
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteU32(target)
	enc.WriteU64(timeout)
	enc.WriteU64(limit)
	enc.WriteStr(header)
	if err := enc.Err(); err != nil {
		t.Fatalf("could not encode /config payload: %+v", err)
	}
	return tdaq.Frame{Body: buf.Bytes()}
}

func TestServer(t *testing.T) {
	header, err := accel.NewTestHeader(100, accel.PatternDefault)
	if err != nil {
		t.Fatalf("could not create header: %+v", err)
	}

	var out accel.Outcome
	out.State = accel.Found
	out.Iterations = 1234
	out.Nonce[2] = 0x42
	out.Hash[1] = 0x0f
	out.Lane = accel.Lane1
	out.Comparison = 0b10
	out.Other = 0x41

	var (
		dev  = &fakeDev{out: out}
		srv  = newTestServer(dev)
		resp tdaq.Frame
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tctx := newTestContext(ctx)

	err = srv.OnConfig(tctx, &resp, configFrame(t, 8, 0, 1000000, hex.EncodeToString(header)))
	if err != nil {
		t.Fatalf("could not run /config: %+v", err)
	}

	err = srv.OnStart(tctx, &resp, tdaq.Frame{})
	if err == nil {
		t.Fatalf("expected an error starting an uninitialized node")
	}

	for _, f := range []func(tdaq.Context, *tdaq.Frame, tdaq.Frame) error{
		srv.OnInit, srv.OnReset, srv.OnStart,
	} {
		err = f(tctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not run command: %+v", err)
		}
	}
	if dev.stops != 1 {
		t.Fatalf("invalid number of stops: %d", dev.stops)
	}

	rctx, stop := context.WithCancel(ctx)
	errch := make(chan error, 1)
	go func() {
		errch <- srv.Run(newTestContext(rctx))
	}()

	var frame tdaq.Frame
	err = srv.Outcomes(tctx, &frame)
	if err != nil {
		t.Fatalf("could not read outcome: %+v", err)
	}
	stop()

	select {
	case err := <-errch:
		if err != nil {
			t.Fatalf("could not run search: %+v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not terminate")
	}

	got, err := DecodeOutcome(bytes.NewReader(frame.Body))
	if err != nil {
		t.Fatalf("could not decode outcome: %+v", err)
	}
	if got != out {
		t.Fatalf("invalid outcome:\ngot= %+v\nwant=%+v", got, out)
	}

	if !bytes.Equal(dev.header, header) {
		t.Fatalf("invalid searched header")
	}
	want := accel.SearchConfig{TargetCLZ: 8, AttemptLimit: 1000000, InputLen: 100}
	if dev.cfg != want {
		t.Fatalf("invalid search config:\ngot= %+v\nwant=%+v", dev.cfg, want)
	}

	err = srv.OnStop(tctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /stop: %+v", err)
	}
	if srv.n != 1 {
		t.Fatalf("invalid number of outcomes: %d", srv.n)
	}

	err = srv.OnQuit(tctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /quit: %+v", err)
	}
	if !dev.closed {
		t.Fatalf("accelerator not closed")
	}
}

func TestRunInterrupted(t *testing.T) {
	var (
		dev  = &fakeDev{block: true}
		srv  = newTestServer(dev)
		resp tdaq.Frame
	)
	srv.Configure(accel.SearchConfig{TargetCLZ: 8}, make([]byte, 64))

	ctx, cancel := context.WithCancel(context.Background())
	tctx := newTestContext(ctx)

	err := srv.OnInit(tctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /init: %+v", err)
	}

	errch := make(chan error, 1)
	go func() {
		errch <- srv.Run(tctx)
	}()
	cancel()

	err = <-errch
	if err != nil {
		t.Fatalf("could not run: %+v", err)
	}
	if srv.n != 0 {
		t.Fatalf("invalid number of outcomes: %d", srv.n)
	}

	var frame tdaq.Frame
	err = srv.Outcomes(tctx, &frame)
	if err != nil {
		t.Fatalf("could not read outcomes: %+v", err)
	}
	if frame.Body != nil {
		t.Fatalf("unexpected outcome payload")
	}
}

func TestRunFail(t *testing.T) {
	var (
		dev  = &fakeDev{err: fmt.Errorf("boom"), out: accel.Outcome{State: accel.Running}}
		srv  = newTestServer(dev)
		resp tdaq.Frame
		tctx = newTestContext(context.Background())
	)
	srv.Configure(accel.SearchConfig{TargetCLZ: 8}, make([]byte, 64))

	err := srv.OnInit(tctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /init: %+v", err)
	}

	err = srv.Run(tctx)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := err.Error(), "could not run search: boom"; got != want {
		t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
	}
}

func TestServerFail(t *testing.T) {
	var (
		resp tdaq.Frame
		tctx = newTestContext(context.Background())
	)

	for _, tc := range []struct {
		name string
		f    func(srv *Server) error
		want string
	}{
		{
			name: "init",
			f: func(srv *Server) error {
				return srv.OnInit(tctx, &resp, tdaq.Frame{})
			},
			want: `could not open accelerator "/dev/mem": could not open "/dev/mem"`,
		},
		{
			name: "config-hex",
			f: func(srv *Server) error {
				return srv.OnConfig(tctx, &resp, configFrame(t, 8, 0, 0, "zz"))
			},
			want: "could not decode header: encoding/hex: invalid byte: U+007A 'z'",
		},
		{
			name: "run",
			f: func(srv *Server) error {
				return srv.Run(tctx)
			},
			want: "accelerator not initialized",
		},
		{
			name: "start",
			f: func(srv *Server) error {
				return srv.OnStart(tctx, &resp, tdaq.Frame{})
			},
			want: "accelerator not initialized",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(nil)
			err := tc.f(srv)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.want; got != want {
				t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
			}
		})
	}

	srv := newTestServer(nil)
	err := srv.OnConfig(tctx, &resp, tdaq.Frame{Body: []byte{1, 2}})
	if err == nil {
		t.Fatalf("expected an error on truncated /config payload")
	}
}
