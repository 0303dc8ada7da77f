// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package node exposes a txpow accelerator as a TDAQ process.
//
// Each run performs one search on the configured header and publishes
// its outcome on the "/outcomes" output.
package node // import "github.com/go-lpc/txpow/node"

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/go-daq/tdaq"

	"github.com/go-lpc/txpow/accel"
)

type device interface {
	Search(ctx context.Context, header []byte, cfg accel.SearchConfig) (accel.Outcome, error)
	Stop() error
	Close() error
}

// Server handles the TDAQ commands of an accelerator node.
type Server struct {
	devmem string
	opts   []accel.Option
	open   func(devmem string, opts ...accel.Option) (device, error)

	mu     sync.Mutex
	dev    device
	cfg    accel.SearchConfig
	header []byte

	n    int
	data chan []byte
}

// New returns a node server for the accelerator mapped through devmem.
func New(devmem string, opts ...accel.Option) *Server {
	return &Server{
		devmem: devmem,
		opts:   opts,
		open: func(devmem string, opts ...accel.Option) (device, error) {
			return accel.Open(devmem, opts...)
		},
	}
}

// Configure sets the search parameters and header used by the next runs.
func (srv *Server) Configure(cfg accel.SearchConfig, header []byte) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.cfg = cfg
	srv.header = header
}

// OnConfig decodes the search configuration:
// target (u32), timeout (u64), attempt limit (u64), hex header (str).
// An empty request keeps the current configuration.
func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	if len(req.Body) == 0 {
		return nil
	}

	dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
	var cfg accel.SearchConfig
	cfg.TargetCLZ = dec.ReadU32()
	cfg.Timeout = dec.ReadU64()
	cfg.AttemptLimit = dec.ReadU64()
	str := dec.ReadStr()
	if err := dec.Err(); err != nil {
		ctx.Msg.Errorf("could not decode /config payload: %+v", err)
		return fmt.Errorf("could not decode /config payload: %w", err)
	}

	header, err := hex.DecodeString(str)
	if err != nil {
		ctx.Msg.Errorf("could not decode header: %+v", err)
		return fmt.Errorf("could not decode header: %w", err)
	}
	cfg.InputLen = uint32(len(header))

	srv.Configure(cfg, header)
	ctx.Msg.Infof("config: target=%d, timeout=%d, attempt-limit=%d, input-len=%d",
		cfg.TargetCLZ, cfg.Timeout, cfg.AttemptLimit, cfg.InputLen,
	)
	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.dev != nil {
		_ = srv.dev.Close()
		srv.dev = nil
	}

	dev, err := srv.open(srv.devmem, srv.opts...)
	if err != nil {
		ctx.Msg.Errorf("could not open accelerator %q: %+v", srv.devmem, err)
		return fmt.Errorf("could not open accelerator %q: %w", srv.devmem, err)
	}
	srv.dev = dev
	srv.data = make(chan []byte, 1024)
	srv.n = 0
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.data = make(chan []byte, 1024)
	srv.n = 0
	if srv.dev == nil {
		return nil
	}
	err := srv.dev.Stop()
	if err != nil {
		ctx.Msg.Errorf("could not reset accelerator: %+v", err)
		return fmt.Errorf("could not reset accelerator: %w", err)
	}
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.dev == nil {
		return fmt.Errorf("accelerator not initialized")
	}
	if len(srv.header) == 0 {
		return fmt.Errorf("no header configured")
	}
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	ctx.Msg.Debugf("received /stop command... -> n=%d", srv.n)
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.dev == nil {
		return nil
	}
	err := srv.dev.Close()
	srv.dev = nil
	if err != nil {
		ctx.Msg.Errorf("could not close accelerator: %+v", err)
		return fmt.Errorf("could not close accelerator: %w", err)
	}
	return nil
}

// Outcomes is the output handler publishing encoded search outcomes.
func (srv *Server) Outcomes(ctx tdaq.Context, dst *tdaq.Frame) error {
	srv.mu.Lock()
	data := srv.data
	srv.mu.Unlock()

	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case buf := <-data:
		dst.Body = buf
	}
	return nil
}

// Run performs one search and waits for the end of the run.
// The search is interrupted when the run stops.
func (srv *Server) Run(ctx tdaq.Context) error {
	srv.mu.Lock()
	var (
		dev    = srv.dev
		cfg    = srv.cfg
		header = srv.header
		data   = srv.data
	)
	srv.mu.Unlock()

	if dev == nil {
		return fmt.Errorf("accelerator not initialized")
	}

	out, err := dev.Search(ctx.Ctx, header, cfg)
	if err != nil {
		if ctx.Ctx.Err() != nil {
			ctx.Msg.Infof("search interrupted by end of run")
			return nil
		}
		ctx.Msg.Errorf("could not run search: %+v", err)
		if out.State != accel.Found {
			return fmt.Errorf("could not run search: %w", err)
		}
	}

	buf := new(bytes.Buffer)
	err = EncodeOutcome(buf, out)
	if err != nil {
		return fmt.Errorf("could not encode outcome: %w", err)
	}

	select {
	case data <- buf.Bytes():
		srv.mu.Lock()
		srv.n++
		srv.mu.Unlock()
	default:
		ctx.Msg.Warnf("outcome queue full, dropping outcome")
	}
	ctx.Msg.Infof("search: state=%v, iterations=%d", out.State, out.Iterations)

	<-ctx.Ctx.Done()
	return nil
}

// EncodeOutcome writes out in the node output format:
// state (str), iterations (u64), nonce (32 bytes), hash (32 bytes),
// lane (u32), comparison (u32), other (u64).
func EncodeOutcome(w io.Writer, out accel.Outcome) error {
	enc := tdaq.NewEncoder(w)
	enc.WriteStr(out.State.String())
	enc.WriteU64(out.Iterations)
	for _, v := range out.Nonce {
		enc.WriteU8(v)
	}
	for _, v := range out.Hash {
		enc.WriteU8(v)
	}
	enc.WriteU32(uint32(out.Lane))
	enc.WriteU32(out.Comparison)
	enc.WriteU64(out.Other)
	return enc.Err()
}

// DecodeOutcome reads an outcome encoded with EncodeOutcome.
func DecodeOutcome(r io.Reader) (accel.Outcome, error) {
	var (
		out accel.Outcome
		dec = tdaq.NewDecoder(r)
	)
	state := dec.ReadStr()
	out.Iterations = dec.ReadU64()
	for i := range out.Nonce {
		out.Nonce[i] = dec.ReadU8()
	}
	for i := range out.Hash {
		out.Hash[i] = dec.ReadU8()
	}
	out.Lane = accel.Lane(dec.ReadU32())
	out.Comparison = dec.ReadU32()
	out.Other = dec.ReadU64()
	if err := dec.Err(); err != nil {
		return out, fmt.Errorf("could not decode outcome: %w", err)
	}

	err := out.State.UnmarshalText([]byte(state))
	if err != nil {
		return out, fmt.Errorf("could not decode outcome: %w", err)
	}
	return out, nil
}
