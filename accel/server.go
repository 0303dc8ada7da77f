// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package accel

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

type device interface {
	Search(ctx context.Context, header []byte, cfg SearchConfig) (Outcome, error)
	Stop() error
	State() State
	Status() (uint32, error)
	Iterations() (uint64, error)
	Lanes(target uint32) ([2]LaneResult, uint32, error)
	DumpRegisters(w io.Writer) error

	Close() error
}

var _ device = (*Device)(nil)

var errSearchRunning = errors.New("accel-svc: search in progress")

// AlertFunc is called by the server when a search reports a protocol
// inconsistency.
type AlertFunc func(out Outcome, err error)

// server allows to control the accelerator over a JSON/TCP connection.
type server struct {
	ctl net.Listener

	msg    *log.Logger
	devmem string
	alert  AlertFunc

	newDevice func(devmem string, opts ...Option) (device, error)

	opts []Option
}

// Serve listens on addr and serves search requests, one connection at a time.
// Each connection opens its own session over the devmem window.
// Searches run in the background and reply when they end. A stop request,
// a quit request or closing the connection interrupts the running search.
func Serve(addr, devmem string, alert AlertFunc, opts ...Option) error {
	srv, err := newServer(addr, devmem, alert, opts...)
	if err != nil {
		return fmt.Errorf("could not create accel server: %w", err)
	}
	return srv.serve()
}

func newServer(addr, devmem string, alert AlertFunc, opts ...Option) (*server, error) {
	ctl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not create accel-svc server on %q: %w", addr, err)
	}

	srv := &server{
		ctl:    ctl,
		msg:    log.New(os.Stdout, "accel-svc: ", 0),
		devmem: devmem,
		alert:  alert,

		newDevice: func(devmem string, opts ...Option) (device, error) {
			return Open(devmem, opts...)
		},

		opts: opts,
	}
	return srv, nil
}

func (srv *server) serve() error {
	defer srv.close()

	for {
		conn, err := srv.ctl.Accept()
		if err != nil {
			return fmt.Errorf("could not accept connection: %w", err)
		}

		err = srv.handle(conn)
		if err != nil {
			srv.msg.Printf("could not run accelerator session: %+v", err)
			continue
		}
	}
}

type request struct {
	Name string           `json:"name"`
	Args *json.RawMessage `json:"args"`
}

type searchArgs struct {
	SearchConfig
	Header   string `json:"header"`   // hex-encoded header message
	Size     int    `json:"size"`     // length of the generated test header, when Header is empty
	Deadline string `json:"deadline"` // software deadline, as a time.Duration
}

type outcomeReply struct {
	State      State  `json:"state"`
	Iterations uint64 `json:"iterations"`
	Nonce      string `json:"nonce,omitempty"`
	Hash       string `json:"hash,omitempty"`
	CLZ        int    `json:"clz,omitempty"`
	Lane       *Lane  `json:"lane,omitempty"`
	Other      uint64 `json:"other,omitempty"`
}

func newOutcomeReply(out Outcome) *outcomeReply {
	rep := &outcomeReply{
		State:      out.State,
		Iterations: out.Iterations,
	}
	if out.State == Found {
		nonce := out.NonceField()
		lane := out.Lane
		rep.Nonce = hex.EncodeToString(nonce[:])
		rep.Hash = hex.EncodeToString(out.Hash[:])
		rep.CLZ = out.CLZ()
		rep.Lane = &lane
		rep.Other = out.Other
	}
	return rep
}

type reply struct {
	Msg        string         `json:"msg"`
	Outcome    *outcomeReply  `json:"outcome,omitempty"`
	State      *State         `json:"state,omitempty"`
	Status     uint32         `json:"status,omitempty"`
	Iterations uint64         `json:"iterations,omitempty"`
	Lanes      *[2]LaneResult `json:"lanes,omitempty"`
	Dump       string         `json:"dump,omitempty"`
}

// session is the state of one control connection.
type session struct {
	conn net.Conn
	dev  device

	wmu sync.Mutex // serializes replies

	cancel context.CancelFunc
	done   chan struct{} // closed when the background search returns
}

// running reports whether a background search is still in flight.
func (sess *session) running() bool {
	if sess.done == nil {
		return false
	}
	select {
	case <-sess.done:
		sess.done = nil
		sess.cancel = nil
		return false
	default:
		return true
	}
}

// interrupt cancels the background search, if any, and waits for it to
// return. The search reply is sent before interrupt returns.
func (sess *session) interrupt() {
	if sess.done == nil {
		return
	}
	sess.cancel()
	<-sess.done
	sess.done = nil
	sess.cancel = nil
}

func (srv *server) handle(conn net.Conn) error {
	defer conn.Close()
	srv.msg.Printf("serving %v...", conn.RemoteAddr())
	defer srv.msg.Printf("serving %v... [done]", conn.RemoteAddr())

	sess := &session{conn: conn}

	dev, err := srv.newDevice(srv.devmem, srv.opts...)
	if err != nil {
		srv.reply(sess, reply{}, err)
		return fmt.Errorf("could not create accelerator device: %w", err)
	}
	defer dev.Close()
	sess.dev = dev
	defer sess.interrupt()

	dec := json.NewDecoder(conn)
	for {
		var req request
		err = dec.Decode(&req)
		if err != nil {
			sess.interrupt()
			if errors.Is(err, io.EOF) {
				return nil
			}
			srv.msg.Printf("could not decode command request: %+v", err)
			srv.reply(sess, reply{}, err)
			return fmt.Errorf("could not decode command request: %w", err)
		}
		srv.msg.Printf("received request: name=%q", req.Name)

		name := strings.ToLower(req.Name)
		switch name {
		case "search", "status", "lanes", "dump":
			if sess.running() {
				srv.reply(sess, reply{}, errSearchRunning)
				continue
			}
		}

		switch name {
		case "search":
			var args searchArgs
			err = srv.decodeArgs(req, &args)
			if err != nil {
				srv.reply(sess, reply{}, err)
				continue
			}
			err = srv.search(sess, args)
			if err != nil {
				srv.reply(sess, reply{Outcome: newOutcomeReply(Outcome{})}, err)
			}

		case "stop":
			sess.interrupt()
			err = dev.Stop()
			state := dev.State()
			srv.reply(sess, reply{State: &state}, err)

		case "status":
			var (
				rep reply
				st  = dev.State()
			)
			rep.State = &st
			rep.Status, err = dev.Status()
			if err == nil {
				rep.Iterations, err = dev.Iterations()
			}
			srv.reply(sess, rep, err)

		case "lanes":
			var args struct {
				Target uint32 `json:"target_clz"`
			}
			err = srv.decodeArgs(req, &args)
			if err != nil {
				srv.reply(sess, reply{}, err)
				continue
			}
			lanes, _, err := dev.Lanes(args.Target)
			srv.reply(sess, reply{Lanes: &lanes}, err)

		case "dump":
			o := new(bytes.Buffer)
			err = dev.DumpRegisters(o)
			srv.reply(sess, reply{Dump: o.String()}, err)

		case "quit":
			sess.interrupt()
			srv.reply(sess, reply{}, nil)
			return nil

		default:
			srv.msg.Printf("unknown command name=%q", req.Name)
			srv.reply(sess, reply{}, fmt.Errorf("unknown command %q", req.Name))
		}
	}
}

func (srv *server) decodeArgs(req request, v interface{}) error {
	if req.Args == nil {
		return nil
	}
	err := json.Unmarshal(*req.Args, v)
	if err != nil {
		srv.msg.Printf("could not decode %q payload: %+v", req.Name, err)
		return fmt.Errorf("could not decode %q payload: %w", req.Name, err)
	}
	return nil
}

// search starts a search in the background. The outcome is replied once the
// search returns, or once it is interrupted by a stop request, a quit request
// or the end of the connection.
func (srv *server) search(sess *session, args searchArgs) error {
	var (
		header []byte
		err    error
	)
	switch {
	case args.Header != "":
		header, err = hex.DecodeString(args.Header)
		if err != nil {
			return fmt.Errorf("%w: could not decode header: %w", ErrInvalidInput, err)
		}
	default:
		header, err = NewTestHeader(args.Size, PatternDefault)
		if err != nil {
			return err
		}
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	switch args.Deadline {
	case "":
		ctx, cancel = context.WithCancel(context.Background())
	default:
		d, err := time.ParseDuration(args.Deadline)
		if err != nil {
			return fmt.Errorf("%w: could not parse deadline: %w", ErrInvalidInput, err)
		}
		ctx, cancel = context.WithTimeout(context.Background(), d)
	}

	done := make(chan struct{})
	sess.cancel = cancel
	sess.done = done

	go func() {
		defer close(done)
		defer cancel()

		out, err := sess.dev.Search(ctx, header, args.SearchConfig)
		if err != nil {
			srv.msg.Printf("could not run search: %+v", err)
			if errors.Is(err, ErrProtocolInconsistency) && srv.alert != nil {
				srv.alert(out, err)
			}
		}
		srv.reply(sess, reply{Outcome: newOutcomeReply(out)}, err)
	}()

	return nil
}

func (srv *server) reply(sess *session, rep reply, err error) {
	rep.Msg = "ok"
	if err != nil {
		rep.Msg = fmt.Sprintf("%+v", err)
	}

	sess.wmu.Lock()
	defer sess.wmu.Unlock()
	_ = json.NewEncoder(sess.conn).Encode(rep)
}

func (srv *server) close() {
	_ = srv.ctl.Close()
}
