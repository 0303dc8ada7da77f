// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command txpow-console is an interactive console to inspect and drive
// the txpow accelerator registers.
//
// Example:
//
//	$> txpow-console -rev=legacy
//	txpow> status
//	txpow> peek 0x50
//	txpow> poke 0x50 12
//	txpow> search 200 8
//	txpow> quit
package main // import "github.com/go-lpc/txpow/cmd/txpow-console"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/go-lpc/txpow/accel"
)

func main() {
	var (
		devmem = flag.String("dev-mem", "/dev/mem", "path to the physical memory device")
		rev    = flag.String("rev", "attempt-limit", "register map revision (legacy|attempt-limit)")
		poll   = flag.Duration("poll", 50*time.Millisecond, "status polling interval")
	)

	log.SetPrefix("txpow-console: ")
	log.SetFlags(0)

	flag.Parse()

	err := run(*devmem, *rev, *poll)
	if err != nil {
		log.Fatalf("could not run console: %+v", err)
	}
}

func run(devmem, name string, poll time.Duration) error {
	rev, err := accel.ParseRevision(name)
	if err != nil {
		return err
	}

	dev, err := accel.Open(devmem, accel.WithRevision(rev), accel.WithPollInterval(poll))
	if err != nil {
		return fmt.Errorf("could not open accelerator: %w", err)
	}
	defer dev.Close()

	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)
	term.SetCompleter(func(line string) []string {
		var o []string
		for _, cmd := range cmdNames {
			if strings.HasPrefix(cmd, strings.ToLower(line)) {
				o = append(o, cmd)
			}
		}
		return o
	})

	con := newConsole(dev, os.Stdout)
	fmt.Fprintf(os.Stdout, "txpow console (map=%v). type 'help' for the list of commands.\n", rev)
	for {
		line, err := term.Prompt("txpow> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(os.Stdout)
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		term.AppendHistory(line)

		quit, err := con.exec(line)
		if err != nil {
			fmt.Fprintf(os.Stdout, "error: %+v\n", err)
		}
		if quit {
			return nil
		}
	}
}
