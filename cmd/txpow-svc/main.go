// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command txpow-svc serves txpow accelerator searches over JSON/TCP.
//
// Protocol inconsistencies reported by the accelerator are sent as mail
// alerts, using the MAIL_USERNAME, MAIL_PASSWORD, MAIL_SERVER, MAIL_PORT
// and MAIL_TGTS environment variables.
package main // import "github.com/go-lpc/txpow/cmd/txpow-svc"

import (
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	mail "gopkg.in/gomail.v2"

	"github.com/go-lpc/txpow"
	"github.com/go-lpc/txpow/accel"
)

func main() {
	var (
		addr   = flag.String("addr", ":9977", "txpow-svc [addr]:port")
		devmem = flag.String("dev-mem", "/dev/mem", "path to the physical memory device")
		rev    = flag.String("rev", "attempt-limit", "register map revision (legacy|attempt-limit)")
		poll   = flag.Duration("poll", 50*time.Millisecond, "status polling interval")
		settle = flag.Int("settle", accel.DefaultSettle, "number of status reads between header write strobes")
	)

	log.SetPrefix("txpow-svc: ")
	log.SetFlags(0)

	flag.Parse()

	err := run(*addr, *devmem, *rev, *poll, *settle)
	if err != nil {
		log.Fatalf("could not run txpow-svc service: %+v", err)
	}
}

func run(addr, devmem, name string, poll time.Duration, settle int) error {
	rev, err := accel.ParseRevision(name)
	if err != nil {
		return err
	}

	if v, _ := txpow.Version(); v != "" {
		log.Printf("txpow version: %s", v)
	}
	log.Printf("serving %v accelerator on %q...", rev, addr)
	return accel.Serve(
		addr, devmem, alertMail,
		accel.WithRevision(rev),
		accel.WithPollInterval(poll),
		accel.WithSettle(settle),
	)
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

func alertMail(out accel.Outcome, err error) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := newAlert(out, err)
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err = dial.DialAndSend(msg)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func newAlert(out accel.Outcome, err error) *mail.Message {
	nonce := out.NonceField()
	msg := mail.NewMessage()
	msg.SetHeader("Subject", fmt.Sprintf("[txpow-svc] protocol inconsistency (clz=%d)", out.CLZ()))
	msg.SetBody("text/plain", fmt.Sprintf(
		"error: %v\nstate: %v\niterations: %d\nnonce: %x\nhash: %x\nlane: %v\ncomparison: 0b%02b\n",
		err, out.State, out.Iterations, nonce, out.Hash, out.Lane, out.Comparison,
	))
	return msg
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
