// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package txpow holds the driver and tools for the txpow accelerator,
// a dual-lane SHA3-256 proof-of-work search engine driven through
// memory-mapped control and status registers.
//
// Layout:
//   - accel: register-level driver, search sessions and JSON control service,
//   - bench: hash-rate benchmarks,
//   - node: TDAQ run-control node,
//   - cmd/txpow-*: command-line tools.
package txpow // import "github.com/go-lpc/txpow"

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version of txpow and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	const root = "github.com/go-lpc/txpow"
	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		if m.Replace != nil {
			switch {
			case m.Replace.Version != "" && m.Replace.Path != "":
				return fmt.Sprintf("%s %s", m.Replace.Path, m.Replace.Version), m.Replace.Sum
			case m.Replace.Version != "":
				return m.Replace.Version, m.Replace.Sum
			case m.Replace.Path != "":
				return m.Replace.Path, m.Replace.Sum
			default:
				return m.Version + "*", ""
			}
		}
		return m.Version, m.Sum
	}
	return "", ""
}
