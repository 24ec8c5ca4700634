// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package keepalive holds code to exercise and validate the keep-alive
// request/response protocol of the RC360 data acquisition application.
//
// The wire package encodes and decodes physical messages, plan predicts
// how many physical messages a reply needs, reasm reassembles a logical
// reply, refdata generates the reference samples and compare checks the
// reassembled values against them. The oracle package ties all of these
// together into a single keep-alive exchange.
//
// The sim package serves a simulated target, and daq runs the oracle as a
// go-daq/tdaq process.
package keepalive // import "github.com/go-lpc/keepalive"

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version of keepalive and its checksum.
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

	const root = "github.com/go-lpc/keepalive"
	if b.Main.Path == root {
		return b.Main.Version, b.Main.Sum
	}
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
