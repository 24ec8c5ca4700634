// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ka-tdaq starts a TDAQ process running keep-alive exchanges
// against a target.
//
// The configuration and reference files are read from the KA_CONFIG and
// KA_REFERENCE environment variables.
package main // import "github.com/go-lpc/keepalive/cmd/ka-tdaq"

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"

	"github.com/go-lpc/keepalive/daq"
)

func main() {
	cmd := flags.New()

	period := 2 * time.Second
	if v := os.Getenv("KA_PERIOD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Panicf("could not parse KA_PERIOD=%q: %+v", v, err)
		}
		period = d
	}

	dev := daq.New(
		cmd.Args[0],
		daq.WithConfig(os.Getenv("KA_CONFIG")),
		daq.WithReference(os.Getenv("KA_REFERENCE")),
		daq.WithPeriod(period),
	)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/keepalive", dev.Output)

	srv.RunHandle(dev.Loop)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
