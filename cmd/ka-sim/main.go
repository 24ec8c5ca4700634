// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ka-sim serves a simulated keep-alive target.
//
// Usage: ka-sim [OPTIONS]
//
// Example:
//
//	$> ka-sim -cfg ./keepalive.toml -addr :10000
package main // import "github.com/go-lpc/keepalive/cmd/ka-sim"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"time"

	tlog "github.com/go-daq/tdaq/log"

	"github.com/go-lpc/keepalive/config"
	"github.com/go-lpc/keepalive/refdata"
	"github.com/go-lpc/keepalive/sim"
)

type options struct {
	cfg   string // path to TOML configuration
	ref   string // path to raw sample file
	addr  string // address to listen on
	lvl   tlog.Level
	crc   int
	swap  bool
	stall bool
}

func main() {
	log.SetPrefix("ka-sim: ")
	log.SetFlags(0)

	var (
		opts  options
		debug = flag.Bool("v", false, "enable verbose mode")
	)
	flag.StringVar(&opts.cfg, "cfg", "", "path to TOML configuration file (default: built-in defaults)")
	flag.StringVar(&opts.ref, "ref", "", "path to raw sample file (default: generated from configuration)")
	flag.StringVar(&opts.addr, "addr", "", "[ip]:port to listen on (default: from configuration)")
	flag.IntVar(&opts.crc, "crc", -1, "corrupt the CRC of the i-th message of each reply")
	flag.BoolVar(&opts.swap, "swap", false, "swap the first two messages of each reply")
	flag.BoolVar(&opts.stall, "stall", false, "withhold the last message of each reply")

	flag.Parse()

	opts.lvl = tlog.LvlInfo
	if *debug {
		opts.lvl = tlog.LvlDebug
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, os.Stdout, opts, nil)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(ctx context.Context, w io.Writer, opts options, ready chan<- net.Addr) error {
	cfg := config.Default()
	if opts.cfg != "" {
		v, err := config.Load(opts.cfg)
		if err != nil {
			return fmt.Errorf("could not load configuration: %w", err)
		}
		cfg = v
	}

	model, err := loadModel(cfg, opts.ref, time.Now())
	if err != nil {
		return fmt.Errorf("could not create reference data: %w", err)
	}

	sopts := []sim.Option{
		sim.WithLogger(tlog.NewMsgStream("ka-sim", opts.lvl, w)),
		sim.WithCorruptCRC(opts.crc),
	}
	if opts.swap {
		sopts = append(sopts, sim.WithSwap())
	}
	if opts.stall {
		sopts = append(sopts, sim.WithStall())
	}

	tgt, err := sim.New(cfg, model, sopts...)
	if err != nil {
		return fmt.Errorf("could not create simulated target: %w", err)
	}

	addr := opts.addr
	if addr == "" {
		addr = cfg.Addr()
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("could not listen on %q: %w", addr, err)
	}
	log.Printf("serving keep-alive target on %v...", l.Addr())
	if ready != nil {
		ready <- l.Addr()
	}

	return tgt.Serve(ctx, l)
}

func loadModel(cfg config.Config, fname string, now time.Time) (*refdata.Model, error) {
	if fname == "" {
		return cfg.Model(now)
	}

	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("could not open raw sample file: %w", err)
	}
	defer f.Close()

	return cfg.ReadModel(f, now)
}
