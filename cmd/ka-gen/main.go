// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ka-gen generates the reference raw sample file and the
// configuration file of a keep-alive target.
//
// Usage: ka-gen [OPTIONS]
//
// Example:
//
//	$> ka-gen -cfg ./keepalive.toml -o ./samples.raw -target ./target.cfg
package main // import "github.com/go-lpc/keepalive/cmd/ka-gen"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-lpc/keepalive/config"
)

func main() {
	log.SetPrefix("ka-gen: ")
	log.SetFlags(0)

	var (
		fname = flag.String("cfg", "", "path to TOML configuration file (default: built-in defaults)")
		oname = flag.String("o", "samples.raw", "path to output raw sample file")
		tname = flag.String("target", "", "path to output target configuration file (default: stdout)")
		seed  = flag.Int64("seed", 0, "seed of the reference data (0: from configuration)")
	)

	flag.Parse()

	err := run(*fname, *oname, *tname, *seed, time.Now())
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(fname, oname, tname string, seed int64, now time.Time) error {
	cfg := config.Default()
	if fname != "" {
		v, err := config.Load(fname)
		if err != nil {
			return fmt.Errorf("could not load configuration: %w", err)
		}
		cfg = v
	}
	if seed != 0 {
		cfg.Reference.Seed = seed
	}

	model, err := cfg.Model(now)
	if err != nil {
		return fmt.Errorf("could not create reference data: %w", err)
	}

	o, err := os.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create raw sample file: %w", err)
	}
	defer o.Close()

	err = model.Data().WriteSamples(o, cfg.Channels())
	if err != nil {
		return fmt.Errorf("could not write raw samples: %w", err)
	}

	err = o.Close()
	if err != nil {
		return fmt.Errorf("could not close raw sample file: %w", err)
	}

	beg, end, _ := model.Data().Range()
	log.Printf("reference data: seed=%d, [%d, %d) ns -> %q", cfg.Reference.Seed, beg, end, oname)

	w := os.Stdout
	if tname != "" {
		f, err := os.Create(tname)
		if err != nil {
			return fmt.Errorf("could not create target configuration file: %w", err)
		}
		defer f.Close()
		w = f
	}

	err = cfg.WriteTarget(w)
	if err != nil {
		return fmt.Errorf("could not write target configuration: %w", err)
	}

	if w != os.Stdout {
		err = w.Close()
		if err != nil {
			return fmt.Errorf("could not close target configuration file: %w", err)
		}
	}

	return nil
}
