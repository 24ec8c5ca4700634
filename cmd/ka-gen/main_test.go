// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRun(t *testing.T) {
	tmp := t.TempDir()

	var (
		fname = filepath.Join(tmp, "ka.toml")
		oname = filepath.Join(tmp, "samples.raw")
		tname = filepath.Join(tmp, "target.cfg")
	)

	err := os.WriteFile(fname, []byte(`
port = 10042
system_sample_period = 1000

[sensor_period]
temp_1 = 3000
temp_2 = 6000
pressure = 3000

[reference]
seed  = 42
start = 1000
ticks = 30
`), 0644)
	if err != nil {
		t.Fatalf("could not create configuration file: %+v", err)
	}

	err = run(fname, oname, tname, 0, time.Now())
	if err != nil {
		t.Fatalf("could not run ka-gen: %+v", err)
	}

	raw, err := os.ReadFile(oname)
	if err != nil {
		t.Fatalf("could not read raw samples: %+v", err)
	}
	if got, want := len(raw), 30*2*3; got != want {
		t.Fatalf("invalid raw sample file size: got=%d, want=%d", got, want)
	}

	target, err := os.ReadFile(tname)
	if err != nil {
		t.Fatalf("could not read target configuration: %+v", err)
	}
	for _, want := range []string{
		"port = 10042\n",
		"system_sample_period = 1000\n",
		"sensor_period[temp_2] = 6000\n",
	} {
		if !strings.Contains(string(target), want) {
			t.Fatalf("missing %q in target configuration:\n%s", want, target)
		}
	}
}

func TestRunInvalid(t *testing.T) {
	tmp := t.TempDir()

	err := run(filepath.Join(tmp, "missing.toml"), filepath.Join(tmp, "out.raw"), "", 0, time.Now())
	if err == nil {
		t.Fatalf("expected an error for a missing configuration file")
	}
}
