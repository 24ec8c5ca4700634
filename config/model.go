// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/go-lpc/keepalive/refdata"
)

// Model generates the reference data model of the configuration from the
// reference seed.
// Processes sharing a configuration with a non-zero reference start
// generate identical models.
func (cfg Config) Model(now time.Time) (*refdata.Model, error) {
	ds, err := refdata.Generate(
		cfg.GenConfig(now),
		rand.New(rand.NewSource(cfg.Reference.Seed)),
	)
	if err != nil {
		return nil, fmt.Errorf("config: could not generate reference data: %w", err)
	}
	return refdata.NewModel(ds), nil
}

// ReadModel reads the reference data model from a raw sample file.
// The hardware channels of the file must match the configuration.
func (cfg Config) ReadModel(r io.Reader, now time.Time) (*refdata.Model, error) {
	ds, chans, err := refdata.ReadSamples(r, cfg.GenConfig(now).Start, cfg.SystemSamplePeriod)
	if err != nil {
		return nil, fmt.Errorf("config: could not read reference data: %w", err)
	}
	for _, s := range refdata.Sensors() {
		if got, want := chans[s], cfg.SensorChannel[s]&0xf; got != want {
			return nil, fmt.Errorf(
				"config: invalid hardware channel for %v (got=%d, want=%d)",
				s, got, want,
			)
		}
	}
	return refdata.NewModel(ds), nil
}
