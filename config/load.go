// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-lpc/keepalive/refdata"
)

// file maps the keys of a TOML configuration file.
type file struct {
	Address            string           `toml:"address"`
	Port               int              `toml:"port"`
	MaxMsgSize         int              `toml:"max_msg_size"`
	SensorSamplesSaved int              `toml:"sensor_samples_saved"`
	SystemSamplePeriod int64            `toml:"system_sample_period"`
	FPGABufferSize     int              `toml:"fpga_buffer_size"`
	FPGAPollPeriod     int64            `toml:"fpga_poll_period"`
	SensorPeriod       map[string]int64 `toml:"sensor_period"`
	SensorChannel      map[string]uint8 `toml:"sensor_channel"`
	Timeout            string           `toml:"timeout"`
	Reference          struct {
		Seed  int64 `toml:"seed"`
		Start int64 `toml:"start"`
		Ticks int   `toml:"ticks"`
	} `toml:"reference"`
}

// Load loads a TOML configuration file on top of the default configuration,
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw file
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: could not decode %q: %w", path, err)
	}
	if keys := meta.Undecoded(); len(keys) > 0 {
		return Config{}, fmt.Errorf("config: unknown keys in %q: %v", path, keys)
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("max_msg_size") {
		cfg.MaxMsgSize = raw.MaxMsgSize
	}
	if meta.IsDefined("sensor_samples_saved") {
		cfg.SensorSamplesSaved = raw.SensorSamplesSaved
	}
	if meta.IsDefined("system_sample_period") {
		cfg.SystemSamplePeriod = raw.SystemSamplePeriod
	}
	if meta.IsDefined("fpga_buffer_size") {
		cfg.FPGABufferSize = raw.FPGABufferSize
	}
	if meta.IsDefined("fpga_poll_period") {
		cfg.FPGAPollPeriod = raw.FPGAPollPeriod
	}
	for k, v := range raw.SensorPeriod {
		s, err := refdata.ParseSensor(k)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid sensor_period key: %w", err)
		}
		cfg.SensorPeriod[s] = v
	}
	for k, v := range raw.SensorChannel {
		s, err := refdata.ParseSensor(k)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid sensor_channel key: %w", err)
		}
		cfg.SensorChannel[s] = v
	}
	if meta.IsDefined("timeout") {
		cfg.Timeout, err = time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid timeout: %w", err)
		}
	}
	if meta.IsDefined("reference", "seed") {
		cfg.Reference.Seed = raw.Reference.Seed
	}
	if meta.IsDefined("reference", "start") {
		cfg.Reference.Start = raw.Reference.Start
	}
	if meta.IsDefined("reference", "ticks") {
		cfg.Reference.Ticks = raw.Reference.Ticks
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid configuration in %q: %w", path, err)
	}
	return cfg, nil
}
