// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the configuration shared by the keep-alive oracle
// and the target under test.
package config // import "github.com/go-lpc/keepalive/config"

import (
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/go-lpc/keepalive/plan"
	"github.com/go-lpc/keepalive/refdata"
)

// Config is the configuration of a keep-alive test.
type Config struct {
	Address string // address of the target
	Port    int    // port of the target

	MaxMsgSize         int   // maximum size of a physical message, in bytes
	SensorSamplesSaved int   // samples per sensor maintained by the target
	SystemSamplePeriod int64 // time between two FPGA samples, in ns
	FPGABufferSize     int   // size of the FPGA raw sample buffer, in bytes
	FPGAPollPeriod     int64 // time between two FPGA buffer reads, in ns

	SensorPeriod  [refdata.NumSensors]int64 // sample period per sensor, in ns
	SensorChannel [refdata.NumSensors]uint8 // hardware channel per sensor

	Timeout time.Duration // time allowed to receive one physical message

	Reference Reference
}

// Reference describes how the reference data set is generated.
type Reference struct {
	Seed  int64 // seed of the random raw values
	Start int64 // timestamp of the first system tick, in ns. 0: now.
	Ticks int   // number of system ticks
}

// Option configures a Config.
type Option func(*Config)

// Default returns the default configuration, matching the defaults of the
// target application.
func Default() Config {
	return Config{
		Address:            "127.0.0.1",
		Port:               10000,
		MaxMsgSize:         1000,
		SensorSamplesSaved: 500,
		SystemSamplePeriod: 5000,
		FPGABufferSize:     24000,
		FPGAPollPeriod:     500000000,
		SensorPeriod:       [refdata.NumSensors]int64{1e9, 1e9, 1e9},
		SensorChannel:      [refdata.NumSensors]uint8{2, 3, 5},
		Timeout:            5 * time.Second,
		Reference: Reference{
			Seed:  1234,
			Ticks: 120 * 1e9 / 5000,
		},
	}
}

// New returns the default configuration modified by opts.
func New(opts ...Option) Config {
	cfg := Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func WithAddress(addr string) Option {
	return func(cfg *Config) {
		cfg.Address = addr
	}
}

func WithPort(port int) Option {
	return func(cfg *Config) {
		cfg.Port = port
	}
}

func WithMaxMsgSize(n int) Option {
	return func(cfg *Config) {
		cfg.MaxMsgSize = n
	}
}

func WithSensorSamplesSaved(n int) Option {
	return func(cfg *Config) {
		cfg.SensorSamplesSaved = n
	}
}

func WithSystemSamplePeriod(ns int64) Option {
	return func(cfg *Config) {
		cfg.SystemSamplePeriod = ns
	}
}

func WithFPGA(bufSize int, pollPeriod int64) Option {
	return func(cfg *Config) {
		cfg.FPGABufferSize = bufSize
		cfg.FPGAPollPeriod = pollPeriod
	}
}

// WithSensorPeriod sets the sample period of s, in ns.
func WithSensorPeriod(s refdata.Sensor, ns int64) Option {
	return func(cfg *Config) {
		cfg.SensorPeriod[s] = ns
	}
}

// WithSensorChannel sets the hardware channel of s.
func WithSensorChannel(s refdata.Sensor, ch uint8) Option {
	return func(cfg *Config) {
		cfg.SensorChannel[s] = ch
	}
}

func WithTimeout(d time.Duration) Option {
	return func(cfg *Config) {
		cfg.Timeout = d
	}
}

func WithReference(ref Reference) Option {
	return func(cfg *Config) {
		cfg.Reference = ref
	}
}

// Validate checks the configuration is consistent.
func (cfg Config) Validate() error {
	min := plan.DefaultLayout(0).MinMessageSize()
	switch {
	case cfg.Port <= 0 || cfg.Port > math.MaxUint16:
		return fmt.Errorf("config: invalid port %d", cfg.Port)
	case cfg.MaxMsgSize < min || cfg.MaxMsgSize > math.MaxUint16:
		return fmt.Errorf(
			"config: invalid max message size %d (min=%d, max=%d)",
			cfg.MaxMsgSize, min, math.MaxUint16,
		)
	case cfg.SensorSamplesSaved <= 0:
		return fmt.Errorf("config: invalid number of sensor samples saved %d", cfg.SensorSamplesSaved)
	case cfg.SystemSamplePeriod <= 0:
		return fmt.Errorf("config: invalid system sample period %d", cfg.SystemSamplePeriod)
	case cfg.FPGABufferSize < 0:
		return fmt.Errorf("config: invalid FPGA buffer size %d", cfg.FPGABufferSize)
	case cfg.FPGAPollPeriod < 0:
		return fmt.Errorf("config: invalid FPGA poll period %d", cfg.FPGAPollPeriod)
	case cfg.Timeout < 0:
		return fmt.Errorf("config: invalid timeout %v", cfg.Timeout)
	case cfg.Reference.Ticks < 0:
		return fmt.Errorf("config: invalid number of reference ticks %d", cfg.Reference.Ticks)
	}

	var chans [16]bool
	for _, s := range refdata.Sensors() {
		if cfg.SensorPeriod[s] <= 0 {
			return fmt.Errorf("config: invalid sample period %d for %v", cfg.SensorPeriod[s], s)
		}
		ch := cfg.SensorChannel[s]
		if int(ch) >= len(chans) {
			return fmt.Errorf("config: invalid hardware channel %d for %v", ch, s)
		}
		if chans[ch] {
			return fmt.Errorf("config: hardware channel %d for %v already in use", ch, s)
		}
		chans[ch] = true
	}

	_, err := plan.Messages(cfg.Layout(), cfg.Counts())
	if err != nil {
		return fmt.Errorf("config: invalid reply layout: %w", err)
	}
	return nil
}

// Addr returns the host:port address of the target.
func (cfg Config) Addr() string {
	return net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))
}

// Counts returns the number of samples per sensor expected in one
// keep-alive reply.
func (cfg Config) Counts() map[refdata.Sensor]int {
	o := make(map[refdata.Sensor]int, refdata.NumSensors)
	for _, s := range refdata.Sensors() {
		o[s] = cfg.SensorSamplesSaved
	}
	return o
}

// Channels returns the hardware channel of each sensor.
func (cfg Config) Channels() map[refdata.Sensor]uint8 {
	o := make(map[refdata.Sensor]uint8, refdata.NumSensors)
	for _, s := range refdata.Sensors() {
		o[s] = cfg.SensorChannel[s]
	}
	return o
}

// Layout returns the packing layout of keep-alive replies.
func (cfg Config) Layout() plan.Layout {
	return plan.DefaultLayout(cfg.MaxMsgSize)
}

// GenConfig returns the configuration of the reference data generator.
// A zero reference start is replaced by now.
func (cfg Config) GenConfig(now time.Time) refdata.GenConfig {
	start := cfg.Reference.Start
	if start == 0 {
		start = now.UnixNano() - int64(cfg.Reference.Ticks)*cfg.SystemSamplePeriod
	}
	gen := refdata.GenConfig{
		Start:        start,
		Ticks:        cfg.Reference.Ticks,
		SystemPeriod: cfg.SystemSamplePeriod,
		SensorPeriod: make(map[refdata.Sensor]int64, refdata.NumSensors),
	}
	for _, s := range refdata.Sensors() {
		gen.SensorPeriod[s] = cfg.SensorPeriod[s]
	}
	return gen
}

// WriteTarget writes the configuration file of the target application,
// one "key = value" line per setting.
func (cfg Config) WriteTarget(w io.Writer) error {
	type kv struct {
		k string
		v any
	}
	kvs := []kv{
		{"port", cfg.Port},
		{"max_msg_size", cfg.MaxMsgSize},
		{"sensor_samples_saved", cfg.SensorSamplesSaved},
		{"system_sample_period", cfg.SystemSamplePeriod},
		{"fpga_buffer_size", cfg.FPGABufferSize},
		{"fpga_poll_period", cfg.FPGAPollPeriod},
	}
	for _, s := range refdata.Sensors() {
		kvs = append(kvs, kv{"sensor_period[" + s.Key() + "]", cfg.SensorPeriod[s]})
	}
	for _, s := range refdata.Sensors() {
		kvs = append(kvs, kv{"sensor_channel[" + s.Key() + "]", cfg.SensorChannel[s]})
	}

	for _, kv := range kvs {
		_, err := fmt.Fprintf(w, "%s = %v\n", kv.k, kv.v)
		if err != nil {
			return fmt.Errorf("config: could not write %q: %w", kv.k, err)
		}
	}
	return nil
}
