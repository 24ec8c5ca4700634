// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/keepalive/plan"
	"github.com/go-lpc/keepalive/refdata"
)

func TestDefault(t *testing.T) {
	cfg := New()
	err := cfg.Validate()
	if err != nil {
		t.Fatalf("invalid default configuration: %+v", err)
	}
	if got, want := cfg.Addr(), "127.0.0.1:10000"; got != want {
		t.Fatalf("invalid address: got=%q, want=%q", got, want)
	}
	if got, want := cfg.Counts(), map[refdata.Sensor]int{0: 500, 1: 500, 2: 500}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid counts: got=%v, want=%v", got, want)
	}
	if got, want := cfg.Channels(), map[refdata.Sensor]uint8{0: 2, 1: 3, 2: 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid channels: got=%v, want=%v", got, want)
	}
	if got, want := cfg.Layout().MaxMessageSize, 1000; got != want {
		t.Fatalf("invalid layout: got=%d, want=%d", got, want)
	}
}

func TestWriteTarget(t *testing.T) {
	cfg := New(
		WithPort(10001),
		WithSensorSamplesSaved(600),
		WithSystemSamplePeriod(1000000),
		WithFPGA(3000, 1500000000),
		WithSensorPeriod(refdata.Pressure, 100000000),
		WithSensorChannel(refdata.Temp2, 7),
	)

	o := new(strings.Builder)
	err := cfg.WriteTarget(o)
	if err != nil {
		t.Fatalf("could not write target configuration: %+v", err)
	}

	const want = `port = 10001
max_msg_size = 1000
sensor_samples_saved = 600
system_sample_period = 1000000
fpga_buffer_size = 3000
fpga_poll_period = 1500000000
sensor_period[temp_1] = 1000000000
sensor_period[temp_2] = 1000000000
sensor_period[pressure] = 100000000
sensor_channel[temp_1] = 2
sensor_channel[temp_2] = 7
sensor_channel[pressure] = 5
`
	if got := o.String(); got != want {
		t.Fatalf("invalid target configuration:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		opt  Option
		err  string
	}{
		{"port", WithPort(0), "config: invalid port 0"},
		{"port-overflow", WithPort(1 << 16), "config: invalid port 65536"},
		{"max-msg-size", WithMaxMsgSize(108), "config: invalid max message size 108 (min=109, max=65535)"},
		{"max-msg-size-overflow", WithMaxMsgSize(1 << 16), "config: invalid max message size 65536 (min=109, max=65535)"},
		{"samples-saved", WithSensorSamplesSaved(0), "config: invalid number of sensor samples saved 0"},
		{"system-period", WithSystemSamplePeriod(-1), "config: invalid system sample period -1"},
		{"sensor-period", WithSensorPeriod(refdata.Temp2, 0), "config: invalid sample period 0 for Temp2"},
		{"channel", WithSensorChannel(refdata.Pressure, 16), "config: invalid hardware channel 16 for Pressure"},
		{"channel-dup", WithSensorChannel(refdata.Pressure, 2), "config: hardware channel 2 for Pressure already in use"},
		{"timeout", WithTimeout(-time.Second), "config: invalid timeout -1s"},
		{"ticks", WithReference(Reference{Ticks: -1}), "config: invalid number of reference ticks -1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := New(tc.opt).Validate()
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.err; got != want {
				t.Fatalf("invalid error:\ngot= %q\nwant=%q", got, want)
			}
		})
	}
}

func TestValidateMessageCount(t *testing.T) {
	cfg := New(WithMaxMsgSize(109), WithSensorSamplesSaved(85))
	err := cfg.Validate()
	if err != nil {
		t.Fatalf("invalid configuration: %+v", err)
	}

	cfg = New(WithMaxMsgSize(109), WithSensorSamplesSaved(100))
	err = cfg.Validate()
	if !errors.Is(err, plan.ErrInvalidConfiguration) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, plan.ErrInvalidConfiguration)
	}
}

func TestLoad(t *testing.T) {
	tmp := t.TempDir()

	for _, tc := range []struct {
		name string
		toml string
		want Config
		err  bool
	}{
		{
			name: "empty",
			toml: "",
			want: Default(),
		},
		{
			name: "full",
			toml: `
address = " 10.0.0.2 "
port = 10002
max_msg_size = 2000
sensor_samples_saved = 600
system_sample_period = 1000000
fpga_buffer_size = 3000
fpga_poll_period = 1500000000
timeout = "500ms"

[sensor_period]
temp_1 = 100000000
pressure = 200000000

[sensor_channel]
temp_2 = 9

[reference]
seed = 42
start = 1000
ticks = 120000
`,
			want: New(
				WithAddress("10.0.0.2"),
				WithPort(10002),
				WithMaxMsgSize(2000),
				WithSensorSamplesSaved(600),
				WithSystemSamplePeriod(1000000),
				WithFPGA(3000, 1500000000),
				WithTimeout(500*time.Millisecond),
				WithSensorPeriod(refdata.Temp1, 100000000),
				WithSensorPeriod(refdata.Pressure, 200000000),
				WithSensorChannel(refdata.Temp2, 9),
				WithReference(Reference{Seed: 42, Start: 1000, Ticks: 120000}),
			),
		},
		{
			name: "invalid-toml",
			toml: "port = ",
			err:  true,
		},
		{
			name: "unknown-key",
			toml: "ports = 1",
			err:  true,
		},
		{
			name: "unknown-sensor",
			toml: "[sensor_period]\nhumidity = 1",
			err:  true,
		},
		{
			name: "invalid-timeout",
			toml: `timeout = "forever"`,
			err:  true,
		},
		{
			name: "invalid-value",
			toml: "max_msg_size = 10",
			err:  true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fname := filepath.Join(tmp, tc.name+".toml")
			err := os.WriteFile(fname, []byte(tc.toml), 0644)
			if err != nil {
				t.Fatalf("could not create config file: %+v", err)
			}

			got, err := Load(fname)
			if tc.err {
				if err == nil {
					t.Fatalf("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("could not load config: %+v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid config:\ngot= %+v\nwant=%+v", got, tc.want)
			}
		})
	}

	_, err := Load(filepath.Join(tmp, "not-there.toml"))
	if err == nil {
		t.Fatalf("expected an error loading a missing file")
	}
}

func TestGenConfig(t *testing.T) {
	cfg := New(
		WithSystemSamplePeriod(1000),
		WithReference(Reference{Ticks: 10}),
	)
	now := time.Unix(0, 1_000_000)
	gen := cfg.GenConfig(now)
	if got, want := gen.Start, int64(1_000_000-10*1000); got != want {
		t.Fatalf("invalid start: got=%d, want=%d", got, want)
	}
	if got, want := gen.SensorPeriod[refdata.Pressure], int64(1e9); got != want {
		t.Fatalf("invalid sensor period: got=%d, want=%d", got, want)
	}

	cfg.Reference.Start = 42
	if got, want := cfg.GenConfig(now).Start, int64(42); got != want {
		t.Fatalf("invalid explicit start: got=%d, want=%d", got, want)
	}
}

func TestModel(t *testing.T) {
	cfg := New(
		WithSystemSamplePeriod(1000),
		WithSensorPeriod(refdata.Temp1, 3000),
		WithSensorPeriod(refdata.Temp2, 3000),
		WithSensorPeriod(refdata.Pressure, 3000),
		WithReference(Reference{Seed: 1, Start: 1000, Ticks: 30}),
	)
	counts := map[refdata.Sensor]int{refdata.Temp1: 10, refdata.Temp2: 10, refdata.Pressure: 10}

	m1, err := cfg.Model(time.Now())
	if err != nil {
		t.Fatalf("could not generate model: %+v", err)
	}
	m2, err := cfg.Model(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("could not generate model: %+v", err)
	}

	w1, err := m1.Peek(counts)
	if err != nil {
		t.Fatalf("could not peek window: %+v", err)
	}
	w2, err := m2.Peek(counts)
	if err != nil {
		t.Fatalf("could not peek window: %+v", err)
	}
	if !reflect.DeepEqual(w1, w2) {
		t.Fatalf("models differ:\ngot= %v\nwant=%v", w2, w1)
	}

	buf := new(bytes.Buffer)
	err = m1.Data().WriteSamples(buf, cfg.Channels())
	if err != nil {
		t.Fatalf("could not write samples: %+v", err)
	}
	raw := buf.Bytes()

	m3, err := cfg.ReadModel(bytes.NewReader(raw), time.Now())
	if err != nil {
		t.Fatalf("could not read model: %+v", err)
	}
	w3, err := m3.Peek(counts)
	if err != nil {
		t.Fatalf("could not peek window: %+v", err)
	}
	if got, want := w3.Values(), w1.Values(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid values:\ngot= %v\nwant=%v", got, want)
	}

	bad := cfg
	bad.SensorChannel[refdata.Temp1] = 7
	_, err = bad.ReadModel(bytes.NewReader(raw), time.Now())
	if err == nil {
		t.Fatalf("expected an error for mismatched hardware channels")
	}

	_, err = New(WithReference(Reference{Ticks: 0})).Model(time.Now())
	if err == nil {
		t.Fatalf("expected an error for an empty reference")
	}
}
