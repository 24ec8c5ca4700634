// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/keepalive/wire"
)

func TestProcess(t *testing.T) {
	tmp := t.TempDir()

	var (
		req  = wire.RequestMessage(wire.Request{MsgID: 42})
		resp = wire.ResponseMessage(
			wire.Response{
				Index:      0,
				Total:      1,
				MsgID:      42,
				Timestamp:  1000000,
				MaxMsgSize: 1000,
				Devices:    3,
			},
			[]wire.Record{
				{DeviceID: 0, Data: wire.EncodeSamples([]float64{1.5, 2.5})},
				{DeviceID: 2, Data: wire.EncodeSamples([]float64{3})},
			},
		)
		corrupt = append([]byte(nil), resp...)
	)
	corrupt[len(corrupt)-1] ^= 0xff

	for _, tc := range []struct {
		name   string
		data   []byte
		values bool
		want   string
		err    error
	}{
		{
			name:   "request-response",
			data:   append(append([]byte(nil), req...), resp...),
			values: true,
			want: `=== message 0 ===
command:    KEEP_ALIVE
length:             13
crc:       0xf28a717c
request:   msg-id=42
=== message 1 ===
command:    KEEP_ALIVE
length:            162
crc:       0x24979902
response:  msg-id=42 index=0/1
timestamp:     1000000
max-size:         1000
devices:             3
  device=0 size=     16 samples=     2
    1.5
    2.5
  device=2 size=      8 samples=     1
    3
`,
		},
		{
			name: "no-values",
			data: resp,
			want: `=== message 0 ===
command:    KEEP_ALIVE
length:            162
crc:       0x24979902
response:  msg-id=42 index=0/1
timestamp:     1000000
max-size:         1000
devices:             3
  device=0 size=     16 samples=     2
  device=2 size=      8 samples=     1
`,
		},
		{
			name: "empty",
			data: nil,
			want: "",
		},
		{
			name: "corrupted-crc",
			data: append(append([]byte(nil), req...), corrupt...),
			err:  wire.ErrCRCMismatch,
		},
		{
			name: "truncated",
			data: req[:len(req)-2],
			err:  wire.ErrMalformedFrame,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fname := filepath.Join(tmp, tc.name+".raw")
			err := os.WriteFile(fname, tc.data, 0644)
			if err != nil {
				t.Fatalf("could not create capture file: %+v", err)
			}

			out := new(strings.Builder)
			err = process(out, fname, 0, tc.values)
			switch {
			case err != nil && tc.err != nil:
				if !errors.Is(err, tc.err) {
					t.Fatalf("invalid error:\ngot= %v\nwant=%v\n", err, tc.err)
				}
			case err != nil && tc.err == nil:
				t.Fatalf("could not ka-dump: %+v", err)
			case err == nil && tc.err == nil:
				if got, want := out.String(), tc.want; got != want {
					t.Fatalf("invalid ka-dump output:\ngot:\n%s\nwant:\n%s\n", got, want)
				}
			case err == nil && tc.err != nil:
				t.Fatalf("invalid error:\ngot= %v\nwant=%v\n", err, tc.err)
			}
		})
	}
}

func TestProcessMissingFile(t *testing.T) {
	err := process(new(strings.Builder), filepath.Join(t.TempDir(), "missing.raw"), 0, false)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, os.ErrNotExist)
	}
}
