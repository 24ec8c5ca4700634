// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/go-daq/tdaq/log"

	"github.com/go-lpc/keepalive/config"
	"github.com/go-lpc/keepalive/plan"
	"github.com/go-lpc/keepalive/reasm"
	"github.com/go-lpc/keepalive/refdata"
	"github.com/go-lpc/keepalive/wire"
)

func newTarget(t *testing.T, n int, opts ...Option) (*Target, *refdata.Model, config.Config) {
	t.Helper()

	cfg := config.New(config.WithSensorSamplesSaved(n))
	ds, err := refdata.Uniform(1_000_000, 3*n, 100_000_000, rand.New(rand.NewSource(1234)))
	if err != nil {
		t.Fatalf("could not generate reference data: %+v", err)
	}
	model := refdata.NewModel(ds)

	opts = append([]Option{WithLogger(log.NewMsgStream("sim", log.LvlError, io.Discard))}, opts...)
	tgt, err := New(cfg, model.Clone(), opts...)
	if err != nil {
		t.Fatalf("could not create target: %+v", err)
	}
	return tgt, model, cfg
}

func exchange(t *testing.T, conn net.Conn, id uint8, opts ...reasm.Option) (reasm.Result, error) {
	t.Helper()
	_, err := conn.Write(wire.RequestMessage(wire.Request{MsgID: id}))
	if err != nil {
		t.Fatalf("could not send request: %+v", err)
	}
	return reasm.Receive(context.Background(), conn, time.Second, opts...)
}

func TestReply(t *testing.T) {
	const n = 600
	tgt, model, cfg := newTarget(t, n)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := tgt.Dial(ctx)
	defer conn.Close()

	want, err := plan.Messages(cfg.Layout(), cfg.Counts())
	if err != nil {
		t.Fatalf("could not plan reply: %+v", err)
	}

	for i := 0; i < 3; i++ {
		res, err := exchange(t, conn, uint8(i+1),
			reasm.WithMsgID(uint8(i+1)),
			reasm.WithMaxMessageSize(cfg.MaxMsgSize),
			reasm.WithDeviceCount(refdata.NumSensors),
			reasm.WithExpectedResponses(want),
		)
		if err != nil {
			t.Fatalf("exchange %d: could not receive reply: %+v", i, err)
		}
		if got := res.Messages; got != want {
			t.Fatalf("exchange %d: invalid number of messages: got=%d, want=%d", i, got, want)
		}

		win, err := model.Extract(cfg.Counts())
		if err != nil {
			t.Fatalf("exchange %d: could not extract window: %+v", i, err)
		}
		if !reflect.DeepEqual(res.Samples, win.Values()) {
			t.Fatalf("exchange %d: invalid samples", i)
		}
		if got, want := res.First.Timestamp, uint64(win.Earliest); got != want {
			t.Fatalf("exchange %d: invalid timestamp: got=%d, want=%d", i, got, want)
		}
	}

	// reference data exhausted.
	_, err = conn.Write(wire.RequestMessage(wire.Request{MsgID: 4}))
	if err != nil {
		t.Fatalf("could not send request: %+v", err)
	}
	_, err = reasm.Receive(context.Background(), conn, time.Second)
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestFaults(t *testing.T) {
	for _, tc := range []struct {
		name string
		n    int
		opt  Option
		want error
	}{
		{"crc", 600, WithCorruptCRC(3), wire.ErrCRCMismatch},
		{"swap", 600, WithSwap(), reasm.ErrSequenceMismatch},
		{"stall", 600, WithStall(), reasm.ErrTimeout},
		{"stall-single-message", 10, WithStall(), reasm.ErrTimeout},
		{"msg-id", 600, WithWrongMsgID(), reasm.ErrSequenceMismatch},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tgt, _, _ := newTarget(t, tc.n, tc.opt)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			conn := tgt.Dial(ctx)
			defer conn.Close()

			_, err := conn.Write(wire.RequestMessage(wire.Request{MsgID: 42}))
			if err != nil {
				t.Fatalf("could not send request: %+v", err)
			}
			_, err = reasm.Receive(ctx, conn, 100*time.Millisecond, reasm.WithMsgID(42))
			if !errors.Is(err, tc.want) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.want)
			}
		})
	}
}

func TestStallWithholdsLast(t *testing.T) {
	for _, n := range []int{10, 600} {
		tgt, _, cfg := newTarget(t, n, WithStall())
		want, err := plan.Messages(cfg.Layout(), cfg.Counts())
		if err != nil {
			t.Fatalf("n=%d: could not plan reply: %+v", n, err)
		}
		msgs, err := tgt.messages(1)
		if err != nil {
			t.Fatalf("n=%d: could not build reply: %+v", n, err)
		}
		if got, want := len(msgs), want-1; got != want {
			t.Fatalf("n=%d: invalid number of messages: got=%d, want=%d", n, got, want)
		}
	}
}

func TestServe(t *testing.T) {
	tgt, _, cfg := newTarget(t, 10)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not create listener: %+v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error)
	go func() {
		done <- tgt.Serve(ctx, l)
	}()

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("could not dial target: %+v", err)
	}
	defer conn.Close()

	res, err := exchange(t, conn, 7, reasm.WithExpectedSamples(map[uint8]int{0: 10, 1: 10, 2: 10}))
	if err != nil {
		t.Fatalf("could not receive reply: %+v", err)
	}
	if got, want := res.First.MaxMsgSize, uint16(cfg.MaxMsgSize); got != want {
		t.Fatalf("invalid max message size: got=%d, want=%d", got, want)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("could not serve: %+v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("target did not stop")
	}
}

func TestNewInvalid(t *testing.T) {
	ds, err := refdata.Uniform(0, 10, 1, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("could not generate reference data: %+v", err)
	}
	model := refdata.NewModel(ds)

	_, err = New(config.New(config.WithMaxMsgSize(10)), model)
	if err == nil {
		t.Fatalf("expected an error for an invalid configuration")
	}

	_, err = New(config.New(), model, WithCounts(map[refdata.Sensor]int{refdata.Temp1: 1}))
	if !errors.Is(err, plan.ErrInvalidConfiguration) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, plan.ErrInvalidConfiguration)
	}

	// 300 single-sample messages do not fit the 1-byte response index.
	_, err = New(config.New(config.WithMaxMsgSize(109)), model, WithCounts(map[refdata.Sensor]int{
		refdata.Temp1: 100, refdata.Temp2: 100, refdata.Pressure: 100,
	}))
	if !errors.Is(err, plan.ErrInvalidConfiguration) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, plan.ErrInvalidConfiguration)
	}
}
