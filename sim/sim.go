// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sim implements a simulated keep-alive target, replying to
// keep-alive requests with windows of a reference data set.
package sim // import "github.com/go-lpc/keepalive/sim"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/go-daq/tdaq/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/go-lpc/keepalive/config"
	"github.com/go-lpc/keepalive/plan"
	"github.com/go-lpc/keepalive/refdata"
	"github.com/go-lpc/keepalive/wire"
)

// Target is a simulated keep-alive target.
type Target struct {
	cfg    config.Config
	model  *refdata.Model
	counts map[refdata.Sensor]int
	msg    log.MsgStream

	mu sync.Mutex // serializes replies

	faults struct {
		crc   int  // index of the message with a corrupted CRC. -1: none.
		swap  bool // swap the first two messages of a reply
		stall bool // withhold the last message of a reply
		msgID bool // echo a wrong msg-id
	}
}

// Option configures a Target.
type Option func(*Target)

// WithLogger sets the message stream of the target.
func WithLogger(msg log.MsgStream) Option {
	return func(tgt *Target) {
		tgt.msg = msg
	}
}

// WithCounts sets the number of samples per sensor sent in each reply.
func WithCounts(counts map[refdata.Sensor]int) Option {
	return func(tgt *Target) {
		tgt.counts = make(map[refdata.Sensor]int, len(counts))
		for k, v := range counts {
			tgt.counts[k] = v
		}
	}
}

// WithCorruptCRC corrupts the CRC of the i-th message of each reply.
func WithCorruptCRC(i int) Option {
	return func(tgt *Target) {
		tgt.faults.crc = i
	}
}

// WithSwap swaps the first two messages of each reply.
func WithSwap() Option {
	return func(tgt *Target) {
		tgt.faults.swap = true
	}
}

// WithStall withholds the last message of each reply.
// A single-message reply is not sent at all.
func WithStall() Option {
	return func(tgt *Target) {
		tgt.faults.stall = true
	}
}

// WithWrongMsgID replies with a msg-id different from the requested one.
func WithWrongMsgID() Option {
	return func(tgt *Target) {
		tgt.faults.msgID = true
	}
}

// New creates a simulated target replying with windows of model, with
// cfg.SensorSamplesSaved samples per sensor.
func New(cfg config.Config, model *refdata.Model, opts ...Option) (*Target, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("sim: invalid configuration: %w", err)
	}

	tgt := &Target{
		cfg:    cfg,
		model:  model,
		counts: cfg.Counts(),
		msg:    log.NewMsgStream("ka-sim", log.LvlInfo, os.Stdout),
	}
	tgt.faults.crc = -1

	for _, opt := range opts {
		opt(tgt)
	}

	_, err = plan.Pack(cfg.Layout(), tgt.counts)
	if err != nil {
		return nil, fmt.Errorf("sim: invalid sample counts: %w", err)
	}

	return tgt, nil
}

// Serve accepts connections on l and handles them until ctx is done.
func (tgt *Target) Serve(ctx context.Context, l net.Listener) error {
	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		<-ctx.Done()
		_ = l.Close()
		return nil
	})
	grp.Go(func() error {
		for {
			conn, err := l.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("sim: could not accept connection: %w", err)
			}
			tgt.msg.Infof("new connection from %v", conn.RemoteAddr())
			grp.Go(func() error {
				defer conn.Close()
				done := make(chan struct{})
				defer close(done)
				go func() {
					select {
					case <-ctx.Done():
						_ = conn.Close()
					case <-done:
					}
				}()
				err := tgt.Handle(ctx, conn)
				if err != nil {
					tgt.msg.Errorf("could not handle connection from %v: %+v", conn.RemoteAddr(), err)
				}
				return nil
			})
		}
	})

	return grp.Wait()
}

// Handle replies to the keep-alive requests read from conn, until the
// connection is closed or ctx is done.
func (tgt *Target) Handle(ctx context.Context, conn io.ReadWriter) error {
	dec := wire.NewDecoder(conn)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		msg, err := dec.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return xerrors.Errorf("sim: could not read request: %w", err)
		}

		if msg.Header.Command != wire.CmdKeepAlive {
			tgt.msg.Warnf("ignoring %v request", msg.Header.Command)
			continue
		}

		var req wire.Request
		err = req.UnmarshalBinary(msg.Body)
		if err != nil {
			return xerrors.Errorf("sim: could not decode keep-alive request: %w", err)
		}

		err = tgt.Reply(conn, req.MsgID)
		if err != nil {
			return err
		}
	}
}

// Dial returns the client end of an in-memory connection to the target.
// The connection is served until it is closed or ctx is done.
func (tgt *Target) Dial(ctx context.Context) net.Conn {
	srv, cli := net.Pipe()
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = srv.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(done)
		defer srv.Close()
		err := tgt.Handle(ctx, srv)
		if err != nil {
			tgt.msg.Errorf("could not handle in-memory connection: %+v", err)
		}
	}()
	return cli
}

// Reply writes the keep-alive reply to msgID, made of the next window of
// the reference data set.
func (tgt *Target) Reply(w io.Writer, msgID uint8) error {
	tgt.mu.Lock()
	defer tgt.mu.Unlock()

	msgs, err := tgt.messages(msgID)
	if err != nil {
		return err
	}

	for i, raw := range msgs {
		_, err = w.Write(raw)
		if err != nil {
			return xerrors.Errorf("sim: could not send message %d/%d: %w", i, len(msgs), err)
		}
	}
	return nil
}

func (tgt *Target) messages(msgID uint8) ([][]byte, error) {
	chunks, err := plan.Pack(tgt.cfg.Layout(), tgt.counts)
	if err != nil {
		return nil, fmt.Errorf("sim: could not pack reply: %w", err)
	}

	win, err := tgt.model.Extract(tgt.counts)
	if err != nil {
		return nil, fmt.Errorf("sim: could not extract reply window: %w", err)
	}

	if tgt.faults.msgID {
		msgID++
	}

	var (
		msgs = make([][]byte, len(chunks))
		offs = make(map[refdata.Sensor]int, len(tgt.counts))
	)
	for i, msg := range chunks {
		resp := wire.Response{
			Index:      uint8(i),
			Total:      uint8(len(chunks)),
			MsgID:      msgID,
			Timestamp:  uint64(win.Earliest),
			MaxMsgSize: uint16(tgt.cfg.MaxMsgSize),
			Devices:    uint8(refdata.NumSensors),
		}
		recs := make([]wire.Record, len(msg))
		for j, c := range msg {
			beg := offs[c.Sensor]
			end := beg + c.Samples
			vs := make([]float64, 0, c.Samples)
			for _, v := range win.Samples[c.Sensor][beg:end] {
				vs = append(vs, v.Value)
			}
			offs[c.Sensor] = end
			recs[j] = wire.Record{
				DeviceID: uint8(c.Sensor),
				Data:     wire.EncodeSamples(vs),
			}
		}
		msgs[i] = wire.ResponseMessage(resp, recs)
	}
	tgt.msg.Debugf(
		"reply to msg-id=%d: %d message(s), timestamp=%d",
		msgID, len(msgs), win.Earliest,
	)

	if i := tgt.faults.crc; 0 <= i && i < len(msgs) {
		msgs[i][len(msgs[i])-1] ^= 0xff
	}
	if tgt.faults.swap && len(msgs) > 1 {
		msgs[0], msgs[1] = msgs[1], msgs[0]
	}
	if tgt.faults.stall {
		msgs = msgs[:len(msgs)-1]
	}

	return msgs, nil
}
