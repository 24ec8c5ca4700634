// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reasm reassembles a logical keep-alive reply from the sequence
// of physical messages it is split into.
package reasm // import "github.com/go-lpc/keepalive/reasm"

import (
	"fmt"
	"sort"

	"github.com/go-lpc/keepalive/wire"
	"golang.org/x/xerrors"
)

// State is the state of a Reassembler.
type State uint8

const (
	AwaitingFirst State = iota
	Accumulating
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingFirst:
		return "awaiting-first"
	case Accumulating:
		return "accumulating"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

type config struct {
	max     int           // max message size. 0: unchecked.
	msgID   uint8         // expected msg-id. 0: any.
	total   int           // expected number of responses. 0: from first.
	devices int           // expected device count. 0: unchecked.
	samples map[uint8]int // expected samples per device. nil: unchecked.
}

// Option configures a Reassembler.
type Option func(*config)

// WithMaxMessageSize sets the configured maximum message size.
// Each message must fit in it, and each response must advertise it.
func WithMaxMessageSize(n int) Option {
	return func(cfg *config) {
		cfg.max = n
	}
}

// WithMsgID sets the msg-id each response must echo.
// A zero msg-id accepts any.
func WithMsgID(id uint8) Option {
	return func(cfg *config) {
		cfg.msgID = id
	}
}

// WithExpectedResponses sets the number of physical messages of the reply.
// When zero, it is taken from the first response.
func WithExpectedResponses(n int) Option {
	return func(cfg *config) {
		cfg.total = n
	}
}

// WithDeviceCount sets the device count each response must advertise.
func WithDeviceCount(n int) Option {
	return func(cfg *config) {
		cfg.devices = n
	}
}

// WithExpectedSamples sets the number of samples expected per device.
func WithExpectedSamples(counts map[uint8]int) Option {
	return func(cfg *config) {
		cfg.samples = make(map[uint8]int, len(counts))
		for k, v := range counts {
			cfg.samples[k] = v
		}
	}
}

// Result is a reassembled keep-alive reply.
type Result struct {
	First    wire.Response       // first response of the reply
	Messages int                 // number of physical messages
	Bytes    int                 // number of bytes received, headers and CRCs included
	Samples  map[uint8][]float64 // samples per device, in arrival order
}

// Reassembler accumulates the sensor payloads of consecutive physical
// messages of one keep-alive reply.
type Reassembler struct {
	cfg   config
	state State
	err   error

	first wire.Response
	total int // number of messages of the reply
	next  int // index of the next expected message
	bytes int

	bufs map[uint8][]byte // raw payload per device
	res  Result
}

// New returns a reassembler awaiting the first message of a reply.
func New(opts ...Option) *Reassembler {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Reassembler{
		cfg:  cfg,
		bufs: make(map[uint8][]byte),
	}
}

// State returns the current state.
func (r *Reassembler) State() State { return r.state }

// Err returns the error that made the reassembly fail, if any.
func (r *Reassembler) Err() error { return r.err }

// Done reports whether the reassembly completed or failed.
func (r *Reassembler) Done() bool {
	return r.state == Complete || r.state == Failed
}

// Result returns the reassembled reply.
func (r *Reassembler) Result() (Result, error) {
	switch r.state {
	case Complete:
		return r.res, nil
	case Failed:
		return Result{}, r.err
	default:
		return Result{}, xerrors.Errorf(
			"reasm: reply not complete (state=%v, messages=%d/%d)",
			r.state, r.next, r.total,
		)
	}
}

// partial returns the counters of an incomplete reply.
func (r *Reassembler) partial() Result {
	return Result{First: r.first, Messages: r.next, Bytes: r.bytes}
}

func (r *Reassembler) fail(err error) error {
	r.state = Failed
	r.err = xerrors.Errorf("reasm: message %d: %w", r.next, err)
	r.bufs = nil
	return r.err
}

// Feed consumes the next physical message of the reply.
func (r *Reassembler) Feed(msg wire.Message) error {
	switch r.state {
	case Complete:
		return xerrors.Errorf("reasm: message received after completion")
	case Failed:
		return r.err
	}

	hdr := msg.Header
	switch {
	case hdr.Command != wire.CmdKeepAlive:
		return r.fail(&wire.FrameError{
			Msg: fmt.Sprintf("unexpected command %v", hdr.Command),
		})
	case r.cfg.max > 0 && wire.HeaderSize+int(hdr.Length) > r.cfg.max:
		return r.fail(&wire.FrameError{
			Msg: fmt.Sprintf(
				"message too large (got=%d, max=%d)",
				wire.HeaderSize+int(hdr.Length), r.cfg.max,
			),
		})
	case int(hdr.Length) != len(msg.Body)+wire.CRCSize:
		return r.fail(&wire.FrameError{
			Msg: fmt.Sprintf(
				"header length inconsistent with body (got=%d, want=%d)",
				len(msg.Body)+wire.CRCSize, hdr.Length,
			),
		})
	}

	resp, recs, err := wire.ParseResponse(msg.Body)
	if err != nil {
		return r.fail(err)
	}

	if r.cfg.msgID != 0 && resp.MsgID != r.cfg.msgID {
		return r.fail(&SequenceError{"msg-id", int(r.cfg.msgID), int(resp.MsgID)})
	}

	if int(resp.Index) != r.next {
		return r.fail(&SequenceError{"response index", r.next, int(resp.Index)})
	}

	switch r.state {
	case AwaitingFirst:
		err = r.setup(resp)
		if err != nil {
			return r.fail(err)
		}
		r.state = Accumulating

	case Accumulating:
		switch {
		case int(resp.Total) != r.total:
			return r.fail(&SequenceError{"total responses", r.total, int(resp.Total)})
		case resp.MaxMsgSize != r.first.MaxMsgSize:
			return r.fail(&SequenceError{
				"max message size", int(r.first.MaxMsgSize), int(resp.MaxMsgSize),
			})
		case resp.Devices != r.first.Devices:
			return r.fail(&SequenceError{
				"device count", int(r.first.Devices), int(resp.Devices),
			})
		}
	}

	for _, rec := range recs {
		r.bufs[rec.DeviceID] = append(r.bufs[rec.DeviceID], rec.Data...)
	}
	r.next++
	r.bytes += wire.HeaderSize + int(hdr.Length)

	if r.next < r.total {
		return nil
	}

	return r.complete()
}

func (r *Reassembler) setup(resp wire.Response) error {
	switch {
	case resp.Total == 0:
		return &SequenceError{"total responses", 1, 0}
	case r.cfg.total > 0 && int(resp.Total) != r.cfg.total:
		return &SequenceError{"total responses", r.cfg.total, int(resp.Total)}
	case r.cfg.max > 0 && int(resp.MaxMsgSize) != r.cfg.max:
		return &SequenceError{"max message size", r.cfg.max, int(resp.MaxMsgSize)}
	case r.cfg.devices > 0 && int(resp.Devices) != r.cfg.devices:
		return &SequenceError{"device count", r.cfg.devices, int(resp.Devices)}
	}
	r.first = resp
	r.total = int(resp.Total)
	return nil
}

func (r *Reassembler) complete() error {
	ids := make([]int, 0, len(r.bufs))
	for id := range r.bufs {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	samples := make(map[uint8][]float64, len(r.bufs))
	for _, i := range ids {
		id := uint8(i)
		vs, err := wire.DecodeSamples(r.bufs[id])
		if err != nil {
			return r.fail(xerrors.Errorf("could not decode samples of device %d: %w", id, err))
		}
		if r.cfg.samples != nil {
			want, ok := r.cfg.samples[id]
			if !ok {
				return r.fail(&SampleCountError{Device: id, Want: 0, Got: len(vs)})
			}
			if len(vs) != want {
				return r.fail(&SampleCountError{Device: id, Want: want, Got: len(vs)})
			}
		}
		samples[id] = vs
	}
	for id, want := range r.cfg.samples {
		if _, ok := samples[id]; !ok && want > 0 {
			return r.fail(&SampleCountError{Device: id, Want: want, Got: 0})
		}
	}

	r.state = Complete
	r.bufs = nil
	r.res = Result{
		First:    r.first,
		Messages: r.next,
		Bytes:    r.bytes,
		Samples:  samples,
	}
	return nil
}
