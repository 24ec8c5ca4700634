// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package oracle drives keep-alive exchanges against a target and checks
// the replies against a reference data model.
package oracle // import "github.com/go-lpc/keepalive/oracle"

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/go-daq/tdaq/log"
	"golang.org/x/xerrors"

	"github.com/go-lpc/keepalive/compare"
	"github.com/go-lpc/keepalive/config"
	"github.com/go-lpc/keepalive/metrics"
	"github.com/go-lpc/keepalive/plan"
	"github.com/go-lpc/keepalive/reasm"
	"github.com/go-lpc/keepalive/refdata"
	"github.com/go-lpc/keepalive/wire"
)

// Conn is a connection to a keep-alive target.
type Conn interface {
	io.ReadWriter
	SetReadDeadline(t time.Time) error
}

// Report describes one keep-alive exchange.
type Report struct {
	MsgID     uint8
	Planned   int           // number of messages predicted by the planner
	Received  int           // number of messages received
	Samples   int           // number of samples checked
	Timestamp int64         // timestamp of the first response, in ns
	Elapsed   time.Duration // time from request to verdict
}

func (rep Report) String() string {
	return fmt.Sprintf(
		"msg-id=%d messages=%d/%d samples=%d timestamp=%d elapsed=%v",
		rep.MsgID, rep.Received, rep.Planned, rep.Samples, rep.Timestamp, rep.Elapsed,
	)
}

// Oracle runs keep-alive exchanges and verifies the replies.
// Exchanges on one Oracle are serialized.
type Oracle struct {
	cfg   config.Config
	model *refdata.Model

	msg     log.MsgStream
	metrics *metrics.Exchange
	timeout time.Duration
	tscheck bool
	msgID   uint8 // fixed msg-id. 0: random.
	tols    []compare.Option
	retries int

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithLogger sets the message stream of the oracle.
func WithLogger(msg log.MsgStream) Option {
	return func(o *Oracle) {
		o.msg = msg
	}
}

// WithMetrics sets the metrics collecting the outcome of each exchange.
func WithMetrics(m *metrics.Exchange) Option {
	return func(o *Oracle) {
		o.metrics = m
	}
}

// WithTimeout sets the per-message receive timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Oracle) {
		o.timeout = d
	}
}

// WithTimestampCheck enables the check that the reply timestamp does not
// come after the first sample of the expected window.
func WithTimestampCheck(v bool) Option {
	return func(o *Oracle) {
		o.tscheck = v
	}
}

// WithMsgID uses a fixed msg-id for all requests.
// A zero id draws a random msg-id for each request.
func WithMsgID(id uint8) Option {
	return func(o *Oracle) {
		o.msgID = id
	}
}

// WithTolerance sets the tolerances used to compare sample values.
func WithTolerance(rtol, atol float64) Option {
	return func(o *Oracle) {
		o.tols = []compare.Option{compare.WithTolerance(rtol, atol)}
	}
}

// WithRetries sets the number of consecutive timed out exchanges Poll
// re-issues before giving up.
func WithRetries(n int) Option {
	return func(o *Oracle) {
		o.retries = n
	}
}

// WithSeed seeds the msg-id generator.
func WithSeed(seed int64) Option {
	return func(o *Oracle) {
		o.rnd = rand.New(rand.NewSource(seed))
	}
}

// New creates an oracle checking replies against model.
func New(cfg config.Config, model *refdata.Model, opts ...Option) (*Oracle, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("oracle: invalid configuration: %w", err)
	}

	o := &Oracle{
		cfg:     cfg,
		model:   model,
		msg:     log.NewMsgStream("ka-oracle", log.LvlInfo, os.Stdout),
		timeout: cfg.Timeout,
		retries: 3,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.timeout <= 0 {
		return nil, xerrors.Errorf("oracle: invalid receive timeout %v", o.timeout)
	}

	return o, nil
}

// Model returns the reference data model of the oracle.
func (o *Oracle) Model() *refdata.Model { return o.model }

func (o *Oracle) nextID() uint8 {
	if o.msgID != 0 {
		return o.msgID
	}
	return uint8(o.rnd.Intn(255) + 1)
}

// Exchange sends one keep-alive request over conn and checks the reply
// against the next window of the reference model.
// A nil counts map uses the sample counts of the configuration.
//
// The model cursor advances once the reply has been reassembled, whether
// the comparison succeeds or not.
func (o *Oracle) Exchange(ctx context.Context, conn Conn, counts map[refdata.Sensor]int) (rep Report, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	defer func() {
		rep.Elapsed = time.Since(start)
		o.metrics.Observe(Kind(err), rep.Elapsed)
	}()

	if counts == nil {
		counts = o.cfg.Counts()
	}

	rep.Planned, err = plan.Messages(o.cfg.Layout(), counts)
	if err != nil {
		return rep, fmt.Errorf("oracle: could not plan reply: %w", err)
	}

	_, err = o.model.Peek(counts)
	if err != nil {
		return rep, fmt.Errorf("oracle: no reference window: %w", err)
	}

	rep.MsgID = o.nextID()
	err = wire.NewEncoder(conn).EncodeRequest(wire.Request{MsgID: rep.MsgID})
	if err != nil {
		return rep, xerrors.Errorf("oracle: could not send keep-alive request: %w", err)
	}

	want := make(map[uint8]int, len(counts))
	for s, n := range counts {
		want[uint8(s)] = n
	}

	res, err := reasm.Receive(
		ctx, conn, o.timeout,
		reasm.WithMsgID(rep.MsgID),
		reasm.WithMaxMessageSize(o.cfg.MaxMsgSize),
		reasm.WithExpectedResponses(rep.Planned),
		reasm.WithDeviceCount(refdata.NumSensors),
		reasm.WithExpectedSamples(want),
	)
	rep.Received = res.Messages
	o.metrics.Received(res.Messages, res.Bytes)
	if err != nil {
		return rep, fmt.Errorf("oracle: msg-id=%d: %w", rep.MsgID, err)
	}
	rep.Timestamp = int64(res.First.Timestamp)

	win, err := o.model.Extract(counts)
	if err != nil {
		return rep, fmt.Errorf("oracle: could not extract reference window: %w", err)
	}

	err = compare.Equal(win.Values(), res.Samples, o.tols...)
	if err != nil {
		return rep, fmt.Errorf("oracle: msg-id=%d: %w", rep.MsgID, err)
	}

	for s, vs := range win.Samples {
		rep.Samples += len(vs)
		o.metrics.Samples(s.Key(), len(vs))
	}

	if o.tscheck && win.First < rep.Timestamp {
		return rep, fmt.Errorf("oracle: msg-id=%d: %w", rep.MsgID, &compare.MismatchError{
			Path:   "timestamp",
			Want:   win.First,
			Got:    rep.Timestamp,
			Reason: "reply timestamp after first sample",
		})
	}

	o.msg.Debugf("exchange: %v", rep)
	return rep, nil
}
