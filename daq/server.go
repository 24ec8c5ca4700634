// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daq exposes a keep-alive oracle as a go-daq/tdaq process.
package daq // import "github.com/go-lpc/keepalive/daq"

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	"golang.org/x/xerrors"

	"github.com/go-lpc/keepalive/config"
	"github.com/go-lpc/keepalive/metrics"
	"github.com/go-lpc/keepalive/oracle"
	"github.com/go-lpc/keepalive/refdata"
)

// Dialer connects to a keep-alive target.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

// Server runs keep-alive exchanges during a tdaq run and publishes one
// status per exchange.
type Server struct {
	name    string
	cfgFile string
	refFile string
	period  time.Duration
	dial    Dialer
	metrics *metrics.Exchange

	cfg config.Config
	orc *oracle.Oracle

	mu    sync.Mutex
	conn  net.Conn
	data  chan []byte
	n     int // number of exchanges
	nfail int // number of failed exchanges
}

// Option configures a Server.
type Option func(*Server)

// WithConfig sets the path to the TOML configuration file.
func WithConfig(fname string) Option {
	return func(srv *Server) {
		srv.cfgFile = fname
	}
}

// WithReference sets the path to the raw sample file of the reference data.
func WithReference(fname string) Option {
	return func(srv *Server) {
		srv.refFile = fname
	}
}

// WithPeriod sets the time between two exchanges.
func WithPeriod(d time.Duration) Option {
	return func(srv *Server) {
		srv.period = d
	}
}

// WithDialer sets how the target is reached.
func WithDialer(dial Dialer) Option {
	return func(srv *Server) {
		srv.dial = dial
	}
}

// WithMetrics sets the metrics collecting the outcome of each exchange.
func WithMetrics(m *metrics.Exchange) Option {
	return func(srv *Server) {
		srv.metrics = m
	}
}

// New creates a new keep-alive tdaq server.
func New(name string, opts ...Option) *Server {
	srv := &Server{
		name:   name,
		period: 2 * time.Second,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	cfg := config.Default()
	if srv.cfgFile != "" {
		v, err := config.Load(srv.cfgFile)
		if err != nil {
			ctx.Msg.Errorf("could not load configuration: %+v", err)
			return xerrors.Errorf("could not load configuration: %w", err)
		}
		cfg = v
	}

	model, err := srv.model(cfg)
	if err != nil {
		ctx.Msg.Errorf("could not create reference data: %+v", err)
		return xerrors.Errorf("could not create reference data: %w", err)
	}

	orc, err := oracle.New(
		cfg, model,
		oracle.WithLogger(ctx.Msg),
		oracle.WithMetrics(srv.metrics),
	)
	if err != nil {
		ctx.Msg.Errorf("could not create oracle: %+v", err)
		return xerrors.Errorf("could not create oracle: %w", err)
	}

	srv.cfg = cfg
	srv.orc = orc
	return nil
}

func (srv *Server) model(cfg config.Config) (*refdata.Model, error) {
	if srv.refFile == "" {
		return cfg.Model(time.Now())
	}

	f, err := os.Open(srv.refFile)
	if err != nil {
		return nil, fmt.Errorf("could not open raw sample file: %w", err)
	}
	defer f.Close()

	return cfg.ReadModel(f, time.Now())
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	if srv.orc == nil {
		return xerrors.Errorf("daq: /init before /config")
	}
	srv.reset()
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	srv.hangup()
	srv.reset()
	if srv.orc != nil {
		srv.orc.Model().SetCursor(nil)
	}
	return nil
}

func (srv *Server) reset() {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.data = make(chan []byte, 1024)
	srv.n = 0
	srv.nfail = 0
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if srv.orc == nil {
		return xerrors.Errorf("daq: /start before /config")
	}

	conn, err := srv.dial(ctx.Ctx, srv.cfg.Addr())
	if err != nil {
		ctx.Msg.Errorf("could not dial target %q: %+v", srv.cfg.Addr(), err)
		return xerrors.Errorf("could not dial target %q: %w", srv.cfg.Addr(), err)
	}

	srv.mu.Lock()
	srv.conn = conn
	srv.mu.Unlock()
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	n, nfail := srv.n, srv.nfail
	srv.mu.Unlock()

	ctx.Msg.Debugf("received /stop command... -> n=%d, failures=%d", n, nfail)
	srv.hangup()
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	srv.hangup()
	return nil
}

func (srv *Server) hangup() {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.conn == nil {
		return
	}
	_ = srv.conn.Close()
	srv.conn = nil
}

// Stats returns the number of exchanges and of failed exchanges of the
// current run.
func (srv *Server) Stats() (n, nfail int) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.n, srv.nfail
}

// Output publishes the encoded status of each exchange.
func (srv *Server) Output(ctx tdaq.Context, dst *tdaq.Frame) error {
	srv.mu.Lock()
	data := srv.data
	srv.mu.Unlock()

	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case raw := <-data:
		dst.Body = raw
	}
	return nil
}

// Loop runs one exchange every period until the run stops.
// Failed exchanges are published and counted, they do not stop the run.
func (srv *Server) Loop(ctx tdaq.Context) error {
	tick := time.NewTicker(srv.period)
	defer tick.Stop()

	for {
		srv.mu.Lock()
		conn := srv.conn
		data := srv.data
		srv.mu.Unlock()

		if conn == nil {
			return xerrors.Errorf("daq: run loop without connection to target")
		}

		rep, err := srv.orc.Exchange(ctx.Ctx, conn, nil)
		if ctx.Ctx.Err() != nil {
			return nil
		}

		srv.mu.Lock()
		srv.n++
		if err != nil {
			srv.nfail++
		}
		srv.mu.Unlock()

		switch err {
		case nil:
			ctx.Msg.Infof("exchange: %v", rep)
		default:
			ctx.Msg.Errorf("exchange failed (%s): %+v", oracle.Kind(err), err)
		}

		st := Status{Report: rep, Kind: oracle.Kind(err)}
		if err != nil {
			st.Error = err.Error()
		}
		select {
		case data <- st.encode():
		default:
			ctx.Msg.Warnf("status queue full: dropping status of msg-id=%d", rep.MsgID)
		}

		select {
		case <-ctx.Ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

// Status is the published outcome of one exchange.
type Status struct {
	Report oracle.Report
	Kind   string // "ok", or the kind of failure
	Error  string
}

func (st Status) encode() []byte {
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteU8(st.Report.MsgID)
	enc.WriteI64(int64(st.Report.Planned))
	enc.WriteI64(int64(st.Report.Received))
	enc.WriteI64(int64(st.Report.Samples))
	enc.WriteI64(st.Report.Timestamp)
	enc.WriteI64(int64(st.Report.Elapsed))
	enc.WriteStr(st.Kind)
	enc.WriteStr(st.Error)
	return buf.Bytes()
}

// DecodeStatus decodes a status published on the output of a Server.
func DecodeStatus(p []byte) (Status, error) {
	var (
		st  Status
		dec = tdaq.NewDecoder(bytes.NewReader(p))
	)
	st.Report.MsgID = dec.ReadU8()
	st.Report.Planned = int(dec.ReadI64())
	st.Report.Received = int(dec.ReadI64())
	st.Report.Samples = int(dec.ReadI64())
	st.Report.Timestamp = dec.ReadI64()
	st.Report.Elapsed = time.Duration(dec.ReadI64())
	st.Kind = dec.ReadStr()
	st.Error = dec.ReadStr()
	if err := dec.Err(); err != nil {
		return st, fmt.Errorf("daq: could not decode status: %w", err)
	}
	return st, nil
}
