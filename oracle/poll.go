// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-lpc/keepalive/reasm"
	"github.com/go-lpc/keepalive/refdata"
	"github.com/go-lpc/keepalive/sim"
)

// ErrStop can be returned by a Poll callback to stop polling without
// error.
var ErrStop = errors.New("oracle: stop polling")

const retryDelay = 100 * time.Millisecond

// ExchangeError is returned by Poll when an exchange fails.
// It carries the report of the failed exchange.
type ExchangeError struct {
	Report Report
	Err    error
}

func (e *ExchangeError) Error() string { return e.Err.Error() }
func (e *ExchangeError) Unwrap() error { return e.Err }

// Poll runs one exchange every period until ctx is done, fn returns a
// non-nil error or an exchange fails.
// A failed exchange is reported as an *ExchangeError.
//
// Timed out exchanges are re-issued, up to the configured number of
// retries. A timed out reply may still be in flight: before retrying, Poll
// discards whatever the target sends during a short grace period, so the
// retry does not read messages of the abandoned reply. Messages arriving
// after that period make the retry fail with a msg-id mismatch.
func (o *Oracle) Poll(ctx context.Context, conn Conn, counts map[refdata.Sensor]int, period time.Duration, fn func(Report) error) error {
	tick := time.NewTicker(period)
	defer tick.Stop()

	timeouts := 0
	for {
		rep, err := o.Exchange(ctx, conn, counts)
		switch {
		case err == nil:
			timeouts = 0
			err = fn(rep)
			if err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		case errors.Is(err, reasm.ErrTimeout) && timeouts < o.retries:
			timeouts++
			o.msg.Warnf("exchange timed out (retry %d/%d): %+v", timeouts, o.retries, err)
			n, err := drain(conn, retryDelay)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				return &ExchangeError{Report: rep, Err: fmt.Errorf("oracle: could not drain connection: %w", err)}
			}
			if n > 0 {
				o.msg.Warnf("discarded %d byte(s) of timed out reply msg-id=%d", n, rep.MsgID)
			}
			continue
		default:
			return &ExchangeError{Report: rep, Err: err}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

// drain discards everything read from conn during d.
func drain(conn Conn, d time.Duration) (int64, error) {
	err := conn.SetReadDeadline(time.Now().Add(d))
	if err != nil {
		return 0, err
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	n, err := io.Copy(io.Discard, conn)
	switch {
	case err == nil:
		return n, io.ErrUnexpectedEOF
	case errors.Is(err, os.ErrDeadlineExceeded):
		return n, nil
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return n, nil
	}
	return n, err
}

// RunLocal serves tgt on a loopback TCP listener and polls it every
// period, until fn returns ErrStop or a failure.
func (o *Oracle) RunLocal(ctx context.Context, tgt *sim.Target, period time.Duration, fn func(Report) error) error {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("oracle: could not listen: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return tgt.Serve(ctx, l)
	})
	grp.Go(func() error {
		defer cancel()

		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", l.Addr().String())
		if err != nil {
			return fmt.Errorf("oracle: could not dial simulated target: %w", err)
		}
		defer conn.Close()

		return o.Poll(ctx, conn, nil, period, fn)
	})

	return grp.Wait()
}
