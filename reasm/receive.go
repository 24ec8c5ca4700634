// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reasm

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/go-lpc/keepalive/wire"
	"golang.org/x/xerrors"
)

// Conn is the receiving end of a connection to the target.
type Conn interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// Receive reads physical messages from conn until a complete reply has
// been reassembled.
// Each physical message must be read within timeout. A zero timeout
// disables the deadline.
// On failure, the payload of a partial reply is discarded and the returned
// Result only counts the messages accepted so far.
func Receive(ctx context.Context, conn Conn, timeout time.Duration, opts ...Option) (Result, error) {
	r := New(opts...)
	dec := wire.NewDecoder(conn)
	dec.SetMaxMessageSize(r.cfg.max)

	// unblock a pending read when ctx is done.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Unix(1, 0))
		case <-stop:
		}
	}()
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for !r.Done() {
		var deadline time.Time
		if timeout > 0 {
			deadline = time.Now().Add(timeout)
		}
		err := conn.SetReadDeadline(deadline)
		if err != nil {
			return Result{}, xerrors.Errorf("reasm: could not set read deadline: %w", err)
		}

		// checked after the deadline is set, not to override the one set
		// on cancellation.
		if err := ctx.Err(); err != nil {
			return r.partial(), xerrors.Errorf("reasm: could not receive reply: %w", err)
		}

		msg, err := dec.ReadMessage()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return r.partial(), xerrors.Errorf("reasm: could not receive reply: %w", ctx.Err())
			case isTimeout(err):
				return r.partial(), &timeoutError{msgs: r.next, err: err}
			}
			return r.partial(), r.fail(err)
		}

		_ = r.Feed(msg)
	}

	res, err := r.Result()
	if err != nil {
		return r.partial(), err
	}
	return res, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
