// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package oracle

import (
	"context"
	"errors"

	"github.com/go-lpc/keepalive/compare"
	"github.com/go-lpc/keepalive/plan"
	"github.com/go-lpc/keepalive/reasm"
	"github.com/go-lpc/keepalive/refdata"
	"github.com/go-lpc/keepalive/wire"
)

// Kind returns a short name for the failure kind of err, suitable as a
// metrics label.
// Kind returns "ok" for a nil error and "other" for unknown errors.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, reasm.ErrTimeout):
		return "timeout"
	case errors.Is(err, wire.ErrCRCMismatch):
		return "crc_mismatch"
	case errors.Is(err, wire.ErrMalformedFrame):
		return "malformed_frame"
	case errors.Is(err, reasm.ErrSequenceMismatch):
		return "sequence_mismatch"
	case errors.Is(err, reasm.ErrSampleCount):
		return "sample_count"
	case errors.Is(err, refdata.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, compare.ErrComparisonMismatch):
		return "comparison_mismatch"
	case errors.Is(err, plan.ErrInvalidConfiguration):
		return "invalid_configuration"
	default:
		return "other"
	}
}
