// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reasm

import (
	"errors"
	"fmt"
)

var (
	// ErrSequenceMismatch is matched by errors about a physical message
	// inconsistent with the ones received before it.
	ErrSequenceMismatch = errors.New("reasm: sequence mismatch")

	// ErrTimeout is matched by errors about a physical message not
	// received in time.
	ErrTimeout = errors.New("reasm: timeout")

	// ErrSampleCount is matched by errors about a device whose number of
	// reassembled samples differs from the expected one.
	ErrSampleCount = errors.New("reasm: unexpected sample count")
)

// SequenceError describes a response field inconsistent with the expected
// sequence of physical messages.
type SequenceError struct {
	Field string
	Want  int
	Got   int
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("reasm: invalid %s (want=%d, got=%d)", e.Field, e.Want, e.Got)
}

func (e *SequenceError) Is(target error) bool { return target == ErrSequenceMismatch }

// SampleCountError describes a device with an unexpected number of samples.
type SampleCountError struct {
	Device uint8
	Want   int
	Got    int
}

func (e *SampleCountError) Error() string {
	return fmt.Sprintf(
		"reasm: invalid number of samples for device %d (want=%d, got=%d)",
		e.Device, e.Want, e.Got,
	)
}

func (e *SampleCountError) Is(target error) bool { return target == ErrSampleCount }

type timeoutError struct {
	msgs int // number of messages received before the timeout
	err  error
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("reasm: timeout after %d message(s): %v", e.msgs, e.err)
}

func (e *timeoutError) Is(target error) bool { return target == ErrTimeout }
func (e *timeoutError) Unwrap() error        { return e.err }
