// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame is matched by errors about a buffer shorter than
	// the structure it should hold, or a header length inconsistent with
	// the bytes available.
	ErrMalformedFrame = errors.New("wire: malformed frame")

	// ErrCRCMismatch is matched by errors about a received CRC-32 that
	// differs from the computed one.
	ErrCRCMismatch = errors.New("wire: CRC mismatch")
)

// FrameError describes a malformed frame.
type FrameError struct {
	Msg string
	Err error // underlying error, if any
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return "wire: " + e.Msg + ": " + e.Err.Error()
	}
	return "wire: " + e.Msg
}

func (e *FrameError) Is(target error) bool { return target == ErrMalformedFrame }
func (e *FrameError) Unwrap() error        { return e.Err }

func shortBuffer(name string, got, want int) error {
	return &FrameError{
		Msg: fmt.Sprintf("short %s buffer (got=%d, want=%d)", name, got, want),
	}
}

// CRCError describes a CRC-32 mismatch.
type CRCError struct {
	Recv uint32
	Comp uint32
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("wire: inconsistent CRC: recv=0x%08x comp=0x%08x", e.Recv, e.Comp)
}

func (e *CRCError) Is(target error) bool { return target == ErrCRCMismatch }

// VerifyCRC checks the received CRC-32 against the computed one.
func VerifyCRC(recv, comp uint32) error {
	if recv != comp {
		return &CRCError{Recv: recv, Comp: comp}
	}
	return nil
}
