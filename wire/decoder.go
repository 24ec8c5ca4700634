// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-lpc/keepalive/internal/xcrc"
	"golang.org/x/xerrors"
)

// maxLength bounds the body of a message when no maximum message size
// was configured on a Decoder.
const maxLength = 1 << 24

// Decoder reads (and validates) physical messages from an underlying
// data source.
type Decoder struct {
	r   io.Reader
	max int // max message size, including header. 0: unlimited.
	hdr [HeaderSize]byte
}

// NewDecoder creates a decoder that reads and validates messages from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// SetMaxMessageSize sets the maximum size of a message, header included.
// A zero value disables the check.
func (dec *Decoder) SetMaxMessageSize(n int) {
	dec.max = n
}

// ReadMessage reads one physical message and verifies its CRC-32.
//
// ReadMessage returns io.EOF (possibly wrapped) only when the stream ended
// cleanly before a new message.
func (dec *Decoder) ReadMessage() (Message, error) {
	_, err := io.ReadFull(dec.r, dec.hdr[:])
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF):
		return Message{}, &FrameError{Msg: "could not read message header", Err: err}
	default:
		return Message{}, xerrors.Errorf("wire: could not read message header: %w", err)
	}

	var hdr Header
	_ = hdr.UnmarshalBinary(dec.hdr[:]) // can not fail.

	minLen := uint32(minBody(hdr.Command) + CRCSize)
	switch {
	case hdr.Length < minLen:
		return Message{}, &FrameError{
			Msg: fmt.Sprintf("header length too small for %v (got=%d, want>=%d)",
				hdr.Command, hdr.Length, minLen,
			),
		}
	case dec.max > 0 && HeaderSize+int64(hdr.Length) > int64(dec.max):
		return Message{}, &FrameError{
			Msg: fmt.Sprintf("message too large (got=%d, max=%d)",
				HeaderSize+int64(hdr.Length), dec.max,
			),
		}
	case dec.max <= 0 && hdr.Length > maxLength:
		return Message{}, &FrameError{
			Msg: fmt.Sprintf("header length too large (got=%d, max=%d)", hdr.Length, maxLength),
		}
	}

	body := make([]byte, hdr.Length)
	_, err = io.ReadFull(dec.r, body)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return Message{}, &FrameError{
			Msg: fmt.Sprintf("could not read %d bytes of message body", hdr.Length),
			Err: io.ErrUnexpectedEOF,
		}
	default:
		return Message{}, xerrors.Errorf("wire: could not read message body: %w", err)
	}

	var (
		n    = len(body) - CRCSize
		recv = binary.BigEndian.Uint32(body[n:])
		comp = xcrc.Update(xcrc.Update(0, dec.hdr[:]), body[:n])
	)
	err = VerifyCRC(recv, comp)
	if err != nil {
		return Message{}, err
	}

	return Message{Header: hdr, Body: body[:n], CRC: recv}, nil
}

func minBody(cmd Command) int {
	switch cmd {
	case CmdKeepAlive:
		// requests and responses share the same command.
		return RequestSize
	default:
		return 0
	}
}

// ParseResponse splits the body of a keep-alive response message into
// its fixed prefix and the sequence of sensor records that follows.
// The returned records share memory with body.
func ParseResponse(body []byte) (Response, []Record, error) {
	var resp Response
	err := resp.UnmarshalBinary(body)
	if err != nil {
		return resp, nil, err
	}

	var (
		recs []Record
		data = body[ResponseSize:]
	)
	for len(data) > 0 {
		var sub SubRecord
		err = sub.UnmarshalBinary(data)
		if err != nil {
			return resp, nil, err
		}
		data = data[SubRecordSize:]

		if uint64(sub.DataSize) > uint64(len(data)) {
			return resp, nil, &FrameError{
				Msg: fmt.Sprintf(
					"sub-record for device %d too large (got=%d, remaining=%d)",
					sub.DeviceID, sub.DataSize, len(data),
				),
			}
		}
		recs = append(recs, Record{
			DeviceID: sub.DeviceID,
			Data:     data[:sub.DataSize],
		})
		data = data[sub.DataSize:]
	}

	return resp, recs, nil
}
