// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"io"

	"github.com/go-lpc/keepalive/internal/xcrc"
	"golang.org/x/xerrors"
)

// Encoder writes keep-alive messages to an output stream.
// Encoder computes the CRC-32 checksum on the fly and appends it
// at the end of each message.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error
	crc xcrc.Hash32
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, CRCSize),
		crc: xcrc.New(),
	}
}

func (enc *Encoder) crcw(p []byte) {
	_, _ = enc.crc.Write(p) // can not fail.
}

func (enc *Encoder) reset() {
	enc.err = nil
	enc.crc.Reset()
}

// EncodeRequest writes a complete keep-alive request message.
func (enc *Encoder) EncodeRequest(req Request) error {
	enc.reset()

	enc.writeFixed(Header{
		Command: CmdKeepAlive,
		Length:  RequestSize + CRCSize,
	})
	enc.writeFixed(req)
	enc.writeCRC()

	if enc.err != nil {
		return xerrors.Errorf("wire: could not write keep-alive request: %w", enc.err)
	}
	return nil
}

// EncodeResponse writes one complete physical keep-alive response message,
// made of the fixed response prefix followed by all the records.
func (enc *Encoder) EncodeResponse(resp Response, recs []Record) error {
	enc.reset()

	size := ResponseSize
	for _, rec := range recs {
		size += SubRecordSize + len(rec.Data)
	}

	enc.writeFixed(Header{
		Command: CmdKeepAlive,
		Length:  uint32(size + CRCSize),
	})
	enc.writeFixed(resp)
	for _, rec := range recs {
		enc.writeFixed(SubRecord{
			DeviceID: rec.DeviceID,
			DataSize: uint32(len(rec.Data)),
		})
		enc.write(rec.Data)
	}
	enc.writeCRC()

	if enc.err != nil {
		return xerrors.Errorf(
			"wire: could not write keep-alive response %d/%d: %w",
			resp.Index, resp.Total, enc.err,
		)
	}
	return nil
}

func (enc *Encoder) writeFixed(v encoding.BinaryMarshaler) {
	if enc.err != nil {
		return
	}
	p, err := v.MarshalBinary()
	if err != nil {
		enc.err = err
		return
	}
	enc.write(p)
}

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
	enc.crcw(p)
}

func (enc *Encoder) writeCRC() {
	if enc.err != nil {
		return
	}
	binary.BigEndian.PutUint32(enc.buf[:CRCSize], enc.crc.Sum32())
	_, enc.err = enc.w.Write(enc.buf[:CRCSize])
}

// RequestMessage returns the encoded bytes of a keep-alive request message.
func RequestMessage(req Request) []byte {
	buf := new(bytes.Buffer)
	_ = NewEncoder(buf).EncodeRequest(req) // can not fail.
	return buf.Bytes()
}

// ResponseMessage returns the encoded bytes of a keep-alive response message.
func ResponseMessage(resp Response, recs []Record) []byte {
	buf := new(bytes.Buffer)
	_ = NewEncoder(buf).EncodeResponse(resp, recs) // can not fail.
	return buf.Bytes()
}
