// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wire encodes and decodes the messages of the keep-alive
// protocol.
//
// A physical message is laid out as:
//
//	Header || Body || CRC-32
//
// where Header.Length is the size of Body plus the 4 bytes of the CRC
// trailer, and the CRC is computed over Header || Body.
// All integers are big-endian, except for the sensor samples carried
// after each sub-record, which are little-endian float64 values.
package wire // import "github.com/go-lpc/keepalive/wire"

import (
	"encoding"
	"encoding/binary"
	"fmt"
)

// Command identifies the kind of a message.
type Command uint16

const (
	CmdKeepAlive Command = 0x207E
	CmdDataReq   Command = 0x217E
)

func (cmd Command) String() string {
	switch cmd {
	case CmdKeepAlive:
		return "KEEP_ALIVE"
	case CmdDataReq:
		return "DATA_REQ"
	default:
		return fmt.Sprintf("Command(0x%04x)", uint16(cmd))
	}
}

const (
	HeaderSize    = 7  // command:u16 version:u8 length:u32
	RequestSize   = 9  // msg-id:u8 + 8 reserved bytes
	ResponseSize  = 44 // fixed keep-alive response prefix
	SubRecordSize = 45 // fixed sensor data header
	CRCSize       = 4
	SampleSize    = 8 // one float64 sample
)

// Fixed is implemented by all the fixed-layout structures of the protocol.
type Fixed interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

var (
	_ Fixed = (*Header)(nil)
	_ Fixed = (*Request)(nil)
	_ Fixed = (*Response)(nil)
	_ Fixed = (*SubRecord)(nil)

	_ encoding.BinaryMarshaler = Header{}
	_ encoding.BinaryMarshaler = Request{}
	_ encoding.BinaryMarshaler = Response{}
	_ encoding.BinaryMarshaler = SubRecord{}
)

// Header is the header of every physical message.
type Header struct {
	Command Command
	Version uint8
	Length  uint32 // size of the body, including the CRC trailer
}

func (hdr Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], uint16(hdr.Command))
	buf[2] = hdr.Version
	binary.BigEndian.PutUint32(buf[3:7], hdr.Length)
	return buf, nil
}

func (hdr *Header) UnmarshalBinary(p []byte) error {
	if len(p) < HeaderSize {
		return shortBuffer("header", len(p), HeaderSize)
	}
	hdr.Command = Command(binary.BigEndian.Uint16(p[0:2]))
	hdr.Version = p[2]
	hdr.Length = binary.BigEndian.Uint32(p[3:7])
	return nil
}

// Request is a keep-alive request.
type Request struct {
	MsgID uint8
}

func (req Request) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RequestSize)
	buf[0] = req.MsgID
	return buf, nil
}

func (req *Request) UnmarshalBinary(p []byte) error {
	if len(p) < RequestSize {
		return shortBuffer("keep-alive request", len(p), RequestSize)
	}
	req.MsgID = p[0]
	return nil
}

// Response is the fixed prefix of a keep-alive response message.
// The fields of the prefix the protocol does not use are skipped.
type Response struct {
	Index      uint8  // 0-based index of this message within the reply
	Total      uint8  // number of messages making up the reply
	MsgID      uint8  // echo of the request message ID
	Timestamp  uint64 // nanoseconds
	MaxMsgSize uint16
	Devices    uint8
}

func (resp Response) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ResponseSize)
	buf[0] = resp.Index
	buf[1] = resp.Total
	buf[2] = resp.MsgID
	binary.BigEndian.PutUint64(buf[4:12], resp.Timestamp)
	binary.BigEndian.PutUint16(buf[33:35], resp.MaxMsgSize)
	buf[43] = resp.Devices
	return buf, nil
}

func (resp *Response) UnmarshalBinary(p []byte) error {
	if len(p) < ResponseSize {
		return shortBuffer("keep-alive response", len(p), ResponseSize)
	}
	resp.Index = p[0]
	resp.Total = p[1]
	resp.MsgID = p[2]
	resp.Timestamp = binary.BigEndian.Uint64(p[4:12])
	resp.MaxMsgSize = binary.BigEndian.Uint16(p[33:35])
	resp.Devices = p[43]
	return nil
}

// SubRecord is the header of a chunk of sensor data, embedded in the body
// of a keep-alive response.
// It is followed by DataSize bytes of float64 samples.
type SubRecord struct {
	DeviceID uint8
	DataSize uint32
}

func (sub SubRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, SubRecordSize)
	buf[40] = sub.DeviceID
	binary.BigEndian.PutUint32(buf[41:45], sub.DataSize)
	return buf, nil
}

func (sub *SubRecord) UnmarshalBinary(p []byte) error {
	if len(p) < SubRecordSize {
		return shortBuffer("sensor sub-record", len(p), SubRecordSize)
	}
	sub.DeviceID = p[40]
	sub.DataSize = binary.BigEndian.Uint32(p[41:45])
	return nil
}

// Record is a sub-record together with its raw sample bytes.
type Record struct {
	DeviceID uint8
	Data     []byte
}

// Message is one physical message, stripped of its CRC trailer.
type Message struct {
	Header Header
	Body   []byte
	CRC    uint32
}
