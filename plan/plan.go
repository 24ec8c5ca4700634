// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package plan predicts how the target packs a keep-alive reply into
// physical messages.
package plan // import "github.com/go-lpc/keepalive/plan"

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-lpc/keepalive/refdata"
	"github.com/go-lpc/keepalive/wire"
)

// ErrInvalidConfiguration is matched by errors about planner inputs that
// can not be planned.
var ErrInvalidConfiguration = errors.New("plan: invalid configuration")

type configError struct {
	msg string
}

func (e *configError) Error() string            { return "plan: " + e.msg }
func (e *configError) Is(target error) bool     { return target == ErrInvalidConfiguration }
func invalidf(format string, args ...any) error { return &configError{fmt.Sprintf(format, args...)} }

// MaxMessages is the largest number of physical messages a reply may span:
// the response index and total are single bytes.
const MaxMessages = math.MaxUint8

// Layout holds the sizes driving the packing of a reply.
type Layout struct {
	MaxMessageSize int
	HeaderSize     int
	ResponseSize   int
	CRCSize        int
	SubRecordSize  int
	SampleSize     int
}

// DefaultLayout returns the keep-alive wire layout for messages of at most
// max bytes.
func DefaultLayout(max int) Layout {
	return Layout{
		MaxMessageSize: max,
		HeaderSize:     wire.HeaderSize,
		ResponseSize:   wire.ResponseSize,
		CRCSize:        wire.CRCSize,
		SubRecordSize:  wire.SubRecordSize,
		SampleSize:     wire.SampleSize,
	}
}

// overhead is the size of a message without any sub-record.
func (lay Layout) overhead() int {
	return lay.HeaderSize + lay.ResponseSize + lay.CRCSize
}

// MinMessageSize returns the smallest maximum message size that can be
// planned with this layout.
func (lay Layout) MinMessageSize() int {
	return lay.overhead() + lay.SubRecordSize + lay.SampleSize + 1
}

func (lay Layout) validate() error {
	switch {
	case lay.HeaderSize <= 0, lay.ResponseSize <= 0, lay.CRCSize <= 0,
		lay.SubRecordSize <= 0, lay.SampleSize <= 0:
		return invalidf("invalid layout %+v", lay)
	case lay.MaxMessageSize < lay.MinMessageSize():
		return invalidf(
			"max message size too small (got=%d, min=%d)",
			lay.MaxMessageSize, lay.MinMessageSize(),
		)
	}
	return nil
}

// Chunk is a run of consecutive samples of one sensor, packed in a single
// sub-record.
type Chunk struct {
	Sensor  refdata.Sensor
	Samples int
}

// Pack simulates the packing loop of the target and returns, for each
// physical message, the sub-records it holds.
//
// Sensors are drained in enumeration order. Each message starts with the
// space left after the header, response prefix and CRC; a sub-record is
// opened only while strictly more than one sub-record header plus one
// sample fits, so a message may close with exactly that much room left.
//
// Pack fails when the reply would need more than MaxMessages messages.
func Pack(lay Layout, counts map[refdata.Sensor]int) ([][]Chunk, error) {
	err := lay.validate()
	if err != nil {
		return nil, err
	}

	sensors := refdata.Sensors()
	remaining := make([]int, len(sensors))
	for i, s := range sensors {
		n, ok := counts[s]
		switch {
		case !ok:
			return nil, invalidf("missing sample count for %v", s)
		case n <= 0:
			return nil, invalidf("invalid sample count %d for %v", n, s)
		}
		remaining[i] = n
	}
	if len(counts) != len(sensors) {
		return nil, invalidf("unknown sensors in sample counts %v", counts)
	}

	var (
		msgs [][]Chunk
		cur  = 0
	)
	for cur < len(sensors) {
		var (
			msg   []Chunk
			avail = lay.MaxMessageSize - lay.overhead()
		)
		for cur < len(sensors) && avail > lay.SubRecordSize+lay.SampleSize {
			avail -= lay.SubRecordSize
			n := avail / lay.SampleSize
			if n > remaining[cur] {
				n = remaining[cur]
			}
			remaining[cur] -= n
			avail -= n * lay.SampleSize
			msg = append(msg, Chunk{Sensor: sensors[cur], Samples: n})

			if remaining[cur] == 0 {
				cur++
			}
		}
		msgs = append(msgs, msg)
		if len(msgs) > MaxMessages {
			return nil, invalidf(
				"reply needs more than %d messages (max-msg-size=%d, counts=%v)",
				MaxMessages, lay.MaxMessageSize, counts,
			)
		}
	}

	return msgs, nil
}

// Messages returns the number of physical messages the target emits to
// reply with counts[s] samples per sensor.
func Messages(lay Layout, counts map[refdata.Sensor]int) (int, error) {
	msgs, err := Pack(lay, counts)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// Size returns the size in bytes of a physical message holding chunks.
func (lay Layout) Size(chunks []Chunk) int {
	n := lay.overhead()
	for _, c := range chunks {
		n += lay.SubRecordSize + c.Samples*lay.SampleSize
	}
	return n
}
