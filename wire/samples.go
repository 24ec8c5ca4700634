// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeSamples decodes little-endian float64 samples.
func DecodeSamples(p []byte) ([]float64, error) {
	if len(p)%SampleSize != 0 {
		return nil, &FrameError{
			Msg: fmt.Sprintf("sample data size %d not a multiple of %d", len(p), SampleSize),
		}
	}
	vs := make([]float64, len(p)/SampleSize)
	for i := range vs {
		beg := i * SampleSize
		vs[i] = math.Float64frombits(binary.LittleEndian.Uint64(p[beg : beg+SampleSize]))
	}
	return vs, nil
}

// EncodeSamples encodes samples as little-endian float64 values.
func EncodeSamples(vs []float64) []byte {
	p := make([]byte, len(vs)*SampleSize)
	for i, v := range vs {
		beg := i * SampleSize
		binary.LittleEndian.PutUint64(p[beg:beg+SampleSize], math.Float64bits(v))
	}
	return p
}
