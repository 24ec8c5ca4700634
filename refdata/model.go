// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refdata

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInsufficientData is matched by errors about a data set with fewer
// samples left than requested.
var ErrInsufficientData = errors.New("refdata: insufficient data")

// InsufficientDataError describes a window that could not be extracted.
type InsufficientDataError struct {
	Sensor Sensor
	Want   int
	Have   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf(
		"refdata: insufficient data for %v (want=%d, have=%d)",
		e.Sensor, e.Want, e.Have,
	)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// Cursor holds, per sensor, the timestamp of the last consumed sample.
// A sensor absent from the cursor has not been consumed yet.
type Cursor map[Sensor]int64

// Clone returns a copy of the cursor.
func (cur Cursor) Clone() Cursor {
	o := make(Cursor, len(cur))
	for k, v := range cur {
		o[k] = v
	}
	return o
}

// Window is a set of consecutive samples extracted from a data set.
type Window struct {
	Samples map[Sensor][]Sample

	First    int64 // latest first-sample timestamp across sensors
	Earliest int64 // earliest first-sample timestamp across sensors
}

// Values returns the engineering values of the window, indexed by device id.
func (win Window) Values() map[uint8][]float64 {
	o := make(map[uint8][]float64, len(win.Samples))
	for s, vs := range win.Samples {
		vals := make([]float64, len(vs))
		for i, v := range vs {
			vals[i] = v.Value
		}
		o[uint8(s)] = vals
	}
	return o
}

// Model is a data set together with the cursor of the next expected
// window. A Model is safe for concurrent use.
type Model struct {
	data *DataSet

	mu  sync.Mutex
	cur Cursor
}

// NewModel returns a model over data, with a fresh cursor.
func NewModel(data *DataSet) *Model {
	return &Model{data: data, cur: make(Cursor)}
}

// Data returns the underlying data set.
func (m *Model) Data() *DataSet { return m.data }

// Clone returns a model sharing the data set, with a fresh cursor.
func (m *Model) Clone() *Model { return NewModel(m.data) }

// Cursor returns a copy of the current cursor.
func (m *Model) Cursor() Cursor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.Clone()
}

// SetCursor replaces the current cursor.
func (m *Model) SetCursor(cur Cursor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur = cur.Clone()
}

// Window returns the next count samples of s and advances the cursor
// past them. On failure, the cursor is left unchanged.
func (m *Model) Window(s Sensor, count int) ([]Sample, error) {
	win, err := m.Extract(map[Sensor]int{s: count})
	if err != nil {
		return nil, err
	}
	return win.Samples[s], nil
}

// Extract returns the next window of counts[s] samples for every sensor
// and advances the cursor past them. Either all sensors advance or none.
func (m *Model) Extract(counts map[Sensor]int) (Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	win, cur, err := m.data.Extract(m.cur, counts)
	if err != nil {
		return win, err
	}
	m.cur = cur
	return win, nil
}

// ExtractWindow is like Extract but returns the engineering values,
// indexed by device id, and the latest first-sample timestamp.
func (m *Model) ExtractWindow(counts map[Sensor]int) (map[uint8][]float64, int64, error) {
	win, err := m.Extract(counts)
	if err != nil {
		return nil, 0, err
	}
	return win.Values(), win.First, nil
}

// Peek returns the next window without advancing the cursor.
func (m *Model) Peek(counts map[Sensor]int) (Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	win, _, err := m.data.Extract(m.cur, counts)
	return win, err
}
