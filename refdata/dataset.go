// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refdata

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"sort"
)

// DataSet is an immutable time series of raw samples, per sensor.
type DataSet struct {
	start  int64 // first system tick
	end    int64 // one past the last system tick
	period int64 // system sample period

	samples [NumSensors][]Sample // time ordered
}

// GenConfig describes how to generate a synthetic data set.
type GenConfig struct {
	Start        int64 // timestamp of the first system tick, in ns
	Ticks        int   // number of system ticks
	SystemPeriod int64 // system sample period, in ns

	// SensorPeriod is the sampling period of each sensor, in ns.
	SensorPeriod map[Sensor]int64
}

// Skip returns the number of system ticks between two samples of s.
// The sequencer samples one ADC at a time, hence the division by the
// number of sensors.
func (cfg GenConfig) Skip(s Sensor) int {
	skip := int(cfg.SensorPeriod[s] / int64(NumSensors) / cfg.SystemPeriod)
	if skip < 1 {
		skip = 1
	}
	return skip
}

// Generate generates random 12-bit raw values for all the sensors.
// Sensors sampled less often than the system tick get a sample every
// GenConfig.Skip ticks.
func Generate(cfg GenConfig, rnd *rand.Rand) (*DataSet, error) {
	switch {
	case cfg.Ticks <= 0:
		return nil, fmt.Errorf("refdata: invalid number of ticks %d", cfg.Ticks)
	case cfg.SystemPeriod <= 0:
		return nil, fmt.Errorf("refdata: invalid system sample period %d", cfg.SystemPeriod)
	}
	for _, s := range Sensors() {
		if cfg.SensorPeriod[s] <= 0 {
			return nil, fmt.Errorf("refdata: invalid sample period %d for %v", cfg.SensorPeriod[s], s)
		}
	}

	ds := &DataSet{
		start:  cfg.Start,
		end:    cfg.Start + int64(cfg.Ticks)*cfg.SystemPeriod,
		period: cfg.SystemPeriod,
	}
	for _, s := range Sensors() {
		skip := cfg.Skip(s)
		vs := make([]Sample, 0, (cfg.Ticks+skip-1)/skip)
		for i := 0; i < cfg.Ticks; i += skip {
			t := cfg.Start + int64(i)*cfg.SystemPeriod
			vs = append(vs, newSample(s, t, uint16(rnd.Intn(FullScaleADC+1))))
		}
		ds.samples[s] = vs
	}

	return ds, nil
}

// Uniform generates n random samples per sensor, every interval ns,
// starting at start.
func Uniform(start int64, n int, interval int64, rnd *rand.Rand) (*DataSet, error) {
	cfg := GenConfig{
		Start:        start,
		Ticks:        n,
		SystemPeriod: interval,
		SensorPeriod: make(map[Sensor]int64, NumSensors),
	}
	for _, s := range Sensors() {
		cfg.SensorPeriod[s] = interval
	}
	return Generate(cfg, rnd)
}

// FromRaw creates a data set from caller provided raw values, indexed by
// sensor and timestamp.
// All sensors must be present, with at least one 12-bit sample each.
func FromRaw(raw map[Sensor]map[int64]uint16, systemPeriod int64) (*DataSet, error) {
	if systemPeriod <= 0 {
		return nil, fmt.Errorf("refdata: invalid system sample period %d", systemPeriod)
	}

	for s := range raw {
		if !s.valid() {
			return nil, fmt.Errorf("refdata: unknown sensor %v", s)
		}
	}

	ds := &DataSet{period: systemPeriod}
	first := true
	for _, s := range Sensors() {
		vs, ok := raw[s]
		if !ok || len(vs) == 0 {
			return nil, fmt.Errorf("refdata: no samples for %v", s)
		}
		samples := make([]Sample, 0, len(vs))
		for t, v := range vs {
			if v > FullScaleADC {
				return nil, fmt.Errorf(
					"refdata: invalid raw value 0x%x for %v at t=%d", v, s, t,
				)
			}
			samples = append(samples, newSample(s, t, v))
			if first || t < ds.start {
				ds.start = t
			}
			if first || t+systemPeriod > ds.end {
				ds.end = t + systemPeriod
			}
			first = false
		}
		sort.Slice(samples, func(i, j int) bool {
			return samples[i].Time < samples[j].Time
		})
		ds.samples[s] = samples
	}

	return ds, nil
}

// Range returns the time range [beg, end) covered by the system ticks
// of the data set, and the system sample period.
func (ds *DataSet) Range() (beg, end, period int64) {
	return ds.start, ds.end, ds.period
}

// Samples returns the samples of the provided sensor, in time order.
// The returned slice must not be modified.
func (ds *DataSet) Samples(s Sensor) []Sample {
	if !s.valid() {
		return nil
	}
	return ds.samples[s]
}

// index returns the index of the first sample of s strictly after the
// cursor position.
func (ds *DataSet) index(cur Cursor, s Sensor) int {
	vs := ds.samples[s]
	last, ok := cur[s]
	if !ok {
		return 0
	}
	return sort.Search(len(vs), func(i int) bool {
		return vs[i].Time > last
	})
}

// Remaining returns the number of samples of s after the cursor.
func (ds *DataSet) Remaining(cur Cursor, s Sensor) int {
	if !s.valid() {
		return 0
	}
	return len(ds.samples[s]) - ds.index(cur, s)
}

// Extract returns the next window of counts[s] samples for every sensor
// in counts, starting just after the cursor, and the cursor advanced past
// that window.
// Extract fails with ErrInsufficientData if any sensor has fewer samples
// left, and then no window is extracted.
func (ds *DataSet) Extract(cur Cursor, counts map[Sensor]int) (Window, Cursor, error) {
	win := Window{Samples: make(map[Sensor][]Sample, len(counts))}
	next := cur.Clone()

	sensors := make([]Sensor, 0, len(counts))
	for s := range counts {
		sensors = append(sensors, s)
	}
	sort.Slice(sensors, func(i, j int) bool { return sensors[i] < sensors[j] })

	seen := false
	for _, s := range sensors {
		n := counts[s]
		switch {
		case !s.valid():
			return Window{}, cur, fmt.Errorf("refdata: unknown sensor %v", s)
		case n < 0:
			return Window{}, cur, fmt.Errorf("refdata: invalid sample count %d for %v", n, s)
		}

		beg := ds.index(cur, s)
		if have := len(ds.samples[s]) - beg; have < n {
			return Window{}, cur, &InsufficientDataError{Sensor: s, Want: n, Have: have}
		}
		vs := ds.samples[s][beg : beg+n]
		win.Samples[s] = vs
		if n == 0 {
			continue
		}

		t0 := vs[0].Time
		if !seen || t0 > win.First {
			win.First = t0
		}
		if !seen || t0 < win.Earliest {
			win.Earliest = t0
		}
		seen = true
		next[s] = vs[n-1].Time
	}

	return win, next, nil
}

// WriteSamples writes the raw sample file read by the target: for each
// system tick, one native-endian 16-bit word per sensor, in enumeration
// order. A sensor without a sample on a given tick repeats its last word,
// initially its bare channel tag.
func (ds *DataSet) WriteSamples(w io.Writer, channels map[Sensor]uint8) error {
	var (
		bw    = bufio.NewWriter(w)
		buf   = make([]byte, 2*NumSensors)
		idx   [NumSensors]int
		words [NumSensors]uint16
	)
	for _, s := range Sensors() {
		words[s] = uint16(channels[s] & 0xf)
	}

	for t := ds.start; t < ds.end; t += ds.period {
		for _, s := range Sensors() {
			vs := ds.samples[s]
			i := idx[s]
			for i < len(vs) && vs[i].Time < t {
				i++
			}
			if i < len(vs) && vs[i].Time == t {
				words[s] = vs[i].Word(channels[s])
				i++
			}
			idx[s] = i
			binary.LittleEndian.PutUint16(buf[2*int(s):], words[s])
		}
		_, err := bw.Write(buf)
		if err != nil {
			return fmt.Errorf("refdata: could not write samples at t=%d: %w", t, err)
		}
	}

	err := bw.Flush()
	if err != nil {
		return fmt.Errorf("refdata: could not flush samples: %w", err)
	}
	return nil
}

// ReadSamples reads back a raw sample file, as written by WriteSamples,
// into a data set starting at start.
// Every word is kept as a sample, repeated words included.
func ReadSamples(r io.Reader, start, systemPeriod int64) (*DataSet, map[Sensor]uint8, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("refdata: could not read samples: %w", err)
	}
	const tick = 2 * NumSensors
	if len(raw) == 0 || len(raw)%tick != 0 {
		return nil, nil, fmt.Errorf("refdata: invalid sample file size %d", len(raw))
	}
	if systemPeriod <= 0 {
		return nil, nil, fmt.Errorf("refdata: invalid system sample period %d", systemPeriod)
	}

	n := len(raw) / tick
	ds := &DataSet{
		start:  start,
		end:    start + int64(n)*systemPeriod,
		period: systemPeriod,
	}
	chans := make(map[Sensor]uint8, NumSensors)
	for _, s := range Sensors() {
		ds.samples[s] = make([]Sample, 0, n)
	}
	for i := 0; i < n; i++ {
		t := start + int64(i)*systemPeriod
		for _, s := range Sensors() {
			w := binary.LittleEndian.Uint16(raw[i*tick+2*int(s):])
			v, ch := SplitWord(w)
			chans[s] = ch
			ds.samples[s] = append(ds.samples[s], newSample(s, t, v))
		}
	}
	return ds, chans, nil
}
