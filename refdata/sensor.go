// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package refdata holds the reference data model: synthetic raw ADC samples
// per sensor, their conversion to engineering values and the per-sensor
// cursor used to extract successive windows of expected values.
package refdata // import "github.com/go-lpc/keepalive/refdata"

import (
	"fmt"
)

// Sensor identifies one of the sensors read out by the target.
// Sensor values double as device identifiers on the wire.
type Sensor uint8

const (
	Temp1 Sensor = iota
	Temp2
	Pressure

	NumSensors = int(Pressure) + 1 // number of sensors
)

// Sensors returns all the sensors, in enumeration order.
func Sensors() []Sensor {
	return []Sensor{Temp1, Temp2, Pressure}
}

func (s Sensor) String() string {
	switch s {
	case Temp1:
		return "Temp1"
	case Temp2:
		return "Temp2"
	case Pressure:
		return "Pressure"
	default:
		return fmt.Sprintf("Sensor(%d)", uint8(s))
	}
}

// Key returns the name of the sensor in configuration files.
func (s Sensor) Key() string {
	switch s {
	case Temp1:
		return "temp_1"
	case Temp2:
		return "temp_2"
	case Pressure:
		return "pressure"
	default:
		return fmt.Sprintf("sensor_%d", uint8(s))
	}
}

// ParseSensor returns the sensor named by key, as returned by Sensor.Key.
func ParseSensor(key string) (Sensor, error) {
	for _, s := range Sensors() {
		if s.Key() == key {
			return s, nil
		}
	}
	return 0, fmt.Errorf("refdata: unknown sensor %q", key)
}

func (s Sensor) valid() bool { return int(s) < NumSensors }

// FullScaleADC is the full scale value of the 12-bit ADCs.
const FullScaleADC = 4095

// Volts converts a raw ADC value into volts.
func Volts(raw uint16) float64 {
	return float64(raw) / FullScaleADC
}

// Convert converts a raw ADC value into an engineering value, using the
// transfer function of the provided sensor.
// Unknown sensors yield volts.
func Convert(s Sensor, raw uint16) float64 {
	volts := Volts(raw)
	switch s {
	case Temp1, Temp2:
		return (volts * 4.0) / 0.005
	case Pressure:
		return volts * 10.0
	default:
		return volts
	}
}

// Sample is one raw sample of a sensor, with its engineering value.
type Sample struct {
	Sensor Sensor
	Time   int64 // timestamp in nanoseconds
	Raw    uint16
	Value  float64
}

func newSample(s Sensor, t int64, raw uint16) Sample {
	return Sample{Sensor: s, Time: t, Raw: raw, Value: Convert(s, raw)}
}

// Word packs the 12-bit raw value with a 4-bit hardware channel tag,
// as stored in the target's sample file.
func (s Sample) Word(channel uint8) uint16 {
	return s.Raw<<4 | uint16(channel&0xf)
}

// SplitWord splits a sample file word into its raw ADC value and channel tag.
func SplitWord(w uint16) (raw uint16, channel uint8) {
	return w >> 4, uint8(w & 0xf)
}
