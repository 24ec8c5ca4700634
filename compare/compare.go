// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compare deep-compares nested maps and sequences of numeric
// values, with a tolerance on floating point values.
package compare // import "github.com/go-lpc/keepalive/compare"

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

const (
	DefaultRelTol = 1e-5
	DefaultAbsTol = 1e-8
)

// ErrComparisonMismatch is matched by errors about two values that
// differ.
var ErrComparisonMismatch = errors.New("compare: comparison mismatch")

// MismatchError describes the first difference between two values.
type MismatchError struct {
	Path   string // location of the difference, e.g. "[2][17]"
	Want   any
	Got    any
	Reason string
}

func (e *MismatchError) Error() string {
	path := e.Path
	if path == "" {
		path = "<root>"
	}
	return fmt.Sprintf(
		"compare: %s at %s (want=%v, got=%v)",
		e.Reason, path, e.Want, e.Got,
	)
}

func (e *MismatchError) Is(target error) bool { return target == ErrComparisonMismatch }

type config struct {
	rtol float64
	atol float64
}

// Option configures a comparison.
type Option func(*config)

// WithTolerance sets the relative and absolute tolerances used to compare
// floating point values.
func WithTolerance(rtol, atol float64) Option {
	return func(cfg *config) {
		cfg.rtol = rtol
		cfg.atol = atol
	}
}

// IsClose reports whether got is within tolerance of want:
//
//	|want - got| <= atol + rtol*|got|
//
// The relative tolerance scales with got, so IsClose is not symmetric.
// NaNs are never close. Infinities are close only to themselves.
func IsClose(want, got, rtol, atol float64) bool {
	switch {
	case want == got:
		return true
	case math.IsNaN(want), math.IsNaN(got):
		return false
	case math.IsInf(want, 0), math.IsInf(got, 0):
		return false
	}
	return math.Abs(want-got) <= atol+rtol*math.Abs(got)
}

// Equal compares want and got recursively.
//
// Maps must have identical key sets, sequences identical lengths.
// Floating point leaves are compared with IsClose, integer leaves by value
// (irrespective of their type) and all other leaves with reflect.DeepEqual.
// Equal returns a *MismatchError describing the first difference.
func Equal(want, got any, opts ...Option) error {
	cfg := config{rtol: DefaultRelTol, atol: DefaultAbsTol}
	for _, opt := range opts {
		opt(&cfg)
	}
	cmp := comparator{cfg: cfg}
	return cmp.equal(nil, reflect.ValueOf(want), reflect.ValueOf(got))
}

type comparator struct {
	cfg config
}

func mismatch(path []string, want, got reflect.Value, reason string) error {
	return &MismatchError{
		Path:   strings.Join(path, ""),
		Want:   iface(want),
		Got:    iface(got),
		Reason: reason,
	}
}

func iface(v reflect.Value) any {
	if !v.IsValid() || !v.CanInterface() {
		return nil
	}
	return v.Interface()
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func (cmp comparator) equal(path []string, want, got reflect.Value) error {
	want = indirect(want)
	got = indirect(got)

	switch {
	case !want.IsValid() && !got.IsValid():
		return nil
	case !want.IsValid() || !got.IsValid():
		return mismatch(path, want, got, "nil mismatch")
	}

	wk, gk := want.Kind(), got.Kind()
	switch {
	case wk == reflect.Map && gk == reflect.Map:
		return cmp.maps(path, want, got)
	case isSeq(wk) && isSeq(gk):
		return cmp.seqs(path, want, got)
	case isNum(wk) && isNum(gk):
		return cmp.nums(path, want, got)
	case wk != gk:
		return mismatch(path, want, got, fmt.Sprintf("kind mismatch (%v vs %v)", wk, gk))
	}

	if !reflect.DeepEqual(iface(want), iface(got)) {
		return mismatch(path, want, got, "value mismatch")
	}
	return nil
}

func (cmp comparator) maps(path []string, want, got reflect.Value) error {
	if want.Len() != got.Len() {
		return mismatch(path, want, got, fmt.Sprintf(
			"key set mismatch (want %d keys, got %d keys)", want.Len(), got.Len(),
		))
	}

	keys := want.MapKeys()
	sortValues(keys)
	ktype := got.Type().Key()
	for _, k := range keys {
		gkey := k
		if k.Type() != ktype {
			if !k.Type().ConvertibleTo(ktype) {
				return mismatch(path, want, got, fmt.Sprintf(
					"key type mismatch (%v vs %v)", k.Type(), ktype,
				))
			}
			gkey = k.Convert(ktype)
		}
		sub := append(path[:len(path):len(path)], fmt.Sprintf("[%v]", iface(k)))
		gv := got.MapIndex(gkey)
		if !gv.IsValid() {
			return mismatch(sub, want.MapIndex(k), gv, "missing key")
		}
		err := cmp.equal(sub, want.MapIndex(k), gv)
		if err != nil {
			return err
		}
	}
	return nil
}

func (cmp comparator) seqs(path []string, want, got reflect.Value) error {
	if want.Len() != got.Len() {
		return mismatch(path, want, got, fmt.Sprintf(
			"length mismatch (want=%d, got=%d)", want.Len(), got.Len(),
		))
	}
	for i := 0; i < want.Len(); i++ {
		sub := append(path[:len(path):len(path)], fmt.Sprintf("[%d]", i))
		err := cmp.equal(sub, want.Index(i), got.Index(i))
		if err != nil {
			return err
		}
	}
	return nil
}

func (cmp comparator) nums(path []string, want, got reflect.Value) error {
	if isFloat(want.Kind()) || isFloat(got.Kind()) {
		if !IsClose(toFloat(want), toFloat(got), cmp.cfg.rtol, cmp.cfg.atol) {
			return mismatch(path, want, got, "values not close")
		}
		return nil
	}

	if !intEqual(want, got) {
		return mismatch(path, want, got, "value mismatch")
	}
	return nil
}

func isSeq(k reflect.Kind) bool {
	return k == reflect.Slice || k == reflect.Array
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isInt(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUint(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isNum(k reflect.Kind) bool {
	return isFloat(k) || isInt(k) || isUint(k)
}

func toFloat(v reflect.Value) float64 {
	switch {
	case isFloat(v.Kind()):
		return v.Float()
	case isInt(v.Kind()):
		return float64(v.Int())
	default:
		return float64(v.Uint())
	}
}

func intEqual(a, b reflect.Value) bool {
	switch {
	case isInt(a.Kind()) && isInt(b.Kind()):
		return a.Int() == b.Int()
	case isUint(a.Kind()) && isUint(b.Kind()):
		return a.Uint() == b.Uint()
	case isInt(a.Kind()):
		return a.Int() >= 0 && uint64(a.Int()) == b.Uint()
	default:
		return b.Int() >= 0 && uint64(b.Int()) == a.Uint()
	}
}

// sortValues sorts map keys so mismatches are reported deterministically.
func sortValues(vs []reflect.Value) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		switch {
		case isInt(a.Kind()) && isInt(b.Kind()):
			return a.Int() < b.Int()
		case isUint(a.Kind()) && isUint(b.Kind()):
			return a.Uint() < b.Uint()
		case isFloat(a.Kind()) && isFloat(b.Kind()):
			return a.Float() < b.Float()
		case a.Kind() == reflect.String && b.Kind() == reflect.String:
			return a.String() < b.String()
		}
		return fmt.Sprint(iface(a)) < fmt.Sprint(iface(b))
	})
}
