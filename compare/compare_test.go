// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compare

import (
	"errors"
	"math"
	"testing"
)

func TestIsClose(t *testing.T) {
	for _, tc := range []struct {
		want, got float64
		close     bool
	}{
		{1.0, 1.0000001, true},
		{1.0, 1.01, false},
		{0, 1e-9, true},
		{0, 1e-7, false},
		{800, 800.007, true},
		{800, 800.01, false},
		{100000, 100001.000005, true},
		{100001.000005, 100000, false},
		{math.Inf(+1), math.Inf(+1), true},
		{math.Inf(+1), math.Inf(-1), false},
		{math.Inf(+1), math.MaxFloat64, false},
		{math.NaN(), math.NaN(), false},
		{1, math.NaN(), false},
	} {
		got := IsClose(tc.want, tc.got, DefaultRelTol, DefaultAbsTol)
		if got != tc.close {
			t.Fatalf("isclose(%v, %v): got=%v, want=%v", tc.want, tc.got, got, tc.close)
		}
	}
}

func TestEqual(t *testing.T) {
	type id uint8
	for _, tc := range []struct {
		name string
		want any
		got  any
		opts []Option
		path string
	}{
		{
			name: "float-close",
			want: 1.0000000,
			got:  1.0000001,
		},
		{
			name: "float-far",
			want: 1.0,
			got:  1.01,
			path: "<root>",
		},
		{
			name: "float-far-tolerance",
			want: 1.0,
			got:  1.01,
			opts: []Option{WithTolerance(0.1, 0)},
		},
		{
			name: "sensors",
			want: map[uint8][]float64{0: {1, 2, 3}, 1: {4}, 2: {}},
			got:  map[uint8][]float64{0: {1, 2, 3 + 1e-9}, 1: {4}, 2: {}},
		},
		{
			name: "sensors-value",
			want: map[uint8][]float64{0: {1, 2, 3}, 1: {4, 5}},
			got:  map[uint8][]float64{0: {1, 2, 3}, 1: {4, 5.1}},
			path: "[1][1]",
		},
		{
			name: "sensors-length",
			want: map[uint8][]float64{0: {1, 2, 3}},
			got:  map[uint8][]float64{0: {1, 2}},
			path: "[0]",
		},
		{
			name: "sensors-missing-key",
			want: map[uint8][]float64{0: {1}, 2: {3}},
			got:  map[uint8][]float64{0: {1}, 1: {3}},
			path: "[2]",
		},
		{
			name: "sensors-extra-key",
			want: map[uint8][]float64{0: {1}},
			got:  map[uint8][]float64{0: {1}, 1: {3}},
			path: "<root>",
		},
		{
			name: "key-types",
			want: map[id][]float64{2: {1}},
			got:  map[uint8][]float64{2: {1}},
		},
		{
			name: "nested",
			want: map[string]any{"a": []any{1, 2.5, "x"}, "b": map[string]int{"c": 1}},
			got:  map[string]any{"a": []any{int64(1), 2.5, "x"}, "b": map[string]int{"c": 1}},
		},
		{
			name: "nested-string",
			want: map[string]any{"a": []any{1, 2.5, "x"}},
			got:  map[string]any{"a": []any{1, 2.5, "y"}},
			path: "[a][2]",
		},
		{
			name: "int-exact",
			want: []int{1, 2, 3},
			got:  []uint16{1, 2, 4},
			path: "[2]",
		},
		{
			name: "int-negative",
			want: -1,
			got:  uint(math.MaxUint),
			path: "<root>",
		},
		{
			name: "array-slice",
			want: [3]float64{1, 2, 3},
			got:  []float64{1, 2, 3},
		},
		{
			name: "kind",
			want: map[int]int{},
			got:  []int{},
			path: "<root>",
		},
		{
			name: "nil",
			want: nil,
			got:  nil,
		},
		{
			name: "nil-value",
			want: nil,
			got:  1,
			path: "<root>",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := Equal(tc.want, tc.got, tc.opts...)
			if tc.path == "" {
				if err != nil {
					t.Fatalf("unexpected mismatch: %+v", err)
				}
				return
			}
			if !errors.Is(err, ErrComparisonMismatch) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, ErrComparisonMismatch)
			}
			var merr *MismatchError
			if !errors.As(err, &merr) {
				t.Fatalf("invalid error type %T", err)
			}
			path := merr.Path
			if path == "" {
				path = "<root>"
			}
			if got, want := path, tc.path; got != want {
				t.Fatalf("invalid mismatch path: got=%q, want=%q (err=%v)", got, want, err)
			}
		})
	}
}

func TestMismatchError(t *testing.T) {
	err := Equal(map[uint8][]float64{2: {1, 1.5}}, map[uint8][]float64{2: {1, 2}})
	if err == nil {
		t.Fatalf("expected a mismatch")
	}
	const want = "compare: values not close at [2][1] (want=1.5, got=2)"
	if got := err.Error(); got != want {
		t.Fatalf("invalid error message:\ngot= %q\nwant=%q", got, want)
	}
}
