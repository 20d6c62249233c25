// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocunit

import (
	"math"
	"testing"
)

func TestScale(t *testing.T) {
	var cls Class
	test := func(num float64, want, wantPred string) {
		t.Helper()

		got := Scale(num, cls)
		if got != want {
			t.Errorf("for %v, got %s, want %s", num, got, want)
		}

		// Check the crux between two scale factors.
		pred := math.Nextafter(num, 0)
		got = Scale(pred, cls)
		if got != wantPred {
			t.Errorf("for %v-ε, got %s, want %s", num, got, wantPred)
		}
	}

	cls = Decimal
	test(0, "0.000", "0.000")
	test(1, "1.000", "1.000")
	test(999950000000, "1.000T", "999.9G")
	test(99995000, "100.0M", "99.99M")
	test(9999500, "10.00M", "9.999M")
	test(999950, "1.000M", "999.9k")
	test(9999.5, "10.00k", "9.999k")
	test(999.95, "1.000k", "999.9")
	test(9.9995, "10.00", "9.999")
	test(.99995, "1.000", "0.9999")
	test(.099995, "0.1000", "0.09999")

	cls = Binary
	test(0, "0.000", "0.000")
	test(.99995*(1<<40), "1.000Ti", "1023.9Gi")
	test(99.995*(1<<20), "100.0Mi", "99.99Mi")
	test(.99995*(1<<20), "1.000Mi", "1023.9Ki")
	test(9.9995*(1<<10), "10.00Ki", "9.999Ki")
	test(.99995*(1<<10), "1.000Ki", "1023.9")
	test(99.995, "100.0", "99.99")
	test(.99995, "1.000", "0.9999")
}

func TestCommonScale(t *testing.T) {
	s := CommonScale([]float64{4096, 1 << 20, math.NaN(), 0}, Binary)
	if got := s.FormatUnit(1<<20, Bytes); got != "1024.000KiB" {
		t.Errorf("got %s, want 1024.000KiB", got)
	}
	s = CommonScale([]float64{1500, 2500000}, Decimal)
	if got := s.FormatUnit(1500, Instructions); got != "1.500k instr" {
		t.Errorf("got %s, want 1.500k instr", got)
	}
	if got := NoOpScaler.FormatUnit(3, Count); got != "3" {
		t.Errorf("got %s, want 3", got)
	}
}

func TestNoOpScaler(t *testing.T) {
	test := func(val float64, want string) {
		t.Helper()
		got := NoOpScaler.Format(val)
		if got != want {
			t.Errorf("for %v, got %s, want %s", val, got, want)
		}
	}

	test(1, "1")
	test(123456789, "123456789")
	test(123.456789, "123.456789")
}

func TestUnitOf(t *testing.T) {
	for metric, want := range map[string]Unit{
		"bytes in-use":             Bytes,
		"lhs fragmentation":        Bytes,
		"occupied_memory_per_slab": Bytes,
		"available_space_per_slab": Bytes,
		"instruction count":        Instructions,
		"oom":                      Count,
		"slab resets":              Count,
	} {
		if got := UnitOf(metric); got != want {
			t.Errorf("UnitOf(%q) = %v, want %v", metric, got, want)
		}
	}
	if Bytes.Class() != Binary || Instructions.Class() != Decimal {
		t.Errorf("wrong unit classes")
	}
}
