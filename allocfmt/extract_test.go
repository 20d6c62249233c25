// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocfmt

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractPayload(t *testing.T) {
	for _, test := range []struct {
		line, want string
		ok         bool
	}{
		{"{'a': 1}", "{'a': 1}", true},
		{"[ 1.0] INFO {'a': {'b': 2}} tail", "{'a': {'b': 2}}", true},
		{"{'a': 1} mid {'b': 2}", "{'a': 1} mid {'b': 2}", true},
		{"no braces", "", false},
		{"open { only", "", false},
		{"} reversed {", "", false},
		{"{}", "{}", true},
	} {
		got, ok := extractPayload(test.line)
		if got != test.want || ok != test.ok {
			t.Errorf("extractPayload(%q) = %q, %v, want %q, %v", test.line, got, ok, test.want, test.ok)
		}
	}
}

func TestClassify(t *testing.T) {
	for _, test := range []struct {
		name, payload string
		want          Variant
		wantErr       bool
	}{
		{
			"throughput",
			"{'bytes requested': 1, 'slab resets': 0, 'untyped_too_small': 0, 'oom': 0, 'bytes in-use': 1, 'instruction count': 1, 'allocation': true}",
			Throughput, false,
		},
		{
			"fragmentation",
			"{'bytes requested': 1, 'bytes in-use': 1, 'lhs fragmentation': 0, 'in-between fragmentation': 0, 'bytes free': 7}",
			Fragmentation, false,
		},
		{
			"union is the maximal subset",
			"{'bytes requested': 1, 'slab resets': 0, 'untyped_too_small': 0, 'oom': 0, 'bytes in-use': 1, 'instruction count': 1, 'allocation': true, 'lhs fragmentation': 0, 'in-between fragmentation': 0}",
			FragmentationThroughput, false,
		},
		{
			"per-slab beats fragmentation",
			"{'idx': 1, 'bytes requested': 1, 'bytes in-use': 1, 'lhs fragmentation': 0, 'in-between fragmentation': 0, 'lhs_fragmentation_per_slab': [0], 'in_between_fragmentation_per_slab': [0], 'occupied_memory_per_slab': [0], 'available_space_per_slab': [0]}",
			PerSlab, false,
		},
		{
			"per-slab beats throughput",
			"{'idx': 4, 'bytes requested': 1, 'slab resets': 0, 'untyped_too_small': 0, 'oom': 0, 'bytes in-use': 1, 'instruction count': 1, 'allocation': true, 'lhs_fragmentation_per_slab': [0], 'in_between_fragmentation_per_slab': [0], 'occupied_memory_per_slab': [0], 'available_space_per_slab': [0]}",
			PerSlab, false,
		},
		{
			"per-slab needs idx",
			"{'lhs_fragmentation_per_slab': [0], 'in_between_fragmentation_per_slab': [0], 'occupied_memory_per_slab': [0], 'available_space_per_slab': [0]}",
			0, true,
		},
		{
			"extra keys are ignored",
			"{'bytes requested': 1, 'bytes in-use': 1, 'lhs fragmentation': 0, 'in-between fragmentation': 0, 'color': 'blue'}",
			Fragmentation, false,
		},
		{"empty", "{}", 0, true},
	} {
		t.Run(test.name, func(t *testing.T) {
			p, err := decodePayload(normalizeQuotes(test.payload))
			if err != nil {
				t.Fatalf("decoding %s: %v", test.payload, err)
			}
			got, err := classify(p)
			if test.wantErr {
				if err == nil {
					t.Fatalf("classify succeeded with %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != test.want {
				t.Errorf("classify = %v, want %v", got, test.want)
			}
		})
	}
}

func TestProjectPerSlab(t *testing.T) {
	const text = "{'idx': 3, 'lhs_fragmentation_per_slab': [0, 16, 0], 'in_between_fragmentation_per_slab': [8, 0, 0], 'occupied_memory_per_slab': [4096, 2048, 0], 'available_space_per_slab': [0, 2032, 4096], 'lhs fragmentation': 99}"
	p, err := decodePayload(normalizeQuotes(text))
	if err != nil {
		t.Fatal(err)
	}
	v, err := classify(p)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := project(p, v)
	if err != nil {
		t.Fatal(err)
	}
	want := Record{
		Variant: PerSlab,
		Idx:     3,
		Slabs: []Slab{
			{0, 8, 4096, 0},
			{16, 0, 2048, 2032},
			{0, 0, 0, 4096},
		},
	}
	// The scalar fragmentation key does not belong to the variant
	// and must not leak into the record.
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("record differs (-want +got):\n%s", diff)
	}
	if got, want := rec.SlabColumn(SlabAvailable), []int64{0, 2032, 4096}; !cmp.Equal(got, want) {
		t.Errorf("SlabColumn(available) = %v, want %v", got, want)
	}
	if got := rec.Slabs[0].StackTop(); got != 8 {
		t.Errorf("StackTop = %d, want 8", got)
	}
}

func TestProjectInvalid(t *testing.T) {
	for _, text := range []string{
		"{'bytes requested': 'x', 'bytes in-use': 1, 'lhs fragmentation': 0, 'in-between fragmentation': 0}",
		"{'bytes requested': -4, 'bytes in-use': 1, 'lhs fragmentation': 0, 'in-between fragmentation': 0}",
		"{'bytes requested': 1, 'bytes in-use': 1, 'lhs fragmentation': 0, 'in-between fragmentation': 0, 'bytes free': 2.5}",
		"{'bytes requested': 1, 'slab resets': 0, 'untyped_too_small': 0, 'oom': 0, 'bytes in-use': 1, 'instruction count': 1, 'allocation': 1}",
		"{'idx': 0, 'lhs_fragmentation_per_slab': 0, 'in_between_fragmentation_per_slab': [0], 'occupied_memory_per_slab': [0], 'available_space_per_slab': [0]}",
		"{'idx': 0, 'lhs_fragmentation_per_slab': [-1], 'in_between_fragmentation_per_slab': [0], 'occupied_memory_per_slab': [0], 'available_space_per_slab': [0]}",
	} {
		p, err := decodePayload(normalizeQuotes(text))
		if err != nil {
			t.Errorf("decoding %s: %v", text, err)
			continue
		}
		v, err := classify(p)
		if err != nil {
			t.Errorf("classifying %s: %v", text, err)
			continue
		}
		if rec, err := project(p, v); err == nil {
			t.Errorf("project(%s) = %+v, want error", text, rec)
		}
	}
}

func TestVariantNames(t *testing.T) {
	for v := Variant(0); v < numVariants; v++ {
		got, err := ParseVariant(v.String())
		if err != nil || got != v {
			t.Errorf("ParseVariant(%q) = %v, %v, want %v", v.String(), got, err, v)
		}
	}
	if _, err := ParseVariant("latency"); err == nil {
		t.Errorf("ParseVariant(latency) succeeded, want error")
	}
}
