// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package allocfmt reads the console logs written by the allocator
// benchmark harness.
//
// A log is free-form text. The measured phase begins after one of a
// fixed set of begin markers (see BeginMarkers) and ends at the
// EndMarker. Each line in between may carry one telemetry record as a
// single-quoted, JSON-like dictionary embedded somewhere in the line:
//
//	[   12.034] alloc_bench::INFO {'bytes requested': 64, 'bytes in-use': 4160, ...}
//
// The reader is deliberately forgiving: the logs interleave output
// from several components, so lines that are not records, or that
// hold partial or unrecognized payloads, are dropped and counted
// rather than reported as errors. Only a missing begin marker is
// fatal.
//
// Records come in four variants, distinguished purely by which keys
// the payload carries. See Variant.
package allocfmt

import (
	"fmt"
	"strings"
)

// A Variant identifies which of the recognized field sets a Record
// was decoded from.
type Variant int

const (
	// Throughput records carry per-operation cost and the
	// cumulative allocator counters.
	Throughput Variant = iota
	// Fragmentation records carry the aggregate watermark and
	// alignment fragmentation.
	Fragmentation
	// FragmentationThroughput records carry both of the above.
	FragmentationThroughput
	// PerSlab records carry the four per-slab breakdown arrays.
	PerSlab

	numVariants
)

var variantNames = [numVariants]string{
	Throughput:              "throughput",
	Fragmentation:           "fragmentation",
	FragmentationThroughput: "fragmentation+throughput",
	PerSlab:                 "per-slab",
}

func (v Variant) String() string {
	if v < 0 || v >= numVariants {
		return fmt.Sprintf("Variant(%d)", int(v))
	}
	return variantNames[v]
}

// ParseVariant returns the Variant named s, as printed by
// Variant.String.
func ParseVariant(s string) (Variant, error) {
	for v, name := range variantNames {
		if strings.EqualFold(s, name) {
			return Variant(v), nil
		}
	}
	return 0, fmt.Errorf("unknown record variant %q", s)
}

// HasCost reports whether records of this variant carry the
// allocation flag, instruction count, and cumulative counters.
func (v Variant) HasCost() bool {
	return v == Throughput || v == FragmentationThroughput
}

// HasFragmentation reports whether records of this variant carry the
// aggregate fragmentation fields.
func (v Variant) HasFragmentation() bool {
	return v == Fragmentation || v == FragmentationThroughput
}

// HasSlabs reports whether records of this variant carry the per-slab
// breakdown.
func (v Variant) HasSlabs() bool {
	return v == PerSlab
}

// A Record is one observation emitted by the benchmark at one
// operation.
//
// Only the fields belonging to Variant are meaningful; the others are
// zero. Records are never modified once a Reader returns them, and
// Slabs must be treated as read-only.
type Record struct {
	Variant Variant

	// Idx is the record's sequence position. Operations and
	// per-slab snapshots are numbered separately, each strictly
	// increasing within a Run; a snapshot's Idx is the number of
	// operations before it. Operations without an "idx" key are
	// numbered one past the previous operation.
	Idx int64

	BytesRequested int64
	BytesInUse     int64

	// BytesFree is optional in every variant. HasBytesFree
	// reports whether the payload carried it.
	BytesFree    int64
	HasBytesFree bool

	// Allocation is true for allocation operations and false for
	// frees.
	Allocation       bool
	InstructionCount int64

	// SlabResets, UntypedTooSmall, and OOM are cumulative
	// counters. OOM and SlabResets never decrease within a Run.
	SlabResets      int64
	UntypedTooSmall int64
	OOM             int64

	// LHSFragmentation is the watermark-style waste and
	// InBetweenFragmentation the alignment-style waste. They are
	// independent quantities and do not nest.
	LHSFragmentation       int64
	InBetweenFragmentation int64

	// Slabs is the per-slab breakdown, one entry per memory region.
	Slabs []Slab
}

// A Slab is the state of one fixed-capacity memory region.
type Slab struct {
	LHSFragmentation       int64
	InBetweenFragmentation int64
	Occupied               int64
	Available              int64
}

// StackTop returns the height of the fragmentation stack drawn for
// this slab, with in-between fragmentation placed on top of LHS
// fragmentation. It is a rendering convention; the two quantities are
// independent.
func (s Slab) StackTop() int64 {
	return s.LHSFragmentation + s.InBetweenFragmentation
}

// A SlabColumn names one of the four per-slab arrays.
type SlabColumn int

const (
	SlabLHSFragmentation SlabColumn = iota
	SlabInBetweenFragmentation
	SlabOccupied
	SlabAvailable
)

func (c SlabColumn) String() string {
	switch c {
	case SlabLHSFragmentation:
		return keyLHSPerSlab
	case SlabInBetweenFragmentation:
		return keyInBetweenPerSlab
	case SlabOccupied:
		return keyOccupiedPerSlab
	case SlabAvailable:
		return keyAvailablePerSlab
	}
	return fmt.Sprintf("SlabColumn(%d)", int(c))
}

// SlabColumn returns one of the per-slab arrays of r in slab order.
func (r *Record) SlabColumn(c SlabColumn) []int64 {
	out := make([]int64, len(r.Slabs))
	for i, s := range r.Slabs {
		switch c {
		case SlabLHSFragmentation:
			out[i] = s.LHSFragmentation
		case SlabInBetweenFragmentation:
			out[i] = s.InBetweenFragmentation
		case SlabOccupied:
			out[i] = s.Occupied
		case SlabAvailable:
			out[i] = s.Available
		}
	}
	return out
}

// Clone returns a copy of r that shares no state with r.
func (r *Record) Clone() *Record {
	r2 := *r
	if r.Slabs != nil {
		r2.Slabs = append([]Slab(nil), r.Slabs...)
	}
	return &r2
}
