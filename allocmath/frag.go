// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocmath

import (
	"fmt"

	"github.com/cantrip-os/allocperf/allocfmt"
)

// A FragPoint is the fragmentation state after one operation.
//
// LHS and InBetween are independent measures of waste. They are not
// nested, and neither includes the other.
type FragPoint struct {
	Idx            int64
	BytesRequested int64
	BytesInUse     int64
	LHS            int64
	InBetween      int64
}

// Fragmentation returns the fragmentation series of the records of recs
// that carry aggregate fragmentation, in order.
func Fragmentation(recs []allocfmt.Record) []FragPoint {
	var out []FragPoint
	for i := range recs {
		rec := &recs[i]
		if !rec.Variant.HasFragmentation() {
			continue
		}
		out = append(out, FragPoint{
			Idx:            rec.Idx,
			BytesRequested: rec.BytesRequested,
			BytesInUse:     rec.BytesInUse,
			LHS:            rec.LHSFragmentation,
			InBetween:      rec.InBetweenFragmentation,
		})
	}
	return out
}

// A SlabSnapshot is the per-slab state at one per-slab record.
type SlabSnapshot struct {
	Idx int64

	// Ordinal is the position of the record among the per-slab
	// records of its sequence, starting at 0.
	Ordinal int

	Slabs []allocfmt.Slab
}

// SlabSnapshots returns every every'th per-slab record of recs,
// starting with the first. every <= 1 selects all of them.
func SlabSnapshots(recs []allocfmt.Record, every int) []SlabSnapshot {
	if every < 1 {
		every = 1
	}
	var out []SlabSnapshot
	ord := 0
	for i := range recs {
		rec := &recs[i]
		if !rec.Variant.HasSlabs() {
			continue
		}
		if ord%every == 0 {
			out = append(out, SlabSnapshot{Idx: rec.Idx, Ordinal: ord, Slabs: rec.Slabs})
		}
		ord++
	}
	return out
}

// A ViolationKind classifies a data-quality violation.
type ViolationKind int

const (
	// SlabOverflow means a slab's occupied memory plus its
	// fragmentation exceeds its available space.
	SlabOverflow ViolationKind = iota
	// OOMDecreased means the cumulative OOM counter went down.
	OOMDecreased
	// SlabResetsDecreased means the cumulative slab reset counter
	// went down.
	SlabResetsDecreased
)

func (k ViolationKind) String() string {
	switch k {
	case SlabOverflow:
		return "slab overflow"
	case OOMDecreased:
		return "oom decreased"
	case SlabResetsDecreased:
		return "slab resets decreased"
	}
	return fmt.Sprintf("ViolationKind(%d)", int(k))
}

// A Violation is a record that breaks an invariant of the telemetry.
// Violations are reported, not fatal: the record stays in its Run.
type Violation struct {
	Idx  int64
	Kind ViolationKind

	// Slab is the 0-based slab index for SlabOverflow, or -1.
	Slab int

	Msg string
}

func (v Violation) String() string {
	if v.Slab >= 0 {
		return fmt.Sprintf("idx %d slab %d: %s: %s", v.Idx, v.Slab, v.Kind, v.Msg)
	}
	return fmt.Sprintf("idx %d: %s: %s", v.Idx, v.Kind, v.Msg)
}

// Check reports every violation in recs of the slab occupancy bound
// (occupied + lhs + in-between <= available) and of the monotonicity
// of the cumulative OOM and slab reset counters.
func Check(recs []allocfmt.Record) []Violation {
	var out []Violation
	var prevOOM, prevResets int64
	for i := range recs {
		rec := &recs[i]
		if rec.Variant.HasCost() {
			if rec.OOM < prevOOM {
				out = append(out, Violation{rec.Idx, OOMDecreased, -1, fmt.Sprintf("%d after %d", rec.OOM, prevOOM)})
			}
			if rec.SlabResets < prevResets {
				out = append(out, Violation{rec.Idx, SlabResetsDecreased, -1, fmt.Sprintf("%d after %d", rec.SlabResets, prevResets)})
			}
			prevOOM, prevResets = rec.OOM, rec.SlabResets
		}
		for k, s := range rec.Slabs {
			if used := s.Occupied + s.LHSFragmentation + s.InBetweenFragmentation; used > s.Available {
				out = append(out, Violation{rec.Idx, SlabOverflow, k, fmt.Sprintf("%d used > %d available", used, s.Available)})
			}
		}
	}
	return out
}
