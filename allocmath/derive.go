// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocmath

import (
	"fmt"
	"math"

	"github.com/aclements/go-moremath/stats"
	"github.com/cantrip-os/allocperf/allocfmt"
)

// OOMEvents reports, for each record, whether an out-of-memory event
// happened at that operation: the cumulative OOM counter rose above
// its value at the previous cost-bearing record (0 before the first).
//
// Records without cost fields never carry an event and do not reset
// the previous value.
func OOMEvents(recs []allocfmt.Record) []bool {
	events := make([]bool, len(recs))
	var prev int64
	for i := range recs {
		if !recs[i].Variant.HasCost() {
			continue
		}
		events[i] = recs[i].OOM > prev
		prev = recs[i].OOM
	}
	return events
}

// OOMCount returns the number of out-of-memory events in recs.
func OOMCount(recs []allocfmt.Record) int {
	n := 0
	for _, ev := range OOMEvents(recs) {
		if ev {
			n++
		}
	}
	return n
}

// A Class partitions cost-bearing records by operation kind.
type Class int

const (
	Alloc Class = iota
	Free
)

func (c Class) String() string {
	switch c {
	case Alloc:
		return "alloc"
	case Free:
		return "free"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Classes lists every Class in presentation order.
var Classes = []Class{Alloc, Free}

func classOf(rec *allocfmt.Record) Class {
	if rec.Allocation {
		return Alloc
	}
	return Free
}

// A ClassCost summarizes the instruction counts of one class.
type ClassCost struct {
	// N is the number of records contributing to Mean.
	N int

	// Mean is the mean instruction count, or NaN if N is 0.
	Mean float64

	// Excluded is the number of records left out because an OOM
	// event co-occurred.
	Excluded int
}

// A CostSummary is the per-class cost of a record sequence.
type CostSummary struct {
	Alloc, Free ClassCost

	// ExcludeOOM records whether OOM positions were excluded.
	ExcludeOOM bool
}

// Class returns the summary of class c.
func (s CostSummary) Class(c Class) ClassCost {
	if c == Alloc {
		return s.Alloc
	}
	return s.Free
}

// Costs partitions the cost-bearing records of recs by operation kind
// and computes the mean instruction count of each class. If excludeOOM
// is set, records at which an OOM event occurred are left out, so that
// the failure path does not distort the mean.
func Costs(recs []allocfmt.Record, excludeOOM bool) CostSummary {
	sum := CostSummary{ExcludeOOM: excludeOOM}
	for _, c := range Classes {
		xs, excluded := costValues(recs, c, excludeOOM)
		cc := ClassCost{N: len(xs), Mean: math.NaN(), Excluded: excluded}
		if len(xs) > 0 {
			cc.Mean = stats.Mean(xs)
		}
		if c == Alloc {
			sum.Alloc = cc
		} else {
			sum.Free = cc
		}
	}
	return sum
}

// CostSample returns the instruction counts of class c as a Sample,
// for use with an Assumption. The Sample uses DefaultAlpha.
func CostSample(recs []allocfmt.Record, c Class, excludeOOM bool) *Sample {
	xs, excluded := costValues(recs, c, excludeOOM)
	s := NewSample(xs)
	if len(xs) == 0 {
		s.Warnings = append(s.Warnings, fmt.Errorf("no %s records", c))
	}
	if excluded > 0 {
		s.Warnings = append(s.Warnings, fmt.Errorf("%d %s records with OOM events excluded", excluded, c))
	}
	return s
}

func costValues(recs []allocfmt.Record, c Class, excludeOOM bool) (xs []float64, excluded int) {
	var events []bool
	if excludeOOM {
		events = OOMEvents(recs)
	}
	for i := range recs {
		rec := &recs[i]
		if !rec.Variant.HasCost() || classOf(rec) != c {
			continue
		}
		if excludeOOM && events[i] {
			excluded++
			continue
		}
		xs = append(xs, float64(rec.InstructionCount))
	}
	return xs, excluded
}
