// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package allocseries compares two allocator benchmark runs position
// by position and renders the comparison as tables and charts.
//
// By convention the first run (A) is the best-fit strategy and the
// second (B) is next-fit, but nothing here depends on that.
package allocseries

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cantrip-os/allocperf/allocfmt"
	"github.com/cantrip-os/allocperf/allocmath"
)

// A Comparison pairs two Runs of the same workload.
type Comparison struct {
	A, B *allocfmt.Run

	// Assumption is used for cost summaries and significance
	// tests. If nil, allocmath.AssumeNormal is used.
	Assumption allocmath.Assumption

	// Confidence is the confidence level of summary intervals. If
	// 0, 0.95 is used.
	Confidence float64
}

// NewComparison returns a Comparison of a against b.
func NewComparison(a, b *allocfmt.Run) *Comparison {
	return &Comparison{A: a, B: b}
}

func (c *Comparison) assumption() allocmath.Assumption {
	if c.Assumption == nil {
		return allocmath.AssumeNormal
	}
	return c.Assumption
}

func (c *Comparison) confidence() float64 {
	if c.Confidence == 0 {
		return 0.95
	}
	return c.Confidence
}

// Common returns the number of positions present in both runs.
func (c *Comparison) Common() int {
	if c.A.Len() < c.B.Len() {
		return c.A.Len()
	}
	return c.B.Len()
}

// ErrRunLengthMismatch is matched by errors.Is for every
// *RunLengthMismatchError.
var ErrRunLengthMismatch = errors.New("run length mismatch")

// A RunLengthMismatchError reports a requested range that extends past
// the end of one of the compared runs.
type RunLengthMismatchError struct {
	End        int    // requested end position, exclusive
	NameA      string // names of the runs
	NameB      string
	LenA, LenB int
}

func (e *RunLengthMismatchError) Error() string {
	return fmt.Sprintf("range ends at %d, but %s has %d records and %s has %d", e.End, e.NameA, e.LenA, e.NameB, e.LenB)
}

func (e *RunLengthMismatchError) Is(target error) bool {
	return target == ErrRunLengthMismatch
}

// A Pair is the records of both runs at one position.
type Pair struct {
	Pos  int
	A, B allocfmt.Record
}

// Align returns the pairs at positions [start, end). If end is past
// the end of either run, Align returns a *RunLengthMismatchError
// instead of truncating the range.
func (c *Comparison) Align(start, end int) ([]Pair, error) {
	if start < 0 || start > end {
		return nil, fmt.Errorf("bad range [%d, %d)", start, end)
	}
	if end > c.Common() {
		return nil, &RunLengthMismatchError{
			End:   end,
			NameA: c.A.Name(),
			NameB: c.B.Name(),
			LenA:  c.A.Len(),
			LenB:  c.B.Len(),
		}
	}
	pairs := make([]Pair, 0, end-start)
	for i := start; i < end; i++ {
		pairs = append(pairs, Pair{Pos: i, A: c.A.At(i), B: c.B.At(i)})
	}
	return pairs, nil
}

// A Metric names a scalar record field that can be compared across
// runs.
type Metric int

const (
	BytesRequested Metric = iota
	BytesInUse
	BytesFree
	InstructionCount
	OOM
	SlabResets
	UntypedTooSmall
	LHSFragmentation
	InBetweenFragmentation

	numMetrics
)

var metricNames = [numMetrics]string{
	BytesRequested:         "bytes-requested",
	BytesInUse:             "bytes-in-use",
	BytesFree:              "bytes-free",
	InstructionCount:       "instruction-count",
	OOM:                    "oom",
	SlabResets:             "slab-resets",
	UntypedTooSmall:        "untyped-too-small",
	LHSFragmentation:       "lhs-fragmentation",
	InBetweenFragmentation: "in-between-fragmentation",
}

func (m Metric) String() string {
	if m < 0 || m >= numMetrics {
		return fmt.Sprintf("Metric(%d)", int(m))
	}
	return metricNames[m]
}

// ParseMetric returns the Metric named s. Underscores and spaces are
// accepted in place of hyphens.
func ParseMetric(s string) (Metric, error) {
	norm := strings.NewReplacer("_", "-", " ", "-").Replace(strings.ToLower(s))
	for m, name := range metricNames {
		if name == norm {
			return Metric(m), nil
		}
	}
	return 0, fmt.Errorf("unknown metric %q", s)
}

// Value returns m's value in rec, and false if rec's variant does not
// carry m.
func (m Metric) Value(rec *allocfmt.Record) (float64, bool) {
	v := rec.Variant
	switch m {
	case BytesRequested:
		return float64(rec.BytesRequested), v.HasCost() || v.HasFragmentation()
	case BytesInUse:
		return float64(rec.BytesInUse), v.HasCost() || v.HasFragmentation()
	case BytesFree:
		return float64(rec.BytesFree), rec.HasBytesFree
	case InstructionCount:
		return float64(rec.InstructionCount), v.HasCost()
	case OOM:
		return float64(rec.OOM), v.HasCost()
	case SlabResets:
		return float64(rec.SlabResets), v.HasCost()
	case UntypedTooSmall:
		return float64(rec.UntypedTooSmall), v.HasCost()
	case LHSFragmentation:
		return float64(rec.LHSFragmentation), v.HasFragmentation()
	case InBetweenFragmentation:
		return float64(rec.InBetweenFragmentation), v.HasFragmentation()
	}
	return 0, false
}

// Delta returns B's value of m minus A's at each position in
// [start, end). Positions where either record lacks m are NaN.
func (c *Comparison) Delta(start, end int, m Metric) ([]float64, error) {
	pairs, err := c.Align(start, end)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(pairs))
	for i := range pairs {
		a, okA := m.Value(&pairs[i].A)
		b, okB := m.Value(&pairs[i].B)
		if !okA || !okB {
			out[i] = math.NaN()
			continue
		}
		out[i] = b - a
	}
	return out, nil
}

// A ClassComparison compares the cost of one operation class.
type ClassComparison struct {
	Class allocmath.Class

	// A and B are the per-run cost means.
	A, B allocmath.ClassCost

	// SummaryA and SummaryB summarize each run's cost sample under
	// the Comparison's assumption.
	SummaryA, SummaryB allocmath.Summary

	// Test is the significance test of B against A.
	Test allocmath.Comparison
}

// Delta formats the change from A's mean to B's, or "~" if the change
// is not significant.
func (cc *ClassComparison) Delta() string {
	return cc.Test.FormatDelta(cc.A.Mean, cc.B.Mean)
}

// A CostComparison holds the per-class cost comparison of two runs.
type CostComparison struct {
	ExcludeOOM bool
	Label      string // summary statistic label, e.g. "mean"
	Classes    []ClassComparison
}

// Costs compares the per-class instruction counts of the two runs.
// With excludeOOM, operations that triggered an OOM event are left out
// of both the means and the significance test.
func (c *Comparison) Costs(excludeOOM bool) *CostComparison {
	a, b := c.A.Records(), c.B.Records()
	sumA := allocmath.Costs(a, excludeOOM)
	sumB := allocmath.Costs(b, excludeOOM)
	assume, conf := c.assumption(), c.confidence()

	out := &CostComparison{ExcludeOOM: excludeOOM, Label: assume.SummaryLabel()}
	for _, class := range allocmath.Classes {
		sa := allocmath.CostSample(a, class, excludeOOM)
		sb := allocmath.CostSample(b, class, excludeOOM)
		out.Classes = append(out.Classes, ClassComparison{
			Class:    class,
			A:        sumA.Class(class),
			B:        sumB.Class(class),
			SummaryA: assume.Summary(sa, conf),
			SummaryB: assume.Summary(sb, conf),
			Test:     assume.Compare(sa, sb),
		})
	}
	return out
}
