// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package allocmath derives metrics from allocator benchmark records:
// out-of-memory events, per-operation cost, and the decomposition of
// fragmentation.
//
// Cost samples are summarized and compared under an Assumption, which
// picks the summary statistic and the significance test together.
// Problems that do not stop the analysis, such as an empty class or a
// sample too small for the requested confidence, are returned as
// Warnings next to the result.
package allocmath

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/aclements/go-moremath/mathx"
	"github.com/aclements/go-moremath/stats"
)

// DefaultAlpha is the significance level used when a Sample does not
// set one.
const DefaultAlpha = 0.05

// A Sample holds the instruction counts of one operation class of a
// run, sorted ascending.
type Sample struct {
	Values []float64

	// Alpha is the significance level for comparisons against
	// this sample. Zero means DefaultAlpha.
	Alpha float64

	Warnings []error
}

// NewSample returns a Sample of values, sorting them in place.
func NewSample(values []float64) *Sample {
	sort.Float64s(values)
	return &Sample{Values: values}
}

func (s *Sample) sample() stats.Sample {
	return stats.Sample{Xs: s.Values, Sorted: true}
}

func alpha(s *Sample) float64 {
	if s.Alpha == 0 {
		return DefaultAlpha
	}
	return s.Alpha
}

// An Assumption is a distributional assumption about cost samples.
type Assumption interface {
	// SummaryLabel names the summary statistic, such as "mean".
	SummaryLabel() string

	// Summary computes the summary statistic of s and an interval
	// around it at the given confidence level in [0, 1].
	Summary(s *Sample, confidence float64) Summary

	// Compare tests s1 and s2 for a difference in location.
	Compare(s1, s2 *Sample) Comparison
}

// A Summary is a central value with an interval around it.
type Summary struct {
	Center float64 // NaN for an empty sample
	Lo, Hi float64

	// Confidence is the coverage actually achieved by [Lo, Hi],
	// at least the requested level.
	Confidence float64

	Warnings []error
}

var errEmptySample = errors.New("no samples")

func emptySummary() Summary {
	nan := math.NaN()
	return Summary{Center: nan, Lo: nan, Hi: nan, Warnings: []error{errEmptySample}}
}

// PctRangeString formats the interval as the larger of its two
// distances from Center, relative to Center: "±" + "5%" reads as the
// cost being known to within five percent. It returns "?" when the
// interval straddles zero or Center is undefined, and "∞" for an
// unbounded interval.
func (s Summary) PctRangeString() string {
	switch {
	case math.IsNaN(s.Center):
		return "?"
	case math.IsInf(s.Lo, 0) || math.IsInf(s.Hi, 0):
		return "∞"
	}
	sign := mathx.Sign(s.Center)
	if mathx.Sign(s.Lo) != sign || mathx.Sign(s.Hi) != sign {
		return "?"
	}
	if s.Center == 0 {
		// Lo and Hi are zero too.
		return "0%"
	}
	up, down := s.Hi/s.Center-1, 1-s.Lo/s.Center
	return fmt.Sprintf("%.0f%%", 100*math.Max(up, down))
}

// A Comparison is the outcome of a significance test between two
// samples of sizes N1 and N2.
type Comparison struct {
	// P is the p-value. Zero marks an exact comparison, which is
	// always significant.
	P      float64
	N1, N2 int
	Alpha  float64

	Warnings []error
}

// String formats the test for a note column, "p=0.012 n=8+10". The
// p-value is left out of exact comparisons and the sizes are merged
// when equal.
func (c Comparison) String() string {
	n := fmt.Sprintf("n=%d+%d", c.N1, c.N2)
	if c.N1 == c.N2 {
		n = fmt.Sprintf("n=%d", c.N1)
	}
	if c.P == 0 {
		return n
	}
	return fmt.Sprintf("p=%0.3f %s", c.P, n)
}

// FormatDelta formats the relative change from old to new, the
// centers of the compared samples, as a signed percentage. It returns
// "~" when the test found no significant difference and "?" when the
// change is undefined.
func (c Comparison) FormatDelta(old, new float64) string {
	switch {
	case c.P > c.Alpha:
		return "~"
	case math.IsNaN(old) || math.IsNaN(new):
		return "?"
	case old == new:
		return "0.00%"
	case old == 0:
		return "?"
	}
	return fmt.Sprintf("%+.2f%%", (new/old-1)*100)
}
