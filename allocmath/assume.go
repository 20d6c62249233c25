// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocmath

import (
	"fmt"
	"math"

	"github.com/aclements/go-moremath/stats"
)

// AssumeNormal is an assumption that a sample is normally distributed.
// The summary statistic is the sample mean and comparisons are done
// using Welch's two-sample t-test.
//
// Per-operation costs are the usual example: the allocator's
// instruction counts cluster tightly around a typical value.
var AssumeNormal = assumeNormal{}

type assumeNormal struct{}

var _ Assumption = assumeNormal{}

func (assumeNormal) SummaryLabel() string {
	return "mean"
}

func (assumeNormal) Summary(s *Sample, confidence float64) Summary {
	if len(s.Values) == 0 {
		return emptySummary()
	}
	mean, lo, hi := s.sample().MeanCI(confidence)
	return Summary{
		Center:     mean,
		Lo:         lo,
		Hi:         hi,
		Confidence: confidence,
	}
}

func (assumeNormal) Compare(s1, s2 *Sample) Comparison {
	t, err := stats.TwoSampleWelchTTest(s1.sample(), s2.sample(), stats.LocationDiffers)
	if err != nil {
		// Report as if there's no significant difference, along
		// with the error.
		return Comparison{P: 1, N1: len(s1.Values), N2: len(s2.Values), Alpha: alpha(s1), Warnings: []error{err}}
	}
	return Comparison{P: t.P, N1: len(s1.Values), N2: len(s2.Values), Alpha: alpha(s1)}
}

// AssumeNothing is a non-parametric assumption. The summary statistic
// is the sample median with an order-statistic confidence interval and
// comparisons are done using the Mann-Whitney U-test.
//
// Use it for cost samples with heavy tails, such as allocations that
// trigger slab resets.
var AssumeNothing = assumeNothing{}

type assumeNothing struct{}

var _ Assumption = assumeNothing{}

func (assumeNothing) SummaryLabel() string {
	return "median"
}

func (assumeNothing) Summary(s *Sample, confidence float64) Summary {
	n := len(s.Values)
	if n == 0 {
		return emptySummary()
	}
	median := s.sample().Quantile(0.5)

	// The interval [x[k], x[n-1-k]] covers the median with
	// probability 1 - 2*P(B <= k) for B ~ Binomial(n, 1/2). Find
	// the narrowest such interval that still reaches confidence.
	d := stats.BinomialDist{N: n, P: 0.5}
	k, cover := -1, 0.0
	tail := 0.0
	for i := 0; i < n/2; i++ {
		tail += d.PMF(float64(i))
		c := 1 - 2*tail
		if c < confidence {
			break
		}
		k, cover = i, c
	}
	if k < 0 {
		inf := math.Inf(1)
		return Summary{
			Center:     median,
			Lo:         -inf,
			Hi:         inf,
			Confidence: 1,
			Warnings:   []error{fmt.Errorf("%d samples are too few for a confidence interval at level %v", n, confidence)},
		}
	}
	return Summary{
		Center:     median,
		Lo:         s.Values[k],
		Hi:         s.Values[n-1-k],
		Confidence: cover,
	}
}

func (assumeNothing) Compare(s1, s2 *Sample) Comparison {
	u, err := stats.MannWhitneyUTest(s1.Values, s2.Values, stats.LocationDiffers)
	if err != nil {
		return Comparison{P: 1, N1: len(s1.Values), N2: len(s2.Values), Alpha: alpha(s1), Warnings: []error{err}}
	}
	return Comparison{P: u.P, N1: len(s1.Values), N2: len(s2.Values), Alpha: alpha(s1)}
}

// AssumeExact is an assumption that a value can be measured exactly
// and thus has no distribution and does not require repeated sampling.
// It reports a warning if not all values in a sample are equal.
//
// Final fragmentation and OOM totals are exact in this sense: a run
// reports them once.
var AssumeExact = assumeExact{}

type assumeExact struct{}

var _ Assumption = assumeExact{}

func (assumeExact) SummaryLabel() string {
	return "exact"
}

func (assumeExact) Summary(s *Sample, confidence float64) Summary {
	if len(s.Values) == 0 {
		return emptySummary()
	}
	// Find the sample's mode, so the summary is reasonable even
	// when the values differ.
	val, count := s.Values[0], 1
	modeVal, modeCount := val, count
	for _, v := range s.Values[1:] {
		if v == val {
			count++
			if count > modeCount {
				modeVal, modeCount = val, count
			}
		} else {
			val, count = v, 1
		}
	}
	summary := Summary{Center: modeVal, Lo: s.Values[0], Hi: s.Values[len(s.Values)-1], Confidence: 1}

	if modeCount != len(s.Values) {
		summary.Warnings = []error{fmt.Errorf("exact distribution expected, but values range from %v to %v", s.Values[0], s.Values[len(s.Values)-1])}
	}
	return summary
}

func (assumeExact) Compare(s1, s2 *Sample) Comparison {
	return Comparison{P: 0, N1: len(s1.Values), N2: len(s2.Values), Alpha: alpha(s1)}
}
