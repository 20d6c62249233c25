// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package allocstat summarizes the comparison of two allocator runs.
//
// A Report is a list of Tables: record accounting, per-class
// instruction cost with and without OOM positions, and the final
// fragmentation state. Reports can be written as aligned text, CSV, or
// HTML.
package allocstat

import (
	"fmt"
	"math"

	"github.com/cantrip-os/allocperf/allocfmt"
	"github.com/cantrip-os/allocperf/allocmath"
	"github.com/cantrip-os/allocperf/allocseries"
	"github.com/cantrip-os/allocperf/allocunit"
)

// A Report compares run A (the baseline) against run B.
type Report struct {
	NameA, NameB string
	Tables       []*Table

	// Warnings collects the warnings of every summary and test in
	// the report.
	Warnings []error
}

// A Table is one section of a Report.
type Table struct {
	Title string
	Unit  allocunit.Unit

	// HasDelta indicates the rows carry confidence ranges, a delta
	// and a test note.
	HasDelta bool

	Rows []*Row
}

// A Row is one measured quantity in both runs.
type Row struct {
	Name string

	// A and B are the raw values. NaN means the run has no value.
	A, B float64

	// RangeA and RangeB are the confidence ranges, such as "±3%".
	RangeA, RangeB string

	Delta string
	Note  string
}

// NewReport builds the report of c.
func NewReport(c *allocseries.Comparison) *Report {
	r := &Report{NameA: c.A.Name(), NameB: c.B.Name()}
	r.Tables = append(r.Tables, runTable(c.A, c.B))
	for _, excludeOOM := range []bool{false, true} {
		r.Tables = append(r.Tables, r.costTable(c.Costs(excludeOOM)))
	}
	if t := fragTable(c.A.Records(), c.B.Records()); t != nil {
		r.Tables = append(r.Tables, t)
	}
	return r
}

func runTable(a, b *allocfmt.Run) *Table {
	recsA, recsB := a.Records(), b.Records()
	row := func(name string, va, vb int) *Row {
		return &Row{Name: name, A: float64(va), B: float64(vb)}
	}
	return &Table{
		Title: "records",
		Unit:  allocunit.Count,
		Rows: []*Row{
			row("accepted", a.Len(), b.Len()),
			row("dropped lines", a.Stats.TotalDropped(), b.Stats.TotalDropped()),
			row("oom events", allocmath.OOMCount(recsA), allocmath.OOMCount(recsB)),
			row("violations", len(allocmath.Check(recsA)), len(allocmath.Check(recsB))),
		},
	}
}

func (r *Report) costTable(cc *allocseries.CostComparison) *Table {
	t := &Table{
		Title:    "instruction count (" + cc.Label + ")",
		Unit:     allocunit.Instructions,
		HasDelta: true,
	}
	if cc.ExcludeOOM {
		t.Title = "instruction count (" + cc.Label + ", excluding oom)"
	}
	for i := range cc.Classes {
		c := &cc.Classes[i]
		t.Rows = append(t.Rows, &Row{
			Name:   c.Class.String(),
			A:      c.A.Mean,
			B:      c.B.Mean,
			RangeA: "±" + c.SummaryA.PctRangeString(),
			RangeB: "±" + c.SummaryB.PctRangeString(),
			Delta:  c.Delta(),
			Note:   c.Test.String(),
		})
		r.warn(t.Title, c.Class, r.NameA, c.SummaryA.Warnings)
		r.warn(t.Title, c.Class, r.NameB, c.SummaryB.Warnings)
		r.warn(t.Title, c.Class, "", c.Test.Warnings)
	}
	return t
}

func (r *Report) warn(title string, class allocmath.Class, name string, errs []error) {
	for _, err := range errs {
		if name == "" {
			r.Warnings = append(r.Warnings, fmt.Errorf("%s: %s: %w", title, class, err))
		} else {
			r.Warnings = append(r.Warnings, fmt.Errorf("%s: %s: %s: %w", title, class, name, err))
		}
	}
}

// fragTable reports the last fragmentation point of each run, or nil
// if neither run has one.
func fragTable(recsA, recsB []allocfmt.Record) *Table {
	fa, fb := allocmath.Fragmentation(recsA), allocmath.Fragmentation(recsB)
	if len(fa) == 0 && len(fb) == 0 {
		return nil
	}
	last := func(ps []allocmath.FragPoint, f func(p *allocmath.FragPoint) int64) float64 {
		if len(ps) == 0 {
			return math.NaN()
		}
		return float64(f(&ps[len(ps)-1]))
	}
	t := &Table{Title: "final fragmentation", Unit: allocunit.Bytes}
	for _, m := range []struct {
		name string
		f    func(p *allocmath.FragPoint) int64
	}{
		{"bytes in-use", func(p *allocmath.FragPoint) int64 { return p.BytesInUse }},
		{"lhs fragmentation", func(p *allocmath.FragPoint) int64 { return p.LHS }},
		{"in-between fragmentation", func(p *allocmath.FragPoint) int64 { return p.InBetween }},
	} {
		a, b := last(fa, m.f), last(fb, m.f)
		// A zero Comparison always reports the percent change.
		t.Rows = append(t.Rows, &Row{Name: m.name, A: a, B: b, Delta: allocmath.Comparison{}.FormatDelta(a, b)})
	}
	return t
}

// scaler returns the common scale for the values of t.
func (t *Table) scaler() allocunit.Scaler {
	if t.Unit == allocunit.Count {
		return allocunit.Scaler{Prec: 0, Factor: 1}
	}
	var vals []float64
	for _, row := range t.Rows {
		vals = append(vals, row.A, row.B)
	}
	return allocunit.CommonScale(vals, t.Unit.Class())
}

func (t *Table) format(s allocunit.Scaler, v float64, raw bool) string {
	switch {
	case math.IsNaN(v) && raw:
		return ""
	case math.IsNaN(v):
		return "?"
	case raw:
		return s.Format(v)
	}
	return s.FormatUnit(v, t.Unit)
}
