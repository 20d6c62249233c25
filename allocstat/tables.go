// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocstat

import (
	"github.com/aclements/go-gg/ggstat"
	"github.com/aclements/go-gg/table"
	"github.com/cantrip-os/allocperf/allocfmt"
	"github.com/cantrip-os/allocperf/allocmath"
)

// RecordTable returns the records of run as a table with one row per
// record. Fields a record's variant does not carry are zero.
func RecordTable(run *allocfmt.Run) *table.Table {
	recs := run.Records()
	n := len(recs)
	var (
		idx       = make([]int64, n)
		variant   = make([]string, n)
		requested = make([]int64, n)
		inUse     = make([]int64, n)
		instr     = make([]int64, n)
		oom       = make([]int64, n)
		lhs       = make([]int64, n)
		between   = make([]int64, n)
		slabs     = make([]int, n)
	)
	for i := range recs {
		rec := &recs[i]
		idx[i] = rec.Idx
		variant[i] = rec.Variant.String()
		requested[i] = rec.BytesRequested
		inUse[i] = rec.BytesInUse
		instr[i] = rec.InstructionCount
		oom[i] = rec.OOM
		lhs[i] = rec.LHSFragmentation
		between[i] = rec.InBetweenFragmentation
		slabs[i] = len(rec.Slabs)
	}
	return new(table.Builder).
		Add("idx", idx).
		Add("variant", variant).
		Add("bytes requested", requested).
		Add("bytes in-use", inUse).
		Add("instructions", instr).
		Add("oom", oom).
		Add("lhs", lhs).
		Add("in-between", between).
		Add("slabs", slabs).
		AddConst("run", run.Name()).
		Done()
}

// ClassTable aggregates the cost-bearing records of run by operation
// class. Each row holds the class, "count", and the "mean", "min" and
// "max" of "instructions". If excludeOOM is set, records at which an
// OOM event occurred are left out.
//
// If run has no cost-bearing records, ClassTable returns an empty
// table.
func ClassTable(run *allocfmt.Run, excludeOOM bool) table.Grouping {
	recs := run.Records()
	events := allocmath.OOMEvents(recs)
	var classes []string
	var instr []float64
	for i := range recs {
		rec := &recs[i]
		if !rec.Variant.HasCost() || (excludeOOM && events[i]) {
			continue
		}
		class := allocmath.Free
		if rec.Allocation {
			class = allocmath.Alloc
		}
		classes = append(classes, class.String())
		instr = append(instr, float64(rec.InstructionCount))
	}
	if len(classes) == 0 {
		return new(table.Builder).Done()
	}
	t := new(table.Builder).
		Add("class", classes).
		Add("instructions", instr).
		Done()
	return ggstat.Agg("class")(
		ggstat.AggCount("count"),
		ggstat.AggMean("instructions"),
		ggstat.AggMin("instructions"),
		ggstat.AggMax("instructions"),
	).F(t)
}
