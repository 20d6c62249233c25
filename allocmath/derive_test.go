// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocmath

import (
	"math"
	"testing"

	"github.com/cantrip-os/allocperf/allocfmt"
	"github.com/google/go-cmp/cmp"
)

func costRec(idx, instr, oom int64, alloc bool) allocfmt.Record {
	return allocfmt.Record{
		Variant:          allocfmt.Throughput,
		Idx:              idx,
		BytesRequested:   64,
		BytesInUse:       64,
		Allocation:       alloc,
		InstructionCount: instr,
		OOM:              oom,
	}
}

func TestOOMEvents(t *testing.T) {
	var recs []allocfmt.Record
	for i, oom := range []int64{0, 0, 1, 1, 2} {
		recs = append(recs, costRec(int64(i), 10, oom, true))
	}
	want := []bool{false, false, true, false, true}
	if diff := cmp.Diff(want, OOMEvents(recs)); diff != "" {
		t.Errorf("events differ (-want +got):\n%s", diff)
	}
	if got := OOMCount(recs); got != 2 {
		t.Errorf("OOMCount = %d, want 2", got)
	}

	// The first record is compared against 0.
	if got := OOMEvents([]allocfmt.Record{costRec(0, 1, 3, true)}); !got[0] {
		t.Errorf("first record with oom=3 is not an event")
	}

	// Records without cost fields are skipped.
	mixed := []allocfmt.Record{
		costRec(0, 1, 1, true),
		{Variant: allocfmt.Fragmentation, Idx: 1},
		costRec(2, 1, 1, true),
	}
	if diff := cmp.Diff([]bool{true, false, false}, OOMEvents(mixed)); diff != "" {
		t.Errorf("mixed events differ (-want +got):\n%s", diff)
	}
}

// costFixture has an OOM event on its most expensive allocation.
func costFixture() []allocfmt.Record {
	return []allocfmt.Record{
		costRec(0, 100, 0, true),
		costRec(1, 40, 0, false),
		costRec(2, 120, 0, true),
		costRec(3, 5000, 1, true),
		costRec(4, 60, 1, false),
		costRec(5, 110, 1, true),
	}
}

func TestCosts(t *testing.T) {
	recs := costFixture()

	all := Costs(recs, false)
	if all.Alloc.N != 4 || all.Alloc.Mean != (100+120+5000+110)/4.0 {
		t.Errorf("alloc = %+v, want N=4 mean=%v", all.Alloc, (100+120+5000+110)/4.0)
	}
	if all.Free.N != 2 || all.Free.Mean != 50 {
		t.Errorf("free = %+v, want N=2 mean=50", all.Free)
	}

	ex := Costs(recs, true)
	if ex.Alloc.N != 3 || ex.Alloc.Excluded != 1 || ex.Alloc.Mean != 110 {
		t.Errorf("alloc excluding OOM = %+v, want N=3 Excluded=1 mean=110", ex.Alloc)
	}
	if ex.Class(Alloc).Mean > all.Class(Alloc).Mean {
		t.Errorf("mean excluding OOM %v > unfiltered mean %v", ex.Alloc.Mean, all.Alloc.Mean)
	}
	if ex.Free != all.Free {
		t.Errorf("free changed by OOM exclusion: %+v vs %+v", ex.Free, all.Free)
	}
}

func TestCostsEmptyClass(t *testing.T) {
	recs := []allocfmt.Record{costRec(0, 10, 0, true)}
	s := Costs(recs, false)
	if s.Free.N != 0 || !math.IsNaN(s.Free.Mean) {
		t.Errorf("free = %+v, want N=0 and NaN mean", s.Free)
	}

	// An OOM on the only allocation empties the class.
	s = Costs([]allocfmt.Record{costRec(0, 10, 1, true)}, true)
	if s.Alloc.N != 0 || s.Alloc.Excluded != 1 || !math.IsNaN(s.Alloc.Mean) {
		t.Errorf("alloc = %+v, want N=0, Excluded=1, NaN mean", s.Alloc)
	}
}

func TestCostSample(t *testing.T) {
	s := CostSample(costFixture(), Alloc, true)
	if diff := cmp.Diff([]float64{100, 110, 120}, s.Values); diff != "" {
		t.Errorf("values differ (-want +got):\n%s", diff)
	}
	if len(s.Warnings) != 1 {
		t.Errorf("warnings %v, want one about the excluded record", s.Warnings)
	}
	if got := AssumeNormal.Summary(s, 0.95).Center; got != 110 {
		t.Errorf("mean = %v, want 110", got)
	}
	if got := AssumeNothing.Summary(s, 0.95).Center; got != 110 {
		t.Errorf("median = %v, want 110", got)
	}
}
