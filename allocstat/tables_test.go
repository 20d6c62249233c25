// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocstat

import (
	"strings"
	"testing"

	"github.com/aclements/go-gg/table"
	"github.com/cantrip-os/allocperf/allocfmt"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestRecordTable(t *testing.T) {
	c := fixture(t)
	tab := RecordTable(c.B)
	if tab.Len() != 8 {
		t.Fatalf("got %d rows, want 8", tab.Len())
	}
	instr := tab.MustColumn("instructions").([]int64)
	if diff := cmp.Diff([]int64{200, 202, 5000, 204, 206, 50, 52, 54}, instr); diff != "" {
		t.Errorf("instructions differ (-want +got):\n%s", diff)
	}
	if run, ok := tab.Const("run"); !ok || run != "random.next" {
		t.Errorf("run = %v, %v; want random.next", run, ok)
	}

	var buf strings.Builder
	if err := table.Fprint(&buf, tab); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "idx") {
		t.Errorf("printed table does not start with the idx column:\n%s", buf.String())
	}
}

func TestClassTable(t *testing.T) {
	c := fixture(t)
	check := func(run *allocfmt.Run, excludeOOM bool, count []int, mean, min, max []float64) {
		t.Helper()
		tab := table.Flatten(ClassTable(run, excludeOOM))
		if diff := cmp.Diff([]string{"alloc", "free"}, tab.MustColumn("class")); diff != "" {
			t.Errorf("class differs (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(count, tab.MustColumn("count")); diff != "" {
			t.Errorf("count differs (-want +got):\n%s", diff)
		}
		for col, want := range map[string][]float64{
			"mean instructions": mean,
			"min instructions":  min,
			"max instructions":  max,
		} {
			if diff := cmp.Diff(want, tab.MustColumn(col), cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("%s differs (-want +got):\n%s", col, diff)
			}
		}
	}

	check(c.A, false, []int{4, 3}, []float64{103, 52}, []float64{100, 50}, []float64{106, 54})
	check(c.B, true, []int{4, 3}, []float64{203, 52}, []float64{200, 50}, []float64{206, 54})
	check(c.B, false, []int{5, 3}, []float64{1162.4, 52}, []float64{200, 50}, []float64{5000, 54})
}

func TestClassTableEmpty(t *testing.T) {
	run, err := allocfmt.NewRun("empty.log", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cols := ClassTable(run, false).Columns(); len(cols) != 0 {
		t.Errorf("got columns %v for an empty run", cols)
	}
}
