// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package db_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cantrip-os/allocperf/allocfmt"
	. "github.com/cantrip-os/allocperf/storage/db"
	"github.com/cantrip-os/allocperf/storage/db/dbtest"
	"github.com/google/go-cmp/cmp"
)

func testRun(t *testing.T, fileName, label string) *allocfmt.Run {
	t.Helper()
	recs := []allocfmt.Record{
		{Variant: allocfmt.Throughput, Idx: 0, BytesRequested: 64, BytesInUse: 64, Allocation: true, InstructionCount: 120},
		{Variant: allocfmt.Fragmentation, Idx: 1, BytesRequested: 32, BytesInUse: 96, BytesFree: 928, HasBytesFree: true, LHSFragmentation: 16, InBetweenFragmentation: 8},
		{Variant: allocfmt.FragmentationThroughput, Idx: 2, BytesRequested: 32, BytesInUse: 64, InstructionCount: 40, SlabResets: 1, UntypedTooSmall: 2, OOM: 1, LHSFragmentation: 16},
		{Variant: allocfmt.PerSlab, Idx: 3, Slabs: []allocfmt.Slab{
			{LHSFragmentation: 16, InBetweenFragmentation: 8, Occupied: 64, Available: 1024},
			{Occupied: 0, Available: 512},
		}},
		{Variant: allocfmt.PerSlab, Idx: 5, Slabs: []allocfmt.Slab{
			{Occupied: 32, Available: 1024},
			{Occupied: 128, Available: 512},
		}},
	}
	run, err := allocfmt.NewRun(fileName, recs)
	if err != nil {
		t.Fatal(err)
	}
	run.Label = label
	run.Marker = "replay_app"
	return run
}

func TestInsertLoadRun(t *testing.T) {
	ctx := context.Background()
	db := dbtest.NewDB(t)

	run := testRun(t, "logs/random.best.log", "best")
	id, err := db.InsertRun(ctx, run)
	if err != nil {
		t.Fatalf("InsertRun: %v", err)
	}

	got, err := db.LoadRun(ctx, id)
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if diff := cmp.Diff(run.Records(), got.Records()); diff != "" {
		t.Errorf("records differ (-want +got):\n%s", diff)
	}
	if got.FileName != run.FileName || got.Label != "best" || got.Marker != "replay_app" {
		t.Errorf("got run %q label %q marker %q", got.FileName, got.Label, got.Marker)
	}
	if got.SlabCount() != 2 {
		t.Errorf("SlabCount = %d, want 2", got.SlabCount())
	}

	var slabs int
	if err := DBSQL(db).QueryRow("SELECT COUNT(*) FROM Slabs WHERE RunID = ?", id).Scan(&slabs); err != nil {
		t.Fatal(err)
	}
	if slabs != 4 {
		t.Errorf("stored %d slab rows, want 4", slabs)
	}
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	db := dbtest.NewDB(t)

	var ids []int64
	for _, r := range []struct{ file, label string }{
		{"logs/random.best.log", "best"},
		{"logs/random.next.log", ""},
		{"logs/trace.best.log", "best"},
	} {
		id, err := db.InsertRun(ctx, testRun(t, r.file, r.label))
		if err != nil {
			t.Fatalf("InsertRun: %v", err)
		}
		ids = append(ids, id)
	}

	if n, err := db.CountRuns(); err != nil || n != 3 {
		t.Errorf("CountRuns = %d, %v; want 3", n, err)
	}

	all, err := db.ListRuns(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for i := range all {
		names = append(names, all[i].Name())
		if all[i].Records != 5 {
			t.Errorf("run %d: %d records, want 5", all[i].ID, all[i].Records)
		}
		if all[i].Lines != 5 || all[i].Dropped != 0 {
			t.Errorf("run %d: %d lines, %d dropped; want 5, 0", all[i].ID, all[i].Lines, all[i].Dropped)
		}
	}
	if diff := cmp.Diff([]string{"best", "random.next", "best"}, names); diff != "" {
		t.Errorf("names differ (-want +got):\n%s", diff)
	}

	best, err := db.ListRuns(ctx, "best")
	if err != nil {
		t.Fatal(err)
	}
	if len(best) != 2 || best[0].ID != ids[0] || best[1].ID != ids[2] {
		t.Errorf("ListRuns(best) = %+v, want runs %d and %d", best, ids[0], ids[2])
	}
}

func TestDeleteRun(t *testing.T) {
	ctx := context.Background()
	db := dbtest.NewDB(t)

	id, err := db.InsertRun(ctx, testRun(t, "a.log", ""))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteRun(ctx, id); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	for _, table := range []string{"Runs", "Records", "Slabs"} {
		var n int
		if err := DBSQL(db).QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("%s has %d rows after DeleteRun", table, n)
		}
	}

	if err := db.DeleteRun(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteRun: got %v, want ErrNotFound", err)
	}
	if _, err := db.LoadRun(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadRun of deleted run: got %v, want ErrNotFound", err)
	}
}

func TestInsertRunRollback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	db := dbtest.NewDB(t)

	if _, err := db.InsertRun(ctx, testRun(t, "a.log", "")); err == nil {
		t.Fatal("InsertRun with canceled context succeeded")
	}
	if n, err := db.CountRuns(); err != nil || n != 0 {
		t.Errorf("CountRuns = %d, %v after failed insert; want 0", n, err)
	}
}
