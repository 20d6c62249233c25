// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocfmt

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriter(t *testing.T) {
	var buf strings.Builder
	w := NewWriter(&buf)
	w.Prefix = "INFO "
	if err := w.WriteBegin(""); err != nil {
		t.Fatal(err)
	}
	rec := Record{Variant: PerSlab, Idx: 3, Slabs: []Slab{{0, 8, 4096, 0}, {16, 0, 2048, 2032}}}
	if err := w.Write(&rec); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteEnd(); err != nil {
		t.Fatal(err)
	}
	const want = `Begin synthetic workload!
INFO {'idx': 3, 'lhs_fragmentation_per_slab': [0, 16], 'in_between_fragmentation_per_slab': [8, 0], 'occupied_memory_per_slab': [4096, 2048], 'available_space_per_slab': [0, 2032]}
Done :)
`
	if got := buf.String(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	recs := []Record{
		tp(0, 64, 64, 1200, 0, true),
		{Variant: Fragmentation, Idx: 1, BytesRequested: 64, BytesInUse: 80, LHSFragmentation: 16, BytesFree: 4000, HasBytesFree: true},
		{Variant: FragmentationThroughput, Idx: 2, BytesRequested: 32, BytesInUse: 80, InstructionCount: 90, OOM: 1, SlabResets: 2, UntypedTooSmall: 3, InBetweenFragmentation: 8},
		{Variant: PerSlab, Idx: 7, Slabs: []Slab{{1, 2, 3, 4}}},
	}

	var buf strings.Builder
	w := NewWriter(&buf)
	w.WriteBegin("replay_app")
	for i := range recs {
		if err := w.Write(&recs[i]); err != nil {
			t.Fatal(err)
		}
	}
	w.WriteEnd()

	run, err := ReadRun(strings.NewReader(buf.String()), "roundtrip")
	if err != nil {
		t.Fatal(err)
	}
	if run.Marker != "replay_app" {
		t.Errorf("Marker = %q, want replay_app", run.Marker)
	}
	if diff := cmp.Diff(recs, run.Records()); diff != "" {
		t.Errorf("records differ (-want +got):\n%s", diff)
	}
	if n := run.Stats.TotalDropped(); n != 0 {
		t.Errorf("%d lines dropped: %s", n, run.Stats)
	}
}
