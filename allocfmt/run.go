// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocfmt

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// A Run is the ordered sequence of records produced by one benchmark
// execution under one allocation strategy.
//
// A Run is immutable once constructed. It is safe to share between
// goroutines.
type Run struct {
	// FileName is the log the Run was read from, if any.
	FileName string

	// Label names the Run for presentation. Files sets it from
	// label=path arguments; otherwise it is empty and Name falls
	// back to the file name.
	Label string

	// Marker is the begin marker that opened the measured phase.
	Marker string

	// Stats accounts for the lines of the measured phase.
	Stats Stats

	records []Record
}

// NewRun builds a Run from recs, checking that idx is strictly
// increasing among operations and among per-slab snapshots, and that
// every per-slab record has the same number of slabs. It copies recs.
func NewRun(fileName string, recs []Record) (*Run, error) {
	var adm admitter
	out := make([]Record, len(recs))
	for i := range recs {
		rec := recs[i].Clone()
		if rec.Idx < 0 {
			return nil, fmt.Errorf("%s: record %d: negative idx %d", fileName, i, rec.Idx)
		}
		if _, err := adm.admit(rec); err != nil {
			return nil, fmt.Errorf("%s: record %d: %w", fileName, i, err)
		}
		out[i] = *rec
	}
	return &Run{
		FileName: fileName,
		Stats:    Stats{Lines: len(recs), Accepted: len(recs), Ended: true},
		records:  out,
	}, nil
}

// ReadRun reads a complete benchmark log from r.
func ReadRun(r io.Reader, fileName string) (*Run, error) {
	return NewReader(r, fileName).ReadRun()
}

// ReadFile reads the benchmark log at path.
func ReadFile(path string) (*Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRun(f, path)
}

// Name returns the Run's label, or the base name of its file without
// the final extension if it has no label.
func (r *Run) Name() string {
	if r.Label != "" {
		return r.Label
	}
	return BaseName(r.FileName)
}

// BaseName strips the directory and final extension from a log path,
// so "logs/random_1000.best.log" becomes "random_1000.best".
func BaseName(path string) string {
	base := filepath.Base(path)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

// Len returns the number of records in r.
func (r *Run) Len() int {
	return len(r.records)
}

// Empty reports whether r has no records. An empty Run is valid
// output; Stats explains why nothing was accepted.
func (r *Run) Empty() bool {
	return len(r.records) == 0
}

// At returns the i'th record of r. The returned Slabs must not be
// modified.
func (r *Run) At(i int) Record {
	return r.records[i]
}

// Records returns the records of r in order. The caller may modify
// the returned slice but not the Slabs of its elements.
func (r *Run) Records() []Record {
	return append([]Record(nil), r.records...)
}

// Variants returns the number of records of each variant in r.
func (r *Run) Variants() map[Variant]int {
	m := make(map[Variant]int)
	for i := range r.records {
		m[r.records[i].Variant]++
	}
	return m
}

// SlabCount returns the number of slabs reported by r's per-slab
// records, or 0 if it has none.
func (r *Run) SlabCount() int {
	for i := range r.records {
		if r.records[i].Variant.HasSlabs() {
			return len(r.records[i].Slabs)
		}
	}
	return 0
}
