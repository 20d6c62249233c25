// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocfmt

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// A Reader reads telemetry records from a benchmark log.
//
// Its API is modeled on bufio.Scanner. Because the begin marker can
// only be chosen after seeing the whole log, the first call to Scan
// reads the entire input into memory.
//
// To construct a new Reader, call NewReader. The exported fields may
// be set before the first call to Scan.
type Reader struct {
	// Markers is the priority-ordered list of begin markers. If
	// nil, it defaults to BeginMarkers.
	Markers []string

	// Warn, if non-nil, receives diagnostics that do not affect
	// the result, such as falling back to a lower-priority begin
	// marker.
	Warn func(format string, args ...interface{})

	// OnDrop, if non-nil, is called for every candidate line that
	// did not produce a record. The Drop is only valid for the
	// duration of the call.
	OnDrop func(d *Drop)

	r        io.Reader
	fileName string
	err      error

	loaded bool
	lines  []string
	pos    int // index of the next line in lines
	marker string
	begin  int

	rec   Record
	adm   admitter
	stats Stats
	drop  Drop
}

// NewReader returns a Reader that reads a benchmark log from r.
// fileName is used in error messages; it is purely diagnostic.
func NewReader(r io.Reader, fileName string) *Reader {
	if fileName == "" {
		fileName = "<unknown>"
	}
	return &Reader{r: r, fileName: fileName}
}

// maxLineSize bounds a single log line. Per-slab payloads for large
// slab counts run to tens of kilobytes.
const maxLineSize = 16 << 20

func (r *Reader) load() {
	r.loaded = true
	s := bufio.NewScanner(r.r)
	s.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	for s.Scan() {
		r.lines = append(r.lines, s.Text())
	}
	if err := s.Err(); err != nil {
		r.err = fmt.Errorf("%s:%d: %w", r.fileName, len(r.lines)+1, err)
		return
	}

	markers := r.Markers
	if markers == nil {
		markers = BeginMarkers
	}
	var warn func(string, ...interface{})
	if r.Warn != nil {
		warn = func(format string, args ...interface{}) {
			r.Warn("%s: "+format, append([]interface{}{r.fileName}, args...)...)
		}
	}
	offset, marker, err := LocateBegin(r.lines, markers, warn)
	if err != nil {
		r.err = fmt.Errorf("%s: %w", r.fileName, err)
		return
	}
	r.pos, r.marker, r.begin = offset, marker, offset
}

// Scan advances the reader to the next accepted record and reports
// whether one was read. The caller should use the Record method to
// get it. Scan returns false at the end marker, at the end of input,
// or on a fatal error, in which case Err reports the error.
func (r *Reader) Scan() bool {
	if !r.loaded {
		r.load()
	}
	if r.err != nil {
		return false
	}
	for r.pos < len(r.lines) {
		line := r.lines[r.pos]
		r.pos++
		// The end marker wins over noise on the same line.
		if strings.Contains(line, EndMarker) {
			r.stats.Ended = true
			r.stats.Trailing = len(r.lines) - r.pos
			r.pos = len(r.lines)
			return false
		}
		r.stats.Lines++
		if isNoise(line) {
			r.dropLine(ReasonNoise, nil)
			continue
		}
		text, ok := extractPayload(line)
		if !ok {
			r.dropLine(ReasonNoPayload, errNoPayload)
			continue
		}
		p, err := decodePayload(normalizeQuotes(text))
		if err != nil {
			r.dropLine(ReasonMalformed, err)
			continue
		}
		v, err := classify(p)
		if err != nil {
			r.dropLine(ReasonUnclassified, err)
			continue
		}
		rec, err := project(p, v)
		if err != nil {
			r.dropLine(ReasonInvalid, err)
			continue
		}
		if reason, err := r.adm.admit(&rec); err != nil {
			r.dropLine(reason, err)
			continue
		}
		r.rec = rec
		r.stats.Accepted++
		return true
	}
	return false
}

func (r *Reader) dropLine(reason Reason, err error) {
	r.stats.drops[reason]++
	if r.OnDrop != nil {
		r.drop = Drop{FileName: r.fileName, Line: r.pos, Reason: reason, Err: err}
		r.OnDrop(&r.drop)
	}
}

// Record returns the record read by the last successful call to Scan.
// The caller may retain it; the Reader does not reuse its storage.
func (r *Reader) Record() Record {
	return r.rec
}

// Err returns the first fatal error encountered by the Reader: an
// I/O error or a missing begin marker. Dropped lines are not errors.
func (r *Reader) Err() error {
	return r.err
}

// Marker returns the begin marker that was found, or "" if Scan has
// not been called or no marker was found.
func (r *Reader) Marker() string {
	return r.marker
}

// BeginLine returns the 1-based line number of the begin marker, or 0
// if none was found.
func (r *Reader) BeginLine() int {
	return r.begin
}

// Stats returns the line accounting accumulated so far.
func (r *Reader) Stats() Stats {
	return r.stats
}

// ReadRun consumes the rest of the input and returns it as a Run.
func (r *Reader) ReadRun() (*Run, error) {
	var recs []Record
	for r.Scan() {
		recs = append(recs, r.Record())
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return &Run{
		FileName: r.fileName,
		Marker:   r.marker,
		Stats:    r.stats,
		records:  recs,
	}, nil
}

// A Reason classifies why a line did not produce a record.
type Reason int

const (
	// ReasonNoise marks echo lines of retried internal
	// operations.
	ReasonNoise Reason = iota
	// ReasonNoPayload marks lines without a {...} span.
	ReasonNoPayload
	// ReasonMalformed marks payloads the decoder rejected.
	ReasonMalformed
	// ReasonUnclassified marks payloads matching no variant.
	ReasonUnclassified
	// ReasonInvalid marks payloads whose fields have the wrong
	// type or range.
	ReasonInvalid
	// ReasonOutOfOrder marks records whose idx does not exceed
	// that of the previous operation, or of the previous snapshot
	// for per-slab records.
	ReasonOutOfOrder
	// ReasonSlabCount marks per-slab records whose slab count
	// differs from the rest of the run.
	ReasonSlabCount

	numReasons
)

var reasonNames = [numReasons]string{
	ReasonNoise:        "noise",
	ReasonNoPayload:    "no payload",
	ReasonMalformed:    "malformed",
	ReasonUnclassified: "unclassified",
	ReasonInvalid:      "invalid",
	ReasonOutOfOrder:   "out of order",
	ReasonSlabCount:    "slab count",
}

func (r Reason) String() string {
	if r < 0 || r >= numReasons {
		return fmt.Sprintf("Reason(%d)", int(r))
	}
	return reasonNames[r]
}

// A Drop describes one dropped line.
type Drop struct {
	FileName string
	Line     int
	Reason   Reason
	Err      error // may be nil, e.g. for noise
}

func (d *Drop) Error() string {
	if d.Err == nil {
		return fmt.Sprintf("%s:%d: %s", d.FileName, d.Line, d.Reason)
	}
	return fmt.Sprintf("%s:%d: %s: %v", d.FileName, d.Line, d.Reason, d.Err)
}

func (d *Drop) Unwrap() error { return d.Err }

// Stats accounts for every line of the measured phase.
type Stats struct {
	// Lines is the number of lines inspected between the begin
	// and end markers.
	Lines int

	// Accepted is the number of lines that produced a record.
	Accepted int

	// Ended reports whether the end marker was seen. Trailing is
	// the number of lines after it, which are not inspected.
	Ended    bool
	Trailing int

	drops [numReasons]int
}

// Dropped returns the number of lines dropped for reason.
func (s Stats) Dropped(reason Reason) int {
	if reason < 0 || reason >= numReasons {
		return 0
	}
	return s.drops[reason]
}

// TotalDropped returns the number of inspected lines that did not
// produce a record.
func (s Stats) TotalDropped() int {
	n := 0
	for _, c := range s.drops {
		n += c
	}
	return n
}

// String summarizes s, for example
// "120 lines, 100 accepted, 20 dropped (noise=12 no payload=8)".
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d lines, %d accepted, %d dropped", s.Lines, s.Accepted, s.TotalDropped())
	sep := " ("
	for reason, n := range s.drops {
		if n == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s%s=%d", sep, Reason(reason), n)
		sep = " "
	}
	if sep == " " {
		b.WriteByte(')')
	}
	if !s.Ended {
		b.WriteString(", no end marker")
	}
	return b.String()
}

// admitter enforces the run-level invariants on each record in turn.
//
// Operations (every variant but PerSlab) and per-slab snapshots are
// numbered independently: a snapshot's idx counts the operations
// performed before it, so it usually equals the idx of the next
// operation. Within each stream idx is strictly increasing. An
// operation without an idx gets one past the previous operation's.
// Every per-slab record has the same number of slabs.
type admitter struct {
	ops, snaps stream
	slabs      int
	haveSlabs  bool
}

type stream struct {
	seen bool
	last int64
}

func (a *admitter) admit(rec *Record) (Reason, error) {
	st := &a.ops
	if rec.Variant.HasSlabs() {
		st = &a.snaps
	}
	if rec.Idx < 0 {
		rec.Idx = 0
		if st.seen {
			rec.Idx = st.last + 1
		}
	} else if st.seen && rec.Idx <= st.last {
		return ReasonOutOfOrder, fmt.Errorf("idx %d does not follow %d", rec.Idx, st.last)
	}
	if rec.Variant.HasSlabs() {
		if !a.haveSlabs {
			a.slabs, a.haveSlabs = len(rec.Slabs), true
		} else if len(rec.Slabs) != a.slabs {
			return ReasonSlabCount, fmt.Errorf("%d slabs, want %d", len(rec.Slabs), a.slabs)
		}
	}
	st.seen, st.last = true, rec.Idx
	return 0, nil
}
