// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocfmt

import (
	"bytes"
	"io"
	"strconv"
)

// A Writer writes records in the harness's log syntax, so that its
// output can be read back by a Reader.
type Writer struct {
	w   io.Writer
	buf bytes.Buffer

	// Prefix is written at the start of every record line, in
	// place of the harness's timestamp and log level.
	Prefix string
}

// NewWriter returns a Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteBegin writes a line holding the begin marker.
func (w *Writer) WriteBegin(marker string) error {
	if marker == "" {
		marker = BeginMarkers[0]
	}
	w.buf.WriteString(marker)
	w.buf.WriteByte('\n')
	return w.flush()
}

// WriteEnd writes a line holding the end marker.
func (w *Writer) WriteEnd() error {
	w.buf.WriteString(EndMarker)
	w.buf.WriteByte('\n')
	return w.flush()
}

// Write writes rec as one line. Only the fields belonging to rec's
// variant are written, plus idx and, if present, bytes free.
func (w *Writer) Write(rec *Record) error {
	w.buf.WriteString(w.Prefix)
	w.buf.WriteByte('{')
	first := true
	key := func(k string) {
		if !first {
			w.buf.WriteString(", ")
		}
		first = false
		w.buf.WriteByte('\'')
		w.buf.WriteString(k)
		w.buf.WriteString("': ")
	}
	num := func(k string, v int64) {
		key(k)
		w.buf.WriteString(strconv.FormatInt(v, 10))
	}
	list := func(k string, vs []int64) {
		key(k)
		w.buf.WriteByte('[')
		for i, v := range vs {
			if i > 0 {
				w.buf.WriteString(", ")
			}
			w.buf.WriteString(strconv.FormatInt(v, 10))
		}
		w.buf.WriteByte(']')
	}

	v := rec.Variant
	num(keyIdx, rec.Idx)
	if v.HasCost() || v.HasFragmentation() {
		num(keyBytesRequested, rec.BytesRequested)
		num(keyBytesInUse, rec.BytesInUse)
	}
	if rec.HasBytesFree {
		num(keyBytesFree, rec.BytesFree)
	}
	if v.HasCost() {
		num(keySlabResets, rec.SlabResets)
		num(keyUntypedTooSmall, rec.UntypedTooSmall)
		num(keyOOM, rec.OOM)
		num(keyInstructionCount, rec.InstructionCount)
		key(keyAllocation)
		w.buf.WriteString(strconv.FormatBool(rec.Allocation))
	}
	if v.HasFragmentation() {
		num(keyLHS, rec.LHSFragmentation)
		num(keyInBetween, rec.InBetweenFragmentation)
	}
	if v.HasSlabs() {
		for _, c := range []SlabColumn{SlabLHSFragmentation, SlabInBetweenFragmentation, SlabOccupied, SlabAvailable} {
			list(c.String(), rec.SlabColumn(c))
		}
	}
	w.buf.WriteString("}\n")
	return w.flush()
}

func (w *Writer) flush() error {
	_, err := w.w.Write(w.buf.Bytes())
	w.buf.Reset()
	return err
}
