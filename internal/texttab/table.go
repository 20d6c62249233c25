// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package texttab lays out fixed-width text tables.
package texttab

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Table accumulates rows of cells and formats them with aligned
// columns.
//
// Row, Cell and Span return the Table so calls can be chained.
type Table struct {
	rows [][]cell
	cols int
}

type cell struct {
	col, span int
	value     string
	align     Align
}

// Align is the alignment of a cell within its column.
type Align int

const (
	Left Align = iota
	Center
	Right
)

func (a Align) pad(s string, w int) string {
	n := w - utf8.RuneCountInString(s)
	if n <= 0 {
		return s
	}
	switch a {
	case Center:
		return strings.Repeat(" ", n/2) + s
	case Right:
		return strings.Repeat(" ", n) + s
	}
	return s
}

// Row starts a new row.
func (t *Table) Row() *Table {
	t.rows = append(t.rows, nil)
	return t
}

// Cell adds a single-column cell to the current row.
func (t *Table) Cell(value string, align ...Align) *Table {
	return t.Span(1, value, align...)
}

// Span adds a cell covering cols columns to the current row.
func (t *Table) Span(cols int, value string, align ...Align) *Table {
	if len(t.rows) == 0 {
		t.Row()
	}
	row := &t.rows[len(t.rows)-1]
	col := 0
	if n := len(*row); n > 0 {
		last := (*row)[n-1]
		col = last.col + last.span
	}
	c := cell{col: col, span: cols, value: value}
	if len(align) > 0 {
		c.align = align[len(align)-1]
	}
	*row = append(*row, c)
	if col+cols > t.cols {
		t.cols = col + cols
	}
	return t
}

// Format writes t to w. Columns are separated by two spaces and
// trailing blanks are trimmed from every line.
func (t *Table) Format(w io.Writer) error {
	const gap = 2

	widths := make([]int, t.cols)
	for _, row := range t.rows {
		for _, c := range row {
			if c.span == 1 {
				widths[c.col] = max(widths[c.col], utf8.RuneCountInString(c.value))
			}
		}
	}
	// Spanning cells widen the last column they cover.
	for _, row := range t.rows {
		for _, c := range row {
			if c.span == 1 {
				continue
			}
			have := gap * (c.span - 1)
			for i := c.col; i < c.col+c.span; i++ {
				have += widths[i]
			}
			if need := utf8.RuneCountInString(c.value); need > have {
				widths[c.col+c.span-1] += need - have
			}
		}
	}

	var b strings.Builder
	for _, row := range t.rows {
		var line strings.Builder
		pos := 0
		for _, c := range row {
			start := 0
			for i := 0; i < c.col; i++ {
				start += widths[i] + gap
			}
			width := gap * (c.span - 1)
			for i := c.col; i < c.col+c.span; i++ {
				width += widths[i]
			}
			if start > pos {
				line.WriteString(strings.Repeat(" ", start-pos))
				pos = start
			}
			s := c.align.pad(c.value, width)
			line.WriteString(s)
			pos += utf8.RuneCountInString(s)
		}
		b.WriteString(strings.TrimRight(line.String(), " "))
		b.WriteByte('\n')
	}
	_, err := fmt.Fprint(w, b.String())
	return err
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
