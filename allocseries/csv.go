// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocseries

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
)

// WriteCSV writes the aligned positions [start, end) of c as CSV, one
// row per position. For each metric there are three columns: A's
// value, B's value and the delta B-A. Values a record does not carry
// are left empty.
func (c *Comparison) WriteCSV(w io.Writer, start, end int, metrics ...Metric) error {
	pairs, err := c.Align(start, end)
	if err != nil {
		return err
	}
	if len(metrics) == 0 {
		metrics = []Metric{BytesRequested, BytesInUse, InstructionCount}
	}

	cw := csv.NewWriter(w)
	header := []string{"pos", "idx_a", "idx_b"}
	for _, m := range metrics {
		header = append(header, m.String()+"_a", m.String()+"_b", m.String()+"_delta")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for i := range pairs {
		p := &pairs[i]
		row = append(row[:0], strconv.Itoa(p.Pos), strconv.FormatInt(p.A.Idx, 10), strconv.FormatInt(p.B.Idx, 10))
		for _, m := range metrics {
			a, okA := m.Value(&p.A)
			b, okB := m.Value(&p.B)
			d := math.NaN()
			if okA && okB {
				d = b - a
			}
			row = append(row, strof(a, okA), strof(b, okB), strof(d, okA && okB))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func strof(x float64, ok bool) string {
	if !ok {
		return ""
	}
	return strconv.FormatFloat(x, 'f', -1, 64)
}
