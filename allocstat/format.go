// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocstat

import (
	"encoding/csv"
	"html/template"
	"io"

	"github.com/cantrip-os/allocperf/allocunit"
	"github.com/cantrip-os/allocperf/internal/texttab"
)

func (r *Report) header(t *Table) []string {
	if t.HasDelta {
		return []string{t.Title, r.NameA, "", r.NameB, "", "delta", "note"}
	}
	if t.Delta() {
		return []string{t.Title, r.NameA, r.NameB, "delta"}
	}
	return []string{t.Title, r.NameA, r.NameB}
}

// Delta reports whether any row of t has a delta.
func (t *Table) Delta() bool {
	for _, row := range t.Rows {
		if row.Delta != "" {
			return true
		}
	}
	return false
}

// cells formats the rows of t with scaler s. Raw cells carry no unit
// and leave missing values empty.
func (t *Table) cells(s allocunit.Scaler, raw bool) [][]string {
	var out [][]string
	for _, row := range t.Rows {
		a, b := t.format(s, row.A, raw), t.format(s, row.B, raw)
		switch {
		case t.HasDelta:
			out = append(out, []string{row.Name, a, row.RangeA, b, row.RangeB, row.Delta, row.Note})
		case t.Delta():
			out = append(out, []string{row.Name, a, b, row.Delta})
		default:
			out = append(out, []string{row.Name, a, b})
		}
	}
	return out
}

// WriteText writes r as aligned text tables separated by blank lines.
func (r *Report) WriteText(w io.Writer) error {
	for i, t := range r.Tables {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		var tab texttab.Table
		tab.Row()
		for col, h := range r.header(t) {
			tab.Cell(h, textAlign(t, col, true))
		}
		for _, row := range t.cells(t.scaler(), false) {
			tab.Row()
			for col, c := range row {
				tab.Cell(c, textAlign(t, col, false))
			}
		}
		if err := tab.Format(w); err != nil {
			return err
		}
	}
	return nil
}

// textAlign right-aligns numbers and their headings. Names, ranges
// and notes are left-aligned.
func textAlign(t *Table, col int, header bool) texttab.Align {
	if col == 0 {
		return texttab.Left
	}
	if t.HasDelta && (col == 6 || (!header && (col == 2 || col == 4))) {
		return texttab.Left
	}
	return texttab.Right
}

// WriteCSV writes r as CSV with unscaled values. Tables are separated
// by empty records. Missing values are empty fields.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	for i, t := range r.Tables {
		if i > 0 {
			cw.Write(nil)
		}
		cw.Write(r.header(t))
		for _, row := range t.cells(allocunit.NoOpScaler, true) {
			cw.Write(row)
		}
	}
	cw.Flush()
	return cw.Error()
}

var htmlTemplate = template.Must(template.New("").Parse(`
<table class='allocstat'>
{{- range .}}
<tbody>
<tr>{{range .Header}}<th>{{.}}{{end}}
{{range .Rows -}}
<tr>{{range .}}<td>{{.}}{{end}}
{{end -}}
</tbody>
{{- end}}
</table>
`))

type htmlTable struct {
	Header []string
	Rows   [][]string
}

// WriteHTML writes r as an HTML table fragment.
func (r *Report) WriteHTML(w io.Writer) error {
	var tables []htmlTable
	for _, t := range r.Tables {
		tables = append(tables, htmlTable{r.header(t), t.cells(t.scaler(), false)})
	}
	return htmlTemplate.Execute(w, tables)
}
