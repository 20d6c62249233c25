// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocseries

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gonum.org/v1/plot/vg/vgpdf"
	"gonum.org/v1/plot/vg/vgsvg"

	"github.com/cantrip-os/allocperf/allocfmt"
	"github.com/cantrip-os/allocperf/allocmath"
)

// ChartOptions configures Chart.
type ChartOptions struct {
	// PNGDir, PDFDir and SVGDir are the output directories for
	// each format. Formats with an empty directory are skipped.
	PNGDir, PDFDir, SVGDir string

	// SeparateAxis scales run B to run A's range, so that both
	// shapes stay visible when their magnitudes differ. Affected
	// charts get a "SEP_" file name prefix.
	SeparateAxis bool

	// SlabEvery selects every SlabEvery'th per-slab record for the
	// slab charts. Values below 1 select all of them.
	SlabEvery int

	// Name is the base of the output file names. If empty, it is
	// ChartName of run A's file.
	Name string
}

// ChartName derives a chart file name from a log path: the
// dot-separated component of the base name just before the final
// extension, so "logs/random_1000.best.log" gives "best". A name with
// no extension is returned unchanged.
func ChartName(path string) string {
	base := filepath.Base(path)
	parts := strings.Split(base, ".")
	if len(parts) < 2 {
		return base
	}
	return parts[len(parts)-2]
}

// A figure is one output file: a column of vertically stacked plots.
type figure struct {
	name  string
	plots []*plot.Plot
	width vg.Length
	rowH  vg.Length
}

const dpi = 150

// Chart renders the comparison charts that c's data supports and
// writes them in each requested format. It returns the paths of the
// files written.
//
//   - Memory profile: bytes in use, LHS fragmentation and in-between
//     fragmentation against bytes requested.
//   - Allocation latency: bytes in use, instruction count per
//     allocation with OOM events marked, and instruction count per
//     free, with a log scale on the cost panels.
//   - Per-slab state of each run, as grouped and as stacked bars.
func (c *Comparison) Chart(opts ChartOptions) ([]string, error) {
	name := opts.Name
	if name == "" {
		name = ChartName(c.A.FileName)
	}
	prefix := ""
	if opts.SeparateAxis {
		prefix = "SEP_"
	}

	var figs []figure
	if plots, err := c.memoryProfile(opts.SeparateAxis); err != nil {
		return nil, err
	} else if plots != nil {
		figs = append(figs, figure{prefix + name, plots, 14 * vg.Inch, 7 * vg.Inch})
	}
	if plots, err := c.latency(opts.SeparateAxis); err != nil {
		return nil, err
	} else if plots != nil {
		figs = append(figs, figure{prefix + name + "_latency", plots, 14 * vg.Inch, 7 * vg.Inch})
	}
	for _, run := range []*allocfmt.Run{c.A, c.B} {
		snaps := allocmath.SlabSnapshots(run.Records(), opts.SlabEvery)
		if len(snaps) == 0 {
			continue
		}
		for _, stacked := range []bool{false, true} {
			plots, err := slabPlots(snaps, stacked)
			if err != nil {
				return nil, err
			}
			fname := name + "_slabs_" + sanitizeName(run.Name())
			if stacked {
				fname += "_stacked"
			}
			figs = append(figs, figure{fname, plots, 10 * vg.Inch, 3.75 * vg.Inch})
		}
	}

	var written []string
	for _, f := range []struct{ dir, format string }{
		{opts.PNGDir, "png"},
		{opts.PDFDir, "pdf"},
		{opts.SVGDir, "svg"},
	} {
		if f.dir == "" {
			continue
		}
		if err := os.MkdirAll(f.dir, 0777); err != nil {
			return written, err
		}
		for _, fig := range figs {
			path := filepath.Join(f.dir, fig.name+"."+f.format)
			if err := fig.write(path, f.format); err != nil {
				return written, err
			}
			written = append(written, path)
		}
	}
	return written, nil
}

func sanitizeName(s string) string {
	return strings.NewReplacer("/", "_", " ", "_", "=", "", "#", "_").Replace(strings.TrimSpace(s))
}

func (f *figure) write(path, format string) error {
	w, h := f.width, f.rowH*vg.Length(len(f.plots))
	var can vg.CanvasWriterTo
	switch format {
	case "png":
		can = vgimg.PngCanvas{Canvas: vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(dpi), vgimg.UseBackgroundColor(color.White))}
	case "pdf":
		can = vgpdf.New(w, h)
	case "svg":
		can = vgsvg.New(w, h)
	default:
		return fmt.Errorf("unknown chart format %q", format)
	}

	rows := make([][]*plot.Plot, len(f.plots))
	for i, p := range f.plots {
		rows[i] = []*plot.Plot{p}
	}
	tiles := draw.Tiles{
		Rows:      len(rows),
		Cols:      1,
		PadX:      vg.Centimeter,
		PadY:      vg.Centimeter,
		PadTop:    vg.Points(4),
		PadBottom: vg.Points(4),
		PadLeft:   vg.Points(4),
		PadRight:  vg.Points(8),
	}
	canvases := plot.Align(rows, tiles, draw.New(can))
	for i := range rows {
		rows[i][0].Draw(canvases[i][0])
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := can.WriteTo(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

var (
	blue   = color.NRGBA{0x1f, 0x77, 0xb4, 0xff}
	red    = color.NRGBA{0xd6, 0x27, 0x28, 0xff}
	green  = color.NRGBA{0x2c, 0xa0, 0x2c, 0xff}
	brown  = color.NRGBA{0x8c, 0x56, 0x4b, 0xff}
	purple = color.NRGBA{0x94, 0x67, 0xbd, 0xff}
	grey   = color.NRGBA{0x7f, 0x7f, 0x7f, 0xff}
	orange = color.NRGBA{0xff, 0x7f, 0x0e, 0xff}
)

// series extracts the points (bytes requested, y) of the records of
// run that carry y and satisfy keep.
func series(run *allocfmt.Run, y Metric, keep func(i int, rec *allocfmt.Record) bool) plotter.XYs {
	var xys plotter.XYs
	for i := 0; i < run.Len(); i++ {
		rec := run.At(i)
		x, okX := BytesRequested.Value(&rec)
		v, okY := y.Value(&rec)
		if !okX || !okY || (keep != nil && !keep(i, &rec)) {
			continue
		}
		xys = append(xys, plotter.XY{X: x, Y: v})
	}
	return xys
}

func positive(xys plotter.XYs) plotter.XYs {
	var out plotter.XYs
	for _, p := range xys {
		if p.Y > 0 {
			out = append(out, p)
		}
	}
	return out
}

func maxY(xys plotter.XYs) float64 {
	m := 0.0
	for _, p := range xys {
		m = math.Max(m, p.Y)
	}
	return m
}

// scaleTo scales the Y values of b to the range of a and returns the
// factor used, or 1 if either range is empty.
func scaleTo(a, b plotter.XYs) (plotter.XYs, float64) {
	ma, mb := maxY(a), maxY(b)
	if ma == 0 || mb == 0 {
		return b, 1
	}
	k := ma / mb
	out := make(plotter.XYs, len(b))
	for i, p := range b {
		out[i] = plotter.XY{X: p.X, Y: p.Y * k}
	}
	return out, k
}

func newPanel(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Bytes Requested"
	p.Y.Label.Text = ylabel
	p.Legend.Top = true
	grid := plotter.NewGrid()
	p.Add(grid)
	return p
}

func addLine(p *plot.Plot, label string, xys plotter.XYs, clr color.Color, dotted bool) error {
	if len(xys) == 0 {
		return nil
	}
	l, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	l.Color = clr
	l.Width = vg.Points(2)
	if dotted {
		l.Dashes = []vg.Length{vg.Points(2), vg.Points(3)}
	}
	p.Add(l)
	p.Legend.Add(label, l)
	return nil
}

func addMarks(p *plot.Plot, label string, xys plotter.XYs, shape draw.GlyphDrawer) error {
	if len(xys) == 0 {
		return nil
	}
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	s.GlyphStyle.Shape = shape
	s.GlyphStyle.Color = red
	s.GlyphStyle.Radius = vg.Points(6)
	p.Add(s)
	p.Legend.Add(label, s)
	return nil
}

// pair draws a's and b's series on p, b dotted. With sep, b is scaled
// to a's range and its legend entry names the factor.
func (c *Comparison) pair(p *plot.Plot, what string, a, b plotter.XYs, clrA, clrB color.Color, sep bool) error {
	labelB := c.B.Name() + " - " + what
	if sep {
		var k float64
		b, k = scaleTo(a, b)
		labelB += fmt.Sprintf(" (×%.3g)", k)
		p.Y.Label.Text = c.A.Name() + " - " + what
	}
	if err := addLine(p, c.A.Name()+" - "+what, a, clrA, false); err != nil {
		return err
	}
	return addLine(p, labelB, b, clrB, true)
}

func (c *Comparison) memoryProfile(sep bool) ([]*plot.Plot, error) {
	frag := func(i int, rec *allocfmt.Record) bool { return rec.Variant.HasFragmentation() }
	if len(series(c.A, BytesInUse, frag))+len(series(c.B, BytesInUse, frag)) == 0 {
		return nil, nil
	}
	panels := []struct {
		title, what string
		m           Metric
		clr         color.Color
	}{
		{"Bytes in Use vs. Bytes Requested", "Bytes in Use", BytesInUse, blue},
		{"LHS Fragmentation vs. Bytes Requested", "LHS Fragmentation", LHSFragmentation, red},
		{"In-Between Fragmentation vs. Bytes Requested", "In-Between Fragmentation", InBetweenFragmentation, green},
	}
	var plots []*plot.Plot
	for _, pn := range panels {
		p := newPanel(pn.title, pn.what)
		if err := c.pair(p, pn.what, series(c.A, pn.m, frag), series(c.B, pn.m, frag), pn.clr, pn.clr, sep); err != nil {
			return nil, err
		}
		plots = append(plots, p)
	}
	return plots, nil
}

func (c *Comparison) latency(sep bool) ([]*plot.Plot, error) {
	cost := func(i int, rec *allocfmt.Record) bool { return rec.Variant.HasCost() }
	if len(series(c.A, InstructionCount, cost))+len(series(c.B, InstructionCount, cost)) == 0 {
		return nil, nil
	}
	alloc := func(i int, rec *allocfmt.Record) bool { return rec.Variant.HasCost() && rec.Allocation }
	free := func(i int, rec *allocfmt.Record) bool { return rec.Variant.HasCost() && !rec.Allocation }
	oomAt := func(run *allocfmt.Run) func(int, *allocfmt.Record) bool {
		events := allocmath.OOMEvents(run.Records())
		return func(i int, rec *allocfmt.Record) bool { return events[i] }
	}

	inUse := newPanel("Bytes in Use vs. Bytes Requested", "Bytes in Use")
	if err := c.pair(inUse, "Bytes in Use", series(c.A, BytesInUse, cost), series(c.B, BytesInUse, cost), blue, blue, false); err != nil {
		return nil, err
	}

	allocs := newPanel("Instruction Count per Allocation vs. Bytes Requested", "Instruction Count per Alloc")
	a, b := positive(series(c.A, InstructionCount, alloc)), positive(series(c.B, InstructionCount, alloc))
	clrB := color.Color(purple)
	if sep {
		clrB = brown
	}
	if err := c.pair(allocs, "Instruction Count per Allocation", a, b, brown, clrB, sep); err != nil {
		return nil, err
	}
	// OOM markers of B follow their line's scaling.
	k := 1.0
	if sep {
		_, k = scaleTo(a, b)
	}
	oomA := scaleBy(series(c.A, InstructionCount, oomAt(c.A)), 1)
	oomB := scaleBy(series(c.B, InstructionCount, oomAt(c.B)), k)
	if err := addMarks(allocs, c.A.Name()+" - Out of Memory", oomA, draw.CrossGlyph{}); err != nil {
		return nil, err
	}
	if err := addMarks(allocs, c.B.Name()+" - Out of Memory", oomB, draw.PlusGlyph{}); err != nil {
		return nil, err
	}
	logY(allocs, a, b)

	frees := newPanel("Instruction Count per Free vs. Bytes Requested", "Instruction Count per Free")
	a, b = positive(series(c.A, InstructionCount, free)), positive(series(c.B, InstructionCount, free))
	if err := c.pair(frees, "Instruction Count per Free", a, b, grey, orange, sep); err != nil {
		return nil, err
	}
	logY(frees, a, b)

	return []*plot.Plot{inUse, allocs, frees}, nil
}

// scaleBy multiplies the positive Y values of xys by k and drops the
// rest.
func scaleBy(xys plotter.XYs, k float64) plotter.XYs {
	out := make(plotter.XYs, 0, len(xys))
	for _, p := range xys {
		if p.Y > 0 {
			out = append(out, plotter.XY{X: p.X, Y: p.Y * k})
		}
	}
	return out
}

// logY switches p to a logarithmic Y axis if it plots any data. The
// caller must have removed non-positive values.
func logY(p *plot.Plot, data ...plotter.XYs) {
	for _, d := range data {
		if len(d) > 0 {
			p.Y.Scale = plot.LogScale{}
			p.Y.Tick.Marker = plot.LogTicks{}
			return
		}
	}
}

var slabColumns = []struct {
	label string
	col   allocfmt.SlabColumn
	clr   color.Color
}{
	{"available_space", allocfmt.SlabAvailable, blue},
	{"occupied_memory", allocfmt.SlabOccupied, orange},
	{"lhs_fragmentation", allocfmt.SlabLHSFragmentation, green},
	{"in_between_fragmentation", allocfmt.SlabInBetweenFragmentation, red},
}

// slabPlots draws one bar chart per snapshot. Grouped charts show the
// four per-slab values side by side. Stacked charts put in-between
// fragmentation on LHS fragmentation, then occupied memory, then
// available space.
func slabPlots(snaps []allocmath.SlabSnapshot, stacked bool) ([]*plot.Plot, error) {
	var plots []*plot.Plot
	for _, s := range snaps {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("Memory slab status after %d alloc/dealloc operations", s.Idx)
		p.X.Label.Text = "Slab"
		p.Y.Label.Text = "Memory"
		p.Legend.Top = true

		rec := allocfmt.Record{Variant: allocfmt.PerSlab, Slabs: s.Slabs}
		w := vg.Points(5)
		bars := make(map[allocfmt.SlabColumn]*plotter.BarChart)
		for k, sc := range slabColumns {
			vals := make(plotter.Values, len(s.Slabs))
			for i, v := range rec.SlabColumn(sc.col) {
				vals[i] = float64(v)
			}
			bar, err := plotter.NewBarChart(vals, w)
			if err != nil {
				return nil, err
			}
			bar.Color = sc.clr
			bar.LineStyle.Width = 0
			if !stacked {
				bar.Offset = vg.Length(k-2) * w
			}
			bars[sc.col] = bar
		}
		if stacked {
			bars[allocfmt.SlabInBetweenFragmentation].StackOn(bars[allocfmt.SlabLHSFragmentation])
			bars[allocfmt.SlabOccupied].StackOn(bars[allocfmt.SlabInBetweenFragmentation])
			bars[allocfmt.SlabAvailable].StackOn(bars[allocfmt.SlabOccupied])
		}
		for _, sc := range slabColumns {
			p.Add(bars[sc.col])
			p.Legend.Add(sc.label, bars[sc.col])
		}

		labels := make([]string, len(s.Slabs))
		for i := range labels {
			labels[i] = fmt.Sprint(i + 1)
		}
		p.NominalX(labels...)
		plots = append(plots, p)
	}
	return plots, nil
}
