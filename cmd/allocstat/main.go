// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Allocstat compares the allocator benchmark logs of two allocation
// strategies.
//
// Usage:
//
//	allocstat [flags] best.log next.log
//
// The first log is the baseline. Each argument may be given as
// label=path to name the run in the report. allocstat prints a report
// of per-class instruction cost, OOM events and final fragmentation,
// with the delta of the second run against the first. A delta is
// shown as "~" if a significance test finds no difference.
//
// The -png, -pdf and -svg flags write memory profile, latency and
// per-slab charts to a directory. The chart names derive from the
// baseline log name: "logs/random.best.log" gives "best",
// "best_latency" and "best_slabs_*". With -separate-axis, the second
// run is scaled to the range of the first and the names get a "SEP_"
// prefix.
//
// The -db flag stores both runs in a database given as driver:dsn,
// where driver is sqlite3 or mysql.
//
// Flags not given on the command line take their values from the YAML
// file named by -config, if any. The configuration file may also list
// the inputs:
//
//	inputs: [best=logs/random.best.log, next=logs/random.next.log]
//	format: html
//	svg: charts
//	slab_every: 50
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/aclements/go-gg/table"
	_ "github.com/go-sql-driver/mysql"
	"golang.org/x/net/context"

	"github.com/cantrip-os/allocperf/allocfmt"
	"github.com/cantrip-os/allocperf/allocmath"
	"github.com/cantrip-os/allocperf/allocseries"
	stat "github.com/cantrip-os/allocperf/allocstat"
	"github.com/cantrip-os/allocperf/internal/config"
	"github.com/cantrip-os/allocperf/storage/db"
	_ "github.com/cantrip-os/allocperf/storage/db/sqlite3"
)

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), `Usage: allocstat [flags] best.log next.log

allocstat compares the allocator benchmark logs of two allocation
strategies. The first log is the baseline.

`)
	fs.PrintDefaults()
}

func main() {
	log.SetPrefix("allocstat: ")
	log.SetFlags(0)

	if err := allocstat(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) || errors.Is(err, errUsage) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

var errUsage = errors.New("usage")

func allocstat(w, wErr io.Writer, args []string) error {
	fs := flag.NewFlagSet("allocstat", flag.ContinueOnError)
	fs.SetOutput(wErr)
	fs.Usage = func() { usage(fs) }
	var (
		flagConfig     = fs.String("config", "", "read defaults from the YAML `file`")
		flagFormat     = fs.String("format", "text", "print the report as `format`: text, csv, or html")
		flagPNG        = fs.String("png", "", "write PNG charts to `dir`")
		flagPDF        = fs.String("pdf", "", "write PDF charts to `dir`")
		flagSVG        = fs.String("svg", "", "write SVG charts to `dir`")
		flagSeparate   = fs.Bool("separate-axis", false, "scale the second run to the range of the first in charts")
		flagSlabEvery  = fs.Int("slab-every", 1, "chart every `n`th per-slab record")
		flagRecords    = fs.Bool("records", false, "print the record and class tables of each run")
		flagDB         = fs.String("db", "", "store both runs in the database `driver:dsn`")
		flagCheck      = fs.Bool("check", false, "print data-quality violations of each run")
		flagAssumption = fs.String("assume", "normal", "distribution `assumption` of summaries and tests: normal, nothing, or exact")
		flagConfidence = fs.Float64("confidence", 0.95, "confidence `level` of the ranges")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if *flagConfig != "" {
		var err error
		if cfg, err = config.Load(*flagConfig); err != nil {
			return err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "format":
			cfg.Format = *flagFormat
		case "png":
			cfg.PNG = *flagPNG
		case "pdf":
			cfg.PDF = *flagPDF
		case "svg":
			cfg.SVG = *flagSVG
		case "separate-axis":
			cfg.SeparateAxis = *flagSeparate
		case "slab-every":
			cfg.SlabEvery = *flagSlabEvery
		case "db":
			cfg.DB = *flagDB
		case "assume":
			cfg.Assumption = *flagAssumption
		case "confidence":
			cfg.Confidence = *flagConfidence
		}
	})
	if fs.NArg() > 0 {
		cfg.Inputs = fs.Args()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.Inputs) != 2 {
		fs.Usage()
		return fmt.Errorf("%w: want 2 inputs, got %d", errUsage, len(cfg.Inputs))
	}

	warn := func(format string, args ...interface{}) {
		fmt.Fprintf(wErr, format+"\n", args...)
	}
	files := allocfmt.Files{
		Paths:       cfg.Inputs,
		AllowStdin:  true,
		AllowLabels: true,
		Markers:     cfg.Markers,
		Warn:        warn,
	}
	runs, err := files.ReadAll()
	if err != nil {
		return err
	}
	for _, run := range runs {
		warn("%s: %s", run.Name(), run.Stats)
		if run.Empty() {
			warn("%s: no records accepted", run.Name())
		}
	}

	c := allocseries.NewComparison(runs[0], runs[1])
	c.Assumption = cfg.Assume()
	c.Confidence = cfg.Confidence

	r := stat.NewReport(c)
	switch cfg.Format {
	case "text":
		err = r.WriteText(w)
	case "csv":
		err = r.WriteCSV(w)
	case "html":
		if _, err = io.WriteString(w, htmlHeader); err != nil {
			return err
		}
		if err = r.WriteHTML(w); err != nil {
			return err
		}
		_, err = io.WriteString(w, htmlFooter)
	}
	if err != nil {
		return err
	}
	for _, err := range r.Warnings {
		warn("warning: %v", err)
	}

	if *flagCheck {
		for _, run := range runs {
			for _, v := range allocmath.Check(run.Records()) {
				fmt.Fprintf(w, "%s: %s\n", run.Name(), v)
			}
		}
	}

	if *flagRecords {
		for _, run := range runs {
			if err := printTables(w, run); err != nil {
				return err
			}
		}
	}

	if cfg.PNG != "" || cfg.PDF != "" || cfg.SVG != "" {
		written, err := c.Chart(allocseries.ChartOptions{
			PNGDir:       cfg.PNG,
			PDFDir:       cfg.PDF,
			SVGDir:       cfg.SVG,
			SeparateAxis: cfg.SeparateAxis,
			SlabEvery:    cfg.SlabEvery,
		})
		if err != nil {
			return err
		}
		for _, f := range written {
			warn("wrote %s", f)
		}
	}

	if cfg.DB != "" {
		if err := store(cfg.DB, runs, warn); err != nil {
			return err
		}
	}
	return nil
}

func printTables(w io.Writer, run *allocfmt.Run) error {
	fmt.Fprintf(w, "\n%s records:\n", run.Name())
	if err := table.Fprint(w, stat.RecordTable(run)); err != nil {
		return err
	}
	for _, excludeOOM := range []bool{false, true} {
		title := "costs"
		if excludeOOM {
			title = "costs excluding oom"
		}
		fmt.Fprintf(w, "\n%s %s:\n", run.Name(), title)
		if err := table.Fprint(w, stat.ClassTable(run, excludeOOM)); err != nil {
			return err
		}
	}
	return nil
}

func store(dbArg string, runs []*allocfmt.Run, warn func(string, ...interface{})) error {
	driver, dsn, err := config.SplitDB(dbArg)
	if err != nil {
		return err
	}
	d, err := db.OpenSQL(driver, dsn)
	if err != nil {
		return err
	}
	defer d.Close()
	ctx := context.Background()
	for _, run := range runs {
		id, err := d.InsertRun(ctx, run)
		if err != nil {
			return fmt.Errorf("storing %s: %w", run.Name(), err)
		}
		warn("stored %s as run %d", run.Name(), id)
	}
	return nil
}

var htmlHeader = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>Allocator Comparison</title>
<style>
.allocstat { border-collapse: collapse; }
.allocstat th:nth-child(1) { text-align: left; }
.allocstat tbody td:nth-child(1n+2) { text-align: right; padding: 0em 1em; }
.allocstat th { border-top: 1px solid #666; border-bottom: 1px solid #ccc; }
</style>
</head>
<body>
`
var htmlFooter = `</body>
</html>
`
