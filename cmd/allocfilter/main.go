// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Allocfilter reads allocator benchmark logs and writes their
// accepted records to stdout in canonical form.
//
// Usage:
//
//	allocfilter [-variant v,...] [-v] [label=]log...
//
// Each input is written as its own measured phase, between a begin
// marker and an end marker, so the output is itself a valid log.
// Harness output, noise and malformed lines are dropped. The line
// accounting of each input is printed to stderr, and with -v every
// dropped line is reported there too. If no inputs are given,
// allocfilter reads stdin.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/cantrip-os/allocperf/allocfmt"
)

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), `Usage: allocfilter [flags] [label=]log...

allocfilter reads allocator benchmark logs and writes their accepted
records to stdout in canonical form. If no inputs are provided, it
reads from stdin.

`)
	fs.PrintDefaults()
}

func main() {
	log.SetPrefix("allocfilter: ")
	log.SetFlags(0)

	if err := allocfilter(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func allocfilter(w, wErr io.Writer, args []string) error {
	fs := flag.NewFlagSet("allocfilter", flag.ContinueOnError)
	fs.SetOutput(wErr)
	fs.Usage = func() { usage(fs) }
	flagVariant := fs.String("variant", "", "keep only records of the comma-separated `variants`")
	flagVerbose := fs.Bool("v", false, "report every dropped line")
	flagMarker := fs.String("marker", "", "open the measured phase at `marker` instead of the known banners")
	if err := fs.Parse(args); err != nil {
		return err
	}

	keep := func(allocfmt.Variant) bool { return true }
	if *flagVariant != "" {
		want := make(map[allocfmt.Variant]bool)
		for _, name := range strings.Split(*flagVariant, ",") {
			v, err := allocfmt.ParseVariant(strings.TrimSpace(name))
			if err != nil {
				return err
			}
			want[v] = true
		}
		keep = func(v allocfmt.Variant) bool { return want[v] }
	}

	files := allocfmt.Files{
		Paths:       fs.Args(),
		AllowStdin:  true,
		AllowLabels: true,
		Warn: func(format string, args ...interface{}) {
			fmt.Fprintf(wErr, format+"\n", args...)
		},
	}
	if *flagMarker != "" {
		files.Markers = []string{*flagMarker}
	}
	if *flagVerbose {
		files.OnDrop = func(d *allocfmt.Drop) {
			fmt.Fprintln(wErr, d)
		}
	}

	writer := allocfmt.NewWriter(w)
	for files.Scan() {
		run := files.Run()
		if err := writer.WriteBegin(run.Marker); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		kept := 0
		for _, rec := range run.Records() {
			if !keep(rec.Variant) {
				continue
			}
			if err := writer.Write(&rec); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
			kept++
		}
		if err := writer.WriteEnd(); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		fmt.Fprintf(wErr, "%s: %s; %d written\n", run.Name(), run.Stats, kept)
	}
	return files.Err()
}
