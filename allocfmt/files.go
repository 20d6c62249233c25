// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocfmt

import (
	"fmt"
	"os"
	"strings"
)

// A Files reads a sequence of benchmark logs, one Run per log.
//
// Each Run's Label is the file name directly from Paths, except that
// duplicate paths are disambiguated by appending "#N". If AllowLabels
// is true, entries in Paths may be of the form label=path, and the
// label part is used instead.
type Files struct {
	// Paths is the list of logs to read.
	Paths []string

	// AllowStdin indicates that the path "-" should be treated as
	// stdin and, if Paths is empty, that stdin should be read.
	AllowStdin bool

	// AllowLabels indicates that label=path entries are allowed
	// in Paths.
	AllowLabels bool

	// Markers, Warn and OnDrop are passed on to the Reader of
	// each file.
	Markers []string
	Warn    func(format string, args ...interface{})
	OnDrop  func(d *Drop)

	// inputs is the sequence of remaining inputs, or nil if this
	// Files has not started yet.
	inputs []input

	run *Run
	err error
}

type input struct {
	path      string
	label     string
	isStdin   bool
	isLabeled bool
}

func (f *Files) init() {
	f.inputs = []input{}

	pathCount := make(map[string]int)
	if f.AllowStdin && len(f.Paths) == 0 {
		f.inputs = append(f.inputs, input{"-", "-", true, false})
	}
	for _, path := range f.Paths {
		label := path
		isLabeled := false
		if i := strings.Index(path, "="); f.AllowLabels && i >= 0 {
			label, path = path[:i], path[i+1:]
			isLabeled = true
		} else {
			pathCount[path]++
		}
		isStdin := f.AllowStdin && path == "-"
		f.inputs = append(f.inputs, input{path, label, isStdin, isLabeled})
	}

	// Comparing a log against itself is legitimate, but the two
	// Runs still need distinct names.
	pathI := make(map[string]int)
	for i := range f.inputs {
		inp := &f.inputs[i]
		if inp.isLabeled || pathCount[inp.path] <= 1 {
			continue
		}
		inp.label = fmt.Sprintf("%s#%d", inp.path, pathI[inp.path])
		pathI[inp.path]++
	}
}

// Scan reads the next log and reports whether a Run was read. The
// caller should use the Run method to get it. Scan stops at the first
// file that cannot be opened or has no begin marker; Err reports why.
func (f *Files) Scan() bool {
	if f.err != nil {
		return false
	}
	if f.inputs == nil {
		f.init()
	}
	if len(f.inputs) == 0 {
		return false
	}
	inp := f.inputs[0]
	f.inputs = f.inputs[1:]

	run, err := f.read(inp)
	if err != nil {
		f.err = err
		f.run = nil
		return false
	}
	run.Label = inp.label
	f.run = run
	return true
}

func (f *Files) read(inp input) (*Run, error) {
	file := os.Stdin
	if !inp.isStdin {
		var err error
		file, err = os.Open(inp.path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
	}
	r := NewReader(file, inp.path)
	r.Markers, r.Warn, r.OnDrop = f.Markers, f.Warn, f.OnDrop
	return r.ReadRun()
}

// Run returns the Run read by the last successful call to Scan.
func (f *Files) Run() *Run {
	return f.run
}

// Err returns the error that stopped Scan, if any.
func (f *Files) Err() error {
	return f.err
}

// ReadAll reads every log in f and returns the Runs in order.
func (f *Files) ReadAll() ([]*Run, error) {
	var runs []*Run
	for f.Scan() {
		runs = append(runs, f.Run())
	}
	return runs, f.Err()
}
