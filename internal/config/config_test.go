// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cantrip-os/allocperf/allocmath"
	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
inputs:
  - best=logs/random.best.log
  - logs/random.next.log
format: csv
png: charts
separate_axis: true
slab_every: 50
db: sqlite3:runs.db
markers: [replay_app]
assumption: nothing
`))
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		Inputs:       []string{"best=logs/random.best.log", "logs/random.next.log"},
		Format:       "csv",
		PNG:          "charts",
		SeparateAxis: true,
		SlabEvery:    50,
		DB:           "sqlite3:runs.db",
		Markers:      []string{"replay_app"},
		Assumption:   "nothing",
		Confidence:   0.95,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config differs (-want +got):\n%s", diff)
	}
	if c.Assume() != allocmath.AssumeNothing {
		t.Errorf("Assume() = %v, want AssumeNothing", c.Assume())
	}
}

func TestParseEmpty(t *testing.T) {
	c, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), c); diff != "" {
		t.Errorf("empty config differs from default (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	for _, test := range []struct {
		in, want string
	}{
		{"format: xml", `unknown format "xml"`},
		{"slab_every: 0", "slab_every must be at least 1"},
		{"assumption: cauchy", `unknown assumption "cauchy"`},
		{"confidence: 1.5", "confidence must be in (0, 1)"},
		{"db: runs.db", "database must be driver:dsn"},
		{"colour: red", "field colour not found"},
		{"inputs: {a: b}", "cannot unmarshal"},
	} {
		_, err := Parse([]byte(test.in))
		if err == nil || !strings.Contains(err.Error(), test.want) {
			t.Errorf("Parse(%q): got error %v, want %q", test.in, err, test.want)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allocperf.yaml")
	if err := os.WriteFile(path, []byte("format: html\n"), 0666); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Format != "html" {
		t.Errorf("format = %q, want html", c.Format)
	}

	if err := os.WriteFile(path, []byte("format: [\n"), 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.HasPrefix(err.Error(), path+": ") {
		t.Errorf("Load of bad YAML: got %v, want error prefixed with the path", err)
	}
}

func TestSplitDB(t *testing.T) {
	driver, dsn, err := SplitDB("mysql:user@tcp(localhost:3306)/perf")
	if err != nil || driver != "mysql" || dsn != "user@tcp(localhost:3306)/perf" {
		t.Errorf("SplitDB = %q, %q, %v", driver, dsn, err)
	}
	if _, _, err := SplitDB(":memory:"); err == nil {
		t.Errorf("SplitDB(:memory:) succeeded without a driver")
	}
}
