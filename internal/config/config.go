// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the YAML configuration shared by the
// allocperf commands. Command-line flags override loaded values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cantrip-os/allocperf/allocmath"
	"gopkg.in/yaml.v3"
)

// Config is the decoded form of a configuration file such as
//
//	inputs: [best=logs/random.best.log, next=logs/random.next.log]
//	format: text
//	png: charts
//	separate_axis: true
//	slab_every: 50
//	db: sqlite3:runs.db
type Config struct {
	// Inputs are [label=]path arguments, baseline first.
	Inputs []string `yaml:"inputs"`

	// Format is the report format: text, csv, or html.
	Format string `yaml:"format"`

	// PNG, PDF and SVG are chart output directories. Empty
	// disables the format.
	PNG string `yaml:"png"`
	PDF string `yaml:"pdf"`
	SVG string `yaml:"svg"`

	SeparateAxis bool `yaml:"separate_axis"`
	SlabEvery    int  `yaml:"slab_every"`

	// DB is "driver:dsn" of a database to store runs in.
	DB string `yaml:"db"`

	// Markers overrides the priority-ordered begin markers.
	Markers []string `yaml:"markers"`

	// Assumption is the distribution assumption of summaries and
	// tests: normal, nothing, or exact.
	Assumption string  `yaml:"assumption"`
	Confidence float64 `yaml:"confidence"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Format:     "text",
		SlabEvery:  1,
		Assumption: "normal",
		Confidence: 0.95,
	}
}

// Load reads and validates the configuration file at path. Unset
// fields take their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a configuration. Unknown keys are an error.
func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

var formats = map[string]bool{"text": true, "csv": true, "html": true}

var assumptions = map[string]allocmath.Assumption{
	"normal":  allocmath.AssumeNormal,
	"nothing": allocmath.AssumeNothing,
	"exact":   allocmath.AssumeExact,
}

// Validate reports the first invalid setting of c.
func (c *Config) Validate() error {
	if !formats[c.Format] {
		return fmt.Errorf("unknown format %q", c.Format)
	}
	if c.SlabEvery < 1 {
		return fmt.Errorf("slab_every must be at least 1, got %d", c.SlabEvery)
	}
	if _, ok := assumptions[c.Assumption]; !ok {
		return fmt.Errorf("unknown assumption %q", c.Assumption)
	}
	if !(c.Confidence > 0 && c.Confidence < 1) {
		return fmt.Errorf("confidence must be in (0, 1), got %v", c.Confidence)
	}
	if c.DB != "" {
		if _, _, err := SplitDB(c.DB); err != nil {
			return err
		}
	}
	return nil
}

// Assume returns the Assumption named by c.Assumption.
func (c *Config) Assume() allocmath.Assumption {
	return assumptions[c.Assumption]
}

var errBadDB = errors.New("database must be driver:dsn")

// SplitDB splits a "driver:dsn" database argument.
func SplitDB(db string) (driver, dsn string, err error) {
	driver, dsn, ok := strings.Cut(db, ":")
	if !ok || driver == "" || dsn == "" {
		return "", "", fmt.Errorf("%w, got %q", errBadDB, db)
	}
	return driver, dsn, nil
}
