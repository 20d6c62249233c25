// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocfmt

import (
	"errors"
	"strings"
)

// BeginMarkers are the substrings that open the measured phase of a
// run, in priority order. The harness prints different banners for
// synthetic and replayed application workloads.
var BeginMarkers = []string{
	"Begin synthetic workload!",
	"replay_app",
	"replay_seq_app",
	"replay_concurr_app",
}

// EndMarker closes the measured phase. Nothing after it is inspected.
const EndMarker = "Done :)"

// NoiseMarkers identify lines that echo retried internal operations.
// They are never observations, even if they carry a payload.
var NoiseMarkers = []string{
	"[virt:",
	"malloc failed: AllocFailed",
	"Untyped Retype: Insufficient memory",
}

// ErrNoBeginMarker is returned when none of the begin markers appear
// in a log.
var ErrNoBeginMarker = errors.New("no begin marker found")

// LocateBegin finds where the measured phase of a log begins.
//
// It tries each marker in order and, for the first marker that
// appears anywhere in lines, returns the index of the line following
// its first occurrence along with the marker itself. A later marker is
// only consulted if every earlier one is absent, so the result is not
// necessarily the earliest matching line. If no marker matches,
// LocateBegin returns ErrNoBeginMarker.
//
// warn, if non-nil, is called each time LocateBegin falls back to the
// next marker.
func LocateBegin(lines []string, markers []string, warn func(format string, args ...interface{})) (offset int, marker string, err error) {
	for i, m := range markers {
		if i > 0 && warn != nil {
			warn("no %q marker, trying %q", markers[i-1], m)
		}
		for j, line := range lines {
			if strings.Contains(line, m) {
				return j + 1, m, nil
			}
		}
	}
	return 0, "", ErrNoBeginMarker
}

func isNoise(line string) bool {
	for _, m := range NoiseMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}
