// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package allocunit formats allocator measurements for display.
//
// Byte quantities scale by powers of 1024 with IEC prefixes (Ki, Mi,
// ...). Instruction counts and event counts scale by powers of 1000
// with SI prefixes (k, M, ...).
package allocunit

import (
	"fmt"
	"strings"
)

// A Class specifies what class of unit prefixes are in use.
type Class int

const (
	// Decimal indicates values should be scaled by powers of 1000
	// using SI prefixes, such as "k" and "M".
	Decimal Class = iota
	// Binary indicates values should be scaled by powers of 1024
	// using IEC binary prefixes, such as "Ki" and "Mi".
	Binary
)

func (c Class) String() string {
	switch c {
	case Decimal:
		return "Decimal"
	case Binary:
		return "Binary"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// A Unit is the unit of a measured quantity.
type Unit int

const (
	// Count is a dimensionless count, such as OOM events.
	Count Unit = iota
	// Bytes is an amount of memory.
	Bytes
	// Instructions is an instruction count.
	Instructions
)

func (u Unit) String() string {
	switch u {
	case Count:
		return ""
	case Bytes:
		return "B"
	case Instructions:
		return "instr"
	}
	return fmt.Sprintf("Unit(%d)", int(u))
}

// Class returns the prefix class for u.
func (u Unit) Class() Class {
	if u == Bytes {
		return Binary
	}
	return Decimal
}

// UnitOf guesses the unit of a named metric, such as "bytes in-use",
// "lhs fragmentation" or "instruction count".
func UnitOf(metric string) Unit {
	m := strings.ToLower(metric)
	switch {
	case strings.Contains(m, "instruction"):
		return Instructions
	case strings.Contains(m, "bytes"),
		strings.Contains(m, "fragmentation"),
		strings.Contains(m, "memory"),
		strings.Contains(m, "space"):
		return Bytes
	}
	return Count
}
