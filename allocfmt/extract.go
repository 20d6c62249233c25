// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocfmt

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Payload keys as the harness spells them.
const (
	keyIdx              = "idx"
	keyBytesRequested   = "bytes requested"
	keyBytesInUse       = "bytes in-use"
	keyBytesFree        = "bytes free"
	keyAllocation       = "allocation"
	keyInstructionCount = "instruction count"
	keySlabResets       = "slab resets"
	keyUntypedTooSmall  = "untyped_too_small"
	keyOOM              = "oom"
	keyLHS              = "lhs fragmentation"
	keyInBetween        = "in-between fragmentation"

	keyLHSPerSlab       = "lhs_fragmentation_per_slab"
	keyInBetweenPerSlab = "in_between_fragmentation_per_slab"
	keyOccupiedPerSlab  = "occupied_memory_per_slab"
	keyAvailablePerSlab = "available_space_per_slab"
)

var throughputKeys = []string{
	keyBytesRequested,
	keySlabResets,
	keyUntypedTooSmall,
	keyOOM,
	keyBytesInUse,
	keyInstructionCount,
	keyAllocation,
}

var fragmentationKeys = []string{
	keyBytesRequested,
	keyBytesInUse,
	keyLHS,
	keyInBetween,
}

// requiredKeys gives the key set of each variant. When a payload
// matches variants whose key sets do not nest, classify prefers the
// earlier one in variantOrder.
var requiredKeys = [numVariants][]string{
	Throughput:              throughputKeys,
	Fragmentation:           fragmentationKeys,
	FragmentationThroughput: union(fragmentationKeys, throughputKeys),
	PerSlab: {
		keyIdx,
		keyLHSPerSlab,
		keyInBetweenPerSlab,
		keyOccupiedPerSlab,
		keyAvailablePerSlab,
	},
}

var variantOrder = []Variant{PerSlab, FragmentationThroughput, Fragmentation, Throughput}

func union(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, k := range b {
		dup := false
		for _, have := range out {
			if have == k {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, k)
		}
	}
	return out
}

var (
	errNoPayload    = errors.New("no {...} payload")
	errUnclassified = errors.New("payload matches no record variant")
)

// extractPayload returns the text from the first '{' to the last '}'
// of line, inclusive.
func extractPayload(line string) (string, bool) {
	i := strings.IndexByte(line, '{')
	j := strings.LastIndexByte(line, '}')
	if i < 0 || j < i {
		return "", false
	}
	return line[i : j+1], true
}

// normalizeQuotes rewrites the harness's single-quoted dictionary
// syntax into JSON. The decoder itself stays strict.
func normalizeQuotes(payload string) string {
	return strings.ReplaceAll(payload, "'", `"`)
}

// A payload is a decoded, not yet typed, record.
type payload map[string]json.RawMessage

func decodePayload(text string) (payload, error) {
	var p payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, err
	}
	if p == nil {
		// The literal "null" is not a dictionary.
		return nil, errors.New("payload is not a dictionary")
	}
	return p, nil
}

func (p payload) has(keys []string) bool {
	for _, k := range keys {
		if _, ok := p[k]; !ok {
			return false
		}
	}
	return true
}

// classify returns the variant whose required keys are a maximal
// subset of p's keys: matched variants whose keys are contained in
// another matched variant's keys are discarded, and the first
// remaining one in variantOrder wins.
func classify(p payload) (Variant, error) {
	var matched []Variant
	for _, v := range variantOrder {
		if p.has(requiredKeys[v]) {
			matched = append(matched, v)
		}
	}
outer:
	for _, v := range matched {
		for _, w := range matched {
			if w != v && contains(requiredKeys[w], requiredKeys[v]) {
				continue outer
			}
		}
		return v, nil
	}
	return 0, errUnclassified
}

// contains reports whether every key of sub is in set.
func contains(set, sub []string) bool {
	for _, k := range sub {
		found := false
		for _, s := range set {
			if s == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// project builds a typed Record of variant v from p. It returns an
// error if any projected field has the wrong type.
func project(p payload, v Variant) (Record, error) {
	rec := Record{Variant: v, Idx: -1}
	d := decoder{p: p}

	if _, ok := p[keyIdx]; ok {
		d.uint(keyIdx, &rec.Idx)
	}
	if _, ok := p[keyBytesFree]; ok {
		d.uint(keyBytesFree, &rec.BytesFree)
		rec.HasBytesFree = true
	}
	if v.HasCost() || v.HasFragmentation() {
		d.uint(keyBytesRequested, &rec.BytesRequested)
		d.uint(keyBytesInUse, &rec.BytesInUse)
	}
	if v.HasCost() {
		d.bool(keyAllocation, &rec.Allocation)
		d.uint(keyInstructionCount, &rec.InstructionCount)
		d.uint(keySlabResets, &rec.SlabResets)
		d.uint(keyUntypedTooSmall, &rec.UntypedTooSmall)
		d.uint(keyOOM, &rec.OOM)
	}
	if v.HasFragmentation() {
		d.uint(keyLHS, &rec.LHSFragmentation)
		d.uint(keyInBetween, &rec.InBetweenFragmentation)
	}
	if v.HasSlabs() {
		var lhs, inBetween, occupied, available []int64
		d.uints(keyLHSPerSlab, &lhs)
		d.uints(keyInBetweenPerSlab, &inBetween)
		d.uints(keyOccupiedPerSlab, &occupied)
		d.uints(keyAvailablePerSlab, &available)
		if d.err == nil {
			n := len(lhs)
			if len(inBetween) != n || len(occupied) != n || len(available) != n {
				return Record{}, fmt.Errorf("per-slab arrays have unequal lengths %d, %d, %d, %d", len(lhs), len(inBetween), len(occupied), len(available))
			}
			rec.Slabs = make([]Slab, n)
			for i := range rec.Slabs {
				rec.Slabs[i] = Slab{lhs[i], inBetween[i], occupied[i], available[i]}
			}
		}
	}
	if d.err != nil {
		return Record{}, d.err
	}
	return rec, nil
}

// decoder converts raw payload values, remembering the first error.
type decoder struct {
	p   payload
	err error
}

func (d *decoder) fail(key string, raw json.RawMessage, want string) {
	if d.err == nil {
		d.err = fmt.Errorf("%q: want %s, got %s", key, want, raw)
	}
}

func (d *decoder) uint(key string, dst *int64) {
	raw := d.p[key]
	v, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
	if err != nil || v < 0 {
		d.fail(key, raw, "non-negative integer")
		return
	}
	*dst = v
}

func (d *decoder) bool(key string, dst *bool) {
	raw := d.p[key]
	switch string(bytes.TrimSpace(raw)) {
	case "true":
		*dst = true
	case "false":
		*dst = false
	default:
		d.fail(key, raw, "boolean")
	}
}

func (d *decoder) uints(key string, dst *[]int64) {
	raw := d.p[key]
	var vs []int64
	if err := json.Unmarshal(raw, &vs); err != nil || vs == nil {
		d.fail(key, raw, "list of integers")
		return
	}
	for _, v := range vs {
		if v < 0 {
			d.fail(key, raw, "list of non-negative integers")
			return
		}
	}
	*dst = vs
}
