// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package vnode maps rows onto a fixed set of virtual nodes and describes
// which virtual nodes a parallel actor owns.
package vnode

import (
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
)

// Count is the number of virtual nodes.
const Count = 256

// Vnode identifies one virtual node.
type Vnode uint16

// Compute returns the virtual node owning the row with the given key columns.
func Compute(row []chunk.Datum, key []int) Vnode {
	return Vnode(xxhash.Sum64String(chunk.EncodeKey(row, key)) % Count)
}

// Bitmap is a set of virtual nodes. The zero value is empty.
type Bitmap struct {
	bits *bitset.BitSet
}

// Empty returns an empty bitmap.
func Empty() Bitmap {
	return Bitmap{bits: bitset.New(Count)}
}

// Full returns a bitmap holding every vnode.
func Full() Bitmap {
	return FromRange(0, Count)
}

// FromRange returns a bitmap holding the vnodes in [start, end).
func FromRange(start, end Vnode) Bitmap {
	b := Empty()
	for v := start; v < end && v < Count; v++ {
		b.bits.Set(uint(v))
	}
	return b
}

// FromVnodes returns a bitmap holding the given vnodes.
func FromVnodes(vnodes ...Vnode) Bitmap {
	b := Empty()
	for _, v := range vnodes {
		b.bits.Set(uint(v))
	}
	return b
}

// Split partitions all vnodes into n contiguous bitmaps of near equal size.
func Split(n int) []Bitmap {
	if n <= 0 {
		panic(errors.AssertionFailedf("cannot split vnodes %d ways", n))
	}
	res := make([]Bitmap, n)
	per, extra := Count/n, Count%n
	start := 0
	for i := range res {
		size := per
		if i < extra {
			size++
		}
		res[i] = FromRange(Vnode(start), Vnode(start+size))
		start += size
	}
	return res
}

// Contains returns whether v is in the bitmap.
func (b Bitmap) Contains(v Vnode) bool {
	return b.bits != nil && b.bits.Test(uint(v))
}

// Len returns the number of vnodes in the bitmap.
func (b Bitmap) Len() int {
	if b.bits == nil {
		return 0
	}
	return int(b.bits.Count())
}

// Union returns the vnodes in either bitmap.
func (b Bitmap) Union(o Bitmap) Bitmap {
	return Bitmap{bits: b.clone().bits.Union(o.clone().bits)}
}

// Difference returns the vnodes in b but not in o.
func (b Bitmap) Difference(o Bitmap) Bitmap {
	return Bitmap{bits: b.clone().bits.Difference(o.clone().bits)}
}

// Equal returns whether both bitmaps hold the same vnodes.
func (b Bitmap) Equal(o Bitmap) bool {
	return b.clone().bits.Equal(o.clone().bits)
}

// Vnodes returns the members in increasing order.
func (b Bitmap) Vnodes() []Vnode {
	res := make([]Vnode, 0, b.Len())
	if b.bits == nil {
		return res
	}
	for i, ok := b.bits.NextSet(0); ok; i, ok = b.bits.NextSet(i + 1) {
		res = append(res, Vnode(i))
	}
	return res
}

func (b Bitmap) clone() Bitmap {
	if b.bits == nil {
		return Empty()
	}
	return Bitmap{bits: b.bits.Clone()}
}

// String renders the bitmap as comma separated ranges, e.g. "0-63,128".
func (b Bitmap) String() string {
	vnodes := b.Vnodes()
	var parts []string
	for i := 0; i < len(vnodes); {
		j := i
		for j+1 < len(vnodes) && vnodes[j+1] == vnodes[j]+1 {
			j++
		}
		if i == j {
			parts = append(parts, strconv.Itoa(int(vnodes[i])))
		} else {
			parts = append(parts, strconv.Itoa(int(vnodes[i]))+"-"+strconv.Itoa(int(vnodes[j])))
		}
		i = j + 1
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Parse parses the form produced by String, with or without braces.
func Parse(s string) (Bitmap, error) {
	b := Empty()
	s = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "{"), "}")
	if s == "" {
		return b, nil
	}
	for _, part := range strings.Split(s, ",") {
		lo, hi, isRange := strings.Cut(strings.TrimSpace(part), "-")
		start, err := strconv.Atoi(lo)
		if err != nil {
			return Bitmap{}, errors.Wrapf(err, "parsing vnode range %q", part)
		}
		end := start
		if isRange {
			if end, err = strconv.Atoi(hi); err != nil {
				return Bitmap{}, errors.Wrapf(err, "parsing vnode range %q", part)
			}
		}
		if start < 0 || end >= Count || start > end {
			return Bitmap{}, errors.Newf("vnode range %q out of bounds", part)
		}
		for v := start; v <= end; v++ {
			b.bits.Set(uint(v))
		}
	}
	return b, nil
}
