// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package chunk

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/errors"
)

// StreamChunk is a batch of row changes sharing one column schema. Rows are
// ordered; each carries an Op. A visibility bitmap hides rows without
// physically removing them, so transforms that only suppress rows can avoid
// copying.
//
// A StreamChunk is immutable once built: every transform returns a new
// chunk, and callers must not modify the slices returned by Row.
type StreamChunk struct {
	types []Type
	ops   []Op
	rows  [][]Datum
	// vis is nil when every row is visible.
	vis *bitset.BitSet
}

// New constructs a fully visible chunk. ops and rows must have the same
// length and every row must have len(types) datums.
func New(types []Type, ops []Op, rows [][]Datum) *StreamChunk {
	if len(ops) != len(rows) {
		panic(errors.AssertionFailedf("%d ops for %d rows", len(ops), len(rows)))
	}
	for i, r := range rows {
		if len(r) != len(types) {
			panic(errors.AssertionFailedf("row %d has %d datums, expected %d", i, len(r), len(types)))
		}
	}
	return &StreamChunk{types: types, ops: ops, rows: rows}
}

// Empty returns a chunk with no rows.
func Empty(types []Type) *StreamChunk {
	return &StreamChunk{types: types}
}

// Types returns the column types.
func (c *StreamChunk) Types() []Type {
	return c.types
}

// Capacity returns the number of physical rows, visible or not.
func (c *StreamChunk) Capacity() int {
	return len(c.rows)
}

// Cardinality returns the number of visible rows.
func (c *StreamChunk) Cardinality() int {
	if c.vis == nil {
		return len(c.rows)
	}
	return int(c.vis.Count())
}

// IsVisible returns whether physical row i is visible.
func (c *StreamChunk) IsVisible(i int) bool {
	return c.vis == nil || c.vis.Test(uint(i))
}

// Op returns the op of physical row i.
func (c *StreamChunk) Op(i int) Op {
	return c.ops[i]
}

// Row returns the datums of physical row i.
func (c *StreamChunk) Row(i int) []Datum {
	return c.rows[i]
}

// Visibility returns a copy of the visibility bitmap. Every bit is set for a
// fully visible chunk.
func (c *StreamChunk) Visibility() *bitset.BitSet {
	if c.vis == nil {
		vis := bitset.New(uint(len(c.rows)))
		for i := range c.rows {
			vis.Set(uint(i))
		}
		return vis
	}
	return c.vis.Clone()
}

// WithVisibility returns a chunk sharing c's rows with the given visibility.
func (c *StreamChunk) WithVisibility(vis *bitset.BitSet) *StreamChunk {
	return &StreamChunk{types: c.types, ops: c.ops, rows: c.rows, vis: vis}
}

// ForEachVisible calls fn for every visible row in order.
func (c *StreamChunk) ForEachVisible(fn func(i int, op Op, row []Datum)) {
	for i := range c.rows {
		if c.IsVisible(i) {
			fn(i, c.ops[i], c.rows[i])
		}
	}
}

// Compact returns a chunk holding only the visible rows. It returns c itself
// if every row is already visible.
func (c *StreamChunk) Compact() *StreamChunk {
	if c.vis == nil {
		return c
	}
	if int(c.vis.Count()) == len(c.rows) {
		return &StreamChunk{types: c.types, ops: c.ops, rows: c.rows}
	}
	b := MakeBuilder(c.types, c.Cardinality())
	c.ForEachVisible(func(_ int, op Op, row []Datum) {
		b.Append(op, row)
	})
	return b.Build()
}

// Project returns a chunk with only the given columns, in the given order.
// Invisible rows are dropped.
func (c *StreamChunk) Project(indices []int) *StreamChunk {
	types := make([]Type, len(indices))
	for i, idx := range indices {
		types[i] = c.types[idx]
	}
	b := MakeBuilder(types, c.Cardinality())
	c.ForEachVisible(func(_ int, op Op, row []Datum) {
		projected := make([]Datum, len(indices))
		for i, idx := range indices {
			projected[i] = row[idx]
		}
		b.Append(op, projected)
	})
	return b.Build()
}

// Equal returns whether two chunks have the same types and the same visible
// rows in the same order. Visibility layout is not compared.
func (c *StreamChunk) Equal(o *StreamChunk) bool {
	if c == nil || o == nil {
		return c == o
	}
	if len(c.types) != len(o.types) {
		return false
	}
	for i := range c.types {
		if c.types[i] != o.types[i] {
			return false
		}
	}
	a, b := c.Compact(), o.Compact()
	if len(a.rows) != len(b.rows) {
		return false
	}
	for i := range a.rows {
		if a.ops[i] != b.ops[i] || !RowsEqual(a.rows[i], b.rows[i]) {
			return false
		}
	}
	return true
}

// Builder accumulates rows into a new fully visible StreamChunk.
type Builder struct {
	types []Type
	ops   []Op
	rows  [][]Datum
}

// MakeBuilder returns a Builder with room for capacity rows.
func MakeBuilder(types []Type, capacity int) Builder {
	return Builder{
		types: types,
		ops:   make([]Op, 0, capacity),
		rows:  make([][]Datum, 0, capacity),
	}
}

// Append adds a row. The row slice is retained, not copied.
func (b *Builder) Append(op Op, row []Datum) {
	b.ops = append(b.ops, op)
	b.rows = append(b.rows, row)
}

// Len returns the number of rows appended so far.
func (b *Builder) Len() int {
	return len(b.rows)
}

// Build returns the built chunk. The builder must not be used afterwards.
func (b *Builder) Build() *StreamChunk {
	return &StreamChunk{types: b.types, ops: b.ops, rows: b.rows}
}
