// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package chunk

// ForceAppendOnly rewrites c into insertions only: Insert rows are kept,
// Delete and UpdateDelete rows are dropped and UpdateInsert rows become
// Insert. The result is compacted.
func ForceAppendOnly(c *StreamChunk) *StreamChunk {
	b := MakeBuilder(c.types, c.Cardinality())
	c.ForEachVisible(func(_ int, op Op, row []Datum) {
		if op.IsInsertion() {
			b.Append(Insert, row)
		}
	})
	return b.Build()
}
