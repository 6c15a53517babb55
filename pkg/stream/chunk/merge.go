// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package chunk

// keyChanges tracks the first and last visible change to one stream key.
type keyChanges struct {
	first, last int
}

// MergeChunkRows collapses all changes to the same stream key within c into
// their net effect. The first change of a key tells whether the row existed
// before the chunk (a deletion carries its old values), the last tells
// whether it exists afterwards (an insertion carries its new values):
//
//	absent  -> absent:  nothing
//	absent  -> present: Insert(last)
//	present -> absent:  Delete(first)
//	present -> present: UpdateDelete(first), UpdateInsert(last), or nothing
//	                    if the values are equal
//
// Output rows appear at the position of the row carrying their surviving
// values. With an empty streamKey the chunk is only compacted.
//
// A lone UpdateDelete or UpdateInsert becomes a Delete or Insert. Keys are
// compared by their encoding, so decimals that differ only in
// scale (1.0 and 1.00) are distinct keys.
func MergeChunkRows(c *StreamChunk, streamKey []int) *StreamChunk {
	if len(streamKey) == 0 {
		return c.Compact()
	}
	keys := make(map[string]*keyChanges, c.Cardinality())
	c.ForEachVisible(func(i int, _ Op, row []Datum) {
		k := EncodeKey(row, streamKey)
		if kc, ok := keys[k]; ok {
			kc.last = i
		} else {
			keys[k] = &keyChanges{first: i, last: i}
		}
	})

	// emit[i] holds the rows to output at physical position i.
	type out struct {
		op  Op
		row []Datum
	}
	emit := make(map[int][]out, len(keys))
	for _, kc := range keys {
		existedBefore := c.ops[kc.first].IsDeletion()
		existsAfter := c.ops[kc.last].IsInsertion()
		first, last := c.rows[kc.first], c.rows[kc.last]
		switch {
		case !existedBefore && existsAfter:
			emit[kc.last] = append(emit[kc.last], out{Insert, last})
		case existedBefore && !existsAfter:
			emit[kc.first] = append(emit[kc.first], out{Delete, first})
		case existedBefore && existsAfter:
			if RowsEqual(first, last) {
				continue
			}
			emit[kc.last] = append(emit[kc.last],
				out{UpdateDelete, first}, out{UpdateInsert, last})
		}
	}

	b := MakeBuilder(c.types, c.Cardinality())
	for i := range c.rows {
		for _, o := range emit[i] {
			b.Append(o.op, o.row)
		}
	}
	return b.Build()
}
