// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package chunk

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// FromPretty parses the pretty chunk format. The first non-empty line lists
// one type code per column (I int8, F float8, B bool, T varchar, X bytea,
// N decimal); every following line is a row: an op token (+, -, U-, U+)
// followed by one value per column, "." standing for NULL. A trailing "D"
// token marks the row invisible.
//
//	  I I I
//	U- 3 2 1
//	U+ 3 4 1
//	 + 5 6 7 D
func FromPretty(s string) (*StreamChunk, error) {
	var types []Type
	var ops []Op
	var rows [][]Datum
	var hidden []int
	for _, line := range strings.Split(s, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if types == nil {
			types = make([]Type, 0, len(fields))
			for _, f := range fields {
				if len(f) != 1 {
					return nil, errors.Newf("invalid type code %q", f)
				}
				t, err := typeFromPrettyChar(f[0])
				if err != nil {
					return nil, err
				}
				types = append(types, t)
			}
			continue
		}
		op, err := opFromPretty(fields[0])
		if err != nil {
			return nil, err
		}
		values := fields[1:]
		if len(values) == len(types)+1 && values[len(values)-1] == "D" {
			hidden = append(hidden, len(rows))
			values = values[:len(types)]
		}
		if len(values) != len(types) {
			return nil, errors.Newf("row %d: expected %d values, found %d: %q",
				len(rows), len(types), len(values), line)
		}
		row := make([]Datum, len(types))
		for i, v := range values {
			if row[i], err = ParseDatum(types[i], v); err != nil {
				return nil, errors.Wrapf(err, "row %d column %d", len(rows), i)
			}
		}
		ops = append(ops, op)
		rows = append(rows, row)
	}
	if types == nil {
		return nil, errors.New("missing type line")
	}
	c := New(types, ops, rows)
	if len(hidden) > 0 {
		vis := c.Visibility()
		for _, i := range hidden {
			vis.Clear(uint(i))
		}
		c = c.WithVisibility(vis)
	}
	return c, nil
}

// MustFromPretty is like FromPretty but panics on error. It is meant for
// tests.
func MustFromPretty(s string) *StreamChunk {
	c, err := FromPretty(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String renders the chunk in the pretty format accepted by FromPretty.
func (c *StreamChunk) String() string {
	var b strings.Builder
	b.WriteString("  ")
	for i, t := range c.types {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte(t.prettyChar())
	}
	for i, row := range c.rows {
		b.WriteByte('\n')
		b.WriteString(c.ops[i].prettyString())
		for _, d := range row {
			b.WriteByte(' ')
			b.WriteString(FormatDatum(d))
		}
		if !c.IsVisible(i) {
			b.WriteString(" D")
		}
	}
	return b.String()
}
