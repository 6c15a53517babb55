// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package catalog describes the columns flowing into a sink.
package catalog

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
)

// ColumnID identifies a column within its table.
type ColumnID int32

// ColumnDesc describes one column.
type ColumnDesc struct {
	ID   ColumnID
	Name string
	Type chunk.Type
}

// ColumnCatalog is a column of the sink's input. Hidden columns (row ids,
// internal keys) are carried through the stream but never written to the
// sink.
type ColumnCatalog struct {
	Desc     ColumnDesc
	IsHidden bool
}

// Field is one column of a Schema.
type Field struct {
	Name string
	Type chunk.Type
}

// Schema is an ordered list of fields.
type Schema struct {
	Fields []Field
}

// Types returns the column types of the schema.
func (s Schema) Types() []chunk.Type {
	types := make([]chunk.Type, len(s.Fields))
	for i, f := range s.Fields {
		types[i] = f.Type
	}
	return types
}

// Names returns the column names of the schema.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// String implements fmt.Stringer.
func (s Schema) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = fmt.Sprintf("%s %s", f.Name, f.Type)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// SchemaOf returns the schema of all columns, hidden ones included.
func SchemaOf(columns []ColumnCatalog) Schema {
	fields := make([]Field, len(columns))
	for i, c := range columns {
		fields[i] = Field{Name: c.Desc.Name, Type: c.Desc.Type}
	}
	return Schema{Fields: fields}
}

// VisibleIndices returns the positions of the non-hidden columns and whether
// any column is hidden.
func VisibleIndices(columns []ColumnCatalog) (indices []int, anyHidden bool) {
	indices = make([]int, 0, len(columns))
	for i, c := range columns {
		if c.IsHidden {
			anyHidden = true
			continue
		}
		indices = append(indices, i)
	}
	return indices, anyHidden
}

// VisibleColumns returns the non-hidden columns.
func VisibleColumns(columns []ColumnCatalog) []ColumnCatalog {
	res := make([]ColumnCatalog, 0, len(columns))
	for _, c := range columns {
		if !c.IsHidden {
			res = append(res, c)
		}
	}
	return res
}
