// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package chunk

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Op is the kind of change a row of a StreamChunk carries.
type Op uint8

// Row change kinds. An update is represented by an UpdateDelete row carrying
// the old values immediately followed by an UpdateInsert row carrying the new
// ones.
const (
	Insert Op = iota + 1
	Delete
	UpdateDelete
	UpdateInsert
)

// String implements fmt.Stringer.
func (op Op) String() string {
	switch op {
	case Insert:
		return "Insert"
	case Delete:
		return "Delete"
	case UpdateDelete:
		return "UpdateDelete"
	case UpdateInsert:
		return "UpdateInsert"
	default:
		return fmt.Sprintf("Op(%d)", uint8(op))
	}
}

// IsInsertion returns true for Insert and UpdateInsert.
func (op Op) IsInsertion() bool {
	return op == Insert || op == UpdateInsert
}

// IsDeletion returns true for Delete and UpdateDelete.
func (op Op) IsDeletion() bool {
	return op == Delete || op == UpdateDelete
}

// prettyString is the op token of the pretty chunk format.
func (op Op) prettyString() string {
	switch op {
	case Insert:
		return " +"
	case Delete:
		return " -"
	case UpdateDelete:
		return "U-"
	case UpdateInsert:
		return "U+"
	default:
		return " ?"
	}
}

func opFromPretty(s string) (Op, error) {
	switch s {
	case "+":
		return Insert, nil
	case "-":
		return Delete, nil
	case "U-":
		return UpdateDelete, nil
	case "U+":
		return UpdateInsert, nil
	}
	return 0, errors.Newf("unknown op %q", s)
}
