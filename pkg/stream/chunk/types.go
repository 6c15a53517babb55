// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package chunk

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
)

// Type is the type of a column of a StreamChunk.
type Type uint8

// Supported column types.
const (
	TypeInt64 Type = iota + 1
	TypeFloat64
	TypeBool
	TypeVarchar
	TypeBytea
	TypeDecimal
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case TypeInt64:
		return "INT8"
	case TypeFloat64:
		return "FLOAT8"
	case TypeBool:
		return "BOOL"
	case TypeVarchar:
		return "VARCHAR"
	case TypeBytea:
		return "BYTEA"
	case TypeDecimal:
		return "DECIMAL"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// prettyChar is the single-letter code used by the pretty chunk format.
func (t Type) prettyChar() byte {
	switch t {
	case TypeInt64:
		return 'I'
	case TypeFloat64:
		return 'F'
	case TypeBool:
		return 'B'
	case TypeVarchar:
		return 'T'
	case TypeBytea:
		return 'X'
	case TypeDecimal:
		return 'N'
	default:
		return '?'
	}
}

func typeFromPrettyChar(c byte) (Type, error) {
	switch c {
	case 'I':
		return TypeInt64, nil
	case 'F':
		return TypeFloat64, nil
	case 'B':
		return TypeBool, nil
	case 'T':
		return TypeVarchar, nil
	case 'X':
		return TypeBytea, nil
	case 'N':
		return TypeDecimal, nil
	}
	return 0, errors.Newf("unknown type code %q", c)
}

// ParseType parses the SQL name of a type as returned by Type.String, also
// accepting a few common aliases.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INT8", "INT", "BIGINT", "INT64":
		return TypeInt64, nil
	case "FLOAT8", "FLOAT", "DOUBLE PRECISION", "FLOAT64":
		return TypeFloat64, nil
	case "BOOL", "BOOLEAN":
		return TypeBool, nil
	case "VARCHAR", "STRING", "TEXT":
		return TypeVarchar, nil
	case "BYTEA", "BYTES":
		return TypeBytea, nil
	case "DECIMAL", "NUMERIC":
		return TypeDecimal, nil
	}
	return 0, errors.Newf("unsupported column type %q", s)
}

// Datum is a single value of a row. A nil Datum is SQL NULL; otherwise it
// holds an int64, float64, bool, string, []byte or *apd.Decimal matching
// the column's Type.
type Datum interface{}

// DatumsEqual returns whether two datums of the same column are equal. Two
// NULLs are equal.
func DatumsEqual(a, b Datum) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case *apd.Decimal:
		bv, ok := b.(*apd.Decimal)
		return ok && av.Cmp(bv) == 0
	}
	return false
}

// RowsEqual returns whether two rows are equal column by column.
func RowsEqual(a, b []Datum) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !DatumsEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// FormatDatum renders a datum the way the pretty chunk format writes it.
func FormatDatum(d Datum) string {
	switch v := d.(type) {
	case nil:
		return "."
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		if v {
			return "t"
		}
		return "f"
	case string:
		return v
	case []byte:
		return `\x` + hex.EncodeToString(v)
	case *apd.Decimal:
		return v.String()
	}
	return fmt.Sprintf("%v", d)
}

// ParseDatum parses the textual form of a datum of type t. The string "."
// is NULL.
func ParseDatum(t Type, s string) (Datum, error) {
	if s == "." {
		return nil, nil
	}
	switch t {
	case TypeInt64:
		v, err := strconv.ParseInt(s, 10, 64)
		return v, errors.Wrapf(err, "parsing %s", t)
	case TypeFloat64:
		v, err := strconv.ParseFloat(s, 64)
		return v, errors.Wrapf(err, "parsing %s", t)
	case TypeBool:
		v, err := strconv.ParseBool(s)
		return v, errors.Wrapf(err, "parsing %s", t)
	case TypeVarchar:
		return s, nil
	case TypeBytea:
		if strings.HasPrefix(s, `\x`) {
			v, err := hex.DecodeString(s[2:])
			return v, errors.Wrapf(err, "parsing %s", t)
		}
		return []byte(s), nil
	case TypeDecimal:
		d, _, err := apd.NewFromString(s)
		return d, errors.Wrapf(err, "parsing %s", t)
	}
	return nil, errors.Newf("unsupported column type %s", t)
}
