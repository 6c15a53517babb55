// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package chunk

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
)

const encodingVersion = 1

// Datum tags of the binary encoding.
const (
	tagNull byte = iota
	tagInt64
	tagFloat64
	tagFalse
	tagTrue
	tagString
	tagBytes
	tagDecimal
)

// EncodeDatum appends the binary encoding of d to buf.
func EncodeDatum(buf []byte, d Datum) []byte {
	switch v := d.(type) {
	case nil:
		return append(buf, tagNull)
	case int64:
		buf = append(buf, tagInt64)
		return binary.BigEndian.AppendUint64(buf, uint64(v))
	case float64:
		buf = append(buf, tagFloat64)
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
	case bool:
		if v {
			return append(buf, tagTrue)
		}
		return append(buf, tagFalse)
	case string:
		buf = append(buf, tagString)
		buf = binary.AppendUvarint(buf, uint64(len(v)))
		return append(buf, v...)
	case []byte:
		buf = append(buf, tagBytes)
		buf = binary.AppendUvarint(buf, uint64(len(v)))
		return append(buf, v...)
	case *apd.Decimal:
		s := v.String()
		buf = append(buf, tagDecimal)
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		return append(buf, s...)
	}
	panic(errors.AssertionFailedf("unsupported datum %T", d))
}

// DecodeDatum decodes one datum from the front of buf and returns the
// remaining bytes.
func DecodeDatum(buf []byte) (Datum, []byte, error) {
	if len(buf) == 0 {
		return nil, nil, errors.New("decoding datum: empty buffer")
	}
	tag, buf := buf[0], buf[1:]
	switch tag {
	case tagNull:
		return nil, buf, nil
	case tagInt64, tagFloat64:
		if len(buf) < 8 {
			return nil, nil, errors.New("decoding datum: short fixed-width value")
		}
		u := binary.BigEndian.Uint64(buf)
		if tag == tagInt64 {
			return int64(u), buf[8:], nil
		}
		return math.Float64frombits(u), buf[8:], nil
	case tagFalse:
		return false, buf, nil
	case tagTrue:
		return true, buf, nil
	case tagString, tagBytes, tagDecimal:
		n, w := binary.Uvarint(buf)
		if w <= 0 || uint64(len(buf)-w) < n {
			return nil, nil, errors.New("decoding datum: bad length prefix")
		}
		data, rest := buf[w:w+int(n)], buf[w+int(n):]
		switch tag {
		case tagString:
			return string(data), rest, nil
		case tagBytes:
			return append([]byte(nil), data...), rest, nil
		default:
			d, _, err := apd.NewFromString(string(data))
			if err != nil {
				return nil, nil, errors.Wrap(err, "decoding decimal")
			}
			return d, rest, nil
		}
	}
	return nil, nil, errors.Newf("decoding datum: unknown tag %d", tag)
}

// EncodeKey returns the encoding of the given columns of row, usable as a
// map key. Rows with equal key columns have equal encodings, except for
// decimals, which compare by their textual form.
func EncodeKey(row []Datum, indices []int) string {
	var buf []byte
	for _, idx := range indices {
		buf = EncodeDatum(buf, row[idx])
	}
	return string(buf)
}

// Encode appends the binary encoding of the visible rows of c to buf.
func Encode(buf []byte, c *StreamChunk) []byte {
	buf = append(buf, encodingVersion)
	buf = binary.AppendUvarint(buf, uint64(len(c.types)))
	for _, t := range c.types {
		buf = append(buf, byte(t))
	}
	buf = binary.AppendUvarint(buf, uint64(c.Cardinality()))
	c.ForEachVisible(func(_ int, op Op, row []Datum) {
		buf = append(buf, byte(op))
		for _, d := range row {
			buf = EncodeDatum(buf, d)
		}
	})
	return buf
}

// Decode decodes a chunk written by Encode.
func Decode(buf []byte) (*StreamChunk, error) {
	if len(buf) == 0 || buf[0] != encodingVersion {
		return nil, errors.New("decoding chunk: unknown encoding version")
	}
	buf = buf[1:]
	ncols, w := binary.Uvarint(buf)
	if w <= 0 || uint64(len(buf)-w) < ncols {
		return nil, errors.New("decoding chunk: bad column count")
	}
	buf = buf[w:]
	types := make([]Type, ncols)
	for i := range types {
		types[i] = Type(buf[i])
	}
	buf = buf[ncols:]
	nrows, w := binary.Uvarint(buf)
	if w <= 0 {
		return nil, errors.New("decoding chunk: bad row count")
	}
	buf = buf[w:]
	b := MakeBuilder(types, int(nrows))
	for i := uint64(0); i < nrows; i++ {
		if len(buf) == 0 {
			return nil, errors.Newf("decoding chunk: truncated at row %d", i)
		}
		op := Op(buf[0])
		buf = buf[1:]
		row := make([]Datum, ncols)
		for j := range row {
			var err error
			if row[j], buf, err = DecodeDatum(buf); err != nil {
				return nil, errors.Wrapf(err, "row %d column %d", i, j)
			}
		}
		b.Append(op, row)
	}
	if len(buf) != 0 {
		return nil, errors.Newf("decoding chunk: %d trailing bytes", len(buf))
	}
	return b.Build(), nil
}
