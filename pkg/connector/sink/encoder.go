// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sink

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/sinkexec/pkg/stream/catalog"
	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
)

// rowEncoder renders rows of one schema.
type rowEncoder struct {
	names []string
}

func newRowEncoder(schema catalog.Schema) rowEncoder {
	return rowEncoder{names: schema.Names()}
}

// jsonValue converts a datum into a value encoding/json renders faithfully.
// Decimals and non-finite floats become strings.
func jsonValue(d chunk.Datum) interface{} {
	switch v := d.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return strconv.FormatFloat(v, 'g', -1, 64)
		}
		return v
	case *apd.Decimal:
		return v.String()
	}
	return d
}

// encodeJSON renders the given columns of row as a JSON object keyed by
// column name. A nil indices renders every column.
func (e rowEncoder) encodeJSON(row []chunk.Datum, indices []int) ([]byte, error) {
	obj := make(map[string]interface{}, len(row))
	if indices == nil {
		for i, d := range row {
			obj[e.names[i]] = jsonValue(d)
		}
	} else {
		for _, i := range indices {
			obj[e.names[i]] = jsonValue(row[i])
		}
	}
	return json.Marshal(obj)
}

// csvRecord renders row as CSV fields. NULL is the empty field.
func (e rowEncoder) csvRecord(row []chunk.Datum) []string {
	rec := make([]string, len(row))
	for i, d := range row {
		if d != nil {
			rec[i] = chunk.FormatDatum(d)
		}
	}
	return rec
}
