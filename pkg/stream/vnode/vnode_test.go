// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package vnode

import (
	"testing"

	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/cockroachdb/sinkexec/pkg/util/leaktest"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	defer leaktest.AfterTest(t)()

	for _, n := range []int{1, 3, 4, 7, 256} {
		parts := Split(n)
		require.Len(t, parts, n)
		union := Empty()
		total := 0
		for _, p := range parts {
			total += p.Len()
			union = union.Union(p)
		}
		require.Equal(t, Count, total)
		require.True(t, union.Equal(Full()))
	}
	require.Equal(t, "{0-85}", Split(3)[0].String())
}

func TestStringParse(t *testing.T) {
	defer leaktest.AfterTest(t)()

	b := FromVnodes(0, 1, 2, 5, 7, 8, 255)
	require.Equal(t, "{0-2,5,7-8,255}", b.String())
	parsed, err := Parse(b.String())
	require.NoError(t, err)
	require.True(t, b.Equal(parsed))

	empty, err := Parse("{}")
	require.NoError(t, err)
	require.Equal(t, 0, empty.Len())

	for _, bad := range []string{"x", "3-1", "0-256", "-1"} {
		_, err := Parse(bad)
		require.Error(t, err, bad)
	}
}

func TestDifference(t *testing.T) {
	defer leaktest.AfterTest(t)()

	b := FromRange(0, 10).Difference(FromRange(5, 20))
	require.Equal(t, "{0-4}", b.String())
	require.False(t, b.Contains(5))
	require.True(t, b.Contains(4))
	var zero Bitmap
	require.Equal(t, 0, zero.Len())
	require.False(t, zero.Contains(0))
	require.Equal(t, "{}", zero.String())
}

func TestCompute(t *testing.T) {
	defer leaktest.AfterTest(t)()

	row := []chunk.Datum{int64(42), "x"}
	v := Compute(row, []int{0})
	require.Less(t, int(v), Count)
	require.Equal(t, v, Compute([]chunk.Datum{int64(42), "y"}, []int{0}))
}
