// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package executor

import (
	"testing"

	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
	"github.com/cockroachdb/sinkexec/pkg/util/leaktest"
	"github.com/stretchr/testify/require"
)

func TestHashDispatcher(t *testing.T) {
	defer leaktest.AfterTest(t)()

	bitmaps := vnode.Split(3)
	d := NewHashDispatcher([]int{0}, map[ActorID]vnode.Bitmap{
		7: bitmaps[2], 3: bitmaps[0], 5: bitmaps[1],
	})
	require.Equal(t, []ActorID{3, 5, 7}, d.Actors())

	b := chunk.MakeBuilder([]chunk.Type{chunk.TypeInt64, chunk.TypeInt64}, 0)
	for k := int64(0); k < 100; k++ {
		b.Append(chunk.UpdateDelete, []chunk.Datum{k, int64(0)})
		b.Append(chunk.UpdateInsert, []chunk.Datum{k, int64(1)})
	}
	c := b.Build()

	parts, err := d.Dispatch(c)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	total := 0
	for actor, part := range parts {
		total += part.Cardinality()
		part.ForEachVisible(func(i int, op chunk.Op, row []chunk.Datum) {
			require.True(t, d.Bitmap(actor).Contains(vnode.Compute(row, []int{0})))
			// Update pairs stay together.
			if op == chunk.UpdateDelete {
				require.True(t, part.IsVisible(i+1))
			}
		})
	}
	require.Equal(t, c.Cardinality(), total)

	// Moving every vnode of actor 3 to actor 5.
	d.ApplyBarrier(NewTestBarrier(2).WithMutation(&Mutation{VnodeBitmaps: map[ActorID]vnode.Bitmap{
		3: vnode.Empty(),
		5: bitmaps[0].Union(bitmaps[1]),
	}}))
	parts, err = d.Dispatch(c)
	require.NoError(t, err)
	require.Equal(t, 0, parts[3].Cardinality())
	require.Equal(t, c.Cardinality(), parts[5].Cardinality()+parts[7].Cardinality())

	// Vnodes nobody owns.
	d.ApplyBarrier(NewTestBarrier(3).WithMutation(&Mutation{VnodeBitmaps: map[ActorID]vnode.Bitmap{
		5: vnode.Empty(),
	}}))
	_, err = d.Dispatch(c)
	require.True(t, IsProtocolViolation(err))
}
