// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package executor

import (
	"testing"

	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
	"github.com/cockroachdb/sinkexec/pkg/util/leaktest"
	"github.com/stretchr/testify/require"
)

func TestParseScript(t *testing.T) {
	defer leaktest.AfterTest(t)()

	msgs, err := ParseScript(`
# comment
barrier 1 kind=initial
chunk
    I T
  + 1 a
  - 2 b
watermark 0 I 10
barrier 2 kind=barrier vnodes=1:{0-9} vnodes=2:{10-255}
`)
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	b := msgs[0].(*Barrier)
	require.Equal(t, EpochPair{Prev: 0, Curr: 1}, b.Epoch)
	require.Equal(t, BarrierKindInitial, b.Kind)
	require.True(t, b.IsCheckpoint())

	require.Equal(t, 2, msgs[1].(*ChunkMessage).Chunk.Cardinality())
	require.Equal(t, &Watermark{ColIdx: 0, Val: int64(10)}, msgs[2])

	b = msgs[3].(*Barrier)
	require.False(t, b.IsCheckpoint())
	bm, ok := b.AsUpdateVnodeBitmap(2)
	require.True(t, ok)
	require.True(t, vnode.FromRange(10, vnode.Count).Equal(bm))
	_, ok = b.AsUpdateVnodeBitmap(3)
	require.False(t, ok)

	require.Equal(t, "barrier 0->1 initial\nchunk\n  I T\n + 1 a\n - 2 b\nwatermark col=0 val=10\n"+
		"barrier 1->2 barrier mutation(2 actors)", FormatMessages(msgs))

	for _, bad := range []string{
		"barrier",
		"barrier x",
		"barrier 1 kind=maybe",
		"barrier 1 vnodes=1",
		"barrier 1 color=red",
		"watermark 0 I",
		"chunk\n  I\n  + x",
		"  + 1 2",
		"flush",
	} {
		_, err := ParseScript(bad)
		require.Error(t, err, bad)
	}
}
