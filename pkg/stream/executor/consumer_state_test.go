// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package executor

import (
	"math/rand"
	"testing"

	"github.com/cockroachdb/sinkexec/pkg/util/leaktest"
	"github.com/stretchr/testify/require"
)

func TestNextConsumerState(t *testing.T) {
	defer leaktest.AfterTest(t)()

	uninit := consumerState{}
	begun := func(e uint64) consumerState { return consumerState{phase: phaseEpochBegun, epoch: e} }
	received := func(e uint64) consumerState { return consumerState{phase: phaseBarrierReceived, epoch: e} }

	for _, tc := range []struct {
		state consumerState
		epoch uint64
		kind  itemKind
		exp   consumerState
		begin bool
		fail  bool
	}{
		{state: uninit, epoch: 5, kind: itemChunk, exp: begun(5), begin: true},
		{state: uninit, epoch: 5, kind: itemBarrier, exp: received(5), begin: true},
		{state: uninit, epoch: 5, kind: itemUpdateVnodeBitmap, fail: true},

		{state: begun(5), epoch: 5, kind: itemChunk, exp: begun(5)},
		{state: begun(5), epoch: 6, kind: itemChunk, exp: begun(6)},
		{state: begun(5), epoch: 4, kind: itemChunk, fail: true},
		{state: begun(5), epoch: 5, kind: itemBarrier, exp: received(5)},
		{state: begun(5), epoch: 4, kind: itemBarrier, fail: true},
		{state: begun(5), epoch: 5, kind: itemUpdateVnodeBitmap, fail: true},

		{state: received(5), epoch: 6, kind: itemChunk, exp: begun(6), begin: true},
		{state: received(5), epoch: 9, kind: itemChunk, exp: begun(9), begin: true},
		{state: received(5), epoch: 5, kind: itemChunk, fail: true},
		{state: received(5), epoch: 4, kind: itemChunk, fail: true},
		{state: received(5), epoch: 6, kind: itemBarrier, exp: received(6), begin: true},
		{state: received(5), epoch: 5, kind: itemBarrier, fail: true},
		{state: received(5), epoch: 6, kind: itemUpdateVnodeBitmap, exp: begun(6), begin: true},
		{state: received(5), epoch: 5, kind: itemUpdateVnodeBitmap, fail: true},
		{state: received(5), epoch: 4, kind: itemUpdateVnodeBitmap, fail: true},
	} {
		next, begin, err := nextConsumerState(tc.state, tc.epoch, tc.kind)
		if tc.fail {
			require.Error(t, err, "%s + %s@%d", tc.state, tc.kind, tc.epoch)
			require.True(t, IsProtocolViolation(err))
			continue
		}
		require.NoError(t, err, "%s + %s@%d", tc.state, tc.kind, tc.epoch)
		require.Equal(t, tc.exp, next, "%s + %s@%d", tc.state, tc.kind, tc.epoch)
		require.Equal(t, tc.begin, begin, "%s + %s@%d", tc.state, tc.kind, tc.epoch)
	}
}

// Two vnode bitmap updates between the same pair of epochs are a protocol
// violation: the first one already begins the next epoch.
func TestConsumerStateRepeatedVnodeUpdate(t *testing.T) {
	defer leaktest.AfterTest(t)()

	s := consumerState{phase: phaseBarrierReceived, epoch: 1}
	next, begin, err := nextConsumerState(s, 2, itemUpdateVnodeBitmap)
	require.NoError(t, err)
	require.True(t, begin)
	require.Equal(t, consumerState{phase: phaseEpochBegun, epoch: 2}, next)

	_, _, err = nextConsumerState(next, 2, itemUpdateVnodeBitmap)
	require.True(t, IsProtocolViolation(err))

	next, begin, err = nextConsumerState(next, 2, itemChunk)
	require.NoError(t, err)
	require.False(t, begin)
	require.Equal(t, consumerState{phase: phaseEpochBegun, epoch: 2}, next)
}

// Every item sequence the state machine accepts begins each epoch once,
// in strictly increasing order, and only ever at or after the last begun
// epoch.
func TestConsumerStateEpochMonotonicity(t *testing.T) {
	defer leaktest.AfterTest(t)()

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		var s consumerState
		var begun []uint64
		epoch := uint64(rng.Intn(3) + 1)
		for j := 0; j < 30; j++ {
			delta := rng.Intn(3) - 1
			if delta < 0 && epoch == 0 {
				delta = 0
			}
			epoch = uint64(int64(epoch) + int64(delta))
			kind := itemKind(rng.Intn(3))
			next, begin, err := nextConsumerState(s, epoch, kind)
			if err != nil {
				require.True(t, IsProtocolViolation(err))
				continue
			}
			if begin {
				if len(begun) > 0 {
					require.Greater(t, epoch, begun[len(begun)-1])
				}
				begun = append(begun, epoch)
			}
			if len(begun) > 0 {
				require.GreaterOrEqual(t, epoch, begun[len(begun)-1])
			}
			s = next
		}
	}
}
