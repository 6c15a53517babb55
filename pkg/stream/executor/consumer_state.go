// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package executor

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// consumerPhase is the phase of the log consumer.
type consumerPhase int

const (
	// phaseUninitialized: no epoch has begun on the sink writer yet.
	phaseUninitialized consumerPhase = iota
	// phaseEpochBegun: BeginEpoch was called for epoch.
	phaseEpochBegun
	// phaseBarrierReceived: the barrier closing epoch was passed to the sink
	// writer.
	phaseBarrierReceived
)

// consumerState tracks which sink writer call the log consumer may make
// next.
type consumerState struct {
	phase consumerPhase
	epoch uint64
}

func (s consumerState) String() string {
	switch s.phase {
	case phaseUninitialized:
		return "uninitialized"
	case phaseEpochBegun:
		return fmt.Sprintf("epoch %d begun", s.epoch)
	case phaseBarrierReceived:
		return fmt.Sprintf("barrier %d received", s.epoch)
	}
	return fmt.Sprintf("consumerState(%d)", int(s.phase))
}

// itemKind is the kind of log item the consumer read.
type itemKind int

const (
	itemChunk itemKind = iota
	itemBarrier
	itemUpdateVnodeBitmap
)

func (k itemKind) String() string {
	switch k {
	case itemChunk:
		return "chunk"
	case itemBarrier:
		return "barrier"
	case itemUpdateVnodeBitmap:
		return "vnode bitmap update"
	}
	return fmt.Sprintf("itemKind(%d)", int(k))
}

// nextConsumerState computes the state after the consumer reads an item of
// the given kind at epoch. beginEpoch reports whether BeginEpoch(epoch) must
// be called on the sink writer before the item is applied. A vnode bitmap
// update is only legal right after a barrier. Any item starts a new epoch
// if none is open; within an open epoch the epoch may not decrease, and a
// new epoch must be strictly later than the closed one.
func nextConsumerState(
	s consumerState, epoch uint64, kind itemKind,
) (next consumerState, beginEpoch bool, _ error) {
	if kind == itemUpdateVnodeBitmap && s.phase != phaseBarrierReceived {
		return s, false, errors.AssertionFailedf(
			"vnode bitmap update at epoch %d while %s", epoch, s)
	}
	switch s.phase {
	case phaseUninitialized:
		beginEpoch = true
	case phaseEpochBegun:
		if epoch < s.epoch {
			return s, false, errors.AssertionFailedf(
				"%s read at epoch %d while %s", kind, epoch, s)
		}
	case phaseBarrierReceived:
		if epoch <= s.epoch {
			return s, false, errors.AssertionFailedf(
				"%s read at epoch %d while %s", kind, epoch, s)
		}
		beginEpoch = true
	default:
		return s, false, errors.AssertionFailedf("unknown consumer state %s", s)
	}
	if kind == itemBarrier {
		return consumerState{phase: phaseBarrierReceived, epoch: epoch}, beginEpoch, nil
	}
	return consumerState{phase: phaseEpochBegun, epoch: epoch}, beginEpoch, nil
}
