// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package executor

import (
	"fmt"

	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
)

// ActorID identifies one parallel instance of a streaming operator.
type ActorID uint32

// Message is an element of a stream: a *ChunkMessage, *Barrier or
// *Watermark.
type Message interface {
	fmt.Stringer
	message()
}

// ChunkMessage carries a batch of row changes.
type ChunkMessage struct {
	Chunk *chunk.StreamChunk
}

// Watermark promises that no later row has a smaller value in column ColIdx.
type Watermark struct {
	ColIdx int
	Val    chunk.Datum
}

// EpochPair identifies the epoch a barrier closes (Prev) and the epoch it
// opens (Curr).
type EpochPair struct {
	Prev, Curr uint64
}

// BarrierKind says what a barrier asks of the operators it passes.
type BarrierKind int

const (
	// BarrierKindInitial is the first barrier of a stream.
	BarrierKindInitial BarrierKind = iota
	// BarrierKindBarrier separates epochs without a checkpoint.
	BarrierKindBarrier
	// BarrierKindCheckpoint asks every operator to persist its state.
	BarrierKindCheckpoint
)

func (k BarrierKind) String() string {
	switch k {
	case BarrierKindInitial:
		return "initial"
	case BarrierKindBarrier:
		return "barrier"
	case BarrierKindCheckpoint:
		return "checkpoint"
	}
	return fmt.Sprintf("BarrierKind(%d)", int(k))
}

// Mutation is a change of the streaming graph carried by a barrier.
type Mutation struct {
	// VnodeBitmaps are the new vnode ownerships of the actors whose
	// ownership changes.
	VnodeBitmaps map[ActorID]vnode.Bitmap
}

// Barrier separates two epochs of a stream.
type Barrier struct {
	Epoch    EpochPair
	Kind     BarrierKind
	Mutation *Mutation
}

func (*ChunkMessage) message() {}
func (*Watermark) message()    {}
func (*Barrier) message()      {}

// NewTestBarrier returns a checkpoint barrier opening epoch.
func NewTestBarrier(epoch uint64) *Barrier {
	prev := uint64(0)
	if epoch > 0 {
		prev = epoch - 1
	}
	return &Barrier{Epoch: EpochPair{Prev: prev, Curr: epoch}, Kind: BarrierKindCheckpoint}
}

// WithKind returns a copy of b with the given kind.
func (b *Barrier) WithKind(kind BarrierKind) *Barrier {
	res := *b
	res.Kind = kind
	return &res
}

// WithMutation returns a copy of b carrying m.
func (b *Barrier) WithMutation(m *Mutation) *Barrier {
	res := *b
	res.Mutation = m
	return &res
}

// IsCheckpoint returns whether operators persist their state at b. The
// initial barrier is a checkpoint.
func (b *Barrier) IsCheckpoint() bool {
	return b.Kind != BarrierKindBarrier
}

// AsUpdateVnodeBitmap returns the new vnode ownership of actor if b changes
// it.
func (b *Barrier) AsUpdateVnodeBitmap(actor ActorID) (vnode.Bitmap, bool) {
	if b.Mutation == nil {
		return vnode.Bitmap{}, false
	}
	bitmap, ok := b.Mutation.VnodeBitmaps[actor]
	return bitmap, ok
}

func (m *ChunkMessage) String() string {
	return "chunk\n" + m.Chunk.String()
}

func (w *Watermark) String() string {
	return fmt.Sprintf("watermark col=%d val=%s", w.ColIdx, chunk.FormatDatum(w.Val))
}

func (b *Barrier) String() string {
	s := fmt.Sprintf("barrier %d->%d %s", b.Epoch.Prev, b.Epoch.Curr, b.Kind)
	if b.Mutation != nil {
		s += fmt.Sprintf(" mutation(%d actors)", len(b.Mutation.VnodeBitmaps))
	}
	return s
}
