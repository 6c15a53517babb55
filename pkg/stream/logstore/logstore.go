// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package logstore defines the epoch-partitioned log that decouples a sink
// executor's upstream from its sink, and provides in-memory and
// pebble-backed implementations of it.
//
// A LogWriter appends chunks under the current epoch and closes an epoch by
// flushing it. A LogReader returns the items in the order they were written,
// each paired with its epoch, and is told through Truncate which epochs have
// been durably committed downstream and may be discarded.
package logstore

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
)

// ErrEndOfLog is returned by LogReader.NextItem once the writer has been
// closed and every item has been read.
var ErrEndOfLog = errors.New("end of log")

// ChunkID identifies a chunk within its epoch.
type ChunkID uint64

// ReadItem is one entry of the log: a *StreamChunkItem, *BarrierItem or
// *UpdateVnodeBitmapItem.
type ReadItem interface {
	fmt.Stringer
	readItem()
}

// StreamChunkItem carries a chunk written with LogWriter.WriteChunk.
type StreamChunkItem struct {
	Chunk   *chunk.StreamChunk
	ChunkID ChunkID
}

// BarrierItem closes an epoch. It is read after every chunk of its epoch.
type BarrierItem struct {
	IsCheckpoint bool
}

// UpdateVnodeBitmapItem carries a change of vnode ownership. It is only
// written between epochs.
type UpdateVnodeBitmapItem struct {
	Bitmap vnode.Bitmap
}

func (*StreamChunkItem) readItem()       {}
func (*BarrierItem) readItem()           {}
func (*UpdateVnodeBitmapItem) readItem() {}

func (i *StreamChunkItem) String() string {
	return fmt.Sprintf("chunk %d (%d rows)", i.ChunkID, i.Chunk.Cardinality())
}

func (i *BarrierItem) String() string {
	if i.IsCheckpoint {
		return "checkpoint barrier"
	}
	return "barrier"
}

func (i *UpdateVnodeBitmapItem) String() string {
	return "update vnode bitmap " + i.Bitmap.String()
}

// TruncateOffset is a position in the log. Truncating at an offset discards
// it and everything before it.
type TruncateOffset struct {
	Epoch uint64
	// ChunkID is only meaningful when IsBarrier is false.
	ChunkID   ChunkID
	IsBarrier bool
}

// BarrierOffset returns the offset of the barrier closing epoch.
func BarrierOffset(epoch uint64) TruncateOffset {
	return TruncateOffset{Epoch: epoch, IsBarrier: true}
}

func (o TruncateOffset) String() string {
	if o.IsBarrier {
		return fmt.Sprintf("barrier@%d", o.Epoch)
	}
	return fmt.Sprintf("chunk %d@%d", o.ChunkID, o.Epoch)
}

// LogWriter is the write side of a log.
type LogWriter interface {
	// Init sets the epoch subsequent chunks are written under.
	Init(ctx context.Context, epoch uint64) error
	// WriteChunk appends c under the current epoch. It may block until the
	// log has room.
	WriteChunk(ctx context.Context, c *chunk.StreamChunk) error
	// FlushCurrentEpoch appends the barrier closing the current epoch and
	// moves on to nextEpoch. A checkpoint flush may block until the reader
	// truncated the closed epoch.
	FlushCurrentEpoch(ctx context.Context, nextEpoch uint64, isCheckpoint bool) error
	// UpdateVnodeBitmap appends a vnode ownership change. It must be called
	// between FlushCurrentEpoch and the next WriteChunk.
	UpdateVnodeBitmap(ctx context.Context, bitmap vnode.Bitmap) error
	// Close marks the end of the log. The reader drains the remaining items
	// and then returns ErrEndOfLog.
	Close() error
}

// LogReader is the read side of a log.
type LogReader interface {
	// Init prepares the reader. It must be called before NextItem.
	Init(ctx context.Context) error
	// NextItem blocks until the next item is available and returns it with
	// its epoch.
	NextItem(ctx context.Context) (uint64, ReadItem, error)
	// Truncate discards everything up to and including offset. Truncating
	// an offset at or before a previous truncation is a no-op.
	Truncate(ctx context.Context, offset TruncateOffset) error
}

// Factory builds the two handles of one log.
type Factory interface {
	Build(ctx context.Context) (LogReader, LogWriter, error)
}
