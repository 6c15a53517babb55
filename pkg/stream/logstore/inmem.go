// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package logstore

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
	"golang.org/x/sync/semaphore"
)

// DefaultInMemCapacity is the default number of chunks a bounded in-memory
// log holds before writers block.
const DefaultInMemCapacity = 64

// BoundedInMemFactory builds logs held in memory. At most Capacity unread
// chunks are buffered, and a checkpoint flush blocks until the reader has
// truncated the checkpointed epoch, so the writer never runs more than one
// checkpoint ahead of the sink.
type BoundedInMemFactory struct {
	Capacity int
}

var _ Factory = BoundedInMemFactory{}

// Build implements Factory.
func (f BoundedInMemFactory) Build(context.Context) (LogReader, LogWriter, error) {
	capacity := f.Capacity
	if capacity <= 0 {
		capacity = DefaultInMemCapacity
	}
	s := &inMemLog{chunks: semaphore.NewWeighted(int64(capacity))}
	return &inMemReader{s: s}, &inMemWriter{s: s}, nil
}

type inMemEntry struct {
	epoch uint64
	item  ReadItem
}

// inMemLog is the state shared by the two handles. Fields below signal are
// guarded by signal.mu.
type inMemLog struct {
	// chunks bounds the number of unread chunks.
	chunks *semaphore.Weighted

	signal
	queue  []inMemEntry
	closed bool
	// lastBarrier is the epoch of the last barrier handed to the reader.
	lastBarrier    uint64
	anyBarrierRead bool
	// truncated is the highest truncated epoch.
	truncated    uint64
	anyTruncated bool
}

type inMemWriter struct {
	s           *inMemLog
	initialized bool
	epoch       uint64
	nextChunkID ChunkID
}

var _ LogWriter = (*inMemWriter)(nil)

// Init implements LogWriter.
func (w *inMemWriter) Init(_ context.Context, epoch uint64) error {
	if w.initialized {
		return errors.AssertionFailedf("log writer initialized twice")
	}
	w.initialized = true
	w.epoch = epoch
	return nil
}

func (w *inMemWriter) push(item ReadItem) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	if w.s.closed {
		return errors.AssertionFailedf("write to closed log")
	}
	w.s.queue = append(w.s.queue, inMemEntry{epoch: w.epoch, item: item})
	w.s.notifyLocked()
	return nil
}

// WriteChunk implements LogWriter.
func (w *inMemWriter) WriteChunk(ctx context.Context, c *chunk.StreamChunk) error {
	if !w.initialized {
		return errors.AssertionFailedf("write to uninitialized log")
	}
	if err := w.s.chunks.Acquire(ctx, 1); err != nil {
		return err
	}
	id := w.nextChunkID
	w.nextChunkID++
	if err := w.push(&StreamChunkItem{Chunk: c, ChunkID: id}); err != nil {
		w.s.chunks.Release(1)
		return err
	}
	return nil
}

// FlushCurrentEpoch implements LogWriter.
func (w *inMemWriter) FlushCurrentEpoch(
	ctx context.Context, nextEpoch uint64, isCheckpoint bool,
) error {
	if !w.initialized {
		return errors.AssertionFailedf("flush of uninitialized log")
	}
	if nextEpoch <= w.epoch {
		return errors.AssertionFailedf("next epoch %d not after current epoch %d", nextEpoch, w.epoch)
	}
	if err := w.push(&BarrierItem{IsCheckpoint: isCheckpoint}); err != nil {
		return err
	}
	closed := w.epoch
	w.epoch = nextEpoch
	w.nextChunkID = 0
	if !isCheckpoint {
		return nil
	}
	return errors.Wrapf(w.s.waitUntil(ctx, func() bool {
		return w.s.anyTruncated && w.s.truncated >= closed
	}), "waiting for truncation of epoch %d", closed)
}

// UpdateVnodeBitmap implements LogWriter.
func (w *inMemWriter) UpdateVnodeBitmap(_ context.Context, bitmap vnode.Bitmap) error {
	return w.push(&UpdateVnodeBitmapItem{Bitmap: bitmap})
}

// Close implements LogWriter.
func (w *inMemWriter) Close() error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	w.s.closed = true
	w.s.notifyLocked()
	return nil
}

type inMemReader struct {
	s *inMemLog
}

var _ LogReader = (*inMemReader)(nil)

// Init implements LogReader.
func (r *inMemReader) Init(context.Context) error {
	return nil
}

// NextItem implements LogReader.
func (r *inMemReader) NextItem(ctx context.Context) (uint64, ReadItem, error) {
	s := r.s
	if err := s.waitUntil(ctx, func() bool {
		return len(s.queue) > 0 || s.closed
	}); err != nil {
		return 0, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return 0, nil, ErrEndOfLog
	}
	e := s.queue[0]
	s.queue[0] = inMemEntry{}
	s.queue = s.queue[1:]
	switch e.item.(type) {
	case *StreamChunkItem:
		s.chunks.Release(1)
	case *BarrierItem:
		s.lastBarrier, s.anyBarrierRead = e.epoch, true
	}
	return e.epoch, e.item, nil
}

// Truncate implements LogReader.
func (r *inMemReader) Truncate(_ context.Context, offset TruncateOffset) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.anyTruncated && offset.Epoch <= s.truncated {
		return nil
	}
	if !offset.IsBarrier {
		return errors.Newf("log can only be truncated at barriers, not at %s", offset)
	}
	if !s.anyBarrierRead || offset.Epoch > s.lastBarrier {
		return errors.Newf("cannot truncate %s: not read yet", offset)
	}
	s.truncated, s.anyTruncated = offset.Epoch, true
	s.notifyLocked()
	return nil
}
