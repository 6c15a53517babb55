// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package logstore

import (
	"context"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
	"github.com/cockroachdb/sinkexec/pkg/util/log"
	"github.com/golang/snappy"
)

// KVOptions configures a pebble-backed log.
type KVOptions struct {
	// FS defaults to the local file system.
	FS vfs.FS
	// CacheSize is the size in bytes of the block cache. Zero uses pebble's
	// default.
	CacheSize int64
}

// KVFactory builds logs persisted in a pebble store. Items are keyed by
// (epoch, sequence) so that a scan returns them in write order, and
// truncation is a range deletion of every key up to the truncated offset.
// Items of epochs that were never truncated survive a restart and are
// replayed by the next reader.
type KVFactory struct {
	db *pebble.DB
}

var _ Factory = (*KVFactory)(nil)

// OpenKVFactory opens (or creates) the store in dir.
func OpenKVFactory(dir string, opts KVOptions) (*KVFactory, error) {
	popts := &pebble.Options{FS: opts.FS}
	if opts.CacheSize > 0 {
		cache := pebble.NewCache(opts.CacheSize)
		defer cache.Unref()
		popts.Cache = cache
	}
	db, err := pebble.Open(dir, popts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening log store in %q", dir)
	}
	return &KVFactory{db: db}, nil
}

// Close closes the underlying store. Handles built from f must not be used
// afterwards.
func (f *KVFactory) Close() error {
	return f.db.Close()
}

// Build implements Factory.
func (f *KVFactory) Build(context.Context) (LogReader, LogWriter, error) {
	s := &kvLog{db: f.db}
	return &kvReader{s: s}, &kvWriter{s: s}, nil
}

const kvKeyLen = 16

// kvKeyMax sorts after every item key.
var kvKeyMax = []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func kvKey(epoch, seq uint64) []byte {
	k := make([]byte, kvKeyLen)
	binary.BigEndian.PutUint64(k, epoch)
	binary.BigEndian.PutUint64(k[8:], seq)
	return k
}

func decodeKVKey(k []byte) (epoch, seq uint64, err error) {
	if len(k) != kvKeyLen {
		return 0, 0, errors.Newf("malformed log key %x", k)
	}
	return binary.BigEndian.Uint64(k), binary.BigEndian.Uint64(k[8:]), nil
}

const (
	kvItemChunk byte = iota + 1
	kvItemBarrier
	kvItemVnodeBitmap
)

func encodeKVItem(item ReadItem) []byte {
	var raw []byte
	switch i := item.(type) {
	case *StreamChunkItem:
		raw = chunk.Encode([]byte{kvItemChunk}, i.Chunk)
	case *BarrierItem:
		raw = []byte{kvItemBarrier, 0}
		if i.IsCheckpoint {
			raw[1] = 1
		}
	case *UpdateVnodeBitmapItem:
		raw = append([]byte{kvItemVnodeBitmap}, i.Bitmap.String()...)
	default:
		panic(errors.AssertionFailedf("unknown log item %T", item))
	}
	return snappy.Encode(nil, raw)
}

func decodeKVItem(seq uint64, value []byte) (ReadItem, error) {
	raw, err := snappy.Decode(nil, value)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing log item")
	}
	if len(raw) == 0 {
		return nil, errors.New("empty log item")
	}
	switch raw[0] {
	case kvItemChunk:
		c, err := chunk.Decode(raw[1:])
		if err != nil {
			return nil, err
		}
		return &StreamChunkItem{Chunk: c, ChunkID: ChunkID(seq)}, nil
	case kvItemBarrier:
		return &BarrierItem{IsCheckpoint: len(raw) > 1 && raw[1] == 1}, nil
	case kvItemVnodeBitmap:
		b, err := vnode.Parse(string(raw[1:]))
		if err != nil {
			return nil, err
		}
		return &UpdateVnodeBitmapItem{Bitmap: b}, nil
	}
	return nil, errors.Newf("unknown log item kind %d", raw[0])
}

// kvLog is the state shared by the two handles. Fields below signal are
// guarded by signal.mu.
type kvLog struct {
	db *pebble.DB

	signal
	// writerReady is set once the writer has discarded the unflushed items of
	// a previous run. The reader does not scan before that.
	writerReady bool
	// version is bumped after every write.
	version        uint64
	closed         bool
	lastBarrier    uint64
	anyBarrierRead bool
	truncated      uint64
	anyTruncated   bool
}

type kvWriter struct {
	s           *kvLog
	initialized bool
	epoch       uint64
	seq         uint64
}

var _ LogWriter = (*kvWriter)(nil)

// Init implements LogWriter. Items at or after epoch left behind by a
// previous writer are discarded; they were never flushed by a checkpoint.
func (w *kvWriter) Init(ctx context.Context, epoch uint64) error {
	if w.initialized {
		return errors.AssertionFailedf("log writer initialized twice")
	}
	if err := w.s.db.DeleteRange(kvKey(epoch, 0), kvKeyMax, pebble.Sync); err != nil {
		return errors.Wrapf(err, "clearing log from epoch %d", epoch)
	}
	log.VEventf(ctx, 2, "log writer initialized at epoch %d", epoch)
	w.initialized = true
	w.epoch = epoch

	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	w.s.writerReady = true
	w.s.version++
	w.s.notifyLocked()
	return nil
}

func (w *kvWriter) put(item ReadItem, opts *pebble.WriteOptions) error {
	if !w.initialized {
		return errors.AssertionFailedf("write to uninitialized log")
	}
	w.s.mu.Lock()
	closed := w.s.closed
	w.s.mu.Unlock()
	if closed {
		return errors.AssertionFailedf("write to closed log")
	}
	if err := w.s.db.Set(kvKey(w.epoch, w.seq), encodeKVItem(item), opts); err != nil {
		return errors.Wrapf(err, "writing %s at epoch %d", item, w.epoch)
	}
	w.seq++
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	w.s.version++
	w.s.notifyLocked()
	return nil
}

// WriteChunk implements LogWriter.
func (w *kvWriter) WriteChunk(_ context.Context, c *chunk.StreamChunk) error {
	return w.put(&StreamChunkItem{Chunk: c}, pebble.NoSync)
}

// FlushCurrentEpoch implements LogWriter. Checkpoint barriers are synced.
func (w *kvWriter) FlushCurrentEpoch(_ context.Context, nextEpoch uint64, isCheckpoint bool) error {
	if nextEpoch <= w.epoch {
		return errors.AssertionFailedf("next epoch %d not after current epoch %d", nextEpoch, w.epoch)
	}
	opts := pebble.NoSync
	if isCheckpoint {
		opts = pebble.Sync
	}
	if err := w.put(&BarrierItem{IsCheckpoint: isCheckpoint}, opts); err != nil {
		return err
	}
	w.epoch, w.seq = nextEpoch, 0
	return nil
}

// UpdateVnodeBitmap implements LogWriter.
func (w *kvWriter) UpdateVnodeBitmap(_ context.Context, bitmap vnode.Bitmap) error {
	return w.put(&UpdateVnodeBitmapItem{Bitmap: bitmap}, pebble.NoSync)
}

// Close implements LogWriter.
func (w *kvWriter) Close() error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	w.s.closed = true
	w.s.notifyLocked()
	return nil
}

type kvReader struct {
	s *kvLog
	// next is the lower bound of the next scan.
	next []byte
}

var _ LogReader = (*kvReader)(nil)

// Init implements LogReader.
func (r *kvReader) Init(context.Context) error {
	r.next = nil
	return nil
}

// NextItem implements LogReader. Items left by a previous run are only read
// once the writer is initialized, since Init discards the unflushed ones.
func (r *kvReader) NextItem(ctx context.Context) (uint64, ReadItem, error) {
	s := r.s
	for {
		s.mu.Lock()
		version, closed, ready := s.version, s.closed, s.writerReady
		s.mu.Unlock()

		if !ready {
			if closed {
				return 0, nil, ErrEndOfLog
			}
			if err := s.waitUntil(ctx, func() bool {
				return s.writerReady || s.closed
			}); err != nil {
				return 0, nil, err
			}
			continue
		}
		epoch, item, ok, err := r.scan()
		if err != nil || ok {
			return epoch, item, err
		}
		if closed {
			return 0, nil, ErrEndOfLog
		}
		if err := s.waitUntil(ctx, func() bool {
			return s.version != version || s.closed
		}); err != nil {
			return 0, nil, err
		}
	}
}

// scan returns the first item at or after r.next, if any.
func (r *kvReader) scan() (epoch uint64, item ReadItem, ok bool, _ error) {
	iter, err := r.s.db.NewIter(&pebble.IterOptions{LowerBound: r.next})
	if err != nil {
		return 0, nil, false, err
	}
	defer func() {
		if cerr := iter.Close(); cerr != nil {
			log.Warningf(context.Background(), "closing log iterator: %v", cerr)
		}
	}()
	if !iter.First() {
		return 0, nil, false, iter.Error()
	}
	epoch, seq, err := decodeKVKey(iter.Key())
	if err != nil {
		return 0, nil, false, err
	}
	item, err = decodeKVItem(seq, iter.Value())
	if err != nil {
		return 0, nil, false, errors.Wrapf(err, "decoding log item at epoch %d seq %d", epoch, seq)
	}
	r.next = kvKey(epoch, seq+1)
	if _, isBarrier := item.(*BarrierItem); isBarrier {
		r.s.mu.Lock()
		r.s.lastBarrier, r.s.anyBarrierRead = epoch, true
		r.s.mu.Unlock()
	}
	return epoch, item, true, nil
}

// Truncate implements LogReader.
func (r *kvReader) Truncate(ctx context.Context, offset TruncateOffset) error {
	if !offset.IsBarrier {
		return errors.Newf("log can only be truncated at barriers, not at %s", offset)
	}
	s := r.s
	s.mu.Lock()
	if s.anyTruncated && offset.Epoch <= s.truncated {
		s.mu.Unlock()
		return nil
	}
	if !s.anyBarrierRead || offset.Epoch > s.lastBarrier {
		s.mu.Unlock()
		return errors.Newf("cannot truncate %s: not read yet", offset)
	}
	s.mu.Unlock()

	if err := s.db.DeleteRange(kvKey(0, 0), kvKey(offset.Epoch+1, 0), pebble.Sync); err != nil {
		return errors.Wrapf(err, "truncating log at %s", offset)
	}
	log.VEventf(ctx, 2, "truncated log at %s", offset)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncated, s.anyTruncated = offset.Epoch, true
	return nil
}
