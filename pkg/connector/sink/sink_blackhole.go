// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sink

import (
	"context"
	"fmt"

	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
	"github.com/cockroachdb/sinkexec/pkg/util/log"
	"github.com/cockroachdb/sinkexec/pkg/util/syncutil"
)

// BlackholeConnector is the name of the connector that discards all rows.
const BlackholeConnector = "blackhole"

func init() {
	Register(BlackholeConnector, func(SinkParam, Options) (Sink, error) {
		return NewBlackholeSink(), nil
	})
}

// BlackholeSink accepts and discards everything. It keeps a log of the calls
// made to its writers.
type BlackholeSink struct {
	mu struct {
		syncutil.Mutex
		calls []string
	}
}

var _ Sink = (*BlackholeSink)(nil)

// NewBlackholeSink returns an empty BlackholeSink.
func NewBlackholeSink() *BlackholeSink {
	return &BlackholeSink{}
}

// Connector implements Sink.
func (s *BlackholeSink) Connector() string {
	return BlackholeConnector
}

// NewWriter implements Sink.
func (s *BlackholeSink) NewWriter(_ context.Context, param SinkWriterParam) (SinkWriter, error) {
	return &blackholeWriter{s: s, executorID: param.ExecutorID}, nil
}

// Calls returns the calls made so far, one line per call, e.g.
// "begin_epoch 2" or "write_batch 3 rows".
func (s *BlackholeSink) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.mu.calls...)
}

func (s *BlackholeSink) record(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.calls = append(s.mu.calls, fmt.Sprintf(format, args...))
}

type blackholeWriter struct {
	s          *BlackholeSink
	executorID uint64
}

func (w *blackholeWriter) BeginEpoch(ctx context.Context, epoch uint64) error {
	log.VEventf(ctx, 3, "blackhole sink %d begins epoch %d", w.executorID, epoch)
	w.s.record("begin_epoch %d", epoch)
	return nil
}

func (w *blackholeWriter) WriteBatch(_ context.Context, c *chunk.StreamChunk) error {
	w.s.record("write_batch %d rows", c.Cardinality())
	return nil
}

func (w *blackholeWriter) Barrier(_ context.Context, isCheckpoint bool) error {
	w.s.record("barrier checkpoint=%t", isCheckpoint)
	return nil
}

func (w *blackholeWriter) Abort(context.Context) error {
	w.s.record("abort")
	return nil
}

func (w *blackholeWriter) UpdateVnodeBitmap(_ context.Context, bitmap vnode.Bitmap) error {
	w.s.record("update_vnode_bitmap %s", bitmap)
	return nil
}

func (w *blackholeWriter) Close() error {
	w.s.record("close")
	return nil
}
