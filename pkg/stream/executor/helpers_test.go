// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sinkexec/pkg/connector/sink"
	"github.com/cockroachdb/sinkexec/pkg/stream/catalog"
	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/cockroachdb/sinkexec/pkg/stream/logstore"
	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
	"github.com/cockroachdb/sinkexec/pkg/util/syncutil"
	"github.com/cockroachdb/sinkexec/pkg/util/timeutil"
)

// intColumns returns n INT8 columns named v1..vn, hiding the given ones.
func intColumns(n int, hidden ...int) []catalog.ColumnCatalog {
	cols := make([]catalog.ColumnCatalog, n)
	for i := range cols {
		cols[i] = catalog.ColumnCatalog{Desc: catalog.ColumnDesc{
			ID:   catalog.ColumnID(i + 1),
			Name: fmt.Sprintf("v%d", i+1),
			Type: chunk.TypeInt64,
		}}
	}
	for _, h := range hidden {
		cols[h].IsHidden = true
	}
	return cols
}

// eventLog is shared by the fakes of one test so that the relative order of
// sink and log store calls can be checked.
type eventLog struct {
	mu struct {
		syncutil.Mutex
		events []string
	}
}

func (l *eventLog) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mu.events = append(l.mu.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.mu.events...)
}

// withoutPrefix returns the events not starting with prefix.
func (l *eventLog) withoutPrefix(prefix string) []string {
	var res []string
	for _, e := range l.events() {
		if !strings.HasPrefix(e, prefix) {
			res = append(res, e)
		}
	}
	return res
}

// withPrefix returns the events starting with prefix.
func (l *eventLog) withPrefix(prefix string) []string {
	var res []string
	for _, e := range l.events() {
		if strings.HasPrefix(e, prefix) {
			res = append(res, e)
		}
	}
	return res
}

// recordingSink records every writer call and can be told to fail some of
// them.
type recordingSink struct {
	log *eventLog
	// batches receives every chunk written.
	batches []*chunk.StreamChunk

	failWriteBatch error
	failCheckpoint error
	commitLatency  time.Duration
	clock          *timeutil.ManualTime
}

var _ sink.Sink = (*recordingSink)(nil)

func (s *recordingSink) Connector() string { return "recording" }

func (s *recordingSink) NewWriter(
	_ context.Context, param sink.SinkWriterParam,
) (sink.SinkWriter, error) {
	s.log.add("new_writer %d %s", param.ExecutorID, param.VnodeBitmap)
	return &recordingWriter{s: s}, nil
}

type recordingWriter struct {
	s *recordingSink
}

func (w *recordingWriter) BeginEpoch(_ context.Context, epoch uint64) error {
	w.s.log.add("begin_epoch %d", epoch)
	return nil
}

func (w *recordingWriter) WriteBatch(_ context.Context, c *chunk.StreamChunk) error {
	w.s.log.add("write_batch %d rows", c.Cardinality())
	if w.s.failWriteBatch != nil {
		return w.s.failWriteBatch
	}
	w.s.batches = append(w.s.batches, c)
	return nil
}

func (w *recordingWriter) Barrier(_ context.Context, isCheckpoint bool) error {
	w.s.log.add("barrier checkpoint=%t", isCheckpoint)
	if isCheckpoint {
		if w.s.clock != nil {
			w.s.clock.Advance(w.s.commitLatency)
		}
		if w.s.failCheckpoint != nil {
			return w.s.failCheckpoint
		}
	}
	return nil
}

func (w *recordingWriter) Abort(context.Context) error {
	w.s.log.add("abort")
	return nil
}

func (w *recordingWriter) UpdateVnodeBitmap(_ context.Context, bitmap vnode.Bitmap) error {
	w.s.log.add("update_vnode_bitmap %s", bitmap)
	return nil
}

func (w *recordingWriter) Close() error {
	w.s.log.add("close")
	return nil
}

// recordingLogStore wraps a log store, recording truncations and log
// writes, and failing reads after failReadAfter items if failRead is set.
type recordingLogStore struct {
	inner         logstore.Factory
	log           *eventLog
	failRead      error
	failReadAfter int
}

func (f *recordingLogStore) Build(
	ctx context.Context,
) (logstore.LogReader, logstore.LogWriter, error) {
	r, w, err := f.inner.Build(ctx)
	if err != nil {
		return nil, nil, err
	}
	return &recordingReader{LogReader: r, f: f}, &recordingWriterLog{LogWriter: w, f: f}, nil
}

type recordingReader struct {
	logstore.LogReader
	f    *recordingLogStore
	read int
}

func (r *recordingReader) NextItem(ctx context.Context) (uint64, logstore.ReadItem, error) {
	if r.f.failRead != nil && r.read >= r.f.failReadAfter {
		return 0, nil, r.f.failRead
	}
	r.read++
	return r.LogReader.NextItem(ctx)
}

func (r *recordingReader) Truncate(ctx context.Context, offset logstore.TruncateOffset) error {
	r.f.log.add("truncate %s", offset)
	return r.LogReader.Truncate(ctx, offset)
}

type recordingWriterLog struct {
	logstore.LogWriter
	f *recordingLogStore
}

func (w *recordingWriterLog) WriteChunk(ctx context.Context, c *chunk.StreamChunk) error {
	w.f.log.add("log chunk %d rows", c.Cardinality())
	return w.LogWriter.WriteChunk(ctx, c)
}

func (w *recordingWriterLog) FlushCurrentEpoch(
	ctx context.Context, nextEpoch uint64, isCheckpoint bool,
) error {
	w.f.log.add("log flush next=%d checkpoint=%t", nextEpoch, isCheckpoint)
	return w.LogWriter.FlushCurrentEpoch(ctx, nextEpoch, isCheckpoint)
}

func (w *recordingWriterLog) Close() error {
	w.f.log.add("log close")
	return w.LogWriter.Close()
}

var errInjected = errors.New("injected failure")
