// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package executor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/sinkexec/pkg/connector/sink"
	"github.com/cockroachdb/sinkexec/pkg/stream/catalog"
	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/cockroachdb/sinkexec/pkg/stream/logstore"
	"github.com/cockroachdb/sinkexec/pkg/stream/monitor"
	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
	"github.com/cockroachdb/sinkexec/pkg/util/log"
	"github.com/cockroachdb/sinkexec/pkg/util/timeutil"
)

// SinkExecutorArgs configures a SinkExecutor.
type SinkExecutorArgs struct {
	Input     Executor
	Sink      sink.Sink
	SinkParam sink.SinkParam
	// Columns describe the input, hidden columns included. Hidden columns
	// are removed before rows reach the sink.
	Columns []catalog.ColumnCatalog
	// LogStore defaults to a bounded in-memory log.
	LogStore logstore.Factory
	// Metrics may be nil.
	Metrics     *monitor.StreamingMetrics
	ActorID     ActorID
	ExecutorID  uint64
	VnodeBitmap vnode.Bitmap
	// TimeSource defaults to the wall clock.
	TimeSource timeutil.TimeSource
}

// SinkExecutor delivers its input to a sink. Two drivers run concurrently:
// the write driver reduces every chunk, appends it to a log and forwards
// the input downstream, and the consume driver replays the log into a sink
// writer, committing at checkpoint barriers and truncating the log once a
// commit succeeded. The output is the reduced input.
type SinkExecutor struct {
	input      Executor
	sink       sink.Sink
	sinkType   sink.SinkType
	logStore   logstore.Factory
	metrics    *monitor.SinkMetrics
	timeSource timeutil.TimeSource
	actorID    ActorID
	executorID uint64
	bitmap     vnode.Bitmap
	// visible are the positions of the delivered columns, or nil if no
	// column is hidden.
	visible []int
	// slowCommitLog rate limits warnings about commits slower than
	// slowCommitThreshold.
	slowCommitLog log.EveryN
}

const slowCommitThreshold = 10 * time.Second

var _ Executor = (*SinkExecutor)(nil)

// NewSinkExecutor validates args and returns the executor.
func NewSinkExecutor(args SinkExecutorArgs) (*SinkExecutor, error) {
	if args.Input == nil || args.Sink == nil {
		return nil, errors.AssertionFailedf("sink executor requires an input and a sink")
	}
	if n, m := len(args.Columns), len(args.Input.Schema().Fields); n != m {
		return nil, errors.AssertionFailedf(
			"sink executor got %d columns for an input of %d fields", n, m)
	}
	e := &SinkExecutor{
		input:      args.Input,
		sink:       args.Sink,
		sinkType:   args.SinkParam.SinkType,
		logStore:   args.LogStore,
		timeSource: args.TimeSource,
		actorID:    args.ActorID,
		executorID: args.ExecutorID,
		bitmap:     args.VnodeBitmap,

		slowCommitLog: log.Every(time.Minute),
	}
	if e.logStore == nil {
		e.logStore = logstore.BoundedInMemFactory{}
	}
	if e.timeSource == nil {
		e.timeSource = timeutil.DefaultTimeSource{}
	}
	if visible, anyHidden := catalog.VisibleIndices(args.Columns); anyHidden {
		e.visible = visible
	}
	if args.Metrics != nil {
		m := args.Metrics.ForSink(fmt.Sprintf("%X", args.ExecutorID), args.Sink.Connector())
		e.metrics = &m
	}
	return e, nil
}

// Schema implements Executor.
func (e *SinkExecutor) Schema() catalog.Schema {
	return e.input.Schema()
}

// PkIndices implements Executor.
func (e *SinkExecutor) PkIndices() []int {
	return e.input.PkIndices()
}

// Identity implements Executor.
func (e *SinkExecutor) Identity() string {
	return fmt.Sprintf("SinkExecutor %X", e.executorID)
}

// Execute implements Executor.
func (e *SinkExecutor) Execute(ctx context.Context) MessageStream {
	ctx = logtags.AddTag(ctx, "sink-exec", fmt.Sprintf("%X", e.executorID))
	ctx = logtags.AddTag(ctx, "actor", uint32(e.actorID))
	reader, writer, err := e.logStore.Build(ctx)
	if err != nil {
		return errStream{err: errors.Wrap(err, "building log store")}
	}
	log.VEventf(ctx, 1, "starting %s with %s sink (%s)", e.Identity(), e.sink.Connector(), e.sinkType)
	return mergeDrivers(ctx,
		func(ctx context.Context, emit emitFunc) error {
			return e.writeLog(ctx, writer, emit)
		},
		func(ctx context.Context, _ emitFunc) error {
			return e.consumeLog(ctx, reader)
		},
	)
}

// reduce returns the chunk that is logged and forwarded for c.
func (e *SinkExecutor) reduce(c *chunk.StreamChunk) *chunk.StreamChunk {
	c = chunk.MergeChunkRows(c, e.input.PkIndices())
	if e.sinkType == sink.ForceAppendOnly {
		c = chunk.ForceAppendOnly(c)
	}
	return c
}

// writeLog runs the input, logging every chunk and barrier and forwarding
// every message downstream once it has been logged. The log writer is
// closed when the input ends.
func (e *SinkExecutor) writeLog(
	ctx context.Context, w logstore.LogWriter, emit emitFunc,
) (retErr error) {
	input := e.input.Execute(ctx)
	defer func() {
		retErr = errors.CombineErrors(retErr, input.Close())
	}()

	msg, err := input.Next(ctx)
	if errors.Is(err, io.EOF) {
		return errors.AssertionFailedf("%s: input ended before the first barrier", e.Identity())
	} else if err != nil {
		return err
	}
	first, ok := msg.(*Barrier)
	if !ok {
		return errors.AssertionFailedf(
			"%s: the first message must be a barrier, got %s", e.Identity(), msg)
	}
	if err := w.Init(ctx, first.Epoch.Curr); err != nil {
		return errors.Wrap(err, "initializing log writer")
	}
	defer func() {
		retErr = errors.CombineErrors(retErr, w.Close())
	}()
	if err := emit(ctx, first); err != nil {
		return err
	}

	for {
		msg, err := input.Next(ctx)
		if errors.Is(err, io.EOF) {
			log.VEventf(ctx, 1, "input of %s ended", e.Identity())
			return nil
		} else if err != nil {
			return err
		}
		switch m := msg.(type) {
		case *ChunkMessage:
			c := e.reduce(m.Chunk)
			if c.Cardinality() == 0 {
				continue
			}
			if err := w.WriteChunk(ctx, c); err != nil {
				return errors.Wrap(err, "writing chunk to log")
			}
			msg = &ChunkMessage{Chunk: c}
		case *Barrier:
			if err := w.FlushCurrentEpoch(ctx, m.Epoch.Curr, m.IsCheckpoint()); err != nil {
				return errors.Wrapf(err, "flushing epoch %d", m.Epoch.Prev)
			}
			if bitmap, ok := m.AsUpdateVnodeBitmap(e.actorID); ok {
				if err := w.UpdateVnodeBitmap(ctx, bitmap); err != nil {
					return errors.Wrap(err, "logging vnode bitmap update")
				}
			}
		}
		if err := emit(ctx, msg); err != nil {
			return err
		}
	}
}

func itemKindOf(item logstore.ReadItem) itemKind {
	switch item.(type) {
	case *logstore.BarrierItem:
		return itemBarrier
	case *logstore.UpdateVnodeBitmapItem:
		return itemUpdateVnodeBitmap
	default:
		return itemChunk
	}
}

// consumeLog replays the log into a sink writer until the log ends.
func (e *SinkExecutor) consumeLog(ctx context.Context, r logstore.LogReader) (retErr error) {
	if err := r.Init(ctx); err != nil {
		return errors.Wrap(err, "initializing log reader")
	}
	w, err := e.sink.NewWriter(ctx, sink.SinkWriterParam{
		ExecutorID:  e.executorID,
		VnodeBitmap: e.bitmap,
	})
	if err != nil {
		return errors.Wrapf(err, "creating %s sink writer", e.sink.Connector())
	}
	defer func() {
		retErr = errors.CombineErrors(retErr, w.Close())
	}()

	var state consumerState
	for {
		epoch, item, err := r.NextItem(ctx)
		if errors.Is(err, logstore.ErrEndOfLog) {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "reading log")
		}
		next, beginEpoch, err := nextConsumerState(state, epoch, itemKindOf(item))
		if err != nil {
			return err
		}
		if beginEpoch {
			if err := w.BeginEpoch(ctx, epoch); err != nil {
				return errors.Wrapf(err, "beginning epoch %d", epoch)
			}
		}
		switch it := item.(type) {
		case *logstore.StreamChunkItem:
			c := it.Chunk
			if e.visible != nil {
				c = c.Project(e.visible)
			}
			if err := w.WriteBatch(ctx, c); err != nil {
				if abortErr := w.Abort(ctx); abortErr != nil {
					err = errors.CombineErrors(err, errors.Wrap(abortErr, "aborting"))
				}
				return errors.Wrapf(err, "writing batch at epoch %d", epoch)
			}
			if e.metrics != nil {
				e.metrics.RecordWrite(c.Cardinality())
			}
		case *logstore.BarrierItem:
			if !it.IsCheckpoint {
				if err := w.Barrier(ctx, false); err != nil {
					return errors.Wrapf(err, "barrier at epoch %d", epoch)
				}
				break
			}
			start := e.timeSource.Now()
			if err := w.Barrier(ctx, true); err != nil {
				return errors.Wrapf(err, "committing epoch %d", epoch)
			}
			elapsed := e.timeSource.Since(start)
			if e.metrics != nil {
				e.metrics.RecordCommit(elapsed)
			}
			log.VEventf(ctx, 2, "committed epoch %d in %s", epoch, elapsed)
			if elapsed > slowCommitThreshold && e.slowCommitLog.ShouldLog() {
				log.Warningf(ctx, "commit of epoch %d to %s sink took %s", epoch, e.sink.Connector(), elapsed)
			}
			if err := r.Truncate(ctx, logstore.BarrierOffset(epoch)); err != nil {
				return errors.Wrapf(err, "truncating log at epoch %d", epoch)
			}
		case *logstore.UpdateVnodeBitmapItem:
			if err := w.UpdateVnodeBitmap(ctx, it.Bitmap); err != nil {
				return errors.Wrap(err, "updating vnode bitmap")
			}
		}
		state = next
	}
}
