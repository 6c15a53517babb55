// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package executor

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/sinkexec/pkg/connector/sink"
	"github.com/cockroachdb/sinkexec/pkg/stream/catalog"
	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/cockroachdb/sinkexec/pkg/stream/logstore"
	"github.com/cockroachdb/sinkexec/pkg/stream/monitor"
	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
	"github.com/cockroachdb/sinkexec/pkg/util/leaktest"
	"github.com/cockroachdb/sinkexec/pkg/util/log"
	"github.com/cockroachdb/sinkexec/pkg/util/metric"
	"github.com/cockroachdb/sinkexec/pkg/util/timeutil"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func parseSinkType(t *testing.T, s string) sink.SinkType {
	switch s {
	case "append-only":
		return sink.AppendOnly
	case "force-append-only":
		return sink.ForceAppendOnly
	case "upsert":
		return sink.Upsert
	}
	t.Fatalf("unknown sink type %q", s)
	return 0
}

func scanInts(t *testing.T, vals []string) []int {
	res := make([]int, len(vals))
	for i, v := range vals {
		n, err := strconv.Atoi(v)
		require.NoError(t, err)
		res[i] = n
	}
	return res
}

// openMemKVFactory opens a pebble log over fs.
func openMemKVFactory(t *testing.T, fs vfs.FS) *logstore.KVFactory {
	t.Helper()
	f, err := logstore.OpenKVFactory("log", logstore.KVOptions{FS: fs})
	require.NoError(t, err)
	return f
}

// The same cases run over both log stores; the sink must not be able to
// tell them apart.
func TestSinkExecutorDataDriven(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	t.Run("inmem", func(t *testing.T) {
		testSinkExecutorDataDriven(t, func(t *testing.T) (logstore.Factory, func()) {
			return logstore.BoundedInMemFactory{}, func() {}
		})
	})
	t.Run("kv", func(t *testing.T) {
		testSinkExecutorDataDriven(t, func(t *testing.T) (logstore.Factory, func()) {
			f := openMemKVFactory(t, vfs.NewMem())
			return f, func() { require.NoError(t, f.Close()) }
		})
	})
}

func testSinkExecutorDataDriven(
	t *testing.T, newLogStore func(t *testing.T) (logstore.Factory, func()),
) {
	datadriven.RunTest(t, "testdata/sink_executor", func(t *testing.T, d *datadriven.TestData) string {
		if d.Cmd != "run" {
			t.Fatalf("unknown command %q", d.Cmd)
		}
		sinkType := sink.AppendOnly
		pk := []int{0}
		var hidden []int
		var actor ActorID
		for _, arg := range d.CmdArgs {
			switch arg.Key {
			case "sink-type":
				sinkType = parseSinkType(t, arg.Vals[0])
			case "pk":
				pk = scanInts(t, arg.Vals)
			case "hidden":
				hidden = scanInts(t, arg.Vals)
			case "actor":
				actor = ActorID(scanInts(t, arg.Vals)[0])
			default:
				t.Fatalf("unknown argument %q", arg.Key)
			}
		}
		msgs, err := ParseScript(d.Input)
		if err != nil {
			return err.Error()
		}
		cols := intColumns(3, hidden...)
		bh := sink.NewBlackholeSink()
		logStore, closeLogStore := newLogStore(t)
		defer closeLogStore()
		e, err := NewSinkExecutor(SinkExecutorArgs{
			LogStore: logStore,
			Input: NewMockSource(catalog.SchemaOf(cols), pk, msgs...),
			Sink:  bh,
			SinkParam: sink.SinkParam{
				Columns:  catalog.VisibleColumns(cols),
				SinkType: sinkType,
			},
			Columns:     cols,
			ActorID:     actor,
			ExecutorID:  1,
			VnodeBitmap: vnode.Full(),
		})
		require.NoError(t, err)

		ctx := context.Background()
		s := e.Execute(ctx)
		out, err := Collect(ctx, s)
		require.NoError(t, s.Close())

		var b strings.Builder
		b.WriteString("output:\n")
		if len(out) > 0 {
			b.WriteString(FormatMessages(out))
			b.WriteByte('\n')
		}
		if err != nil {
			b.WriteString("error: " + err.Error() + "\n")
		}
		b.WriteString("sink:\n")
		b.WriteString(strings.Join(bh.Calls(), "\n"))
		return b.String()
	})
}

type runResult struct {
	out []Message
	err error
}

// runSinkExecutor runs a sink executor over msgs with three INT8 columns
// keyed by the first one.
func runSinkExecutor(t *testing.T, args SinkExecutorArgs, msgs ...Message) runResult {
	t.Helper()
	if args.Columns == nil {
		args.Columns = intColumns(3)
	}
	if args.Input == nil {
		args.Input = NewMockSource(catalog.SchemaOf(args.Columns), []int{0}, msgs...)
	}
	if args.SinkParam.Columns == nil {
		args.SinkParam.Columns = catalog.VisibleColumns(args.Columns)
	}
	e, err := NewSinkExecutor(args)
	require.NoError(t, err)
	ctx := context.Background()
	s := e.Execute(ctx)
	out, err := Collect(ctx, s)
	require.NoError(t, s.Close())
	return runResult{out: out, err: err}
}

func chunkMsg(pretty string) *ChunkMessage {
	return &ChunkMessage{Chunk: chunk.MustFromPretty(pretty)}
}

func TestSinkExecutorProtocolViolations(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	for _, tc := range []struct {
		name string
		msgs []Message
	}{
		{name: "chunk first", msgs: []Message{chunkMsg("I I I\n+ 1 2 3"), NewTestBarrier(1)}},
		{name: "watermark first", msgs: []Message{&Watermark{ColIdx: 0, Val: int64(1)}}},
		{name: "empty input"},
		{name: "epoch goes back", msgs: []Message{NewTestBarrier(2), NewTestBarrier(3), NewTestBarrier(3)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res := runSinkExecutor(t, SinkExecutorArgs{
				Sink: &recordingSink{log: &eventLog{}},
			}, tc.msgs...)
			require.Error(t, res.err)
			require.True(t, IsProtocolViolation(res.err), "%+v", res.err)
		})
	}
}

func TestSinkExecutorTruncatesAfterCommit(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	events := &eventLog{}
	res := runSinkExecutor(t, SinkExecutorArgs{
		Sink:       &recordingSink{log: events},
		LogStore:   &recordingLogStore{inner: logstore.BoundedInMemFactory{}, log: events},
		ExecutorID: 7,
	},
		NewTestBarrier(1),
		chunkMsg("I I I\n+ 1 1 1"),
		NewTestBarrier(2).WithKind(BarrierKindBarrier),
		chunkMsg("I I I\n+ 2 2 2"),
		NewTestBarrier(3),
		NewTestBarrier(4),
	)
	require.NoError(t, res.err)
	require.Len(t, res.out, 6)
	require.Equal(t, []string{
		"new_writer 7 {}",
		"begin_epoch 1",
		"write_batch 1 rows",
		"barrier checkpoint=false",
		"begin_epoch 2",
		"write_batch 1 rows",
		"barrier checkpoint=true",
		"truncate barrier@2",
		"begin_epoch 3",
		"barrier checkpoint=true",
		"truncate barrier@3",
		"close",
	}, events.withoutPrefix("log "))
}

func TestSinkExecutorCommitFailure(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	events := &eventLog{}
	res := runSinkExecutor(t, SinkExecutorArgs{
		Sink:     &recordingSink{log: events, failCheckpoint: errInjected},
		LogStore: &recordingLogStore{inner: logstore.BoundedInMemFactory{}, log: events},
	},
		NewTestBarrier(1),
		chunkMsg("I I I\n+ 1 1 1"),
		NewTestBarrier(2),
		NewTestBarrier(3),
	)
	require.True(t, errors.Is(res.err, errInjected), "%+v", res.err)
	require.False(t, IsProtocolViolation(res.err))
	// A failed commit is not aborted and the log is not truncated.
	require.Equal(t, []string{
		"new_writer 0 {}",
		"begin_epoch 1",
		"write_batch 1 rows",
		"barrier checkpoint=true",
		"close",
	}, events.withoutPrefix("log "))
}

func TestSinkExecutorWriteFailureAborts(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	events := &eventLog{}
	res := runSinkExecutor(t, SinkExecutorArgs{
		Sink: &recordingSink{log: events, failWriteBatch: errInjected},
	},
		NewTestBarrier(1),
		chunkMsg("I I I\n+ 1 1 1"),
		NewTestBarrier(2),
	)
	require.True(t, errors.Is(res.err, errInjected), "%+v", res.err)
	require.Equal(t, []string{
		"new_writer 0 {}",
		"begin_epoch 1",
		"write_batch 1 rows",
		"abort",
		"close",
	}, events.events())
}

// A failing log read ends the whole pipeline: the output fails and the
// write side stops, although the input would never end on its own.
func TestSinkExecutorLogReadFailure(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	events := &eventLog{}
	cols := intColumns(3)
	input := NewMockSource(catalog.SchemaOf(cols), []int{0},
		NewTestBarrier(1).WithKind(BarrierKindInitial),
		chunkMsg("I I I\n+ 1 1 1"),
		NewTestBarrier(2),
		chunkMsg("I I I\n+ 2 2 2"),
	).BlockAtEnd()
	res := runSinkExecutor(t, SinkExecutorArgs{
		Input: input,
		Sink:  &recordingSink{log: events},
		LogStore: &recordingLogStore{
			inner:         logstore.BoundedInMemFactory{},
			log:           events,
			failRead:      errInjected,
			failReadAfter: 1,
		},
	})
	require.True(t, errors.Is(res.err, errInjected), "%+v", res.err)
	// The checkpoint flush of epoch 1 waits for a truncation that never
	// comes, so the second chunk is never logged nor forwarded.
	require.LessOrEqual(t, len(res.out), 2)
	logEvents := events.withPrefix("log ")
	require.Equal(t, []string{"log chunk 1 rows"}, events.withPrefix("log chunk"))
	require.Equal(t, "log close", logEvents[len(logEvents)-1])

	// Both drivers returned before the stream failed.
	after := events.events()
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, after, events.events())
}

// A restarted pebble log replays the checkpointed epochs that were never
// truncated, drops the unflushed rows of the crashed run and delivers the
// new run, even when the first barrier of the new run arrives after the
// consumer has started reading.
func TestSinkExecutorKVLogRestart(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	ctx := context.Background()
	fs := vfs.NewMem()
	f := openMemKVFactory(t, fs)
	_, w, err := f.Build(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Init(ctx, 1))
	require.NoError(t, w.WriteChunk(ctx, chunk.MustFromPretty("I I I\n+ 1 1 1")))
	require.NoError(t, w.FlushCurrentEpoch(ctx, 2, true /* isCheckpoint */))
	require.NoError(t, w.WriteChunk(ctx, chunk.MustFromPretty("I I I\n+ 2 2 2")))
	require.NoError(t, w.FlushCurrentEpoch(ctx, 3, true /* isCheckpoint */))
	require.NoError(t, w.WriteChunk(ctx, chunk.MustFromPretty("I I I\n+ 9 9 9")))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	f = openMemKVFactory(t, fs)
	defer func() { require.NoError(t, f.Close()) }()

	cols := intColumns(3)
	ch := make(chan Message)
	go func() {
		defer close(ch)
		time.Sleep(20 * time.Millisecond)
		ch <- NewTestBarrier(3)
		ch <- chunkMsg("I I I\n+ 3 3 3")
		ch <- NewTestBarrier(4)
	}()
	events := &eventLog{}
	rs := &recordingSink{log: events}
	res := runSinkExecutor(t, SinkExecutorArgs{
		Input:    NewChannelSource(catalog.SchemaOf(cols), []int{0}, "restart", ch),
		Sink:     rs,
		LogStore: f,
	})
	require.NoError(t, res.err)
	require.Len(t, res.out, 3)
	require.Equal(t, []string{
		"new_writer 0 {}",
		"begin_epoch 1",
		"write_batch 1 rows",
		"barrier checkpoint=true",
		"begin_epoch 2",
		"write_batch 1 rows",
		"barrier checkpoint=true",
		"begin_epoch 3",
		"write_batch 1 rows",
		"barrier checkpoint=true",
		"close",
	}, events.events())
	require.Len(t, rs.batches, 3)
	for i, exp := range []string{"I I I\n+ 1 1 1", "I I I\n+ 2 2 2", "I I I\n+ 3 3 3"} {
		require.True(t, rs.batches[i].Equal(chunk.MustFromPretty(exp)), "%d: %s", i, rs.batches[i])
	}
}

// A failing read of a pebble log ends the pipeline like it does for the
// in-memory log.
func TestSinkExecutorKVLogReadFailure(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	f := openMemKVFactory(t, vfs.NewMem())
	defer func() { require.NoError(t, f.Close()) }()
	events := &eventLog{}
	cols := intColumns(3)
	input := NewMockSource(catalog.SchemaOf(cols), []int{0},
		NewTestBarrier(1).WithKind(BarrierKindInitial),
		chunkMsg("I I I\n+ 1 1 1"),
		NewTestBarrier(2),
	).BlockAtEnd()
	res := runSinkExecutor(t, SinkExecutorArgs{
		Input: input,
		Sink:  &recordingSink{log: events},
		LogStore: &recordingLogStore{
			inner:         f,
			log:           events,
			failRead:      errInjected,
			failReadAfter: 1,
		},
	})
	require.True(t, errors.Is(res.err, errInjected), "%+v", res.err)
	logEvents := events.withPrefix("log ")
	require.Equal(t, "log close", logEvents[len(logEvents)-1])
}

func TestSinkExecutorHiddenColumns(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	cols := intColumns(3, 1)
	rs := &recordingSink{log: &eventLog{}}
	res := runSinkExecutor(t, SinkExecutorArgs{Sink: rs, Columns: cols},
		NewTestBarrier(1),
		chunkMsg("I I I\n+ 1 10 100\n+ 2 20 200"),
		NewTestBarrier(2),
	)
	require.NoError(t, res.err)
	// Downstream sees every column, the sink only the visible ones.
	require.True(t, res.out[1].(*ChunkMessage).Chunk.Equal(chunk.MustFromPretty("I I I\n+ 1 10 100\n+ 2 20 200")))
	require.Len(t, rs.batches, 1)
	require.True(t, rs.batches[0].Equal(chunk.MustFromPretty("I I\n+ 1 100\n+ 2 200")),
		"%s", rs.batches[0])
}

// Chunks, barriers and watermarks leave the executor in input order, chunks
// reduced and everything else untouched.
func TestSinkExecutorPassThrough(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	b1 := NewTestBarrier(1).WithKind(BarrierKindInitial)
	w := &Watermark{ColIdx: 2, Val: int64(9)}
	b2 := NewTestBarrier(2).WithKind(BarrierKindBarrier).WithMutation(&Mutation{
		VnodeBitmaps: map[ActorID]vnode.Bitmap{5: vnode.FromRange(0, 10)},
	})
	c := chunkMsg("I I I\n+ 1 1 1\n+ 2 2 2")
	res := runSinkExecutor(t, SinkExecutorArgs{Sink: sink.NewBlackholeSink()}, b1, w, c, b2)
	require.NoError(t, res.err)
	require.Len(t, res.out, 4)
	require.Same(t, b1, res.out[0])
	require.Same(t, w, res.out[1])
	require.True(t, c.Chunk.Equal(res.out[2].(*ChunkMessage).Chunk))
	require.Same(t, b2, res.out[3])
}

func TestSinkExecutorCommitMetric(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	clock := timeutil.NewManualTime(time.Unix(0, 0))
	reg := metric.NewRegistry()
	m := monitor.NewStreamingMetrics(reg)
	res := runSinkExecutor(t, SinkExecutorArgs{
		Sink: &recordingSink{
			log:           &eventLog{},
			clock:         clock,
			commitLatency: 5 * time.Millisecond,
		},
		Metrics:    m,
		TimeSource: clock,
		ExecutorID: 0xAB,
	},
		NewTestBarrier(1),
		chunkMsg("I I I\n+ 1 1 1\n+ 2 2 2"),
		NewTestBarrier(2),
		NewTestBarrier(3).WithKind(BarrierKindBarrier),
		NewTestBarrier(4),
		NewTestBarrier(5),
	)
	require.NoError(t, res.err)

	require.Equal(t, 2.0, testutil.ToFloat64(m.SinkRowsWritten.WithLabelValues("AB", "recording")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SinkChunksWritten.WithLabelValues("AB", "recording")))
	require.Equal(t, 1, testutil.CollectAndCount(m.SinkCommitDuration))

	// Epochs 1, 3 and 4 are committed; epoch 2 closes without a checkpoint.
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "stream_sink_commit_duration" {
			continue
		}
		hist := f.GetMetric()[0].GetHistogram()
		require.EqualValues(t, 3, hist.GetSampleCount())
		require.InDelta(t, 15.0, hist.GetSampleSum(), 1e-9)
		return
	}
	t.Fatal("commit duration histogram not registered")
}

func TestSinkExecutorSlowCommitWarning(t *testing.T) {
	defer leaktest.AfterTest(t)()
	sc := log.Scope(t)
	defer sc.Close(t)

	clock := timeutil.NewManualTime(time.Unix(0, 0))
	res := runSinkExecutor(t, SinkExecutorArgs{
		Sink: &recordingSink{
			log:           &eventLog{},
			clock:         clock,
			commitLatency: slowCommitThreshold + time.Second,
		},
		TimeSource: clock,
	},
		NewTestBarrier(1),
		NewTestBarrier(2),
		NewTestBarrier(3),
		NewTestBarrier(4),
	)
	require.NoError(t, res.err)

	// Three slow commits, one warning within the rate limit window.
	out := sc.GetCapturedOutput()
	require.Equal(t, 1, strings.Count(out, "to recording sink took 11s"), out)
	require.Contains(t, out, "commit of epoch 1 ")
}

func TestNewSinkExecutorValidates(t *testing.T) {
	defer leaktest.AfterTest(t)()

	cols := intColumns(3)
	_, err := NewSinkExecutor(SinkExecutorArgs{
		Input:   NewMockSource(catalog.SchemaOf(cols), []int{0}),
		Sink:    sink.NewBlackholeSink(),
		Columns: cols[:2],
	})
	require.True(t, IsProtocolViolation(err))

	e, err := NewSinkExecutor(SinkExecutorArgs{
		Input:      NewMockSource(catalog.SchemaOf(cols), []int{0}),
		Sink:       sink.NewBlackholeSink(),
		Columns:    cols,
		ExecutorID: 0x1F,
	})
	require.NoError(t, err)
	require.Equal(t, "SinkExecutor 1F", e.Identity())
	require.Equal(t, []int{0}, e.PkIndices())
	require.Equal(t, catalog.SchemaOf(cols), e.Schema())
}
