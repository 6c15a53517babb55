// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sinkexec/pkg/cli/clierror"
	"github.com/cockroachdb/sinkexec/pkg/cli/exit"
	"github.com/cockroachdb/sinkexec/pkg/connector/sink"
	"github.com/cockroachdb/sinkexec/pkg/stream/catalog"
	"github.com/cockroachdb/sinkexec/pkg/stream/executor"
	"github.com/cockroachdb/sinkexec/pkg/stream/logstore"
	"github.com/cockroachdb/sinkexec/pkg/stream/monitor"
	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
	"github.com/cockroachdb/sinkexec/pkg/util/ctxgroup"
	"github.com/cockroachdb/sinkexec/pkg/util/log"
	"github.com/cockroachdb/sinkexec/pkg/util/metric"
	"github.com/cockroachdb/sinkexec/pkg/util/syncutil"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// runContext captures the flags of the run command.
type runContext struct {
	configPath   string
	inputPath    string
	parallelism  int
	logStoreKind string
	printOutput  bool
	graphite     string
}

var runCtx runContext

func setRunContextDefaults() {
	runCtx = runContext{inputPath: "-", parallelism: 1}
}

// cliFs is the file system configuration and input files are read from.
// Tests substitute an in-memory one.
var cliFs = afero.NewOsFs()

var runCmd = &cobra.Command{
	Use:   "run --config <file> [--input <file>]",
	Short: "deliver a message stream to a sink",
	Long: `
Replays a message stream through one or more sink executors. Every chunk is
reduced to its net effect per stream key, logged, and delivered to the sink
configured in the configuration file, which commits at checkpoint barriers.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSinkExec(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func readFile(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" || path == "" {
		return io.ReadAll(stdin)
	}
	return afero.ReadFile(cliFs, path)
}

func runSinkExec(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if runCtx.configPath == "" {
		return clierror.NewError(errors.New("--config is required"), exit.CommandLineFlagError())
	}
	if runCtx.parallelism < 1 || runCtx.parallelism > vnode.Count {
		return clierror.NewError(
			errors.Newf("--parallelism must be between 1 and %d", vnode.Count),
			exit.CommandLineFlagError())
	}
	f, err := cliFs.Open(runCtx.configPath)
	if err != nil {
		return clierror.NewError(err, exit.CommandLineFlagError())
	}
	cfg, err := parseRunConfig(f)
	_ = f.Close()
	if err != nil {
		return clierror.NewError(err, exit.CommandLineFlagError())
	}
	if runCtx.logStoreKind != "" {
		cfg.LogStore.Kind = runCtx.logStoreKind
		if err := cfg.validate(); err != nil {
			return clierror.NewError(err, exit.CommandLineFlagError())
		}
	}
	if runCtx.graphite != "" {
		cfg.Metrics.Graphite = runCtx.graphite
	}
	cols, err := cfg.columns()
	if err != nil {
		return clierror.NewError(err, exit.CommandLineFlagError())
	}
	param, err := cfg.sinkParam(cols)
	if err != nil {
		return clierror.NewError(err, exit.CommandLineFlagError())
	}
	s, err := sink.Build(param)
	if err != nil {
		return clierror.NewError(err, exit.CommandLineFlagError())
	}
	script, err := readFile(runCtx.inputPath, stdin)
	if err != nil {
		return clierror.NewError(err, exit.CommandLineFlagError())
	}
	msgs, err := executor.ParseScript(string(script))
	if err != nil {
		return clierror.NewError(errors.Wrap(err, "parsing input"), exit.CommandLineFlagError())
	}

	registry := metric.NewRegistry()
	p := &pipeline{
		cfg:     cfg,
		cols:    cols,
		param:   param,
		sink:    s,
		metrics: monitor.NewStreamingMetrics(registry),
		out:     stdout,
	}
	stats, err := p.run(ctx, msgs, runCtx.parallelism)
	if pushErr := p.pushMetrics(ctx, registry); pushErr != nil {
		log.Warningf(ctx, "pushing metrics: %v", pushErr)
	}
	if err != nil {
		code := exit.SinkFailure()
		if executor.IsProtocolViolation(err) {
			code = exit.ProtocolViolation()
		}
		return clierror.NewError(err, code)
	}
	fmt.Fprintf(stdout, "delivered %s rows in %s chunks to %s sink %q (%s)\n",
		humanize.Comma(stats.rows), humanize.Comma(stats.chunks),
		s.Connector(), param.SinkName, param.SinkType)
	return nil
}

// pipeline wires a dispatcher in front of parallel sink executors.
type pipeline struct {
	cfg     *runConfig
	cols    []catalog.ColumnCatalog
	param   sink.SinkParam
	sink    sink.Sink
	metrics *monitor.StreamingMetrics
	out     io.Writer

	outMu syncutil.Mutex
}

type runStats struct {
	chunks, rows int64
}

// logStore returns the log of one actor and a function releasing it.
func (p *pipeline) logStore(actor executor.ActorID) (logstore.Factory, func() error, error) {
	ls := p.cfg.LogStore
	if ls.Kind != logStoreKV {
		return logstore.BoundedInMemFactory{Capacity: ls.Capacity}, func() error { return nil }, nil
	}
	cacheSize, err := ls.cacheSize()
	if err != nil {
		return nil, nil, err
	}
	f, err := logstore.OpenKVFactory(
		filepath.Join(ls.Dir, fmt.Sprintf("actor-%d", actor)),
		logstore.KVOptions{CacheSize: cacheSize},
	)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func (p *pipeline) run(
	ctx context.Context, msgs []executor.Message, parallelism int,
) (runStats, error) {
	schema := catalog.SchemaOf(p.cols)
	bitmaps := make(map[executor.ActorID]vnode.Bitmap, parallelism)
	inputs := make(map[executor.ActorID]chan executor.Message, parallelism)
	for i, b := range vnode.Split(parallelism) {
		actor := executor.ActorID(i + 1)
		bitmaps[actor] = b
		inputs[actor] = make(chan executor.Message)
	}
	dispatcher := executor.NewHashDispatcher(p.cfg.StreamKey, bitmaps)

	stats := make([]runStats, parallelism)
	g := ctxgroup.WithContext(ctx)
	g.GoCtx(func(ctx context.Context) error {
		defer func() {
			for _, ch := range inputs {
				close(ch)
			}
		}()
		return dispatch(ctx, dispatcher, inputs, msgs)
	})
	for i, actor := range dispatcher.Actors() {
		i, actor := i, actor
		factory, release, err := p.logStore(actor)
		if err != nil {
			// Unblock the dispatcher.
			g.GoCtx(func(context.Context) error { return err })
			break
		}
		e, err := executor.NewSinkExecutor(executor.SinkExecutorArgs{
			Input: executor.NewChannelSource(
				schema, p.cfg.StreamKey, fmt.Sprint(actor), inputs[actor]),
			Sink:        p.sink,
			SinkParam:   p.param,
			Columns:     p.cols,
			LogStore:    factory,
			Metrics:     p.metrics,
			ActorID:     actor,
			ExecutorID:  p.cfg.ExecutorID + uint64(actor) - 1,
			VnodeBitmap: bitmaps[actor],
		})
		if err != nil {
			_ = release()
			g.GoCtx(func(context.Context) error { return err })
			break
		}
		g.GoCtx(func(ctx context.Context) (retErr error) {
			defer func() {
				retErr = errors.CombineErrors(retErr, release())
			}()
			return p.drain(ctx, e, &stats[i])
		})
	}
	err := g.Wait()
	var total runStats
	for _, s := range stats {
		total.chunks += s.chunks
		total.rows += s.rows
	}
	return total, err
}

// dispatch feeds msgs to the actors: chunks are split by vnode owner,
// everything else is broadcast. Vnode ownership changes carried by a
// barrier apply to the chunks after it.
func dispatch(
	ctx context.Context,
	d *executor.HashDispatcher,
	inputs map[executor.ActorID]chan executor.Message,
	msgs []executor.Message,
) error {
	send := func(actor executor.ActorID, m executor.Message) error {
		select {
		case inputs[actor] <- m:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, m := range msgs {
		switch m := m.(type) {
		case *executor.ChunkMessage:
			parts, err := d.Dispatch(m.Chunk)
			if err != nil {
				return err
			}
			for _, actor := range d.Actors() {
				if parts[actor].Cardinality() == 0 {
					continue
				}
				if err := send(actor, &executor.ChunkMessage{Chunk: parts[actor]}); err != nil {
					return err
				}
			}
			continue
		case *executor.Barrier:
			d.ApplyBarrier(m)
		}
		for _, actor := range d.Actors() {
			if err := send(actor, m); err != nil {
				return err
			}
		}
	}
	return nil
}

// drain reads the output of e until it ends.
func (p *pipeline) drain(ctx context.Context, e *executor.SinkExecutor, stats *runStats) error {
	s := e.Execute(ctx)
	defer func() { _ = s.Close() }()
	for {
		m, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			log.Infof(ctx, "%s done", e.Identity())
			return nil
		} else if err != nil {
			return errors.Wrap(err, e.Identity())
		}
		if c, ok := m.(*executor.ChunkMessage); ok {
			stats.chunks++
			stats.rows += int64(c.Chunk.Cardinality())
		}
		if runCtx.printOutput {
			p.outMu.Lock()
			fmt.Fprintf(p.out, "[%s] %s\n", e.Identity(), m)
			p.outMu.Unlock()
		}
	}
}

func (p *pipeline) pushMetrics(ctx context.Context, registry *metric.Registry) error {
	endpoint := p.cfg.Metrics.Graphite
	if endpoint == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exporter := metric.MakeGraphiteExporter(registry, p.cfg.Metrics.Prefix)
	return exporter.Push(ctx, endpoint)
}
