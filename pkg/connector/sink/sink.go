// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package sink defines the interface between a sink executor and the
// external systems it delivers to, and implements the supported connectors.
package sink

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sinkexec/pkg/stream/catalog"
	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
	"github.com/cockroachdb/sinkexec/pkg/util/syncutil"
)

// SinkType is the delivery semantics of a sink.
type SinkType int

const (
	// AppendOnly sinks only receive insertions; the upstream guarantees it
	// never produces anything else.
	AppendOnly SinkType = iota
	// ForceAppendOnly sinks only receive insertions; deletions are dropped
	// and updates are turned into insertions before delivery.
	ForceAppendOnly
	// Upsert sinks receive every change and apply it by DownstreamPk.
	Upsert
)

// String implements fmt.Stringer.
func (t SinkType) String() string {
	switch t {
	case AppendOnly:
		return "append-only"
	case ForceAppendOnly:
		return "force-append-only"
	case Upsert:
		return "upsert"
	}
	return "unknown"
}

// IsAppendOnly returns true for AppendOnly and ForceAppendOnly.
func (t SinkType) IsAppendOnly() bool {
	return t == AppendOnly || t == ForceAppendOnly
}

// SinkParam describes the sink to build.
type SinkParam struct {
	SinkID   uint32
	SinkName string
	// Properties are the user supplied options, see ParseOptions.
	Properties map[string]string
	// Columns are the columns delivered to the sink. Hidden columns are
	// never delivered.
	Columns []catalog.ColumnCatalog
	// DownstreamPk are positions in Columns identifying a row in the sink.
	DownstreamPk []int
	// SinkType is derived from Properties by Build.
	SinkType     SinkType
	DBName       string
	SinkFromName string
}

// Schema returns the schema of the delivered rows.
func (p SinkParam) Schema() catalog.Schema {
	return catalog.SchemaOf(p.Columns)
}

// SinkWriterParam parameterizes one writer of a sink.
type SinkWriterParam struct {
	ExecutorID uint64
	// VnodeBitmap is the set of vnodes whose rows the writer receives. It is
	// empty for a sink that is not partitioned.
	VnodeBitmap vnode.Bitmap
}

// Sink is a configured connector.
type Sink interface {
	// Connector is the name of the connector, e.g. "kafka".
	Connector() string
	// NewWriter returns a writer delivering to the sink.
	NewWriter(ctx context.Context, param SinkWriterParam) (SinkWriter, error)
}

// SinkWriter delivers epochs of row changes. Calls follow the sequence
//
//	BeginEpoch (WriteBatch)* Barrier [UpdateVnodeBitmap] BeginEpoch ...
//
// with Abort possibly replacing any call after a failed WriteBatch. Changes
// become visible in the external system at the latest when Barrier returns
// for a checkpoint.
type SinkWriter interface {
	BeginEpoch(ctx context.Context, epoch uint64) error
	WriteBatch(ctx context.Context, c *chunk.StreamChunk) error
	Barrier(ctx context.Context, isCheckpoint bool) error
	Abort(ctx context.Context) error
	UpdateVnodeBitmap(ctx context.Context, bitmap vnode.Bitmap) error
	Close() error
}

// BuildFunc constructs a sink of one connector from validated options.
type BuildFunc func(param SinkParam, opts Options) (Sink, error)

var registry struct {
	syncutil.Mutex
	builders map[string]BuildFunc
}

// Register makes a connector available to Build. It panics if the connector
// is registered twice.
func Register(connector string, fn BuildFunc) {
	registry.Lock()
	defer registry.Unlock()
	if registry.builders == nil {
		registry.builders = map[string]BuildFunc{}
	}
	if _, ok := registry.builders[connector]; ok {
		panic(errors.AssertionFailedf("connector %q registered twice", connector))
	}
	registry.builders[connector] = fn
}

// Connectors returns the names of the registered connectors.
func Connectors() []string {
	registry.Lock()
	defer registry.Unlock()
	names := make([]string, 0, len(registry.builders))
	for name := range registry.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build validates param.Properties and constructs the sink they name.
func Build(param SinkParam) (Sink, error) {
	opts, err := ParseOptions(param.Properties)
	if err != nil {
		return nil, err
	}
	param.SinkType = opts.Type
	if param.SinkType == Upsert && len(param.DownstreamPk) == 0 {
		return nil, errors.Newf("upsert sink %q requires a primary key", param.SinkName)
	}
	for _, idx := range param.DownstreamPk {
		if idx < 0 || idx >= len(param.Columns) {
			return nil, errors.Newf("primary key column %d out of range", idx)
		}
	}
	registry.Lock()
	fn, ok := registry.builders[opts.Connector]
	registry.Unlock()
	if !ok {
		return nil, errors.Newf("unknown connector %q, expected one of %v", opts.Connector, Connectors())
	}
	s, err := fn(param, opts)
	return s, errors.Wrapf(err, "building %s sink", opts.Connector)
}
