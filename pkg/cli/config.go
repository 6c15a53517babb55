// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cli

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sinkexec/pkg/connector/sink"
	"github.com/cockroachdb/sinkexec/pkg/stream/catalog"
	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Log store kinds.
const (
	logStoreInMem = "inmem"
	logStoreKV    = "kv"
)

// runConfig is the configuration file of the run command.
//
//	columns:
//	  - {name: id, type: INT8}
//	  - {name: note, type: VARCHAR}
//	  - {name: _row_id, type: INT8, hidden: true}
//	stream_key: [2]
//	executor_id: 1
//	sink:
//	  name: notes_sink
//	  downstream_pk: [0]
//	  properties:
//	    connector: file
//	    file.path: /tmp/notes
//	log_store:
//	  kind: kv
//	  dir: /tmp/notes-log
//	  cache_size: 8 MiB
//	metrics:
//	  graphite: localhost:2003
type runConfig struct {
	Columns    []columnConfig `yaml:"columns"`
	StreamKey  []int          `yaml:"stream_key"`
	ExecutorID uint64         `yaml:"executor_id"`
	Sink       sinkConfig     `yaml:"sink"`
	LogStore   logStoreConfig `yaml:"log_store"`
	Metrics    metricsConfig  `yaml:"metrics"`
}

type columnConfig struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Hidden bool   `yaml:"hidden"`
}

type sinkConfig struct {
	ID           uint32            `yaml:"id"`
	Name         string            `yaml:"name"`
	DBName       string            `yaml:"db"`
	From         string            `yaml:"from"`
	DownstreamPk []int             `yaml:"downstream_pk"`
	Properties   map[string]string `yaml:"properties"`
}

type logStoreConfig struct {
	Kind string `yaml:"kind"`
	// Capacity is the number of chunks an in-memory log buffers.
	Capacity int    `yaml:"capacity"`
	Dir      string `yaml:"dir"`
	// CacheSize is a humanized byte size, e.g. "64 MiB".
	CacheSize string `yaml:"cache_size"`
}

type metricsConfig struct {
	Graphite string `yaml:"graphite"`
	Prefix   string `yaml:"prefix"`
}

// parseRunConfig decodes and validates a configuration. Unknown fields are
// rejected.
func parseRunConfig(r io.Reader) (*runConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var cfg runConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding configuration")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *runConfig) validate() error {
	if len(cfg.Columns) == 0 {
		return errors.New("configuration has no columns")
	}
	for _, idx := range cfg.StreamKey {
		if idx < 0 || idx >= len(cfg.Columns) {
			return errors.Newf("stream key column %d out of range", idx)
		}
	}
	if cfg.LogStore.Kind == "" {
		cfg.LogStore.Kind = logStoreInMem
	}
	switch cfg.LogStore.Kind {
	case logStoreInMem:
	case logStoreKV:
		if cfg.LogStore.Dir == "" {
			return errors.New("the kv log store requires a dir")
		}
	default:
		return errors.Newf("unknown log store kind %q", cfg.LogStore.Kind)
	}
	if _, err := cfg.LogStore.cacheSize(); err != nil {
		return err
	}
	if cfg.Metrics.Prefix == "" {
		cfg.Metrics.Prefix = "sinkexec"
	}
	return nil
}

func (c logStoreConfig) cacheSize() (int64, error) {
	if c.CacheSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.CacheSize)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing log store cache size %q", c.CacheSize)
	}
	return int64(n), nil
}

// columns returns the input columns, hidden ones included.
func (cfg *runConfig) columns() ([]catalog.ColumnCatalog, error) {
	cols := make([]catalog.ColumnCatalog, len(cfg.Columns))
	for i, c := range cfg.Columns {
		typ, err := chunk.ParseType(c.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", c.Name)
		}
		cols[i] = catalog.ColumnCatalog{
			Desc: catalog.ColumnDesc{
				ID:   catalog.ColumnID(i + 1),
				Name: c.Name,
				Type: typ,
			},
			IsHidden: c.Hidden,
		}
	}
	return cols, nil
}

// sinkParam returns the parameters of the sink, which receives the visible
// columns only.
func (cfg *runConfig) sinkParam(cols []catalog.ColumnCatalog) (sink.SinkParam, error) {
	sinkType, err := sink.ParseSinkType(cfg.Sink.Properties)
	if err != nil {
		return sink.SinkParam{}, err
	}
	return sink.SinkParam{
		SinkID:       cfg.Sink.ID,
		SinkName:     cfg.Sink.Name,
		Properties:   cfg.Sink.Properties,
		Columns:      catalog.VisibleColumns(cols),
		DownstreamPk: cfg.Sink.DownstreamPk,
		SinkType:     sinkType,
		DBName:       cfg.Sink.DBName,
		SinkFromName: cfg.Sink.From,
	}, nil
}
