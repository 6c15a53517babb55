// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package metric

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	prometheusgo "github.com/prometheus/client_model/go"
)

// Unit describes how the value of a metric is measured.
type Unit int

// Units of measurement.
const (
	Unit_UNSET Unit = iota
	Unit_COUNT
	Unit_BYTES
	Unit_MILLISECONDS
	Unit_NANOSECONDS
)

// String implements fmt.Stringer.
func (u Unit) String() string {
	switch u {
	case Unit_COUNT:
		return "COUNT"
	case Unit_BYTES:
		return "BYTES"
	case Unit_MILLISECONDS:
		return "MILLISECONDS"
	case Unit_NANOSECONDS:
		return "NANOSECONDS"
	default:
		return "UNSET"
	}
}

// Metadata holds metadata about a metric.
type Metadata struct {
	Name        string
	Help        string
	Measurement string
	Unit        Unit
}

// CommitLatencyBuckets are histogram buckets, in milliseconds, suited to
// sink commit latencies: 1ms to roughly 65s.
var CommitLatencyBuckets = prometheus.ExponentialBuckets(1, 2, 17)

// HistogramVec is a prometheus histogram vector carrying its Metadata.
type HistogramVec struct {
	*prometheus.HistogramVec
	Metadata
}

// NewHistogramVec creates a histogram vector with the given buckets and
// label names.
func NewHistogramVec(meta Metadata, buckets []float64, labelNames ...string) *HistogramVec {
	return &HistogramVec{
		HistogramVec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    meta.Name,
			Help:    meta.Help,
			Buckets: buckets,
		}, labelNames),
		Metadata: meta,
	}
}

// GetMetadata returns the metric's metadata.
func (h *HistogramVec) GetMetadata() Metadata {
	return h.Metadata
}

// CounterVec is a prometheus counter vector carrying its Metadata.
type CounterVec struct {
	*prometheus.CounterVec
	Metadata
}

// NewCounterVec creates a counter vector with the given label names.
func NewCounterVec(meta Metadata, labelNames ...string) *CounterVec {
	return &CounterVec{
		CounterVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: meta.Name,
			Help: meta.Help,
		}, labelNames),
		Metadata: meta,
	}
}

// GetMetadata returns the metric's metadata.
func (c *CounterVec) GetMetadata() Metadata {
	return c.Metadata
}

// Registry is a set of metrics. It is safe for concurrent use.
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry creates a new, empty Registry.
func NewRegistry() *Registry {
	return &Registry{reg: prometheus.NewRegistry()}
}

// AddMetric registers a collector. Registering two collectors with the same
// name is an error.
func (r *Registry) AddMetric(c prometheus.Collector) error {
	if err := r.reg.Register(c); err != nil {
		return errors.Wrap(err, "registering metric")
	}
	return nil
}

// MustAddMetric is like AddMetric but panics on error.
func (r *Registry) MustAddMetric(c prometheus.Collector) {
	if err := r.AddMetric(c); err != nil {
		panic(err)
	}
}

// Gather implements prometheus.Gatherer.
func (r *Registry) Gather() ([]*prometheusgo.MetricFamily, error) {
	return r.reg.Gather()
}

var _ prometheus.Gatherer = (*Registry)(nil)
