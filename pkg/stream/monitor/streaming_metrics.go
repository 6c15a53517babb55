// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package monitor holds the metrics of streaming executors.
package monitor

import (
	"time"

	"github.com/cockroachdb/sinkexec/pkg/util/metric"
)

var metaSinkCommitDuration = metric.Metadata{
	Name:        "stream_sink_commit_duration",
	Help:        "Duration of checkpoint commits of sink executors",
	Measurement: "Latency",
	Unit:        metric.Unit_MILLISECONDS,
}

var metaSinkChunksWritten = metric.Metadata{
	Name:        "stream_sink_chunks_written",
	Help:        "Number of chunks written to sinks after reduction",
	Measurement: "Chunks",
	Unit:        metric.Unit_COUNT,
}

var metaSinkRowsWritten = metric.Metadata{
	Name:        "stream_sink_rows_written",
	Help:        "Number of rows written to sinks after reduction",
	Measurement: "Rows",
	Unit:        metric.Unit_COUNT,
}

// StreamingMetrics are the metrics shared by all executors of a process.
type StreamingMetrics struct {
	// SinkCommitDuration is labelled by executor identity and connector.
	SinkCommitDuration *metric.HistogramVec
	SinkChunksWritten  *metric.CounterVec
	SinkRowsWritten    *metric.CounterVec
}

// NewStreamingMetrics creates the metrics and registers them with reg.
func NewStreamingMetrics(reg *metric.Registry) *StreamingMetrics {
	m := &StreamingMetrics{
		SinkCommitDuration: metric.NewHistogramVec(
			metaSinkCommitDuration, metric.CommitLatencyBuckets, "executor_id", "connector"),
		SinkChunksWritten: metric.NewCounterVec(metaSinkChunksWritten, "executor_id", "connector"),
		SinkRowsWritten:   metric.NewCounterVec(metaSinkRowsWritten, "executor_id", "connector"),
	}
	reg.MustAddMetric(m.SinkCommitDuration)
	reg.MustAddMetric(m.SinkChunksWritten)
	reg.MustAddMetric(m.SinkRowsWritten)
	return m
}

// SinkMetrics are the metrics of one sink executor.
type SinkMetrics struct {
	executorID, connector string
	m                     *StreamingMetrics
}

// ForSink returns the metrics of the sink executor with the given identity.
func (m *StreamingMetrics) ForSink(executorID, connector string) SinkMetrics {
	return SinkMetrics{executorID: executorID, connector: connector, m: m}
}

// RecordCommit records the duration of a successful checkpoint commit.
func (s SinkMetrics) RecordCommit(d time.Duration) {
	s.m.SinkCommitDuration.WithLabelValues(s.executorID, s.connector).
		Observe(float64(d) / float64(time.Millisecond))
}

// RecordWrite records a chunk handed to the sink.
func (s SinkMetrics) RecordWrite(rows int) {
	s.m.SinkChunksWritten.WithLabelValues(s.executorID, s.connector).Inc()
	s.m.SinkRowsWritten.WithLabelValues(s.executorID, s.connector).Add(float64(rows))
}
