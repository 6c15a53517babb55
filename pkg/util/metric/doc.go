// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

/*
Package metric provides the metrics of a sink executor process. Metrics are
prometheus collectors described by a Metadata and registered in a Registry;
the registry can be scraped as a prometheus.Gatherer or pushed to a Graphite
server with a GraphiteExporter.

# Adding a new metric

Describe the metric with a Metadata and construct it:

	commitDuration := metric.NewHistogramVec(metric.Metadata{
		Name:        "stream_sink_commit_duration",
		Help:        "Duration of commit op in sink",
		Measurement: "Latency",
		Unit:        metric.Unit_MILLISECONDS,
	}, metric.CommitLatencyBuckets, "executor_id", "connector")

then add it to a Registry:

	registry.AddMetric(commitDuration)

Children of a vector are obtained with WithLabelValues and observed directly.

# Testing

Use prometheus/testutil against the collector (CollectAndCount,
ToFloat64) or gather the Registry and inspect the families.
*/
package metric
