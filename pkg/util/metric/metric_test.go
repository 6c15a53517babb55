// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package metric

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func testHistogram() *HistogramVec {
	return NewHistogramVec(Metadata{
		Name:        "test_commit_duration",
		Help:        "test histogram",
		Measurement: "Latency",
		Unit:        Unit_MILLISECONDS,
	}, CommitLatencyBuckets, "executor_id", "connector")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	h := testHistogram()
	require.NoError(t, r.AddMetric(h))
	require.Error(t, r.AddMetric(testHistogram()))

	h.WithLabelValues("SinkExecutor 1", "kafka").Observe(3)
	h.WithLabelValues("SinkExecutor 1", "kafka").Observe(5)
	h.WithLabelValues("SinkExecutor 2", "blackhole").Observe(1)

	require.Equal(t, 2, testutil.CollectAndCount(h))
	families, err := r.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, "test_commit_duration", families[0].GetName())
	var count uint64
	for _, m := range families[0].GetMetric() {
		count += m.GetHistogram().GetSampleCount()
	}
	require.EqualValues(t, 3, count)
	require.Equal(t, Unit_MILLISECONDS, h.GetMetadata().Unit)
}

func TestGraphiteExporter(t *testing.T) {
	ge := MakeGraphiteExporter(NewRegistry(), "sinkexec")
	require.ErrorIs(t, ge.Push(context.Background(), ""), errNoEndpoint)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		s := bufio.NewScanner(conn)
		for s.Scan() {
			lines <- s.Text()
		}
	}()

	r := NewRegistry()
	h := testHistogram()
	r.MustAddMetric(h)
	h.WithLabelValues("SinkExecutor 1", "kafka").Observe(3)
	ge = MakeGraphiteExporter(r, "sinkexec")
	require.NoError(t, ge.Push(context.Background(), lis.Addr().String()))

	var found bool
	for line := range lines {
		if strings.Contains(line, "sinkexec.test_commit_duration_count") {
			found = true
		}
	}
	require.True(t, found)
}
