// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package metric

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sinkexec/pkg/util/log"
	"github.com/prometheus/client_golang/prometheus/graphite"
)

var errNoEndpoint = errors.New("graphite endpoint is not set")

// GraphiteExporter gathers a Registry and pushes its metrics to a Graphite
// or Carbon server.
type GraphiteExporter struct {
	registry *Registry
	prefix   string
}

// MakeGraphiteExporter returns an initialized graphite exporter. Metric
// names are prefixed with "<hostname>.<prefix>".
func MakeGraphiteExporter(registry *Registry, prefix string) GraphiteExporter {
	return GraphiteExporter{registry: registry, prefix: prefix}
}

type loggerFunc func(...interface{})

// Println implements graphite.Logger.
func (lf loggerFunc) Println(v ...interface{}) {
	lf(v...)
}

// Push metrics gathered from the registry to the Graphite server at
// endpoint.
func (ge *GraphiteExporter) Push(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		return errNoEndpoint
	}
	h, err := os.Hostname()
	if err != nil {
		return err
	}
	b, err := graphite.NewBridge(&graphite.Config{
		URL:           endpoint,
		Gatherer:      ge.registry,
		Prefix:        fmt.Sprintf("%s.%s", h, ge.prefix),
		Timeout:       10 * time.Second,
		ErrorHandling: graphite.AbortOnError,
		Logger: loggerFunc(func(args ...interface{}) {
			log.InfofDepth(ctx, 1, "", args...)
		}),
	})
	if err != nil {
		return err
	}
	return b.Push()
}
