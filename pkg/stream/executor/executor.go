// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package executor implements the sink executor, which delivers a
// barrier-delimited stream of row changes to an external sink through an
// internal log, together with the stream abstractions it runs on.
package executor

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sinkexec/pkg/stream/catalog"
)

// MessageStream is a running stream. Next returns io.EOF once the stream has
// ended.
type MessageStream interface {
	Next(ctx context.Context) (Message, error)
	// Close stops the stream and releases its resources.
	Close() error
}

// Executor is a streaming operator.
type Executor interface {
	// Execute starts the operator. The stream runs until it ends, fails, is
	// closed or ctx is canceled.
	Execute(ctx context.Context) MessageStream
	Schema() catalog.Schema
	// PkIndices is the stream key of the output.
	PkIndices() []int
	Identity() string
}

// IsProtocolViolation returns whether err reports a broken contract between
// an executor and its collaborators, as opposed to a failure of an external
// system. Such errors are never retried.
func IsProtocolViolation(err error) bool {
	return errors.HasAssertionFailure(err)
}

// errStream is a stream that fails immediately.
type errStream struct {
	err error
}

func (s errStream) Next(context.Context) (Message, error) {
	return nil, s.err
}

func (s errStream) Close() error {
	return nil
}

// Collect reads a stream until it ends, returning every message read and the
// error that ended it, or nil if it ended with io.EOF.
func Collect(ctx context.Context, s MessageStream) ([]Message, error) {
	var msgs []Message
	for {
		m, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return msgs, nil
		}
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, m)
	}
}
