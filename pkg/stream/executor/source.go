// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package executor

import (
	"context"
	"fmt"
	"io"

	"github.com/cockroachdb/sinkexec/pkg/stream/catalog"
)

// MockSource is an Executor replaying a fixed list of messages.
type MockSource struct {
	schema     catalog.Schema
	pk         []int
	msgs       []Message
	err        error
	blockAtEnd bool
}

var _ Executor = (*MockSource)(nil)

// NewMockSource returns a source emitting msgs and then ending.
func NewMockSource(schema catalog.Schema, pk []int, msgs ...Message) *MockSource {
	return &MockSource{schema: schema, pk: pk, msgs: msgs}
}

// WithError makes the stream fail with err after the last message.
func (m *MockSource) WithError(err error) *MockSource {
	m.err = err
	return m
}

// BlockAtEnd makes the stream block after the last message until it is
// canceled, instead of ending.
func (m *MockSource) BlockAtEnd() *MockSource {
	m.blockAtEnd = true
	return m
}

// Execute implements Executor.
func (m *MockSource) Execute(context.Context) MessageStream {
	return &mockStream{src: m}
}

// Schema implements Executor.
func (m *MockSource) Schema() catalog.Schema { return m.schema }

// PkIndices implements Executor.
func (m *MockSource) PkIndices() []int { return m.pk }

// Identity implements Executor.
func (m *MockSource) Identity() string { return "MockSource" }

type mockStream struct {
	src *MockSource
	pos int
}

func (s *mockStream) Next(ctx context.Context) (Message, error) {
	if s.pos < len(s.src.msgs) {
		s.pos++
		return s.src.msgs[s.pos-1], nil
	}
	if s.src.err != nil {
		return nil, s.src.err
	}
	if s.src.blockAtEnd {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, io.EOF
}

func (s *mockStream) Close() error { return nil }

// ChannelSource is an Executor whose stream is fed through a channel. The
// stream ends when the channel is closed.
type ChannelSource struct {
	schema catalog.Schema
	pk     []int
	id     string
	ch     <-chan Message
}

var _ Executor = (*ChannelSource)(nil)

// NewChannelSource returns a source reading from ch.
func NewChannelSource(
	schema catalog.Schema, pk []int, identity string, ch <-chan Message,
) *ChannelSource {
	return &ChannelSource{schema: schema, pk: pk, id: identity, ch: ch}
}

// Execute implements Executor. The source can only be executed once.
func (c *ChannelSource) Execute(context.Context) MessageStream {
	return channelStream{ch: c.ch}
}

// Schema implements Executor.
func (c *ChannelSource) Schema() catalog.Schema { return c.schema }

// PkIndices implements Executor.
func (c *ChannelSource) PkIndices() []int { return c.pk }

// Identity implements Executor.
func (c *ChannelSource) Identity() string { return fmt.Sprintf("ChannelSource %s", c.id) }

type channelStream struct {
	ch <-chan Message
}

func (s channelStream) Next(ctx context.Context) (Message, error) {
	select {
	case m, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s channelStream) Close() error { return nil }
