// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package executor

import (
	"context"
	"io"

	"github.com/cockroachdb/sinkexec/pkg/util/ctxgroup"
)

// emitFunc hands a message to the consumer of a merged stream. It blocks
// until the message is taken or ctx is canceled.
type emitFunc func(ctx context.Context, m Message) error

// driver is one concurrently running half of an executor.
type driver func(ctx context.Context, emit emitFunc) error

// mergedStream runs a set of drivers and exposes the messages they emit as
// one stream. The first driver error cancels the others and ends the stream
// with that error. The stream ends with io.EOF once every driver returned
// nil.
type mergedStream struct {
	out    chan Message
	done   chan struct{}
	cancel context.CancelFunc
	// err is written before done is closed.
	err error
}

var _ MessageStream = (*mergedStream)(nil)

func mergeDrivers(ctx context.Context, drivers ...driver) *mergedStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &mergedStream{
		out:    make(chan Message),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	emit := func(ctx context.Context, m Message) error {
		select {
		case s.out <- m:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	g := ctxgroup.WithContext(ctx)
	for _, d := range drivers {
		d := d
		g.GoCtx(func(ctx context.Context) error {
			return d(ctx, emit)
		})
	}
	go func() {
		s.err = g.Wait()
		cancel()
		close(s.done)
	}()
	return s
}

// Next implements MessageStream.
func (s *mergedStream) Next(ctx context.Context) (Message, error) {
	select {
	case m := <-s.out:
		return m, nil
	case <-s.done:
		// No driver is running anymore, so nothing can be pending on out.
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements MessageStream. It cancels the drivers and waits for them
// to return.
func (s *mergedStream) Close() error {
	s.cancel()
	<-s.done
	return nil
}
