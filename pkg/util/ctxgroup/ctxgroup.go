// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package ctxgroup wraps golang.org/x/sync/errgroup with a context func.
//
// The first goroutine in the group to return a non-nil error cancels the
// context shared by the group, and that error is the one returned by Wait.
// Functions started with GoCtx receive that shared context and are expected
// to return promptly once it is canceled.
//
//	g := ctxgroup.WithContext(ctx)
//	g.GoCtx(func(ctx context.Context) error {
//		return produce(ctx)
//	})
//	g.GoCtx(func(ctx context.Context) error {
//		return consume(ctx)
//	})
//	if err := g.Wait(); err != nil {
//		...
//	}
package ctxgroup

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Group wraps errgroup.
type Group struct {
	wrapped *errgroup.Group
	ctx     context.Context
}

// Wait blocks until all function calls from the Go method have returned, then
// returns the first non-nil error (if any) from them. If Wait() is invoked
// after the context (originally supplied to WithContext) is canceled, Wait
// returns an error, even if no Go invocation did. In particular, calling Wait()
// after Done has been closed is guaranteed to return an error.
func (g Group) Wait() error {
	if g.ctx == nil {
		return nil
	}
	ctxErr := g.ctx.Err()
	err := g.wrapped.Wait()
	if err != nil {
		return err
	}
	return ctxErr
}

// WithContext returns a new Group and an associated Context derived from ctx.
func WithContext(ctx context.Context) Group {
	grp, ctx := errgroup.WithContext(ctx)
	return Group{
		wrapped: grp,
		ctx:     ctx,
	}
}

// GoCtx calls the given function in a new goroutine, passing it the group's
// context.
func (g Group) GoCtx(f func(ctx context.Context) error) {
	g.wrapped.Go(func() error {
		return f(g.ctx)
	})
}

// Context returns the context shared by the group. It is canceled as soon as
// any function in the group returns an error.
func (g Group) Context() context.Context {
	return g.ctx
}
