// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package ctxgroup

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestFirstErrorCancelsGroup(t *testing.T) {
	g := WithContext(context.Background())
	boom := errors.New("boom")
	g.GoCtx(func(ctx context.Context) error {
		return boom
	})
	g.GoCtx(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, g.Wait(), boom)
	require.Error(t, g.Context().Err())
}

func TestWaitNoError(t *testing.T) {
	g := WithContext(context.Background())
	g.GoCtx(func(ctx context.Context) error { return nil })
	require.NoError(t, g.Wait())

	var zero Group
	require.NoError(t, zero.Wait())
}
