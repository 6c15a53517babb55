// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"bytes"
	"io"
	"testing"

	"github.com/cockroachdb/sinkexec/pkg/util/syncutil"
)

// TestLogScope represents the lifetime of a logging output capture
// for a test. Output written while the scope is active is buffered and
// only shown if the test fails.
//
// Use with:
//
//	defer log.Scope(t).Close(t)
type TestLogScope struct {
	prev io.Writer
	buf  *lockedBuffer
}

// Scope creates a TestLogScope which captures log output until Close is
// called.
func Scope(t testing.TB) *TestLogScope {
	t.Helper()
	buf := &lockedBuffer{}
	return &TestLogScope{prev: SetOutput(buf), buf: buf}
}

// Close restores the previous log output. If the test failed, the captured
// output is written to the test log.
func (l *TestLogScope) Close(t testing.TB) {
	t.Helper()
	SetOutput(l.prev)
	if t.Failed() {
		t.Logf("captured log output:\n%s", l.buf.String())
	}
}

// GetCapturedOutput returns everything logged since the scope was opened.
func (l *TestLogScope) GetCapturedOutput() string {
	return l.buf.String()
}

type lockedBuffer struct {
	mu  syncutil.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
