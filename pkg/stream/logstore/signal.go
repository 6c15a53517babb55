// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package logstore

import (
	"context"

	"github.com/cockroachdb/sinkexec/pkg/util/syncutil"
)

// signal wakes up goroutines waiting for a condition guarded by mu. Waiters
// check the condition under mu and, if it does not hold, wait on the channel
// returned by waitCh; every change to the guarded state must be followed by
// notifyLocked.
type signal struct {
	mu syncutil.Mutex
	ch chan struct{}
}

func (s *signal) waitChLocked() <-chan struct{} {
	s.mu.AssertHeld()
	if s.ch == nil {
		s.ch = make(chan struct{})
	}
	return s.ch
}

func (s *signal) notifyLocked() {
	s.mu.AssertHeld()
	if s.ch != nil {
		close(s.ch)
		s.ch = nil
	}
}

// waitUntil blocks until cond returns true. cond is called with mu held.
func (s *signal) waitUntil(ctx context.Context, cond func() bool) error {
	for {
		s.mu.Lock()
		if cond() {
			s.mu.Unlock()
			return nil
		}
		ch := s.waitChLocked()
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
