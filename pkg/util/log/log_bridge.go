// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"bytes"
	"context"
	stdLog "log"
	"strconv"
	"strings"
)

// NewStdLogger creates a *stdLog.Logger that forwards messages to this
// package's output with the specified severity. Third-party libraries that
// accept a standard logger (the kafka client, for one) are pointed at it.
//
// The prefix should name the component the logger is used for. The
// prefix will be concatenated directly with the name of the file that
// triggered the logging.
func NewStdLogger(ctx context.Context, severity Severity, prefix string) *stdLog.Logger {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return stdLog.New(&logBridge{ctx: ctx, sev: severity}, prefix, stdLog.Lshortfile)
}

// logBridge provides the Write method that connects a standard logger to
// this package.
type logBridge struct {
	ctx context.Context
	sev Severity
}

// Write parses the standard logging line and passes its components to the
// logger for the bridge's severity.
func (lb *logBridge) Write(b []byte) (n int, err error) {
	if sev := Severity(mainLog.minSeverity.Load()); lb.sev < sev {
		return len(b), nil
	}
	file, line, msg := "(gostd) ???", 1, string(bytes.TrimRight(b, "\n"))
	// Split "d.go:23: message" into "d.go", "23", and "message".
	if parts := bytes.SplitN(b, []byte{':'}, 3); len(parts) == 3 && len(parts[0]) > 0 && len(parts[2]) > 1 {
		if lineno, err := strconv.Atoi(string(parts[1])); err == nil {
			// We use a "(gostd)" prefix so that these log lines correctly point
			// outside of this repository's source directory.
			file, line = "(gostd) "+string(parts[0]), lineno
			msg = string(bytes.TrimRight(parts[2][1:], "\n"))
		}
	}
	mainLog.output(formatEntry(lb.ctx, lb.sev, file, line, "%s", []interface{}{msg}))
	return len(b), nil
}
