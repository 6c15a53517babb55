// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package log implements leveled, context-aware logging for the sink
// executor and its connectors.
//
// Every logging call takes a context.Context; tags attached to it with
// logtags.AddTag are rendered in front of the message, so a line emitted by
// the consume driver of executor 7 reads:
//
//	I251019 10:32:01.123456 pkg/stream/executor/sink.go:312 [sink-exec=7,consume] committed epoch 42
//
// Messages are formatted with redact, so arguments can be marked safe or
// unsafe for reporting. Redaction markers are stripped on output unless
// SetRedactable(true) was called.
package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/sinkexec/pkg/util/syncutil"
	"github.com/cockroachdb/sinkexec/pkg/util/timeutil"
)

// Severity identifies the importance of a log entry.
type Severity int32

// Severity levels, in increasing order of importance.
const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

var severityChars = [...]byte{'I', 'W', 'E', 'F'}

var severityNames = [...]string{"INFO", "WARNING", "ERROR", "FATAL"}

// String implements fmt.Stringer.
func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("Severity(%d)", int32(s))
	}
	return severityNames[s]
}

// SeverityByName returns the severity with the given (case-insensitive)
// name.
func SeverityByName(name string) (Severity, bool) {
	for i, n := range severityNames {
		if strings.EqualFold(n, name) {
			return Severity(i), true
		}
	}
	return 0, false
}

type loggerT struct {
	mu struct {
		syncutil.Mutex
		out io.Writer
	}
	minSeverity atomic.Int32
	verbosity   atomic.Int32
	redactable  atomic.Bool
	// exitFn is called after a fatal entry is written. Tests override it.
	exitFn atomic.Pointer[func(int)]
}

var mainLog = func() *loggerT {
	l := &loggerT{}
	l.mu.out = os.Stderr
	exit := os.Exit
	l.exitFn.Store(&exit)
	return l
}()

// SetOutput redirects log output to w and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	mainLog.mu.Lock()
	defer mainLog.mu.Unlock()
	prev := mainLog.mu.out
	mainLog.mu.out = w
	return prev
}

// SetMinSeverity suppresses entries below s.
func SetMinSeverity(s Severity) {
	mainLog.minSeverity.Store(int32(s))
}

// SetVerbosity sets the level enabled for V and VEventf.
func SetVerbosity(level int32) {
	mainLog.verbosity.Store(level)
}

// SetRedactable controls whether redaction markers are kept in the output.
func SetRedactable(b bool) {
	mainLog.redactable.Store(b)
}

// SetExitFunc overrides the function called after a fatal entry and returns
// a function restoring the previous one.
func SetExitFunc(fn func(int)) (restore func()) {
	prev := mainLog.exitFn.Swap(&fn)
	return func() { mainLog.exitFn.Store(prev) }
}

// V returns true if the configured verbosity is at least level.
func V(level int32) bool {
	return mainLog.verbosity.Load() >= level
}

// Infof logs to the INFO severity.
func Infof(ctx context.Context, format string, args ...interface{}) {
	logDepth(ctx, 1, SeverityInfo, format, args)
}

// InfofDepth logs to the INFO severity, offsetting the caller's stack
// frame by 'depth'.
func InfofDepth(ctx context.Context, depth int, format string, args ...interface{}) {
	logDepth(ctx, depth+1, SeverityInfo, format, args)
}

// Warningf logs to the WARNING severity.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	logDepth(ctx, 1, SeverityWarning, format, args)
}

// Errorf logs to the ERROR severity.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	logDepth(ctx, 1, SeverityError, format, args)
}

// Fatalf logs to the FATAL severity and then terminates the process.
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	logDepth(ctx, 1, SeverityFatal, format, args)
	(*mainLog.exitFn.Load())(255)
}

// VEventf logs to the INFO severity if the verbosity is at least level.
func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	if V(level) {
		logDepth(ctx, 1, SeverityInfo, format, args)
	}
}

func logDepth(
	ctx context.Context, depth int, sev Severity, format string, args []interface{},
) {
	if sev < Severity(mainLog.minSeverity.Load()) {
		return
	}
	file, line := "???", 1
	if _, f, l, ok := runtime.Caller(depth + 1); ok {
		file, line = shortFile(f), l
	}
	mainLog.output(formatEntry(ctx, sev, file, line, format, args))
}

// formatEntry renders an entry in the form
//
//	Lyymmdd hh:mm:ss.uuuuuu file:line [tags] msg
func formatEntry(
	ctx context.Context, sev Severity, file string, line int, format string, args []interface{},
) []byte {
	var buf bytes.Buffer
	buf.WriteByte(severityChars[sev])
	buf.WriteString(timeutil.Now().Format(timeutil.LogTimeFormat))
	fmt.Fprintf(&buf, " %s:%d ", file, line)
	if tags := logtags.FromContext(ctx); tags != nil {
		buf.WriteByte('[')
		buf.WriteString(tags.String())
		buf.WriteString("] ")
	}
	var msg redact.RedactableString
	if format == "" {
		msg = redact.Sprint(args...)
	} else {
		msg = redact.Sprintf(format, args...)
	}
	if mainLog.redactable.Load() {
		buf.WriteString(string(msg))
	} else {
		buf.WriteString(msg.StripMarkers())
	}
	if buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func (l *loggerT) output(entry []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.mu.out.Write(entry)
}

// shortFile trims a source path to its last three elements, which for this
// repository is the package path below pkg/.
func shortFile(path string) string {
	dir, file := filepath.Split(path)
	parts := strings.Split(strings.TrimSuffix(dir, "/"), "/")
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	return strings.Join(append(parts, file), "/")
}

// FormatWithContextTags formats the string and prepends the context
// tags.
//
// Redaction markers are *not* inserted. The resulting
// string is generally unsafe for reporting.
func FormatWithContextTags(ctx context.Context, format string, args ...interface{}) string {
	var buf strings.Builder
	if tags := logtags.FromContext(ctx); tags != nil {
		buf.WriteByte('[')
		buf.WriteString(tags.String())
		buf.WriteString("] ")
	}
	fmt.Fprintf(&buf, format, args...)
	return buf.String()
}
