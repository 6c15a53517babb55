// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package exit

// Codes that are common to all commands follow.

// Success (0) represents a normal process termination.
func Success() Code { return Code{0} }

// UnspecifiedError (1) indicates the process has terminated with an
// error condition. The specific cause of the error can be found in
// the logging output.
func UnspecifiedError() Code { return Code{1} }

// UnspecifiedGoPanic (2) indicates the process has terminated due to
// an uncaught Go panic or some other error in the Go runtime.
func UnspecifiedGoPanic() Code { return Code{2} }

// Interrupted (3) indicates the process was interrupted with Ctrl+C /
// SIGINT.
func Interrupted() Code { return Code{3} }

// CommandLineFlagError (4) indicates there was an error in the
// command-line parameters or in the configuration file.
func CommandLineFlagError() Code { return Code{4} }

// FatalError (7) indicates that a logical error caused an emergency
// shutdown.
func FatalError() Code { return Code{7} }

// Codes that are specific to the run command follow, allocated down from
// 125.

// ProtocolViolation indicates that the message stream or the log broke the
// contract of the sink executor. Re-running with the same input fails the
// same way.
func ProtocolViolation() Code { return Code{125} }

// SinkFailure indicates that the sink or the log store failed. The sink
// holds everything up to the last committed checkpoint.
func SinkFailure() Code { return Code{124} }
