// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package clierror attaches exit codes and log severities to the errors
// of CLI commands.
package clierror

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sinkexec/pkg/cli/exit"
	"github.com/cockroachdb/sinkexec/pkg/util/log"
)

// Error wraps an error with the exit code the process terminates with.
type Error struct {
	exitCode exit.Code
	severity log.Severity
	cause    error
}

// NewError instantiates a new Error.
func NewError(cause error, exitCode exit.Code) error {
	return &Error{
		exitCode: exitCode,
		cause:    cause,
		severity: log.SeverityError,
	}
}

// NewErrorWithSeverity instantiates a new Error with a specific logging
// severity.
func NewErrorWithSeverity(cause error, exitCode exit.Code, severity log.Severity) error {
	return &Error{
		exitCode: exitCode,
		cause:    cause,
		severity: severity,
	}
}

// GetExitCode retrieves the exit code.
func (e *Error) GetExitCode() exit.Code {
	return e.exitCode
}

// GetSeverity retrieves the severity.
func (e *Error) GetSeverity() log.Severity {
	return e.severity
}

// Error implements the error interface.
func (e *Error) Error() string { return e.cause.Error() }

// Cause implements causer.
func (e *Error) Cause() error { return e.cause }

// Unwrap implements the go 1.13 unwrapper.
func (e *Error) Unwrap() error { return e.cause }

// Format implements fmt.Formatter.
func (e *Error) Format(s fmt.State, verb rune) { errors.FormatError(e, s, verb) }

// FormatError implements errors.Formatter.
func (e *Error) FormatError(p errors.Printer) error {
	if p.Detail() {
		p.Printf("error with exit code: %d", e.exitCode)
	}
	return e.cause
}

// ExitCode returns the exit code attached to err, UnspecifiedError if none
// is, or Success for a nil error.
func ExitCode(err error) exit.Code {
	if err == nil {
		return exit.Success()
	}
	if cliErr := (*Error)(nil); errors.As(err, &cliErr) {
		return cliErr.exitCode
	}
	return exit.UnspecifiedError()
}
