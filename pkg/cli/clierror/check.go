// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package clierror

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sinkexec/pkg/util/log"
)

// Logger is the logging interface used by CheckAndMaybeLog.
type Logger func(ctx context.Context, sev log.Severity, msg string, args ...interface{})

// CheckAndMaybeLog reports the error, if non-nil, to the given logger
// at the severity attached to it.
func CheckAndMaybeLog(err error, logger Logger) error {
	if err == nil {
		return nil
	}
	severity := log.SeverityError
	cause := err
	var ec *Error
	if errors.As(err, &ec) {
		severity = ec.GetSeverity()
		cause = ec.Cause()
	}
	logger(context.Background(), severity, "%v", cause)
	return err
}

// LogTo is a Logger writing to the log package.
func LogTo(ctx context.Context, sev log.Severity, msg string, args ...interface{}) {
	switch sev {
	case log.SeverityInfo:
		log.InfofDepth(ctx, 1, msg, args...)
	case log.SeverityWarning:
		log.Warningf(ctx, msg, args...)
	default:
		log.Errorf(ctx, msg, args...)
	}
}
