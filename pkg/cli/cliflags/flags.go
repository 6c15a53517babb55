// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package cliflags describes the command-line flags of the sinkexec binary.
package cliflags

import "strings"

// FlagInfo contains the static information for a CLI flag and helper
// to format the description.
type FlagInfo struct {
	// Name of the flag as used on the command line.
	Name string

	// Shorthand is the short form of the flag (optional).
	Shorthand string

	// EnvVar is the name of the environment variable through which the flag
	// value can be controlled (optional).
	EnvVar string

	// Description of the flag.
	Description string
}

// Usage returns the usage text of the flag, mentioning its environment
// variable if there is one.
func (f FlagInfo) Usage() string {
	s := strings.TrimSpace(f.Description)
	if f.EnvVar != "" {
		s += "\nEnvironment variable: " + f.EnvVar
	}
	return s
}

// Flags of the run command.
var (
	Config = FlagInfo{
		Name:        "config",
		Shorthand:   "c",
		EnvVar:      "SINKEXEC_CONFIG",
		Description: `YAML file describing the columns, the sink and the log store.`,
	}

	Input = FlagInfo{
		Name:      "input",
		Shorthand: "i",
		Description: `
File holding the message stream to deliver, one message per line
("barrier <epoch>", "watermark ..." or "chunk" followed by an indented
chunk). Reads standard input if unset or "-".`,
	}

	Parallelism = FlagInfo{
		Name: "parallelism",
		Description: `
Number of parallel sink executors. Rows are dispatched by the vnode of their
stream key and every executor owns a contiguous range of vnodes.`,
	}

	LogStore = FlagInfo{
		Name:        "log-store",
		EnvVar:      "SINKEXEC_LOG_STORE",
		Description: `Overrides the log store kind of the configuration ("inmem" or "kv").`,
	}

	PrintOutput = FlagInfo{
		Name:        "print-output",
		Description: `Print the messages leaving the sink executors.`,
	}

	MetricsEndpoint = FlagInfo{
		Name:        "metrics-graphite",
		EnvVar:      "SINKEXEC_METRICS_GRAPHITE",
		Description: `Graphite endpoint (host:port) metrics are pushed to when the run ends.`,
	}

	Verbosity = FlagInfo{
		Name:        "verbosity",
		Shorthand:   "v",
		Description: `Verbosity of the log output.`,
	}
)
