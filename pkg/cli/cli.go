// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package cli implements the sinkexec command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/sinkexec/pkg/cli/clierror"
	"github.com/cockroachdb/sinkexec/pkg/cli/exit"
	"github.com/cockroachdb/sinkexec/pkg/connector/sink"
	"github.com/spf13/cobra"
)

var sinkexecCmd = &cobra.Command{
	Use:   "sinkexec [command] (flags)",
	Short: "log-decoupled delivery of change streams to external sinks",
	Long: `
Delivers barrier-delimited streams of row changes to Kafka, PostgreSQL or
files through a durable log, committing at every checkpoint barrier.
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var connectorsCmd = &cobra.Command{
	Use:   "connectors",
	Short: "list the available sink connectors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(sink.Connectors(), "\n"))
		return err
	},
}

func init() {
	cobra.EnableCommandSorting = false
	sinkexecCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierror.NewError(err, exit.CommandLineFlagError())
	})

	sinkexecCmd.AddCommand(
		runCmd,
		connectorsCmd,
	)
	initFlags()
}

// Main is the entry point of the sinkexec binary.
func Main() {
	if err := doMain(os.Args[1:]); err != nil {
		_ = clierror.CheckAndMaybeLog(err, clierror.LogTo)
		exit.WithCode(clierror.ExitCode(err))
	}
	exit.WithCode(exit.Success())
}

// Run executes the command line given by args.
func Run(args []string) error {
	return doMain(args)
}

func doMain(args []string) error {
	setRunContextDefaults()
	verbosity = 0
	if err := applyFlagEnvVars(); err != nil {
		return clierror.NewError(err, exit.CommandLineFlagError())
	}
	sinkexecCmd.SetArgs(args)
	return sinkexecCmd.ExecuteContext(context.Background())
}
