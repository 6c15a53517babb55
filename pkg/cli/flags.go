// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cli

import (
	"os"

	"github.com/cockroachdb/sinkexec/pkg/cli/cliflags"
	"github.com/cockroachdb/sinkexec/pkg/util/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var verbosity int

// envFlags are the flags whose value can come from the environment.
var envFlags []struct {
	f    *pflag.FlagSet
	info cliflags.FlagInfo
}

// AddPersistentPreRunE add 'fn' as a persistent pre-run function to 'cmd'.
// If the command has an existing pre-run function, it is saved and will be called
// at the beginning of 'fn'.
func AddPersistentPreRunE(cmd *cobra.Command, fn func(*cobra.Command, []string) error) {
	// Save any existing hooks.
	wrapped := cmd.PersistentPreRunE

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Run the previous hook if it exists.
		if wrapped != nil {
			if err := wrapped(cmd, args); err != nil {
				return err
			}
		}

		// Now we can call the new function.
		return fn(cmd, args)
	}
}

func registerEnv(f *pflag.FlagSet, flagInfo cliflags.FlagInfo) {
	if flagInfo.EnvVar != "" {
		envFlags = append(envFlags, struct {
			f    *pflag.FlagSet
			info cliflags.FlagInfo
		}{f, flagInfo})
	}
}

// applyFlagEnvVars sets the flags whose environment variable is set. Flags
// given on the command line are parsed afterwards and take precedence.
func applyFlagEnvVars() error {
	for _, ef := range envFlags {
		if value, set := os.LookupEnv(ef.info.EnvVar); set {
			if err := ef.f.Set(ef.info.Name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// StringFlag creates a string flag and registers it with the FlagSet.
func StringFlag(f *pflag.FlagSet, valPtr *string, flagInfo cliflags.FlagInfo, defaultVal string) {
	f.StringVarP(valPtr, flagInfo.Name, flagInfo.Shorthand, defaultVal, flagInfo.Usage())

	registerEnv(f, flagInfo)
}

// IntFlag creates an int flag and registers it with the FlagSet.
func IntFlag(f *pflag.FlagSet, valPtr *int, flagInfo cliflags.FlagInfo, defaultVal int) {
	f.IntVarP(valPtr, flagInfo.Name, flagInfo.Shorthand, defaultVal, flagInfo.Usage())

	registerEnv(f, flagInfo)
}

// BoolFlag creates a bool flag and registers it with the FlagSet.
func BoolFlag(f *pflag.FlagSet, valPtr *bool, flagInfo cliflags.FlagInfo, defaultVal bool) {
	f.BoolVarP(valPtr, flagInfo.Name, flagInfo.Shorthand, defaultVal, flagInfo.Usage())

	registerEnv(f, flagInfo)
}

func initFlags() {
	setRunContextDefaults()

	IntFlag(sinkexecCmd.PersistentFlags(), &verbosity, cliflags.Verbosity, 0)
	AddPersistentPreRunE(sinkexecCmd, func(*cobra.Command, []string) error {
		log.SetVerbosity(int32(verbosity))
		return nil
	})

	f := runCmd.Flags()
	StringFlag(f, &runCtx.configPath, cliflags.Config, runCtx.configPath)
	StringFlag(f, &runCtx.inputPath, cliflags.Input, runCtx.inputPath)
	IntFlag(f, &runCtx.parallelism, cliflags.Parallelism, runCtx.parallelism)
	StringFlag(f, &runCtx.logStoreKind, cliflags.LogStore, runCtx.logStoreKind)
	BoolFlag(f, &runCtx.printOutput, cliflags.PrintOutput, runCtx.printOutput)
	StringFlag(f, &runCtx.graphite, cliflags.MetricsEndpoint, runCtx.graphite)
}
