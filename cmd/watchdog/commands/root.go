package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	ExitError     = 1
	ExitUnhealthy = 2
)

var (
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the watchdog CLI until the command returns or ctx is done.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	return newRootCommand(version, commit, buildDate).ExecuteContext(ctx)
}

// ExitCode maps an error returned by Execute to a process exit code.
// A check that ran but did not pass exits with ExitUnhealthy.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUnhealthy):
		return ExitUnhealthy
	default:
		return ExitError
	}
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Periodic health checks with pluggable notifications",
		Long: `watchdog runs health checks on a fixed interval and notifies listeners
of every outcome.

Features:
  - HTTP, TCP, command, SSH and Starlark script checks
  - Log, event and Amazon SQS notifiers
  - Escalation of repeated impossible checks into failures
  - Synchronous or queued asynchronous dispatch
  - Prometheus metrics, OpenTelemetry traces and a JSON status endpoint
  - Configuration reload without restart`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "watchdog.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newCheckCommand())

	return rootCmd
}
