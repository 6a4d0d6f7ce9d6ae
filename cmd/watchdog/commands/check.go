package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openfroyo/watchdog/pkg/checks"
	"github.com/openfroyo/watchdog/pkg/config"
	"github.com/openfroyo/watchdog/pkg/watchdog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// errUnhealthy makes the command exit nonzero after printing the outcome.
var errUnhealthy = errors.New("check did not pass")

func newCheckCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check <name>",
		Short: "Run one check once and print the outcome",
		Long: `Run the check of a single configured watchdog once, without notifying
any listener, and print the classified outcome.

The command exits nonzero unless the outcome is ok.`,
		Example: `  # Check the api watchdog
  watchdog check api

  # Check with a five second limit and JSON output
  watchdog check db --timeout 5s --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(log.Logger).Load(configPath)
			if err != nil {
				return err
			}

			wcfg, ok := findWatchdog(cfg, args[0])
			if !ok {
				return fmt.Errorf("unknown watchdog %q", args[0])
			}

			checker, err := checks.FromConfig(wcfg.Check, log.Logger)
			if err != nil {
				return err
			}

			if timeout == 0 {
				timeout = wcfg.Timeout()
			}
			outcome := runOnce(cmd.Context(), checker, wcfg.Name, timeout)

			if err := printOutcome(cmd, wcfg.Name, outcome); err != nil {
				return err
			}
			if outcome.Kind != watchdog.OutcomeOK {
				return errUnhealthy
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "check timeout (defaults to the configured check_timeout)")

	return cmd
}

func findWatchdog(cfg *config.Config, name string) (config.WatchdogConfig, bool) {
	for _, w := range cfg.Watchdogs {
		if w.Name == name {
			return w, true
		}
	}
	return config.WatchdogConfig{}, false
}

// runOnce runs checker once and classifies the result the way a running
// watchdog would.
func runOnce(ctx context.Context, checker watchdog.Checker, subject string, timeout time.Duration) watchdog.Outcome {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	outcome := watchdog.Classify(subject, checker.Check(ctx, subject))
	outcome.CheckedAt = start
	outcome.Duration = time.Since(start)
	return outcome
}

type checkResult struct {
	Watchdog string `json:"watchdog"`
	Outcome  string `json:"outcome"`
	Cause    string `json:"cause,omitempty"`
	Duration string `json:"duration"`
}

func printOutcome(cmd *cobra.Command, name string, o watchdog.Outcome) error {
	res := checkResult{
		Watchdog: name,
		Outcome:  string(o.Kind),
		Duration: o.Duration.Round(time.Millisecond).String(),
	}
	if o.Cause != nil {
		res.Cause = o.Cause.Error()
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return json.NewEncoder(out).Encode(res)
	}

	if res.Cause != "" {
		_, err := fmt.Fprintf(out, "%s: %s (%s): %s\n", res.Watchdog, res.Outcome, res.Duration, res.Cause)
		return err
	}
	_, err := fmt.Fprintf(out, "%s: %s (%s)\n", res.Watchdog, res.Outcome, res.Duration)
	return err
}
