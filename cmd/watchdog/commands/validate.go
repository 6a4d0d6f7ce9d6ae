package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/openfroyo/watchdog/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Validate the configuration file without starting any watchdog.

This command checks:
  - YAML syntax and unknown fields
  - Required settings for every check and notifier type
  - Positive check intervals (after WATCHDOG_CHECK_INTERVAL is applied)
  - References from watchdogs to notifiers`,
		Example: `  # Validate the default configuration file
  watchdog validate

  # Validate a specific file and print the resolved watchdogs as JSON
  watchdog validate -c ./watchdog.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Debug().Str("path", configPath).Msg("Validating configuration")

			cfg, err := config.NewLoader(log.Logger).Load(configPath)
			if err != nil {
				return err
			}

			return printConfig(cmd.OutOrStdout(), cfg)
		},
	}

	return cmd
}

// watchdogSummary is the resolved view of one watchdog printed by validate.
type watchdogSummary struct {
	Name        string   `json:"name"`
	Check       string   `json:"check"`
	Interval    string   `json:"check_interval"`
	Timeout     string   `json:"check_timeout,omitempty"`
	Synchronous bool     `json:"synchronous"`
	Escalate    bool     `json:"escalate"`
	MaxRetries  int      `json:"max_retries,omitempty"`
	Notify      []string `json:"notify"`
}

func summarize(cfg *config.Config) []watchdogSummary {
	out := make([]watchdogSummary, 0, len(cfg.Watchdogs))
	for _, w := range cfg.Watchdogs {
		s := watchdogSummary{
			Name:        w.Name,
			Check:       w.Check.Type,
			Interval:    w.Interval().String(),
			Synchronous: w.IsSynchronous(),
			Escalate:    w.ShouldEscalate(),
			Notify:      w.Notify,
		}
		if w.Timeout() > 0 {
			s.Timeout = w.Timeout().String()
		}
		if s.Escalate {
			s.MaxRetries = w.MaxRetries
		}
		if s.Notify == nil {
			s.Notify = []string{}
		}
		out = append(out, s)
	}
	return out
}

func printConfig(out io.Writer, cfg *config.Config) error {
	summary := summarize(cfg)

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCHECK\tINTERVAL\tDISPATCH\tESCALATE\tNOTIFY")
	for _, s := range summary {
		dispatch := "async"
		if s.Synchronous {
			dispatch = "sync"
		}
		escalate := "no"
		if s.Escalate {
			escalate = fmt.Sprintf("after %d", s.MaxRetries)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%v\n", s.Name, s.Check, s.Interval, dispatch, escalate, s.Notify)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nConfiguration valid: %d watchdogs, %d notifiers\n", len(cfg.Watchdogs), len(cfg.Notifiers))
	return nil
}
