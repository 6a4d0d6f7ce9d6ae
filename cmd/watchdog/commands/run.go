package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openfroyo/watchdog/pkg/config"
	"github.com/openfroyo/watchdog/pkg/notify"
	"github.com/openfroyo/watchdog/pkg/telemetry"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
)

func newRunCommand() *cobra.Command {
	var (
		watch           bool
		shutdownTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run all configured watchdogs",
		Long: `Start every watchdog in the configuration file and run until interrupted.

While running, the daemon serves:
  - Prometheus metrics on the configured metrics path
  - /status with the JSON status of every watchdog

With --watch, changes to check intervals in the configuration file are
applied without a restart.`,
		Example: `  # Run with the default configuration file
  watchdog run

  # Run a specific configuration and reload it on change
  watchdog run -c /etc/watchdog/watchdog.yaml --watch

  # Override the default check interval
  WATCHDOG_CHECK_INTERVAL=30s watchdog run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(log.Logger)
			cfg, err := loader.Load(configPath)
			if err != nil {
				return err
			}
			if verbose {
				cfg.Telemetry.Logging.Level = "debug"
			}

			tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
			if err != nil {
				return fmt.Errorf("failed to initialize telemetry: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := tel.Shutdown(ctx); err != nil {
					log.Warn().Err(err).Msg("Telemetry shutdown failed")
				}
			}()

			ctx := tel.WithContext(cmd.Context())
			logger := tel.Logger.NewComponentLogger("daemon").Zerolog()

			factory := &notify.Factory{Logger: tel.Logger.Zerolog(), Events: tel.Events}
			sup, err := newSupervisor(ctx, cfg, tel, factory)
			if err != nil {
				return err
			}

			tel.StartMetricsServer(map[string]http.Handler{"/status": sup.statusHandler()})

			if err := sup.start(ctx); err != nil {
				return err
			}

			if watch {
				reload := func(next *config.Config) error {
					op := telemetry.StartOperation(ctx, "config.reload", attribute.String("config.path", configPath))
					err := sup.apply(next)
					op.End(err)
					return err
				}
				if err := loader.Watch(ctx, configPath, reload); err != nil {
					logger.Warn().Err(err).Msg("Configuration reload disabled")
				} else {
					defer func() { _ = loader.StopWatching() }()
				}
			}

			logger.Info().
				Str("config", configPath).
				Int("watchdogs", len(cfg.Watchdogs)).
				Msg("Watchdog daemon running")

			<-ctx.Done()

			logger.Info().Msg("Stopping watchdogs")
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := sup.stop(stopCtx); err != nil {
				return fmt.Errorf("shutdown incomplete: %w", err)
			}

			logger.Info().Msg("All watchdogs stopped")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "reload check intervals when the config file changes")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "maximum time to wait for watchdogs to stop")

	return cmd
}
