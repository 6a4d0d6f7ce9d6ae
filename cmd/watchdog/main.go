package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/openfroyo/watchdog/cmd/watchdog/commands"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx, Version, Commit, BuildDate)
	stop()

	if err != nil {
		code := commands.ExitCode(err)
		if code != commands.ExitUnhealthy {
			log.Error().Err(err).Msg("Command failed")
		}
		os.Exit(code)
	}
}

// setupLogging writes console logs to stderr until the configuration file
// has been read. LOG_LEVEL selects the level.
func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
