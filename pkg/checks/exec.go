package checks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/openfroyo/watchdog/pkg/config"
	"github.com/openfroyo/watchdog/pkg/watchdog"
	"github.com/rs/zerolog"
)

// maxOutputBytes bounds the command output kept for error messages.
const maxOutputBytes = 4096

// ExecCheck runs a local command. Exit status zero is healthy.
type ExecCheck struct {
	command string
	args    []string
	dir     string
	env     []string
	logger  zerolog.Logger
}

// NewExecCheck creates a command check.
func NewExecCheck(cfg config.ExecCheckConfig, logger zerolog.Logger) *ExecCheck {
	return &ExecCheck{
		command: cfg.Command,
		args:    cfg.Args,
		dir:     cfg.Dir,
		env:     cfg.Env,
		logger:  logger.With().Str("check", "exec").Str("command", cfg.Command).Logger(),
	}
}

// Check implements watchdog.Checker.
func (c *ExecCheck) Check(ctx context.Context, _ any) error {
	cmd := exec.CommandContext(ctx, c.command, c.args...)
	cmd.Dir = c.dir
	if len(c.env) > 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()

	c.logger.Debug().
		Dur("duration", time.Since(start)).
		Int("exit_code", cmd.ProcessState.ExitCode()).
		Err(err).
		Msg("Command completed")

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("command aborted: %w", ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return watchdog.NewFailedError(
			fmt.Sprintf("command exited with code %d: %s", exitErr.ExitCode(), tail(output.String())), err)
	}
	return watchdog.NewImpossibleError("failed to run command", err)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxOutputBytes {
		s = s[len(s)-maxOutputBytes:]
	}
	return s
}
