package checks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/openfroyo/watchdog/pkg/watchdog"
	"github.com/rs/zerolog"
)

// TCPCheck verifies that a TCP connection can be opened.
type TCPCheck struct {
	address string
	dialer  net.Dialer
	logger  zerolog.Logger
}

// NewTCPCheck creates a TCP connect check for address (host:port).
func NewTCPCheck(address string, logger zerolog.Logger) *TCPCheck {
	return &TCPCheck{
		address: address,
		logger:  logger.With().Str("check", "tcp").Str("address", address).Logger(),
	}
}

// Check implements watchdog.Checker. A refused connection is a failure; any
// other dial error means the target could not be reached.
func (c *TCPCheck) Check(ctx context.Context, _ any) error {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("dial aborted: %w", ctxErr)
		}
		if isRefused(err) {
			return watchdog.NewFailedError("connection refused", err)
		}
		return watchdog.NewImpossibleError("dial failed", err)
	}
	_ = conn.Close()

	c.logger.Debug().Msg("Connection established")
	return nil
}

func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
