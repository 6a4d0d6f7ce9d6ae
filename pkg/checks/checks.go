// Package checks provides the built-in health checks of the watchdog daemon.
//
// Every check implements watchdog.Checker and reports its result through the
// classified errors of the watchdog package: a check that ran and found the
// target unhealthy returns a failed error, while a check that could not reach
// its target returns an impossible error so that an escalation policy can
// absorb transient trouble.
package checks

import (
	"fmt"

	"github.com/openfroyo/watchdog/pkg/config"
	"github.com/openfroyo/watchdog/pkg/watchdog"
	"github.com/rs/zerolog"
)

// FromConfig builds the checker described by cfg.
func FromConfig(cfg config.CheckConfig, logger zerolog.Logger) (watchdog.Checker, error) {
	switch cfg.Type {
	case "http":
		if cfg.HTTP == nil {
			return nil, fmt.Errorf("http check requires http settings")
		}
		return NewHTTPCheck(*cfg.HTTP, logger)
	case "tcp":
		if cfg.TCP == nil {
			return nil, fmt.Errorf("tcp check requires tcp settings")
		}
		return NewTCPCheck(cfg.TCP.Address, logger), nil
	case "exec":
		if cfg.Exec == nil {
			return nil, fmt.Errorf("exec check requires exec settings")
		}
		return NewExecCheck(*cfg.Exec, logger), nil
	case "ssh":
		if cfg.SSH == nil {
			return nil, fmt.Errorf("ssh check requires ssh settings")
		}
		return NewSSHCheck(*cfg.SSH, logger)
	case "script":
		if cfg.Script == nil {
			return nil, fmt.Errorf("script check requires script settings")
		}
		return NewScriptCheck(*cfg.Script, logger)
	default:
		return nil, fmt.Errorf("unsupported check type: %s", cfg.Type)
	}
}
