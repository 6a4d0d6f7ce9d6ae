package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/openfroyo/watchdog/pkg/telemetry"
	"github.com/openfroyo/watchdog/pkg/watchdog"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvCheckInterval overrides defaults.check_interval when set.
const EnvCheckInterval = "WATCHDOG_CHECK_INTERVAL"

// reloadDelay debounces bursts of file events from editors.
const reloadDelay = 500 * time.Millisecond

// Loader reads, defaults and validates configuration files.
type Loader struct {
	logger    zerolog.Logger
	validator *validator.Validate
	getenv    func(string) string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewLoader creates a new configuration loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger:    logger.With().Str("component", "config-loader").Logger(),
		validator: validator.New(),
		getenv:    os.Getenv,
	}
}

// Load reads and parses the configuration file at path.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	l.logger.Debug().
		Str("path", path).
		Int("watchdogs", len(cfg.Watchdogs)).
		Int("notifiers", len(cfg.Notifiers)).
		Msg("Configuration loaded")

	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates the result.
// Unknown fields are rejected.
func (l *Loader) Parse(data []byte) (*Config, error) {
	cfg := &Config{Telemetry: *telemetry.DefaultConfig()}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := l.applyDefaults(cfg); err != nil {
		return nil, err
	}

	if err := l.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults resolves the environment override and fills every unset
// watchdog field from Defaults.
func (l *Loader) applyDefaults(cfg *Config) error {
	if v := l.getenv(EnvCheckInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvCheckInterval, v, err)
		}
		cfg.Defaults.CheckInterval = Duration(d)
	}
	if cfg.Defaults.CheckInterval == 0 {
		cfg.Defaults.CheckInterval = Duration(watchdog.DefaultCheckInterval)
	}
	if cfg.Defaults.MaxRetries == 0 {
		cfg.Defaults.MaxRetries = watchdog.DefaultMaxRetries
	}
	if cfg.Defaults.QueueSize == 0 {
		cfg.Defaults.QueueSize = watchdog.DefaultQueueSize
	}

	for i := range cfg.Watchdogs {
		w := &cfg.Watchdogs[i]
		if w.CheckInterval == 0 {
			w.CheckInterval = cfg.Defaults.CheckInterval
		}
		if w.CheckTimeout == 0 {
			w.CheckTimeout = cfg.Defaults.CheckTimeout
		}
		if w.MaxRetries == 0 {
			w.MaxRetries = cfg.Defaults.MaxRetries
		}
		if w.QueueSize == 0 {
			w.QueueSize = cfg.Defaults.QueueSize
		}
		if w.Check.HTTP != nil && w.Check.HTTP.Method == "" {
			w.Check.HTTP.Method = "GET"
		}
		if w.Check.SSH != nil && w.Check.SSH.Port == 0 {
			w.Check.SSH.Port = 22
		}
	}

	return nil
}

// Validate checks struct constraints and cross references.
func (l *Loader) Validate(cfg *Config) error {
	if err := l.validator.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if err := cfg.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	if cfg.Defaults.CheckInterval <= 0 {
		return fmt.Errorf("defaults.check_interval: %w", watchdog.ErrInvalidInterval)
	}

	notifiers := make(map[string]bool, len(cfg.Notifiers))
	for _, n := range cfg.Notifiers {
		notifiers[n.Name] = true
	}

	for _, w := range cfg.Watchdogs {
		if w.CheckInterval <= 0 {
			return fmt.Errorf("watchdog %s: %w", w.Name, watchdog.ErrInvalidInterval)
		}
		if w.CheckTimeout < 0 {
			return fmt.Errorf("watchdog %s: check_timeout must not be negative", w.Name)
		}
		if ssh := w.Check.SSH; ssh != nil {
			if ssh.Command == "" && len(ssh.Paths) == 0 {
				return fmt.Errorf("watchdog %s: ssh check needs a command or paths", w.Name)
			}
			if ssh.Password == "" && ssh.KeyFile == "" {
				return fmt.Errorf("watchdog %s: ssh check needs a password or key_file", w.Name)
			}
		}
		for _, name := range w.Notify {
			if !notifiers[name] {
				return fmt.Errorf("watchdog %s: unknown notifier %q", w.Name, name)
			}
		}
	}

	return nil
}

// Watch reloads the file at path whenever it changes and passes the new
// configuration to reloadFn. Invalid configurations are logged and skipped.
// Watching stops when ctx is done or StopWatching is called.
func (l *Loader) Watch(ctx context.Context, path string, reloadFn func(*Config) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory so that atomic renames by editors are seen.
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go l.processEvents(ctx, watcher, abs, reloadFn)

	l.logger.Info().Str("path", abs).Msg("Started watching configuration")
	return nil
}

// processEvents processes file system events and triggers reloads.
func (l *Loader) processEvents(ctx context.Context, watcher *fsnotify.Watcher, path string, reloadFn func(*Config) error) {
	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Configuration file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				if err := l.triggerReload(ctx, path, reloadFn); err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload configuration")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// triggerReload loads path and hands the result to reloadFn.
func (l *Loader) triggerReload(ctx context.Context, path string, reloadFn func(*Config) error) error {
	if ctx.Err() != nil {
		return nil
	}

	l.logger.Info().Str("path", path).Msg("Reloading configuration")

	cfg, err := l.Load(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	if err := reloadFn(cfg); err != nil {
		return fmt.Errorf("failed to apply reloaded configuration: %w", err)
	}

	l.logger.Info().Int("watchdogs", len(cfg.Watchdogs)).Msg("Configuration reloaded successfully")
	return nil
}

// StopWatching stops watching for file changes.
func (l *Loader) StopWatching() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	l.watcher = nil
	return err
}
