package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/openfroyo/watchdog/pkg/checks"
	"github.com/openfroyo/watchdog/pkg/config"
	"github.com/openfroyo/watchdog/pkg/notify"
	"github.com/openfroyo/watchdog/pkg/telemetry"
	"github.com/openfroyo/watchdog/pkg/watchdog"
	"github.com/rs/zerolog"
)

// supervisor owns the watchdogs built from one configuration file.
type supervisor struct {
	logger zerolog.Logger
	tel    *telemetry.Telemetry

	mu        sync.RWMutex
	watchdogs []*watchdog.Watchdog
	byName    map[string]*watchdog.Watchdog
}

// newSupervisor builds every watchdog and notifier in cfg without starting them.
func newSupervisor(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, factory *notify.Factory) (*supervisor, error) {
	logger := tel.Logger.NewComponentLogger("supervisor").Zerolog()

	notifiers := make(map[string]watchdog.Listener, len(cfg.Notifiers))
	for _, n := range cfg.Notifiers {
		l, err := factory.Build(ctx, n)
		if err != nil {
			return nil, err
		}
		notifiers[n.Name] = l
	}

	s := &supervisor{
		logger: logger,
		tel:    tel,
		byName: make(map[string]*watchdog.Watchdog, len(cfg.Watchdogs)),
	}

	for _, wcfg := range cfg.Watchdogs {
		w, err := s.build(wcfg, notifiers)
		if err != nil {
			return nil, fmt.Errorf("watchdog %s: %w", wcfg.Name, err)
		}
		s.watchdogs = append(s.watchdogs, w)
		s.byName[wcfg.Name] = w
	}

	return s, nil
}

func (s *supervisor) build(wcfg config.WatchdogConfig, notifiers map[string]watchdog.Listener) (*watchdog.Watchdog, error) {
	checker, err := checks.FromConfig(wcfg.Check, s.logger)
	if err != nil {
		return nil, err
	}

	mode := watchdog.DispatchAsync
	if wcfg.IsSynchronous() {
		mode = watchdog.DispatchSync
	}

	w, err := watchdog.New(wcfg.Name, checker,
		watchdog.WithSubject(wcfg.Name),
		watchdog.WithCheckInterval(wcfg.Interval()),
		watchdog.WithCheckTimeout(wcfg.Timeout()),
		watchdog.WithStartBySleeping(wcfg.StartBySleeping),
		watchdog.WithDispatchMode(mode),
		watchdog.WithRemoveFailedListeners(wcfg.ShouldRemoveFailedListeners()),
		watchdog.WithQueueSize(wcfg.QueueSize),
		watchdog.WithLogger(s.tel.Logger.Zerolog()),
		watchdog.WithMetrics(s.tel.Metrics),
		watchdog.WithTracer(s.tel.Tracer),
		watchdog.WithEvents(s.tel.Events),
	)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(wcfg.Notify))
	for _, name := range wcfg.Notify {
		if seen[name] {
			continue
		}
		seen[name] = true
		l, ok := notifiers[name]
		if !ok {
			return nil, fmt.Errorf("unknown notifier %q", name)
		}
		// Escalation state is per watchdog, so each gets its own wrapper.
		if wcfg.ShouldEscalate() {
			l, err = watchdog.NewEscalationListener(l,
				watchdog.WithMaxRetries(wcfg.MaxRetries),
				watchdog.WithEscalationName(wcfg.Name),
				watchdog.WithEscalationLogger(s.tel.Logger.Zerolog()),
				watchdog.WithEscalationMetrics(s.tel.Metrics),
				watchdog.WithEscalationEvents(s.tel.Events),
			)
			if err != nil {
				return nil, err
			}
		}
		if err := w.AddListener(l); err != nil {
			return nil, err
		}
	}

	return w, nil
}

// start starts every watchdog. On error the ones already started are stopped.
func (s *supervisor) start(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, w := range s.watchdogs {
		if err := w.Start(ctx); err != nil {
			for _, started := range s.watchdogs[:i] {
				_ = started.Stop()
			}
			return fmt.Errorf("failed to start %s: %w", w.Name(), err)
		}
	}

	s.logger.Info().Int("watchdogs", len(s.watchdogs)).Msg("All watchdogs started")
	return nil
}

// stop requests every watchdog to stop and waits until they exit or ctx ends.
func (s *supervisor) stop(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, w := range s.watchdogs {
		if err := w.Stop(); err != nil && !errors.Is(err, watchdog.ErrNotStarted) {
			s.logger.Warn().Err(err).Str("watchdog", w.Name()).Msg("Failed to stop watchdog")
		}
	}

	for _, w := range s.watchdogs {
		if err := w.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for %s: %w", w.Name(), err)
		}
	}
	return nil
}

// apply takes over what can change at runtime from a reloaded configuration.
// Only check intervals are applied; other changes need a restart.
func (s *supervisor) apply(cfg *config.Config) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool, len(cfg.Watchdogs))
	for _, wcfg := range cfg.Watchdogs {
		seen[wcfg.Name] = true

		w, ok := s.byName[wcfg.Name]
		if !ok {
			s.logger.Warn().Str("watchdog", wcfg.Name).Msg("New watchdog ignored until restart")
			continue
		}
		if w.CheckInterval() == wcfg.Interval() {
			continue
		}
		if err := w.SetCheckInterval(wcfg.Interval()); err != nil {
			return fmt.Errorf("watchdog %s: %w", wcfg.Name, err)
		}
	}

	for name := range s.byName {
		if !seen[name] {
			s.logger.Warn().Str("watchdog", name).Msg("Removed watchdog keeps running until restart")
		}
	}
	return nil
}

// get returns the watchdog with the given name.
func (s *supervisor) get(name string) (*watchdog.Watchdog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.byName[name]
	return w, ok
}

// statuses returns the status of every watchdog in configuration order.
func (s *supervisor) statuses() []watchdog.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]watchdog.Status, 0, len(s.watchdogs))
	for _, w := range s.watchdogs {
		out = append(out, w.Status())
	}
	return out
}

// statusHandler serves the status of all watchdogs as JSON. A ?name= query
// selects one watchdog.
func (s *supervisor) statusHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			rw.Header().Set("Allow", "GET, HEAD")
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body any = s.statuses()
		if name := r.URL.Query().Get("name"); name != "" {
			w, ok := s.get(name)
			if !ok {
				http.Error(rw, "unknown watchdog", http.StatusNotFound)
				return
			}
			body = w.Status()
		}

		rw.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(rw).Encode(body); err != nil {
			s.logger.Error().Err(err).Msg("Failed to encode status")
		}
	})
}
