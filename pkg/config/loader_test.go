package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/watchdog/pkg/watchdog"
	"github.com/rs/zerolog"
)

const validConfig = `
defaults:
  check_interval: 30s
  max_retries: 5

watchdogs:
  - name: api
    check:
      type: http
      http:
        url: http://localhost:8080/healthz
        expect_status: [200, 204]
    notify: [log, queue]

  - name: db
    check_interval: 2s
    synchronous: false
    escalate: false
    check:
      type: tcp
      tcp:
        address: localhost:5432

notifiers:
  - name: log
    type: log
  - name: queue
    type: sqs
    sqs:
      queue_url: https://sqs.eu-west-1.amazonaws.com/123456789012/health
      region: eu-west-1

telemetry:
  logging:
    level: debug
    format: json
`

func newTestLoader(env map[string]string) *Loader {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)
	loader.getenv = func(key string) string { return env[key] }
	return loader
}

func TestParse_Valid(t *testing.T) {
	loader := newTestLoader(nil)

	cfg, err := loader.Parse([]byte(validConfig))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	if len(cfg.Watchdogs) != 2 {
		t.Fatalf("Expected 2 watchdogs, got %d", len(cfg.Watchdogs))
	}

	api := cfg.Watchdogs[0]
	if api.Interval() != 30*time.Second {
		t.Errorf("Expected api interval 30s from defaults, got %s", api.Interval())
	}
	if api.MaxRetries != 5 {
		t.Errorf("Expected api max_retries 5, got %d", api.MaxRetries)
	}
	if api.Check.HTTP.Method != "GET" {
		t.Errorf("Expected default method GET, got %q", api.Check.HTTP.Method)
	}
	if !api.IsSynchronous() || !api.ShouldRemoveFailedListeners() || !api.ShouldEscalate() {
		t.Error("Expected api to use default dispatch, removal and escalation settings")
	}
	if api.QueueSize != watchdog.DefaultQueueSize {
		t.Errorf("Expected queue size %d, got %d", watchdog.DefaultQueueSize, api.QueueSize)
	}

	db := cfg.Watchdogs[1]
	if db.Interval() != 2*time.Second {
		t.Errorf("Expected db interval 2s, got %s", db.Interval())
	}
	if db.IsSynchronous() {
		t.Error("Expected db to dispatch asynchronously")
	}
	if db.ShouldEscalate() {
		t.Error("Expected db escalation to be disabled")
	}

	if cfg.Telemetry.Logging.Level != "debug" || cfg.Telemetry.Logging.Format != "json" {
		t.Errorf("Unexpected logging config: %+v", cfg.Telemetry.Logging)
	}
	if cfg.Telemetry.ServiceName != "watchdog" {
		t.Errorf("Expected telemetry defaults to be kept, got service name %q", cfg.Telemetry.ServiceName)
	}
}

func TestParse_EnvOverride(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		want    time.Duration
		wantErr bool
	}{
		{name: "unset", env: "", want: 30 * time.Second},
		{name: "override", env: "100ms", want: 100 * time.Millisecond},
		{name: "invalid", env: "soon", wantErr: true},
		{name: "zero", env: "0s", want: watchdog.DefaultCheckInterval},
		{name: "negative", env: "-1s", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := newTestLoader(map[string]string{EnvCheckInterval: tt.env})

			cfg, err := loader.Parse([]byte(validConfig))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Failed to parse config: %v", err)
			}

			if got := time.Duration(cfg.Defaults.CheckInterval); got != tt.want {
				t.Errorf("Expected default interval %s, got %s", tt.want, got)
			}
			if got := cfg.Watchdogs[0].Interval(); got != tt.want {
				t.Errorf("Expected api interval %s, got %s", tt.want, got)
			}
			if got := cfg.Watchdogs[1].Interval(); got != 2*time.Second {
				t.Errorf("Explicit interval should not be overridden, got %s", got)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{
			name:    "empty",
			content: "",
			errText: "validation",
		},
		{
			name: "unknown field",
			content: `
watchdogs:
  - name: api
    colour: blue
    check: {type: tcp, tcp: {address: "localhost:1"}}
`,
			errText: "colour",
		},
		{
			name: "bad duration",
			content: `
defaults:
  check_interval: often
watchdogs:
  - name: api
    check: {type: tcp, tcp: {address: "localhost:1"}}
`,
			errText: "invalid duration",
		},
		{
			name: "unknown check type",
			content: `
watchdogs:
  - name: api
    check: {type: ping}
`,
			errText: "oneof",
		},
		{
			name: "missing check body",
			content: `
watchdogs:
  - name: api
    check: {type: http}
`,
			errText: "required_if",
		},
		{
			name: "duplicate watchdog",
			content: `
watchdogs:
  - name: api
    check: {type: tcp, tcp: {address: "localhost:1"}}
  - name: api
    check: {type: tcp, tcp: {address: "localhost:2"}}
`,
			errText: "unique",
		},
		{
			name: "negative interval",
			content: `
watchdogs:
  - name: api
    check_interval: -5s
    check: {type: tcp, tcp: {address: "localhost:1"}}
`,
			errText: "interval",
		},
		{
			name: "unknown notifier",
			content: `
watchdogs:
  - name: api
    check: {type: tcp, tcp: {address: "localhost:1"}}
    notify: [pager]
`,
			errText: `unknown notifier "pager"`,
		},
		{
			name: "duplicate notify entry",
			content: `
watchdogs:
  - name: api
    check: {type: tcp, tcp: {address: "localhost:1"}}
    notify: [log, log]
notifiers:
  - name: log
    type: log
`,
			errText: "unique",
		},
		{
			name: "ssh without credentials",
			content: `
watchdogs:
  - name: host
    check:
      type: ssh
      ssh: {host: web1, user: ops, command: "true"}
`,
			errText: "password or key_file",
		},
		{
			name: "ssh without work",
			content: `
watchdogs:
  - name: host
    check:
      type: ssh
      ssh: {host: web1, user: ops, key_file: /tmp/id}
`,
			errText: "command or paths",
		},
		{
			name: "script with file and source",
			content: `
watchdogs:
  - name: queue-depth
    check:
      type: script
      script: {file: depth.star, source: "def check(s): pass"}
`,
			errText: "excluded_with",
		},
		{
			name: "script without body",
			content: `
watchdogs:
  - name: queue-depth
    check:
      type: script
      script: {}
`,
			errText: "required_without",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := newTestLoader(nil)

			_, err := loader.Parse([]byte(tt.content))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("Expected error containing %q, got %v", tt.errText, err)
			}
		})
	}
}

func TestParse_NegativeIntervalIsInvalidInterval(t *testing.T) {
	loader := newTestLoader(nil)

	_, err := loader.Parse([]byte(`
watchdogs:
  - name: api
    check_interval: -1s
    check: {type: tcp, tcp: {address: "localhost:1"}}
`))
	if !errors.Is(err, watchdog.ErrInvalidInterval) {
		t.Errorf("Expected ErrInvalidInterval, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	loader := newTestLoader(nil)
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "watchdog.yaml")

	if err := os.WriteFile(path, []byte(validConfig), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	cfg, err := loader.Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Notifiers[1].SQS.Region != "eu-west-1" {
		t.Errorf("Expected region eu-west-1, got %q", cfg.Notifiers[1].SQS.Region)
	}

	if _, err := loader.Load(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestDurationMarshalYAML(t *testing.T) {
	d := Duration(90 * time.Second)

	v, err := d.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error = %v", err)
	}
	if v != "1m30s" {
		t.Errorf("Expected 1m30s, got %v", v)
	}
}

func TestWatch(t *testing.T) {
	loader := newTestLoader(nil)
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "watchdog.yaml")

	if err := os.WriteFile(path, []byte(validConfig), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	err := loader.Watch(ctx, path, func(cfg *Config) error {
		reloaded <- cfg
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to start watching: %v", err)
	}
	defer func() { _ = loader.StopWatching() }()

	// An invalid file is skipped.
	if err := os.WriteFile(path, []byte("watchdogs: []\n"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	time.Sleep(2 * reloadDelay)

	select {
	case <-reloaded:
		t.Fatal("Invalid configuration should not be applied")
	default:
	}

	updated := strings.Replace(validConfig, "check_interval: 30s", "check_interval: 45s", 1)
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if got := cfg.Watchdogs[0].Interval(); got != 45*time.Second {
			t.Errorf("Expected reloaded interval 45s, got %s", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}

func TestStopWatching_NotStarted(t *testing.T) {
	loader := newTestLoader(nil)

	if err := loader.StopWatching(); err != nil {
		t.Errorf("StopWatching() error = %v", err)
	}
}
