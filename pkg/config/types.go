package config

import (
	"fmt"
	"time"

	"github.com/openfroyo/watchdog/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes as a Go duration string
// such as "10s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", value.Line, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// String returns the duration formatted like time.Duration.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config is the root of a watchdog daemon configuration file.
type Config struct {
	// Defaults apply to every watchdog that does not override them.
	Defaults Defaults `yaml:"defaults"`

	// Watchdogs lists the health checks to run.
	Watchdogs []WatchdogConfig `yaml:"watchdogs" validate:"required,min=1,unique=Name,dive"`

	// Notifiers lists the listeners watchdogs can notify.
	Notifiers []NotifierConfig `yaml:"notifiers" validate:"unique=Name,dive"`

	// Telemetry configures logging, tracing, metrics and events.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Defaults holds process-wide watchdog defaults.
type Defaults struct {
	// CheckInterval is the sleep between checks. Overridden by the
	// WATCHDOG_CHECK_INTERVAL environment variable.
	CheckInterval Duration `yaml:"check_interval"`

	// CheckTimeout bounds each check. Zero means no timeout.
	CheckTimeout Duration `yaml:"check_timeout"`

	// MaxRetries is the number of consecutive impossible outcomes escalated
	// to one failure.
	MaxRetries int `yaml:"max_retries" validate:"gte=0"`

	// QueueSize is the asynchronous backlog above which queued outcomes are
	// reported as backlogged.
	QueueSize int `yaml:"queue_size" validate:"gte=0"`
}

// WatchdogConfig describes one watchdog.
type WatchdogConfig struct {
	Name  string      `yaml:"name" validate:"required,max=64"`
	Check CheckConfig `yaml:"check"`

	CheckInterval   Duration `yaml:"check_interval"`
	CheckTimeout    Duration `yaml:"check_timeout"`
	StartBySleeping bool     `yaml:"start_by_sleeping"`

	// Synchronous selects in-line dispatch. Defaults to true.
	Synchronous *bool `yaml:"synchronous"`

	// RemoveFailedListeners drops a notifier whose callback fails. Defaults to true.
	RemoveFailedListeners *bool `yaml:"remove_failed_listeners"`

	QueueSize int `yaml:"queue_size" validate:"gte=0"`

	// Escalate wraps the notifiers so that only MaxRetries consecutive
	// impossible outcomes reach them, as one failure. Defaults to true.
	Escalate   *bool `yaml:"escalate"`
	MaxRetries int   `yaml:"max_retries" validate:"gte=0"`

	// Notify names the notifiers to register.
	Notify []string `yaml:"notify" validate:"unique,dive,required"`
}

// Interval returns the effective check interval.
func (w WatchdogConfig) Interval() time.Duration {
	return time.Duration(w.CheckInterval)
}

// Timeout returns the effective check timeout.
func (w WatchdogConfig) Timeout() time.Duration {
	return time.Duration(w.CheckTimeout)
}

// IsSynchronous reports whether dispatch is synchronous.
func (w WatchdogConfig) IsSynchronous() bool {
	return boolOr(w.Synchronous, true)
}

// ShouldRemoveFailedListeners reports whether failing notifiers are dropped.
func (w WatchdogConfig) ShouldRemoveFailedListeners() bool {
	return boolOr(w.RemoveFailedListeners, true)
}

// ShouldEscalate reports whether notifiers are wrapped in an escalation policy.
func (w WatchdogConfig) ShouldEscalate() bool {
	return boolOr(w.Escalate, true)
}

// CheckConfig selects and configures a built-in check.
type CheckConfig struct {
	Type string `yaml:"type" validate:"required,oneof=http tcp exec ssh script"`

	HTTP   *HTTPCheckConfig   `yaml:"http" validate:"required_if=Type http"`
	TCP    *TCPCheckConfig    `yaml:"tcp" validate:"required_if=Type tcp"`
	Exec   *ExecCheckConfig   `yaml:"exec" validate:"required_if=Type exec"`
	SSH    *SSHCheckConfig    `yaml:"ssh" validate:"required_if=Type ssh"`
	Script *ScriptCheckConfig `yaml:"script" validate:"required_if=Type script"`
}

// HTTPCheckConfig configures an HTTP check.
type HTTPCheckConfig struct {
	URL                string            `yaml:"url" validate:"required,url"`
	Method             string            `yaml:"method" validate:"omitempty,oneof=GET HEAD POST"`
	Headers            map[string]string `yaml:"headers"`
	ExpectStatus       []int             `yaml:"expect_status" validate:"dive,min=100,max=599"`
	BodyContains       string            `yaml:"body_contains"`
	HTTP2              bool              `yaml:"http2"`
	InsecureSkipVerify bool              `yaml:"insecure_skip_verify"`
}

// TCPCheckConfig configures a TCP connect check.
type TCPCheckConfig struct {
	Address string `yaml:"address" validate:"required,hostname_port"`
}

// ExecCheckConfig configures a command check. A nonzero exit status is a failure.
type ExecCheckConfig struct {
	Command string   `yaml:"command" validate:"required"`
	Args    []string `yaml:"args"`
	Dir     string   `yaml:"dir"`
	Env     []string `yaml:"env"`
}

// SSHCheckConfig configures a check run on a remote host over SSH.
type SSHCheckConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	KeyFile  string `yaml:"key_file"`

	KnownHostsFile        string `yaml:"known_hosts_file"`
	InsecureIgnoreHostKey bool   `yaml:"insecure_ignore_host_key"`

	// Command runs remotely; a nonzero exit status is a failure.
	Command string `yaml:"command"`

	// Paths must exist on the remote host, checked over SFTP.
	Paths []string `yaml:"paths" validate:"dive,required"`
}

// ScriptCheckConfig configures a Starlark check. The script must define
// check(subject); see package checks for the builtins it may call.
type ScriptCheckConfig struct {
	File   string `yaml:"file" validate:"required_without=Source"`
	Source string `yaml:"source" validate:"excluded_with=File"`
}

// NotifierConfig configures a built-in listener.
type NotifierConfig struct {
	Name string `yaml:"name" validate:"required"`
	Type string `yaml:"type" validate:"required,oneof=log event sqs"`

	Log *LogNotifierConfig `yaml:"log"`
	SQS *SQSNotifierConfig `yaml:"sqs" validate:"required_if=Type sqs"`
}

// LogNotifierConfig configures the log notifier.
type LogNotifierConfig struct {
	// OKLevel is the level OK outcomes are logged at.
	OKLevel string `yaml:"ok_level" validate:"omitempty,oneof=trace debug info"`
}

// SQSNotifierConfig configures the SQS notifier.
type SQSNotifierConfig struct {
	QueueURL       string `yaml:"queue_url" validate:"required,url"`
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint" validate:"omitempty,url"`
	MessageGroupID string `yaml:"message_group_id"`
	SkipOK         bool   `yaml:"skip_ok"`
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
