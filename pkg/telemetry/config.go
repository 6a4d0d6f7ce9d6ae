package telemetry

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config is the telemetry section of a watchdog configuration file.
type Config struct {
	ServiceName    string `yaml:"service_name" validate:"required"`
	ServiceVersion string `yaml:"service_version" validate:"required"`
	Environment    string `yaml:"environment"`

	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Events  EventsConfig  `yaml:"events"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `yaml:"format" validate:"oneof=console json"`

	// Output is "stdout", "stderr" or a file path.
	Output string `yaml:"output"`

	EnableCaller bool `yaml:"enable_caller"`

	// EnableSampling logs SamplingInitial messages per second, then every
	// SamplingThereafter-th.
	EnableSampling     bool `yaml:"enable_sampling"`
	SamplingInitial    int  `yaml:"sampling_initial" validate:"gte=0"`
	SamplingThereafter int  `yaml:"sampling_thereafter" validate:"gte=0"`

	// TimeFormat is rfc3339, unix or unixms.
	TimeFormat string `yaml:"time_format" validate:"omitempty,oneof=rfc3339 unix unixms"`
}

// TracingConfig configures OpenTelemetry tracing of check cycles.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is otlp (gRPC), stdout or none.
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`

	// Endpoint is the OTLP collector address, such as "localhost:4317".
	Endpoint string            `yaml:"endpoint" validate:"required_if=Exporter otlp"`
	Headers  map[string]string `yaml:"headers"`
	Insecure bool              `yaml:"insecure"`

	SamplingRate       float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`
	MaxExportBatchSize int     `yaml:"max_export_batch_size" validate:"gte=0"`
}

// MetricsConfig configures the Prometheus registry and its HTTP endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address" validate:"required_if=Enabled true"`
	Path          string `yaml:"path"`
	Namespace     string `yaml:"namespace"`

	// DefaultHistogramBuckets are the check duration buckets in seconds.
	DefaultHistogramBuckets []float64 `yaml:"histogram_buckets" validate:"dive,gt=0"`
}

// EventsConfig configures the event publisher.
type EventsConfig struct {
	Enabled     bool `yaml:"enabled"`
	BufferSize  int  `yaml:"buffer_size" validate:"gte=0,required_if=Enabled true"`
	EnableAsync bool `yaml:"enable_async"`
}

var validate = validator.New()

// DefaultConfig returns the configuration used when a file omits the
// telemetry section: console logs on stderr, metrics on :9090, no tracing.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "watchdog",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			Output:             "stderr",
			SamplingInitial:    100,
			SamplingThereafter: 100,
			TimeFormat:         "rfc3339",
		},
		Tracing: TracingConfig{
			Exporter:           "none",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			Headers:            map[string]string{},
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "watchdog",
			DefaultHistogramBuckets: []float64{
				0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
			},
		},
		Events: EventsConfig{
			Enabled:     true,
			BufferSize:  1000,
			EnableAsync: true,
		},
	}
}

// ProductionConfig returns JSON logs with sampling and OTLP tracing at a
// 10% sampling rate.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "production"
	cfg.Logging.Format = "json"
	cfg.Logging.EnableSampling = true
	cfg.Logging.TimeFormat = "unix"
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.Endpoint = "localhost:4317"
	cfg.Tracing.SamplingRate = 0.1
	cfg.Tracing.Insecure = false
	return cfg
}

// DevelopmentConfig returns debug console logs with caller information and
// spans printed to stdout.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.EnableCaller = true
	cfg.Tracing.Exporter = "stdout"
	return cfg
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	if c.Tracing.Enabled && c.Tracing.Exporter == "" {
		return fmt.Errorf("invalid telemetry config: tracing is enabled without an exporter")
	}
	return nil
}
