package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"
)

type ObservabilityConfig struct {
	ServiceName string          `koanf:"service_name"`
	Environment string          `koanf:"environment"`
	LogLevel    string          `koanf:"log_level"`
	TracingKey  string          `koanf:"tracing_key"`
	NewRelic    *NewRelicConfig `koanf:"new_relic"`
}

type NewRelicConfig struct {
	LicenseKey string `koanf:"license_key"`
	AppName    string `koanf:"app_name"`
}

// Enabled reports whether a New Relic application should be started.
func (n *NewRelicConfig) Enabled() bool {
	return n != nil && n.LicenseKey != ""
}

func DefaultObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		ServiceName: "notes",
		LogLevel:    "info",
		TracingKey:  "tracing_id",
	}
}

func (o *ObservabilityConfig) applyDefaults() {
	def := DefaultObservabilityConfig()
	if o.ServiceName == "" {
		o.ServiceName = def.ServiceName
	}
	if o.LogLevel == "" {
		o.LogLevel = def.LogLevel
	}
	if o.TracingKey == "" {
		o.TracingKey = def.TracingKey
	}
}

func (o *ObservabilityConfig) Validate() error {
	if _, err := zerolog.ParseLevel(o.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if o.NewRelic != nil && o.NewRelic.LicenseKey != "" && len(o.NewRelic.LicenseKey) != 40 {
		return fmt.Errorf("new_relic.license_key must be 40 characters")
	}
	return nil
}

// LoggingConfig drives the HTTP capture stage.
type LoggingConfig struct {
	// ExcludedPaths are regular expressions; a request whose path matches
	// any of them anywhere is neither captured nor logged.
	ExcludedPaths []string `koanf:"excluded_paths"`
	// MaxBodyBytes caps request body buffering; 0 means unlimited.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		ExcludedPaths: []string{"/swagger-ui", "/v3/api-docs"},
	}
}

func (l *LoggingConfig) applyDefaults() {
	if l.ExcludedPaths == nil {
		l.ExcludedPaths = DefaultLoggingConfig().ExcludedPaths
	}
}

func (l *LoggingConfig) Validate() error {
	for _, p := range l.ExcludedPaths {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("excluded_paths %q: %w", p, err)
		}
	}
	if l.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must not be negative")
	}
	return nil
}

// RecorderConfig selects the log entry sinks and the async queue shape.
type RecorderConfig struct {
	Sinks     []string `koanf:"sinks"`
	QueueSize int      `koanf:"queue_size"`
	Workers   int      `koanf:"workers"`
	// RecentSize bounds the in-memory sink used by /logs/recent.
	RecentSize int `koanf:"recent_size"`
}

func DefaultRecorderConfig() *RecorderConfig {
	return &RecorderConfig{
		Sinks:      []string{"postgres", "console", "memory"},
		QueueSize:  1024,
		Workers:    2,
		RecentSize: 100,
	}
}

func (r *RecorderConfig) applyDefaults() {
	def := DefaultRecorderConfig()
	if len(r.Sinks) == 0 {
		r.Sinks = def.Sinks
	}
	if r.QueueSize <= 0 {
		r.QueueSize = def.QueueSize
	}
	if r.Workers <= 0 {
		r.Workers = def.Workers
	}
	if r.RecentSize <= 0 {
		r.RecentSize = def.RecentSize
	}
}

func (r *RecorderConfig) Validate() error {
	seen := make(map[string]bool, len(r.Sinks))
	for _, s := range r.Sinks {
		if seen[s] {
			return fmt.Errorf("sink %q listed twice", s)
		}
		seen[s] = true
	}
	return nil
}

type StorageConfig struct {
	O3 *O3Config `koanf:"o3"`
}

// O3Config points at an S3-compatible bucket used to archive log batches.
type O3Config struct {
	Endpoint  string `koanf:"endpoint"`
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
}

type BatcherConfig struct {
	MaxBatchSize  int           `koanf:"max_batch_size"`
	FlushInterval time.Duration `koanf:"flush_interval"`
}

func DefaultBatcherConfig() *BatcherConfig {
	return &BatcherConfig{
		MaxBatchSize:  500,
		FlushInterval: 30 * time.Second,
	}
}
