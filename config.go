package eventadmin

import (
	"fmt"
	"time"
)

// Config is the engine's construction-time configuration (SPEC_FULL.md §2.3),
// shaped after the teacher's EventBusConfig: struct-tagged for JSON, YAML and env
// binding so it can be loaded the same three ways the teacher's own config loader
// supports.
type Config struct {
	// WorkerCount overrides the async worker pool size. Defaults to the spec's fixed
	// N=5; changing it is supported for load testing, never for a running engine.
	WorkerCount int `json:"worker_count" yaml:"workerCount" env:"EVENTADMIN_WORKER_COUNT"`

	// QueueCapacity overrides the bounded async queue size (default Q=512).
	QueueCapacity int `json:"queue_capacity" yaml:"queueCapacity" env:"EVENTADMIN_QUEUE_CAPACITY"`

	// SlowHandlerThreshold overrides the blacklist cutoff (default T=60s).
	SlowHandlerThreshold time.Duration `json:"slow_handler_threshold" yaml:"slowHandlerThreshold" env:"EVENTADMIN_SLOW_HANDLER_THRESHOLD"`

	// LogLevel and MetricsEnabled are hot-reloadable via ConfigWatcher
	// (config_watcher.go); every other field is fixed for the engine's lifetime.
	LogLevel       string `json:"log_level" yaml:"logLevel" env:"EVENTADMIN_LOG_LEVEL"`
	MetricsEnabled bool   `json:"metrics_enabled" yaml:"metricsEnabled" env:"EVENTADMIN_METRICS_ENABLED"`
}

// DefaultConfig returns the spec's exact tuning constants (N=5, Q=512, T=60s,
// L=255), matching the teacher's DefaultEventBusConfig pattern of a fully
// populated, ready-to-use Config.
func DefaultConfig() Config {
	return Config{
		WorkerCount:          WorkerCount,
		QueueCapacity:        QueueBound,
		SlowHandlerThreshold: SlowHandlerThreshold,
		LogLevel:             "info",
		MetricsEnabled:       true,
	}
}

// Validate checks the config for internal consistency, matching the teacher's
// EventBusConfig.Validate() shape: return the first sentinel-wrapped error found
// rather than accumulating a multi-error.
func (c Config) Validate() error {
	if c.WorkerCount <= 0 {
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidArgument, c.WorkerCount)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("%w: queue_capacity must be positive, got %d", ErrInvalidArgument, c.QueueCapacity)
	}
	if c.SlowHandlerThreshold <= 0 {
		return fmt.Errorf("%w: slow_handler_threshold must be positive, got %s", ErrInvalidArgument, c.SlowHandlerThreshold)
	}
	return nil
}
