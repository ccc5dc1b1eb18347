// Package config defines service configuration and its loading.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/okian/podium/internal/adapters/repository"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// RankingSize is the default number of positions for new rankings.
	RankingSize int `koanf:"ranking_size"`

	// BacklogLimit caps items per ranking backlog; 0 means unbounded.
	BacklogLimit int `koanf:"backlog_limit"`

	MagnetThreshold            float64 `koanf:"magnet_threshold"`
	MagnetStrength             float64 `koanf:"magnet_strength"`
	MagnetInertia              float64 `koanf:"magnet_inertia"`
	MagnetMaxAlternatives      int     `koanf:"magnet_max_alternatives"`
	MagnetMinGestureConfidence float64 `koanf:"magnet_min_gesture_confidence"`
	MagnetMaxSpeed             float64 `koanf:"magnet_max_speed"`

	// SyncQueueSize bounds the snapshot sync queue.
	SyncQueueSize int `koanf:"sync_queue_size"`

	// SyncWorkerCount sets the number of snapshot persistence workers.
	SyncWorkerCount int `koanf:"sync_worker_count"`

	// StoreDriver selects snapshot storage: memory or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// StoreDSN is the sqlite database path.
	StoreDSN string `koanf:"store_dsn"`

	// ShutdownTimeoutMS bounds graceful shutdown.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                   "info",
		LogFormat:                  "text",
		Addr:                       ":9080",
		RankingSize:                10,
		MagnetThreshold:            100,
		MagnetStrength:             0.8,
		MagnetInertia:              0.15,
		MagnetMaxAlternatives:      3,
		MagnetMinGestureConfidence: 0.3,
		MagnetMaxSpeed:             2000,
		SyncQueueSize:              1024,
		SyncWorkerCount:            runtime.NumCPU(),
		StoreDriver:                repository.DriverMemory,
		StoreDSN:                   "podium.db",
		ShutdownTimeoutMS:          10_000,
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.RankingSize < 1:
		return fmt.Errorf("%w: ranking_size must be positive, got %d", ErrInvalidConfig, c.RankingSize)
	case c.BacklogLimit < 0:
		return fmt.Errorf("%w: backlog_limit must not be negative", ErrInvalidConfig)
	case c.MagnetThreshold <= 0:
		return fmt.Errorf("%w: magnet_threshold must be positive", ErrInvalidConfig)
	case c.MagnetStrength <= 0 || c.MagnetStrength > 1:
		return fmt.Errorf("%w: magnet_strength must be in (0,1], got %g", ErrInvalidConfig, c.MagnetStrength)
	case c.MagnetInertia < 0 || c.MagnetInertia > 1:
		return fmt.Errorf("%w: magnet_inertia must be in [0,1], got %g", ErrInvalidConfig, c.MagnetInertia)
	case c.SyncQueueSize < 1:
		return fmt.Errorf("%w: sync_queue_size must be positive", ErrInvalidConfig)
	}
	switch c.StoreDriver {
	case repository.DriverMemory:
	case repository.DriverSQLite:
		if c.StoreDSN == "" {
			return fmt.Errorf("%w: store_dsn is required for sqlite", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	return nil
}
