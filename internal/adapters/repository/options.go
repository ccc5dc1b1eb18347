package repository

import (
	"time"

	"github.com/okian/podium/pkg/logger"
)

type settings struct {
	logger      logger.Logger
	busyTimeout time.Duration
}

// Option applies a configuration option to a store.
type Option func(*settings)

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBusyTimeout sets how long SQLite waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{logger: logger.Nop(), busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
