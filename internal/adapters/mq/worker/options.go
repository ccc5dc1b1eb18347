// Package worker persists ranking snapshots taken off the sync queue.
package worker

import (
	"github.com/okian/podium/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithAttempts sets how many times a failing save is tried.
func WithAttempts(n int) Option {
	return func(w *InMemoryWorker) {
		if n > 0 {
			w.attempts = n
		}
	}
}
