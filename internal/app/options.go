package service

import (
	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/domain/magnet"
	"github.com/okian/podium/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of snapshot sync workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the snapshot sync queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDefaultSize sets the size used when a ranking is created without one.
func WithDefaultSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.defaultSize = size
		}
	}
}

// WithBacklogLimit caps the items each ranking backlog holds.
func WithBacklogLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.backlogLimit = n
		}
	}
}

// WithStore sets the snapshot store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithMagnetOptions configures the drop suggestion scorer.
func WithMagnetOptions(opts ...magnet.Option) Option {
	return func(s *Service) {
		s.magnetOpts = append(s.magnetOpts, opts...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
