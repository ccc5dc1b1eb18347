package session

import (
	"github.com/okian/podium/internal/domain/lock"
	"github.com/okian/podium/internal/domain/positions"
	"github.com/okian/podium/internal/domain/validation"
	"github.com/okian/podium/pkg/logger"
)

type settings struct {
	id        string
	logger    logger.Logger
	locks     lock.Registry
	authority *validation.Authority
	tableOpts []positions.Option
}

// Option applies a configuration option to a new Session.
type Option func(*settings)

// WithID fixes the session (and ranking) id instead of generating one.
func WithID(id string) Option {
	return func(s *settings) {
		s.id = id
	}
}

// WithLogger sets the session logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLocks sets the lock registry.
func WithLocks(r lock.Registry) Option {
	return func(s *settings) {
		s.locks = r
	}
}

// WithAuthority sets the validation authority.
func WithAuthority(a *validation.Authority) Option {
	return func(s *settings) {
		s.authority = a
	}
}

// WithTableOptions passes options through to the position table.
func WithTableOptions(opts ...positions.Option) Option {
	return func(s *settings) {
		s.tableOpts = append(s.tableOpts, opts...)
	}
}
