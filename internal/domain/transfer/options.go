package transfer

import "github.com/okian/podium/internal/domain/model"

type settings struct {
	id        string
	overwrite bool
	source    model.Source
	matched   *bool
	itemID    string
}

// Option applies a configuration option to an operation.
type Option func(*settings)

// WithID sets the operation id, which is also its lock owner.
func WithID(id string) Option {
	return func(s *settings) {
		if id != "" {
			s.id = id
		}
	}
}

// WithOverwrite lets assigns and moves replace an occupied target. The
// displaced item goes back to the backlog.
func WithOverwrite() Option {
	return func(s *settings) {
		s.overwrite = true
	}
}

// WithSource tags the written assignment with the view that produced it.
func WithSource(src model.Source) Option {
	return func(s *settings) {
		s.source = src
	}
}

// WithMatched sets the matched flag of the written assignment.
func WithMatched(matched bool) Option {
	return func(s *settings) {
		s.matched = &matched
	}
}

// WithItem makes a positional operation require that its source position
// still holds itemID.
func WithItem(itemID string) Option {
	return func(s *settings) {
		s.itemID = itemID
	}
}
