package positions

import "time"

// Option applies a configuration option to a Table.
type Option func(*Table)

// WithID sets the ranking id. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(t *Table) {
		if id != "" {
			t.id = id
		}
	}
}

// WithClock overrides the time source used to stamp assignments.
func WithClock(now func() time.Time) Option {
	return func(t *Table) {
		if now != nil {
			t.now = now
		}
	}
}
