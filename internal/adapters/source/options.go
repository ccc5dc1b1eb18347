package source

// Option applies a configuration option to the Backlog.
type Option func(*Backlog)

// WithLimit caps the number of items. Zero or negative means no cap.
func WithLimit(n int) Option {
	return func(b *Backlog) {
		b.limit = n
	}
}
