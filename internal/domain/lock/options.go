package lock

// Option applies a configuration option to the in-memory registry.
type Option func(*inMemoryRegistry)

// WithGaugeReporting controls whether the held-lock count is published to
// the locks_held gauge. Services hosting many sessions publish an aggregate instead.
func WithGaugeReporting(enabled bool) Option {
	return func(r *inMemoryRegistry) {
		r.publish = enabled
	}
}
