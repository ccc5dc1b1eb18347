package validation

import "github.com/okian/podium/pkg/logger"

// Option applies a configuration option to the Authority.
type Option func(*Authority)

// WithLogger sets the logger used for rejected transfers.
func WithLogger(l logger.Logger) Option {
	return func(a *Authority) {
		if l != nil {
			a.logger = l
		}
	}
}
