package dragsim

import (
	"net/http"

	"github.com/okian/podium/pkg/logger"
)

// Option applies a configuration option to the Runner.
type Option func(*Runner)

// WithLogger sets the logger of the runner.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithHTTPClient replaces the client built from Config.Timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runner) {
		if c != nil {
			r.client.http = c
		}
	}
}
