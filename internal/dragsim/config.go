// Package dragsim fires concurrent random drag/drop transfers at a running
// podium server and checks the ranking it leaves behind.
package dragsim

import (
	"fmt"
	"time"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL   string        // Base URL of the service
	RankingID string        // Ranking to create; empty lets the server pick
	Size      int           // Number of positions
	Items     int           // Number of backlog items seeded into the ranking
	Drags     int           // Number of transfers to submit
	Workers   int           // Number of concurrent in-flight transfers
	Timeout   time.Duration // HTTP request timeout
	Seed      uint64        // Seed of the drag generator
	Verbose   bool          // Log every rejected transfer
}

// Validate checks the run parameters.
func (c Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url must not be empty", ErrInvalidConfig)
	case c.Size < 1:
		return fmt.Errorf("%w: size must be >= 1", ErrInvalidConfig)
	case c.Items < 1:
		return fmt.Errorf("%w: items must be >= 1", ErrInvalidConfig)
	case c.Drags < 0:
		return fmt.Errorf("%w: drags must be >= 0", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be >= 1", ErrInvalidConfig)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	RankingID string
	Submitted int
	Succeeded int
	Rejected  int
	Locked    int
	Failed    int
	// Codes counts rejections by their code.
	Codes    map[string]int
	Occupied int
	Used     int
	Duration time.Duration
}
