package repository

import "fmt"

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Open builds the store named by driver. dsn is the database path for sqlite.
func Open(driver, dsn string, opts ...Option) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemoryStore(opts...), nil
	case DriverSQLite:
		s, err := NewSQLiteStore(dsn, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
