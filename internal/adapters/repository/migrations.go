package repository

import "fmt"

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS rankings (
			id            TEXT PRIMARY KEY,
			size          INTEGER NOT NULL CHECK(size > 0),
			occupied      INTEGER NOT NULL DEFAULT 0,
			payload       TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			updated_at_ns INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_rankings_updated ON rankings(updated_at_ns);

		CREATE TABLE IF NOT EXISTS tombstones (
			id            TEXT PRIMARY KEY,
			deleted_at_ns INTEGER NOT NULL
		);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}

	return nil
}
