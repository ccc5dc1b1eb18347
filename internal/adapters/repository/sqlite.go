package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
)

// SQLiteStore persists snapshots in a SQLite database, one row per ranking
// with the snapshot as a JSON payload.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

// NewSQLiteStore opens the database at path and runs migrations.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	cfg := newSettings(opts)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, logger: cfg.logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Save upserts snap when it is not older than the stored row and was taken
// after the last delete of the ranking.
func (s *SQLiteStore) Save(ctx context.Context, snap model.RankingSnapshot) (bool, error) {
	if snap.ID == "" {
		return false, ErrEmptyID
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("encoding snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var deletedNs int64
	err = tx.QueryRowContext(ctx, `SELECT deleted_at_ns FROM tombstones WHERE id = ?`, snap.ID).Scan(&deletedNs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("querying tombstone: %w", err)
	case snap.UpdatedAt.UnixNano() <= deletedNs:
		s.logger.Debug(ctx, "skipping snapshot of deleted ranking",
			logger.String("rankingID", snap.ID),
			logger.Any("deleted", time.Unix(0, deletedNs).UTC()),
			logger.Any("incoming", snap.UpdatedAt),
		)
		return false, nil
	}

	query := `
		INSERT INTO rankings (id, size, occupied, payload, created_at, updated_at_ns)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			size = excluded.size,
			occupied = excluded.occupied,
			payload = excluded.payload,
			updated_at_ns = excluded.updated_at_ns
		WHERE excluded.updated_at_ns >= rankings.updated_at_ns
	`
	result, err := tx.ExecContext(ctx, query,
		snap.ID,
		snap.Size,
		len(snap.Assignments),
		string(payload),
		snap.CreatedAt.UTC().Format(time.RFC3339Nano),
		snap.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("upserting snapshot: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing snapshot: %w", err)
	}
	if n == 0 {
		s.logger.Debug(ctx, "skipping stale snapshot", logger.String("rankingID", snap.ID))
	}
	return n > 0, nil
}

// Load returns the stored snapshot for id.
func (s *SQLiteStore) Load(ctx context.Context, id string) (model.RankingSnapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM rankings WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RankingSnapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.RankingSnapshot{}, fmt.Errorf("querying snapshot: %w", err)
	}

	var snap model.RankingSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return model.RankingSnapshot{}, fmt.Errorf("decoding snapshot %s: %w", id, err)
	}
	if snap.Assignments == nil {
		snap.Assignments = []model.Assignment{}
	}
	return snap, nil
}

// List returns summaries, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, size, occupied, updated_at_ns
		FROM rankings
		ORDER BY updated_at_ns DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying rankings: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum Summary
			ns  int64
		)
		if err := rows.Scan(&sum.ID, &sum.Size, &sum.Occupied, &ns); err != nil {
			return nil, fmt.Errorf("scanning ranking: %w", err)
		}
		sum.UpdatedAt = time.Unix(0, ns).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rankings: %w", err)
	}
	return out, nil
}

// Delete removes the snapshot for id and records a tombstone that outlives it.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tombstones (id, deleted_at_ns) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET deleted_at_ns = MAX(deleted_at_ns, excluded.deleted_at_ns)
	`, id, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("recording tombstone: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM rankings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Count returns the number of stored rankings, or 0 if the query fails.
func (s *SQLiteStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rankings`).Scan(&n); err != nil {
		s.logger.Error(ctx, "counting rankings failed", logger.Error(err))
		return 0
	}
	return n
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
