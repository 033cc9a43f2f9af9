package scenes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore implements Store on the scene_config table.
// The table is created by the embedded migrations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on an open SQLite connection.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, section string, register int) (int, error) {
	var level int
	err := s.db.QueryRowContext(ctx,
		`SELECT level FROM scene_config WHERE section = ? AND register = ?`,
		section, register,
	).Scan(&level)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("querying scene level: %w", err)
	}
	return level, nil
}

// Set implements Store. Sections are implicit in SQLite; the first row
// written for a section creates it.
func (s *SQLiteStore) Set(ctx context.Context, section string, register, level int) error {
	if err := validateLevel(level); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scene_config (section, register, level, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(section, register) DO UPDATE SET
			level = excluded.level,
			updated_at = excluded.updated_at`,
		section, register, level, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}
