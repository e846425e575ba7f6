package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SaveLayoutJSON upserts a layout blob.
func (s *Store) SaveLayoutJSON(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO layouts (key, data, updated_at) VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, key, string(data))
	if err != nil {
		return fmt.Errorf("sqlite save layout: %w", err)
	}
	return nil
}

// ReadLayoutJSON loads a layout blob. Returns nil, nil when none exists.
func (s *Store) ReadLayoutJSON(ctx context.Context, key string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM layouts WHERE key = ?`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read layout: %w", err)
	}
	return []byte(data), nil
}
