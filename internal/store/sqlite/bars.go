package sqlite

import (
	"context"
	"fmt"
	"time"

	"chartdesk/internal/model"
)

// WriteBars upserts bars for key in transactions of up to defaultBatchSize
// rows.
func (s *Store) WriteBars(ctx context.Context, key model.SeriesKey, bars []model.Bar) error {
	start := time.Now()
	for lo := 0; lo < len(bars); lo += defaultBatchSize {
		hi := min(lo+defaultBatchSize, len(bars))
		if err := s.insertBatch(ctx, key, bars[lo:hi]); err != nil {
			return fmt.Errorf("sqlite write bars %s: %w", key, err)
		}
	}
	s.log.Debug("bars committed", "series", key.String(), "bars", len(bars), "took", time.Since(start))
	return nil
}

// insertBatch inserts a batch of bars in a single transaction.
func (s *Store) insertBatch(ctx context.Context, key model.SeriesKey, bars []model.Bar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, key.Symbol, key.Timeframe, b.Time, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Fetch returns every stored bar of key ordered by time. A series with no
// rows yields an empty slice.
func (s *Store) Fetch(ctx context.Context, key model.SeriesKey) ([]model.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timeframe = ?
		ORDER BY ts ASC
	`, key.Symbol, key.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	bars := []model.Bar{}
	for rows.Next() {
		var b model.Bar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LastTime returns the newest stored bar time of key, or 0 when none exist.
func (s *Store) LastTime(ctx context.Context, key model.SeriesKey) (int64, error) {
	var ts *int64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM bars WHERE symbol = ? AND timeframe = ?`,
		key.Symbol, key.Timeframe,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if ts == nil {
		return 0, nil
	}
	return *ts, nil
}
