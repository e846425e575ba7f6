package model

import "context"

// ── Port Interfaces ──
// These interfaces decouple the workspace from concrete storage and data
// sources (Redis, SQLite, synthetic). Each implementation satisfies one or
// more of them.

// BarFetcher is the data feed collaborator.
type BarFetcher interface {
	// Fetch returns the full ordered bar sequence for a series.
	// Bars are ascending by time with no duplicates.
	Fetch(ctx context.Context, key SeriesKey) ([]Bar, error)
}

// BarWriter stores bars fetched elsewhere (seeding, read-through caches).
type BarWriter interface {
	WriteBars(ctx context.Context, key SeriesKey, bars []Bar) error
}

// LayoutStore reads and writes versioned layout blobs as raw JSON.
// Using []byte avoids a model→layout import cycle.
type LayoutStore interface {
	// SaveLayoutJSON persists a JSON-encoded layout under key.
	SaveLayoutJSON(ctx context.Context, key string, data []byte) error

	// ReadLayoutJSON loads a layout blob.
	// Returns nil, nil if no entry exists.
	ReadLayoutJSON(ctx context.Context, key string) ([]byte, error)

	// Close releases underlying resources.
	Close() error
}
