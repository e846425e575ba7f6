// Package feed supplies bar sequences to sessions. Sources are composed as
// decorators over model.BarFetcher: a backing source, an optional
// read-through cache, and validation on the way out.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"chartdesk/internal/model"
)

var (
	// ErrNoData is returned when a source has no bars for a series.
	ErrNoData = errors.New("no bars for series")
	// ErrBadKey is returned for an empty symbol or an unparseable timeframe.
	ErrBadKey = errors.New("invalid series key")
)

// Func adapts a function to model.BarFetcher.
type Func func(ctx context.Context, key model.SeriesKey) ([]model.Bar, error)

func (f Func) Fetch(ctx context.Context, key model.SeriesKey) ([]model.Bar, error) {
	return f(ctx, key)
}

// CheckKey validates a series key before it reaches a source.
func CheckKey(key model.SeriesKey) error {
	if strings.TrimSpace(key.Symbol) == "" {
		return fmt.Errorf("%w: empty symbol", ErrBadKey)
	}
	if _, err := model.ParseTimeframe(key.Timeframe); err != nil {
		return fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	return nil
}

type validated struct {
	next model.BarFetcher
}

// Validated rejects bad keys, empty results and sequences that are not
// strictly ascending.
func Validated(next model.BarFetcher) model.BarFetcher {
	return validated{next: next}
}

func (v validated) Fetch(ctx context.Context, key model.SeriesKey) ([]model.Bar, error) {
	if err := CheckKey(key); err != nil {
		return nil, err
	}
	bars, err := v.next.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", key, ErrNoData)
	}
	if err := model.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return bars, nil
}

// Cache is a bar store that can answer fetches and accept fills. A miss is an
// empty result.
type Cache interface {
	model.BarFetcher
	model.BarWriter
}

// Cached is a read-through cache in front of next. Cache failures are logged
// and bypassed.
type Cached struct {
	cache Cache
	next  model.BarFetcher
	log   *slog.Logger

	// OnHit and OnMiss observe lookups.
	OnHit  func()
	OnMiss func()
}

// NewCached wraps next with cache.
func NewCached(cache Cache, next model.BarFetcher, log *slog.Logger) *Cached {
	if log == nil {
		log = slog.Default()
	}
	return &Cached{cache: cache, next: next, log: log.With("component", "feed-cache")}
}

func (c *Cached) Fetch(ctx context.Context, key model.SeriesKey) ([]model.Bar, error) {
	bars, err := c.cache.Fetch(ctx, key)
	switch {
	case err != nil:
		c.log.Warn("bar cache read failed", "series", key.String(), "error", err)
	case len(bars) > 0:
		if c.OnHit != nil {
			c.OnHit()
		}
		return bars, nil
	}
	if c.OnMiss != nil {
		c.OnMiss()
	}

	bars, err = c.next.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(bars) > 0 && model.ValidateBars(bars) == nil {
		if err := c.cache.WriteBars(ctx, key, bars); err != nil {
			c.log.Warn("bar cache fill failed", "series", key.String(), "error", err)
		}
	}
	return bars, nil
}
