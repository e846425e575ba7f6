// Package redis stores layout blobs and caches fetched bars in Redis.
// Layout writes go through a circuit breaker and are buffered while it is
// open.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chartdesk/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	keyPrefix        = "chartdesk:"
	defaultBarsTTL   = 30 * time.Minute
	defaultOpTimeout = 2 * time.Second
)

// Config configures the Redis client.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	BarsTTL  time.Duration // lifetime of cached bar sequences
	Logger   *slog.Logger
}

// Store holds layouts and the bar cache.
type Store struct {
	client  *goredis.Client
	barsTTL time.Duration
	log     *slog.Logger
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// New connects and pings the server.
func New(cfg Config) (*Store, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.BarsTTL
	if ttl <= 0 {
		ttl = defaultBarsTTL
	}
	log.Info("redis connected", "addr", cfg.Addr)
	return &Store{client: client, barsTTL: ttl, log: log.With("component", "redis")}, nil
}

// LayoutKey maps a layout store key to its Redis key.
func LayoutKey(key string) string { return keyPrefix + "layout:" + key }

// BarsKey is the Redis key of a cached bar sequence.
func BarsKey(k model.SeriesKey) string { return keyPrefix + "bars:" + k.String() }

// SaveLayoutJSON stores a layout blob without expiry.
func (s *Store) SaveLayoutJSON(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	if err := s.client.Set(ctx, LayoutKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set layout: %w", err)
	}
	return nil
}

// ReadLayoutJSON loads a layout blob. Returns nil, nil if none exists.
func (s *Store) ReadLayoutJSON(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	data, err := s.client.Get(ctx, LayoutKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get layout: %w", err)
	}
	return data, nil
}

// WriteBars caches a full bar sequence for BarsTTL.
func (s *Store) WriteBars(ctx context.Context, key model.SeriesKey, bars []model.Bar) error {
	data, err := EncodeBars(bars)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	if err := s.client.Set(ctx, BarsKey(key), data, s.barsTTL).Err(); err != nil {
		return fmt.Errorf("redis set bars: %w", err)
	}
	return nil
}

// Fetch returns cached bars. A miss yields an empty slice and no error.
func (s *Store) Fetch(ctx context.Context, key model.SeriesKey) ([]model.Bar, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	data, err := s.client.Get(ctx, BarsKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return []model.Bar{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get bars: %w", err)
	}
	bars, err := DecodeBars(data)
	if err != nil {
		// a corrupt entry is treated as a miss and evicted
		s.log.Warn("dropping corrupt bar cache entry", "key", BarsKey(key), "error", err)
		s.client.Del(ctx, BarsKey(key))
		return []model.Bar{}, nil
	}
	return bars, nil
}

// EncodeBars is the cache wire format of a bar sequence.
func EncodeBars(bars []model.Bar) ([]byte, error) {
	data, err := json.Marshal(bars)
	if err != nil {
		return nil, fmt.Errorf("encode bars: %w", err)
	}
	return data, nil
}

// DecodeBars parses and validates a cached bar sequence.
func DecodeBars(data []byte) ([]model.Bar, error) {
	var bars []model.Bar
	if err := json.Unmarshal(data, &bars); err != nil {
		return nil, fmt.Errorf("decode bars: %w", err)
	}
	if err := model.ValidateBars(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
