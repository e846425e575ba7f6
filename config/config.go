// Package config loads process configuration from the environment (and an
// optional .env file) plus an optional YAML preset for new sessions.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"chartdesk/internal/indicator"
	"chartdesk/internal/model"
)

// Feed sources.
const (
	FeedSynthetic = "synthetic"
	FeedSQLite    = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	// Servers
	HTTPAddr    string
	MetricsAddr string

	// Infrastructure; an empty RedisAddr disables Redis
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	Feed          string
	SynthBars     int

	// Logging
	LogLevel string
	LogFile  string

	// Sessions
	AutosaveSpec     string
	MaxCompares      int
	ViewportWidth    float64
	ViewportHeight   float64
	ZoomPivotWeight  float64
	Debounce         time.Duration
	DefaultSymbol    string
	DefaultTimeframe string
	PresetPath       string
}

// Load reads configuration from environment variables and an optional .env
// file. Malformed numbers fall back to their defaults; an unknown feed or
// timeframe is an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg := &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/chartdesk.db"),
		Feed:          strings.ToLower(getEnv("FEED", FeedSynthetic)),
		SynthBars:     getEnvInt("SYNTH_BARS", 500),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		AutosaveSpec:     getEnv("AUTOSAVE_SPEC", "@every 30s"),
		MaxCompares:      getEnvInt("MAX_COMPARES", 4),
		ViewportWidth:    getEnvFloat("VIEWPORT_WIDTH", 800),
		ViewportHeight:   getEnvFloat("VIEWPORT_HEIGHT", 600),
		ZoomPivotWeight:  getEnvFloat("ZOOM_PIVOT_WEIGHT", 1.0),
		Debounce:         time.Duration(getEnvInt("DEBOUNCE_MS", 16)) * time.Millisecond,
		DefaultSymbol:    getEnv("DEFAULT_SYMBOL", "DEMO"),
		DefaultTimeframe: getEnv("DEFAULT_TIMEFRAME", "5"),
		PresetPath:       getEnv("PRESET_PATH", ""),
	}
	return cfg, cfg.Validate()
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	switch c.Feed {
	case FeedSynthetic, FeedSQLite:
	default:
		return fmt.Errorf("config: FEED=%q, want %s or %s", c.Feed, FeedSynthetic, FeedSQLite)
	}
	if _, err := model.ParseTimeframe(c.DefaultTimeframe); err != nil {
		return fmt.Errorf("config: DEFAULT_TIMEFRAME: %w", err)
	}
	if c.ZoomPivotWeight <= 0 || c.ZoomPivotWeight > 1 {
		return fmt.Errorf("config: ZOOM_PIVOT_WEIGHT=%v outside (0, 1]", c.ZoomPivotWeight)
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("config: DEBOUNCE_MS must be positive")
	}
	return nil
}

// DefaultSeries is the series opened when a client names none.
func (c *Config) DefaultSeries() model.SeriesKey {
	return model.SeriesKey{Symbol: c.DefaultSymbol, Timeframe: c.DefaultTimeframe}
}

// Preset lists what a session starts with when its series has no saved
// layout.
type Preset struct {
	Indicators []indicator.Config `yaml:"indicators"`
	Compares   []string           `yaml:"compares"`
}

// LoadPreset reads a YAML preset. An empty path yields an empty preset.
// Indicator kinds are checked against reg.
func LoadPreset(path string, reg *indicator.Registry) (*Preset, error) {
	p := &Preset{}
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", path, err)
	}
	if err := indicator.ValidateConfigs(reg, p.Indicators); err != nil {
		return nil, fmt.Errorf("preset %s: %w", path, err)
	}
	return p, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("ignoring malformed integer", "key", key, "value", v)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		slog.Warn("ignoring malformed number", "key", key, "value", v)
	}
	return fallback
}
