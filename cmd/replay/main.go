// cmd/replay runs a scripted event sequence through a chart session and
// prints the final snapshot. It is the offline way to reproduce what a
// viewer saw without a browser.
//
// Usage:
//
//	go run ./cmd/replay --script=session.yaml --width=1200 --height=600
//	go run ./cmd/replay --script=session.json --db=data/chartdesk.db --save
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"chartdesk/internal/coord"
	"chartdesk/internal/feed"
	"chartdesk/internal/indicator"
	"chartdesk/internal/logger"
	"chartdesk/internal/model"
	"chartdesk/internal/session"
	"chartdesk/internal/store/sqlite"
	"chartdesk/internal/workspace"
)

// Script is a replayable session: the series to open and the events to feed
// it, in order. Batches are applied one after another, each settling once.
type Script struct {
	Symbol    string              `json:"symbol" yaml:"symbol"`
	Timeframe string              `json:"timeframe" yaml:"timeframe"`
	Events    []workspace.Event   `json:"events" yaml:"events"`
	Batches   [][]workspace.Event `json:"batches" yaml:"batches"`
}

// loadScript reads a script file. .yaml and .yml are YAML, anything else JSON.
func loadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	s := &Script{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, s)
	default:
		err = json.Unmarshal(data, s)
	}
	if err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	return s, nil
}

// batches returns the event batches to apply. Loose Events form the first.
func (s *Script) batches() [][]workspace.Event {
	out := make([][]workspace.Event, 0, len(s.Batches)+1)
	if len(s.Events) > 0 {
		out = append(out, s.Events)
	}
	return append(out, s.Batches...)
}

// result is what a replay produced: the final snapshot plus one message per
// rejected event.
type result struct {
	Session  string             `json:"session"`
	Snapshot workspace.Snapshot `json:"snapshot"`
	Errors   []string           `json:"errors,omitempty"`
}

// replay opens the script's series on mgr and applies every batch. Event
// errors are collected, not fatal.
func replay(ctx context.Context, mgr *session.Manager, s *Script, save bool) (*result, error) {
	id, snap, err := mgr.Open(ctx, model.SeriesKey{Symbol: s.Symbol, Timeframe: s.Timeframe})
	if err != nil {
		return nil, err
	}
	res := &result{Session: id, Snapshot: snap}
	for i, batch := range s.batches() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, err := mgr.Apply(ctx, id, batch)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("batch %d: %v", i, err))
		}
		res.Snapshot = snap
	}
	if save {
		if err := mgr.Save(ctx, id); err != nil {
			return nil, fmt.Errorf("save layout: %w", err)
		}
	}
	return res, nil
}

func main() {
	scriptPath := flag.String("script", "", "Event script (.yaml/.yml or .json)")
	symbol := flag.String("symbol", "", "Override the script's symbol")
	tf := flag.String("tf", "", "Override the script's timeframe")
	bars := flag.Int("bars", 500, "Synthetic bars per series")
	width := flag.Float64("width", 1200, "Viewport width in px")
	height := flag.Float64("height", 600, "Viewport height in px")
	dbPath := flag.String("db", "", "SQLite database for bars and layouts (empty = memory only)")
	save := flag.Bool("save", false, "Persist the final layout (needs --db to outlive the run)")
	out := flag.String("out", "", "Write the result here instead of stdout")
	level := flag.String("log-level", "warn", "debug|info|warn|error")
	flag.Parse()

	log, err := logger.Init("replay", logger.ParseLevel(*level), logger.Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *scriptPath == "" {
		log.Error("--script is required")
		flag.Usage()
		os.Exit(2)
	}

	s, err := loadScript(*scriptPath)
	if err != nil {
		log.Error("script", "error", err)
		os.Exit(1)
	}
	if *symbol != "" {
		s.Symbol = *symbol
	}
	if *tf != "" {
		s.Timeframe = *tf
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var src model.BarFetcher = feed.NewSynthetic(feed.SyntheticOptions{Bars: *bars})
	var layouts model.LayoutStore
	if *dbPath != "" {
		db, err := sqlite.Open(sqlite.Config{Path: *dbPath, Logger: log})
		if err != nil {
			log.Error("sqlite open failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		src = feed.NewCached(db, src, log)
		layouts = db
	}

	mgr := session.NewManager(session.Options{
		Feed:    feed.Validated(src),
		Layouts: layouts,
		Workspace: workspace.Options{
			Viewport: coord.Viewport{Width: *width, Height: *height},
			Registry: indicator.Default(),
		},
		Logger: log,
	})

	res, err := replay(ctx, mgr, s, *save)
	if err != nil {
		log.Error("replay failed", "error", err)
		os.Exit(1)
	}
	if err := write(*out, res); err != nil {
		log.Error("write result", "error", err)
		os.Exit(1)
	}
	if len(res.Errors) > 0 {
		log.Warn("events rejected", "count", len(res.Errors))
	}
	log.Info("replay complete", slog.String("session", res.Session), slog.Int("batches", len(s.batches())))
}

func write(path string, res *result) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
