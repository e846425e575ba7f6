// Command chartd serves chart workspaces over HTTP and websockets.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"chartdesk/config"
	"chartdesk/internal/api"
	"chartdesk/internal/coord"
	"chartdesk/internal/feed"
	"chartdesk/internal/gateway"
	"chartdesk/internal/indicator"
	"chartdesk/internal/layout"
	"chartdesk/internal/logger"
	"chartdesk/internal/metrics"
	"chartdesk/internal/model"
	"chartdesk/internal/scale"
	"chartdesk/internal/session"
	"chartdesk/internal/store/redis"
	"chartdesk/internal/store/sqlite"
	"chartdesk/internal/workspace"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.Init("chartd", logger.ParseLevel(cfg.LogLevel), logger.Options{File: cfg.LogFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("chartd stopped", "error", err)
		os.Exit(1)
	}
	log.Info("chartd stopped")
}

// backends are the storage pieces chosen by configuration.
type backends struct {
	bars    model.BarFetcher
	layouts model.LayoutStore
	closers []io.Closer
}

func (b *backends) Close(log *slog.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			log.Warn("close failed", "error", err)
		}
	}
}

// openBackends wires the bar feed and the layout store.
//
// Bars: synthetic, optionally persisted in SQLite (FEED=sqlite backfills
// missing series from the generator), optionally cached in Redis.
// Layouts: Redis behind a circuit breaker when REDIS_ADDR is set, else
// SQLite when SQLITE_PATH is set, else memory.
func openBackends(ctx context.Context, cfg *config.Config, m *metrics.Metrics, health *metrics.HealthStatus, log *slog.Logger) (*backends, error) {
	b := &backends{}
	var bars model.BarFetcher = feed.NewSynthetic(feed.SyntheticOptions{Bars: cfg.SynthBars})

	var db *sqlite.Store
	if cfg.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
		var err error
		db, err = sqlite.Open(sqlite.Config{Path: cfg.SQLitePath, Logger: log})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db)
		health.AddCheck("sqlite", db.Ping)
		b.layouts = db
		if cfg.Feed == config.FeedSQLite {
			bars = feed.NewCached(db, bars, log)
		}
	}

	if cfg.RedisAddr != "" {
		rs, err := redis.New(redis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, Logger: log})
		if err != nil {
			b.Close(log)
			return nil, err
		}
		health.AddCheck("redis", rs.Ping)

		cached := feed.NewCached(rs, bars, log)
		cached.OnHit = m.CacheHit
		cached.OnMiss = m.CacheMiss
		bars = cached

		cb := redis.NewCircuitBreaker(5, 30*time.Second)
		m.ObserveBreaker(cb)
		buf := redis.NewBufferedLayouts(ctx, rs, cb, 0, log)
		buf.OnBuffer = m.RedisBufferedWrites.Inc
		b.layouts = buf
		b.closers = append(b.closers, buf)
	}

	if b.layouts == nil {
		b.layouts = layout.NewMemoryStore()
	}
	b.bars = feed.Validated(bars)
	return b, nil
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	health := metrics.NewHealthStatus()

	b, err := openBackends(ctx, cfg, m, health, log)
	if err != nil {
		return err
	}
	defer b.Close(log)

	kinds := indicator.Default()
	preset, err := config.LoadPreset(cfg.PresetPath, kinds)
	if err != nil {
		return err
	}

	mgr := session.NewManager(session.Options{
		Feed:    b.bars,
		Layouts: b.layouts,
		Workspace: workspace.Options{
			Viewport:    coord.Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
			MaxCompares: cfg.MaxCompares,
			Scale:       scale.Options{PivotWeight: cfg.ZoomPivotWeight},
			Registry:    kinds,
			Hooks:       m.WorkspaceHooks(),
		},
		Preset:   session.Preset{Indicators: preset.Indicators, Compares: preset.Compares},
		Observer: m.SessionObserver(),
		Logger:   log,
	})
	health.SetSessionCounter(mgr.Len)
	health.Check(ctx)
	health.StartLivenessChecker(ctx, 15*time.Second)

	if bars, err := b.bars.Fetch(ctx, cfg.DefaultSeries()); err != nil {
		log.Warn("default series unavailable", "series", cfg.DefaultSeries().String(), "error", err)
	} else {
		log.Info("default series warmed", "series", cfg.DefaultSeries().String(), "bars", len(bars))
	}

	autosave := layout.NewAutosaver(ctx, mgr, log)
	if err := autosave.Start(cfg.AutosaveSpec); err != nil {
		return err
	}

	hub := gateway.NewHub(mgr, gateway.Options{Debounce: cfg.Debounce, Hooks: m.GatewayHooks(), Logger: log})
	router := api.NewRouter(mgr, log)
	hub.Mount(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ms := metrics.NewServer(cfg.MetricsAddr, reg, health, log)
	ms.Start()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
		log.Error("http server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	autosave.Stop()
	if n, err := mgr.SaveAll(shutdownCtx); err != nil {
		log.Warn("final save incomplete", "saved", n, "error", err)
	} else {
		log.Info("final save", "saved", n)
	}
	if err := ms.Stop(shutdownCtx); err != nil {
		log.Warn("metrics shutdown", "error", err)
	}
	return serveErr
}
