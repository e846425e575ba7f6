package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DepCheck checks one dependency.
type DepCheck func(ctx context.Context) error

// DepResult is the last outcome of a check.
type DepResult struct {
	OK        bool    `json:"ok"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// HealthStatus aggregates dependency checks and live counts.
type HealthStatus struct {
	mu sync.RWMutex

	checks      map[string]DepCheck
	results     map[string]DepResult
	sessions    func() int
	lastCheckAt time.Time
	startedAt   time.Time
}

// NewHealthStatus returns a status with no checks.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		checks:    make(map[string]DepCheck),
		results:   make(map[string]DepResult),
		startedAt: time.Now(),
	}
}

// AddCheck registers a named dependency check ("redis", "sqlite").
func (h *HealthStatus) AddCheck(name string, p DepCheck) {
	h.mu.Lock()
	h.checks[name] = p
	h.mu.Unlock()
}

// SetSessionCounter reports the number of open sessions in /healthz.
func (h *HealthStatus) SetSessionCounter(fn func() int) {
	h.mu.Lock()
	h.sessions = fn
	h.mu.Unlock()
}

// Check runs every check once and records latency and connectivity.
func (h *HealthStatus) Check(ctx context.Context) {
	h.mu.RLock()
	checks := make(map[string]DepCheck, len(h.checks))
	for k, p := range h.checks {
		checks[k] = p
	}
	h.mu.RUnlock()

	results := make(map[string]DepResult, len(checks))
	for name, p := range checks {
		start := time.Now()
		err := p(ctx)
		r := DepResult{OK: err == nil, LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0}
		if err != nil {
			r.Error = err.Error()
		}
		results[name] = r
	}

	h.mu.Lock()
	h.results = results
	h.lastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs Check every interval until ctx ends.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.Check(checkCtx)
				cancel()
			}
		}
	}()
}

// ServeHTTP handles /healthz. With no checks configured the service is
// healthy; any failing check degrades it, all failing makes it unhealthy.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	failed := 0
	for _, res := range h.results {
		if !res.OK {
			failed++
		}
	}

	overall, code := "healthy", http.StatusOK
	switch {
	case failed > 0 && failed == len(h.results):
		overall, code = "unhealthy", http.StatusServiceUnavailable
	case failed > 0:
		overall, code = "degraded", http.StatusServiceUnavailable
	}

	sessions := 0
	if h.sessions != nil {
		sessions = h.sessions()
	}
	lastCheck := ""
	if !h.lastCheckAt.IsZero() {
		lastCheck = h.lastCheckAt.Format(time.RFC3339)
	}

	status := struct {
		Status      string               `json:"status"`
		Uptime      string               `json:"uptime"`
		Sessions    int                  `json:"sessions"`
		Checks      map[string]DepResult `json:"checks"`
		LastCheckAt string               `json:"last_check_at"`
	}{
		Status:      overall,
		Uptime:      time.Since(h.startedAt).Round(time.Second).String(),
		Sessions:    sessions,
		Checks:      h.results,
		LastCheckAt: lastCheck,
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  *slog.Logger
}

// NewServer creates a metrics and health server. A nil gatherer uses the
// default registry.
func NewServer(addr string, g prometheus.Gatherer, health *HealthStatus, log *slog.Logger) *Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		log:  log.With("component", "metrics"),
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error("metrics server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
