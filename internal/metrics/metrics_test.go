package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartdesk/internal/coord"
	"chartdesk/internal/model"
	"chartdesk/internal/store/redis"
	"chartdesk/internal/workspace"
)

// value reads a counter or gauge from reg. labels are the label values in
// declaration order.
func value(t *testing.T, reg *prometheus.Registry, name string, labels ...string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			if len(m.GetLabel()) != len(labels) {
				continue
			}
			for i, lp := range m.GetLabel() {
				if lp.GetValue() != labels[i] {
					continue next
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestWorkspaceHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	w := workspace.New(workspace.Options{Viewport: coord.Viewport{Width: 400, Height: 300}, Hooks: m.WorkspaceHooks()})
	bars := make([]model.Bar, 40)
	for i := range bars {
		bars[i] = model.Bar{Time: int64(1_700_000_000 + i*60), Open: 10, High: 11, Low: 9, Close: 10, Volume: 1}
	}
	require.NoError(t, w.LoadBase(model.SeriesKey{Symbol: "AAA", Timeframe: "1"}, bars))
	_, err := w.AddIndicator("sma", nil)
	require.NoError(t, err)

	assert.Equal(t, float64(w.Passes()), value(t, reg, "chartdesk_settle_passes_total"))
	assert.Equal(t, 1.0, value(t, reg, "chartdesk_indicator_computes_total", "sma", "ok"))
}

func TestSessionObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	obs := m.SessionObserver()

	obs.OnEvent(workspace.EvWheel)
	obs.OnEvent(workspace.EvWheel)
	obs.OnSave(nil)
	obs.OnSave(errors.New("x"))
	obs.OnFallback(3)
	obs.OnOpen(2)
	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()

	assert.Equal(t, 2.0, value(t, reg, "chartdesk_events_total", "wheel"))
	assert.Equal(t, 1.0, value(t, reg, "chartdesk_layout_saves_total", "ok"))
	assert.Equal(t, 1.0, value(t, reg, "chartdesk_layout_saves_total", "error"))
	assert.Equal(t, 3.0, value(t, reg, "chartdesk_layout_fallbacks_total"))
	assert.Equal(t, 2.0, value(t, reg, "chartdesk_sessions"))
	assert.Equal(t, 2.0, value(t, reg, "chartdesk_bar_cache_lookups_total", "miss"))
}

func TestGatewayHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	hooks := m.GatewayHooks()

	hooks.OnClients(4)
	hooks.OnClients(3)
	hooks.OnBatch(12)

	assert.Equal(t, 3.0, value(t, reg, "chartdesk_ws_clients"))
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == "chartdesk_ws_batch_events" {
			assert.EqualValues(t, 1, mf.GetMetric()[0].GetHistogram().GetSampleCount())
			assert.Equal(t, 12.0, mf.GetMetric()[0].GetHistogram().GetSampleSum())
		}
	}
}

func TestObserveBreaker(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	cb := redis.NewCircuitBreaker(1, time.Hour)
	var chained bool
	cb.OnStateChange = func(from, to redis.State) { chained = true }
	m.ObserveBreaker(cb)

	_ = cb.Execute(func() error { return errors.New("down") })
	assert.True(t, chained)
	assert.Equal(t, 1.0, value(t, reg, "chartdesk_redis_circuit_breaker_state"))
	assert.Equal(t, 1.0, value(t, reg, "chartdesk_redis_circuit_breaker_trips_total"))
}

func healthz(t *testing.T, h *HealthStatus) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	h := NewHealthStatus()
	h.SetSessionCounter(func() int { return 4 })

	code, body := healthz(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 4, body["sessions"])

	redisUp := true
	h.AddCheck("redis", func(context.Context) error {
		if redisUp {
			return nil
		}
		return errors.New("refused")
	})
	h.AddCheck("sqlite", func(context.Context) error { return nil })
	h.Check(context.Background())
	code, _ = healthz(t, h)
	assert.Equal(t, http.StatusOK, code)

	redisUp = false
	h.Check(context.Background())
	code, body = healthz(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, false, checks["redis"].(map[string]any)["ok"])
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.WSClients.Set(3)
	s := NewServer(":0", reg, NewHealthStatus(), nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "chartdesk_ws_clients 3"))
}
