// Package metrics exposes Prometheus instruments for the chart engine and a
// /healthz endpoint backed by dependency checks.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"chartdesk/internal/gateway"
	"chartdesk/internal/session"
	"chartdesk/internal/store/redis"
	"chartdesk/internal/workspace"
)

// Metrics holds all Prometheus instruments.
type Metrics struct {
	EventsTotal  *prometheus.CounterVec // labels: type
	SettlePasses prometheus.Counter
	SettleDur    prometheus.Histogram

	IndicatorComputes   *prometheus.CounterVec // labels: kind, result
	IndicatorComputeDur prometheus.Histogram

	LayoutSaves     *prometheus.CounterVec // labels: result
	LayoutFallbacks prometheus.Counter
	Sessions        prometheus.Gauge

	BarCacheLookups *prometheus.CounterVec // labels: result=hit|miss

	WSClients   prometheus.Gauge
	WSBatchSize prometheus.Histogram

	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
}

// New creates the instruments and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartdesk_events_total",
			Help: "Host events applied, by type",
		}, []string{"type"}),
		SettlePasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartdesk_settle_passes_total",
			Help: "Recompute passes run by workspaces",
		}),
		SettleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartdesk_settle_duration_seconds",
			Help:    "Duration of one recompute pass",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),

		IndicatorComputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartdesk_indicator_computes_total",
			Help: "Indicator compute runs, by kind and result",
		}, []string{"kind", "result"}),
		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartdesk_indicator_compute_duration_seconds",
			Help:    "Indicator compute latency over a full series",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),

		LayoutSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartdesk_layout_saves_total",
			Help: "Layout saves, by result",
		}, []string{"result"}),
		LayoutFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartdesk_layout_fallbacks_total",
			Help: "Layout entries dropped or defaulted on restore",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartdesk_sessions",
			Help: "Open sessions",
		}),

		BarCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartdesk_bar_cache_lookups_total",
			Help: "Bar cache lookups, by result",
		}, []string{"result"}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartdesk_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		WSBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartdesk_ws_batch_events",
			Help:    "Events coalesced into one batch",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartdesk_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartdesk_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartdesk_redis_buffered_writes_total",
			Help: "Layout writes held locally while the breaker was open",
		}),
	}

	reg.MustRegister(
		m.EventsTotal,
		m.SettlePasses,
		m.SettleDur,
		m.IndicatorComputes,
		m.IndicatorComputeDur,
		m.LayoutSaves,
		m.LayoutFallbacks,
		m.Sessions,
		m.BarCacheLookups,
		m.WSClients,
		m.WSBatchSize,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
	)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// WorkspaceHooks returns engine hooks that feed the settle and indicator
// instruments.
func (m *Metrics) WorkspaceHooks() workspace.Hooks {
	return workspace.Hooks{
		OnSettle: func(took time.Duration) {
			m.SettlePasses.Inc()
			m.SettleDur.Observe(took.Seconds())
		},
		OnCompute: func(kind string, took time.Duration, err error) {
			m.IndicatorComputes.WithLabelValues(kind, result(err)).Inc()
			m.IndicatorComputeDur.Observe(took.Seconds())
		},
	}
}

// SessionObserver returns session callbacks that feed the session
// instruments.
func (m *Metrics) SessionObserver() session.Observer {
	return session.Observer{
		OnEvent:    func(t workspace.EventType) { m.EventsTotal.WithLabelValues(string(t)).Inc() },
		OnSave:     func(err error) { m.LayoutSaves.WithLabelValues(result(err)).Inc() },
		OnFallback: func(n int) { m.LayoutFallbacks.Add(float64(n)) },
		OnOpen:     func(active int) { m.Sessions.Set(float64(active)) },
	}
}

// GatewayHooks returns websocket callbacks that feed the ws instruments.
func (m *Metrics) GatewayHooks() gateway.Hooks {
	return gateway.Hooks{
		OnClients: func(n int) { m.WSClients.Set(float64(n)) },
		OnBatch:   func(events int) { m.WSBatchSize.Observe(float64(events)) },
	}
}

// CacheHit and CacheMiss count bar cache lookups.
func (m *Metrics) CacheHit()  { m.BarCacheLookups.WithLabelValues("hit").Inc() }
func (m *Metrics) CacheMiss() { m.BarCacheLookups.WithLabelValues("miss").Inc() }

// ObserveBreaker tracks the state of a circuit breaker. It chains any
// callback already installed.
func (m *Metrics) ObserveBreaker(cb *redis.CircuitBreaker) {
	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to redis.State) {
		if prev != nil {
			prev(from, to)
		}
		m.RedisCircuitBreakerState.Set(float64(to))
		if to == redis.StateOpen {
			m.RedisCircuitBreakerTrips.Inc()
		}
	}
}
