// Package gateway streams workspace snapshots over websockets. A connection
// is bound to one session; the host sends events (one JSON object or an
// array of them per frame), the gateway coalesces them into batches and every
// connection on the session receives the resulting snapshot.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"chartdesk/internal/ringbuf"
	"chartdesk/internal/session"
	"chartdesk/internal/workspace"
)

// Sessions is the part of the session manager the gateway drives.
type Sessions interface {
	Apply(ctx context.Context, id string, events []workspace.Event) (workspace.Snapshot, error)
	Dump(id string) (workspace.Snapshot, error)
}

// Hooks observe gateway activity. Nil fields are skipped.
type Hooks struct {
	OnClients func(n int)
	OnBatch   func(events int)
}

// Options configures a Hub.
type Options struct {
	Debounce  time.Duration // batch window, default 16ms
	QueueSize int           // queued events per connection, default 1024
	Hooks     Hooks
	Logger    *slog.Logger
}

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub tracks connections and fans snapshots out to them.
type Hub struct {
	svc Sessions
	opt Options
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}

	Latency     *LatencyTracker
	Broadcaster *Broadcaster
}

// NewHub returns a hub serving svc.
func NewHub(svc Sessions, opt Options) *Hub {
	if opt.Debounce <= 0 {
		opt.Debounce = 16 * time.Millisecond
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 1024
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	h := &Hub{
		svc:     svc,
		opt:     opt,
		log:     opt.Logger.With("component", "gateway"),
		clients: make(map[*Client]struct{}),
		Latency: NewLatencyTracker(10000),
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// Mount registers the websocket and stats routes.
func (h *Hub) Mount(r chi.Router) {
	r.Get("/ws/sessions/{id}", h.HandleWS)
	r.Get("/ws/stats", h.handleStats)
}

// HandleWS upgrades the request and binds the connection to the session in
// the {id} path parameter. Unknown sessions are rejected before the upgrade.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := h.svc.Dump(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "session", id, "error", err)
		return
	}
	conn.EnableWriteCompression(true)

	c := &Client{
		conn:    conn,
		send:    make(chan []byte, 64),
		hub:     h,
		session: id,
		inbox:   ringbuf.New[workspace.Event](h.opt.QueueSize),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.clientsChanged(count)
	h.log.Info("ws client connected", "session", id, "clients", count)

	c.send <- h.Broadcaster.Initial(id, snap)

	go c.writePump()
	go c.flushLoop()
	go c.readPump()
}

// apply runs one coalesced batch for c and publishes the result.
func (h *Hub) apply(c *Client, batch []workspace.Event) {
	start := time.Now()
	snap, err := h.svc.Apply(context.Background(), c.session, batch)
	if h.opt.Hooks.OnBatch != nil {
		h.opt.Hooks.OnBatch(len(batch))
	}
	if errors.Is(err, session.ErrNotFound) {
		h.sendTo(c, errorFrame([]string{err.Error()}))
		c.conn.Close()
		return
	}
	h.Broadcaster.Broadcast(c.session, snap)
	h.Latency.Record(float64(time.Since(start).Microseconds()) / 1000.0)
	if err != nil {
		h.sendTo(c, errorFrame(messages(err)))
	}
}

// sendTo queues msg for c unless c has gone away or its queue is full.
func (h *Hub) sendTo(c *Client, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()
	h.clientsChanged(count)
}

func (h *Hub) clientsChanged(n int) {
	if h.opt.Hooks.OnClients != nil {
		h.opt.Hooks.OnClients(n)
	}
}

// ClientCount returns the number of connected ws clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close drops every connection. Their pumps exit on the next read.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.RUnlock()
	for _, conn := range conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

// Stats is the body of GET /ws/stats.
type Stats struct {
	Clients    int     `json:"clients"`
	Samples    int     `json:"samples"`
	LatencyP50 float64 `json:"latency_p50_ms"`
	LatencyP95 float64 `json:"latency_p95_ms"`
	LatencyP99 float64 `json:"latency_p99_ms"`
}

// Stats reports the connection count and batch latency percentiles.
func (h *Hub) Stats() Stats {
	s := Stats{Clients: h.ClientCount(), Samples: h.Latency.Count()}
	s.LatencyP50, s.LatencyP95, s.LatencyP99 = h.Latency.Percentiles()
	return s
}

func (h *Hub) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Stats()); err != nil {
		h.log.Debug("stats response write failed", "error", err)
	}
}

// messages flattens an errors.Join result.
func messages(err error) []string {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range j.Unwrap() {
			out = append(out, messages(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
