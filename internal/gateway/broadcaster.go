package gateway

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"chartdesk/internal/workspace"
)

// Broadcaster builds snapshot envelopes and fans them out to the clients of
// a session. Envelopes look like
//
//	{"type":"snapshot","session":"<id>","seq":N,"ts":"<rfc3339>","initial":false,"data":{...}}
//
// seq increases per session. A snapshot older than the last one sent for its
// session (by settle pass count) is dropped, so concurrent writers on one
// session never move a viewer backwards.
type Broadcaster struct {
	hub *Hub

	mu     sync.Mutex
	seq    map[string]int64
	passes map[string]uint64
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub, seq: make(map[string]int64), passes: make(map[string]uint64)}
}

// Broadcast sends snap to every client of session id.
func (b *Broadcaster) Broadcast(id string, snap workspace.Snapshot) {
	b.mu.Lock()
	if last, ok := b.passes[id]; ok && snap.Render.Passes < last {
		b.mu.Unlock()
		return
	}
	b.passes[id] = snap.Render.Passes
	b.seq[id]++
	seq := b.seq[id]
	b.mu.Unlock()

	buf, ok := b.envelope(id, seq, false, snap)
	if !ok {
		return
	}

	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for client := range b.hub.clients {
		if client.session != id {
			continue
		}
		select {
		case client.send <- buf:
		default:
		}
	}
}

// Initial returns the envelope a new connection starts with. It carries the
// current seq of the session without advancing it.
func (b *Broadcaster) Initial(id string, snap workspace.Snapshot) []byte {
	b.mu.Lock()
	seq := b.seq[id]
	b.mu.Unlock()
	buf, ok := b.envelope(id, seq, true, snap)
	if !ok {
		return errorFrame([]string{"snapshot not encodable"})
	}
	return buf
}

func (b *Broadcaster) envelope(id string, seq int64, initial bool, snap workspace.Snapshot) ([]byte, bool) {
	data, err := json.Marshal(snap)
	if err != nil {
		b.hub.log.Error("snapshot encode failed", "session", id, "error", err)
		return nil, false
	}
	buf := make([]byte, 0, len(id)+len(data)+128)
	buf = append(buf, `{"type":"snapshot","session":`...)
	buf = strconv.AppendQuote(buf, id)
	buf = append(buf, `,"seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"ts":"`...)
	buf = time.Now().UTC().AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","initial":`...)
	buf = strconv.AppendBool(buf, initial)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, '}')
	return buf, true
}

func errorFrame(msgs []string) []byte {
	out, _ := json.Marshal(map[string]any{"type": "error", "errors": msgs})
	return out
}

func pongFrame(ping int64) []byte {
	out, _ := json.Marshal(map[string]any{
		"type":      "pong",
		"ping":      ping,
		"server_ts": time.Now().UnixMilli(),
	})
	return out
}
