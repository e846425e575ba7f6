package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"chartdesk/internal/model"
)

const defaultMaxPending = 1024

// BufferedLayouts wraps a layout store with a circuit breaker. While the
// breaker is open, saves are held locally (newest blob per key) and replayed
// once it closes. Reads of a held key are served from the buffer.
type BufferedLayouts struct {
	inner model.LayoutStore
	cb    *CircuitBreaker
	ctx   context.Context
	log   *slog.Logger

	mu      sync.Mutex
	pending map[string][]byte
	order   []string // keys, oldest first
	maxKeys int

	// OnBuffer is called when a save is held; OnFlush after a replay.
	OnBuffer func()
	OnFlush  func(count int)
}

// NewBufferedLayouts wraps inner. ctx bounds background replays.
func NewBufferedLayouts(ctx context.Context, inner model.LayoutStore, cb *CircuitBreaker, maxKeys int, log *slog.Logger) *BufferedLayouts {
	if maxKeys <= 0 {
		maxKeys = defaultMaxPending
	}
	if log == nil {
		log = slog.Default()
	}
	b := &BufferedLayouts{
		inner:   inner,
		cb:      cb,
		ctx:     ctx,
		log:     log.With("component", "layout-buffer"),
		pending: make(map[string][]byte),
		maxKeys: maxKeys,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		b.log.Info("circuit state changed", "from", from.String(), "to", to.String())
		if to == StateClosed {
			go b.Flush(b.ctx)
		}
	}
	return b
}

// SaveLayoutJSON writes through the breaker, holding the blob when it is
// open.
func (b *BufferedLayouts) SaveLayoutJSON(ctx context.Context, key string, data []byte) error {
	err := b.cb.Execute(func() error { return b.inner.SaveLayoutJSON(ctx, key, data) })
	if errors.Is(err, ErrCircuitOpen) {
		b.hold(key, data)
		return nil
	}
	if err == nil {
		b.forget(key)
	}
	return err
}

// ReadLayoutJSON prefers a held blob, then reads through the breaker.
func (b *BufferedLayouts) ReadLayoutJSON(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	data, ok := b.pending[key]
	b.mu.Unlock()
	if ok {
		return append([]byte(nil), data...), nil
	}

	var out []byte
	err := b.cb.Execute(func() error {
		var err error
		out, err = b.inner.ReadLayoutJSON(ctx, key)
		return err
	})
	return out, err
}

func (b *BufferedLayouts) hold(key string, data []byte) {
	b.mu.Lock()
	if _, ok := b.pending[key]; !ok {
		if len(b.order) >= b.maxKeys {
			oldest := b.order[0]
			b.order = b.order[1:]
			delete(b.pending, oldest)
			b.log.Warn("layout buffer full, dropped oldest", "key", oldest)
		}
		b.order = append(b.order, key)
	}
	b.pending[key] = append([]byte(nil), data...)
	b.mu.Unlock()

	if b.OnBuffer != nil {
		b.OnBuffer()
	}
}

func (b *BufferedLayouts) forget(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[key]; !ok {
		return
	}
	delete(b.pending, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Flush replays held blobs and returns how many were written. Blobs that
// fail stay held unless a newer save replaced them meanwhile.
func (b *BufferedLayouts) Flush(ctx context.Context) int {
	b.mu.Lock()
	keys := append([]string(nil), b.order...)
	blobs := make(map[string][]byte, len(keys))
	for _, k := range keys {
		blobs[k] = b.pending[k]
	}
	b.mu.Unlock()

	flushed := 0
	for _, k := range keys {
		data := blobs[k]
		err := b.cb.Execute(func() error { return b.inner.SaveLayoutJSON(ctx, k, data) })
		if err != nil {
			b.log.Warn("layout replay stopped", "key", k, "error", err)
			break
		}
		b.mu.Lock()
		if cur, ok := b.pending[k]; ok && string(cur) == string(data) {
			b.mu.Unlock()
			b.forget(k)
		} else {
			b.mu.Unlock()
		}
		flushed++
	}

	if flushed > 0 {
		b.log.Info("flushed held layouts", "count", flushed)
		if b.OnFlush != nil {
			b.OnFlush(flushed)
		}
	}
	return flushed
}

// PendingCount returns how many keys are held.
func (b *BufferedLayouts) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Close replays what it can, then closes the inner store.
func (b *BufferedLayouts) Close() error {
	if n := b.PendingCount(); n > 0 {
		b.Flush(b.ctx)
		if left := b.PendingCount(); left > 0 {
			b.log.Warn("closing with unsaved layouts", "count", left)
		}
	}
	return b.inner.Close()
}
