package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartdesk/internal/model"
)

type flakyStore struct {
	mu     sync.Mutex
	down   bool
	blobs  map[string][]byte
	writes int
	closed bool
}

func newFlaky() *flakyStore { return &flakyStore{blobs: map[string][]byte{}} }

func (f *flakyStore) setDown(v bool) { f.mu.Lock(); f.down = v; f.mu.Unlock() }

func (f *flakyStore) SaveLayoutJSON(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("connection refused")
	}
	f.blobs[key] = data
	f.writes++
	return nil
}

func (f *flakyStore) ReadLayoutJSON(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errors.New("connection refused")
	}
	return f.blobs[key], nil
}

func (f *flakyStore) Close() error { f.closed = true; return nil }

func (f *flakyStore) get(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.blobs[key])
}

var _ model.LayoutStore = (*BufferedLayouts)(nil)

func TestBuffered_HoldsWhileOpenAndReplays(t *testing.T) {
	ctx := context.Background()
	inner := newFlaky()
	cb, c := newTestBreaker(2)
	b := NewBufferedLayouts(ctx, inner, cb, 0, nil)
	var held, flushed atomic.Int32
	b.OnBuffer = func() { held.Add(1) }
	b.OnFlush = func(n int) { flushed.Add(int32(n)) }

	require.NoError(t, b.SaveLayoutJSON(ctx, "a", []byte("1")))
	assert.Equal(t, "1", inner.get("a"))

	inner.setDown(true)
	assert.Error(t, b.SaveLayoutJSON(ctx, "a", []byte("2")))
	assert.Error(t, b.SaveLayoutJSON(ctx, "a", []byte("2")))
	require.Equal(t, StateOpen, cb.CurrentState())

	// open: saves are held, newest wins, reads see the held blob
	require.NoError(t, b.SaveLayoutJSON(ctx, "a", []byte("3")))
	require.NoError(t, b.SaveLayoutJSON(ctx, "b", []byte("x")))
	require.NoError(t, b.SaveLayoutJSON(ctx, "a", []byte("4")))
	assert.Equal(t, 2, b.PendingCount())
	assert.EqualValues(t, 3, held.Load())
	got, err := b.ReadLayoutJSON(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "4", string(got))

	_, err = b.ReadLayoutJSON(ctx, "missing")
	assert.ErrorIs(t, err, ErrCircuitOpen)

	// recovery: the trial write closes the breaker and replays the rest
	inner.setDown(false)
	c.advance(11 * time.Second)
	require.NoError(t, b.SaveLayoutJSON(ctx, "c", []byte("y")))
	assert.Eventually(t, func() bool { return b.PendingCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "4", inner.get("a"))
	assert.Equal(t, "x", inner.get("b"))
	assert.Equal(t, "y", inner.get("c"))
	assert.Eventually(t, func() bool { return flushed.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestBuffered_DropsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	inner := newFlaky()
	inner.setDown(true)
	cb, _ := newTestBreaker(1)
	b := NewBufferedLayouts(ctx, inner, cb, 2, nil)

	assert.Error(t, b.SaveLayoutJSON(ctx, "a", []byte("1")))
	require.NoError(t, b.SaveLayoutJSON(ctx, "a", []byte("1")))
	require.NoError(t, b.SaveLayoutJSON(ctx, "b", []byte("2")))
	require.NoError(t, b.SaveLayoutJSON(ctx, "c", []byte("3")))
	assert.Equal(t, 2, b.PendingCount())

	got, err := b.ReadLayoutJSON(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "3", string(got))
	_, err = b.ReadLayoutJSON(ctx, "a")
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBuffered_FlushStopsOnFailure(t *testing.T) {
	ctx := context.Background()
	inner := newFlaky()
	inner.setDown(true)
	cb, c := newTestBreaker(1)
	b := NewBufferedLayouts(ctx, inner, cb, 0, nil)

	assert.Error(t, b.SaveLayoutJSON(ctx, "a", []byte("1")))
	require.NoError(t, b.SaveLayoutJSON(ctx, "a", []byte("1")))
	require.NoError(t, b.SaveLayoutJSON(ctx, "b", []byte("2")))

	c.advance(11 * time.Second)
	assert.Zero(t, b.Flush(ctx))
	assert.Equal(t, 2, b.PendingCount())
	assert.Equal(t, StateOpen, cb.CurrentState())
}

func TestBuffered_CloseClosesInner(t *testing.T) {
	inner := newFlaky()
	cb, _ := newTestBreaker(1)
	b := NewBufferedLayouts(context.Background(), inner, cb, 0, nil)
	require.NoError(t, b.Close())
	assert.True(t, inner.closed)
}

func TestBarsCodec(t *testing.T) {
	bars := []model.Bar{{Time: 1, Open: 1, High: 2, Low: 0, Close: 1, Volume: 3}, {Time: 2, Open: 1, High: 1, Low: 1, Close: 1}}
	data, err := EncodeBars(bars)
	require.NoError(t, err)
	got, err := DecodeBars(data)
	require.NoError(t, err)
	assert.Equal(t, bars, got)

	_, err = DecodeBars([]byte(`[{"time":2},{"time":1}]`))
	assert.ErrorIs(t, err, model.ErrUnordered)
	_, err = DecodeBars([]byte(`{`))
	assert.Error(t, err)

	assert.Equal(t, "chartdesk:bars:AAA/5", BarsKey(model.SeriesKey{Symbol: "AAA", Timeframe: "5"}))
	assert.Equal(t, "chartdesk:layout:AAA/5/layout@v1", LayoutKey("AAA/5/layout@v1"))
}
