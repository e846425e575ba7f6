package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartdesk/internal/coord"
	"chartdesk/internal/drawing"
	"chartdesk/internal/feed"
	"chartdesk/internal/indicator"
	"chartdesk/internal/layout"
	"chartdesk/internal/model"
	"chartdesk/internal/workspace"
)

var key = model.SeriesKey{Symbol: "AAA", Timeframe: "5"}

func newManager(t *testing.T, preset Preset) (*Manager, *layout.MemoryStore) {
	t.Helper()
	st := layout.NewMemoryStore()
	m := NewManager(Options{
		Feed:      feed.Validated(feed.NewSynthetic(feed.SyntheticOptions{Bars: 120, End: time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC)})),
		Layouts:   st,
		Workspace: workspace.Options{Viewport: coord.Viewport{Width: 800, Height: 400}, MaxCompares: 2},
		Preset:    preset,
	})
	return m, st
}

func TestOpen_AppliesPresetWithoutLayout(t *testing.T) {
	var active int
	m, _ := newManager(t, Preset{
		Indicators: []indicator.Config{{Kind: "sma", Inputs: indicator.Inputs{"length": 20}}},
		Compares:   []string{"BBB"},
	})
	m.opt.Observer.OnOpen = func(n int) { active = n }

	id, snap, err := m.Open(context.Background(), key)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NotNil(t, snap.Series.Base)
	assert.Equal(t, 120, snap.Series.Base.Bars)
	require.Len(t, snap.Indicators, 1)
	assert.Equal(t, indicator.StateReady, snap.Indicators[0].State)
	require.Len(t, snap.Series.Compares, 1)
	assert.Equal(t, "BBB", snap.Series.Compares[0].Symbol)
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, m.Len())
}

func TestOpen_BadSeries(t *testing.T) {
	m, _ := newManager(t, Preset{})
	_, _, err := m.Open(context.Background(), model.SeriesKey{Symbol: "", Timeframe: "5"})
	assert.ErrorIs(t, err, feed.ErrBadKey)
	assert.Zero(t, m.Len())
}

func TestApply_SaveAndReopen(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t, Preset{})
	id, snap, err := m.Open(ctx, key)
	require.NoError(t, err)

	x := snap.Render.Width / 2
	snap, err = m.Apply(ctx, id, []workspace.Event{
		{Type: workspace.EvArm, Kind: string(drawing.Note)},
		{Type: workspace.EvClick, X: x, Y: 200},
		{Type: workspace.EvAddIndicator, Kind: "ema", Inputs: indicator.Inputs{"length": 5}},
		{Type: workspace.EvAddCompare, Symbol: "CCC"},
		{Type: workspace.EvSetMode, Kind: string(coord.Percent)},
	})
	require.NoError(t, err)
	require.Len(t, snap.Objects, 1)
	require.Len(t, snap.Series.Compares, 1)
	assert.Equal(t, "5", snap.Series.Compares[0].Timeframe)
	assert.True(t, m.List()[0].Dirty)

	require.NoError(t, m.Close(ctx, id))
	assert.Equal(t, 1, st.Len())
	_, err = m.Dump(id)
	assert.ErrorIs(t, err, ErrNotFound)

	id2, snap2, err := m.Open(ctx, key)
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)
	require.Len(t, snap2.Objects, 1)
	assert.Equal(t, snap.Objects[0].ID, snap2.Objects[0].ID)
	assert.Len(t, snap2.Indicators, 1)
	assert.Equal(t, coord.Percent, snap2.Scale.Mode)
	require.Len(t, snap2.Series.Compares, 1)
	assert.Equal(t, "CCC", snap2.Series.Compares[0].Symbol)
}

func TestApply_SwitchSavesLeftLayoutAndRestoresIt(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t, Preset{})
	var saves int
	m.opt.Observer.OnSave = func(err error) {
		if err == nil {
			saves++
		}
	}
	id, snap, err := m.Open(ctx, key)
	require.NoError(t, err)

	snap, err = m.Apply(ctx, id, []workspace.Event{
		{Type: workspace.EvArm, Kind: string(drawing.Note)},
		{Type: workspace.EvClick, X: snap.Render.Width / 2, Y: 200},
	})
	require.NoError(t, err)
	require.Len(t, snap.Objects, 1)
	noteID := snap.Objects[0].ID

	snap, err = m.Apply(ctx, id, []workspace.Event{{Type: workspace.EvLoadBase, Symbol: "ZZZ"}})
	require.NoError(t, err)
	require.NotNil(t, snap.Series.Base)
	assert.Equal(t, "ZZZ", snap.Series.Base.Symbol)
	assert.Equal(t, "5", snap.Series.Base.Timeframe)
	assert.Empty(t, snap.Objects, "ZZZ has no layout of its own")
	assert.Equal(t, 1, st.Len())
	assert.Equal(t, 1, saves)
	info := m.List()[0]
	assert.Equal(t, model.SeriesKey{Symbol: "ZZZ", Timeframe: "5"}, info.Series)
	assert.False(t, info.Dirty)

	snap, err = m.Apply(ctx, id, []workspace.Event{{Type: workspace.EvLoadBase, Symbol: "AAA"}})
	require.NoError(t, err)
	assert.Equal(t, "AAA", snap.Series.Base.Symbol)
	require.Len(t, snap.Objects, 1)
	assert.Equal(t, noteID, snap.Objects[0].ID)
	assert.Equal(t, 1, st.Len(), "an unchanged ZZZ layout is not written")
	assert.Equal(t, 1, saves)
}

func TestApply_TimeframeSwitchRefetchesCompares(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t, Preset{Compares: []string{"BBB"}})
	id, snap, err := m.Open(ctx, key)
	require.NoError(t, err)
	require.Len(t, snap.Series.Compares, 1)
	assert.Equal(t, "5", snap.Series.Compares[0].Timeframe)

	snap, err = m.Apply(ctx, id, []workspace.Event{{Type: workspace.EvAddCompare, Symbol: "CCC"}})
	require.NoError(t, err)
	require.Len(t, snap.Series.Compares, 2)

	snap, err = m.Apply(ctx, id, []workspace.Event{{Type: workspace.EvLoadBase, Symbol: "AAA", Timeframe: "60"}})
	require.NoError(t, err)
	assert.Equal(t, "60", snap.Series.Base.Timeframe)
	require.Len(t, snap.Series.Compares, 2)
	for i, sym := range []string{"BBB", "CCC"} {
		assert.Equal(t, sym, snap.Series.Compares[i].Symbol)
		assert.Equal(t, "60", snap.Series.Compares[i].Timeframe)
	}
	assert.Equal(t, 1, st.Len(), "the 5-minute layout is kept")

	res, found, err := m.codec.Load(ctx, st, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, res.Layout.Compares, 2)
}

func TestApply_LoadComparedSymbolAsBase(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, Preset{Compares: []string{"BBB"}})
	id, _, err := m.Open(ctx, key)
	require.NoError(t, err)

	snap, err := m.Apply(ctx, id, []workspace.Event{
		{Type: workspace.EvLoadBase, Symbol: "BBB"},
		{Type: workspace.EvSetMode, Kind: string(coord.Percent)},
	})
	require.NoError(t, err)
	assert.Equal(t, "BBB", snap.Series.Base.Symbol)
	assert.Empty(t, snap.Series.Compares, "a symbol is charted once")
	assert.Zero(t, m.List()[0].Compares)
}

func TestApply_PartialFailure(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, Preset{})
	id, _, err := m.Open(ctx, key)
	require.NoError(t, err)

	var seen []workspace.EventType
	m.opt.Observer.OnEvent = func(t workspace.EventType) { seen = append(seen, t) }

	snap, err := m.Apply(ctx, id, []workspace.Event{
		{Type: workspace.EvAddCompare, Symbol: ""},
		{Type: "teleport"},
		{Type: workspace.EvAddIndicator, Kind: "rsi"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, feed.ErrBadKey)
	assert.ErrorIs(t, err, workspace.ErrUnknownEvent)
	assert.Len(t, snap.Indicators, 1)
	assert.Equal(t, []workspace.EventType{"teleport", workspace.EvAddIndicator}, seen)
}

func TestApply_UnknownSession(t *testing.T) {
	m, _ := newManager(t, Preset{})
	_, err := m.Apply(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Save(context.Background(), "nope"), ErrNotFound)
	assert.ErrorIs(t, m.Close(context.Background(), "nope"), ErrNotFound)
}

func TestSaveAll_OnlyDirty(t *testing.T) {
	ctx := context.Background()
	var saves int
	m, st := newManager(t, Preset{})
	m.opt.Observer.OnSave = func(err error) {
		if err == nil {
			saves++
		}
	}
	a, _, err := m.Open(ctx, key)
	require.NoError(t, err)
	_, _, err = m.Open(ctx, model.SeriesKey{Symbol: "BBB", Timeframe: "5"})
	require.NoError(t, err)

	_, err = m.Apply(ctx, a, []workspace.Event{{Type: workspace.EvWheel, DY: -100, X: 400}})
	require.NoError(t, err)

	n, err := m.SaveAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, saves)
	assert.Equal(t, 1, st.Len())

	n, err = m.SaveAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRestore_CorruptLayoutFallsBack(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t, Preset{Indicators: []indicator.Config{{Kind: "sma"}}})
	var fallbacks int
	m.opt.Observer.OnFallback = func(n int) { fallbacks += n }
	require.NoError(t, st.SaveLayoutJSON(ctx, layout.Key(key), []byte(`{"version":1,"drawings":`)))

	_, snap, err := m.Open(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, snap.Objects)
	assert.Empty(t, snap.Indicators, "a stored layout, even a corrupt one, suppresses the preset")
	assert.Equal(t, 1, fallbacks)
}

func TestConcurrentApply(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, Preset{})
	id, _, err := m.Open(ctx, key)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Apply(ctx, id, []workspace.Event{{Type: workspace.EvHover, X: float64(100 + i*10), Y: 200}})
			assert.NoError(t, err)
			_, err = m.Dump(id)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, m.List(), 1)
	assert.Len(t, m.Kinds(), indicator.Default().Len())
	assert.Len(t, m.DrawingTypes(), 10)
}
