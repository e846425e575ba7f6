package hover

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartdesk/internal/coord"
	"chartdesk/internal/indicator"
	"chartdesk/internal/model"
	"chartdesk/internal/series"
)

const start int64 = 1_700_000_000

func linearBars(n int, base, slope float64, skip map[int]bool) []model.Bar {
	var bars []model.Bar
	for i := 0; i < n; i++ {
		if skip[i] {
			continue
		}
		c := base + slope*float64(i)
		bars = append(bars, model.Bar{
			Time: start + int64(i)*60, Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 1000,
		})
	}
	return bars
}

func newStore(t *testing.T) *series.Store {
	t.Helper()
	st := series.NewStore(0)
	require.NoError(t, st.ReplaceBase(model.SeriesKey{Symbol: "AAA", Timeframe: "1"}, linearBars(50, 100, 1, nil)))
	require.NoError(t, st.AddCompare(model.SeriesKey{Symbol: "BBB", Timeframe: "1"}, linearBars(50, 200, 2, map[int]bool{10: true})))
	return st
}

func mapper(mode coord.Mode, anchor, rightEdge float64) coord.Mapper {
	return coord.New(
		coord.Viewport{Width: 500, Height: 300},
		coord.TimeAxis{BarSpacing: 10, RightEdge: rightEdge},
		coord.PriceAxis{Mode: mode, From: 90, To: 160, Anchor: anchor},
	)
}

func TestHoverAt_ResolvesBaseAndCompares(t *testing.T) {
	st := newStore(t)
	m := mapper(coord.Linear, 0, 49)
	h := New()

	got := h.HoverAt(m, st, m.ToPixelX(12.2), 150)
	require.True(t, got.Active)
	assert.Equal(t, 12, got.Index)
	assert.Equal(t, start+12*60, got.Time)
	assert.Equal(t, 112.0, got.Base.Price)
	assert.Nil(t, got.Base.Percent, "no percent outside percent mode")
	assert.Equal(t, m.ToPixelX(12), got.X, "x snaps to the bar")
	assert.InDelta(t, m.ToPrice(150), got.CursorPrice, 1e-9)
	assert.Equal(t, 112.0, got.Bar.Close)

	b := got.Compares["BBB"]
	assert.Equal(t, 224.0, b.PriceAtCursor)
	assert.Equal(t, 24.0, b.ChangeAbs)
	assert.InDelta(t, 12.0, b.ChangePct, 1e-9)
	assert.Nil(t, b.PercentAtCursor)
}

func TestHoverAt_CompareFallsBackToNearestBar(t *testing.T) {
	st := newStore(t)
	m := mapper(coord.Linear, 0, 49)
	got := New().HoverAt(m, st, m.ToPixelX(10), 100)
	require.True(t, got.Active)
	// BBB has no bar 10; bars 9 and 11 are equidistant and the earlier wins
	assert.Equal(t, 218.0, got.Compares["BBB"].PriceAtCursor)
}

func TestHoverAt_OutsideBoundsInactive(t *testing.T) {
	st := newStore(t)
	h := New()

	m := mapper(coord.Linear, 0, 60) // bars end at 49, pane extends to 60
	assert.False(t, h.HoverAt(m, st, m.ToPixelX(55), 100).Active)
	assert.False(t, h.HoverAt(m, st, -5, 100).Active)
	assert.False(t, h.HoverAt(m, st, 100, 301).Active)

	empty := series.NewStore(0)
	assert.False(t, h.HoverAt(m, empty, 100, 100).Active)
}

func TestHoverAtLogical_PlacesCursorOnClose(t *testing.T) {
	st := newStore(t)
	m := mapper(coord.Linear, 0, 49)
	got := New().HoverAtLogical(m, st, 20.4)
	require.True(t, got.Active)
	assert.Equal(t, 20, got.Index)
	assert.InDelta(t, m.ToPixelY(120), got.Y, 1e-9)
	assert.InDelta(t, 120, got.CursorPrice, 1e-9)
}

func TestPercentAnchors(t *testing.T) {
	st := newStore(t)
	h := New()

	// first visible logical index is -1, clamped to bar 0
	lin := mapper(coord.Linear, 0, 49)
	anchor := h.CaptureAnchors(lin, st)
	assert.Equal(t, 100.0, anchor)

	pm := mapper(coord.Percent, anchor, 49)
	got := h.HoverAt(pm, st, pm.ToPixelX(10), 100)
	require.True(t, got.Active)
	require.NotNil(t, got.Base.Percent)
	assert.InDelta(t, 10.0, *got.Base.Percent, 1e-9)
	require.NotNil(t, got.Compares["BBB"].PercentAtCursor)
	assert.InDelta(t, (218.0/200-1)*100, *got.Compares["BBB"].PercentAtCursor, 1e-9)

	// change figures do not depend on the mode
	linGot := h.HoverAt(lin, st, lin.ToPixelX(10), 100)
	assert.Equal(t, linGot.Compares["BBB"].ChangePct, got.Compares["BBB"].ChangePct)

	// anchors stay fixed while engaged, even after scrolling
	scrolled := mapper(coord.Percent, anchor, 80)
	assert.Equal(t, 100.0, h.CaptureAnchors(scrolled, st))

	h.ReleaseAnchors()
	assert.Equal(t, 130.0, h.CaptureAnchors(scrolled, st), "re-engaging anchors on the first visible bar")
	a, ok := h.Anchor("BBB")
	require.True(t, ok)
	assert.Equal(t, 260.0, a)
}

func TestRefreshFollowsMapper(t *testing.T) {
	st := newStore(t)
	h := New()
	m := mapper(coord.Linear, 0, 49)
	h.HoverAt(m, st, 400, 100)
	idx := h.State().Index

	scrolled := mapper(coord.Linear, 0, 45)
	assert.Equal(t, idx-4, h.Refresh(scrolled, st).Index, "same pixel, different bar")

	h.Clear()
	assert.False(t, h.Refresh(m, st).Active)
}

func TestLegend_MatchesHover(t *testing.T) {
	st := newStore(t)
	h := New()
	anchor := h.CaptureAnchors(mapper(coord.Linear, 0, 49), st)
	pm := mapper(coord.Percent, anchor, 49)

	for _, i := range []float64{3, 17, 33.3, 49} {
		hs := h.HoverAt(pm, st, pm.ToPixelX(i), 120)
		require.True(t, hs.Active)
		lg := BuildLegend("AAA", hs, nil)
		require.True(t, lg.Base.Percent.Visible)
		shown, err := decimal.NewFromString(strings.TrimSuffix(lg.Base.Percent.Value, "%"))
		require.NoError(t, err)
		f, _ := shown.Float64()
		assert.InDelta(t, *hs.Base.Percent, f, 0.005)
		assert.Equal(t, "AAA", lg.Base.Symbol)
		require.Len(t, lg.Compares, 1)
		assert.Equal(t, "BBB", lg.Compares[0].Symbol)
	}
}

func TestLegend_InactiveHidesEverything(t *testing.T) {
	eng := indicator.NewEngine(nil, nil)
	_, err := eng.Add("sma", indicator.Inputs{"length": 5})
	require.NoError(t, err)
	st := newStore(t)
	eng.Flush(st.BaseBars())

	lg := BuildLegend("AAA", State{}, eng.Snapshot())
	assert.False(t, lg.Base.Price.Visible)
	assert.False(t, lg.Base.Percent.Visible)
	for _, e := range lg.DataWindow {
		assert.False(t, e.Visible, e.Label)
		assert.Empty(t, e.Value)
	}
	require.Len(t, lg.Indicators, 1)
	for _, e := range lg.Indicators[0].Values {
		assert.False(t, e.Visible)
	}
	assert.Empty(t, lg.Compares)
}

func TestLegend_IndicatorValuesAtCursor(t *testing.T) {
	eng := indicator.NewEngine(nil, nil)
	_, err := eng.Add("sma", indicator.Inputs{"length": 5})
	require.NoError(t, err)
	st := newStore(t)
	eng.Flush(st.BaseBars())
	m := mapper(coord.Linear, 0, 49)
	h := New()

	warm := BuildLegend("AAA", h.HoverAt(m, st, m.ToPixelX(2), 100), eng.Snapshot())
	assert.False(t, warm.Indicators[0].Values[0].Visible, "warm-up is whitespace")

	ready := BuildLegend("AAA", h.HoverAt(m, st, m.ToPixelX(10), 100), eng.Snapshot())
	v := ready.Indicators[0].Values[0]
	assert.True(t, v.Visible)
	assert.Equal(t, "108.00", v.Value)
	assert.Equal(t, "110.00", ready.DataWindow[3].Value)
	assert.Equal(t, "1000", ready.DataWindow[4].Value)
}
