package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartdesk/internal/coord"
	"chartdesk/internal/drawing"
	"chartdesk/internal/indicator"
	"chartdesk/internal/model"
)

func TestSwitchBase_ReconcilesComparesAndRestoresLayout(t *testing.T) {
	w := loaded(t)
	require.NoError(t, w.AddCompare(model.SeriesKey{Symbol: "BBB", Timeframe: "1"}, synthBars(50, 1)))
	require.NoError(t, w.AddCompare(model.SeriesKey{Symbol: "CCC", Timeframe: "1"}, synthBars(50, 2)))
	_, err := w.AddIndicator("sma", indicator.Inputs{"length": 5})
	require.NoError(t, err)
	require.NoError(t, w.ArmTool(drawing.Note))
	x, y := px(w, 10, 100)
	w.Click(x, y)
	require.Len(t, w.Drawings(), 1)

	sw := &Switch{
		Compares: []CompareBars{
			{Key: model.SeriesKey{Symbol: "BBB", Timeframe: "60"}, Bars: synthBars(40, 1)},
			{Key: model.SeriesKey{Symbol: "DDD", Timeframe: "60"}, Bars: synthBars(40, 3)},
		},
		Layout: Layout{Scale: w.Layout().Scale},
	}
	require.NoError(t, w.SwitchBase(model.SeriesKey{Symbol: "AAA", Timeframe: "60"}, synthBars(40, 0), sw))

	assert.True(t, sw.Applied)
	assert.Empty(t, sw.Dropped)
	assert.Equal(t, model.SeriesKey{Symbol: "AAA", Timeframe: "1"}, sw.From)
	assert.Len(t, sw.Outgoing.Drawings, 1)
	assert.Len(t, sw.Outgoing.Indicators, 1)
	assert.Len(t, sw.Outgoing.Compares, 2)

	assert.Equal(t, []model.SeriesKey{
		{Symbol: "BBB", Timeframe: "60"},
		{Symbol: "DDD", Timeframe: "60"},
	}, w.CompareKeys())
	snap := w.Dump()
	require.Len(t, snap.Series.Compares, 2)
	assert.Equal(t, 40, snap.Series.Compares[0].Bars)
	assert.Empty(t, snap.Objects)
	assert.Empty(t, snap.Indicators)
}

func TestSwitchBase_BadBarsLeaveStateAlone(t *testing.T) {
	w := loaded(t)
	require.NoError(t, w.AddCompare(model.SeriesKey{Symbol: "BBB", Timeframe: "1"}, synthBars(50, 1)))
	bad := synthBars(5, 0)
	bad[3].Time = bad[1].Time

	sw := &Switch{}
	err := w.SwitchBase(model.SeriesKey{Symbol: "ZZZ", Timeframe: "1"}, bad, sw)
	require.Error(t, err)
	assert.False(t, sw.Applied)
	k, _ := w.BaseKey()
	assert.Equal(t, "AAA", k.Symbol)
	assert.Len(t, w.CompareKeys(), 1)
}

func TestLoadBase_ComparedSymbolLeavesCompares(t *testing.T) {
	w := loaded(t)
	require.NoError(t, w.AddCompare(model.SeriesKey{Symbol: "BBB", Timeframe: "1"}, synthBars(50, 1)))
	require.NoError(t, w.SetMode(coord.Percent))
	_, ok := w.hover.Anchor("BBB")
	require.True(t, ok)

	require.NoError(t, w.Apply(Event{Type: EvLoadBase, Symbol: "BBB", Timeframe: "1", Bars: synthBars(50, 1)}))
	k, _ := w.BaseKey()
	assert.Equal(t, "BBB", k.Symbol)
	assert.Empty(t, w.CompareKeys())
	a, ok := w.hover.Anchor("BBB")
	require.True(t, ok)
	assert.Equal(t, w.scale.Anchor(), a, "BBB now anchors the scale")
	_, ok = w.hover.Anchor("AAA")
	assert.False(t, ok)
}
