package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_AddFlushStates(t *testing.T) {
	eng := NewEngine(nil, nil)
	inst, err := eng.Add("sma", Inputs{"length": 20})
	require.NoError(t, err)
	assert.Equal(t, StateComputing, inst.State)
	assert.Equal(t, 1, eng.Pending())

	bars := noisyBars(25, 4)
	assert.Equal(t, 1, eng.Flush(bars))
	assert.Equal(t, StateReady, inst.State)
	assert.Equal(t, 0, eng.Pending())
	assert.Equal(t, 0, eng.Flush(bars), "nothing pending, nothing recomputed")

	require.Len(t, inst.Lines, 1)
	assert.Equal(t, "sma", inst.Lines[0].Name)
	assert.Equal(t, bars[0].Time, inst.Lines[0].Values[0].Time)
}

func TestEngine_IDsUniqueAndDeterministic(t *testing.T) {
	a := NewEngine(nil, nil)
	b := NewEngine(nil, nil)
	x1, _ := a.Add("ema", nil)
	x2, _ := a.Add("ema", nil)
	y1, _ := b.Add("ema", nil)

	assert.NotEqual(t, x1.ID, x2.ID)
	assert.Equal(t, x1.ID, y1.ID, "same sequence of adds yields the same ids")
}

func TestEngine_SetInputs(t *testing.T) {
	eng := NewEngine(nil, nil)
	inst, _ := eng.Add("bbands", nil)
	eng.Flush(noisyBars(40, 2))

	// unchanged value: no recompute scheduled
	require.NoError(t, eng.SetInputs(inst.ID, Inputs{"length": 20}))
	assert.Equal(t, 0, eng.Pending())
	assert.Equal(t, StateReady, inst.State)

	require.NoError(t, eng.SetInputs(inst.ID, Inputs{"mult": 3}))
	assert.Equal(t, 1, eng.Pending())
	assert.Equal(t, StateComputing, inst.State)
	assert.Equal(t, 3.0, inst.Inputs.Float("mult"))
	assert.Equal(t, 20, inst.Inputs.Int("length"), "partial edit keeps other inputs")

	assert.ErrorIs(t, eng.SetInputs(inst.ID, Inputs{"nope": 1}), ErrBadInput)
	assert.ErrorIs(t, eng.SetInputs("missing", nil), ErrNotFound)
}

func TestEngine_RemoveAndInvalidate(t *testing.T) {
	eng := NewEngine(nil, nil)
	a, _ := eng.Add("sma", nil)
	b, _ := eng.Add("rsi", nil)
	eng.Flush(noisyBars(30, 1))

	eng.Invalidate()
	assert.Equal(t, 2, eng.Pending())
	assert.Equal(t, StateComputing, b.State)

	require.NoError(t, eng.Remove(a.ID))
	assert.ErrorIs(t, eng.Remove(a.ID), ErrNotFound)
	require.Len(t, eng.Instances(), 1)
	_, found := eng.Get(b.ID)
	assert.True(t, found)
}

func TestEngine_HookObservesComputes(t *testing.T) {
	eng := NewEngine(nil, nil)
	var kinds []string
	eng.SetHook(func(kind string, _ time.Duration, err error) {
		kinds = append(kinds, kind)
		assert.NoError(t, err)
	})
	eng.Add("sma", nil)
	eng.Add("macd", nil)
	eng.Flush(noisyBars(60, 3))
	assert.Equal(t, []string{"sma", "macd"}, kinds)
}
