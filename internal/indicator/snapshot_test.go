package indicator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigs_JSONRoundTripThroughReload(t *testing.T) {
	src := NewEngine(nil, nil)
	src.Add("sma", Inputs{"length": 50})
	src.Add("macd", Inputs{"fast": 8})

	data, err := json.Marshal(src.Configs())
	require.NoError(t, err)

	var cfgs []Config
	require.NoError(t, json.Unmarshal(data, &cfgs))

	dst := NewEngine(nil, nil)
	preserved, created, dropped := dst.Reload(cfgs)
	assert.Equal(t, 0, preserved)
	assert.Equal(t, 2, created)
	assert.Empty(t, dropped)

	got := dst.Instances()
	require.Len(t, got, 2)
	assert.Equal(t, src.Instances()[0].ID, got[0].ID)
	assert.Equal(t, 50, got[0].Inputs.Int("length"), "float64 from JSON normalises back to int")
	assert.Equal(t, 8, got[1].Inputs.Int("fast"))
	assert.Equal(t, 26, got[1].Inputs.Int("slow"))
}

func TestReload_PreservesUnchangedAndDropsUnknown(t *testing.T) {
	eng := NewEngine(nil, nil)
	keep, _ := eng.Add("ema", Inputs{"length": 21})
	change, _ := eng.Add("rsi", nil)
	eng.Flush(noisyBars(60, 6))

	cfgs := eng.Configs()
	cfgs[1].Inputs = Inputs{"length": 7}
	cfgs = append(cfgs, Config{ID: "x", Kind: "not-a-kind"}, Config{Kind: "wma"})

	preserved, created, dropped := eng.Reload(cfgs)
	assert.Equal(t, 1, preserved)
	assert.Equal(t, 2, created)
	require.Len(t, dropped, 1)
	assert.ErrorIs(t, dropped[0], ErrUnknownKind)

	insts := eng.Instances()
	require.Len(t, insts, 3)
	assert.Same(t, keep, insts[0], "unchanged instance keeps its computed lines")
	assert.Equal(t, StateReady, insts[0].State)
	assert.Equal(t, change.ID, insts[1].ID)
	assert.Equal(t, StateComputing, insts[1].State)
	assert.NotEmpty(t, insts[2].ID, "configs without id get a fresh one")
	assert.Equal(t, 2, eng.Pending())
}

func TestValidateConfigs(t *testing.T) {
	reg := Default()
	assert.NoError(t, ValidateConfigs(reg, []Config{{Kind: "sma"}, {Kind: "ema", Inputs: Inputs{"length": 50}}}))
	assert.ErrorIs(t, ValidateConfigs(reg, []Config{{Kind: "smaa"}}), ErrUnknownKind)
	assert.Error(t, ValidateConfigs(reg, []Config{{ID: "a", Kind: "sma"}, {ID: "a", Kind: "ema"}}))
}

func TestSnapshot_IsDetached(t *testing.T) {
	eng := NewEngine(nil, nil)
	inst, _ := eng.Add("sma", nil)
	eng.Flush(noisyBars(20, 1))

	snap := eng.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Inputs["length"] = 99
	assert.Equal(t, 9, inst.Inputs.Int("length"))
}
