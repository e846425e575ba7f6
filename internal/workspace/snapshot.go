package workspace

import (
	"chartdesk/internal/drawing"
	"chartdesk/internal/hover"
	"chartdesk/internal/indicator"
	"chartdesk/internal/scale"
	"chartdesk/internal/series"
)

// Render describes the pane geometry the snapshot was taken with.
type Render struct {
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	VisibleFrom float64 `json:"visibleFrom"`
	VisibleTo   float64 `json:"visibleTo"`
	Passes      uint64  `json:"passes"`
	Generation  uint64  `json:"generation"`
}

// UI is the interaction state a host needs to draw chrome.
type UI struct {
	Tool     drawing.ToolState `json:"tool"`
	Selected string            `json:"selected,omitempty"`
	Legend   hover.Legend      `json:"legend"`
}

// SeriesView summarises one loaded series.
type SeriesView struct {
	Symbol    string        `json:"symbol"`
	Timeframe string        `json:"timeframe"`
	Bars      int           `json:"bars"`
	Bounds    series.Bounds `json:"bounds"`
}

// SeriesInfo lists the loaded series.
type SeriesInfo struct {
	Base     *SeriesView  `json:"base"`
	Compares []SeriesView `json:"compares"`
}

// Snapshot is the complete, JSON-serialisable state of a workspace.
type Snapshot struct {
	Render     Render               `json:"render"`
	UI         UI                   `json:"ui"`
	Objects    []drawing.View       `json:"objects"`
	Indicators []indicator.Instance `json:"indicators"`
	Hover      hover.State          `json:"hover"`
	Scale      scale.State          `json:"scale"`
	DataBounds *series.Bounds       `json:"dataBounds"`
	Series     SeriesInfo           `json:"series"`
}

func viewOf(s *series.Series) SeriesView {
	return SeriesView{Symbol: s.Key().Symbol, Timeframe: s.Key().Timeframe, Bars: s.Len(), Bounds: s.Bounds()}
}

// Dump returns the current state. It never mutates the workspace.
func (w *Workspace) Dump() Snapshot {
	m := w.scale.Mapper()
	vp := m.Viewport()
	from, to := m.VisibleLogicalRange()
	hs := w.hover.State()
	insts := w.ind.Snapshot()

	snap := Snapshot{
		Render: Render{
			Width:       vp.Width,
			Height:      vp.Height,
			VisibleFrom: from,
			VisibleTo:   to,
			Passes:      w.passes,
			Generation:  w.store.Generation(),
		},
		UI:         UI{Tool: w.draw.State()},
		Objects:    w.draw.Views(w.projector(), vp.Width, vp.Height),
		Indicators: insts,
		Hover:      hs,
		Scale:      w.scale.State(),
		Series:     SeriesInfo{Compares: []SeriesView{}},
	}
	snap.UI.Selected, _ = w.draw.Selected()

	var baseSymbol string
	if b := w.store.Base(); b != nil {
		v := viewOf(b)
		snap.Series.Base = &v
		bounds := b.Bounds()
		snap.DataBounds = &bounds
		baseSymbol = b.Key().Symbol
	}
	for _, c := range w.store.Compares() {
		snap.Series.Compares = append(snap.Series.Compares, viewOf(c))
	}
	snap.UI.Legend = hover.BuildLegend(baseSymbol, hs, insts)
	return snap
}
