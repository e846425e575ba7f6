// Package hover resolves the crosshair position into the numbers shown by the
// legend, the data window and the on-canvas readouts. All of them read one
// State, so they can never disagree.
package hover

import (
	"math"

	"chartdesk/internal/coord"
	"chartdesk/internal/series"
)

// Base is the readout of the base series under the cursor. Percent is set
// only in percent mode.
type Base struct {
	Price   float64  `json:"price"`
	Percent *float64 `json:"percent,omitempty"`
}

// Compare is the readout of one compare series under the cursor.
// ChangeAbs and ChangePct are measured from the series' first bar and do not
// depend on the scale mode.
type Compare struct {
	PriceAtCursor   float64  `json:"priceAtCursor"`
	PercentAtCursor *float64 `json:"percentAtCursor,omitempty"`
	ChangeAbs       float64  `json:"changeAbs"`
	ChangePct       float64  `json:"changePct"`
}

// OHLCV is the base bar under the cursor, for the data window.
type OHLCV struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// State is the resolved hover. When Active is false every other field is
// zero.
type State struct {
	Active      bool               `json:"active"`
	Index       int                `json:"index"`
	Time        int64              `json:"time"`
	X           float64            `json:"x"`
	Y           float64            `json:"y"`
	CursorPrice float64            `json:"cursorPrice"`
	Base        Base               `json:"base"`
	Bar         OHLCV              `json:"bar"`
	Compares    map[string]Compare `json:"compares"`
}

type cursor struct {
	set     bool
	logical bool
	x, y    float64
	index   float64
}

// Synchronizer keeps the cursor position and the percent-mode anchors and
// resolves them against the current series and mapper.
type Synchronizer struct {
	cur     cursor
	anchors map[string]float64 // symbol -> anchor close
	st      State
}

// New returns a synchronizer with no cursor.
func New() *Synchronizer {
	return &Synchronizer{anchors: map[string]float64{}}
}

// State returns the last resolved state.
func (h *Synchronizer) State() State {
	st := h.st
	if st.Compares != nil {
		cp := make(map[string]Compare, len(st.Compares))
		for k, v := range st.Compares {
			cp[k] = v
		}
		st.Compares = cp
	}
	return st
}

// HoverAt registers a pixel cursor position and resolves it.
func (h *Synchronizer) HoverAt(m coord.Mapper, st *series.Store, x, y float64) State {
	h.cur = cursor{set: true, x: x, y: y}
	return h.Refresh(m, st)
}

// HoverAtLogical registers a cursor on a logical index, placed vertically on
// the base close, and resolves it.
func (h *Synchronizer) HoverAtLogical(m coord.Mapper, st *series.Store, index float64) State {
	h.cur = cursor{set: true, logical: true, index: index}
	return h.Refresh(m, st)
}

// Clear forgets the cursor.
func (h *Synchronizer) Clear() {
	h.cur = cursor{}
	h.st = State{}
}

// Refresh re-resolves the registered cursor, for instance after a scale or
// series change.
func (h *Synchronizer) Refresh(m coord.Mapper, st *series.Store) State {
	h.st = h.resolve(m, st)
	return h.State()
}

func (h *Synchronizer) resolve(m coord.Mapper, st *series.Store) State {
	base := st.Base()
	if !h.cur.set || base == nil || base.Len() == 0 {
		return State{}
	}
	vp := m.Viewport()
	var logical, x, y float64
	if h.cur.logical {
		logical = h.cur.index
		x = m.ToPixelX(logical)
	} else {
		x, y = h.cur.x, h.cur.y
		if x < 0 || x > vp.Width || y < 0 || y > vp.Height {
			return State{}
		}
		logical = m.ToLogical(x)
	}
	idx := int(math.Round(logical))
	if idx < 0 || idx >= base.Len() {
		return State{}
	}
	bar := base.At(idx)
	if h.cur.logical {
		y = m.ToPixelY(bar.Close)
	}

	pa := m.PriceAxis()
	out := State{
		Active:      true,
		Index:       idx,
		Time:        bar.Time,
		X:           m.ToPixelX(float64(idx)),
		Y:           y,
		CursorPrice: m.ToPrice(y),
		Base:        Base{Price: bar.Close},
		Bar:         OHLCV{Open: bar.Open, High: bar.High, Low: bar.Low, Close: bar.Close, Volume: bar.Volume},
		Compares:    map[string]Compare{},
	}
	percent := pa.Mode == coord.Percent
	if percent {
		out.Base.Percent = h.percent(base.Key().Symbol, bar.Close)
	}
	for _, cs := range st.Compares() {
		if cs.Len() == 0 {
			continue
		}
		ci, ok := cs.IndexAtTime(bar.Time)
		if !ok {
			ci = cs.NearestIndex(bar.Time)
		}
		price := cs.At(ci).Close
		first := cs.At(0).Close
		c := Compare{PriceAtCursor: price, ChangeAbs: price - first}
		if first != 0 {
			c.ChangePct = (price/first - 1) * 100
		}
		if percent {
			c.PercentAtCursor = h.percent(cs.Key().Symbol, price)
		}
		out.Compares[cs.Key().Symbol] = c
	}
	return out
}

func (h *Synchronizer) percent(symbol string, price float64) *float64 {
	a, ok := h.anchors[symbol]
	if !ok || a == 0 {
		return nil
	}
	v := (price/a - 1) * 100
	return &v
}

// ────────────────────────────────────────────────────────────
// Percent anchors
// ────────────────────────────────────────────────────────────

// CaptureAnchors records, for every series without one, the close of its
// first visible bar. Existing anchors are kept, so anchors stay fixed while
// percent mode remains engaged. It returns the base anchor.
func (h *Synchronizer) CaptureAnchors(m coord.Mapper, st *series.Store) float64 {
	base := st.Base()
	if base == nil || base.Len() == 0 {
		return 0
	}
	from, _ := m.VisibleLogicalRange()
	i := int(math.Ceil(from))
	i = max(0, min(i, base.Len()-1))
	first := base.At(i)
	if _, ok := h.anchors[base.Key().Symbol]; !ok {
		h.anchors[base.Key().Symbol] = first.Close
	}
	for _, cs := range st.Compares() {
		if cs.Len() == 0 {
			continue
		}
		if _, ok := h.anchors[cs.Key().Symbol]; ok {
			continue
		}
		ci, ok := cs.IndexAtTime(first.Time)
		if !ok {
			ci = cs.NearestIndex(first.Time)
		}
		h.anchors[cs.Key().Symbol] = cs.At(ci).Close
	}
	return h.anchors[base.Key().Symbol]
}

// ReleaseAnchors forgets all anchors; called when percent mode is left or the
// base series is replaced.
func (h *Synchronizer) ReleaseAnchors() {
	h.anchors = map[string]float64{}
}

// Anchor returns the recorded anchor close of a symbol.
func (h *Synchronizer) Anchor(symbol string) (float64, bool) {
	a, ok := h.anchors[symbol]
	return a, ok
}

// DropAnchor forgets the anchor of one symbol.
func (h *Synchronizer) DropAnchor(symbol string) { delete(h.anchors, symbol) }
