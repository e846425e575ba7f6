// Package scale owns the price and time scale state of a pane and the
// interactions that change it: auto-fit, axis drags, wheel zoom and mode
// toggles.
//
// Mode and AutoScale are orthogonal. No operation that sets one touches the
// other.
package scale

import (
	"errors"
	"fmt"
	"math"

	"chartdesk/internal/coord"
)

var (
	ErrBadMode    = errors.New("unknown scale mode")
	ErrBadSpacing = errors.New("bar spacing must be positive")
)

// Tuning defaults.
const (
	DefaultBarSpacing  = 6.0
	MinBarSpacing      = 0.5
	MaxBarSpacing      = 50.0
	DefaultPivotWeight = 1.0
	DefaultRightOffset = 3.0 // empty bars right of the last bar

	fitMargin        = 0.05
	wheelSensitivity = 0.002 // per wheel delta unit
	axisSensitivity  = 0.005 // per dragged pixel
)

// Range is a price interval, From at the bottom of the pane.
type Range struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// State is the externally visible scale state.
type State struct {
	Mode       coord.Mode `json:"mode"`
	AutoScale  bool       `json:"autoScale"`
	BarSpacing float64    `json:"barSpacing"`
	PriceRange Range      `json:"priceRange"`
	RightEdge  float64    `json:"rightEdge"`
}

// Prefs is the part of the scale state that persists with a layout.
type Prefs struct {
	Mode       coord.Mode `json:"mode"`
	AutoScale  bool       `json:"autoScale"`
	BarSpacing float64    `json:"barSpacing"`
}

// Options tunes a Controller. Zero fields take the defaults.
type Options struct {
	BarSpacing    float64
	MinBarSpacing float64
	MaxBarSpacing float64
	PivotWeight   float64 // 1 holds the bar under the cursor exactly, 0 holds the right edge
	RightOffset   float64
}

func (o Options) withDefaults() Options {
	if o.BarSpacing <= 0 {
		o.BarSpacing = DefaultBarSpacing
	}
	if o.MinBarSpacing <= 0 {
		o.MinBarSpacing = MinBarSpacing
	}
	if o.MaxBarSpacing <= o.MinBarSpacing {
		o.MaxBarSpacing = max(MaxBarSpacing, o.MinBarSpacing*2)
	}
	if o.PivotWeight <= 0 || o.PivotWeight > 1 {
		o.PivotWeight = DefaultPivotWeight
	}
	if o.RightOffset <= 0 {
		o.RightOffset = DefaultRightOffset
	}
	return o
}

// Controller mutates the scale state of one pane.
type Controller struct {
	opt    Options
	st     State
	vp     coord.Viewport
	anchor float64
}

// New returns a controller in linear, auto-scaled mode.
func New(vp coord.Viewport, opt Options) *Controller {
	opt = opt.withDefaults()
	return &Controller{
		opt: opt,
		vp:  vp,
		st: State{
			Mode:       coord.Linear,
			AutoScale:  true,
			BarSpacing: opt.BarSpacing,
			PriceRange: Range{From: 0, To: 1},
		},
	}
}

// State returns the current scale state.
func (c *Controller) State() State { return c.st }

// Viewport returns the pane size.
func (c *Controller) Viewport() coord.Viewport { return c.vp }

// Anchor returns the percent-mode reference price of the base series.
func (c *Controller) Anchor() float64 { return c.anchor }

// SetAnchor sets the percent-mode reference price.
func (c *Controller) SetAnchor(a float64) { c.anchor = a }

// Mapper builds a coordinate mapper for the current state.
func (c *Controller) Mapper() coord.Mapper {
	return coord.New(c.vp,
		coord.TimeAxis{BarSpacing: c.st.BarSpacing, RightEdge: c.st.RightEdge},
		coord.PriceAxis{Mode: c.st.Mode, From: c.st.PriceRange.From, To: c.st.PriceRange.To, Anchor: c.anchor},
	)
}

// Prefs returns the persisted subset of the state.
func (c *Controller) Prefs() Prefs {
	return Prefs{Mode: c.st.Mode, AutoScale: c.st.AutoScale, BarSpacing: c.st.BarSpacing}
}

// ApplyPrefs restores persisted preferences. Invalid values keep the current
// setting.
func (c *Controller) ApplyPrefs(p Prefs) {
	if p.Mode.Valid() {
		c.st.Mode = p.Mode
	}
	c.st.AutoScale = p.AutoScale
	if p.BarSpacing > 0 && !math.IsInf(p.BarSpacing, 0) {
		c.st.BarSpacing = c.clampSpacing(p.BarSpacing)
	}
}

// ────────────────────────────────────────────────────────────
// Mode and auto-scale
// ────────────────────────────────────────────────────────────

// SetAutoScale switches automatic fitting on or off.
func (c *Controller) SetAutoScale(on bool) { c.st.AutoScale = on }

// SetMode selects a price mode. Selecting the active mode again returns to
// linear.
func (c *Controller) SetMode(m coord.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("set mode %q: %w", m, ErrBadMode)
	}
	if m == c.st.Mode {
		m = coord.Linear
	}
	c.st.Mode = m
	return nil
}

// DoubleClickPriceAxis re-enables auto-scale. The next Fit applies it.
func (c *Controller) DoubleClickPriceAxis() { c.AutoFit() }

// AutoFit re-enables auto-scale.
func (c *Controller) AutoFit() { c.st.AutoScale = true }

// Fit sets a tight range around [lo, hi] with a small margin, measured in
// the transformed space of the active mode. It does nothing when auto-scale
// is off or the bounds are unusable.
func (c *Controller) Fit(lo, hi float64) bool {
	if !c.st.AutoScale || math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) || lo > hi {
		return false
	}
	tlo, thi := c.transform(lo), c.transform(hi)
	span := thi - tlo
	if span == 0 {
		span = math.Max(math.Abs(tlo)*0.01, 1e-6)
		tlo, thi = tlo-span/2, thi+span/2
	}
	c.setTransformed(tlo-span*fitMargin, thi+span*fitMargin)
	return true
}

func (c *Controller) transform(p float64) float64 { return coord.Transform(c.st.Mode, p, c.anchor) }

func (c *Controller) setTransformed(lo, hi float64) {
	c.st.PriceRange = Range{
		From: coord.Untransform(c.st.Mode, lo, c.anchor),
		To:   coord.Untransform(c.st.Mode, hi, c.anchor),
	}
}

// ────────────────────────────────────────────────────────────
// Price axis
// ────────────────────────────────────────────────────────────

// DragPriceAxis stretches the price range around its centre. Dragging down
// (dy > 0) widens the range, dragging up narrows it. Auto-scale turns off.
func (c *Controller) DragPriceAxis(dy float64) {
	c.st.AutoScale = false
	lo, hi := c.transform(c.st.PriceRange.From), c.transform(c.st.PriceRange.To)
	mid := (lo + hi) / 2
	half := (hi - lo) / 2 * math.Exp(dy*axisSensitivity)
	c.setTransformed(mid-half, mid+half)
}

// PanPrice scrolls the price range by dy pixels. Auto-scale turns off.
func (c *Controller) PanPrice(dy float64) {
	if c.vp.Height <= 0 {
		return
	}
	c.st.AutoScale = false
	lo, hi := c.transform(c.st.PriceRange.From), c.transform(c.st.PriceRange.To)
	shift := dy / c.vp.Height * (hi - lo)
	c.setTransformed(lo+shift, hi+shift)
}

// ────────────────────────────────────────────────────────────
// Time axis
// ────────────────────────────────────────────────────────────

func (c *Controller) clampSpacing(v float64) float64 {
	return math.Max(c.opt.MinBarSpacing, math.Min(c.opt.MaxBarSpacing, v))
}

// SetBarSpacing sets pixels per bar, clamped to the configured bounds.
func (c *Controller) SetBarSpacing(v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return fmt.Errorf("set bar spacing %v: %w", v, ErrBadSpacing)
	}
	c.st.BarSpacing = c.clampSpacing(v)
	return nil
}

// DragTimeAxis changes bar spacing keeping the right edge fixed. Dragging
// right (dx > 0) spreads bars apart.
func (c *Controller) DragTimeAxis(dx float64) {
	c.st.BarSpacing = c.clampSpacing(c.st.BarSpacing * math.Exp(dx*axisSensitivity))
}

// WheelZoom zooms the time axis around cursorX. Negative deltaY zooms in,
// positive zooms out. The logical index under the cursor is held in place
// in proportion to the pivot weight.
func (c *Controller) WheelZoom(deltaY, cursorX float64) {
	if deltaY == 0 || math.IsNaN(deltaY) {
		return
	}
	old := c.st.BarSpacing
	next := c.clampSpacing(old * math.Exp(-deltaY*wheelSensitivity))
	if next == old {
		return
	}
	pivot := c.st.RightEdge - (c.vp.Width-cursorX)/old
	held := pivot + (c.vp.Width-cursorX)/next
	w := c.opt.PivotWeight
	c.st.RightEdge = w*held + (1-w)*c.st.RightEdge
	c.st.BarSpacing = next
}

// PanTime scrolls horizontally. Dragging right (dx > 0) reveals older bars.
func (c *Controller) PanTime(dx float64) {
	c.st.RightEdge -= dx / c.st.BarSpacing
}

// ScrollToRealtime puts the last bar near the right edge.
func (c *Controller) ScrollToRealtime(lastIndex int) {
	c.st.RightEdge = float64(lastIndex) + c.opt.RightOffset
}

// Resize changes the pane size. The right edge stays where it is.
func (c *Controller) Resize(width, height float64) {
	c.vp = coord.Viewport{Width: math.Max(width, 0), Height: math.Max(height, 0)}
}
