// Package workspace is the explicit state container of one chart: the series
// store, indicator engine, drawing model, scale controller and hover
// synchronizer, plus the fixed recompute order that keeps them consistent.
//
// Every host operation mutates state and then runs one settle pass:
// indicator flush, auto-scale fit, hover re-resolve. Batches settle once.
// A Workspace has no locks and starts no goroutines; callers serialise access.
package workspace

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"chartdesk/internal/coord"
	"chartdesk/internal/drawing"
	"chartdesk/internal/hover"
	"chartdesk/internal/indicator"
	"chartdesk/internal/model"
	"chartdesk/internal/scale"
	"chartdesk/internal/series"
)

// Hooks observe the engine; nil hooks are skipped.
type Hooks struct {
	OnSettle  func(took time.Duration)
	OnCompute indicator.ComputeHook
}

// Options configures a Workspace. Zero values select defaults.
type Options struct {
	Viewport    coord.Viewport
	MaxCompares int
	Scale       scale.Options
	Registry    *indicator.Registry
	Logger      *slog.Logger
	Hooks       Hooks
}

// Workspace is one chart instance.
type Workspace struct {
	log   *slog.Logger
	hooks Hooks

	store *series.Store
	ind   *indicator.Engine
	draw  *drawing.Model
	scale *scale.Controller
	hover *hover.Synchronizer

	passes uint64
}

// New builds an empty workspace.
func New(opt Options) *Workspace {
	log := opt.Logger
	if log == nil {
		log = slog.Default()
	}
	if opt.Viewport.Width <= 0 || opt.Viewport.Height <= 0 {
		opt.Viewport = coord.Viewport{Width: 800, Height: 600}
	}
	w := &Workspace{
		log:   log.With("component", "workspace"),
		hooks: opt.Hooks,
		store: series.NewStore(opt.MaxCompares),
		ind:   indicator.NewEngine(opt.Registry, log),
		draw:  drawing.New(log),
		scale: scale.New(opt.Viewport, opt.Scale),
		hover: hover.New(),
	}
	if opt.Hooks.OnCompute != nil {
		w.ind.SetHook(opt.Hooks.OnCompute)
	}
	return w
}

// Passes returns how many settle passes have run.
func (w *Workspace) Passes() uint64 { return w.passes }

// Registry returns the indicator registry in use.
func (w *Workspace) Registry() *indicator.Registry { return w.ind.Registry() }

// BaseKey returns the key of the base series, if loaded.
func (w *Workspace) BaseKey() (model.SeriesKey, bool) {
	if b := w.store.Base(); b != nil {
		return b.Key(), true
	}
	return model.SeriesKey{}, false
}

// CompareKeys lists the loaded compare series.
func (w *Workspace) CompareKeys() []model.SeriesKey {
	cs := w.store.Compares()
	out := make([]model.SeriesKey, len(cs))
	for i, s := range cs {
		out[i] = s.Key()
	}
	return out
}

// run applies fn and settles once, even when fn fails.
func (w *Workspace) run(fn func() error) error {
	err := fn()
	w.settle()
	return err
}

// settle runs the fixed recompute order.
func (w *Workspace) settle() {
	start := time.Now()
	w.passes++

	w.ind.Flush(w.store.BaseBars())

	if w.scale.State().Mode == coord.Percent {
		w.scale.SetAnchor(w.hover.CaptureAnchors(w.scale.Mapper(), w.store))
	}
	if lo, hi, ok := w.visibleExtent(); ok {
		w.scale.Fit(lo, hi)
	}

	w.hover.Refresh(w.scale.Mapper(), w.store)

	if w.hooks.OnSettle != nil {
		w.hooks.OnSettle(time.Since(start))
	}
}

// visibleExtent is the price span auto-scale fits: base highs and lows,
// overlay indicator values and, in percent mode, compares rebased onto the
// base anchor.
func (w *Workspace) visibleExtent() (lo, hi float64, ok bool) {
	base := w.store.Base()
	if base == nil || base.Len() == 0 {
		return 0, 0, false
	}
	from, to := w.scale.Mapper().VisibleLogicalRange()
	i0 := max(0, int(math.Floor(from)))
	i1 := min(base.Len()-1, int(math.Ceil(to)))
	if i0 > i1 {
		return 0, 0, false
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for i := i0; i <= i1; i++ {
		b := base.At(i)
		lo, hi = math.Min(lo, b.Low), math.Max(hi, b.High)
	}

	for _, inst := range w.ind.Instances() {
		spec, err := w.ind.Registry().Lookup(inst.Kind)
		if err != nil || !spec.Overlay || inst.State != indicator.StateReady {
			continue
		}
		for _, line := range inst.Lines {
			for i := i0; i <= i1; i++ {
				if v, ok := line.At(i); ok {
					lo, hi = math.Min(lo, v), math.Max(hi, v)
				}
			}
		}
	}

	if w.scale.State().Mode == coord.Percent {
		baseAnchor := w.scale.Anchor()
		t0, t1 := base.At(i0).Time, base.At(i1).Time
		for _, cs := range w.store.Compares() {
			a, ok := w.hover.Anchor(cs.Key().Symbol)
			if !ok || a == 0 || baseAnchor == 0 {
				continue
			}
			for _, b := range cs.Bars() {
				if b.Time < t0 || b.Time > t1 {
					continue
				}
				lo = math.Min(lo, baseAnchor*b.Low/a)
				hi = math.Max(hi, baseAnchor*b.High/a)
			}
		}
	}
	return lo, hi, true
}

// projector adapts the current mapper and base series to the drawing model.
func (w *Workspace) projector() drawing.Projector {
	base := w.store.Base()
	if base == nil {
		base, _ = series.New(model.SeriesKey{}, nil)
	}
	return projector{m: w.scale.Mapper(), s: base}
}

type projector struct {
	m coord.Mapper
	s *series.Series
}

func (p projector) ToPoint(x, y float64) (int64, float64) {
	return p.s.TimeAtLogical(p.m.ToLogical(x)), p.m.ToPrice(y)
}

func (p projector) ToPixel(ms int64, price float64) (float64, float64) {
	return p.m.ToPixelX(p.s.LogicalAtTime(ms)), p.m.ToPixelY(price)
}

// ────────────────────────────────────────────────────────────
// Series
// ────────────────────────────────────────────────────────────

// LoadBase replaces the base series, scrolls to the latest bar and
// recomputes every indicator.
func (w *Workspace) LoadBase(key model.SeriesKey, bars []model.Bar) error {
	return w.run(func() error { return w.loadBase(key, bars) })
}

func (w *Workspace) loadBase(key model.SeriesKey, bars []model.Bar) error {
	promoted := w.store.Compare(key.Symbol) != nil
	if err := w.store.ReplaceBase(key, bars); err != nil {
		return err
	}
	if promoted {
		w.log.Info("compare promoted to base", "symbol", key.Symbol)
	}
	w.ind.Invalidate()
	w.hover.ReleaseAnchors()
	w.scale.ScrollToRealtime(len(bars) - 1)
	w.log.Info("base loaded", "series", key.String(), "bars", len(bars))
	return nil
}

// AddCompare overlays another symbol.
func (w *Workspace) AddCompare(key model.SeriesKey, bars []model.Bar) error {
	return w.run(func() error { return w.addCompare(key, bars) })
}

func (w *Workspace) addCompare(key model.SeriesKey, bars []model.Bar) error {
	if err := w.store.AddCompare(key, bars); err != nil {
		return err
	}
	w.log.Info("compare added", "series", key.String(), "bars", len(bars))
	return nil
}

// RemoveCompare drops a compare series and its percent anchor.
func (w *Workspace) RemoveCompare(symbol string) error {
	return w.run(func() error { return w.removeCompare(symbol) })
}

func (w *Workspace) removeCompare(symbol string) error {
	if err := w.store.RemoveCompare(symbol); err != nil {
		return err
	}
	w.hover.DropAnchor(symbol)
	return nil
}

// ────────────────────────────────────────────────────────────
// Indicators
// ────────────────────────────────────────────────────────────

// AddIndicator adds an instance and returns its id. It is computed in the
// same call.
func (w *Workspace) AddIndicator(kind string, in indicator.Inputs) (string, error) {
	var id string
	err := w.run(func() error {
		inst, err := w.ind.Add(kind, in)
		if err != nil {
			return err
		}
		id = inst.ID
		return nil
	})
	return id, err
}

// RemoveIndicator removes an instance.
func (w *Workspace) RemoveIndicator(id string) error {
	return w.run(func() error { return w.ind.Remove(id) })
}

// SetIndicatorInputs merges inputs into an instance and recomputes it.
func (w *Workspace) SetIndicatorInputs(id string, in indicator.Inputs) error {
	return w.run(func() error { return w.ind.SetInputs(id, in) })
}

// ────────────────────────────────────────────────────────────
// Scale
// ────────────────────────────────────────────────────────────

func (w *Workspace) setMode(m coord.Mode) error {
	if err := w.scale.SetMode(m); err != nil {
		return err
	}
	w.hover.ReleaseAnchors()
	if w.scale.State().Mode == coord.Percent {
		w.scale.SetAnchor(w.hover.CaptureAnchors(w.scale.Mapper(), w.store))
	} else {
		w.scale.SetAnchor(0)
	}
	return nil
}

func (w *Workspace) scrollToRealtime() {
	if b := w.store.Base(); b != nil {
		w.scale.ScrollToRealtime(b.Len() - 1)
	}
}

// SetMode toggles the price scale mode. Entering percent mode anchors every
// series on its first visible bar.
func (w *Workspace) SetMode(m coord.Mode) error {
	return w.run(func() error { return w.setMode(m) })
}

// SetAutoScale switches auto-scale.
func (w *Workspace) SetAutoScale(on bool) {
	_ = w.run(func() error { w.scale.SetAutoScale(on); return nil })
}

// Scale returns the current scale state.
func (w *Workspace) Scale() scale.State { return w.scale.State() }

// Hover returns the current hover state.
func (w *Workspace) Hover() hover.State { return w.hover.State() }

// Tool returns the drawing tool state.
func (w *Workspace) Tool() drawing.ToolState { return w.draw.State() }

// Drawings returns copies of the drawing objects.
func (w *Workspace) Drawings() []drawing.Object { return w.draw.Objects() }

// Indicators returns detached copies of the indicator instances.
func (w *Workspace) Indicators() []indicator.Instance { return w.ind.Snapshot() }

// Mapper returns the coordinate mapper for the current state.
func (w *Workspace) Mapper() coord.Mapper { return w.scale.Mapper() }

func errUnknownEvent(t EventType) error {
	return fmt.Errorf("event %q: %w", t, ErrUnknownEvent)
}
