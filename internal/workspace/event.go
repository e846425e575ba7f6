package workspace

import (
	"errors"
	"fmt"

	"chartdesk/internal/coord"
	"chartdesk/internal/drawing"
	"chartdesk/internal/indicator"
	"chartdesk/internal/model"
)

var (
	ErrUnknownEvent = errors.New("unknown event type")
	ErrBadEvent     = errors.New("malformed event")
)

// EventType names a host input.
type EventType string

const (
	EvLoadBase      EventType = "loadBase"
	EvAddCompare    EventType = "addCompare"
	EvRemoveCompare EventType = "removeCompare"

	EvAddIndicator    EventType = "addIndicator"
	EvRemoveIndicator EventType = "removeIndicator"
	EvSetInputs       EventType = "setInputs"

	EvArm         EventType = "arm"
	EvPointerDown EventType = "pointerDown"
	EvPointerMove EventType = "pointerMove"
	EvPointerUp   EventType = "pointerUp"
	EvClick       EventType = "click"
	EvKey         EventType = "key"
	EvEscape      EventType = "escape"
	EvDelete      EventType = "delete"
	EvSelect      EventType = "select"
	EvLock        EventType = "lock"
	EvHide        EventType = "hide"
	EvSetText     EventType = "setText"
	EvMovePoint   EventType = "movePoint"

	EvSetAutoScale     EventType = "setAutoScale"
	EvSetMode          EventType = "setMode"
	EvSetBarSpacing    EventType = "setBarSpacing"
	EvDragPriceAxis    EventType = "dragPriceAxis"
	EvDragTimeAxis     EventType = "dragTimeAxis"
	EvWheel            EventType = "wheel"
	EvDblClickPriceAx  EventType = "dblClickPriceAxis"
	EvAutoFit          EventType = "autoFit"
	EvPanTime          EventType = "panTime"
	EvPanPrice         EventType = "panPrice"
	EvResize           EventType = "resize"
	EvScrollToRealtime EventType = "scrollToRealtime"

	EvHover        EventType = "hover"
	EvHoverLogical EventType = "hoverLogical"
	EvClearHover   EventType = "clearHover"
)

// Event is one JSON- or YAML-encodable host input. Only the fields relevant
// to Type are read.
type Event struct {
	Type EventType `json:"type" yaml:"type"`

	X     float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Y     float64 `json:"y,omitempty" yaml:"y,omitempty"`
	DX    float64 `json:"dx,omitempty" yaml:"dx,omitempty"`
	DY    float64 `json:"dy,omitempty" yaml:"dy,omitempty"`
	Index float64 `json:"index,omitempty" yaml:"index,omitempty"`
	Value float64 `json:"value,omitempty" yaml:"value,omitempty"`
	On    *bool   `json:"on,omitempty" yaml:"on,omitempty"`

	// Kind is a drawing type, indicator kind or scale mode.
	Kind   string           `json:"kind,omitempty" yaml:"kind,omitempty"`
	ID     string           `json:"id,omitempty" yaml:"id,omitempty"`
	Key    string           `json:"key,omitempty" yaml:"key,omitempty"`
	Text   string           `json:"text,omitempty" yaml:"text,omitempty"`
	Inputs indicator.Inputs `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Point  *drawing.Point   `json:"point,omitempty" yaml:"point,omitempty"`
	Handle int              `json:"handle,omitempty" yaml:"handle,omitempty"`

	Symbol    string      `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Timeframe string      `json:"timeframe,omitempty" yaml:"timeframe,omitempty"`
	Bars      []model.Bar `json:"bars,omitempty" yaml:"bars,omitempty"`

	Width  float64 `json:"width,omitempty" yaml:"width,omitempty"`
	Height float64 `json:"height,omitempty" yaml:"height,omitempty"`

	// Switch turns a loadBase into a change of series. Hosts resolve it; it
	// never travels on the wire.
	Switch *Switch `json:"-" yaml:"-"`
}

// Apply applies one event and settles.
func (w *Workspace) Apply(e Event) error {
	return w.run(func() error { return w.apply(e) })
}

// ApplyBatch applies events in order and settles once. Failing events are
// skipped; their errors are joined in the result.
func (w *Workspace) ApplyBatch(events []Event) error {
	return w.run(func() error {
		var errs []error
		for i, e := range events {
			if err := w.apply(e); err != nil {
				errs = append(errs, fmt.Errorf("event %d: %w", i, err))
			}
		}
		return errors.Join(errs...)
	})
}

func (w *Workspace) apply(e Event) error {
	pr := w.projector()
	switch e.Type {
	case EvLoadBase:
		k := model.SeriesKey{Symbol: e.Symbol, Timeframe: e.Timeframe}
		if e.Switch != nil {
			return w.switchBase(k, e.Bars, e.Switch)
		}
		return w.loadBase(k, e.Bars)
	case EvAddCompare:
		return w.addCompare(model.SeriesKey{Symbol: e.Symbol, Timeframe: e.Timeframe}, e.Bars)
	case EvRemoveCompare:
		return w.removeCompare(e.Symbol)

	case EvAddIndicator:
		_, err := w.ind.Add(e.Kind, e.Inputs)
		return err
	case EvRemoveIndicator:
		return w.ind.Remove(e.ID)
	case EvSetInputs:
		return w.ind.SetInputs(e.ID, e.Inputs)

	case EvArm:
		return w.draw.Arm(drawing.Type(e.Kind))
	case EvPointerDown:
		w.draw.PointerDown(pr, e.X, e.Y)
	case EvPointerMove:
		w.draw.PointerMove(pr, e.X, e.Y)
		w.hover.HoverAt(w.scale.Mapper(), w.store, e.X, e.Y)
	case EvPointerUp:
		w.draw.PointerUp(pr, e.X, e.Y)
	case EvClick:
		w.draw.Click(pr, e.X, e.Y)
	case EvKey:
		return w.key(e.Key)
	case EvEscape:
		w.draw.Escape()
	case EvDelete:
		if e.ID != "" {
			return w.draw.Delete(e.ID)
		}
		w.draw.DeleteSelected()
	case EvSelect:
		return w.draw.Select(e.ID)
	case EvLock:
		_, err := w.draw.ToggleLock(e.ID)
		return err
	case EvHide:
		_, err := w.draw.ToggleHide(e.ID)
		return err
	case EvSetText:
		return w.draw.SetText(e.ID, e.Text)
	case EvMovePoint:
		if e.Point == nil {
			return fmt.Errorf("movePoint: %w: point required", ErrBadEvent)
		}
		return w.draw.MovePoint(e.ID, e.Handle, *e.Point)

	case EvSetAutoScale:
		if e.On == nil {
			return fmt.Errorf("setAutoScale: %w: on required", ErrBadEvent)
		}
		w.scale.SetAutoScale(*e.On)
	case EvSetMode:
		return w.setMode(coord.Mode(e.Kind))
	case EvSetBarSpacing:
		return w.scale.SetBarSpacing(e.Value)
	case EvDragPriceAxis:
		w.scale.DragPriceAxis(e.DY)
	case EvDragTimeAxis:
		w.scale.DragTimeAxis(e.DX)
	case EvWheel:
		w.scale.WheelZoom(e.DY, e.X)
	case EvDblClickPriceAx:
		w.scale.DoubleClickPriceAxis()
	case EvAutoFit:
		w.scale.AutoFit()
	case EvPanTime:
		w.scale.PanTime(e.DX)
	case EvPanPrice:
		w.scale.PanPrice(e.DY)
	case EvResize:
		w.scale.Resize(e.Width, e.Height)
	case EvScrollToRealtime:
		w.scrollToRealtime()

	case EvHover:
		w.hover.HoverAt(w.scale.Mapper(), w.store, e.X, e.Y)
	case EvHoverLogical:
		w.hover.HoverAtLogical(w.scale.Mapper(), w.store, e.Index)
	case EvClearHover:
		w.hover.Clear()

	default:
		return errUnknownEvent(e.Type)
	}
	return nil
}

func (w *Workspace) key(k string) error {
	switch k {
	case "Escape", "Esc":
		w.draw.Escape()
	case "Delete", "Backspace":
		w.draw.DeleteSelected()
	default:
		return fmt.Errorf("key %q: %w", k, ErrBadEvent)
	}
	return nil
}

// ────────────────────────────────────────────────────────────
// Typed wrappers
// ────────────────────────────────────────────────────────────

func (w *Workspace) ArmTool(t drawing.Type) error {
	return w.Apply(Event{Type: EvArm, Kind: string(t)})
}

func (w *Workspace) PointerDown(x, y float64) { _ = w.Apply(Event{Type: EvPointerDown, X: x, Y: y}) }
func (w *Workspace) PointerMove(x, y float64) { _ = w.Apply(Event{Type: EvPointerMove, X: x, Y: y}) }
func (w *Workspace) PointerUp(x, y float64)   { _ = w.Apply(Event{Type: EvPointerUp, X: x, Y: y}) }
func (w *Workspace) Click(x, y float64)       { _ = w.Apply(Event{Type: EvClick, X: x, Y: y}) }
func (w *Workspace) Escape()                  { _ = w.Apply(Event{Type: EvEscape}) }
func (w *Workspace) DeleteSelected()          { _ = w.Apply(Event{Type: EvDelete}) }

func (w *Workspace) DeleteDrawing(id string) error { return w.Apply(Event{Type: EvDelete, ID: id}) }
func (w *Workspace) SelectDrawing(id string) error { return w.Apply(Event{Type: EvSelect, ID: id}) }
func (w *Workspace) ToggleLock(id string) error    { return w.Apply(Event{Type: EvLock, ID: id}) }
func (w *Workspace) ToggleHide(id string) error    { return w.Apply(Event{Type: EvHide, ID: id}) }

func (w *Workspace) SetText(id, text string) error {
	return w.Apply(Event{Type: EvSetText, ID: id, Text: text})
}

func (w *Workspace) MovePoint(id string, idx int, p drawing.Point) error {
	return w.Apply(Event{Type: EvMovePoint, ID: id, Handle: idx, Point: &p})
}

func (w *Workspace) SetBarSpacing(v float64) error {
	return w.Apply(Event{Type: EvSetBarSpacing, Value: v})
}

func (w *Workspace) DragPriceAxis(dy float64)    { _ = w.Apply(Event{Type: EvDragPriceAxis, DY: dy}) }
func (w *Workspace) DragTimeAxis(dx float64)     { _ = w.Apply(Event{Type: EvDragTimeAxis, DX: dx}) }
func (w *Workspace) WheelZoom(deltaY, x float64) { _ = w.Apply(Event{Type: EvWheel, DY: deltaY, X: x}) }
func (w *Workspace) DoubleClickPriceAxis()       { _ = w.Apply(Event{Type: EvDblClickPriceAx}) }
func (w *Workspace) AutoFit()                    { _ = w.Apply(Event{Type: EvAutoFit}) }
func (w *Workspace) PanTime(dx float64)          { _ = w.Apply(Event{Type: EvPanTime, DX: dx}) }
func (w *Workspace) PanPrice(dy float64)         { _ = w.Apply(Event{Type: EvPanPrice, DY: dy}) }
func (w *Workspace) Resize(width, height float64) {
	_ = w.Apply(Event{Type: EvResize, Width: width, Height: height})
}
func (w *Workspace) ScrollToRealtime() { _ = w.Apply(Event{Type: EvScrollToRealtime}) }

func (w *Workspace) HoverAt(x, y float64) { _ = w.Apply(Event{Type: EvHover, X: x, Y: y}) }
func (w *Workspace) HoverAtLogical(index float64) {
	_ = w.Apply(Event{Type: EvHoverLogical, Index: index})
}
func (w *Workspace) ClearHover() { _ = w.Apply(Event{Type: EvClearHover}) }
