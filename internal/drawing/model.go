package drawing

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/google/uuid"
)

// Pixel tolerances used by the state machine.
const (
	HandleRadius  = 6.0 // a press within this distance of a handle grabs it
	DragThreshold = 3.0 // movement below this is a click, not a drag
	BodyTolerance = 4.0 // selection distance from an object's outline
)

// Projector converts between pixels and logical (time, price) anchors. The
// workspace builds one from the current coordinate mapper for each call.
type Projector interface {
	ToPoint(x, y float64) (timeMs int64, price float64)
	ToPixel(timeMs int64, price float64) (x, y float64)
}

// Mode is the state of the tool state machine.
type Mode string

const (
	ModeSelect     Mode = "select"
	ModeArmed      Mode = "armed"
	ModeCollecting Mode = "collecting"
	ModeDragging   Mode = "dragging"
)

// ToolState is the externally visible state of the machine.
type ToolState struct {
	Mode   Mode    `json:"mode"`
	Kind   Type    `json:"kind,omitempty"`
	Phase  int     `json:"phase"`
	Draft  []Point `json:"draft,omitempty"`
	DragID string  `json:"dragId,omitempty"`
	Handle int     `json:"handle"`
}

type dragState struct {
	id     string
	handle int
	orig   []Point
	origK  float64
	resume *armedTool
}

// armedTool is the creation state a handle grab interrupted. A press that is
// released without moving goes back to it and counts as a click for the tool.
type armedTool struct {
	mode     Mode
	kind     Type
	draft    []Point
	selected string
}

type press struct {
	x, y  float64
	down  bool
	moved bool
}

var idSpace = uuid.MustParse("4f1c7a52-9a0e-4d53-8c3e-6b2f0d9e4a17")

// Model holds the drawing objects of one workspace and the tool state
// machine that edits them. It is not safe for concurrent use.
type Model struct {
	log     *slog.Logger
	objects []*Object
	seq     uint64

	mode    Mode
	kind    Type
	draft   []Point
	preview *Point
	drag    *dragState
	press   press
}

// New returns an empty model in select mode.
func New(log *slog.Logger) *Model {
	if log == nil {
		log = slog.Default()
	}
	return &Model{log: log.With("component", "drawing"), mode: ModeSelect}
}

// State returns a copy of the tool state.
func (m *Model) State() ToolState {
	st := ToolState{Mode: m.mode, Kind: m.kind, Phase: len(m.draft)}
	if len(m.draft) > 0 {
		st.Draft = append([]Point(nil), m.draft...)
		if m.preview != nil {
			st.Draft = append(st.Draft, *m.preview)
		}
	}
	if m.drag != nil {
		st.DragID, st.Handle = m.drag.id, m.drag.handle
	}
	return st
}

// Objects returns detached copies of all objects in creation order.
func (m *Model) Objects() []Object {
	out := make([]Object, len(m.objects))
	for i, o := range m.objects {
		out[i] = o.clone()
	}
	return out
}

// Get returns a copy of the object with the given id.
func (m *Model) Get(id string) (Object, bool) {
	if o := m.find(id); o != nil {
		return o.clone(), true
	}
	return Object{}, false
}

// Len returns the number of objects.
func (m *Model) Len() int { return len(m.objects) }

func (m *Model) find(id string) *Object {
	for _, o := range m.objects {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func (m *Model) nextID() string {
	for {
		m.seq++
		id := uuid.NewSHA1(idSpace, []byte(fmt.Sprintf("drawing#%d", m.seq))).String()
		if m.find(id) == nil {
			return id
		}
	}
}

func (m *Model) maxZ() int {
	z := 0
	for _, o := range m.objects {
		z = max(z, o.Z)
	}
	return z
}

// ────────────────────────────────────────────────────────────
// Tool arming
// ────────────────────────────────────────────────────────────

// Arm selects a creation tool. Any creation or drag in progress is aborted
// first, as if Escape had been pressed; arming from select clears the
// selection.
func (m *Model) Arm(t Type) error {
	if !t.Valid() {
		return fmt.Errorf("arm %q: %w", t, ErrUnknownType)
	}
	m.Escape()
	m.mode, m.kind = ModeArmed, t
	return nil
}

// Escape aborts creation or a handle drag and returns to select. A drag is
// rolled back to the points it started from. In select mode it clears the
// selection.
func (m *Model) Escape() {
	switch m.mode {
	case ModeDragging:
		if o := m.find(m.drag.id); o != nil {
			o.Points = m.drag.orig
			o.K = m.drag.origK
			derive(o, -1)
		}
	case ModeArmed, ModeCollecting:
		if len(m.draft) > 0 {
			m.log.Debug("creation aborted", "type", m.kind, "phase", len(m.draft))
		}
	default:
		m.selectOnly(nil)
	}
	m.reset()
}

func (m *Model) reset() {
	m.mode, m.kind = ModeSelect, ""
	m.draft, m.preview, m.drag = nil, nil, nil
	m.press = press{}
}

// ────────────────────────────────────────────────────────────
// Pointer input
// ────────────────────────────────────────────────────────────

// PointerDown handles a button press at pixel (x, y).
func (m *Model) PointerDown(pr Projector, x, y float64) {
	m.press = press{x: x, y: y, down: true}
	switch m.mode {
	case ModeDragging:
		return
	case ModeSelect, ModeArmed, ModeCollecting:
		if o, h := m.hitHandle(pr, x, y); o != nil && !o.Locked {
			d := &dragState{id: o.ID, handle: h, orig: append([]Point(nil), o.Points...), origK: o.K}
			if m.mode != ModeSelect {
				sel, _ := m.Selected()
				d.resume = &armedTool{mode: m.mode, kind: m.kind, draft: m.draft, selected: sel}
			}
			m.reset()
			m.press = press{x: x, y: y, down: true}
			m.selectOnly(o)
			m.mode, m.drag = ModeDragging, d
			return
		}
	}
	m.beginDraft(pr, x, y)
}

// beginDraft starts a drag tool at the press position.
func (m *Model) beginDraft(pr Projector, x, y float64) {
	if m.mode == ModeArmed && table[m.kind].how == byDrag {
		m.mode = ModeCollecting
		m.draft = []Point{m.pointAt(pr, x, y, 0)}
	}
}

// PointerMove handles pointer motion.
func (m *Model) PointerMove(pr Projector, x, y float64) {
	if m.press.down && math.Hypot(x-m.press.x, y-m.press.y) >= DragThreshold {
		m.press.moved = true
	}
	switch m.mode {
	case ModeDragging:
		if m.drag.resume == nil || m.press.moved {
			m.moveHandle(pr, x, y)
		}
	case ModeCollecting:
		if table[m.kind].how == byDrag {
			p := m.pointAt(pr, x, y, 1)
			m.preview = &p
		}
	}
}

// PointerUp handles a button release.
func (m *Model) PointerUp(pr Projector, x, y float64) {
	wasDown, moved := m.press.down, m.press.moved
	m.press = press{}
	if m.mode == ModeDragging {
		if m.drag.resume != nil && wasDown && !moved {
			m.resumeTool(pr, x, y)
			return
		}
		if r := m.drag.resume; r != nil {
			m.log.Debug("creation aborted by handle drag", "type", r.kind, "id", m.drag.id)
		}
		m.moveHandle(pr, x, y)
		m.mode, m.drag = ModeSelect, nil
		return
	}
	m.release(pr, x, y, wasDown, moved)
}

// resumeTool undoes a handle grab that never moved and replays the press as a
// click for the interrupted tool.
func (m *Model) resumeTool(pr Projector, x, y float64) {
	d := m.drag
	if o := m.find(d.id); o != nil {
		o.Points, o.K = d.orig, d.origK
	}
	m.drag = nil
	r := d.resume
	m.mode, m.kind, m.draft = r.mode, r.kind, r.draft
	m.selectOnly(m.find(r.selected))
	m.beginDraft(pr, x, y)
	m.release(pr, x, y, true, false)
}

func (m *Model) release(pr Projector, x, y float64, wasDown, moved bool) {
	switch m.mode {
	case ModeCollecting:
		if table[m.kind].how == byDrag {
			m.releaseDrag(pr, x, y)
			return
		}
		if wasDown && !moved {
			m.place(pr, x, y)
		}
	case ModeArmed:
		if wasDown && !moved {
			m.place(pr, x, y)
		}
	case ModeSelect:
		if wasDown && !moved {
			m.selectOnly(m.hitObject(pr, x, y))
		}
	}
}

// Click is a press and release at the same pixel.
func (m *Model) Click(pr Projector, x, y float64) {
	m.PointerDown(pr, x, y)
	m.PointerUp(pr, x, y)
}

// releaseDrag finishes a drag tool. A release too close to the first point
// keeps collecting so the second point can be placed by a click.
func (m *Model) releaseDrag(pr Projector, x, y float64) {
	pts := append(append([]Point(nil), m.draft...), m.pointAt(pr, x, y, 1))
	o := &Object{Type: m.kind, Points: pts}
	derive(o, -1)
	x0, y0 := pr.ToPixel(o.Points[0].TimeMs, o.Points[0].Price)
	x1, y1 := pr.ToPixel(o.Points[1].TimeMs, o.Points[1].Price)
	if math.Hypot(x1-x0, y1-y0) < DragThreshold {
		m.preview = nil
		return
	}
	m.commit(o)
}

// place adds one click point for a click tool and commits on the last one.
func (m *Model) place(pr Projector, x, y float64) {
	info := table[m.kind]
	m.draft = append(m.draft, m.pointAt(pr, x, y, len(m.draft)))
	m.mode = ModeCollecting
	if len(m.draft) < info.clicks {
		return
	}
	pts := make([]Point, info.arity)
	copy(pts, m.draft)
	m.commit(&Object{Type: m.kind, Points: pts})
}

func (m *Model) commit(o *Object) {
	o.ID = m.nextID()
	o.Z = m.maxZ() + 1
	if o.Type == Note && o.Text == "" {
		o.Text = "Note"
	}
	derive(o, -1)
	m.objects = append(m.objects, o)
	m.selectOnly(o)
	m.log.Debug("drawing committed", "id", o.ID, "type", o.Type, "z", o.Z)
	m.reset()
}

func (m *Model) pointAt(pr Projector, x, y float64, idx int) Point {
	t, p := pr.ToPoint(x, y)
	return Point{Label: table[m.kind].labels[idx], TimeMs: t, Price: p}
}

func (m *Model) moveHandle(pr Projector, x, y float64) {
	o := m.find(m.drag.id)
	if o == nil {
		return
	}
	t, p := pr.ToPoint(x, y)
	o.Points[m.drag.handle].TimeMs = t
	o.Points[m.drag.handle].Price = p
	derive(o, m.drag.handle)
}

// ────────────────────────────────────────────────────────────
// Object operations
// ────────────────────────────────────────────────────────────

// Select makes id the only selected object.
func (m *Model) Select(id string) error {
	o := m.find(id)
	if o == nil {
		return fmt.Errorf("select %s: %w", id, ErrNotFound)
	}
	m.selectOnly(o)
	return nil
}

func (m *Model) selectOnly(sel *Object) {
	for _, o := range m.objects {
		o.Selected = o == sel
	}
}

// Selected returns the id of the selected object, if any.
func (m *Model) Selected() (string, bool) {
	for _, o := range m.objects {
		if o.Selected {
			return o.ID, true
		}
	}
	return "", false
}

// DeleteSelected removes the selected objects and reports how many went.
func (m *Model) DeleteSelected() int {
	kept := m.objects[:0]
	n := 0
	for _, o := range m.objects {
		if o.Selected {
			n++
			continue
		}
		kept = append(kept, o)
	}
	m.objects = kept
	return n
}

// Delete removes one object. Deleting the object being dragged ends the drag.
func (m *Model) Delete(id string) error {
	for i, o := range m.objects {
		if o.ID == id {
			m.objects = append(m.objects[:i], m.objects[i+1:]...)
			if m.drag != nil && m.drag.id == id {
				m.reset()
			}
			return nil
		}
	}
	return fmt.Errorf("delete %s: %w", id, ErrNotFound)
}

// ToggleLock flips the lock flag and returns the new value.
func (m *Model) ToggleLock(id string) (bool, error) {
	o := m.find(id)
	if o == nil {
		return false, fmt.Errorf("lock %s: %w", id, ErrNotFound)
	}
	o.Locked = !o.Locked
	return o.Locked, nil
}

// ToggleHide flips the hidden flag and returns the new value.
func (m *Model) ToggleHide(id string) (bool, error) {
	o := m.find(id)
	if o == nil {
		return false, fmt.Errorf("hide %s: %w", id, ErrNotFound)
	}
	o.Hidden = !o.Hidden
	return o.Hidden, nil
}

// SetText replaces the text of an object. Locked objects reject it.
func (m *Model) SetText(id, text string) error {
	o := m.find(id)
	if o == nil {
		return fmt.Errorf("set text %s: %w", id, ErrNotFound)
	}
	if o.Locked {
		return fmt.Errorf("set text %s: %w", id, ErrLocked)
	}
	o.Text = text
	return nil
}

// MovePoint sets point idx of an object and recomputes derived points.
func (m *Model) MovePoint(id string, idx int, p Point) error {
	o := m.find(id)
	if o == nil {
		return fmt.Errorf("move point %s: %w", id, ErrNotFound)
	}
	if o.Locked {
		return fmt.Errorf("move point %s: %w", id, ErrLocked)
	}
	if idx < 0 || idx >= len(o.Points) {
		return fmt.Errorf("move point %s[%d]: %w", id, idx, ErrBadPoint)
	}
	o.Points[idx].TimeMs = p.TimeMs
	o.Points[idx].Price = p.Price
	derive(o, idx)
	return nil
}

// ────────────────────────────────────────────────────────────
// Persistence
// ────────────────────────────────────────────────────────────

// Restore replaces all objects with objs. Objects of unknown type or wrong
// arity are dropped and reported; ids are kept, derived fields recomputed and
// selection cleared. The tool state returns to select.
func (m *Model) Restore(objs []Object) (dropped []error) {
	m.reset()
	m.objects = m.objects[:0]
	seen := map[string]bool{}
	for _, src := range objs {
		if !src.Type.Valid() {
			dropped = append(dropped, fmt.Errorf("drawing %s: %w: %q", src.ID, ErrUnknownType, src.Type))
			continue
		}
		if len(src.Points) != src.Type.Arity() {
			dropped = append(dropped, fmt.Errorf("drawing %s: %s needs %d points, got %d",
				src.ID, src.Type, src.Type.Arity(), len(src.Points)))
			continue
		}
		o := src.clone()
		o.Selected = false
		if o.ID == "" || seen[o.ID] {
			o.ID = m.nextID()
		}
		seen[o.ID] = true
		if o.Type == ABCD && o.K != 0 {
			o.K = clampK(o.K)
		}
		derive(&o, -1)
		m.objects = append(m.objects, &o)
	}
	sort.SliceStable(m.objects, func(i, j int) bool { return m.objects[i].Z < m.objects[j].Z })
	for i, o := range m.objects {
		if i > 0 && o.Z <= m.objects[i-1].Z {
			o.Z = m.objects[i-1].Z + 1
		}
	}
	for _, err := range dropped {
		m.log.Warn("drawing dropped on restore", "err", err)
	}
	return dropped
}
