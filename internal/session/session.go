// Package session owns the live workspaces of a process. A workspace is
// single-threaded; the manager serialises every call into it and handles the
// I/O around it: fetching bars, restoring and saving layouts.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chartdesk/internal/drawing"
	"chartdesk/internal/indicator"
	"chartdesk/internal/layout"
	"chartdesk/internal/model"
	"chartdesk/internal/workspace"
)

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Preset seeds a session whose series has no saved layout.
type Preset struct {
	Indicators []indicator.Config
	Compares   []string
}

// Observer receives session-level events. Nil fields are skipped.
type Observer struct {
	OnEvent    func(t workspace.EventType)
	OnSave     func(err error)
	OnFallback func(n int)
	OnOpen     func(active int)
}

// Options configures a Manager.
type Options struct {
	Feed      model.BarFetcher
	Layouts   model.LayoutStore // nil keeps layouts in memory
	Workspace workspace.Options
	Preset    Preset
	Observer  Observer
	Logger    *slog.Logger
}

// Info describes an open session.
type Info struct {
	ID       string          `json:"id"`
	Series   model.SeriesKey `json:"series"`
	Compares int             `json:"compares"`
	Dirty    bool            `json:"dirty"`
	Opened   time.Time       `json:"opened"`
}

type entry struct {
	mu     sync.Mutex
	id     string
	key    model.SeriesKey
	ws     *workspace.Workspace
	dirty  bool
	opened time.Time
}

// Manager maps session ids to workspaces.
type Manager struct {
	opt   Options
	codec *layout.Codec
	log   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewManager returns an empty manager.
func NewManager(opt Options) *Manager {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Layouts == nil {
		opt.Layouts = layout.NewMemoryStore()
	}
	if opt.Workspace.Registry == nil {
		opt.Workspace.Registry = indicator.Default()
	}
	return &Manager{
		opt:      opt,
		codec:    layout.NewCodec(opt.Workspace.Registry, opt.Logger),
		log:      opt.Logger.With("component", "session"),
		sessions: make(map[string]*entry),
	}
}

func (m *Manager) get(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return e, nil
}

// Open fetches the base series, restores its saved layout (or applies the
// preset when there is none) and returns the new session id with its first
// snapshot.
func (m *Manager) Open(ctx context.Context, key model.SeriesKey) (string, workspace.Snapshot, error) {
	bars, err := m.opt.Feed.Fetch(ctx, key)
	if err != nil {
		return "", workspace.Snapshot{}, fmt.Errorf("open %s: %w", key, err)
	}

	wopt := m.opt.Workspace
	wopt.Logger = m.opt.Logger
	ws := workspace.New(wopt)
	sw, found, fallbacks := m.resolveSwitch(ctx, key, nil)
	if err := ws.SwitchBase(key, bars, sw); err != nil {
		return "", workspace.Snapshot{}, fmt.Errorf("open %s: %w", key, err)
	}
	m.reportDropped(key, fallbacks, sw.Dropped)

	e := &entry{id: uuid.NewString(), key: key, ws: ws, opened: time.Now()}
	m.mu.Lock()
	m.sessions[e.id] = e
	active := len(m.sessions)
	m.mu.Unlock()

	if m.opt.Observer.OnOpen != nil {
		m.opt.Observer.OnOpen(active)
	}
	m.log.Info("session opened", "session", e.id, "series", key.String(), "restored", found)
	return e.id, ws.Dump(), nil
}

// resolveSwitch gathers what charting key needs: its stored layout and the
// compare series at key's timeframe. Without a stored layout the preset
// applies and the carried compare symbols follow the chart. The base symbol
// is never compared with itself.
func (m *Manager) resolveSwitch(ctx context.Context, key model.SeriesKey, carry []string) (sw *workspace.Switch, found bool, fallbacks int) {
	res, found, err := m.codec.Load(ctx, m.opt.Layouts, key)
	if err != nil {
		m.log.Warn("layout unavailable, using defaults", "series", key.String(), "error", err)
	}
	sw = &workspace.Switch{Layout: res.Layout}

	var syms []string
	if found {
		for _, c := range res.Layout.Compares {
			syms = append(syms, c.Symbol)
		}
	} else {
		sw.Layout.Indicators = append(sw.Layout.Indicators, m.opt.Preset.Indicators...)
		syms = append(append(syms, carry...), m.opt.Preset.Compares...)
	}

	seen := map[string]bool{key.Symbol: true}
	for _, sym := range syms {
		if seen[sym] {
			continue
		}
		seen[sym] = true
		ck := model.SeriesKey{Symbol: sym, Timeframe: key.Timeframe}
		bars, err := m.opt.Feed.Fetch(ctx, ck)
		if err != nil {
			m.log.Warn("compare not restored", "series", ck.String(), "error", err)
			continue
		}
		sw.Compares = append(sw.Compares, workspace.CompareBars{Key: ck, Bars: bars})
	}
	return sw, found, len(res.Fallbacks)
}

func (m *Manager) reportDropped(key model.SeriesKey, fallbacks int, dropped []error) {
	if n := fallbacks + len(dropped); n > 0 && m.opt.Observer.OnFallback != nil {
		m.opt.Observer.OnFallback(n)
	}
	for _, err := range dropped {
		m.log.Warn("layout entry dropped", "series", key.String(), "error", err)
	}
}

type pendingSave struct {
	key model.SeriesKey
	l   workspace.Layout
}

// Apply resolves series events that carry no bars through the feed, then
// applies the batch with a single recompute pass. Per-event failures are
// joined into the returned error; the snapshot reflects every event that
// succeeded.
//
// A loadBase to another series is a switch: the compares follow at the new
// timeframe, the new series' layout (or the preset) is restored and the
// layout being left is saved under its own key when it had changes.
func (m *Manager) Apply(ctx context.Context, id string, events []workspace.Event) (workspace.Snapshot, error) {
	e, err := m.get(id)
	if err != nil {
		return workspace.Snapshot{}, err
	}

	e.mu.Lock()
	base := e.key
	var compares []string
	for _, k := range e.ws.CompareKeys() {
		compares = append(compares, k.Symbol)
	}
	e.mu.Unlock()

	var fetchErrs []error
	fallbacks := map[*workspace.Switch]int{}
	events = append([]workspace.Event(nil), events...)
	for i := range events {
		ev := &events[i]
		ev.Switch = nil
		switch ev.Type {
		case workspace.EvRemoveCompare:
			compares = slices.DeleteFunc(compares, func(s string) bool { return s == ev.Symbol })
			continue
		case workspace.EvLoadBase, workspace.EvAddCompare:
		default:
			continue
		}
		if ev.Timeframe == "" {
			ev.Timeframe = base.Timeframe
		}
		k := model.SeriesKey{Symbol: ev.Symbol, Timeframe: ev.Timeframe}
		if len(ev.Bars) == 0 {
			bars, err := m.opt.Feed.Fetch(ctx, k)
			if err != nil {
				fetchErrs = append(fetchErrs, fmt.Errorf("event %d: %w", i, err))
				ev.Type = "" // skipped below
				continue
			}
			ev.Bars = bars
		}
		if ev.Type == workspace.EvAddCompare {
			if !slices.Contains(compares, k.Symbol) && k.Symbol != base.Symbol {
				compares = append(compares, k.Symbol)
			}
			continue
		}
		if k != base {
			sw, _, n := m.resolveSwitch(ctx, k, compares)
			fallbacks[sw] = n
			ev.Switch = sw
			compares = compares[:0]
			for _, c := range sw.Compares {
				compares = append(compares, c.Key.Symbol)
			}
		}
		base = k
	}

	kept := events[:0]
	for _, ev := range events {
		if ev.Type != "" {
			kept = append(kept, ev)
		}
	}

	e.mu.Lock()
	applyErr := e.ws.ApplyBatch(kept)
	if obs := m.opt.Observer.OnEvent; obs != nil {
		for _, ev := range kept {
			obs(ev.Type)
		}
	}
	var saves []pendingSave
	dirty := e.dirty
	for _, ev := range kept {
		sw := ev.Switch
		if sw == nil || !sw.Applied {
			dirty = true
			continue
		}
		if dirty {
			saves = append(saves, pendingSave{key: sw.From, l: sw.Outgoing})
		}
		dirty = false
		m.reportDropped(model.SeriesKey{Symbol: ev.Symbol, Timeframe: ev.Timeframe}, fallbacks[sw], sw.Dropped)
	}
	e.dirty = dirty
	if k, ok := e.ws.BaseKey(); ok {
		e.key = k
	}
	snap := e.ws.Dump()
	e.mu.Unlock()

	var saveErrs []error
	for _, ps := range saves {
		err := layout.Save(ctx, m.opt.Layouts, ps.key, ps.l)
		if m.opt.Observer.OnSave != nil {
			m.opt.Observer.OnSave(err)
		}
		if err != nil {
			m.log.Warn("layout not saved on switch", "session", id, "series", ps.key.String(), "error", err)
			saveErrs = append(saveErrs, err)
			continue
		}
		m.log.Debug("layout saved", "session", id, "key", layout.Key(ps.key))
	}
	return snap, errors.Join(append(append(fetchErrs, applyErr), saveErrs...)...)
}

// Dump returns the current snapshot of a session.
func (m *Manager) Dump(id string) (workspace.Snapshot, error) {
	e, err := m.get(id)
	if err != nil {
		return workspace.Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ws.Dump(), nil
}

// Save persists the layout of a session.
func (m *Manager) Save(ctx context.Context, id string) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	return m.save(ctx, e)
}

func (m *Manager) save(ctx context.Context, e *entry) error {
	e.mu.Lock()
	key, l := e.key, e.ws.Layout()
	e.mu.Unlock()

	err := layout.Save(ctx, m.opt.Layouts, key, l)
	if m.opt.Observer.OnSave != nil {
		m.opt.Observer.OnSave(err)
	}
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.dirty = false
	e.mu.Unlock()
	m.log.Debug("layout saved", "session", e.id, "key", layout.Key(key))
	return nil
}

// SaveAll persists every session changed since its last save.
func (m *Manager) SaveAll(ctx context.Context) (int, error) {
	m.mu.RLock()
	var dirty []*entry
	for _, e := range m.sessions {
		e.mu.Lock()
		if e.dirty {
			dirty = append(dirty, e)
		}
		e.mu.Unlock()
	}
	m.mu.RUnlock()

	var errs []error
	saved := 0
	for _, e := range dirty {
		if err := m.save(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", e.id, err))
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

// Close saves a changed session and forgets it.
func (m *Manager) Close(ctx context.Context, id string) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	dirty := e.dirty
	e.mu.Unlock()
	if dirty {
		if err := m.save(ctx, e); err != nil {
			m.log.Warn("layout not saved on close", "session", id, "error", err)
		}
	}

	m.mu.Lock()
	delete(m.sessions, id)
	active := len(m.sessions)
	m.mu.Unlock()
	if m.opt.Observer.OnOpen != nil {
		m.opt.Observer.OnOpen(active)
	}
	m.log.Info("session closed", "session", id)
	return nil
}

// List describes the open sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, e := range m.sessions {
		e.mu.Lock()
		out = append(out, Info{ID: e.id, Series: e.key, Compares: len(e.ws.CompareKeys()), Dirty: e.dirty, Opened: e.opened})
		e.mu.Unlock()
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Opened.Equal(out[j].Opened) {
			return out[i].ID < out[j].ID
		}
		return out[i].Opened.Before(out[j].Opened)
	})
	return out
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Kinds lists the registered indicator kinds.
func (m *Manager) Kinds() []indicator.Spec { return m.opt.Workspace.Registry.Kinds() }

// DrawingTypes lists the supported drawing types.
func (m *Manager) DrawingTypes() []drawing.Type { return drawing.Types() }
