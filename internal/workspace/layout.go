package workspace

import (
	"chartdesk/internal/drawing"
	"chartdesk/internal/indicator"
	"chartdesk/internal/model"
	"chartdesk/internal/scale"
)

// Layout is the persisted part of a workspace. Hover and tool state never
// persist.
type Layout struct {
	Drawings   []drawing.Object   `json:"drawings"`
	Indicators []indicator.Config `json:"indicators"`
	Compares   []model.SeriesKey  `json:"compares"`
	Scale      scale.Prefs        `json:"scale"`
}

// Layout projects the persisted preferences.
func (w *Workspace) Layout() Layout {
	l := Layout{
		Drawings:   w.draw.Objects(),
		Indicators: w.ind.Configs(),
		Compares:   w.CompareKeys(),
		Scale:      w.scale.Prefs(),
	}
	for i := range l.Drawings {
		l.Drawings[i].Selected = false
	}
	return l
}

// RestoreLayout applies drawings, indicators and scale preferences. Compare
// series need bars and are left to the caller. Entries that cannot be
// restored are dropped and returned; the rest of the layout still applies.
func (w *Workspace) RestoreLayout(l Layout) (dropped []error) {
	_ = w.run(func() error {
		dropped = w.restore(l)
		return nil
	})
	return dropped
}

func (w *Workspace) restore(l Layout) (dropped []error) {
	dropped = append(dropped, w.draw.Restore(l.Drawings)...)
	_, _, bad := w.ind.Reload(l.Indicators)
	dropped = append(dropped, bad...)
	prev := w.scale.State().Mode
	w.scale.ApplyPrefs(l.Scale)
	if mode := w.scale.State().Mode; mode != prev {
		w.hover.ReleaseAnchors()
		w.scale.SetAnchor(0)
	}
	return dropped
}
