package workspace

import (
	"chartdesk/internal/model"
)

// Switch carries what a base change needs besides the new bars: the compare
// set refetched at the new timeframe and the layout stored for the new
// series. The workspace fills in the trailing fields so the host can persist
// the layout it left.
type Switch struct {
	Compares []CompareBars
	Layout   Layout

	From     model.SeriesKey
	Outgoing Layout
	Applied  bool
	Dropped  []error
}

// CompareBars is one compare series with its bars.
type CompareBars struct {
	Key  model.SeriesKey
	Bars []model.Bar
}

// SwitchBase changes the charted series and settles once.
func (w *Workspace) SwitchBase(key model.SeriesKey, bars []model.Bar, sw *Switch) error {
	return w.run(func() error { return w.switchBase(key, bars, sw) })
}

// switchBase replaces the base, reconciles the compares with sw.Compares
// (kept symbols get their new bars, missing ones are removed, new ones are
// added) and restores sw.Layout. Compare and layout failures are collected
// in sw.Dropped; only a bad base fails the switch, leaving state untouched.
func (w *Workspace) switchBase(key model.SeriesKey, bars []model.Bar, sw *Switch) error {
	from, _ := w.BaseKey()
	outgoing := w.Layout()
	if err := w.loadBase(key, bars); err != nil {
		return err
	}
	sw.From, sw.Outgoing, sw.Applied = from, outgoing, true

	want := make(map[string]bool, len(sw.Compares))
	for _, c := range sw.Compares {
		want[c.Key.Symbol] = true
	}
	for _, k := range w.CompareKeys() {
		if !want[k.Symbol] {
			_ = w.removeCompare(k.Symbol)
		}
	}
	for _, c := range sw.Compares {
		var err error
		if w.store.Compare(c.Key.Symbol) != nil {
			err = w.store.ReplaceCompare(c.Key, c.Bars)
		} else {
			err = w.addCompare(c.Key, c.Bars)
		}
		if err != nil {
			sw.Dropped = append(sw.Dropped, err)
		}
	}

	sw.Dropped = append(sw.Dropped, w.restore(sw.Layout)...)
	w.log.Info("series switched", "from", from.String(), "to", key.String(),
		"compares", len(w.CompareKeys()), "dropped", len(sw.Dropped))
	return nil
}
