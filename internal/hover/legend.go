package hover

import (
	"sort"

	"github.com/shopspring/decimal"

	"chartdesk/internal/indicator"
)

// Display precision.
const (
	PricePlaces   = 2
	PercentPlaces = 2
	VolumePlaces  = 0
)

// Entry is one formatted readout. Hidden entries carry no value.
type Entry struct {
	Label   string `json:"label"`
	Value   string `json:"value,omitempty"`
	Visible bool   `json:"visible"`
}

// SeriesLegend is the legend row of one price series.
type SeriesLegend struct {
	Symbol  string `json:"symbol"`
	Price   Entry  `json:"price"`
	Percent Entry  `json:"percent"`
	Change  Entry  `json:"change"`
}

// IndicatorLegend is the legend row of one indicator instance.
type IndicatorLegend struct {
	ID     string  `json:"id"`
	Kind   string  `json:"kind"`
	Values []Entry `json:"values"`
}

// Legend is everything the legend and the data window show for one hover
// state.
type Legend struct {
	Base       SeriesLegend      `json:"base"`
	Compares   []SeriesLegend    `json:"compares"`
	DataWindow []Entry           `json:"dataWindow"`
	Indicators []IndicatorLegend `json:"indicators"`
}

func fixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).Round(places).StringFixed(places)
}

func shown(label string, v float64, places int32) Entry {
	return Entry{Label: label, Value: fixed(v, places), Visible: true}
}

func percentEntry(p *float64) Entry {
	if p == nil {
		return Entry{Label: "%"}
	}
	e := shown("%", *p, PercentPlaces)
	e.Value += "%"
	return e
}

// BuildLegend formats st. When st is inactive every entry is hidden, with
// labels kept so the rows keep their layout.
func BuildLegend(baseSymbol string, st State, insts []indicator.Instance) Legend {
	lg := Legend{Base: SeriesLegend{
		Symbol:  baseSymbol,
		Price:   Entry{Label: "C"},
		Percent: Entry{Label: "%"},
		Change:  Entry{Label: "chg"},
	}}
	labels := []string{"O", "H", "L", "C", "V"}
	for _, l := range labels {
		lg.DataWindow = append(lg.DataWindow, Entry{Label: l})
	}
	if st.Active {
		lg.Base.Price = shown("C", st.Base.Price, PricePlaces)
		lg.Base.Percent = percentEntry(st.Base.Percent)
		vals := []float64{st.Bar.Open, st.Bar.High, st.Bar.Low, st.Bar.Close}
		for i, v := range vals {
			lg.DataWindow[i] = shown(labels[i], v, PricePlaces)
		}
		lg.DataWindow[4] = shown("V", st.Bar.Volume, VolumePlaces)
	}

	symbols := make([]string, 0, len(st.Compares))
	for s := range st.Compares {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		c := st.Compares[s]
		row := SeriesLegend{
			Symbol:  s,
			Price:   shown("C", c.PriceAtCursor, PricePlaces),
			Percent: percentEntry(c.PercentAtCursor),
			Change:  shown("chg", c.ChangePct, PercentPlaces),
		}
		row.Change.Value += "%"
		lg.Compares = append(lg.Compares, row)
	}

	for _, inst := range insts {
		row := IndicatorLegend{ID: inst.ID, Kind: inst.Kind}
		for _, line := range inst.Lines {
			e := Entry{Label: line.Name}
			if st.Active {
				if v, ok := line.At(st.Index); ok {
					e = shown(line.Name, v, PricePlaces)
				}
			}
			row.Values = append(row.Values, e)
		}
		lg.Indicators = append(lg.Indicators, row)
	}
	return lg
}
