// Package coord converts between chart logical space (fractional bar index,
// price) and pane pixels.
//
// A Mapper is a value built from the current viewport and scale state; it has
// no side effects and can be rebuilt freely on every interaction tick.
package coord

import "math"

// Mode selects how prices map onto the vertical axis.
type Mode string

const (
	Linear  Mode = "linear"
	Log     Mode = "log"
	Percent Mode = "percent"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == Linear || m == Log || m == Percent
}

// minLogPrice is the floor applied to non-positive prices in log mode.
const minLogPrice = 1e-12

// Viewport is the pane size in pixels.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TimeAxis describes horizontal placement: pixels per bar and the logical
// index sitting exactly on the right edge of the pane.
type TimeAxis struct {
	BarSpacing float64 `json:"barSpacing"`
	RightEdge  float64 `json:"rightEdge"`
}

// PriceAxis describes vertical placement. From/To are prices at the bottom and
// top of the pane. Anchor is the reference close used by percent mode.
type PriceAxis struct {
	Mode   Mode    `json:"mode"`
	From   float64 `json:"from"`
	To     float64 `json:"to"`
	Anchor float64 `json:"anchor"`
}

// Mapper converts between logical and pixel coordinates.
type Mapper struct {
	vp Viewport
	t  TimeAxis
	p  PriceAxis
}

// New builds a Mapper. A non-positive bar spacing is treated as 1px.
func New(vp Viewport, t TimeAxis, p PriceAxis) Mapper {
	if t.BarSpacing <= 0 {
		t.BarSpacing = 1
	}
	if !p.Mode.Valid() {
		p.Mode = Linear
	}
	return Mapper{vp: vp, t: t, p: p}
}

func (m Mapper) Viewport() Viewport   { return m.vp }
func (m Mapper) TimeAxis() TimeAxis   { return m.t }
func (m Mapper) PriceAxis() PriceAxis { return m.p }

// ToPixelX maps a (fractional) bar index to pixel x.
func (m Mapper) ToPixelX(index float64) float64 {
	return m.vp.Width - (m.t.RightEdge-index)*m.t.BarSpacing
}

// ToLogical maps pixel x back to a fractional bar index.
func (m Mapper) ToLogical(x float64) float64 {
	return m.t.RightEdge - (m.vp.Width-x)/m.t.BarSpacing
}

// VisibleLogicalRange returns the logical indices at the left and right edges.
func (m Mapper) VisibleLogicalRange() (from, to float64) {
	return m.ToLogical(0), m.t.RightEdge
}

// ToPixelY maps a price to pixel y (0 at the top).
func (m Mapper) ToPixelY(price float64) float64 {
	lo := Transform(m.p.Mode, m.p.From, m.p.Anchor)
	hi := Transform(m.p.Mode, m.p.To, m.p.Anchor)
	if hi == lo {
		return m.vp.Height / 2
	}
	v := Transform(m.p.Mode, price, m.p.Anchor)
	return m.vp.Height * (1 - (v-lo)/(hi-lo))
}

// ToPrice maps pixel y back to a price.
func (m Mapper) ToPrice(y float64) float64 {
	lo := Transform(m.p.Mode, m.p.From, m.p.Anchor)
	hi := Transform(m.p.Mode, m.p.To, m.p.Anchor)
	if m.vp.Height == 0 {
		return Untransform(m.p.Mode, (lo+hi)/2, m.p.Anchor)
	}
	v := lo + (1-y/m.vp.Height)*(hi-lo)
	return Untransform(m.p.Mode, v, m.p.Anchor)
}

// Transform maps a price into the linear space of the given mode:
// price itself, ln(price), or percent change from anchor.
// Percent mode without a positive anchor degrades to linear.
func Transform(mode Mode, price, anchor float64) float64 {
	switch mode {
	case Log:
		if price < minLogPrice {
			price = minLogPrice
		}
		return math.Log(price)
	case Percent:
		if anchor <= 0 {
			return price
		}
		return (price/anchor - 1) * 100
	default:
		return price
	}
}

// Untransform is the inverse of Transform.
func Untransform(mode Mode, v, anchor float64) float64 {
	switch mode {
	case Log:
		return math.Exp(v)
	case Percent:
		if anchor <= 0 {
			return v
		}
		return anchor * (1 + v/100)
	default:
		return v
	}
}
