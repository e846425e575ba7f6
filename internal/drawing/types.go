// Package drawing owns the user annotations of a workspace and the finite
// state machine that creates and edits them.
//
// Objects are a tagged union on Type. Per-type behaviour (arity, how points
// are collected, derived points) lives in one table; the state machine
// dispatches on it and carries an integer phase instead of per-tool flags.
package drawing

import (
	"errors"
	"math"
)

var (
	ErrUnknownType = errors.New("unknown drawing type")
	ErrLocked      = errors.New("drawing is locked")
	ErrNotFound    = errors.New("drawing not found")
	ErrBadPoint    = errors.New("point index out of range")
)

// Type discriminates drawing objects.
type Type string

const (
	Note           Type = "note"
	VLine          Type = "vline"
	Trend          Type = "trend"
	Ray            Type = "ray"
	HLine          Type = "hline"
	Rectangle      Type = "rectangle"
	FibRetracement Type = "fibRetracement"
	Triangle       Type = "triangle"
	ABCD           Type = "abcd"
	ElliottWave    Type = "elliottWave"
)

// Direction of an Elliott wave.
const (
	Bullish = "bullish"
	Bearish = "bearish"
)

// ABCD ratio bounds and default.
const (
	MinK     = 0.1
	MaxK     = 5.0
	DefaultK = 1.0
)

// creation describes how points are collected while a tool is armed.
type creation int

const (
	byClick creation = iota // one click per user point
	byDrag                  // press, move, release; falls back to two clicks
)

type typeInfo struct {
	arity  int      // stored points
	clicks int      // points placed by the user; the rest are derived
	how    creation // collection style
	labels []string
	named  []string // keys of the named-point view
}

var table = map[Type]typeInfo{
	Note:           {arity: 1, clicks: 1, how: byClick, labels: []string{"p1"}, named: []string{"p1"}},
	VLine:          {arity: 1, clicks: 1, how: byClick, labels: []string{"p1"}, named: []string{"p1"}},
	Trend:          {arity: 2, clicks: 2, how: byDrag, labels: []string{"p1", "p2"}, named: []string{"p1", "p2"}},
	Ray:            {arity: 2, clicks: 2, how: byDrag, labels: []string{"p1", "p2"}, named: []string{"p1", "p2"}},
	HLine:          {arity: 2, clicks: 2, how: byDrag, labels: []string{"p1", "p2"}, named: []string{"p1", "p2"}},
	Rectangle:      {arity: 2, clicks: 2, how: byDrag, labels: []string{"p1", "p2"}, named: []string{"p1", "p2"}},
	FibRetracement: {arity: 2, clicks: 2, how: byDrag, labels: []string{"p1", "p2"}, named: []string{"p1", "p2"}},
	Triangle:       {arity: 3, clicks: 3, how: byClick, labels: []string{"p1", "p2", "p3"}, named: []string{"p1", "p2", "p3"}},
	ABCD:           {arity: 4, clicks: 3, how: byClick, labels: []string{"A", "B", "C", "D"}, named: []string{"p1", "p2", "p3", "p4"}},
	ElliottWave:    {arity: 6, clicks: 6, how: byClick, labels: []string{"0", "1", "2", "3", "4", "5"}, named: []string{"p0", "p1", "p2", "p3", "p4", "p5"}},
}

// Types returns every supported type in a stable order.
func Types() []Type {
	return []Type{Note, VLine, Trend, Ray, HLine, Rectangle, FibRetracement, Triangle, ABCD, ElliottWave}
}

// Valid reports whether t is a supported type.
func (t Type) Valid() bool {
	_, ok := table[t]
	return ok
}

// Arity returns the number of stored points for t, or 0 for an unknown type.
func (t Type) Arity() int { return table[t].arity }

// FibLevels are the retracement ratios shown for fibRetracement.
var FibLevels = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

// derive recomputes the dependent fields of o after point edited changed.
// edited < 0 means a full recompute (commit or restore). Applying derive twice
// with the same inputs leaves o unchanged.
func derive(o *Object, edited int) {
	switch o.Type {
	case HLine:
		o.Points[1].Price = o.Points[0].Price
	case ABCD:
		a, b, c := o.Points[0], o.Points[1], o.Points[2]
		if edited == 3 {
			o.K = projectK(a, b, c, o.Points[3], o.K)
		}
		if o.K == 0 {
			o.K = DefaultK
		}
		o.Points[3].TimeMs = c.TimeMs + int64(math.Round(o.K*float64(b.TimeMs-a.TimeMs)))
		o.Points[3].Price = c.Price + o.K*(b.Price-a.Price)
	case ElliottWave:
		if o.Points[1].Price > o.Points[0].Price {
			o.Direction = Bullish
		} else {
			o.Direction = Bearish
		}
	}
	for i := range o.Points {
		o.Points[i].Label = table[o.Type].labels[i]
	}
}

// projectK projects D-C onto the AB direction. Time and price are normalised
// by the AB extent so the projection is unit-free; a degenerate component is
// ignored, and when both are degenerate the previous k is kept.
func projectK(a, b, c, d Point, prev float64) float64 {
	dt := float64(b.TimeMs - a.TimeMs)
	dp := b.Price - a.Price
	var sum float64
	var n int
	if dt != 0 {
		sum += float64(d.TimeMs-c.TimeMs) / dt
		n++
	}
	if dp != 0 {
		sum += (d.Price - c.Price) / dp
		n++
	}
	if n == 0 {
		return prev
	}
	return clampK(sum / float64(n))
}

func clampK(k float64) float64 {
	if math.IsNaN(k) {
		return DefaultK
	}
	return math.Max(MinK, math.Min(MaxK, k))
}
