// Package indicator provides the registry of technical indicator kinds and the
// engine that keeps per-workspace indicator instances computed.
//
// Every kind is a pure transform from bars and inputs to one or more lines.
// Lookups of an unregistered kind fail with ErrUnknownKind; there is no
// default algorithm to fall back to.
package indicator

import (
	"errors"
	"math"

	"chartdesk/internal/model"
)

var (
	// ErrUnknownKind is returned for a kind that is not in the registry.
	ErrUnknownKind = errors.New("unknown indicator kind")
	// ErrBadInput is returned for an unknown input name or a value of the wrong type or range.
	ErrBadInput = errors.New("invalid indicator input")
	// ErrNotFound is returned when an instance id does not exist.
	ErrNotFound = errors.New("indicator instance not found")
)

// Smoother is the incremental form shared by the hand-written moving averages.
type Smoother interface {
	// Update feeds the next value.
	Update(v float64)
	// Value returns the current value. Meaningless until Ready.
	Value() float64
	// Ready returns true once enough values have been accumulated.
	Ready() bool
}

// Point is one sample of a line. A nil Value is a whitespace point.
type Point struct {
	Time  int64    `json:"time"`
	Value *float64 `json:"value,omitempty"`
}

// Line is a named output series aligned with the input bars.
type Line struct {
	Name   string  `json:"name"`
	Values []Point `json:"values"`
}

// At returns the value at index i and whether it is a real (non-whitespace) point.
func (l Line) At(i int) (float64, bool) {
	if i < 0 || i >= len(l.Values) || l.Values[i].Value == nil {
		return 0, false
	}
	return *l.Values[i].Value, true
}

// Last returns the last non-whitespace value.
func (l Line) Last() (float64, bool) {
	for i := len(l.Values) - 1; i >= 0; i-- {
		if v := l.Values[i].Value; v != nil {
			return *v, true
		}
	}
	return 0, false
}

// Cols is the columnar view of a bar sequence handed to compute functions.
type Cols struct {
	Time   []int64
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

func colsOf(bars []model.Bar) Cols {
	o, h, l, c, v := model.Columns(bars)
	t := make([]int64, len(bars))
	for i := range bars {
		t[i] = bars[i].Time
	}
	return Cols{Time: t, Open: o, High: h, Low: l, Close: c, Volume: v}
}

// Len returns the number of bars.
func (c Cols) Len() int { return len(c.Close) }

// toLines converts raw outputs to lines. NaN and ±Inf become whitespace.
func toLines(names []string, times []int64, raw [][]float64) []Line {
	lines := make([]Line, len(names))
	for k, name := range names {
		pts := make([]Point, len(times))
		for i, t := range times {
			pts[i].Time = t
			v := raw[k][i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			pts[i].Value = &v
		}
		lines[k] = Line{Name: name, Values: pts}
	}
	return lines
}
