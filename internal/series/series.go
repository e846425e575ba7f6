// Package series holds the immutable bar sequences a workspace charts: one base
// series and a bounded number of compare series.
//
// Sequences are replaced wholesale and never mutated in place; every
// replacement bumps the store generation so dependants can detect staleness.
package series

import (
	"fmt"
	"math"
	"sort"

	"chartdesk/internal/model"
)

// Bounds is the time span covered by a series, in unix seconds.
type Bounds struct {
	FirstBarTime int64 `json:"firstBarTime"`
	LastBarTime  int64 `json:"lastBarTime"`
}

// Series is an ordered, validated bar sequence.
type Series struct {
	key  model.SeriesKey
	step int64 // seconds per bar
	bars []model.Bar
}

// New validates and copies bars into a Series.
func New(key model.SeriesKey, bars []model.Bar) (*Series, error) {
	if err := model.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("series %s: %w", key, err)
	}
	cp := make([]model.Bar, len(bars))
	copy(cp, bars)
	return &Series{key: key, bars: cp, step: inferStep(key.Timeframe, cp)}, nil
}

func (s *Series) Key() model.SeriesKey { return s.key }
func (s *Series) Len() int             { return len(s.bars) }

// Step returns the bar interval in seconds.
func (s *Series) Step() int64 { return s.step }

// Bars returns the underlying sequence. Callers must treat it as read-only.
func (s *Series) Bars() []model.Bar { return s.bars }

// At returns the bar at index i.
func (s *Series) At(i int) model.Bar { return s.bars[i] }

// Bounds returns the first/last bar times; zero for an empty series.
func (s *Series) Bounds() Bounds {
	if len(s.bars) == 0 {
		return Bounds{}
	}
	return Bounds{FirstBarTime: s.bars[0].Time, LastBarTime: s.bars[len(s.bars)-1].Time}
}

// IndexAtTime returns the index of the bar starting exactly at sec.
func (s *Series) IndexAtTime(sec int64) (int, bool) {
	i := sort.Search(len(s.bars), func(i int) bool { return s.bars[i].Time >= sec })
	if i < len(s.bars) && s.bars[i].Time == sec {
		return i, true
	}
	return -1, false
}

// NearestIndex returns the index of the bar closest in time to sec, preferring
// the earlier bar on ties. Returns -1 for an empty series.
func (s *Series) NearestIndex(sec int64) int {
	n := len(s.bars)
	if n == 0 {
		return -1
	}
	i := sort.Search(n, func(i int) bool { return s.bars[i].Time >= sec })
	switch {
	case i == 0:
		return 0
	case i == n:
		return n - 1
	}
	if s.bars[i].Time-sec < sec-s.bars[i-1].Time {
		return i
	}
	return i - 1
}

// TimeAtLogical maps a fractional bar index to unix milliseconds,
// interpolating between bars and extrapolating past either end by Step.
func (s *Series) TimeAtLogical(l float64) int64 {
	n := len(s.bars)
	stepMs := float64(s.step * 1000)
	if n == 0 {
		return int64(math.Round(l * stepMs))
	}
	if l <= 0 {
		return s.bars[0].TimeMs() + int64(math.Round(l*stepMs))
	}
	last := float64(n - 1)
	if l >= last {
		return s.bars[n-1].TimeMs() + int64(math.Round((l-last)*stepMs))
	}
	i := int(math.Floor(l))
	frac := l - float64(i)
	t0 := float64(s.bars[i].TimeMs())
	t1 := float64(s.bars[i+1].TimeMs())
	return int64(math.Round(t0 + frac*(t1-t0)))
}

// LogicalAtTime is the inverse of TimeAtLogical.
func (s *Series) LogicalAtTime(ms int64) float64 {
	n := len(s.bars)
	stepMs := float64(s.step * 1000)
	if n == 0 {
		return float64(ms) / stepMs
	}
	first := s.bars[0].TimeMs()
	lastT := s.bars[n-1].TimeMs()
	if ms <= first {
		return float64(ms-first) / stepMs
	}
	if ms >= lastT {
		return float64(n-1) + float64(ms-lastT)/stepMs
	}
	i := sort.Search(n, func(i int) bool { return s.bars[i].TimeMs() >= ms })
	t1 := s.bars[i].TimeMs()
	if t1 == ms {
		return float64(i)
	}
	t0 := s.bars[i-1].TimeMs()
	return float64(i-1) + float64(ms-t0)/float64(t1-t0)
}

// inferStep prefers the declared timeframe and falls back to the smallest gap
// between consecutive bars, then to one minute.
func inferStep(tf string, bars []model.Bar) int64 {
	if sec, err := model.ParseTimeframe(tf); err == nil {
		return sec
	}
	var step int64
	for i := 1; i < len(bars); i++ {
		d := bars[i].Time - bars[i-1].Time
		if step == 0 || d < step {
			step = d
		}
	}
	if step <= 0 {
		step = 60
	}
	return step
}
