package model

import (
	"errors"
	"fmt"
)

var (
	// ErrUnordered is returned when bar times are not strictly ascending.
	ErrUnordered = errors.New("bars not strictly ascending by time")
	// ErrBadBar is returned for a bar with negative volume or inverted high/low.
	ErrBadBar = errors.New("malformed bar")
)

// Bar represents one OHLCV sample for a fixed interval.
// Time is the bucket start in unix seconds. Bars are immutable once fetched.
type Bar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// TimeMs returns the bar time in unix milliseconds (the unit drawing points use).
func (b *Bar) TimeMs() int64 {
	return b.Time * 1000
}

// ValidateBars checks the ordering contract of a fetched sequence:
// ascending unique times, volume >= 0 and low <= high.
func ValidateBars(bars []Bar) error {
	for i := range bars {
		b := &bars[i]
		if b.Volume < 0 || b.Low > b.High {
			return fmt.Errorf("bar %d (t=%d): %w", i, b.Time, ErrBadBar)
		}
		if i > 0 && b.Time <= bars[i-1].Time {
			return fmt.Errorf("bar %d (t=%d after t=%d): %w", i, b.Time, bars[i-1].Time, ErrUnordered)
		}
	}
	return nil
}

// Closes extracts the close column.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

// Columns extracts all OHLCV columns in one pass.
func Columns(bars []Bar) (open, high, low, close, volume []float64) {
	n := len(bars)
	open = make([]float64, n)
	high = make([]float64, n)
	low = make([]float64, n)
	close = make([]float64, n)
	volume = make([]float64, n)
	for i := range bars {
		open[i] = bars[i].Open
		high[i] = bars[i].High
		low[i] = bars[i].Low
		close[i] = bars[i].Close
		volume[i] = bars[i].Volume
	}
	return
}
