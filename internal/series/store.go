package series

import (
	"errors"
	"fmt"

	"chartdesk/internal/model"
)

// DefaultMaxCompares bounds the number of compare series per workspace.
const DefaultMaxCompares = 4

var (
	ErrTooManyCompares  = errors.New("compare limit reached")
	ErrDuplicateCompare = errors.New("compare symbol already present")
	ErrCompareNotFound  = errors.New("compare symbol not found")
)

// Store holds one base series and up to maxCompares compare series.
// It is the only state shared (read-only) by the indicator engine, scale
// controller and hover synchronizer.
type Store struct {
	maxCompares int
	base        *Series
	compares    []*Series
	generation  uint64
}

// NewStore creates an empty store. maxCompares <= 0 selects the default.
func NewStore(maxCompares int) *Store {
	if maxCompares <= 0 {
		maxCompares = DefaultMaxCompares
	}
	return &Store{maxCompares: maxCompares}
}

// ReplaceBase swaps the base series wholesale. A symbol is charted once, so
// a compare of the new base's symbol is removed.
func (st *Store) ReplaceBase(key model.SeriesKey, bars []model.Bar) error {
	s, err := New(key, bars)
	if err != nil {
		return err
	}
	if i := st.indexOf(key.Symbol); i >= 0 {
		st.compares = append(st.compares[:i:i], st.compares[i+1:]...)
	}
	st.base = s
	st.generation++
	return nil
}

// AddCompare adds a compare series. The base symbol may not be compared with itself.
func (st *Store) AddCompare(key model.SeriesKey, bars []model.Bar) error {
	if st.base != nil && st.base.key.Symbol == key.Symbol {
		return fmt.Errorf("compare %s: %w", key.Symbol, ErrDuplicateCompare)
	}
	if st.indexOf(key.Symbol) >= 0 {
		return fmt.Errorf("compare %s: %w", key.Symbol, ErrDuplicateCompare)
	}
	if len(st.compares) >= st.maxCompares {
		return fmt.Errorf("compare %s (max %d): %w", key.Symbol, st.maxCompares, ErrTooManyCompares)
	}
	s, err := New(key, bars)
	if err != nil {
		return err
	}
	st.compares = append(st.compares, s)
	st.generation++
	return nil
}

// ReplaceCompare swaps the series of an existing compare, e.g. after a
// timeframe switch.
func (st *Store) ReplaceCompare(key model.SeriesKey, bars []model.Bar) error {
	i := st.indexOf(key.Symbol)
	if i < 0 {
		return fmt.Errorf("compare %s: %w", key.Symbol, ErrCompareNotFound)
	}
	s, err := New(key, bars)
	if err != nil {
		return err
	}
	st.compares[i] = s
	st.generation++
	return nil
}

// RemoveCompare drops a compare series by symbol.
func (st *Store) RemoveCompare(symbol string) error {
	i := st.indexOf(symbol)
	if i < 0 {
		return fmt.Errorf("compare %s: %w", symbol, ErrCompareNotFound)
	}
	st.compares = append(st.compares[:i:i], st.compares[i+1:]...)
	st.generation++
	return nil
}

// Base returns the base series, or nil before the first load.
func (st *Store) Base() *Series { return st.base }

// BaseBars returns the base bars, or nil before the first load.
func (st *Store) BaseBars() []model.Bar {
	if st.base == nil {
		return nil
	}
	return st.base.bars
}

// Compares returns the compare series in insertion order.
func (st *Store) Compares() []*Series {
	out := make([]*Series, len(st.compares))
	copy(out, st.compares)
	return out
}

// Compare returns the compare series for symbol, or nil.
func (st *Store) Compare(symbol string) *Series {
	if i := st.indexOf(symbol); i >= 0 {
		return st.compares[i]
	}
	return nil
}

// MaxCompares returns the compare limit.
func (st *Store) MaxCompares() int { return st.maxCompares }

// Generation increases on every replacement, addition or removal.
func (st *Store) Generation() uint64 { return st.generation }

func (st *Store) indexOf(symbol string) int {
	for i, s := range st.compares {
		if s.key.Symbol == symbol {
			return i
		}
	}
	return -1
}
