package indicator

import (
	"fmt"
	"sort"

	"chartdesk/internal/model"
)

// Family groups kinds for listing.
type Family string

const (
	FamilyMovingAverage Family = "moving-average"
	FamilyOscillator    Family = "oscillator"
	FamilyVolatility    Family = "volatility"
	FamilyVolume        Family = "volume"
	FamilyTrend         Family = "trend"
	FamilyPrice         Family = "price"
)

// ComputeFunc produces one slice per declared line, each aligned with the
// bars. NaN marks whitespace.
type ComputeFunc func(c Cols, in Inputs) ([][]float64, error)

// Spec describes one registered kind.
type Spec struct {
	Kind     string   `json:"kind"`
	Title    string   `json:"title"`
	Family   Family   `json:"family"`
	Overlay  bool     `json:"overlay"`
	Lines    []string `json:"lines"`
	Defaults Inputs   `json:"defaults"`
	// Exclusive lists line index pairs of which at most one carries a value per bar.
	Exclusive [][2]int `json:"exclusive,omitempty"`

	compute ComputeFunc
}

// Registry maps kinds to exactly one implementation each.
type Registry struct {
	specs map[string]*Spec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*Spec)}
}

// Register adds a kind. Registering a kind twice is an error.
func (r *Registry) Register(s Spec, fn ComputeFunc) error {
	if s.Kind == "" || fn == nil || len(s.Lines) == 0 {
		return fmt.Errorf("register %q: kind, lines and compute are required", s.Kind)
	}
	if _, dup := r.specs[s.Kind]; dup {
		return fmt.Errorf("register %q: kind already registered", s.Kind)
	}
	if s.Defaults == nil {
		s.Defaults = Inputs{}
	}
	s.compute = fn
	r.specs[s.Kind] = &s
	return nil
}

func (r *Registry) mustRegister(s Spec, fn ComputeFunc) {
	if err := r.Register(s, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the spec for kind or ErrUnknownKind.
func (r *Registry) Lookup(kind string) (Spec, error) {
	s, ok := r.specs[kind]
	if !ok {
		return Spec{}, fmt.Errorf("%q: %w", kind, ErrUnknownKind)
	}
	return *s, nil
}

// Kinds returns all specs sorted by kind.
func (r *Registry) Kinds() []Spec {
	out := make([]Spec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Len returns the number of registered kinds.
func (r *Registry) Len() int { return len(r.specs) }

// Normalize merges inputs over the kind's defaults and validates them.
func (r *Registry) Normalize(kind string, in Inputs) (Inputs, error) {
	s, err := r.Lookup(kind)
	if err != nil {
		return nil, err
	}
	return normalize(s.Defaults, in)
}

// Compute runs kind over bars. It is pure: the same arguments always yield
// the same lines. A panic inside the compute function is returned as an error.
func (r *Registry) Compute(kind string, bars []model.Bar, in Inputs) ([]Line, error) {
	s, ok := r.specs[kind]
	if !ok {
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownKind)
	}
	norm, err := normalize(s.Defaults, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	cols := colsOf(bars)
	raw, err := safeCompute(s.compute, cols, norm)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	if len(raw) != len(s.Lines) {
		return nil, fmt.Errorf("%s: produced %d lines, want %d", kind, len(raw), len(s.Lines))
	}
	for k := range raw {
		if len(raw[k]) != cols.Len() {
			return nil, fmt.Errorf("%s: line %s has %d values for %d bars", kind, s.Lines[k], len(raw[k]), cols.Len())
		}
	}
	return toLines(s.Lines, cols.Time, raw), nil
}

func safeCompute(fn ComputeFunc, c Cols, in Inputs) (out [][]float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("compute panic: %v", rec)
		}
	}()
	return fn(c, in)
}

var builtin = newBuiltin()

// Default returns the registry of built-in kinds. It is read-only after init.
func Default() *Registry { return builtin }

func newBuiltin() *Registry {
	r := NewRegistry()
	registerMovingAverages(r)
	registerOscillators(r)
	registerVolatility(r)
	registerVolume(r)
	registerTrend(r)
	registerPrice(r)
	return r
}
