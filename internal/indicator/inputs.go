package indicator

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Inputs holds indicator parameters by name. After normalisation integer
// parameters are int, real parameters float64, and the rest string or bool.
type Inputs map[string]any

// Int returns an integer input, or 0 when missing.
func (in Inputs) Int(name string) int {
	switch v := in[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// Float returns a real input, or 0 when missing.
func (in Inputs) Float(name string) float64 {
	switch v := in[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// String returns a string input, or "" when missing.
func (in Inputs) String(name string) string {
	s, _ := in[name].(string)
	return s
}

// Bool returns a boolean input, or false when missing.
func (in Inputs) Bool(name string) bool {
	b, _ := in[name].(bool)
	return b
}

// Clone returns a shallow copy.
func (in Inputs) Clone() Inputs {
	out := make(Inputs, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Equal reports whether two normalised input sets hold the same values.
func (in Inputs) Equal(other Inputs) bool {
	if len(in) != len(other) {
		return false
	}
	for k, v := range in {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Names returns the input names in sorted order.
func (in Inputs) Names() []string {
	names := make([]string, 0, len(in))
	for k := range in {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// normalize overlays given on defaults. Names absent from defaults are
// rejected; values are coerced to the type of the default. Integer inputs
// are periods and must be >= 1.
func normalize(defaults, given Inputs) (Inputs, error) {
	out := defaults.Clone()
	for name, raw := range given {
		def, ok := defaults[name]
		if !ok {
			return nil, fmt.Errorf("input %q: %w", name, ErrBadInput)
		}
		switch def.(type) {
		case int:
			f, ok := asFloat(raw)
			if !ok || f != math.Trunc(f) || f < 1 || f > 10000 {
				return nil, fmt.Errorf("input %q=%v must be an integer in [1, 10000]: %w", name, raw, ErrBadInput)
			}
			out[name] = int(f)
		case float64:
			f, ok := asFloat(raw)
			if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("input %q=%v must be a number: %w", name, raw, ErrBadInput)
			}
			out[name] = f
		case string:
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("input %q=%v must be a string: %w", name, raw, ErrBadInput)
			}
			out[name] = s
		case bool:
			b, ok := raw.(bool)
			if !ok {
				return nil, fmt.Errorf("input %q=%v must be a boolean: %w", name, raw, ErrBadInput)
			}
			out[name] = b
		}
	}
	return out, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
