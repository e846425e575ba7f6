package drawing

// Point is a logical anchor: time in unix milliseconds and price.
type Point struct {
	Label  string  `json:"label,omitempty" yaml:"label,omitempty"`
	TimeMs int64   `json:"timeMs" yaml:"timeMs"`
	Price  float64 `json:"price" yaml:"price"`
}

// Object is one drawing. K is meaningful for abcd only, Direction for
// elliottWave only, Text for note only.
type Object struct {
	ID        string  `json:"id"`
	Type      Type    `json:"type"`
	Points    []Point `json:"points"`
	Locked    bool    `json:"locked"`
	Hidden    bool    `json:"hidden"`
	Selected  bool    `json:"selected"`
	Z         int     `json:"z"`
	Text      string  `json:"text,omitempty"`
	K         float64 `json:"k,omitempty"`
	Direction string  `json:"direction,omitempty"`
}

func (o *Object) clone() Object {
	cp := *o
	cp.Points = append([]Point(nil), o.Points...)
	return cp
}

// Named returns the points keyed by their type-specific names
// (p1..p4 for abcd, p0..p5 for elliottWave).
func (o *Object) Named() map[string]Point {
	names := table[o.Type].named
	out := make(map[string]Point, len(o.Points))
	for i, p := range o.Points {
		if i < len(names) {
			out[names[i]] = p
		}
	}
	return out
}
