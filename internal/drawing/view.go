package drawing

// Pixel is a handle position in pane pixels.
type Pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Level is one derived fibonacci retracement level.
type Level struct {
	Ratio float64 `json:"ratio"`
	Price float64 `json:"price"`
}

// View is the snapshot projection of one object.
type View struct {
	ID        string           `json:"id"`
	Type      Type             `json:"type"`
	Selected  bool             `json:"selected"`
	Locked    bool             `json:"locked"`
	Hidden    bool             `json:"hidden"`
	Z         int              `json:"z"`
	Points    []Point          `json:"points"`
	HandlesPx []Pixel          `json:"handlesPx"`
	Named     map[string]Point `json:"named"`
	K         *float64         `json:"k,omitempty"`
	Direction string           `json:"direction,omitempty"`
	Text      string           `json:"text,omitempty"`
	Levels    []Level          `json:"levels,omitempty"`
	InView    bool             `json:"inView"`
}

// Views projects every object for a pane of the given size. Hidden objects
// are listed but never reported in view.
func (m *Model) Views(pr Projector, width, height float64) []View {
	out := make([]View, 0, len(m.objects))
	for _, o := range m.objects {
		v := View{
			ID:        o.ID,
			Type:      o.Type,
			Selected:  o.Selected,
			Locked:    o.Locked,
			Hidden:    o.Hidden,
			Z:         o.Z,
			Points:    append([]Point(nil), o.Points...),
			Named:     o.Named(),
			Direction: o.Direction,
			Text:      o.Text,
		}
		for _, p := range pixels(pr, o) {
			v.HandlesPx = append(v.HandlesPx, Pixel{X: p.x, Y: p.y})
			if !o.Hidden && p.x >= 0 && p.x <= width && p.y >= 0 && p.y <= height {
				v.InView = true
			}
		}
		if o.Type == ABCD {
			k := o.K
			v.K = &k
		}
		if o.Type == FibRetracement {
			from, to := o.Points[0].Price, o.Points[1].Price
			for _, r := range FibLevels {
				v.Levels = append(v.Levels, Level{Ratio: r, Price: to + (from-to)*r})
			}
		}
		out = append(out, v)
	}
	return out
}
