package drawing

import (
	"math"
	"sort"
)

type px struct{ x, y float64 }

func pixels(pr Projector, o *Object) []px {
	out := make([]px, len(o.Points))
	for i, p := range o.Points {
		out[i].x, out[i].y = pr.ToPixel(p.TimeMs, p.Price)
	}
	return out
}

// topmost returns visible objects ordered from highest z down.
func (m *Model) topmost() []*Object {
	out := make([]*Object, 0, len(m.objects))
	for i := len(m.objects) - 1; i >= 0; i-- {
		if !m.objects[i].Hidden {
			out = append(out, m.objects[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Z > out[j].Z })
	return out
}

// hitHandle finds the closest handle within HandleRadius on the topmost
// visible object that has one.
func (m *Model) hitHandle(pr Projector, x, y float64) (*Object, int) {
	for _, o := range m.topmost() {
		best, bestD := -1, HandleRadius
		for i, p := range pixels(pr, o) {
			if d := math.Hypot(p.x-x, p.y-y); d <= bestD {
				best, bestD = i, d
			}
		}
		if best >= 0 {
			return o, best
		}
	}
	return nil, -1
}

// hitObject finds the topmost visible object whose outline or handle is near
// (x, y).
func (m *Model) hitObject(pr Projector, x, y float64) *Object {
	if o, _ := m.hitHandle(pr, x, y); o != nil {
		return o
	}
	for _, o := range m.topmost() {
		if hitBody(o, pixels(pr, o), x, y) {
			return o
		}
	}
	return nil
}

func hitBody(o *Object, ps []px, x, y float64) bool {
	switch o.Type {
	case VLine:
		return math.Abs(x-ps[0].x) <= BodyTolerance
	case HLine:
		return math.Abs(y-ps[0].y) <= BodyTolerance
	case Note:
		return math.Hypot(x-ps[0].x, y-ps[0].y) <= 3*HandleRadius
	case Rectangle, FibRetracement:
		lx, hx := math.Min(ps[0].x, ps[1].x), math.Max(ps[0].x, ps[1].x)
		ly, hy := math.Min(ps[0].y, ps[1].y), math.Max(ps[0].y, ps[1].y)
		return x >= lx-BodyTolerance && x <= hx+BodyTolerance && y >= ly-BodyTolerance && y <= hy+BodyTolerance
	case Ray:
		return distRay(ps[0], ps[1], px{x, y}) <= BodyTolerance
	case Triangle:
		closed := append(ps, ps[0])
		return distPolyline(closed, px{x, y}) <= BodyTolerance
	}
	return distPolyline(ps, px{x, y}) <= BodyTolerance
}

func distPolyline(ps []px, p px) float64 {
	d := math.Inf(1)
	for i := 1; i < len(ps); i++ {
		d = math.Min(d, distSegment(ps[i-1], ps[i], p, false))
	}
	return d
}

func distRay(a, b, p px) float64 { return distSegment(a, b, p, true) }

func distSegment(a, b, p px, open bool) float64 {
	dx, dy := b.x-a.x, b.y-a.y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(p.x-a.x, p.y-a.y)
	}
	t := ((p.x-a.x)*dx + (p.y-a.y)*dy) / l2
	if t < 0 {
		t = 0
	} else if t > 1 && !open {
		t = 1
	}
	return math.Hypot(p.x-(a.x+t*dx), p.y-(a.y+t*dy))
}
