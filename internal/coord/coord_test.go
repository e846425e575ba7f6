package coord

import (
	"math"
	"testing"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.9f, want %.9f (tol=%g)", label, got, want, tol)
	}
}

func newMapper(mode Mode) Mapper {
	return New(
		Viewport{Width: 800, Height: 400},
		TimeAxis{BarSpacing: 10, RightEdge: 60},
		PriceAxis{Mode: mode, From: 90, To: 130, Anchor: 100},
	)
}

func TestMapper_TimeAxisRoundTrip(t *testing.T) {
	m := newMapper(Linear)

	assertClose(t, "right edge", m.ToPixelX(60), 800, 1e-9)
	assertClose(t, "one bar left", m.ToPixelX(59), 790, 1e-9)

	for _, idx := range []float64{-3.5, 0, 5, 20.25, 59.9, 75} {
		assertClose(t, "x round trip", m.ToLogical(m.ToPixelX(idx)), idx, 1e-9)
	}

	from, to := m.VisibleLogicalRange()
	assertClose(t, "visible from", from, -20, 1e-9)
	assertClose(t, "visible to", to, 60, 1e-9)
}

func TestMapper_PriceRoundTrip_AllModes(t *testing.T) {
	for _, mode := range []Mode{Linear, Log, Percent} {
		m := newMapper(mode)
		assertClose(t, string(mode)+" bottom", m.ToPixelY(90), 400, 1e-9)
		assertClose(t, string(mode)+" top", m.ToPixelY(130), 0, 1e-9)
		for _, p := range []float64{90, 95.5, 100, 117.25, 130, 150} {
			assertClose(t, string(mode)+" y round trip", m.ToPrice(m.ToPixelY(p)), p, 1e-7)
		}
	}
}

func TestMapper_LogIsNotLinear(t *testing.T) {
	lin := newMapper(Linear)
	lg := newMapper(Log)
	// Midpoint price lands at the pane centre only in linear mode.
	assertClose(t, "linear midpoint", lin.ToPixelY(110), 200, 1e-9)
	if math.Abs(lg.ToPixelY(110)-200) < 1 {
		t.Errorf("log mode should not place the arithmetic midpoint at the centre")
	}
	// Geometric midpoint lands at the centre in log mode.
	assertClose(t, "log geometric midpoint", lg.ToPixelY(math.Sqrt(90*130)), 200, 1e-9)
}

func TestTransform_Percent(t *testing.T) {
	assertClose(t, "percent +10", Transform(Percent, 110, 100), 10, 1e-12)
	assertClose(t, "percent -5", Transform(Percent, 95, 100), -5, 1e-12)
	assertClose(t, "percent inverse", Untransform(Percent, 10, 100), 110, 1e-12)
	// no anchor: behaves like linear
	assertClose(t, "no anchor", Transform(Percent, 42, 0), 42, 1e-12)
}

func TestTransform_LogFloor(t *testing.T) {
	v := Transform(Log, -5, 0)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		t.Fatalf("log of non-positive price must be finite, got %v", v)
	}
}

func TestNew_GuardsBadSpacing(t *testing.T) {
	m := New(Viewport{Width: 100, Height: 100}, TimeAxis{BarSpacing: 0, RightEdge: 10}, PriceAxis{From: 1, To: 2})
	if m.TimeAxis().BarSpacing != 1 {
		t.Errorf("expected spacing fallback 1, got %v", m.TimeAxis().BarSpacing)
	}
	if m.PriceAxis().Mode != Linear {
		t.Errorf("expected default linear mode, got %q", m.PriceAxis().Mode)
	}
}
