package indicator

import "math"

// Slice helpers used by the hand-written kinds. Inputs may carry a leading run
// of NaN (the warm-up of an upstream series); outputs are NaN until the
// helper itself has enough real values.

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// maskHead sets the first k values to NaN in place and returns v.
func maskHead(v []float64, k int) []float64 {
	if k > len(v) {
		k = len(v)
	}
	for i := 0; i < k; i++ {
		v[i] = math.NaN()
	}
	return v
}

// firstReal returns the index of the first non-NaN value, or len(v).
func firstReal(v []float64) int {
	for i, x := range v {
		if !math.IsNaN(x) {
			return i
		}
	}
	return len(v)
}

// runSmoother feeds src through s, emitting NaN until s is ready.
func runSmoother(src []float64, s Smoother) []float64 {
	out := nans(len(src))
	for i := firstReal(src); i < len(src); i++ {
		if math.IsNaN(src[i]) {
			continue
		}
		s.Update(src[i])
		if s.Ready() {
			out[i] = s.Value()
		}
	}
	return out
}

func smaOf(src []float64, p int) []float64 { return runSmoother(src, NewSMA(p)) }
func emaOf(src []float64, p int) []float64 { return runSmoother(src, NewEMA(p)) }
func rmaOf(src []float64, p int) []float64 { return runSmoother(src, NewSMMA(p)) }

// wmaOf is the linearly weighted moving average.
func wmaOf(src []float64, p int) []float64 {
	out := nans(len(src))
	start := firstReal(src)
	denom := float64(p*(p+1)) / 2
	for i := start + p - 1; i < len(src); i++ {
		sum := 0.0
		for j := 0; j < p; j++ {
			sum += src[i-j] * float64(p-j)
		}
		out[i] = sum / denom
	}
	return out
}

// sumOf is the rolling sum over p values.
func sumOf(src []float64, p int) []float64 {
	out := nans(len(src))
	start := firstReal(src)
	sum := 0.0
	for i := start; i < len(src); i++ {
		sum += src[i]
		if i-start >= p {
			sum -= src[i-p]
		}
		if i-start >= p-1 {
			out[i] = sum
		}
	}
	return out
}

// stdevOf is the rolling population standard deviation.
func stdevOf(src []float64, p int) []float64 {
	out := nans(len(src))
	start := firstReal(src)
	for i := start + p - 1; i < len(src); i++ {
		mean := 0.0
		for j := 0; j < p; j++ {
			mean += src[i-j]
		}
		mean /= float64(p)
		ss := 0.0
		for j := 0; j < p; j++ {
			d := src[i-j] - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(p))
	}
	return out
}

func highestOf(src []float64, p int) []float64 {
	return rolling(src, p, func(a, b float64) bool { return a > b })
}

func lowestOf(src []float64, p int) []float64 {
	return rolling(src, p, func(a, b float64) bool { return a < b })
}

func rolling(src []float64, p int, better func(a, b float64) bool) []float64 {
	out := nans(len(src))
	start := firstReal(src)
	for i := start + p - 1; i < len(src); i++ {
		best := src[i]
		for j := 1; j < p; j++ {
			if better(src[i-j], best) {
				best = src[i-j]
			}
		}
		out[i] = best
	}
	return out
}

// changeOf returns src[i] - src[i-k].
func changeOf(src []float64, k int) []float64 {
	out := nans(len(src))
	for i := k; i < len(src); i++ {
		out[i] = src[i] - src[i-k]
	}
	return out
}

// rocOf returns 100 * (src[i] - src[i-k]) / src[i-k].
func rocOf(src []float64, k int) []float64 {
	out := nans(len(src))
	for i := k; i < len(src); i++ {
		if src[i-k] != 0 {
			out[i] = 100 * (src[i] - src[i-k]) / src[i-k]
		}
	}
	return out
}

// shiftOf moves values k bars to the right (k > 0) or left (k < 0).
func shiftOf(src []float64, k int) []float64 {
	out := nans(len(src))
	for i := range src {
		j := i - k
		if j >= 0 && j < len(src) {
			out[i] = src[j]
		}
	}
	return out
}

// trueRange uses high-low for the first bar.
func trueRange(h, l, c []float64) []float64 {
	out := make([]float64, len(c))
	for i := range c {
		out[i] = h[i] - l[i]
		if i > 0 {
			out[i] = math.Max(out[i], math.Max(math.Abs(h[i]-c[i-1]), math.Abs(l[i]-c[i-1])))
		}
	}
	return out
}

func atrOf(h, l, c []float64, p int) []float64 { return rmaOf(trueRange(h, l, c), p) }

func hl2(h, l []float64) []float64 {
	out := make([]float64, len(h))
	for i := range h {
		out[i] = (h[i] + l[i]) / 2
	}
	return out
}

// zipWith combines two equal-length series element-wise.
func zipWith(a, b []float64, f func(x, y float64) float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = f(a[i], b[i])
	}
	return out
}

func sub(a, b []float64) []float64 { return zipWith(a, b, func(x, y float64) float64 { return x - y }) }

// ratio divides element-wise; a zero denominator yields NaN.
func ratio(a, b []float64) []float64 {
	return zipWith(a, b, func(x, y float64) float64 {
		if y == 0 {
			return math.NaN()
		}
		return x / y
	})
}

func scale(src []float64, k float64) []float64 {
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = v * k
	}
	return out
}
