package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// talibLine masks the warm-up of a TA-Lib output. Series not longer than the
// lookback are returned as whitespace without calling TA-Lib at all.
func talibLine(n, lookback int, f func() []float64) []float64 {
	if n <= lookback {
		return nans(n)
	}
	return maskHead(f(), lookback)
}

func one(v []float64) [][]float64 { return [][]float64{v} }

func length(n int) Inputs { return Inputs{"length": n} }

func registerMovingAverages(r *Registry) {
	ma := func(kind, title string, defaults Inputs, fn ComputeFunc) {
		r.mustRegister(Spec{Kind: kind, Title: title, Family: FamilyMovingAverage, Overlay: true, Lines: []string{kind}, Defaults: defaults}, fn)
	}

	ma("sma", "Simple Moving Average", length(9), func(c Cols, in Inputs) ([][]float64, error) {
		return one(smaOf(c.Close, in.Int("length"))), nil
	})
	ma("ema", "Exponential Moving Average", length(9), func(c Cols, in Inputs) ([][]float64, error) {
		return one(emaOf(c.Close, in.Int("length"))), nil
	})
	ma("smma", "Smoothed Moving Average", length(7), func(c Cols, in Inputs) ([][]float64, error) {
		return one(rmaOf(c.Close, in.Int("length"))), nil
	})
	ma("wma", "Weighted Moving Average", length(9), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), p-1, func() []float64 { return talib.Wma(c.Close, p) })), nil
	})
	ma("dema", "Double EMA", length(9), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), 2*(p-1), func() []float64 { return talib.Dema(c.Close, p) })), nil
	})
	ma("tema", "Triple EMA", length(9), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), 3*(p-1), func() []float64 { return talib.Tema(c.Close, p) })), nil
	})
	ma("trima", "Triangular Moving Average", length(9), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), p-1, func() []float64 { return talib.Trima(c.Close, p) })), nil
	})
	ma("kama", "Kaufman Adaptive Moving Average", length(10), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), p, func() []float64 { return talib.Kama(c.Close, p) })), nil
	})
	ma("t3", "Tillson T3", Inputs{"length": 5, "vfactor": 0.7}, func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), 6*(p-1), func() []float64 { return talib.T3(c.Close, p, in.Float("vfactor")) })), nil
	})
	ma("lsma", "Least Squares Moving Average", length(25), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), p-1, func() []float64 { return talib.LinearReg(c.Close, p) })), nil
	})
	ma("hma", "Hull Moving Average", length(9), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		half := max(p/2, 1)
		raw := sub(scale(wmaOf(c.Close, half), 2), wmaOf(c.Close, p))
		return one(wmaOf(raw, max(int(math.Sqrt(float64(p))), 1))), nil
	})
	ma("zlema", "Zero Lag EMA", length(9), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		lag := (p - 1) / 2
		adj := zipWith(c.Close, shiftOf(c.Close, lag), func(x, y float64) float64 { return x + (x - y) })
		return one(emaOf(adj, p)), nil
	})
	ma("vwma", "Volume Weighted Moving Average", length(20), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		pv := zipWith(c.Close, c.Volume, func(x, y float64) float64 { return x * y })
		return one(ratio(sumOf(pv, p), sumOf(c.Volume, p))), nil
	})
	ma("alma", "Arnaud Legoux Moving Average", Inputs{"length": 9, "offset": 0.85, "sigma": 6.0}, func(c Cols, in Inputs) ([][]float64, error) {
		return one(almaOf(c.Close, in.Int("length"), in.Float("offset"), in.Float("sigma"))), nil
	})
	ma("mcginley", "McGinley Dynamic", length(14), func(c Cols, in Inputs) ([][]float64, error) {
		return one(mcginleyOf(c.Close, in.Int("length"))), nil
	})
	ma("vwap", "Volume Weighted Average Price", Inputs{}, func(c Cols, _ Inputs) ([][]float64, error) {
		return one(vwapOf(c)), nil
	})
}

func almaOf(src []float64, p int, offset, sigma float64) []float64 {
	out := nans(len(src))
	if sigma == 0 {
		sigma = 6
	}
	m := offset * float64(p-1)
	s := float64(p) / sigma
	w := make([]float64, p)
	norm := 0.0
	for i := range w {
		w[i] = math.Exp(-(float64(i) - m) * (float64(i) - m) / (2 * s * s))
		norm += w[i]
	}
	for t := p - 1; t < len(src); t++ {
		sum := 0.0
		for i := 0; i < p; i++ {
			sum += src[t-(p-1-i)] * w[i]
		}
		out[t] = sum / norm
	}
	return out
}

func mcginleyOf(src []float64, p int) []float64 {
	out := emaOf(src, p)
	start := p - 1
	for i := start + 1; i < len(src); i++ {
		prev := out[i-1]
		if prev == 0 {
			out[i] = src[i]
			continue
		}
		out[i] = prev + (src[i]-prev)/(float64(p)*math.Pow(src[i]/prev, 4))
	}
	return out
}

// vwapOf anchors the cumulative sums at each UTC day boundary.
func vwapOf(c Cols) []float64 {
	out := nans(c.Len())
	var day int64 = math.MinInt64
	var pv, vol float64
	for i := range c.Close {
		if d := floorDiv(c.Time[i], 86400); d != day {
			day, pv, vol = d, 0, 0
		}
		tp := (c.High[i] + c.Low[i] + c.Close[i]) / 3
		pv += tp * c.Volume[i]
		vol += c.Volume[i]
		if vol > 0 {
			out[i] = pv / vol
		}
	}
	return out
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
