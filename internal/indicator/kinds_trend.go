package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

func registerTrend(r *Registry) {
	trend := func(kind, title string, overlay bool, lines []string, defaults Inputs, fn ComputeFunc) {
		if lines == nil {
			lines = []string{kind}
		}
		r.mustRegister(Spec{Kind: kind, Title: title, Family: FamilyTrend, Overlay: overlay, Lines: lines, Defaults: defaults}, fn)
	}
	// hlc wraps the TA-Lib functions that take high, low, close and a period.
	hlc := func(kind, title string, lookback func(p int) int, f func(h, l, c []float64, p int) []float64) {
		trend(kind, title, false, nil, length(14), func(c Cols, in Inputs) ([][]float64, error) {
			p := in.Int("length")
			return one(talibLine(c.Len(), lookback(p), func() []float64 { return f(c.High, c.Low, c.Close, p) })), nil
		})
	}
	// closeOnly wraps the TA-Lib functions that take close and a period.
	closeOnly := func(kind, title string, overlay bool, f func(in []float64, p int) []float64) {
		trend(kind, title, overlay, nil, length(14), func(c Cols, in Inputs) ([][]float64, error) {
			p := in.Int("length")
			return one(talibLine(c.Len(), p-1, func() []float64 { return f(c.Close, p) })), nil
		})
	}

	hlc("adx", "Average Directional Index", func(p int) int { return 2*p - 1 }, talib.Adx)
	hlc("adxr", "ADX Rating", func(p int) int { return 3*p - 2 }, talib.AdxR)
	hlc("dx", "Directional Movement Index (DX)", func(p int) int { return p }, talib.Dx)
	trend("dmi", "Directional Movement", false, []string{"plus", "minus", "adx"}, length(14), func(c Cols, in Inputs) ([][]float64, error) {
		p, n := in.Int("length"), c.Len()
		return [][]float64{
			talibLine(n, p, func() []float64 { return talib.PlusDI(c.High, c.Low, c.Close, p) }),
			talibLine(n, p, func() []float64 { return talib.MinusDI(c.High, c.Low, c.Close, p) }),
			talibLine(n, 2*p-1, func() []float64 { return talib.Adx(c.High, c.Low, c.Close, p) }),
		}, nil
	})
	trend("aroon", "Aroon", false, []string{"up", "down"}, length(14), func(c Cols, in Inputs) ([][]float64, error) {
		p, n := in.Int("length"), c.Len()
		if n <= p {
			return [][]float64{nans(n), nans(n)}, nil
		}
		down, up := talib.Aroon(c.High, c.Low, p)
		return [][]float64{maskHead(up, p), maskHead(down, p)}, nil
	})
	trend("aroonosc", "Aroon Oscillator", false, nil, length(14), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), p, func() []float64 { return talib.AroonOsc(c.High, c.Low, p) })), nil
	})
	closeOnly("linregslope", "Linear Regression Slope", false, talib.LinearRegSlope)
	closeOnly("linregangle", "Linear Regression Angle", false, talib.LinearRegAngle)
	closeOnly("linregintercept", "Linear Regression Intercept", true, talib.LinearRegIntercept)
	closeOnly("tsf", "Time Series Forecast", true, talib.Tsf)
	closeOnly("midpoint", "Midpoint", true, talib.MidPoint)
	trend("midprice", "Midpoint Price", true, nil, length(14), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), p-1, func() []float64 { return talib.MidPrice(c.High, c.Low, p) })), nil
	})
	trend("httrendline", "Hilbert Transform Trendline", true, nil, Inputs{}, func(c Cols, _ Inputs) ([][]float64, error) {
		return one(talibLine(c.Len(), 63, func() []float64 { return talib.HtTrendline(c.Close) })), nil
	})
	r.mustRegister(Spec{
		Kind: "psar", Title: "Parabolic SAR", Family: FamilyTrend, Overlay: true,
		Lines: []string{"up", "down"}, Defaults: Inputs{"start": 0.02, "max": 0.2},
		Exclusive: [][2]int{{0, 1}},
	}, func(c Cols, in Inputs) ([][]float64, error) {
		n := c.Len()
		up, down := nans(n), nans(n)
		if n <= 1 {
			return [][]float64{up, down}, nil
		}
		sar := talib.Sar(c.High, c.Low, in.Float("start"), in.Float("max"))
		for i := 1; i < n; i++ {
			if sar[i] < c.Close[i] {
				up[i] = sar[i]
			} else {
				down[i] = sar[i]
			}
		}
		return [][]float64{up, down}, nil
	})
	r.mustRegister(Spec{
		Kind: "supertrend", Title: "Supertrend", Family: FamilyTrend, Overlay: true,
		Lines: []string{"up", "down"}, Defaults: Inputs{"length": 10, "mult": 3.0},
		Exclusive: [][2]int{{0, 1}},
	}, func(c Cols, in Inputs) ([][]float64, error) {
		up, down := supertrendOf(c, in.Int("length"), in.Float("mult"))
		return [][]float64{up, down}, nil
	})
	trend("ichimoku", "Ichimoku Cloud", true, []string{"conversion", "base", "spanA", "spanB", "lagging"},
		Inputs{"conversion": 9, "base": 26, "spanB": 52, "displacement": 26},
		func(c Cols, in Inputs) ([][]float64, error) {
			mid := func(p int) []float64 {
				return zipWith(highestOf(c.High, p), lowestOf(c.Low, p), func(x, y float64) float64 { return (x + y) / 2 })
			}
			conv, base := mid(in.Int("conversion")), mid(in.Int("base"))
			d := in.Int("displacement") - 1
			spanA := shiftOf(zipWith(conv, base, func(x, y float64) float64 { return (x + y) / 2 }), d)
			spanB := shiftOf(mid(in.Int("spanB")), d)
			lag := shiftOf(c.Close, -d)
			return [][]float64{conv, base, spanA, spanB, lag}, nil
		})
	trend("vortex", "Vortex Indicator", false, []string{"plus", "minus"}, length(14), func(c Cols, in Inputs) ([][]float64, error) {
		p, n := in.Int("length"), c.Len()
		vmPlus, vmMinus := nans(n), nans(n)
		for i := 1; i < n; i++ {
			vmPlus[i] = math.Abs(c.High[i] - c.Low[i-1])
			vmMinus[i] = math.Abs(c.Low[i] - c.High[i-1])
		}
		tr := sumOf(trueRange(c.High, c.Low, c.Close), p)
		return [][]float64{ratio(sumOf(vmPlus, p), tr), ratio(sumOf(vmMinus, p), tr)}, nil
	})
	trend("choppiness", "Choppiness Index", false, nil, length(14), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		sumTR := sumOf(trueRange(c.High, c.Low, c.Close), p)
		rng := sub(highestOf(c.High, p), lowestOf(c.Low, p))
		out := ratio(sumTR, rng)
		for i, v := range out {
			out[i] = 100 * math.Log10(v) / math.Log10(float64(p))
		}
		return one(out), nil
	})
}

// supertrendOf emits the lower band while the trend is up and the upper band
// while it is down.
func supertrendOf(c Cols, p int, mult float64) (up, down []float64) {
	n := c.Len()
	up, down = nans(n), nans(n)
	atr := atrOf(c.High, c.Low, c.Close, p)
	trend := 1
	var prevUp, prevDn float64
	started := false
	for i := 0; i < n; i++ {
		if math.IsNaN(atr[i]) {
			continue
		}
		mid := (c.High[i] + c.Low[i]) / 2
		u := mid - mult*atr[i]
		d := mid + mult*atr[i]
		if started {
			if c.Close[i-1] > prevUp {
				u = math.Max(u, prevUp)
			}
			if c.Close[i-1] < prevDn {
				d = math.Min(d, prevDn)
			}
			switch {
			case trend == -1 && c.Close[i] > prevDn:
				trend = 1
			case trend == 1 && c.Close[i] < prevUp:
				trend = -1
			}
		}
		if trend == 1 {
			up[i] = u
		} else {
			down[i] = d
		}
		prevUp, prevDn, started = u, d, true
	}
	return up, down
}
