package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

func registerVolatility(r *Registry) {
	vol := func(kind, title string, overlay bool, lines []string, defaults Inputs, fn ComputeFunc) {
		if lines == nil {
			lines = []string{kind}
		}
		r.mustRegister(Spec{Kind: kind, Title: title, Family: FamilyVolatility, Overlay: overlay, Lines: lines, Defaults: defaults}, fn)
	}
	bands := []string{"basis", "upper", "lower"}

	vol("atr", "Average True Range", false, nil, length(14), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), p, func() []float64 { return talib.Atr(c.High, c.Low, c.Close, p) })), nil
	})
	vol("natr", "Normalized ATR", false, nil, length(14), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), p, func() []float64 { return talib.Natr(c.High, c.Low, c.Close, p) })), nil
	})
	vol("trange", "True Range", false, nil, Inputs{}, func(c Cols, _ Inputs) ([][]float64, error) {
		return one(talibLine(c.Len(), 1, func() []float64 { return talib.TRange(c.High, c.Low, c.Close) })), nil
	})
	vol("bbands", "Bollinger Bands", true, bands, Inputs{"length": 20, "mult": 2.0}, func(c Cols, in Inputs) ([][]float64, error) {
		p, k := in.Int("length"), in.Float("mult")
		if c.Len() <= p-1 {
			return [][]float64{nans(c.Len()), nans(c.Len()), nans(c.Len())}, nil
		}
		up, mid, lo := talib.BBands(c.Close, p, k, k, talib.SMA)
		return [][]float64{maskHead(mid, p-1), maskHead(up, p-1), maskHead(lo, p-1)}, nil
	})
	vol("stddev", "Standard Deviation", false, nil, length(20), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), p-1, func() []float64 { return talib.StdDev(c.Close, p, 1) })), nil
	})
	vol("variance", "Variance", false, nil, length(20), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), p-1, func() []float64 { return talib.Var(c.Close, p) })), nil
	})
	vol("bbwidth", "Bollinger Bands Width", false, nil, Inputs{"length": 20, "mult": 2.0}, func(c Cols, in Inputs) ([][]float64, error) {
		basis, up, lo := bollinger(c.Close, in.Int("length"), in.Float("mult"))
		return one(ratio(sub(up, lo), basis)), nil
	})
	vol("bbpercentb", "Bollinger Bands %B", false, nil, Inputs{"length": 20, "mult": 2.0}, func(c Cols, in Inputs) ([][]float64, error) {
		_, up, lo := bollinger(c.Close, in.Int("length"), in.Float("mult"))
		return one(ratio(sub(c.Close, lo), sub(up, lo))), nil
	})
	vol("keltner", "Keltner Channels", true, bands, Inputs{"length": 20, "mult": 2.0, "atrLength": 10}, func(c Cols, in Inputs) ([][]float64, error) {
		basis := emaOf(c.Close, in.Int("length"))
		band := scale(atrOf(c.High, c.Low, c.Close, in.Int("atrLength")), in.Float("mult"))
		return [][]float64{basis, zipWith(basis, band, plus), sub(basis, band)}, nil
	})
	vol("donchian", "Donchian Channels", true, []string{"upper", "basis", "lower"}, length(20), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		up, lo := highestOf(c.High, p), lowestOf(c.Low, p)
		mid := zipWith(up, lo, func(x, y float64) float64 { return (x + y) / 2 })
		return [][]float64{up, mid, lo}, nil
	})
	vol("envelope", "Envelope", true, []string{"upper", "basis", "lower"}, Inputs{"length": 20, "percent": 10.0}, func(c Cols, in Inputs) ([][]float64, error) {
		basis := smaOf(c.Close, in.Int("length"))
		k := in.Float("percent") / 100
		return [][]float64{scale(basis, 1+k), basis, scale(basis, 1-k)}, nil
	})
	vol("histvol", "Historical Volatility", false, nil, length(10), func(c Cols, in Inputs) ([][]float64, error) {
		lr := nans(c.Len())
		for i := 1; i < c.Len(); i++ {
			if c.Close[i] > 0 && c.Close[i-1] > 0 {
				lr[i] = math.Log(c.Close[i] / c.Close[i-1])
			}
		}
		return one(scale(stdevOf(lr, in.Int("length")), 100*math.Sqrt(252))), nil
	})
	vol("chaikinvol", "Chaikin Volatility", false, nil, Inputs{"length": 10, "roc": 10}, func(c Cols, in Inputs) ([][]float64, error) {
		e := emaOf(sub(c.High, c.Low), in.Int("length"))
		return one(rocOf(e, in.Int("roc"))), nil
	})
	vol("ulcer", "Ulcer Index", false, nil, length(14), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		hi := highestOf(c.Close, p)
		dd2 := zipWith(c.Close, hi, func(x, h float64) float64 {
			d := 100 * (x - h) / h
			return d * d
		})
		out := smaOf(dd2, p)
		for i, v := range out {
			out[i] = math.Sqrt(v)
		}
		return one(out), nil
	})
	r.mustRegister(Spec{
		Kind: "chandelier", Title: "Chandelier Exit", Family: FamilyVolatility, Overlay: true,
		Lines: []string{"long", "short"}, Defaults: Inputs{"length": 22, "mult": 3.0},
		Exclusive: [][2]int{{0, 1}},
	}, func(c Cols, in Inputs) ([][]float64, error) {
		long, short := chandelierOf(c, in.Int("length"), in.Float("mult"))
		return [][]float64{long, short}, nil
	})
}

func plus(x, y float64) float64 { return x + y }

func bollinger(src []float64, p int, k float64) (basis, up, lo []float64) {
	basis = smaOf(src, p)
	dev := scale(stdevOf(src, p), k)
	return basis, zipWith(basis, dev, plus), sub(basis, dev)
}

// chandelierOf trails a stop below the highest high (long) or above the
// lowest low (short) and shows only the side matching the current direction.
func chandelierOf(c Cols, p int, mult float64) (long, short []float64) {
	n := c.Len()
	long, short = nans(n), nans(n)
	atr := atrOf(c.High, c.Low, c.Close, p)
	hh, ll := highestOf(c.High, p), lowestOf(c.Low, p)
	dir := 1
	var prevLong, prevShort float64
	started := false
	for i := 0; i < n; i++ {
		if math.IsNaN(atr[i]) || math.IsNaN(hh[i]) {
			continue
		}
		ls := hh[i] - mult*atr[i]
		ss := ll[i] + mult*atr[i]
		if started {
			if c.Close[i-1] > prevLong {
				ls = math.Max(ls, prevLong)
			}
			if c.Close[i-1] < prevShort {
				ss = math.Min(ss, prevShort)
			}
			switch {
			case c.Close[i] > prevShort:
				dir = 1
			case c.Close[i] < prevLong:
				dir = -1
			}
		}
		if dir == 1 {
			long[i] = ls
		} else {
			short[i] = ss
		}
		prevLong, prevShort, started = ls, ss, true
	}
	return long, short
}
