package indicator

import (
	"math"
	"strconv"

	talib "github.com/markcheno/go-talib"
)

func registerOscillators(r *Registry) {
	osc := func(kind, title string, lines []string, defaults Inputs, fn ComputeFunc) {
		if lines == nil {
			lines = []string{kind}
		}
		r.mustRegister(Spec{Kind: kind, Title: title, Family: FamilyOscillator, Lines: lines, Defaults: defaults}, fn)
	}

	osc("rsi", "Relative Strength Index", nil, length(14), func(c Cols, in Inputs) ([][]float64, error) {
		return one(runSmoother(c.Close, NewRSI(in.Int("length")))), nil
	})
	osc("macd", "MACD", []string{"macd", "signal", "histogram"}, Inputs{"fast": 12, "slow": 26, "signal": 9}, func(c Cols, in Inputs) ([][]float64, error) {
		fast, slow, sig := in.Int("fast"), in.Int("slow"), in.Int("signal")
		lb := max(fast, slow) - 1 + sig - 1
		if c.Len() <= lb {
			return [][]float64{nans(c.Len()), nans(c.Len()), nans(c.Len())}, nil
		}
		m, s, h := talib.Macd(c.Close, fast, slow, sig)
		return [][]float64{maskHead(m, lb), maskHead(s, lb), maskHead(h, lb)}, nil
	})
	osc("stoch", "Stochastic", []string{"k", "d"}, Inputs{"k": 14, "smoothK": 3, "d": 3}, func(c Cols, in Inputs) ([][]float64, error) {
		k, sk, d := in.Int("k"), in.Int("smoothK"), in.Int("d")
		lb := (k - 1) + (sk - 1) + (d - 1)
		if c.Len() <= lb {
			return [][]float64{nans(c.Len()), nans(c.Len())}, nil
		}
		kk, dd := talib.Stoch(c.High, c.Low, c.Close, k, sk, talib.SMA, d, talib.SMA)
		return [][]float64{maskHead(kk, lb), maskHead(dd, lb)}, nil
	})
	osc("stochf", "Stochastic Fast", []string{"k", "d"}, Inputs{"k": 5, "d": 3}, func(c Cols, in Inputs) ([][]float64, error) {
		k, d := in.Int("k"), in.Int("d")
		lb := (k - 1) + (d - 1)
		if c.Len() <= lb {
			return [][]float64{nans(c.Len()), nans(c.Len())}, nil
		}
		kk, dd := talib.StochF(c.High, c.Low, c.Close, k, d, talib.SMA)
		return [][]float64{maskHead(kk, lb), maskHead(dd, lb)}, nil
	})
	osc("stochrsi", "Stochastic RSI", []string{"k", "d"}, Inputs{"length": 14, "k": 14, "d": 3}, func(c Cols, in Inputs) ([][]float64, error) {
		p, k, d := in.Int("length"), in.Int("k"), in.Int("d")
		lb := p + (k - 1) + (d - 1)
		if c.Len() <= lb {
			return [][]float64{nans(c.Len()), nans(c.Len())}, nil
		}
		kk, dd := talib.StochRsi(c.Close, p, k, d, talib.SMA)
		return [][]float64{maskHead(kk, lb), maskHead(dd, lb)}, nil
	})
	osc("cci", "Commodity Channel Index", nil, length(20), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), p-1, func() []float64 { return talib.Cci(c.High, c.Low, c.Close, p) })), nil
	})
	osc("mom", "Momentum", nil, length(10), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), p, func() []float64 { return talib.Mom(c.Close, p) })), nil
	})
	osc("roc", "Rate of Change", nil, length(9), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), p, func() []float64 { return talib.Roc(c.Close, p) })), nil
	})
	osc("willr", "Williams %R", nil, length(14), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), p-1, func() []float64 { return talib.WillR(c.High, c.Low, c.Close, p) })), nil
	})
	osc("mfi", "Money Flow Index", nil, length(14), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), p, func() []float64 { return talib.Mfi(c.High, c.Low, c.Close, c.Volume, p) })), nil
	})
	osc("cmo", "Chande Momentum Oscillator", nil, length(9), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), p, func() []float64 { return talib.Cmo(c.Close, p) })), nil
	})
	osc("ppo", "Percentage Price Oscillator", nil, Inputs{"fast": 12, "slow": 26}, func(c Cols, in Inputs) ([][]float64, error) {
		fast, slow := in.Int("fast"), in.Int("slow")
		return one(talibLine(c.Len(), max(fast, slow)-1, func() []float64 { return talib.Ppo(c.Close, fast, slow, talib.EMA) })), nil
	})
	osc("apo", "Absolute Price Oscillator", nil, Inputs{"fast": 10, "slow": 20}, func(c Cols, in Inputs) ([][]float64, error) {
		fast, slow := in.Int("fast"), in.Int("slow")
		return one(talibLine(c.Len(), max(fast, slow)-1, func() []float64 { return talib.Apo(c.Close, fast, slow, talib.EMA) })), nil
	})
	osc("trix", "TRIX", nil, length(18), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(talibLine(c.Len(), 3*(p-1)+1, func() []float64 { return talib.Trix(c.Close, p) })), nil
	})
	osc("ultosc", "Ultimate Oscillator", nil, Inputs{"fast": 7, "middle": 14, "slow": 28}, func(c Cols, in Inputs) ([][]float64, error) {
		f, m, s := in.Int("fast"), in.Int("middle"), in.Int("slow")
		return one(talibLine(c.Len(), max(f, m, s), func() []float64 { return talib.UltOsc(c.High, c.Low, c.Close, f, m, s) })), nil
	})
	osc("bop", "Balance of Power", nil, Inputs{}, func(c Cols, _ Inputs) ([][]float64, error) {
		return one(talibLine(c.Len(), 0, func() []float64 { return talib.Bop(c.Open, c.High, c.Low, c.Close) })), nil
	})
	osc("ao", "Awesome Oscillator", nil, Inputs{"fast": 5, "slow": 34}, func(c Cols, in Inputs) ([][]float64, error) {
		mid := hl2(c.High, c.Low)
		return one(sub(smaOf(mid, in.Int("fast")), smaOf(mid, in.Int("slow")))), nil
	})
	osc("dpo", "Detrended Price Oscillator", nil, length(21), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		return one(sub(c.Close, shiftOf(smaOf(c.Close, p), p/2+1))), nil
	})
	osc("tsi", "True Strength Index", []string{"tsi", "signal"}, Inputs{"long": 25, "short": 13, "signal": 13}, func(c Cols, in Inputs) ([][]float64, error) {
		long, short := in.Int("long"), in.Int("short")
		mom := changeOf(c.Close, 1)
		abs := make([]float64, len(mom))
		for i, v := range mom {
			abs[i] = math.Abs(v)
		}
		tsi := scale(ratio(emaOf(emaOf(mom, long), short), emaOf(emaOf(abs, long), short)), 100)
		return [][]float64{tsi, emaOf(tsi, in.Int("signal"))}, nil
	})
	osc("fisher", "Fisher Transform", []string{"fisher", "trigger"}, length(9), func(c Cols, in Inputs) ([][]float64, error) {
		f := fisherOf(hl2(c.High, c.Low), in.Int("length"))
		return [][]float64{f, shiftOf(f, 1)}, nil
	})
	osc("coppock", "Coppock Curve", nil, Inputs{"wma": 10, "long": 14, "short": 11}, func(c Cols, in Inputs) ([][]float64, error) {
		sum := zipWith(rocOf(c.Close, in.Int("long")), rocOf(c.Close, in.Int("short")), func(x, y float64) float64 { return x + y })
		return one(wmaOf(sum, in.Int("wma"))), nil
	})
	osc("kst", "Know Sure Thing", []string{"kst", "signal"}, Inputs{
		"roc1": 10, "roc2": 15, "roc3": 20, "roc4": 30,
		"sma1": 10, "sma2": 10, "sma3": 10, "sma4": 15, "signal": 9,
	}, func(c Cols, in Inputs) ([][]float64, error) {
		kst := make([]float64, c.Len())
		for w := 1; w <= 4; w++ {
			part := smaOf(rocOf(c.Close, in.Int("roc"+strconv.Itoa(w))), in.Int("sma"+strconv.Itoa(w)))
			for i := range kst {
				kst[i] += float64(w) * part[i]
			}
		}
		return [][]float64{kst, smaOf(kst, in.Int("signal"))}, nil
	})
	osc("rvi", "Relative Vigor Index", []string{"rvi", "signal"}, length(10), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		num := swmaOf(sub(c.Close, c.Open))
		den := swmaOf(sub(c.High, c.Low))
		rvi := ratio(sumOf(num, p), sumOf(den, p))
		return [][]float64{rvi, swmaOf(rvi)}, nil
	})
}

// swmaOf is the symmetric 4-bar weighted average (1,2,2,1)/6.
func swmaOf(src []float64) []float64 {
	out := nans(len(src))
	for i := firstReal(src) + 3; i < len(src); i++ {
		out[i] = (src[i] + 2*src[i-1] + 2*src[i-2] + src[i-3]) / 6
	}
	return out
}

func fisherOf(src []float64, p int) []float64 {
	out := nans(len(src))
	hi, lo := highestOf(src, p), lowestOf(src, p)
	var val, fish float64
	for i := p - 1; i < len(src); i++ {
		x := 0.0
		if rng := hi[i] - lo[i]; rng != 0 {
			x = (src[i]-lo[i])/rng - 0.5
		}
		val = 0.66*x + 0.67*val
		val = math.Max(-0.999, math.Min(0.999, val))
		fish = 0.5*math.Log((1+val)/(1-val)) + 0.5*fish
		out[i] = fish
	}
	return out
}
