package indicator

import (
	talib "github.com/markcheno/go-talib"
)

func registerVolume(r *Registry) {
	vol := func(kind, title string, defaults Inputs, fn ComputeFunc) {
		r.mustRegister(Spec{Kind: kind, Title: title, Family: FamilyVolume, Lines: []string{kind}, Defaults: defaults}, fn)
	}

	vol("volume", "Volume", Inputs{}, func(c Cols, _ Inputs) ([][]float64, error) {
		out := make([]float64, c.Len())
		copy(out, c.Volume)
		return one(out), nil
	})
	vol("obv", "On Balance Volume", Inputs{}, func(c Cols, _ Inputs) ([][]float64, error) {
		return one(talibLine(c.Len(), 0, func() []float64 { return talib.Obv(c.Close, c.Volume) })), nil
	})
	vol("ad", "Accumulation/Distribution", Inputs{}, func(c Cols, _ Inputs) ([][]float64, error) {
		return one(talibLine(c.Len(), 0, func() []float64 { return talib.Ad(c.High, c.Low, c.Close, c.Volume) })), nil
	})
	vol("adosc", "Chaikin Oscillator", Inputs{"fast": 3, "slow": 10}, func(c Cols, in Inputs) ([][]float64, error) {
		fast, slow := in.Int("fast"), in.Int("slow")
		return one(talibLine(c.Len(), max(fast, slow)-1, func() []float64 {
			return talib.AdOsc(c.High, c.Low, c.Close, c.Volume, fast, slow)
		})), nil
	})
	vol("cmf", "Chaikin Money Flow", length(20), func(c Cols, in Inputs) ([][]float64, error) {
		p := in.Int("length")
		mfv := make([]float64, c.Len())
		for i := range mfv {
			if rng := c.High[i] - c.Low[i]; rng != 0 {
				mfv[i] = ((c.Close[i] - c.Low[i]) - (c.High[i] - c.Close[i])) / rng * c.Volume[i]
			}
		}
		return one(ratio(sumOf(mfv, p), sumOf(c.Volume, p))), nil
	})
	vol("pvt", "Price Volume Trend", Inputs{}, func(c Cols, _ Inputs) ([][]float64, error) {
		out := nans(c.Len())
		acc := 0.0
		for i := 1; i < c.Len(); i++ {
			if c.Close[i-1] != 0 {
				acc += (c.Close[i] - c.Close[i-1]) / c.Close[i-1] * c.Volume[i]
			}
			out[i] = acc
		}
		return one(out), nil
	})
	vol("eom", "Ease of Movement", Inputs{"length": 14, "divisor": 10000.0}, func(c Cols, in Inputs) ([][]float64, error) {
		mid := hl2(c.High, c.Low)
		raw := nans(c.Len())
		div := in.Float("divisor")
		for i := 1; i < c.Len(); i++ {
			raw[i] = 0
			if c.Volume[i] != 0 {
				raw[i] = div * (mid[i] - mid[i-1]) * (c.High[i] - c.Low[i]) / c.Volume[i]
			}
		}
		return one(smaOf(raw, in.Int("length"))), nil
	})
	vol("forceindex", "Elder Force Index", length(13), func(c Cols, in Inputs) ([][]float64, error) {
		force := zipWith(changeOf(c.Close, 1), c.Volume, func(x, y float64) float64 { return x * y })
		return one(emaOf(force, in.Int("length"))), nil
	})
	vol("nvi", "Negative Volume Index", Inputs{}, func(c Cols, _ Inputs) ([][]float64, error) {
		out := make([]float64, c.Len())
		for i := range out {
			if i == 0 {
				out[i] = 1000
				continue
			}
			out[i] = out[i-1]
			if c.Volume[i] < c.Volume[i-1] && c.Close[i-1] != 0 {
				out[i] += (c.Close[i] - c.Close[i-1]) / c.Close[i-1] * out[i-1]
			}
		}
		return one(out), nil
	})
	vol("vroc", "Volume Rate of Change", length(14), func(c Cols, in Inputs) ([][]float64, error) {
		return one(rocOf(c.Volume, in.Int("length"))), nil
	})
}
