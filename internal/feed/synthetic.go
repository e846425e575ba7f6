package feed

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"chartdesk/internal/model"
)

// SyntheticOptions tunes the generator. Zero fields take defaults.
type SyntheticOptions struct {
	Bars       int       // bars per series (default 500)
	End        time.Time // time of the last bar, truncated to the timeframe (default now)
	Drift      float64   // per-bar log drift (default 0.0002)
	Volatility float64   // per-bar log volatility (default 0.01)
}

// Synthetic generates geometric Brownian motion bars. The random stream is
// seeded from the symbol, so a symbol always yields the same path for the
// same options.
type Synthetic struct {
	opt SyntheticOptions
}

// NewSynthetic returns a generator.
func NewSynthetic(opt SyntheticOptions) *Synthetic {
	if opt.Bars <= 0 {
		opt.Bars = 500
	}
	if opt.Drift == 0 {
		opt.Drift = 0.0002
	}
	if opt.Volatility <= 0 {
		opt.Volatility = 0.01
	}
	return &Synthetic{opt: opt}
}

// Seed derives the generator seed of a symbol.
func Seed(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64() & math.MaxInt64)
}

func (s *Synthetic) Fetch(ctx context.Context, key model.SeriesKey) ([]model.Bar, error) {
	if err := CheckKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step, _ := model.ParseTimeframe(key.Timeframe)

	end := s.opt.End
	if end.IsZero() {
		end = time.Now()
	}
	last := end.Unix() - end.Unix()%step
	first := last - int64(s.opt.Bars-1)*step

	rng := rand.New(rand.NewSource(Seed(key.Symbol)))
	price := 20 + rng.Float64()*180
	mu, sigma := s.opt.Drift, s.opt.Volatility

	bars := make([]model.Bar, s.opt.Bars)
	for i := range bars {
		open := price
		price *= math.Exp(mu - sigma*sigma/2 + sigma*rng.NormFloat64())
		wick := price * sigma * rng.Float64()
		bars[i] = model.Bar{
			Time:   first + int64(i)*step,
			Open:   round2(open),
			High:   round2(math.Max(open, price) + wick),
			Low:    round2(math.Max(0.01, math.Min(open, price)-wick)),
			Close:  round2(price),
			Volume: math.Round(1000 + rng.ExpFloat64()*5000),
		}
	}
	return bars, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
