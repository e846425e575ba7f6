package indicator

import talib "github.com/markcheno/go-talib"

func registerPrice(r *Registry) {
	price := func(kind, title string, fn func(c Cols) []float64) {
		r.mustRegister(Spec{Kind: kind, Title: title, Family: FamilyPrice, Overlay: true, Lines: []string{kind}, Defaults: Inputs{}},
			func(c Cols, _ Inputs) ([][]float64, error) {
				return one(talibLine(c.Len(), 0, func() []float64 { return fn(c) })), nil
			})
	}

	price("avgprice", "Average Price", func(c Cols) []float64 { return talib.AvgPrice(c.Open, c.High, c.Low, c.Close) })
	price("medprice", "Median Price", func(c Cols) []float64 { return talib.MedPrice(c.High, c.Low) })
	price("typprice", "Typical Price", func(c Cols) []float64 { return talib.TypPrice(c.High, c.Low, c.Close) })
	price("wclprice", "Weighted Close Price", func(c Cols) []float64 { return talib.WclPrice(c.High, c.Low, c.Close) })
}
