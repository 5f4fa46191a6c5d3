package risk

import "github.com/shopspring/decimal"

// Precision is the number of decimals an instrument accepts for price and volume.
type Precision struct {
	Price  int32
	Volume int32
}

// DefaultPrecision matches the contract defaults used for most USDT pairs.
var DefaultPrecision = Precision{Price: 4, Volume: 3}

// RoundPrice rounds v half away from zero to the price precision.
func (p Precision) RoundPrice(v float64) float64 {
	return roundTo(v, p.Price)
}

// RoundVolume rounds v half away from zero to the volume precision.
func (p Precision) RoundVolume(v float64) float64 {
	return roundTo(v, p.Volume)
}

func roundTo(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// Precisions holds per-symbol overrides.
type Precisions map[string]Precision

// For returns the precision of symbol, or DefaultPrecision when none is configured.
func (ps Precisions) For(symbol string) Precision {
	if p, ok := ps[symbol]; ok {
		return p
	}
	return DefaultPrecision
}
