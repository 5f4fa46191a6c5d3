package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"signal-core/pkg/exchanges/common"
)

// ErrInvalidBracket means the exit legs would not sit strictly on the profitable
// and protective sides of the entry.
var ErrInvalidBracket = errors.New("invalid bracket")

var decOne = decimal.NewFromInt(1)

// BracketPrices are the exit legs for a filled entry.
type BracketPrices struct {
	Entry      float64
	TakeProfit float64
	StopLoss   float64
}

// EntryPrice shades the signal price by offset in the position's favour:
// below market for longs, above for shorts.
func EntryPrice(side common.Side, signalPrice, offset float64, p Precision) (float64, error) {
	if !finite(signalPrice) || signalPrice <= 0 {
		return 0, fmt.Errorf("signal price %.8f: %w", signalPrice, ErrSizingRejected)
	}
	if !finite(offset) || offset < 0 || offset >= 1 {
		return 0, fmt.Errorf("entry offset %.6f outside [0,1): %w", offset, ErrSizingRejected)
	}
	factor := decOne.Sub(decimal.NewFromFloat(offset))
	if side == common.SideShort {
		factor = decOne.Add(decimal.NewFromFloat(offset))
	}
	price, _ := decimal.NewFromFloat(signalPrice).Mul(factor).Round(p.Price).Float64()
	if price <= 0 {
		return 0, fmt.Errorf("entry price rounds to zero: %w", ErrSizingRejected)
	}
	return price, nil
}

// ComputeBracket derives take-profit and stop-loss prices from entry.
// Long: TP = entry*(1+tp), SL = entry*(1-sl). Short mirrors the signs.
// Both prices are rounded and must still strictly straddle the entry.
func ComputeBracket(side common.Side, entry, takeProfitPct, stopLossPct float64, p Precision) (BracketPrices, error) {
	if !finite(entry) || entry <= 0 {
		return BracketPrices{}, fmt.Errorf("entry %.8f: %w", entry, ErrInvalidBracket)
	}
	if !finite(takeProfitPct) || takeProfitPct <= 0 || !finite(stopLossPct) || stopLossPct <= 0 {
		return BracketPrices{}, fmt.Errorf("tp %.4f sl %.4f must be positive: %w", takeProfitPct, stopLossPct, ErrInvalidBracket)
	}

	base := decimal.NewFromFloat(entry)
	tp := decimal.NewFromFloat(takeProfitPct)
	sl := decimal.NewFromFloat(stopLossPct)

	var tpPrice, slPrice decimal.Decimal
	if side == common.SideShort {
		tpPrice = base.Mul(decOne.Sub(tp))
		slPrice = base.Mul(decOne.Add(sl))
	} else {
		tpPrice = base.Mul(decOne.Add(tp))
		slPrice = base.Mul(decOne.Sub(sl))
	}

	out := BracketPrices{Entry: entry}
	out.TakeProfit, _ = tpPrice.Round(p.Price).Float64()
	out.StopLoss, _ = slPrice.Round(p.Price).Float64()

	if out.TakeProfit <= 0 || out.StopLoss <= 0 {
		return BracketPrices{}, fmt.Errorf("non-positive leg tp=%.8f sl=%.8f: %w", out.TakeProfit, out.StopLoss, ErrInvalidBracket)
	}
	var ok bool
	if side == common.SideShort {
		ok = out.TakeProfit < entry && entry < out.StopLoss
	} else {
		ok = out.TakeProfit > entry && entry > out.StopLoss
	}
	if !ok {
		return BracketPrices{}, fmt.Errorf("%s legs tp=%.8f sl=%.8f do not straddle entry %.8f: %w", side, out.TakeProfit, out.StopLoss, entry, ErrInvalidBracket)
	}
	return out, nil
}
