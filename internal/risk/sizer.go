package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrSizingRejected means the inputs cannot produce a tradable quantity.
var ErrSizingRejected = errors.New("sizing rejected")

// PositionSize converts balance, risk fraction, leverage and entry price into an
// order quantity: (balance * riskFraction * leverage) / price, rounded to
// volumePrecision decimals. Degenerate inputs or a quantity that rounds to zero
// are rejected so no order is sent.
func PositionSize(balance, riskFraction float64, leverage int, price float64, volumePrecision int32) (float64, error) {
	switch {
	case !finite(balance) || balance <= 0:
		return 0, fmt.Errorf("balance %.8f: %w", balance, ErrSizingRejected)
	case !finite(price) || price <= 0:
		return 0, fmt.Errorf("price %.8f: %w", price, ErrSizingRejected)
	case !finite(riskFraction) || riskFraction <= 0 || riskFraction > 1:
		return 0, fmt.Errorf("risk fraction %.4f outside (0,1]: %w", riskFraction, ErrSizingRejected)
	case leverage <= 0:
		return 0, fmt.Errorf("leverage %d: %w", leverage, ErrSizingRejected)
	}

	qty := decimal.NewFromFloat(balance).
		Mul(decimal.NewFromFloat(riskFraction)).
		Mul(decimal.NewFromInt(int64(leverage))).
		Div(decimal.NewFromFloat(price)).
		Round(volumePrecision)

	if !qty.IsPositive() {
		return 0, fmt.Errorf("quantity rounds to zero at %d decimals: %w", volumePrecision, ErrSizingRejected)
	}
	q, _ := qty.Float64()
	return q, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
