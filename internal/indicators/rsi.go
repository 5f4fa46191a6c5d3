package indicators

import (
	"errors"
	"fmt"
)

// DefaultRSIPeriod is the conventional RSI lookback.
const DefaultRSIPeriod = 14

// ErrInsufficientData is returned when the series is shorter than period+1 closes.
var ErrInsufficientData = errors.New("insufficient data")

// RSI computes the Relative Strength Index of the trailing period using simple
// (unsmoothed) averages of gains and losses. A window without losses reads 100.
func RSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("rsi: invalid period %d", period)
	}
	if len(closes) < period+1 {
		return 0, fmt.Errorf("rsi: need %d closes, have %d: %w", period+1, len(closes), ErrInsufficientData)
	}

	gains := make([]float64, 0, period)
	losses := make([]float64, 0, period)
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	avgGain := SMA(gains, period)
	avgLoss := SMA(losses, period)
	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), nil
}
