package indicators

import (
	"time"

	"signal-core/pkg/exchanges/common"
)

// Reading is one RSI value for a symbol/timeframe. It is never persisted.
type Reading struct {
	Symbol     string
	Timeframe  string
	Value      float64
	ComputedAt time.Time
}

// Engine turns candle series into RSI readings. It keeps no state between calls.
type Engine struct {
	period int
	now    func() time.Time
}

// NewEngine builds an engine with the given lookback; non-positive values fall back to 14.
func NewEngine(period int) *Engine {
	if period <= 0 {
		period = DefaultRSIPeriod
	}
	return &Engine{period: period, now: time.Now}
}

// Period returns the lookback window.
func (e *Engine) Period() int {
	return e.period
}

// Compute returns the RSI reading for the closes of candles, or ErrInsufficientData.
func (e *Engine) Compute(symbol, timeframe string, candles []common.Candle) (Reading, error) {
	value, err := RSI(common.Closes(candles), e.period)
	if err != nil {
		return Reading{}, err
	}
	return Reading{
		Symbol:     symbol,
		Timeframe:  timeframe,
		Value:      value,
		ComputedAt: e.now(),
	}, nil
}
