package common

import "context"

// MarketData serves recent candle series.
type MarketData interface {
	Candles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
}

// Account serves the tradable balance of a quote currency.
type Account interface {
	AvailableBalance(ctx context.Context, currency string) (float64, error)
}

// Gateway submits and cancels orders. Calls are not idempotent; callers must not retry blindly.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// StatusReader is implemented by gateways that can report fill progress.
type StatusReader interface {
	OrderStatus(ctx context.Context, symbol, orderID string) (OrderState, error)
}

// Exchange bundles every port the engine consumes from a venue.
type Exchange interface {
	MarketData
	Account
	Gateway
}
