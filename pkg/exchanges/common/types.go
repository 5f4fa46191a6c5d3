package common

import "time"

// Side is the direction of the position an order opens or protects.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideShort {
		return SideLong
	}
	return SideShort
}

// OrderKind tags the role an order plays inside a bracket.
type OrderKind string

const (
	KindEntry      OrderKind = "ENTRY"
	KindTakeProfit OrderKind = "TAKE_PROFIT"
	KindStopLoss   OrderKind = "STOP_LOSS"
)

// OpenType is the exchange margin mode. The engine passes it through untouched.
type OpenType int

const (
	OpenTypeIsolated OpenType = 1
	OpenTypeCross    OpenType = 2
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// Terminal reports whether no further fills can happen for the order.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected:
		return true
	}
	return false
}

// Candle is one time bucket of one symbol/timeframe.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Closes extracts closing prices in series order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// OrderRequest captures an order intent to be sent to an exchange.
type OrderRequest struct {
	Symbol   string
	Side     Side // side of the position, not the book side
	Kind     OrderKind
	Qty      float64
	Price    float64
	Leverage int
	OpenType OpenType
	ClientID string // optional external order id
}

// Closing reports whether the request reduces an existing position.
func (r OrderRequest) Closing() bool {
	return r.Kind == KindTakeProfit || r.Kind == KindStopLoss
}

// OrderResult returns the exchange ack.
type OrderResult struct {
	OrderID  string
	Status   OrderStatus
	ClientID string
}

// OrderState is a point-in-time view of an order on the exchange.
type OrderState struct {
	OrderID   string
	Status    OrderStatus
	FilledQty float64
	AvgPrice  float64
}
