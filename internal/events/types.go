package events

import "time"

// Event enumerates lifecycle topics of the signal engine.
type Event string

const (
	EventCycleCompleted   Event = "cycle.completed"
	EventSignalRaised     Event = "signal.raised"
	EventSymbolFailed     Event = "symbol.failed"
	EventOrderSubmitted   Event = "order.submitted"
	EventOrderRejected    Event = "order.rejected"
	EventOrderFilled      Event = "order.filled"
	EventOrderCancelled   Event = "order.cancelled"
	EventOrderTimedOut    Event = "order.timed_out"
	EventBracketSubmitted Event = "bracket.submitted"
	EventNotification     Event = "notification"
	EventEngineStarted    Event = "engine.started"
)

// All lists every topic, in the order streamed to websocket clients.
var All = []Event{
	EventEngineStarted,
	EventCycleCompleted,
	EventSignalRaised,
	EventSymbolFailed,
	EventOrderSubmitted,
	EventOrderRejected,
	EventOrderFilled,
	EventOrderCancelled,
	EventOrderTimedOut,
	EventBracketSubmitted,
	EventNotification,
}

// Lifecycle is the payload for signal and order topics.
type Lifecycle struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe,omitempty"`
	Side      string    `json:"side,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	State     string    `json:"state,omitempty"`
	Price     float64   `json:"price,omitempty"`
	Qty       float64   `json:"qty,omitempty"`
	RSI       float64   `json:"rsi,omitempty"`
	Message   string    `json:"message,omitempty"`
	Time      time.Time `json:"time"`
}

// Cycle summarises one scheduler pass.
type Cycle struct {
	Symbols  int           `json:"symbols"`
	Signals  int           `json:"signals"`
	Failures int           `json:"failures"`
	Duration time.Duration `json:"duration"`
	Time     time.Time     `json:"time"`
}
