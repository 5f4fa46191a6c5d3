package order

import (
	"context"
	"time"

	"signal-core/internal/risk"
	"signal-core/pkg/db"
	"signal-core/pkg/exchanges/common"
)

// Signal is an entry trigger raised by the scheduler and consumed once.
type Signal struct {
	Symbol    string
	Timeframe string
	Side      common.Side
	RSI       float64
	Price     float64
	At        time.Time
}

// State is the lifecycle position of one bracket.
type State int

const (
	StateIdle State = iota
	StateEntrySubmitted
	StateFilled
	StateCancelled
	StateTimedOut
	StateBracketSubmitted
	StateClosed
	StateRejected
)

var stateNames = [...]string{
	StateIdle:             "Idle",
	StateEntrySubmitted:   "EntrySubmitted",
	StateFilled:           "Filled",
	StateCancelled:        "Cancelled",
	StateTimedOut:         "TimedOut",
	StateBracketSubmitted: "BracketSubmitted",
	StateClosed:           "Closed",
	StateRejected:         "Rejected",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Terminal reports whether the handle has been released.
func (s State) Terminal() bool {
	switch s {
	case StateCancelled, StateTimedOut, StateClosed, StateRejected:
		return true
	}
	return false
}

// Handle tracks the entry order owned by one bracket.
type Handle struct {
	OrderID     string
	ClientID    string
	Symbol      string
	Side        common.Side
	Quantity    float64
	EntryPrice  float64
	SubmittedAt time.Time
}

// Outcome is what a bracket run ended with.
type Outcome struct {
	BracketID string
	Signal    Signal
	State     State
	Handle    *Handle
	FilledQty float64
	FillPrice float64
	Bracket   *risk.BracketPrices
	Legs      []common.OrderResult
	Cancels   int
	Err       error
}

// Journal receives a write-only audit trail of orders and transitions.
type Journal interface {
	RecordOrder(ctx context.Context, o db.OrderRecord) error
	UpdateOrderFill(ctx context.Context, id, status string, filledQty, avgPrice float64) error
	RecordTransition(ctx context.Context, t db.Transition) error
}
