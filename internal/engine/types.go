package engine

import "time"

// SystemStatus represents the engine runtime status.
type SystemStatus struct {
	Running    bool            `json:"running"`
	DryRun     bool            `json:"dry_run"`
	Venue      string          `json:"venue"`
	Symbols    []string        `json:"symbols"`
	Timeframes []string        `json:"timeframes"`
	Interval   string          `json:"interval"`
	InFlight   int             `json:"brackets_in_flight"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	LastCycle  *CycleReport    `json:"last_cycle,omitempty"`
	Readings   []SymbolReading `json:"readings,omitempty"`
	Version    string          `json:"version"`
	ServerTime time.Time       `json:"server_time"`
}

// SymbolReading is the last indicator result for one symbol/timeframe.
type SymbolReading struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	RSI       float64   `json:"rsi,omitempty"`
	Price     float64   `json:"price,omitempty"`
	Signal    string    `json:"signal,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// CycleReport summarises one scheduler pass.
type CycleReport struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Processed int           `json:"processed"`
	Signals   int           `json:"signals"`
	Skipped   int           `json:"skipped"`
	Failures  []string      `json:"failures,omitempty"`
}
