package monitor

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"signal-core/internal/events"
)

// Monitor folds bus events into the Prometheus recorder and the in-process
// snapshot. Either sink may be nil.
type Monitor struct {
	Bus      *events.Bus
	Recorder *Recorder
	Stats    *SystemMetrics
}

// Start subscribes to every lifecycle topic and returns once subscriptions
// are in place; consumption stops when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Warn().Str("component", "monitor").Msg("no event bus configured; metrics disabled")
		return
	}
	for _, topic := range events.All {
		stream, unsub := m.Bus.Subscribe(topic, 128)
		go func(topic events.Event) {
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-stream:
					if !ok {
						return
					}
					m.observe(topic, payload)
				}
			}
		}(topic)
	}
}

func (m *Monitor) observe(topic events.Event, payload any) {
	if m.Recorder != nil {
		m.Recorder.RecordEvent(string(topic))
	}

	lc, _ := payload.(events.Lifecycle)
	switch topic {
	case events.EventCycleCompleted:
		c, ok := payload.(events.Cycle)
		if !ok {
			return
		}
		if m.Recorder != nil {
			m.Recorder.RecordCycle(c.Duration.Seconds())
		}
		if m.Stats != nil {
			m.Stats.recordCycle(c.Duration, c.Time)
		}
	case events.EventSignalRaised:
		if m.Recorder != nil {
			m.Recorder.RecordSignal(lc.Symbol, lc.Side)
			m.Recorder.RecordRSI(lc.Symbol, lc.Timeframe, lc.RSI)
		}
		m.bump(func(s *SystemMetrics) *uint64 { return &s.signals })
	case events.EventSymbolFailed:
		if m.Recorder != nil {
			m.Recorder.RecordFailure(lc.Symbol)
		}
		m.bump(func(s *SystemMetrics) *uint64 { return &s.failures })
	case events.EventOrderSubmitted:
		m.recordOrder(lc.Kind, "submitted")
		m.bump(func(s *SystemMetrics) *uint64 { return &s.orders })
	case events.EventOrderRejected:
		m.recordOrder(lc.Kind, "rejected")
	case events.EventOrderFilled:
		m.recordOrder(lc.Kind, "filled")
	case events.EventOrderCancelled:
		m.recordOrder(lc.Kind, "cancelled")
	case events.EventOrderTimedOut:
		m.recordOrder(lc.Kind, "timed_out")
		m.bump(func(s *SystemMetrics) *uint64 { return &s.timeouts })
	case events.EventBracketSubmitted:
		m.bump(func(s *SystemMetrics) *uint64 { return &s.brackets })
	case events.EventEngineStarted:
		if m.Recorder != nil {
			m.Recorder.SetRunning(true)
		}
	}
}

func (m *Monitor) recordOrder(kind, outcome string) {
	if m.Recorder == nil {
		return
	}
	if kind == "" {
		kind = "entry"
	}
	m.Recorder.RecordOrder(kind, outcome)
}

func (m *Monitor) bump(field func(*SystemMetrics) *uint64) {
	if m.Stats == nil {
		return
	}
	atomic.AddUint64(field(m.Stats), 1)
}
