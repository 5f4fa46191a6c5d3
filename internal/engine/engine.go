package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"signal-core/internal/events"
)

// Meta is static information reported by Status.
type Meta struct {
	DryRun  bool
	Venue   string
	Version string
}

// InFlightCounter reports how many brackets are running.
type InFlightCounter interface {
	Active() int
}

// Engine owns the run state and the scheduler loop.
type Engine struct {
	state    RunState
	sched    *Scheduler
	inflight InFlightCounter
	bus      *events.Bus
	meta     Meta
	log      zerolog.Logger

	armOnce sync.Once
	armed   chan struct{}
}

func New(sched *Scheduler, inflight InFlightCounter, bus *events.Bus, meta Meta, logger zerolog.Logger) *Engine {
	return &Engine{
		sched:    sched,
		inflight: inflight,
		bus:      bus,
		meta:     meta,
		log:      logger.With().Str("component", "engine").Logger(),
		armed:    make(chan struct{}),
	}
}

// Start arms the scheduler; a second call while running is a no-op.
func (e *Engine) Start() bool {
	if !e.state.Start() {
		return false
	}
	e.armOnce.Do(func() { close(e.armed) })
	e.log.Info().Msg("scheduler armed")
	e.bus.Publish(events.EventEngineStarted, events.Lifecycle{State: "running", Time: time.Now()})
	return true
}

func (e *Engine) IsRunning() bool {
	return e.state.IsRunning()
}

// Run blocks until Start is called, then drives the scheduler loop until
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-e.armed:
	}
	e.sched.Loop(ctx)
	return nil
}

func (e *Engine) Status() SystemStatus {
	cfg := e.sched.Config()
	st := SystemStatus{
		Running:    e.state.IsRunning(),
		DryRun:     e.meta.DryRun,
		Venue:      e.meta.Venue,
		Symbols:    cfg.Symbols,
		Timeframes: cfg.Timeframes,
		Interval:   cfg.Interval.String(),
		StartedAt:  e.state.StartedAt(),
		LastCycle:  e.sched.LastCycle(),
		Readings:   e.sched.Readings(),
		Version:    e.meta.Version,
		ServerTime: time.Now(),
	}
	if e.inflight != nil {
		st.InFlight = e.inflight.Active()
	}
	return st
}
