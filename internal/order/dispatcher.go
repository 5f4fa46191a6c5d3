package order

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Runner executes one signal to completion.
type Runner interface {
	Run(ctx context.Context, sig Signal) Outcome
}

// Dispatcher runs each signal's bracket in its own goroutine so fill
// supervision never blocks the scheduler. With overlap disabled it refuses a
// signal for a symbol that already has a bracket in flight.
type Dispatcher struct {
	runner       Runner
	allowOverlap bool
	log          zerolog.Logger

	mu       sync.Mutex
	inflight map[string]int
	closed   bool
	wg       sync.WaitGroup
}

func NewDispatcher(runner Runner, allowOverlap bool, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		runner:       runner,
		allowOverlap: allowOverlap,
		log:          logger.With().Str("component", "dispatcher").Logger(),
		inflight:     make(map[string]int),
	}
}

// Dispatch starts a bracket for sig and reports whether it was accepted.
func (d *Dispatcher) Dispatch(ctx context.Context, sig Signal) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn().Str("symbol", sig.Symbol).Msg("dispatcher closed, signal dropped")
		return false
	}
	if !d.allowOverlap && d.inflight[sig.Symbol] > 0 {
		d.mu.Unlock()
		d.log.Info().Str("symbol", sig.Symbol).Msg("bracket already in flight, signal skipped")
		return false
	}
	d.inflight[sig.Symbol]++
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		out := d.runner.Run(ctx, sig)

		d.mu.Lock()
		if d.inflight[sig.Symbol]--; d.inflight[sig.Symbol] <= 0 {
			delete(d.inflight, sig.Symbol)
		}
		d.mu.Unlock()

		d.report(out)
	}()
	return true
}

// Active returns the number of running brackets.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.inflight {
		n += c
	}
	return n
}

func (d *Dispatcher) report(out Outcome) {
	ev := d.log.Info()
	if out.Err != nil {
		ev = d.log.Warn().Err(out.Err)
	}
	ev.Str("bracket_id", out.BracketID).
		Str("symbol", out.Signal.Symbol).
		Str("state", out.State.String()).
		Int("cancels", out.Cancels).
		Int("legs", len(out.Legs)).
		Msg("bracket finished")
}

// Wait blocks until every running bracket returns.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close refuses new signals and waits for running ones.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
}
