package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"signal-core/internal/events"
	"signal-core/internal/indicators"
	"signal-core/internal/notify"
	"signal-core/internal/order"
	"signal-core/pkg/exchanges/common"
)

// SchedulerConfig is the polling universe and entry thresholds.
type SchedulerConfig struct {
	Symbols             []string
	Timeframes          []string
	Interval            time.Duration
	CandleLimit         int
	OversoldThreshold   float64
	OverboughtThreshold float64
	EnableShorts        bool
}

// Dispatcher hands a signal to a new bracket and reports whether it was taken.
type Dispatcher interface {
	Dispatch(ctx context.Context, sig order.Signal) bool
}

// SchedulerDeps are the scheduler's collaborators.
type SchedulerDeps struct {
	Market     common.MarketData
	Indicators *indicators.Engine
	Dispatcher Dispatcher
	Notifier   notify.Notifier
	Bus        *events.Bus
	Logger     zerolog.Logger
}

// Scheduler samples every symbol/timeframe once per interval and raises
// signals. A failure on one symbol never stops the rest of the pass.
type Scheduler struct {
	cfg        SchedulerConfig
	market     common.MarketData
	indicators *indicators.Engine
	dispatch   Dispatcher
	notifier   notify.Notifier
	bus        *events.Bus
	log        zerolog.Logger

	mu       sync.RWMutex
	last     *CycleReport
	readings map[string]SymbolReading
}

func NewScheduler(cfg SchedulerConfig, deps SchedulerDeps) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 300 * time.Second
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 100
	}
	if cfg.OversoldThreshold == 0 {
		cfg.OversoldThreshold = 30
	}
	if cfg.OverboughtThreshold == 0 {
		cfg.OverboughtThreshold = 70
	}
	ind := deps.Indicators
	if ind == nil {
		ind = indicators.NewEngine(indicators.DefaultRSIPeriod)
	}
	n := deps.Notifier
	if n == nil {
		n = notify.Nop{}
	}
	return &Scheduler{
		cfg:        cfg,
		market:     deps.Market,
		indicators: ind,
		dispatch:   deps.Dispatcher,
		notifier:   n,
		bus:        deps.Bus,
		log:        deps.Logger.With().Str("component", "scheduler").Logger(),
		readings:   make(map[string]SymbolReading),
	}
}

// Loop runs a pass immediately and then once per interval until ctx ends.
func (s *Scheduler) Loop(ctx context.Context) {
	s.log.Info().
		Strs("symbols", s.cfg.Symbols).
		Strs("timeframes", s.cfg.Timeframes).
		Dur("interval", s.cfg.Interval).
		Msg("scheduler loop started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.Cycle(ctx)
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// Cycle performs one pass over the symbol universe.
func (s *Scheduler) Cycle(ctx context.Context) CycleReport {
	report := CycleReport{StartedAt: time.Now()}

	for _, symbol := range s.cfg.Symbols {
		for _, tf := range s.cfg.Timeframes {
			if ctx.Err() != nil {
				break
			}
			report.Processed++
			reading, err := s.evaluate(ctx, symbol, tf)
			s.storeReading(reading)
			if err != nil {
				report.Failures = append(report.Failures, fmt.Sprintf("%s %s: %v", symbol, tf, err))
				s.fail(symbol, tf, err)
				continue
			}
			switch reading.Signal {
			case "":
			case "skipped":
				report.Skipped++
			default:
				report.Signals++
			}
		}
	}

	report.Duration = time.Since(report.StartedAt)
	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	s.bus.Publish(events.EventCycleCompleted, events.Cycle{
		Symbols:  report.Processed,
		Signals:  report.Signals,
		Failures: len(report.Failures),
		Duration: report.Duration,
		Time:     report.StartedAt,
	})
	s.log.Debug().
		Int("processed", report.Processed).
		Int("signals", report.Signals).
		Int("failures", len(report.Failures)).
		Dur("took", report.Duration).
		Msg("cycle completed")
	return report
}

// evaluate fetches candles, computes RSI and dispatches a signal when a
// threshold is crossed. Panics from collaborators are turned into errors so
// they stay scoped to this symbol.
func (s *Scheduler) evaluate(ctx context.Context, symbol, tf string) (r SymbolReading, err error) {
	r = SymbolReading{Symbol: symbol, Timeframe: tf, At: time.Now()}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		if err != nil {
			r.Error = err.Error()
		}
	}()

	candles, err := s.market.Candles(ctx, symbol, tf, s.cfg.CandleLimit)
	if err != nil {
		return r, fmt.Errorf("fetch candles: %w", err)
	}
	if len(candles) == 0 {
		return r, fmt.Errorf("fetch candles: empty series: %w", common.ErrDataUnavailable)
	}
	price := candles[len(candles)-1].Close
	if price <= 0 {
		return r, fmt.Errorf("last close %.8f: %w", price, common.ErrDataUnavailable)
	}
	reading, err := s.indicators.Compute(symbol, tf, candles)
	if err != nil {
		return r, fmt.Errorf("compute rsi: %w", err)
	}
	r.RSI, r.Price = reading.Value, price

	side, ok := s.decide(reading.Value)
	if !ok {
		s.log.Debug().Str("symbol", symbol).Str("timeframe", tf).Float64("rsi", reading.Value).Msg("no signal")
		return r, nil
	}

	sig := order.Signal{Symbol: symbol, Timeframe: tf, Side: side, RSI: reading.Value, Price: price, At: reading.ComputedAt}
	if s.dispatch == nil || !s.dispatch.Dispatch(ctx, sig) {
		r.Signal = "skipped"
		return r, nil
	}
	r.Signal = string(side)
	s.log.Info().
		Str("symbol", symbol).
		Str("timeframe", tf).
		Str("side", string(side)).
		Float64("rsi", reading.Value).
		Float64("price", price).
		Msg("signal raised")
	s.bus.Publish(events.EventSignalRaised, events.Lifecycle{
		Symbol:    symbol,
		Timeframe: tf,
		Side:      string(side),
		Price:     price,
		RSI:       reading.Value,
		Time:      time.Now(),
	})
	return r, nil
}

func (s *Scheduler) decide(rsi float64) (common.Side, bool) {
	if rsi <= s.cfg.OversoldThreshold {
		return common.SideLong, true
	}
	if s.cfg.EnableShorts && rsi >= s.cfg.OverboughtThreshold {
		return common.SideShort, true
	}
	return "", false
}

func (s *Scheduler) fail(symbol, tf string, err error) {
	s.log.Warn().Err(err).Str("symbol", symbol).Str("timeframe", tf).Msg("symbol processing failed")
	s.bus.Publish(events.EventSymbolFailed, events.Lifecycle{
		Symbol:    symbol,
		Timeframe: tf,
		Message:   err.Error(),
		Time:      time.Now(),
	})
	s.notifier.Notify(fmt.Sprintf("⚠️ %s %s: %v", symbol, tf, err))
}

func (s *Scheduler) storeReading(r SymbolReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[r.Symbol+"|"+r.Timeframe] = r
}

// LastCycle returns the most recent pass, or nil before the first one.
func (s *Scheduler) LastCycle() *CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	c := *s.last
	return &c
}

// Readings returns the latest reading per symbol/timeframe, sorted.
func (s *Scheduler) Readings() []SymbolReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SymbolReading, 0, len(s.readings))
	for _, r := range s.readings {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Timeframe < out[j].Timeframe
	})
	return out
}

// Config returns the scheduler's effective configuration.
func (s *Scheduler) Config() SchedulerConfig {
	return s.cfg
}
