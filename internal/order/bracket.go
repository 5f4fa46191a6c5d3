package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"signal-core/internal/events"
	"signal-core/internal/notify"
	"signal-core/internal/risk"
	"signal-core/pkg/db"
	"signal-core/pkg/exchanges/common"
)

// Config holds the per-bracket trading parameters.
type Config struct {
	RiskFraction         float64
	Leverage             int
	OpenType             common.OpenType
	TakeProfitPct        float64
	StopLossPct          float64
	EntryOffset          float64
	QuoteCurrency        string
	CancelTimeout        time.Duration
	PollInterval         time.Duration
	AssumeFilledOnSubmit bool
	Precisions           risk.Precisions
}

func (c Config) withDefaults() Config {
	if c.CancelTimeout <= 0 {
		c.CancelTimeout = 5 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.PollInterval > c.CancelTimeout {
		c.PollInterval = c.CancelTimeout
	}
	if c.QuoteCurrency == "" {
		c.QuoteCurrency = "USDT"
	}
	if c.OpenType == 0 {
		c.OpenType = common.OpenTypeCross
	}
	return c
}

// Deps are the collaborators shared by every bracket. Account and Gateway
// are required; the rest are optional.
type Deps struct {
	Account  common.Account
	Gateway  common.Gateway
	Notifier notify.Notifier
	Bus      *events.Bus
	Journal  Journal
	Logger   zerolog.Logger
}

// Manager starts one bracket per signal. It holds no per-trade state, so a
// single Manager may run any number of brackets concurrently.
type Manager struct {
	cfg      Config
	account  common.Account
	gateway  common.Gateway
	notifier notify.Notifier
	bus      *events.Bus
	journal  Journal
	log      zerolog.Logger
}

func NewManager(cfg Config, deps Deps) *Manager {
	n := deps.Notifier
	if n == nil {
		n = notify.Nop{}
	}
	return &Manager{
		cfg:      cfg.withDefaults(),
		account:  deps.Account,
		gateway:  deps.Gateway,
		notifier: n,
		bus:      deps.Bus,
		journal:  deps.Journal,
		log:      deps.Logger.With().Str("component", "bracket").Logger(),
	}
}

// Run drives one signal through entry, fill supervision and exit legs.
// It blocks until the bracket reaches a terminal state or ctx is cancelled.
func (m *Manager) Run(ctx context.Context, sig Signal) Outcome {
	b := &bracket{
		m:     m,
		id:    uuid.NewString(),
		sig:   sig,
		state: StateIdle,
		prec:  m.cfg.Precisions.For(sig.Symbol),
	}
	b.log = m.log.With().
		Str("bracket_id", b.id).
		Str("symbol", sig.Symbol).
		Str("side", string(sig.Side)).
		Logger()
	return b.run(ctx)
}

type bracket struct {
	m     *Manager
	id    string
	sig   Signal
	state State
	prec  risk.Precision
	log   zerolog.Logger
}

type fill struct {
	qty     float64
	price   float64
	partial bool
}

func (b *bracket) run(ctx context.Context) Outcome {
	cfg := b.m.cfg
	out := Outcome{BracketID: b.id, Signal: b.sig}

	entryPrice, err := risk.EntryPrice(b.sig.Side, b.sig.Price, cfg.EntryOffset, b.prec)
	if err != nil {
		return b.reject(ctx, out, err)
	}

	balance, balErr := b.m.account.AvailableBalance(ctx, cfg.QuoteCurrency)
	if balErr != nil {
		b.log.Warn().Err(balErr).Msg("balance unavailable, sizing with zero")
		balance = 0
	}
	qty, err := risk.PositionSize(balance, cfg.RiskFraction, cfg.Leverage, entryPrice, b.prec.Volume)
	if err != nil {
		if balErr != nil {
			err = errors.Join(err, balErr)
		}
		return b.reject(ctx, out, err)
	}

	req := common.OrderRequest{
		Symbol:   b.sig.Symbol,
		Side:     b.sig.Side,
		Kind:     common.KindEntry,
		Qty:      qty,
		Price:    entryPrice,
		Leverage: cfg.Leverage,
		OpenType: cfg.OpenType,
		ClientID: uuid.NewString(),
	}
	res, err := b.m.gateway.SubmitOrder(ctx, req)
	if err != nil {
		b.record(ctx, req, common.OrderResult{Status: common.StatusRejected})
		b.publish(events.EventOrderRejected, req, "", err.Error())
		return b.reject(ctx, out, fmt.Errorf("submit entry: %w", err))
	}

	h := &Handle{
		OrderID:     res.OrderID,
		ClientID:    req.ClientID,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Quantity:    qty,
		EntryPrice:  entryPrice,
		SubmittedAt: time.Now(),
	}
	out.Handle = h
	b.record(ctx, req, res)
	b.transition(ctx, StateEntrySubmitted, "order "+res.OrderID)
	b.publish(events.EventOrderSubmitted, req, res.OrderID, "")
	b.m.notifier.Notify(fmt.Sprintf("🚀 LIMIT %s entry sent for %s at %s (qty %s, RSI %.2f)",
		sideWord(req.Side), req.Symbol, num(entryPrice), num(qty), b.sig.RSI))

	f, state, cancels, err := b.awaitFill(ctx, h, res)
	out.Cancels = cancels
	out.Err = err
	if state != StateFilled {
		out.State = state
		return out
	}

	out.FilledQty, out.FillPrice = f.qty, f.price
	return b.submitExits(ctx, out, h, f)
}

// awaitFill supervises the entry until it fills, is cancelled by the
// exchange, or the cancellation timeout elapses. At most one cancel is sent.
func (b *bracket) awaitFill(ctx context.Context, h *Handle, res common.OrderResult) (fill, State, int, error) {
	cfg := b.m.cfg

	if res.Status == common.StatusFilled {
		return b.filled(ctx, h, fill{qty: h.Quantity, price: h.EntryPrice}, "filled on submit"), StateFilled, 0, nil
	}
	reader, ok := b.m.gateway.(common.StatusReader)
	if cfg.AssumeFilledOnSubmit || !ok {
		b.log.Info().Msg("fill inferred from accepted submission")
		return b.filled(ctx, h, fill{qty: h.Quantity, price: h.EntryPrice}, "fill inferred from submission"), StateFilled, 0, nil
	}

	deadline := time.NewTimer(time.Until(h.SubmittedAt.Add(cfg.CancelTimeout)))
	defer deadline.Stop()
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	var last common.OrderState
	for {
		select {
		case <-ctx.Done():
			b.log.Info().Str("order_id", h.OrderID).Msg("supervision stopped before fill or timeout")
			return fill{}, StateEntrySubmitted, 0, ctx.Err()

		case <-ticker.C:
			st, err := reader.OrderStatus(ctx, h.Symbol, h.OrderID)
			if err != nil {
				b.log.Warn().Err(err).Str("order_id", h.OrderID).Msg("order status poll failed")
				continue
			}
			if f, state, done := b.classify(ctx, h, st); done {
				return f, state, 0, nil
			}
			last = st

		case <-deadline.C:
			if st, err := reader.OrderStatus(ctx, h.Symbol, h.OrderID); err == nil {
				if f, state, done := b.classify(ctx, h, st); done {
					return f, state, 0, nil
				}
				last = st
			}
			return b.expire(ctx, reader, h, last)
		}
	}
}

func (b *bracket) classify(ctx context.Context, h *Handle, st common.OrderState) (fill, State, bool) {
	switch st.Status {
	case common.StatusFilled:
		f := fill{qty: st.FilledQty, price: st.AvgPrice}
		if f.qty <= 0 {
			f.qty = h.Quantity
		}
		if f.price <= 0 {
			f.price = h.EntryPrice
		}
		return b.filled(ctx, h, f, "confirmed by exchange"), StateFilled, true
	case common.StatusCanceled, common.StatusRejected:
		b.journalFill(ctx, h, string(st.Status), st.FilledQty, st.AvgPrice)
		b.transition(ctx, StateCancelled, "exchange reported "+string(st.Status))
		b.publishHandle(events.EventOrderCancelled, h, "cancelled on exchange")
		b.m.notifier.Notify(fmt.Sprintf("⚠️ Entry order %s for %s was cancelled on the exchange", h.OrderID, h.Symbol))
		return fill{}, StateCancelled, true
	}
	return fill{}, StateEntrySubmitted, false
}

// expire cancels the entry. A partially filled entry keeps its filled
// quantity and is bracketed; anything else ends TimedOut. When the cancel
// is refused the order is read once more, since it may have filled in the
// meantime. The cancel error is reported in every outcome.
func (b *bracket) expire(ctx context.Context, reader common.StatusReader, h *Handle, last common.OrderState) (fill, State, int, error) {
	cfg := b.m.cfg
	cancelErr := b.m.gateway.CancelOrder(ctx, h.Symbol, h.OrderID)
	if cancelErr != nil {
		b.log.Error().Err(cancelErr).Str("order_id", h.OrderID).Msg("timeout cancel failed")
		b.m.notifier.Notify(fmt.Sprintf("❌ Cancel of %s entry %s failed: %v", h.Symbol, h.OrderID, cancelErr))

		st, err := reader.OrderStatus(ctx, h.Symbol, h.OrderID)
		if err != nil {
			b.log.Warn().Err(err).Str("order_id", h.OrderID).Msg("status after failed cancel unavailable")
		} else {
			if f, state, done := b.classify(ctx, h, st); done {
				return f, state, 1, cancelErr
			}
			if st.FilledQty > last.FilledQty {
				last = st
			}
		}
	}

	if last.FilledQty > 0 {
		f := fill{qty: b.prec.RoundVolume(last.FilledQty), price: last.AvgPrice, partial: true}
		if f.price <= 0 {
			f.price = h.EntryPrice
		}
		if f.qty > 0 {
			b.m.notifier.Notify(fmt.Sprintf("⏳ %s entry partially filled (%s of %s); remainder cancelled by timeout",
				h.Symbol, num(f.qty), num(h.Quantity)))
			detail := fmt.Sprintf("partial fill %s of %s, remainder cancelled", num(f.qty), num(h.Quantity))
			return b.filled(ctx, h, f, detail), StateFilled, 1, cancelErr
		}
	}

	b.journalFill(ctx, h, string(common.StatusCanceled), 0, 0)
	b.transition(ctx, StateTimedOut, "unfilled after "+cfg.CancelTimeout.String())
	b.publishHandle(events.EventOrderTimedOut, h, "cancelled by timeout")
	b.m.notifier.Notify(fmt.Sprintf("⏳ %s entry %s cancelled by timeout!", h.Symbol, h.OrderID))
	return fill{}, StateTimedOut, 1, cancelErr
}

func (b *bracket) filled(ctx context.Context, h *Handle, f fill, detail string) fill {
	status := common.StatusFilled
	if f.partial {
		status = common.StatusPartial
	}
	b.journalFill(ctx, h, string(status), f.qty, f.price)
	b.transition(ctx, StateFilled, detail)
	lc := b.lifecycle(h.Symbol, common.KindEntry, h.OrderID, "")
	lc.Price, lc.Qty = f.price, f.qty
	b.m.bus.Publish(events.EventOrderFilled, lc)
	return f
}

// submitExits places take-profit and stop-loss as two independent limit
// orders. They are not linked: a fill of one leaves the other resting.
func (b *bracket) submitExits(ctx context.Context, out Outcome, h *Handle, f fill) Outcome {
	cfg := b.m.cfg

	prices, err := risk.ComputeBracket(h.Side, f.price, cfg.TakeProfitPct, cfg.StopLossPct, b.prec)
	if err != nil {
		b.log.Error().Err(err).Msg("cannot price exit legs")
		b.m.notifier.Notify(fmt.Sprintf("⚠️ %s position open without TP/SL: %v", h.Symbol, err))
		out.State, out.Err = StateFilled, errors.Join(out.Err, err)
		return out
	}
	out.Bracket = &prices

	legs := []struct {
		kind  common.OrderKind
		price float64
	}{
		{common.KindTakeProfit, prices.TakeProfit},
		{common.KindStopLoss, prices.StopLoss},
	}

	var errs []error
	for _, leg := range legs {
		req := common.OrderRequest{
			Symbol:   h.Symbol,
			Side:     h.Side,
			Kind:     leg.kind,
			Qty:      f.qty,
			Price:    leg.price,
			Leverage: cfg.Leverage,
			OpenType: cfg.OpenType,
			ClientID: uuid.NewString(),
		}
		res, err := b.m.gateway.SubmitOrder(ctx, req)
		if err != nil {
			b.record(ctx, req, common.OrderResult{Status: common.StatusRejected})
			b.publish(events.EventOrderRejected, req, "", err.Error())
			b.m.notifier.Notify(fmt.Sprintf("❌ %s %s leg rejected: %v", h.Symbol, kindWord(leg.kind), err))
			errs = append(errs, fmt.Errorf("submit %s: %w", kindWord(leg.kind), err))
			continue
		}
		b.record(ctx, req, res)
		b.publish(events.EventOrderSubmitted, req, res.OrderID, "")
		out.Legs = append(out.Legs, res)
	}
	out.Err = errors.Join(append([]error{out.Err}, errs...)...)

	if len(out.Legs) == 0 {
		b.m.notifier.Notify(fmt.Sprintf("⚠️ %s position open without TP/SL", h.Symbol))
		out.State = StateFilled
		return out
	}

	b.transition(ctx, StateBracketSubmitted, fmt.Sprintf("tp=%s sl=%s", num(prices.TakeProfit), num(prices.StopLoss)))
	lc := b.lifecycle(h.Symbol, "", h.OrderID, "")
	lc.Price, lc.Qty = f.price, f.qty
	lc.Message = fmt.Sprintf("tp=%s sl=%s", num(prices.TakeProfit), num(prices.StopLoss))
	b.m.bus.Publish(events.EventBracketSubmitted, lc)
	b.m.notifier.Notify(fmt.Sprintf("🎯 TP at %s | 🛡 SL at %s", num(prices.TakeProfit), num(prices.StopLoss)))

	b.transition(ctx, StateClosed, "handle released")
	out.State = StateClosed
	return out
}

func (b *bracket) reject(ctx context.Context, out Outcome, err error) Outcome {
	b.log.Warn().Err(err).Msg("signal aborted")
	b.transition(ctx, StateRejected, err.Error())
	b.m.notifier.Notify(fmt.Sprintf("❌ %s signal aborted: %v", b.sig.Symbol, err))
	out.State, out.Err = StateRejected, err
	return out
}

func (b *bracket) transition(ctx context.Context, to State, detail string) {
	from := b.state
	b.state = to
	b.log.Info().Str("from", from.String()).Str("to", to.String()).Str("detail", detail).Msg("bracket transition")
	if b.m.journal == nil {
		return
	}
	err := b.m.journal.RecordTransition(context.WithoutCancel(ctx), db.Transition{
		BracketID: b.id,
		Symbol:    b.sig.Symbol,
		From:      from.String(),
		To:        to.String(),
		Detail:    detail,
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("journal transition failed")
	}
}

func (b *bracket) record(ctx context.Context, req common.OrderRequest, res common.OrderResult) {
	if b.m.journal == nil {
		return
	}
	status := res.Status
	if status == "" {
		status = common.StatusNew
	}
	err := b.m.journal.RecordOrder(context.WithoutCancel(ctx), db.OrderRecord{
		ID:              req.ClientID,
		BracketID:       b.id,
		ExchangeOrderID: res.OrderID,
		Symbol:          req.Symbol,
		Side:            string(req.Side),
		Kind:            string(req.Kind),
		Price:           req.Price,
		Qty:             req.Qty,
		Status:          string(status),
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("journal order failed")
	}
}

func (b *bracket) journalFill(ctx context.Context, h *Handle, status string, qty, price float64) {
	if b.m.journal == nil {
		return
	}
	if err := b.m.journal.UpdateOrderFill(context.WithoutCancel(ctx), h.ClientID, status, qty, price); err != nil {
		b.log.Warn().Err(err).Msg("journal fill failed")
	}
}

func (b *bracket) publish(e events.Event, req common.OrderRequest, orderID, msg string) {
	lc := b.lifecycle(req.Symbol, req.Kind, orderID, msg)
	lc.Price, lc.Qty = req.Price, req.Qty
	b.m.bus.Publish(e, lc)
}

func (b *bracket) publishHandle(e events.Event, h *Handle, msg string) {
	lc := b.lifecycle(h.Symbol, common.KindEntry, h.OrderID, msg)
	lc.Price, lc.Qty = h.EntryPrice, h.Quantity
	b.m.bus.Publish(e, lc)
}

func (b *bracket) lifecycle(symbol string, kind common.OrderKind, orderID, msg string) events.Lifecycle {
	return events.Lifecycle{
		Symbol:    symbol,
		Timeframe: b.sig.Timeframe,
		Side:      string(b.sig.Side),
		Kind:      kindWord(kind),
		OrderID:   orderID,
		State:     b.state.String(),
		RSI:       b.sig.RSI,
		Message:   msg,
		Time:      time.Now(),
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sideWord(s common.Side) string {
	if s == common.SideShort {
		return "short"
	}
	return "long"
}

func kindWord(k common.OrderKind) string {
	switch k {
	case common.KindEntry:
		return "entry"
	case common.KindTakeProfit:
		return "take_profit"
	case common.KindStopLoss:
		return "stop_loss"
	}
	return ""
}
