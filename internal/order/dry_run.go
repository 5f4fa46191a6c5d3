package order

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"signal-core/pkg/exchanges/common"
)

// DryRunConfig controls the simulated exchange.
type DryRunConfig struct {
	InitialBalance float64
	Currency       string
	FeeRate        float64 // decimal, e.g. 0.0002 = 2 bps
	Timeframe      string  // candles used as the price feed for fills
}

// DryRunExchange is an in-process exchange for running the pipeline without
// credentials. Market data is delegated to a real feed; orders, balance and
// fills are simulated. Entry orders fill once the feed trades through the
// limit price; exit legs rest until cancelled.
type DryRunExchange struct {
	feed common.MarketData
	cfg  DryRunConfig
	log  zerolog.Logger

	seq atomic.Int64

	mu      sync.Mutex
	balance float64
	orders  map[string]*MockOrder
}

// MockOrder is the simulated view of one order.
type MockOrder struct {
	ID        string
	Request   common.OrderRequest
	Status    common.OrderStatus
	FilledQty float64
	AvgPrice  float64
	CreatedAt time.Time
	FilledAt  *time.Time
}

// NewDryRunExchange builds the simulator. feed may be nil, in which case
// entries fill on the first status query at their limit price.
func NewDryRunExchange(feed common.MarketData, cfg DryRunConfig, logger zerolog.Logger) *DryRunExchange {
	if cfg.Currency == "" {
		cfg.Currency = "USDT"
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = "Min1"
	}
	return &DryRunExchange{
		feed:    feed,
		cfg:     cfg,
		log:     logger.With().Str("component", "dry_run").Logger(),
		balance: cfg.InitialBalance,
		orders:  make(map[string]*MockOrder),
	}
}

func (d *DryRunExchange) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]common.Candle, error) {
	if d.feed == nil {
		return nil, fmt.Errorf("dry-run: no price feed: %w", common.ErrDataUnavailable)
	}
	return d.feed.Candles(ctx, symbol, timeframe, limit)
}

func (d *DryRunExchange) AvailableBalance(_ context.Context, currency string) (float64, error) {
	if !strings.EqualFold(currency, d.cfg.Currency) {
		return 0, fmt.Errorf("dry-run: no %s balance: %w", currency, common.ErrDataUnavailable)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.balance, nil
}

func (d *DryRunExchange) SubmitOrder(_ context.Context, req common.OrderRequest) (common.OrderResult, error) {
	if req.Qty <= 0 || req.Price <= 0 {
		return common.OrderResult{}, &common.APIError{Op: "order/submit", Code: 2015, Message: "invalid price or volume", Kind: common.ErrOrderRejected}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !req.Closing() {
		if margin := d.margin(req.Qty, req.Price, req.Leverage); margin > d.balance {
			return common.OrderResult{}, &common.APIError{
				Op:      "order/submit",
				Code:    2005,
				Message: fmt.Sprintf("balance insufficient: need %.2f, have %.2f", margin, d.balance),
				Kind:    common.ErrOrderRejected,
			}
		}
	}

	id := strconv.FormatInt(d.seq.Add(1), 10)
	d.orders[id] = &MockOrder{ID: id, Request: req, Status: common.StatusNew, CreatedAt: time.Now()}
	d.log.Info().
		Str("order_id", id).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("kind", string(req.Kind)).
		Float64("qty", req.Qty).
		Float64("price", req.Price).
		Msg("DRY-RUN order accepted")
	return common.OrderResult{OrderID: id, Status: common.StatusNew, ClientID: req.ClientID}, nil
}

func (d *DryRunExchange) CancelOrder(_ context.Context, symbol, orderID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	o, ok := d.orders[orderID]
	if !ok || o.Request.Symbol != symbol {
		return &common.APIError{Op: "order/cancel", Code: 2040, Message: "order not found", Kind: common.ErrOrderRejected}
	}
	if o.Status.Terminal() {
		return &common.APIError{Op: "order/cancel", Code: 2041, Message: "order state cannot be cancelled", Kind: common.ErrOrderRejected}
	}
	o.Status = common.StatusCanceled
	d.log.Info().Str("order_id", orderID).Str("symbol", symbol).Msg("DRY-RUN order cancelled")
	return nil
}

// OrderStatus marks resting entries filled once the feed's last close has
// reached the limit price.
func (d *DryRunExchange) OrderStatus(ctx context.Context, symbol, orderID string) (common.OrderState, error) {
	d.mu.Lock()
	o, ok := d.orders[orderID]
	var pending bool
	if ok {
		pending = o.Status == common.StatusNew && !o.Request.Closing()
	}
	d.mu.Unlock()
	if !ok || o.Request.Symbol != symbol {
		return common.OrderState{}, &common.APIError{Op: "order/get", Code: 2040, Message: "order not found", Kind: common.ErrDataUnavailable}
	}

	if pending {
		last, err := d.lastPrice(ctx, symbol)
		if err != nil {
			return common.OrderState{}, err
		}
		if crosses(o.Request, last) {
			d.fillEntry(o)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return common.OrderState{OrderID: o.ID, Status: o.Status, FilledQty: o.FilledQty, AvgPrice: o.AvgPrice}, nil
}

// Orders returns a copy of every simulated order.
func (d *DryRunExchange) Orders() []MockOrder {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]MockOrder, 0, len(d.orders))
	for _, o := range d.orders {
		out = append(out, *o)
	}
	return out
}

func (d *DryRunExchange) fillEntry(o *MockOrder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o.Status != common.StatusNew {
		return
	}
	now := time.Now()
	o.Status = common.StatusFilled
	o.FilledQty = o.Request.Qty
	o.AvgPrice = o.Request.Price
	o.FilledAt = &now

	fee := o.Request.Qty * o.Request.Price * d.cfg.FeeRate
	d.balance -= d.margin(o.Request.Qty, o.Request.Price, o.Request.Leverage) + fee
	d.log.Info().
		Str("order_id", o.ID).
		Str("symbol", o.Request.Symbol).
		Float64("price", o.AvgPrice).
		Float64("balance", d.balance).
		Msg("DRY-RUN entry filled")
}

func (d *DryRunExchange) lastPrice(ctx context.Context, symbol string) (float64, error) {
	if d.feed == nil {
		return 0, nil
	}
	candles, err := d.feed.Candles(ctx, symbol, d.cfg.Timeframe, 1)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, fmt.Errorf("dry-run: empty price feed for %s: %w", symbol, common.ErrDataUnavailable)
	}
	return candles[len(candles)-1].Close, nil
}

func (d *DryRunExchange) margin(qty, price float64, leverage int) float64 {
	if leverage <= 0 {
		leverage = 1
	}
	return qty * price / float64(leverage)
}

// crosses reports whether last has traded through the entry limit. A zero
// last price means no feed and always fills.
func crosses(req common.OrderRequest, last float64) bool {
	if last <= 0 {
		return true
	}
	if req.Side == common.SideShort {
		return last >= req.Price
	}
	return last <= req.Price
}
