package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-core/internal/notify"
	"signal-core/pkg/exchanges/common"
)

type staticFeed struct{ last float64 }

func (f *staticFeed) Candles(context.Context, string, string, int) ([]common.Candle, error) {
	return []common.Candle{{Time: time.Now(), Close: f.last}}, nil
}

func TestDryRunFillsWhenPriceCrosses(t *testing.T) {
	feed := &staticFeed{last: 10.5}
	ex := NewDryRunExchange(feed, DryRunConfig{InitialBalance: 1000}, zerolog.Nop())
	ctx := context.Background()

	res, err := ex.SubmitOrder(ctx, common.OrderRequest{Symbol: "APT_USDT", Side: common.SideLong, Kind: common.KindEntry, Qty: 25, Price: 10, Leverage: 5})
	require.NoError(t, err)

	st, err := ex.OrderStatus(ctx, "APT_USDT", res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusNew, st.Status)

	feed.last = 9.9
	st, err = ex.OrderStatus(ctx, "APT_USDT", res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusFilled, st.Status)
	assert.Equal(t, 25.0, st.FilledQty)

	bal, err := ex.AvailableBalance(ctx, "USDT")
	require.NoError(t, err)
	assert.InDelta(t, 950.0, bal, 1e-9)
}

func TestDryRunRejectsOverMargin(t *testing.T) {
	ex := NewDryRunExchange(nil, DryRunConfig{InitialBalance: 10}, zerolog.Nop())
	_, err := ex.SubmitOrder(context.Background(), common.OrderRequest{Symbol: "APT_USDT", Side: common.SideLong, Kind: common.KindEntry, Qty: 100, Price: 10, Leverage: 1})
	assert.True(t, errors.Is(err, common.ErrOrderRejected))
}

func TestDryRunCancel(t *testing.T) {
	ex := NewDryRunExchange(&staticFeed{last: 20}, DryRunConfig{InitialBalance: 1000}, zerolog.Nop())
	ctx := context.Background()
	res, err := ex.SubmitOrder(ctx, common.OrderRequest{Symbol: "APT_USDT", Side: common.SideLong, Kind: common.KindEntry, Qty: 1, Price: 10, Leverage: 5})
	require.NoError(t, err)

	require.NoError(t, ex.CancelOrder(ctx, "APT_USDT", res.OrderID))
	assert.True(t, errors.Is(ex.CancelOrder(ctx, "APT_USDT", res.OrderID), common.ErrOrderRejected))
	assert.True(t, errors.Is(ex.CancelOrder(ctx, "APT_USDT", "nope"), common.ErrOrderRejected))

	st, err := ex.OrderStatus(ctx, "APT_USDT", res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusCanceled, st.Status)
}

func TestDryRunDrivesFullBracket(t *testing.T) {
	ex := NewDryRunExchange(nil, DryRunConfig{InitialBalance: 1000}, zerolog.Nop())
	rec := &notify.Recorder{}
	m := NewManager(testConfig(), Deps{Account: ex, Gateway: ex, Notifier: rec, Logger: zerolog.Nop()})

	out := m.Run(context.Background(), longSignal())
	require.Equal(t, StateClosed, out.State)
	assert.Len(t, ex.Orders(), 3)
	assert.Equal(t, 1, rec.Count("LIMIT long entry sent for APT_USDT at 10"))
}

func TestDryRunCandlesNeedFeed(t *testing.T) {
	ex := NewDryRunExchange(nil, DryRunConfig{}, zerolog.Nop())
	_, err := ex.Candles(context.Background(), "APT_USDT", "Min15", 10)
	assert.True(t, errors.Is(err, common.ErrDataUnavailable))
	_, err = ex.AvailableBalance(context.Background(), "BTC")
	assert.True(t, errors.Is(err, common.ErrDataUnavailable))
}
