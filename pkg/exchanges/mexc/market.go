package mexc

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"signal-core/pkg/exchanges/common"
)

// Candles fetches the most recent `limit` klines for symbol at the given interval.
// The contract kline endpoint takes a time window rather than a count, so the window
// is derived from the interval size.
func (c *Client) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]common.Candle, error) {
	step, ok := IntervalDuration(timeframe)
	if !ok {
		return nil, fmt.Errorf("mexc kline: unsupported interval %q: %w", timeframe, common.ErrDataUnavailable)
	}
	if limit <= 0 {
		limit = 100
	}

	end := time.Now()
	start := end.Add(-step * time.Duration(limit+1))
	params := url.Values{}
	params.Set("interval", timeframe)
	params.Set("start", strconv.FormatInt(start.Unix(), 10))
	params.Set("end", strconv.FormatInt(end.Unix(), 10))

	data, err := c.doPublic(ctx, "contract/kline", "/api/v1/contract/kline/"+url.PathEscape(symbol), params)
	if err != nil {
		return nil, err
	}

	times := data.Get("time").Array()
	opens := data.Get("open").Array()
	highs := data.Get("high").Array()
	lows := data.Get("low").Array()
	closes := data.Get("close").Array()
	vols := data.Get("vol").Array()

	n := len(times)
	if len(opens) != n || len(highs) != n || len(lows) != n || len(closes) != n || len(vols) != n {
		return nil, fmt.Errorf("mexc kline %s: ragged series (time=%d close=%d): %w", symbol, n, len(closes), common.ErrDataUnavailable)
	}

	candles := make([]common.Candle, 0, n)
	for i := 0; i < n; i++ {
		cl := closes[i].Float()
		if cl <= 0 || math.IsNaN(cl) || math.IsInf(cl, 0) {
			return nil, fmt.Errorf("mexc kline %s: invalid close %q at %d: %w", symbol, closes[i].Raw, i, common.ErrDataUnavailable)
		}
		candles = append(candles, common.Candle{
			Time:   time.Unix(times[i].Int(), 0).UTC(),
			Open:   opens[i].Float(),
			High:   highs[i].Float(),
			Low:    lows[i].Float(),
			Close:  cl,
			Volume: vols[i].Float(),
		})
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}
