// Package market provides candle sources layered over the exchange client:
// a short-lived cache for repeated lookups and a synthetic feed for offline
// runs.
package market

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"signal-core/pkg/cache"
	"signal-core/pkg/exchanges/common"
)

// CachedFeed serves candle series from a cache for up to TTL before asking
// the upstream again. Concurrent misses for the same key share one request.
type CachedFeed struct {
	upstream common.MarketData
	ttl      time.Duration
	cache    *cache.ShardedCandleCache
	group    singleflight.Group
	log      zerolog.Logger
}

func NewCachedFeed(upstream common.MarketData, ttl time.Duration, logger zerolog.Logger) *CachedFeed {
	return &CachedFeed{
		upstream: upstream,
		ttl:      ttl,
		cache:    cache.NewShardedCandleCache(),
		log:      logger.With().Str("component", "market_cache").Logger(),
	}
}

// Candles serves from the cache when a fresh enough series is stored. Misses
// are shared only between callers asking for the same limit, and the shared
// request is detached from any single caller's cancellation.
func (f *CachedFeed) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]common.Candle, error) {
	key := cache.Key(symbol, timeframe)
	if f.ttl > 0 {
		if candles, age, ok := f.cache.GetWithAge(key); ok && age < f.ttl && len(candles) >= limit {
			return tail(candles, limit), nil
		}
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := f.group.DoChan(key+"|"+strconv.Itoa(limit), func() (any, error) {
		candles, err := f.upstream.Candles(fetchCtx, symbol, timeframe, limit)
		if err != nil {
			return nil, err
		}
		f.cache.Set(key, candles)
		return candles, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return tail(res.Val.([]common.Candle), limit), nil
	}
}

// Janitor drops entries untouched for maxAge until ctx ends.
func (f *CachedFeed) Janitor(ctx context.Context, every, maxAge time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := f.cache.Cleanup(maxAge); n > 0 {
				f.log.Debug().Int("removed", n).Msg("stale candle series evicted")
			}
		}
	}
}

func tail(candles []common.Candle, limit int) []common.Candle {
	if limit > 0 && len(candles) > limit {
		return append([]common.Candle(nil), candles[len(candles)-limit:]...)
	}
	return candles
}
