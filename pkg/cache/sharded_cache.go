package cache

import (
	"hash/fnv"
	"sync"
	"time"

	"signal-core/pkg/exchanges/common"
)

const numShards = 16

// ShardedCandleCache holds the latest candle series per key, spread over
// shards so concurrent symbols rarely contend.
type ShardedCandleCache struct {
	shards [numShards]*candleShard
}

type candleShard struct {
	mu    sync.RWMutex
	items map[string]candleEntry
}

type candleEntry struct {
	candles   []common.Candle
	updatedAt time.Time
}

// NewShardedCandleCache creates a new sharded cache.
func NewShardedCandleCache() *ShardedCandleCache {
	c := &ShardedCandleCache{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &candleShard{
			items: make(map[string]candleEntry),
		}
	}
	return c
}

// Key builds the cache key for a symbol/timeframe pair.
func Key(symbol, timeframe string) string {
	return symbol + "|" + timeframe
}

func (c *ShardedCandleCache) getShard(key string) *candleShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores a copy of the series.
func (c *ShardedCandleCache) Set(key string, candles []common.Candle) {
	shard := c.getShard(key)
	cp := append([]common.Candle(nil), candles...)
	shard.mu.Lock()
	shard.items[key] = candleEntry{candles: cp, updatedAt: time.Now()}
	shard.mu.Unlock()
}

// GetWithAge returns a copy of the series and how long ago it was stored.
func (c *ShardedCandleCache) GetWithAge(key string) ([]common.Candle, time.Duration, bool) {
	shard := c.getShard(key)
	shard.mu.RLock()
	entry, ok := shard.items[key]
	shard.mu.RUnlock()
	if !ok {
		return nil, 0, false
	}
	return append([]common.Candle(nil), entry.candles...), time.Since(entry.updatedAt), true
}

// Delete removes a key from the cache.
func (c *ShardedCandleCache) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	delete(shard.items, key)
	shard.mu.Unlock()
}

// Len returns total items across all shards.
func (c *ShardedCandleCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}

// Cleanup removes entries older than maxAge.
func (c *ShardedCandleCache) Cleanup(maxAge time.Duration) int {
	removed := 0
	cutoff := time.Now().Add(-maxAge)

	for _, shard := range c.shards {
		shard.mu.Lock()
		for key, entry := range shard.items {
			if entry.updatedAt.Before(cutoff) {
				delete(shard.items, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}
