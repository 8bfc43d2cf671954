package store

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"sigtrade/internal/market"
)

// CandleCache keeps the latest candles fetched by the engine so the dashboard
// can chart them without calling the exchange.
type CandleCache interface {
	Put(ctx context.Context, symbol, interval string, ks []market.Candle) error
	Latest(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
}

// MemoryCandleCache is a sharded, bounded in-memory CandleCache.
type MemoryCandleCache struct {
	max    int
	shards []candleShard
}

type candleShard struct {
	mu   sync.RWMutex
	data map[string][]market.Candle
}

const (
	defaultShardCount = 16
	defaultCacheDepth = 500
)

func NewMemoryCandleCache(max int) *MemoryCandleCache {
	if max <= 0 {
		max = defaultCacheDepth
	}
	out := &MemoryCandleCache{max: max, shards: make([]candleShard, defaultShardCount)}
	for i := range out.shards {
		out.shards[i] = candleShard{data: make(map[string][]market.Candle)}
	}
	return out
}

func cacheKey(symbol, interval string) string { return symbol + "@" + interval }

func (c *MemoryCandleCache) shardFor(key string) *candleShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Put merges ks into the cached series. A candle with the same open time as
// the cached tail replaces it; older candles are ignored.
func (c *MemoryCandleCache) Put(_ context.Context, symbol, interval string, ks []market.Candle) error {
	if symbol == "" || interval == "" {
		return errors.New("symbol/interval 不能为空")
	}
	if len(ks) == 0 {
		return nil
	}
	k := cacheKey(symbol, interval)
	sh := c.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur := sh.data[k]
	for _, candle := range ks {
		n := len(cur)
		switch {
		case n > 0 && cur[n-1].OpenTime == candle.OpenTime:
			cur[n-1] = candle
		case n > 0 && candle.OpenTime < cur[n-1].OpenTime:
			continue
		default:
			cur = append(cur, candle)
		}
	}
	if len(cur) > c.max {
		cur = append([]market.Candle(nil), cur[len(cur)-c.max:]...)
	}
	sh.data[k] = cur
	return nil
}

// Latest returns up to limit of the newest candles, oldest first.
func (c *MemoryCandleCache) Latest(_ context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if symbol == "" || interval == "" {
		return nil, errors.New("symbol/interval 不能为空")
	}
	k := cacheKey(symbol, interval)
	sh := c.shardFor(k)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	cur := sh.data[k]
	if limit <= 0 || limit > len(cur) {
		limit = len(cur)
	}
	out := make([]market.Candle, limit)
	copy(out, cur[len(cur)-limit:])
	return out, nil
}
