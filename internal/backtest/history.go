package backtest

import (
	"context"
	"fmt"

	"sigtrade/internal/logger"
	"sigtrade/internal/market"
)

var btLog = logger.Component("backtest")

// Fetcher pulls closed candles from the exchange.
type Fetcher interface {
	Fetch(ctx context.Context, symbol, interval string, limit int) (market.Candles, error)
}

// History merges fresh exchange candles into the local cache and serves the
// backtest window from it, so repeated runs accumulate a longer series.
type History struct {
	Fetcher Fetcher
	Store   *CandleStore
}

// Load returns up to limit candles, oldest first. A fetch failure falls back
// to whatever the cache already holds.
func (h *History) Load(ctx context.Context, symbol, timeframe string, limit int) (market.Candles, error) {
	if h.Store == nil {
		return nil, fmt.Errorf("candle store not configured")
	}
	if h.Fetcher != nil {
		fresh, err := h.Fetcher.Fetch(ctx, symbol, timeframe, limit)
		if err != nil {
			btLog.Warnf("fetch %s %s failed, using cache: %v", symbol, timeframe, err)
		} else if n, err := h.Store.InsertCandles(ctx, symbol, timeframe, fresh); err != nil {
			return nil, fmt.Errorf("cache candles: %w", err)
		} else {
			btLog.Debugf("cached %d candles for %s %s", n, symbol, timeframe)
		}
	}
	candles, err := h.Store.LatestCandles(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("load cached candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w for %s %s", market.ErrNoCandles, symbol, timeframe)
	}
	return candles, nil
}
