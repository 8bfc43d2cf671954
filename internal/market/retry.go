package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sigtrade/internal/logger"
)

var ErrNoCandles = errors.New("no candles returned")

var fetchLog = logger.Component("fetch")

// RetryFetcher wraps a Source with a bounded retry policy. Attempt n waits
// n*Backoff before retrying, so three attempts at 3s back off 3s then 6s.
type RetryFetcher struct {
	Source   Source
	Attempts int
	Backoff  time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryFetcher(src Source, attempts int, backoff time.Duration) *RetryFetcher {
	if attempts <= 0 {
		attempts = 1
	}
	return &RetryFetcher{Source: src, Attempts: attempts, Backoff: backoff, sleep: sleepCtx}
}

// Fetch returns closed candles for symbol. The returned series is checked
// for ordering; an empty or unordered series counts as a failed attempt.
func (f *RetryFetcher) Fetch(ctx context.Context, symbol, interval string, limit int) (Candles, error) {
	if f == nil || f.Source == nil {
		return nil, fmt.Errorf("fetcher not configured")
	}
	width, err := ParseInterval(interval)
	if err != nil {
		return nil, err
	}
	sleep := f.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	var lastErr error
	for attempt := 1; attempt <= f.Attempts; attempt++ {
		candles, err := f.Source.FetchHistory(ctx, symbol, interval, limit)
		if err == nil {
			candles = DropUnclosed(candles, width)
			switch {
			case len(candles) == 0:
				err = ErrNoCandles
			case !Candles(candles).Ordered():
				err = fmt.Errorf("candles for %s are not strictly increasing", symbol)
			default:
				return candles, nil
			}
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == f.Attempts {
			break
		}
		wait := time.Duration(attempt) * f.Backoff
		fetchLog.Warnf("fetch %s %s attempt %d/%d failed: %v, retry in %s", symbol, interval, attempt, f.Attempts, err, wait)
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("fetch %s %s failed after %d attempts: %w", symbol, interval, f.Attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
