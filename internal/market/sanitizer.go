package market

import (
	"time"
)

const DefaultKlineGrace = 10 * time.Second

// DropUnclosed drops the last element if it is still in-progress.
// Binance style: the last kline may be the current, not-yet-closed candle.
func DropUnclosed(klines []Candle, interval time.Duration) []Candle {
	return dropUnclosedAt(klines, interval, time.Now().UTC(), DefaultKlineGrace)
}

func dropUnclosedAt(klines []Candle, interval time.Duration, now time.Time, grace time.Duration) []Candle {
	if len(klines) == 0 {
		return klines
	}
	if interval <= 0 {
		return klines
	}
	if grace < 0 {
		grace = 0
	}
	last := klines[len(klines)-1]
	if last.OpenTime <= 0 {
		return klines
	}
	closeTimeMs := last.OpenTime + interval.Milliseconds()
	cutoffMs := closeTimeMs + grace.Milliseconds()
	if now.UnixMilli() < cutoffMs {
		return klines[:len(klines)-1]
	}
	return klines
}
