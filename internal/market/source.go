package market

import "context"

// Source returns historical candles ordered oldest first.
type Source interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

func (f SourceFunc) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	return f(ctx, symbol, interval, limit)
}
