package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	args := m.Called(ctx, symbol, interval, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Candle), args.Error(1)
}

func closedSeries(n int) []Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Candle, n)
	for i := range out {
		open := start.Add(time.Duration(i) * time.Hour)
		out[i] = Candle{OpenTime: open.UnixMilli(), CloseTime: open.Add(time.Hour).UnixMilli() - 1, Close: 100 + float64(i)}
	}
	return out
}

func TestRetryFetcher_Fetch(t *testing.T) {
	t.Run("Retries With Linear Backoff", func(t *testing.T) {
		src := new(MockSource)
		src.On("FetchHistory", mock.Anything, "BTCUSDT", "1h", 10).Return(nil, errors.New("timeout")).Twice()
		src.On("FetchHistory", mock.Anything, "BTCUSDT", "1h", 10).Return(closedSeries(10), nil).Once()

		var waits []time.Duration
		f := NewRetryFetcher(src, 3, 3*time.Second)
		f.sleep = func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}

		candles, err := f.Fetch(context.Background(), "BTCUSDT", "1h", 10)
		require.NoError(t, err)
		assert.Len(t, candles, 10)
		assert.Equal(t, []time.Duration{3 * time.Second, 6 * time.Second}, waits)
		src.AssertExpectations(t)
	})

	t.Run("Exhausted Attempts Wrap Last Error", func(t *testing.T) {
		src := new(MockSource)
		src.On("FetchHistory", mock.Anything, "ETHUSDT", "1h", 5).Return(nil, errors.New("boom"))

		f := NewRetryFetcher(src, 3, time.Second)
		f.sleep = func(context.Context, time.Duration) error { return nil }

		_, err := f.Fetch(context.Background(), "ETHUSDT", "1h", 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 3 attempts")
		src.AssertNumberOfCalls(t, "FetchHistory", 3)
	})

	t.Run("Empty Series Counts As Failure", func(t *testing.T) {
		src := new(MockSource)
		src.On("FetchHistory", mock.Anything, "SOLUSDT", "1h", 5).Return([]Candle{}, nil)

		f := NewRetryFetcher(src, 2, time.Second)
		f.sleep = func(context.Context, time.Duration) error { return nil }

		_, err := f.Fetch(context.Background(), "SOLUSDT", "1h", 5)
		assert.ErrorIs(t, err, ErrNoCandles)
	})

	t.Run("Unordered Series Rejected", func(t *testing.T) {
		series := closedSeries(3)
		series[1], series[2] = series[2], series[1]
		src := new(MockSource)
		src.On("FetchHistory", mock.Anything, "BTCUSDT", "1h", 3).Return(series, nil)

		f := NewRetryFetcher(src, 1, 0)
		_, err := f.Fetch(context.Background(), "BTCUSDT", "1h", 3)
		assert.Error(t, err)
	})
}

func TestDropUnclosed(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)
	klines := []Candle{
		{OpenTime: now.Add(-2 * time.Hour).Truncate(time.Hour).UnixMilli()},
		{OpenTime: now.Truncate(time.Hour).UnixMilli()},
	}
	out := dropUnclosedAt(klines, time.Hour, now, DefaultKlineGrace)
	assert.Len(t, out, 1)

	later := now.Add(time.Hour)
	out = dropUnclosedAt(klines, time.Hour, later, DefaultKlineGrace)
	assert.Len(t, out, 2)
}

func TestParseInterval(t *testing.T) {
	d, err := ParseInterval("4h")
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, d)

	_, err = ParseInterval("h")
	assert.Error(t, err)
	_, err = ParseInterval("10x")
	assert.Error(t, err)

	assert.InDelta(t, 8760.0, BarsPerYear("1h"), 1e-9)
	assert.Zero(t, BarsPerYear("bad"))
}
