package backtest

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"sigtrade/internal/execution"
	"sigtrade/internal/market"
	"sigtrade/internal/strategy"
	"sigtrade/internal/types"
)

type MockPredictor struct {
	mock.Mock
}

func (m *MockPredictor) Predict(row types.FeatureRow) (float64, error) {
	args := m.Called(row)
	return args.Get(0).(float64), args.Error(1)
}

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, symbol, interval string, limit int) (market.Candles, error) {
	args := m.Called(ctx, symbol, interval, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(market.Candles), args.Error(1)
}

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func series(n int, price func(i int) float64) market.Candles {
	out := make(market.Candles, n)
	for i := range out {
		p := price(i)
		open := baseTime.Add(time.Duration(i) * time.Hour)
		out[i] = market.Candle{
			OpenTime:  open.UnixMilli(),
			CloseTime: open.Add(time.Hour).UnixMilli() - 1,
			Open:      p,
			High:      p * 1.002,
			Low:       p * 0.998,
			Close:     p,
			Volume:    10,
		}
	}
	return out
}

func testSettings() Settings {
	return Settings{
		Symbol:         "BTCUSDT",
		Timeframe:      "1h",
		InitialCapital: 1000,
		WarmupBars:     50,
		Thresholds:     strategy.Thresholds{Buy: 0.6, Sell: 0.4, Volatility: 0.002},
		Risk: strategy.RiskParams{
			StopATRMultiplier:   1.5,
			TargetATRMultiplier: 2.5,
			FallbackRiskPct:     0.02,
			FallbackRewardPct:   0.03,
		},
		Costs:      execution.Costs{CommissionRate: 0.001, Slippage: 0.001, MinOrder: 5, RescaleFactor: 0.999},
		CashBuffer: 0.98,
	}
}

func TestRunner_FlatSeriesNeverTrades(t *testing.T) {
	predictor := new(MockPredictor)
	runner := NewRunner(testSettings(), predictor)

	res, err := runner.Run(context.Background(), series(300, func(int) float64 { return 100 }))
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	assert.Equal(t, 0, res.Stats.Trades)
	assert.Equal(t, 1000.0, res.Stats.FinalEquity)
	assert.Equal(t, 0.0, res.Stats.Sharpe)
	predictor.AssertNotCalled(t, "Predict", mock.Anything)
}

func TestRunner_TradesOnVolatileSeries(t *testing.T) {
	wave := func(i int) float64 { return 100 + 8*math.Sin(float64(i)/5) + float64(i%3) }
	candles := series(400, wave)

	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything).Return(0.9, nil)
	runner := NewRunner(testSettings(), predictor)
	runner.newID = func() string { return "run-1" }

	res, err := runner.Run(context.Background(), candles)
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	assert.Equal(t, "run-1", res.ID)
	assert.Equal(t, types.SideBuy, res.Trades[0].Side)
	for i, tr := range res.Trades {
		if i%2 == 0 {
			assert.Equal(t, types.SideBuy, tr.Side)
		} else {
			assert.Equal(t, types.SideSell, tr.Side)
			assert.Contains(t, []string{types.ReasonStopLoss, types.ReasonTakeProfit}, tr.Reason)
		}
		assert.False(t, tr.Timestamp.Before(baseTime), "trade stamped with bar time")
	}
	for _, p := range res.Equity {
		assert.GreaterOrEqual(t, p.Cash, 0.0)
	}
	assert.Equal(t, len(res.Trades), res.Stats.Trades)
	assert.Equal(t, res.Equity[len(res.Equity)-1].Equity, res.Stats.FinalEquity)
	assert.Equal(t, len(res.Trades)%2 == 1, res.Stats.OpenAtEnd)
}

func TestRunner_WarmupSkipsFirstRows(t *testing.T) {
	wave := func(i int) float64 { return 100 + 8*math.Sin(float64(i)/5) + float64(i%3) }
	candles := series(120, wave)

	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything).Return(0.5, nil)

	withWarmup, err := NewRunner(testSettings(), predictor).Run(context.Background(), candles)
	require.NoError(t, err)
	s := testSettings()
	s.WarmupBars = 0
	without, err := NewRunner(s, predictor).Run(context.Background(), candles)
	require.NoError(t, err)

	assert.Equal(t, 50, without.Stats.Decisions-withWarmup.Stats.Decisions)
}

func TestRunner_PredictorErrorIsFatal(t *testing.T) {
	wave := func(i int) float64 { return 100 + 8*math.Sin(float64(i)/5) + float64(i%3) }
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything).Return(0.0, errors.New("feature mismatch"))

	_, err := NewRunner(testSettings(), predictor).Run(context.Background(), series(200, wave))
	assert.ErrorContains(t, err, "feature mismatch")
}

func TestRunner_RejectsBadInput(t *testing.T) {
	r := NewRunner(testSettings(), new(MockPredictor))
	_, err := r.Run(context.Background(), nil)
	assert.ErrorIs(t, err, market.ErrNoCandles)

	unordered := series(3, func(int) float64 { return 1 })
	unordered[1], unordered[2] = unordered[2], unordered[1]
	_, err = r.Run(context.Background(), unordered)
	assert.Error(t, err)
}

func TestSharpe(t *testing.T) {
	assert.Equal(t, 0.0, Sharpe([]float64{100, 100, 100}, 8760))
	assert.Equal(t, 0.0, Sharpe([]float64{100, 101}, 8760))

	// returns: +1%, -1%, +2%
	equity := []float64{100, 101, 99.99, 101.9898}
	rets := []float64{0.01, -0.01, 0.02}
	mean := (rets[0] + rets[1] + rets[2]) / 3
	var v float64
	for _, r := range rets {
		v += (r - mean) * (r - mean)
	}
	want := mean / math.Sqrt(v/2) * math.Sqrt(8760)
	assert.InDelta(t, want, Sharpe(equity, 8760), 1e-6)
}

func TestMaxDrawdownPct(t *testing.T) {
	assert.InDelta(t, 25.0, MaxDrawdownPct([]float64{100, 120, 90, 110, 95}), 1e-9)
	assert.Equal(t, 0.0, MaxDrawdownPct([]float64{100, 101, 102}))
	assert.Equal(t, 0.0, MaxDrawdownPct(nil))
}

func TestCandleStore(t *testing.T) {
	ctx := context.Background()
	st, err := OpenCandleStore(filepath.Join(t.TempDir(), "cache", "candles.db"))
	require.NoError(t, err)
	defer st.Close()

	first := series(5, func(i int) float64 { return float64(100 + i) })
	n, err := st.InsertCandles(ctx, "btcusdt", "1H", first)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	updated := first[3:]
	updated[1].Close = 999
	_, err = st.InsertCandles(ctx, "BTCUSDT", "1h", append(updated, series(7, func(i int) float64 { return 1 })[5:]...))
	require.NoError(t, err)

	latest, err := st.LatestCandles(ctx, "BTCUSDT", "1h", 3)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.True(t, market.Candles(latest).Ordered())
	assert.Equal(t, 999.0, latest[0].Close)

	m, err := st.Manifest(ctx, "BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, int64(7), m.Rows)
	assert.Equal(t, first[0].OpenTime, m.MinTime)

	other, err := st.LatestCandles(ctx, "ETHUSDT", "1h", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestHistory_Load(t *testing.T) {
	ctx := context.Background()
	st, err := OpenCandleStore(filepath.Join(t.TempDir(), "candles.db"))
	require.NoError(t, err)
	defer st.Close()

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", ctx, "BTCUSDT", "1h", 10).Return(series(4, func(int) float64 { return 10 }), nil).Once()
	fetcher.On("Fetch", ctx, "BTCUSDT", "1h", 10).Return(nil, errors.New("exchange down")).Once()
	h := &History{Fetcher: fetcher, Store: st}

	got, err := h.Load(ctx, "BTCUSDT", "1h", 10)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	got, err = h.Load(ctx, "BTCUSDT", "1h", 10)
	require.NoError(t, err, "falls back to the cache")
	assert.Len(t, got, 4)

	_, err = (&History{Store: st}).Load(ctx, "ETHUSDT", "1h", 10)
	assert.ErrorIs(t, err, market.ErrNoCandles)
	fetcher.AssertExpectations(t)
}

func TestWriteReport(t *testing.T) {
	res := &Result{
		ID:     "run-42",
		Config: RunConfig{Symbol: "BTCUSDT", Timeframe: "1h", InitialCapital: 1000},
		Stats:  RunStats{Trades: 2, FinalEquity: 1010, RoundTrips: 1, Wins: 1, WinRate: 100},
		Trades: []types.TradeRecord{
			{Symbol: "BTCUSDT", Side: types.SideBuy, Price: 100, Amount: 1, Cost: 100, Fee: 0.1, Reason: types.ReasonSignal, Timestamp: baseTime},
			{Symbol: "BTCUSDT", Side: types.SideSell, Price: 110, Amount: 1, Fee: 0.11, PnL: 9.89, Reason: types.ReasonTakeProfit, Timestamp: baseTime.Add(time.Hour)},
		},
		Equity: []EquityPoint{
			{Time: baseTime, Cash: 900, Equity: 1000},
			{Time: baseTime.Add(time.Hour), Cash: 1010, Equity: 1010},
		},
	}
	dir, err := WriteReport(t.TempDir(), res)
	require.NoError(t, err)
	assert.Equal(t, "run-42", filepath.Base(dir))

	raw, err := os.ReadFile(filepath.Join(dir, tradesFile))
	require.NoError(t, err)
	var trades []map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &trades))
	require.Len(t, trades, 2)
	assert.Equal(t, "TP", trades[1]["reason"])

	raw, err = os.ReadFile(filepath.Join(dir, summaryFile))
	require.NoError(t, err)
	var summary Result
	require.NoError(t, yaml.Unmarshal(raw, &summary))
	assert.Equal(t, 1010.0, summary.Stats.FinalEquity)
	assert.Empty(t, summary.Trades)

	html, err := os.ReadFile(filepath.Join(dir, equityFile))
	require.NoError(t, err)
	assert.Contains(t, string(html), "echarts")
}
