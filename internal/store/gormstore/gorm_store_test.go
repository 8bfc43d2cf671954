package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigtrade/internal/types"
)

func openTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore(filepath.Join(t.TempDir(), "db", "trading.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGormStore_Ledger(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	first, err := s.EnsureInitialSnapshot(ctx, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, first.Cash, 1e-12)
	assert.InDelta(t, 1000.0, first.Equity, 1e-12)

	require.NoError(t, s.AppendSnapshot(ctx, &types.LedgerSnapshot{Cash: 900, Equity: 1010}))

	again, err := s.EnsureInitialSnapshot(ctx, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 900.0, again.Cash, 1e-12)

	snaps, err := s.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.InDelta(t, 1000.0, snaps[0].Cash, 1e-12)
	assert.InDelta(t, 1010.0, snaps[1].Equity, 1e-12)
}

func TestGormStore_OpenPositions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	trades := []types.TradeRecord{
		{Symbol: "BTC/USDT", Side: types.SideBuy, Price: 100, Amount: 1, Status: types.StatusOpen, StopLoss: 98, TakeProfit: 103},
		{Symbol: "ETH/USDT", Side: types.SideBuy, Price: 10, Amount: 5, Status: types.StatusOpen},
		{Symbol: "BTC/USDT", Side: types.SideSell, Price: 104, Amount: 1, PnL: 3.5, Status: types.StatusClosed, Reason: types.ReasonTakeProfit},
		{Symbol: "SOL/USDT", Side: types.SideBuy, Price: 20, Amount: 2, Status: types.StatusOpen, StopLoss: 19, TakeProfit: 22},
	}
	for i := range trades {
		require.NoError(t, s.AppendTrade(ctx, &trades[i]))
		assert.NotZero(t, trades[i].ID)
	}

	portfolio, err := s.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH/USDT", "SOL/USDT"}, portfolio.OpenSymbols())

	eth := portfolio["ETH/USDT"]
	assert.Zero(t, eth.StopLoss)
	assert.Zero(t, eth.TakeProfit)
	sol := portfolio["SOL/USDT"]
	assert.InDelta(t, 19.0, sol.StopLoss, 1e-12)
	assert.InDelta(t, 2.0, sol.Amount, 1e-12)

	listed, err := s.ListTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "SOL/USDT", listed[0].Symbol)
	assert.Equal(t, types.StatusClosed, listed[1].Status)
}

func TestGormStore_Signals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.LatestSignal(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendSignal(ctx, &types.SignalRecord{
		TickID: "a", Symbol: "BTC/USDT", Timestamp: at,
		Prediction: types.Prediction{Signal: types.SignalBuy, Probability: 0.8, ClosePrice: 100, Reason: "model signal"},
		Features:   types.FeatureRow{"rsi": 55.5},
	}))
	require.NoError(t, s.AppendSignal(ctx, &types.SignalRecord{
		TickID: "a", Symbol: "ETH/USDT", Timestamp: at,
		Prediction: types.Prediction{Signal: types.SignalHold, Reason: types.ReasonLowVolatility},
	}))

	latest, ok, err := s.LatestSignal(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ETH/USDT", latest.Symbol)
	assert.Equal(t, types.SignalHold, latest.Prediction.Signal)

	btc, err := s.ListSignals(ctx, "BTC/USDT", 10)
	require.NoError(t, err)
	require.Len(t, btc, 1)
	assert.InDelta(t, 55.5, btc[0].Features["rsi"], 1e-12)
	assert.InDelta(t, 0.8, btc[0].Prediction.Probability, 1e-12)
}

func TestGormStore_Statistics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalTrades)

	for _, rec := range []types.TradeRecord{
		{Symbol: "A", Side: types.SideBuy, Status: types.StatusOpen, Fee: 0.1},
		{Symbol: "A", Side: types.SideSell, Status: types.StatusClosed, PnL: 12.345, Fee: 0.1},
		{Symbol: "B", Side: types.SideBuy, Status: types.StatusOpen, Fee: 0.1},
		{Symbol: "B", Side: types.SideSell, Status: types.StatusClosed, PnL: -2, Fee: 0.1},
	} {
		rec := rec
		require.NoError(t, s.AppendTrade(ctx, &rec))
	}

	stats, err = s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTrades)
	assert.InDelta(t, 50.0, stats.WinRate, 1e-12)
	assert.InDelta(t, 10.35, stats.PnL, 1e-9)
	assert.InDelta(t, 0.4, stats.Fees, 1e-12)
}
