package execution

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sigtrade/internal/strategy"
	"sigtrade/internal/types"
)

type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) AppendTrade(ctx context.Context, rec *types.TradeRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockJournal) AppendSnapshot(ctx context.Context, snap *types.LedgerSnapshot) error {
	return m.Called(ctx, snap).Error(0)
}

func (m *MockJournal) AppendSignal(ctx context.Context, rec *types.SignalRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func newMachine() *strategy.Machine {
	return strategy.NewMachine(strategy.RiskParams{
		StopATRMultiplier: 1.5, TargetATRMultiplier: 2.5, FallbackRiskPct: 0.02, FallbackRewardPct: 0.03,
	})
}

func newSim(cash float64, j Journal) *Simulator {
	costs := Costs{CommissionRate: 0.001, Slippage: 0.001, MinOrder: 5, RescaleFactor: 0.999}
	return NewSimulator(cash, costs, newMachine(), j)
}

func TestSimulator_Buy(t *testing.T) {
	j := NewMemoryJournal()
	sim := newSim(100, j)
	pos := &types.Position{}

	fill, err := sim.Buy(context.Background(), "t1", "BTC/USDT", pos, 100, 98, 0)
	require.NoError(t, err)

	assert.InDelta(t, 100.1, fill.ExecPrice, 1e-9)
	assert.InDelta(t, 0.97902, fill.Amount, 1e-5)
	assert.InDelta(t, fill.Amount*fill.ExecPrice*0.001, fill.Fee, 1e-12)
	assert.InDelta(t, 98.0, fill.Cost, 1e-9)
	assert.InDelta(t, 100-98-0.098, sim.Cash(), 1e-9)

	assert.Equal(t, types.PositionLong, pos.State)
	assert.InDelta(t, 100.1, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 100.1*0.98, pos.StopLoss, 1e-9)

	trades := j.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, types.StatusOpen, trades[0].Status)
	assert.Equal(t, "t1", trades[0].TickID)
	assert.InDelta(t, pos.StopLoss, trades[0].StopLoss, 1e-12)
	assert.InDelta(t, pos.TakeProfit, trades[0].TakeProfit, 1e-12)
}

func TestSimulator_BuyRescalesOnce(t *testing.T) {
	sim := newSim(50, NewMemoryJournal())
	pos := &types.Position{}

	fill, err := sim.Buy(context.Background(), "", "ETH/USDT", pos, 10, 50, 0)
	require.NoError(t, err)
	want := 50 / (10 * 1.001 * 1.001) * 0.999
	assert.InDelta(t, want, fill.Amount, 1e-9)
	assert.GreaterOrEqual(t, sim.Cash(), 0.0)
}

func TestSimulator_BuyBelowMinimum(t *testing.T) {
	j := new(MockJournal)
	sim := newSim(4, j)
	pos := &types.Position{}

	_, err := sim.Buy(context.Background(), "", "ETH/USDT", pos, 10, 50, 0)
	assert.ErrorIs(t, err, ErrInsufficientCash)
	assert.Equal(t, types.Position{}, *pos)
	assert.InDelta(t, 4.0, sim.Cash(), 1e-12)
	j.AssertNotCalled(t, "AppendTrade", mock.Anything, mock.Anything)
}

func TestSimulator_JournalFailureLeavesState(t *testing.T) {
	j := new(MockJournal)
	j.On("AppendTrade", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	sim := newSim(100, j)
	pos := &types.Position{}

	_, err := sim.Buy(context.Background(), "", "BTC/USDT", pos, 100, 50, 0)
	assert.Error(t, err)
	assert.Equal(t, types.Position{}, *pos)
	assert.InDelta(t, 100.0, sim.Cash(), 1e-12)
	assert.Zero(t, sim.FeesPaid())
}

func TestSimulator_OneFeePerSide(t *testing.T) {
	j := NewMemoryJournal()
	sim := newSim(1000, j)
	pos := &types.Position{}
	ctx := context.Background()

	buy, err := sim.Buy(ctx, "", "BTC/USDT", pos, 100, 300, 0)
	require.NoError(t, err)
	sell, err := sim.Sell(ctx, "", "BTC/USDT", pos, 110, types.ReasonTakeProfit)
	require.NoError(t, err)

	gross := buy.Amount * sell.ExecPrice
	assert.InDelta(t, gross*0.001, sell.Fee, 1e-9)
	assert.InDelta(t, gross-sell.Fee, sell.Revenue, 1e-9)
	assert.InDelta(t, sell.Revenue-buy.Amount*buy.ExecPrice, sell.PnL, 1e-9)

	// cash moves by the gross trade values minus exactly one fee per side
	want := 1000 - buy.Cost - buy.Fee + gross - sell.Fee
	assert.InDelta(t, want, sim.Cash(), 1e-9)
	assert.InDelta(t, buy.Fee+sell.Fee, sim.FeesPaid(), 1e-12)

	var journalFees float64
	for _, tr := range j.Trades() {
		journalFees += tr.Fee
	}
	assert.InDelta(t, sim.FeesPaid(), journalFees, 1e-12)

	assert.Equal(t, types.Position{State: types.PositionNone}, *pos)
	trades := j.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, types.StatusClosed, trades[1].Status)
	assert.Equal(t, types.ReasonTakeProfit, trades[1].Reason)
}

func TestSimulator_SellWithoutPosition(t *testing.T) {
	sim := newSim(100, NewMemoryJournal())
	_, err := sim.Sell(context.Background(), "", "BTC/USDT", &types.Position{}, 100, types.ReasonSignalFlip)
	assert.Error(t, err)
}

func TestSimulator_CashNeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sim := newSim(200, NewMemoryJournal())
	portfolio := types.NewPortfolio()
	symbols := []string{"A", "B", "C", "D"}
	ctx := context.Background()

	for i := 0; i < 2000; i++ {
		sym := symbols[rng.Intn(len(symbols))]
		pos := portfolio.Get(sym)
		price := 1 + rng.Float64()*200
		if pos.IsLong() && rng.Intn(2) == 0 {
			_, err := sim.Sell(ctx, "", sym, pos, price, types.ReasonSignalFlip)
			require.NoError(t, err)
		} else if !pos.IsLong() {
			notional := rng.Float64() * 400
			_, _ = sim.Buy(ctx, "", sym, pos, price, notional, rng.Float64())
		}
		require.GreaterOrEqual(t, sim.Cash(), 0.0, "step %d", i)
	}
}

func TestSimulator_EquityAndSnapshot(t *testing.T) {
	j := NewMemoryJournal()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	sim := newSim(1000, j).WithClock(func() time.Time { return at })
	portfolio := types.NewPortfolio()
	ctx := context.Background()

	_, err := sim.Buy(ctx, "", "A", portfolio.Get("A"), 100, 100, 0)
	require.NoError(t, err)
	_, err = sim.Buy(ctx, "", "B", portfolio.Get("B"), 50, 100, 0)
	require.NoError(t, err)

	a := portfolio.Get("A")
	b := portfolio.Get("B")
	prices := map[string]float64{"A": 120}
	want := sim.Cash() + a.Amount*120 + b.Amount*b.EntryPrice
	assert.InDelta(t, want, sim.Equity(portfolio, prices), 1e-9)

	snap, err := sim.Snapshot(ctx, portfolio, prices)
	require.NoError(t, err)
	assert.InDelta(t, want, snap.Equity, 1e-9)
	assert.Equal(t, at, snap.Timestamp)
	require.Len(t, j.Snapshots(), 1)

	require.NoError(t, sim.RecordSignal(ctx, "t", "A", types.Prediction{Signal: types.SignalHold}, types.FeatureRow{"rsi": 1}))
	require.Len(t, j.Signals(), 1)
	assert.Equal(t, types.SignalHold, j.Signals()[0].Prediction.Signal)
}
