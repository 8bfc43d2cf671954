package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sigtrade/internal/allocator"
	"sigtrade/internal/execution"
	"sigtrade/internal/market"
	"sigtrade/internal/pkg/circuit"
	"sigtrade/internal/store"
	"sigtrade/internal/strategy"
	"sigtrade/internal/types"
)

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

type MockPredictor struct {
	mock.Mock
}

func (m *MockPredictor) Predict(row types.FeatureRow) (float64, error) {
	args := m.Called(row)
	return args.Get(0).(float64), args.Error(1)
}

type staticPauser bool

func (p staticPauser) Paused() bool { return bool(p) }

type panicJournal struct {
	*execution.MemoryJournal
}

func (panicJournal) AppendSnapshot(context.Context, *types.LedgerSnapshot) error {
	panic("ledger unavailable")
}

func testRisk() strategy.RiskParams {
	return strategy.RiskParams{
		StopATRMultiplier:   1.5,
		TargetATRMultiplier: 2.5,
		FallbackRiskPct:     0.02,
		FallbackRewardPct:   0.03,
	}
}

func newTestBook(cash float64, maxOpen int, journal execution.Journal) *Book {
	machine := strategy.NewMachine(testRisk())
	sim := execution.NewSimulator(cash, execution.Costs{
		CommissionRate: 0.001,
		Slippage:       0.001,
		MinOrder:       5,
		RescaleFactor:  0.999,
	}, machine, journal)
	return NewBook(BookParams{
		Simulator:        sim,
		Machine:          machine,
		Allocator:        allocator.New(5, 0.98),
		MaxOpenPositions: maxOpen,
		PerSlotBudget:    cash / float64(maxOpen),
	})
}

func candlesAt(price float64) market.Candles {
	return market.Candles{{OpenTime: 1, CloseTime: 2, Open: price, High: price, Low: price, Close: price}}
}

func stubFeatures(candles []market.Candle) (types.FeatureRow, error) {
	last := candles[len(candles)-1]
	return types.FeatureRow{
		types.FeatureClose:      last.Close,
		types.FeatureVolatility: 0.05,
		types.FeatureATR:        1,
	}, nil
}

func closeIs(price float64) interface{} {
	return mock.MatchedBy(func(r types.FeatureRow) bool { return r.Close() == price })
}

func newTestEngine(t *testing.T, symbols []string, book *Book, fetcher Fetcher, predictor strategy.Predictor) *Engine {
	t.Helper()
	e, err := New(Params{
		Symbols:     symbols,
		Timeframe:   "1h",
		CandleLimit: 200,
		Thresholds:  strategy.Thresholds{Buy: 0.6, Sell: 0.4, Volatility: 0.002},
		Schedule:    Schedule{Interval: time.Minute, PausePoll: time.Second, ErrorBackoff: 10 * time.Second},
		Fetcher:     fetcher,
		Features:    stubFeatures,
		Predictor:   predictor,
		Book:        book,
		Candles:     store.NewMemoryCandleCache(10),
	})
	require.NoError(t, err)
	e.newID = func() string { return "tick-1" }
	return e
}

func TestEngine_TickPartialFailure(t *testing.T) {
	ctx := context.Background()
	journal := execution.NewMemoryJournal()
	book := newTestBook(1000, 1, journal)

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", ctx, "BTCUSDT", "1h", 200).Return(candlesAt(100), nil)
	fetcher.On("Fetch", ctx, "ETHUSDT", "1h", 200).Return(nil, errors.New("timeout"))
	fetcher.On("Fetch", ctx, "SOLUSDT", "1h", 200).Return(candlesAt(20), nil)

	predictor := new(MockPredictor)
	predictor.On("Predict", closeIs(100)).Return(0.9, nil)
	predictor.On("Predict", closeIs(20)).Return(0.7, nil)

	e := newTestEngine(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, book, fetcher, predictor)
	report, err := e.Tick(ctx)
	require.NoError(t, err)

	assert.Equal(t, "tick-1", report.ID)
	assert.Equal(t, []string{"ETHUSDT"}, report.Failed)
	require.Len(t, report.Quotes, 2)
	assert.Equal(t, "BTCUSDT", report.Quotes[0].Symbol)
	assert.Equal(t, "SOLUSDT", report.Quotes[1].Symbol)

	require.Len(t, report.Result.Entries, 1)
	assert.Equal(t, "BTCUSDT", report.Result.Entries[0].Symbol)
	assert.True(t, book.Portfolio.Holds("BTCUSDT"))
	assert.False(t, book.Portfolio.Holds("SOLUSDT"))

	signals := journal.Signals()
	require.Len(t, signals, 2)
	assert.Equal(t, "BTCUSDT", signals[0].Symbol)
	assert.Equal(t, "tick-1", signals[0].TickID)
	assert.Len(t, journal.Snapshots(), 1)
	assert.GreaterOrEqual(t, book.Cash(), 0.0)

	cached, err := e.p.Candles.Latest(ctx, "BTCUSDT", "1h", 10)
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	fetcher.AssertExpectations(t)
	predictor.AssertExpectations(t)
}

func TestEngine_ExitBeforeEntry(t *testing.T) {
	ctx := context.Background()
	journal := execution.NewMemoryJournal()
	book := newTestBook(1000, 2, journal)
	*book.Portfolio.Get("BTCUSDT") = types.Position{
		State: types.PositionLong, Amount: 1, EntryPrice: 100, StopLoss: 98, TakeProfit: 105,
	}

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", ctx, "BTCUSDT", "1h", 200).Return(candlesAt(97), nil)
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything).Return(0.95, nil)

	e := newTestEngine(t, []string{"BTCUSDT"}, book, fetcher, predictor)
	report, err := e.Tick(ctx)
	require.NoError(t, err)

	require.Len(t, report.Result.Exits, 1)
	assert.Equal(t, types.ReasonStopLoss, report.Result.Exits[0].Reason)
	assert.Empty(t, report.Result.Entries)

	pos := book.Portfolio.Get("BTCUSDT")
	assert.Equal(t, types.PositionNone, pos.State)
	assert.Zero(t, pos.Amount)
	assert.Zero(t, pos.EntryPrice)
}

func TestEngine_StaleSymbolKeepsPosition(t *testing.T) {
	ctx := context.Background()
	journal := execution.NewMemoryJournal()
	book := newTestBook(500, 2, journal)
	*book.Portfolio.Get("ETHUSDT") = types.Position{
		State: types.PositionLong, Amount: 2, EntryPrice: 50, StopLoss: 49, TakeProfit: 60,
	}

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", ctx, "ETHUSDT", "1h", 200).Return(nil, errors.New("rate limited"))
	predictor := new(MockPredictor)

	e := newTestEngine(t, []string{"ETHUSDT"}, book, fetcher, predictor)
	report, err := e.Tick(ctx)
	require.NoError(t, err)

	assert.Empty(t, report.Result.Exits)
	assert.True(t, book.Portfolio.Holds("ETHUSDT"))
	assert.InDelta(t, 600, report.Result.Snapshot.Equity, 1e-9)
	predictor.AssertNotCalled(t, "Predict", mock.Anything)
}

func TestEngine_PredictorFailureSkipsSymbol(t *testing.T) {
	ctx := context.Background()
	book := newTestBook(1000, 2, execution.NewMemoryJournal())

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", ctx, "BTCUSDT", "1h", 200).Return(candlesAt(100), nil).Once()
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything).Return(0.0, errors.New("model not loaded")).Once()

	e := newTestEngine(t, []string{"BTCUSDT"}, book, fetcher, predictor)
	report, err := e.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, report.Failed)
	predictor.AssertNumberOfCalls(t, "Predict", 1)
}

func TestEngine_FeaturePanicSkipsSymbol(t *testing.T) {
	ctx := context.Background()
	book := newTestBook(1000, 2, execution.NewMemoryJournal())

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", ctx, "BTCUSDT", "1h", 200).Return(candlesAt(100), nil)
	e := newTestEngine(t, []string{"BTCUSDT"}, book, fetcher, new(MockPredictor))
	e.p.Features = func([]market.Candle) (types.FeatureRow, error) { panic("bad window") }

	report, err := e.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, report.Failed)
}

func TestEngine_Run(t *testing.T) {
	t.Run("paused loop never scans", func(t *testing.T) {
		fetcher := new(MockFetcher)
		e := newTestEngine(t, []string{"BTCUSDT"}, newTestBook(1000, 1, execution.NewMemoryJournal()), fetcher, new(MockPredictor))
		e.p.Pauser = staticPauser(true)

		ctx, cancel := context.WithCancel(context.Background())
		var waits []time.Duration
		e.sleep = func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			if len(waits) == 3 {
				cancel()
			}
			return nil
		}
		require.NoError(t, e.Run(ctx))
		assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, waits)
		fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failed tick backs off and trips breaker", func(t *testing.T) {
		journal := panicJournal{execution.NewMemoryJournal()}
		fetcher := new(MockFetcher)
		fetcher.On("Fetch", mock.Anything, "BTCUSDT", "1h", 200).Return(candlesAt(100), nil)
		predictor := new(MockPredictor)
		predictor.On("Predict", mock.Anything).Return(0.5, nil)

		e := newTestEngine(t, []string{"BTCUSDT"}, newTestBook(1000, 1, journal), fetcher, predictor)
		e.p.Breaker = circuit.New("test", 1, time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		var waits []time.Duration
		e.sleep = func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			if len(waits) == 2 {
				cancel()
			}
			return nil
		}
		require.NoError(t, e.Run(ctx))
		assert.Equal(t, []time.Duration{10 * time.Second, time.Minute}, waits)
		assert.Equal(t, circuit.StateOpen, e.p.Breaker.State())
		fetcher.AssertNumberOfCalls(t, "Fetch", 1)
	})

	t.Run("cancel mid-tick still books the tick", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		journal := execution.NewMemoryJournal()
		book := newTestBook(1000, 1, journal)
		fetcher := new(MockFetcher)
		fetcher.On("Fetch", mock.Anything, "BTCUSDT", "1h", 200).
			Run(func(args mock.Arguments) {
				cancel()
				assert.NoError(t, args.Get(0).(context.Context).Err())
			}).
			Return(candlesAt(100), nil).Once()
		predictor := new(MockPredictor)
		predictor.On("Predict", closeIs(100)).Return(0.9, nil).Once()

		e := newTestEngine(t, []string{"BTCUSDT"}, book, fetcher, predictor)
		var waits []time.Duration
		e.sleep = func(c context.Context, d time.Duration) error {
			waits = append(waits, d)
			return c.Err()
		}

		require.NoError(t, e.Run(ctx))
		assert.Equal(t, []time.Duration{time.Minute}, waits)
		require.Len(t, journal.Trades(), 1)
		assert.Equal(t, "BTCUSDT", journal.Trades()[0].Symbol)
		assert.Len(t, journal.Snapshots(), 1)
		assert.True(t, book.Portfolio.Holds("BTCUSDT"))
		fetcher.AssertExpectations(t)
		predictor.AssertExpectations(t)
	})
}

type fakeLedger struct {
	snap      types.LedgerSnapshot
	portfolio types.Portfolio
	err       error
}

func (f fakeLedger) EnsureInitialSnapshot(context.Context, float64) (types.LedgerSnapshot, error) {
	return f.snap, f.err
}

func (f fakeLedger) OpenPositions(context.Context) (types.Portfolio, error) {
	return f.portfolio, nil
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	held := types.NewPortfolio()
	*held.Get("BTCUSDT") = types.Position{State: types.PositionLong, Amount: 1, EntryPrice: 100}

	cash, portfolio, err := Restore(ctx, fakeLedger{snap: types.LedgerSnapshot{Cash: 750, Equity: 850}, portfolio: held}, 1000, 3)
	require.NoError(t, err)
	assert.Equal(t, 750.0, cash)
	assert.Equal(t, []string{"BTCUSDT"}, portfolio.OpenSymbols())

	_, portfolio, err = Restore(ctx, fakeLedger{snap: types.LedgerSnapshot{Cash: 1000}}, 1000, 3)
	require.NoError(t, err)
	assert.NotNil(t, portfolio)

	_, _, err = Restore(ctx, fakeLedger{err: errors.New("locked")}, 1000, 3)
	assert.Error(t, err)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyFills(ctx context.Context, tickID string, exits, entries []execution.Fill, snap types.LedgerSnapshot) error {
	args := m.Called(ctx, tickID, exits, entries, snap)
	return args.Error(0)
}

func TestEngine_NotifyFailureDoesNotFailTick(t *testing.T) {
	ctx := context.Background()
	book := newTestBook(1000, 1, execution.NewMemoryJournal())

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", ctx, "BTCUSDT", "1h", 200).Return(candlesAt(100), nil)
	predictor := new(MockPredictor)
	predictor.On("Predict", mock.Anything).Return(0.9, nil).Once()
	predictor.On("Predict", mock.Anything).Return(0.5, nil)

	notifier := new(MockNotifier)
	notifier.On("NotifyFills", mock.Anything, "tick-1", mock.Anything,
		mock.MatchedBy(func(fs []execution.Fill) bool { return len(fs) == 1 && fs[0].Symbol == "BTCUSDT" }),
		mock.Anything).Return(errors.New("telegram down")).Once()

	e := newTestEngine(t, []string{"BTCUSDT"}, book, fetcher, predictor)
	e.p.Notifier = notifier

	_, err := e.Tick(ctx)
	require.NoError(t, err)

	// HOLD with an open position and no exit trigger: nothing to report.
	report, err := e.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Result.Entries)
	assert.Empty(t, report.Result.Exits)
	notifier.AssertExpectations(t)
}
