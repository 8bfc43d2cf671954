package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"sigtrade/internal/allocator"
	"sigtrade/internal/engine"
	"sigtrade/internal/execution"
	"sigtrade/internal/features"
	"sigtrade/internal/market"
	"sigtrade/internal/strategy"
)

const DefaultWarmupBars = 50

// Settings configures one replay.
type Settings struct {
	Symbol         string
	Timeframe      string
	InitialCapital float64
	WarmupBars     int
	Thresholds     strategy.Thresholds
	Risk           strategy.RiskParams
	Costs          execution.Costs
	CashBuffer     float64
}

// Runner replays a candle series through the same book the live engine uses.
// It is sequential and deterministic for a fixed predictor.
type Runner struct {
	settings  Settings
	predictor strategy.Predictor
	newID     func() string
}

func NewRunner(s Settings, predictor strategy.Predictor) *Runner {
	if s.WarmupBars < 0 {
		s.WarmupBars = DefaultWarmupBars
	}
	return &Runner{settings: s, predictor: predictor, newID: uuid.NewString}
}

// Run replays candles oldest first. The first WarmupBars feature rows make
// no decisions. A position still open at the end is marked to market, not sold.
func (r *Runner) Run(ctx context.Context, candles market.Candles) (*Result, error) {
	s := r.settings
	if r.predictor == nil {
		return nil, fmt.Errorf("backtest: predictor not configured")
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("backtest: %w for %s", market.ErrNoCandles, s.Symbol)
	}
	if !candles.Ordered() {
		return nil, fmt.Errorf("backtest: candles for %s are not strictly increasing", s.Symbol)
	}
	res := &Result{
		ID:        r.newID(),
		StartedAt: time.Now().UTC(),
		Config: RunConfig{
			Symbol:         s.Symbol,
			Timeframe:      s.Timeframe,
			Bars:           len(candles),
			WarmupBars:     s.WarmupBars,
			InitialCapital: s.InitialCapital,
			CommissionRate: s.Costs.CommissionRate,
			Slippage:       s.Costs.Slippage,
			BuyThreshold:   s.Thresholds.Buy,
			SellThreshold:  s.Thresholds.Sell,
			Volatility:     s.Thresholds.Volatility,
		},
	}
	if v, ok := r.predictor.(interface{ Version() string }); ok {
		res.Config.ModelVersion = v.Version()
	}

	var barTime time.Time
	journal := execution.NewMemoryJournal()
	machine := strategy.NewMachine(s.Risk)
	sim := execution.NewSimulator(s.InitialCapital, s.Costs, machine, journal).
		WithClock(func() time.Time { return barTime })
	// A single-symbol replay commits the whole buffered cash to each entry.
	book := engine.NewBook(engine.BookParams{
		Simulator:        sim,
		Machine:          machine,
		Allocator:        allocator.New(s.Costs.MinOrder, s.CashBuffer),
		MaxOpenPositions: 1,
		PerSlotBudget:    math.Inf(1),
	})

	rows := features.ComputeSeries(candles)
	valid := 0
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if row == nil {
			continue
		}
		valid++
		if valid <= s.WarmupBars {
			continue
		}
		bar := candles[i]
		barTime = barClose(bar)
		pred, err := strategy.Evaluate(row, r.predictor, s.Thresholds)
		if err != nil {
			return nil, fmt.Errorf("backtest bar %d: %w", i, err)
		}
		step, err := book.Step(ctx, fmt.Sprintf("%s#%d", res.ID, i), []engine.Quote{{
			Symbol:     s.Symbol,
			Price:      bar.Close,
			Prediction: pred,
			Row:        row,
		}})
		if err != nil {
			return nil, fmt.Errorf("backtest bar %d: %w", i, err)
		}
		res.Equity = append(res.Equity, EquityPoint{
			Time:   barTime,
			Price:  bar.Close,
			Cash:   step.Snapshot.Cash,
			Equity: step.Snapshot.Equity,
		})
	}

	res.Trades = journal.Trades()
	res.Stats = summarize(res.Config, res.Trades, res.Equity, sim.Cash(), market.BarsPerYear(s.Timeframe))
	res.FinishedAt = time.Now().UTC()
	btLog.Infof("run=%s %s %s bars=%d decisions=%d trades=%d final_equity=%.2f sharpe=%.2f max_dd=%.2f%%",
		res.ID, s.Symbol, s.Timeframe, len(candles), res.Stats.Decisions, res.Stats.Trades,
		res.Stats.FinalEquity, res.Stats.Sharpe, res.Stats.MaxDrawdownPct)
	return res, nil
}

func barClose(c market.Candle) time.Time {
	if c.CloseTime > 0 {
		return time.UnixMilli(c.CloseTime).UTC()
	}
	return c.Time()
}
