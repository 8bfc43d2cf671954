package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sigtrade/internal/logger"
	"sigtrade/internal/strategy"
	"sigtrade/internal/types"
)

var ErrInsufficientCash = errors.New("insufficient cash for minimum order")

var execLog = logger.Component("exec")

// Costs is the fill cost model.
type Costs struct {
	CommissionRate float64
	Slippage       float64
	MinOrder       float64
	RescaleFactor  float64
}

// Fill describes one executed order.
type Fill struct {
	Symbol    string
	Side      types.Side
	ExecPrice float64
	Amount    float64
	Cost      float64
	Fee       float64
	Revenue   float64
	PnL       float64
	Reason    string
}

// Simulator is the only writer of cash, positions and the trade/ledger journal.
// It is not safe for concurrent use; callers run it from a single tick.
type Simulator struct {
	cash    float64
	fees    float64
	costs   Costs
	machine *strategy.Machine
	journal Journal
	now     func() time.Time
}

func NewSimulator(cash float64, costs Costs, machine *strategy.Machine, journal Journal) *Simulator {
	if costs.RescaleFactor <= 0 || costs.RescaleFactor > 1 {
		costs.RescaleFactor = 0.999
	}
	return &Simulator{
		cash:    cash,
		costs:   costs,
		machine: machine,
		journal: journal,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source. Backtests stamp records with bar time.
func (s *Simulator) WithClock(now func() time.Time) *Simulator {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Simulator) Cash() float64 { return s.cash }

// FeesPaid is the running total of buy and sell commissions.
func (s *Simulator) FeesPaid() float64 { return s.fees }

// Buy opens pos with up to notional of cash. If cost plus fee would exceed
// cash the amount is rescaled once to fit; a fill smaller than the minimum
// order fails with ErrInsufficientCash and leaves every state untouched.
func (s *Simulator) Buy(ctx context.Context, tickID, symbol string, pos *types.Position, price, notional, atr float64) (Fill, error) {
	if pos == nil {
		return Fill{}, fmt.Errorf("nil position for %s", symbol)
	}
	if price <= 0 || notional <= 0 {
		return Fill{}, fmt.Errorf("invalid buy for %s: price=%f notional=%f", symbol, price, notional)
	}
	rate := s.costs.CommissionRate
	execPrice := price * (1 + s.costs.Slippage)
	amount := notional / execPrice
	cost := amount * execPrice
	fee := cost * rate
	if cost+fee > s.cash {
		amount = s.cash / (execPrice * (1 + rate)) * s.costs.RescaleFactor
		cost = amount * execPrice
		fee = cost * rate
	}
	if amount <= 0 || cost < s.costs.MinOrder || cost+fee > s.cash {
		return Fill{}, fmt.Errorf("%w: %s cost=%.4f fee=%.4f cash=%.4f", ErrInsufficientCash, symbol, cost, fee, s.cash)
	}

	next := *pos
	if err := s.machine.Apply(&next, strategy.ActionBuy, execPrice, amount, atr); err != nil {
		return Fill{}, fmt.Errorf("buy %s: %w", symbol, err)
	}
	rec := &types.TradeRecord{
		TickID:     tickID,
		Symbol:     symbol,
		Side:       types.SideBuy,
		Price:      execPrice,
		Amount:     amount,
		Cost:       cost,
		Fee:        fee,
		Status:     types.StatusOpen,
		Reason:     types.ReasonSignal,
		StopLoss:   next.StopLoss,
		TakeProfit: next.TakeProfit,
		Timestamp:  s.now(),
	}
	if err := s.journal.AppendTrade(ctx, rec); err != nil {
		return Fill{}, fmt.Errorf("journal buy %s: %w", symbol, err)
	}
	s.cash -= cost + fee
	s.fees += fee
	*pos = next
	execLog.Infof("BUY %s amount=%.8f price=%.8f cost=%.4f fee=%.4f sl=%.8f tp=%.8f cash=%.4f",
		symbol, amount, execPrice, cost, fee, next.StopLoss, next.TakeProfit, s.cash)
	return Fill{
		Symbol: symbol, Side: types.SideBuy, ExecPrice: execPrice,
		Amount: amount, Cost: cost, Fee: fee, Reason: types.ReasonSignal,
	}, nil
}

// Sell closes pos. The commission is netted into revenue and charged once.
func (s *Simulator) Sell(ctx context.Context, tickID, symbol string, pos *types.Position, price float64, reason string) (Fill, error) {
	if pos == nil || !pos.IsLong() {
		return Fill{}, fmt.Errorf("sell %s: no open position", symbol)
	}
	if price <= 0 {
		return Fill{}, fmt.Errorf("invalid sell for %s: price=%f", symbol, price)
	}
	execPrice := price * (1 - s.costs.Slippage)
	gross := pos.Amount * execPrice
	fee := gross * s.costs.CommissionRate
	revenue := gross - fee
	basis := pos.Amount * pos.EntryPrice
	pnl := revenue - basis

	next := *pos
	if err := s.machine.Apply(&next, strategy.ActionSell, execPrice, pos.Amount, 0); err != nil {
		return Fill{}, fmt.Errorf("sell %s: %w", symbol, err)
	}
	rec := &types.TradeRecord{
		TickID:    tickID,
		Symbol:    symbol,
		Side:      types.SideSell,
		Price:     execPrice,
		Amount:    pos.Amount,
		Cost:      basis,
		Fee:       fee,
		PnL:       pnl,
		Status:    types.StatusClosed,
		Reason:    reason,
		Timestamp: s.now(),
	}
	if err := s.journal.AppendTrade(ctx, rec); err != nil {
		return Fill{}, fmt.Errorf("journal sell %s: %w", symbol, err)
	}
	fill := Fill{
		Symbol: symbol, Side: types.SideSell, ExecPrice: execPrice, Amount: pos.Amount,
		Cost: basis, Fee: fee, Revenue: revenue, PnL: pnl, Reason: reason,
	}
	s.cash += revenue
	s.fees += fee
	*pos = next
	execLog.Infof("SELL %s (%s) amount=%.8f price=%.8f revenue=%.4f fee=%.4f pnl=%.4f cash=%.4f",
		symbol, reason, fill.Amount, execPrice, revenue, fee, pnl, s.cash)
	return fill, nil
}

// Equity is cash plus open positions marked at prices, falling back to the
// entry price for symbols without a fresh quote.
func (s *Simulator) Equity(portfolio types.Portfolio, prices map[string]float64) float64 {
	equity := s.cash
	for sym, pos := range portfolio {
		if pos == nil || !pos.IsLong() {
			continue
		}
		mark := pos.EntryPrice
		if p, ok := prices[sym]; ok && p > 0 {
			mark = p
		}
		equity += pos.Amount * mark
	}
	return equity
}

// Snapshot computes equity and appends a ledger point.
func (s *Simulator) Snapshot(ctx context.Context, portfolio types.Portfolio, prices map[string]float64) (types.LedgerSnapshot, error) {
	snap := types.LedgerSnapshot{Cash: s.cash, Equity: s.Equity(portfolio, prices), Timestamp: s.now()}
	if err := s.journal.AppendSnapshot(ctx, &snap); err != nil {
		return snap, fmt.Errorf("journal snapshot: %w", err)
	}
	return snap, nil
}

// RecordSignal logs a prediction whether or not it leads to a trade.
func (s *Simulator) RecordSignal(ctx context.Context, tickID, symbol string, pred types.Prediction, row types.FeatureRow) error {
	rec := &types.SignalRecord{
		TickID:     tickID,
		Symbol:     symbol,
		Prediction: pred,
		Features:   row.Clone(),
		Timestamp:  s.now(),
	}
	if err := s.journal.AppendSignal(ctx, rec); err != nil {
		return fmt.Errorf("journal signal %s: %w", symbol, err)
	}
	return nil
}
