package engine

import (
	"context"
	"errors"
	"fmt"

	"sigtrade/internal/allocator"
	"sigtrade/internal/execution"
	"sigtrade/internal/logger"
	"sigtrade/internal/strategy"
	"sigtrade/internal/types"
)

var bookLog = logger.Component("engine")

// Quote is one symbol's scan result for a tick.
type Quote struct {
	Symbol     string
	Price      float64
	Prediction types.Prediction
	Row        types.FeatureRow
}

// StepResult summarises the mutations of one tick.
type StepResult struct {
	Exits    []execution.Fill
	Entries  []execution.Fill
	Skipped  []string
	Snapshot types.LedgerSnapshot
}

// Book owns the portfolio and routes every decision through the simulator.
// It is driven from one goroutine at a time.
type Book struct {
	Portfolio types.Portfolio

	sim     *execution.Simulator
	machine *strategy.Machine
	alloc   allocator.Allocator
	maxOpen int
	perSlot float64
}

type BookParams struct {
	Simulator        *execution.Simulator
	Machine          *strategy.Machine
	Allocator        allocator.Allocator
	Portfolio        types.Portfolio
	MaxOpenPositions int
	PerSlotBudget    float64
}

func NewBook(p BookParams) *Book {
	portfolio := p.Portfolio
	if portfolio == nil {
		portfolio = types.NewPortfolio()
	}
	return &Book{
		Portfolio: portfolio,
		sim:       p.Simulator,
		machine:   p.Machine,
		alloc:     p.Allocator,
		maxOpen:   p.MaxOpenPositions,
		perSlot:   p.PerSlotBudget,
	}
}

func (b *Book) Cash() float64 { return b.sim.Cash() }

func (b *Book) Simulator() *execution.Simulator { return b.sim }

// Step runs signals, exits, entries and the equity snapshot for one tick.
// Quotes must be in a deterministic order. Fill failures other than
// insufficient cash are collected and returned after the tick completes.
func (b *Book) Step(ctx context.Context, tickID string, quotes []Quote) (StepResult, error) {
	var errs []error
	for _, q := range quotes {
		if err := b.sim.RecordSignal(ctx, tickID, q.Symbol, q.Prediction, q.Row); err != nil {
			bookLog.Warnf("tick=%s %v", tickID, err)
		}
	}
	byPrice := make(map[string]Quote, len(quotes))
	prices := make(map[string]float64, len(quotes))
	for _, q := range quotes {
		if q.Price > 0 {
			byPrice[q.Symbol] = q
			prices[q.Symbol] = q.Price
		}
	}

	exits, exited, err := b.ManageExits(ctx, tickID, byPrice)
	if err != nil {
		errs = append(errs, err)
	}
	entries, skipped, err := b.EnterPositions(ctx, tickID, quotes, exited)
	if err != nil {
		errs = append(errs, err)
	}
	snap, err := b.MarkToMarket(ctx, prices)
	if err != nil {
		errs = append(errs, err)
	}
	return StepResult{Exits: exits, Entries: entries, Skipped: skipped, Snapshot: snap}, errors.Join(errs...)
}

// ManageExits checks every open position against this tick's quote. A
// symbol without a fresh quote keeps its position until the next tick.
func (b *Book) ManageExits(ctx context.Context, tickID string, quotes map[string]Quote) ([]execution.Fill, map[string]bool, error) {
	var (
		fills  []execution.Fill
		errs   []error
		exited = make(map[string]bool)
	)
	for _, sym := range b.Portfolio.OpenSymbols() {
		q, ok := quotes[sym]
		if !ok {
			bookLog.Debugf("tick=%s no price for %s, exit check skipped", tickID, sym)
			continue
		}
		pos := b.Portfolio.Get(sym)
		d := b.machine.Decide(q.Prediction, q.Price, *pos)
		if d.Action != strategy.ActionSell {
			continue
		}
		fill, err := b.sim.Sell(ctx, tickID, sym, pos, q.Price, d.Reason)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		exited[sym] = true
		fills = append(fills, fill)
	}
	return fills, exited, errors.Join(errs...)
}

// EnterPositions allocates free slots to BUY quotes. Symbols exited in the
// same tick are not re-entered.
func (b *Book) EnterPositions(ctx context.Context, tickID string, quotes []Quote, exited map[string]bool) ([]execution.Fill, []string, error) {
	slots := b.maxOpen - b.Portfolio.OpenCount()
	if slots <= 0 {
		return nil, nil, nil
	}
	cands := make([]allocator.Candidate, 0, len(quotes))
	for _, q := range quotes {
		if exited[q.Symbol] {
			continue
		}
		d := b.machine.Decide(q.Prediction, q.Price, *b.Portfolio.Get(q.Symbol))
		if d.Action != strategy.ActionBuy {
			continue
		}
		cands = append(cands, allocator.Candidate{
			Symbol:      q.Symbol,
			Signal:      q.Prediction.Signal,
			Probability: q.Prediction.Probability,
			Price:       q.Price,
			ATR:         q.Prediction.ATR,
		})
	}
	if len(cands) == 0 {
		return nil, nil, nil
	}

	var (
		fills   []execution.Fill
		skipped []string
		errs    []error
	)
	for _, a := range b.alloc.Allocate(cands, b.Portfolio, slots, b.sim.Cash(), b.perSlot) {
		fill, err := b.sim.Buy(ctx, tickID, a.Symbol, b.Portfolio.Get(a.Symbol), a.Price, a.Notional, a.ATR)
		switch {
		case errors.Is(err, execution.ErrInsufficientCash):
			bookLog.Infof("tick=%s skip %s: %v", tickID, a.Symbol, err)
			skipped = append(skipped, a.Symbol)
		case err != nil:
			errs = append(errs, err)
		default:
			fills = append(fills, fill)
		}
	}
	return fills, skipped, errors.Join(errs...)
}

// MarkToMarket persists a ledger point. Held symbols missing from prices
// are valued at their entry price.
func (b *Book) MarkToMarket(ctx context.Context, prices map[string]float64) (types.LedgerSnapshot, error) {
	snap, err := b.sim.Snapshot(ctx, b.Portfolio, prices)
	if err != nil {
		return snap, fmt.Errorf("mark to market: %w", err)
	}
	return snap, nil
}
