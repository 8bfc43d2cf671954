package types

import (
	"sort"
)

type PositionState string

const (
	PositionNone PositionState = "NONE"
	PositionLong PositionState = "LONG"
)

// Position holds per-symbol state. A NONE position has every numeric field zeroed.
type Position struct {
	State      PositionState `json:"state"`
	Amount     float64       `json:"amount"`
	EntryPrice float64       `json:"entry_price"`
	StopLoss   float64       `json:"stop_loss"`
	TakeProfit float64       `json:"take_profit"`
}

func (p Position) IsLong() bool {
	return p.State == PositionLong
}

// Portfolio maps symbol to its position. Missing symbols are implicitly NONE.
type Portfolio map[string]*Position

func NewPortfolio() Portfolio {
	return make(Portfolio)
}

// Get returns the position for symbol, creating a NONE entry on first access.
func (p Portfolio) Get(symbol string) *Position {
	pos, ok := p[symbol]
	if !ok || pos == nil {
		pos = &Position{State: PositionNone}
		p[symbol] = pos
	}
	return pos
}

func (p Portfolio) Holds(symbol string) bool {
	pos, ok := p[symbol]
	return ok && pos != nil && pos.IsLong()
}

func (p Portfolio) OpenCount() int {
	n := 0
	for _, pos := range p {
		if pos != nil && pos.IsLong() {
			n++
		}
	}
	return n
}

// OpenSymbols lists held symbols sorted for deterministic iteration.
func (p Portfolio) OpenSymbols() []string {
	out := make([]string, 0, len(p))
	for sym, pos := range p {
		if pos != nil && pos.IsLong() {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// PositionSnapshot is the read model served by the dashboard.
type PositionSnapshot struct {
	Symbol       string  `json:"symbol"`
	Amount       float64 `json:"amount"`
	EntryPrice   float64 `json:"entry_price"`
	StopLoss     float64 `json:"stop_loss"`
	TakeProfit   float64 `json:"take_profit"`
	CurrentPrice float64 `json:"current_price,omitempty"`
	UnrealizedPn float64 `json:"unrealized_pn"`
}
