package allocator

import (
	"sort"

	"sigtrade/internal/types"
)

// Candidate is one symbol's prediction offered for entry.
type Candidate struct {
	Symbol      string
	Signal      types.Signal
	Probability float64
	Price       float64
	ATR         float64
}

// Allocation is an accepted entry with its notional budget.
type Allocation struct {
	Candidate
	Notional float64
}

// Allocator spends a fixed budget greedily, highest probability first.
type Allocator struct {
	MinOrder   float64
	CashBuffer float64
}

func New(minOrder, cashBuffer float64) Allocator {
	return Allocator{MinOrder: minOrder, CashBuffer: cashBuffer}
}

// Rank returns BUY candidates sorted by probability, descending. Equal
// probabilities keep input order.
func Rank(cands []Candidate) []Candidate {
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Signal == types.SignalBuy {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Probability > out[j].Probability
	})
	return out
}

// Allocate walks the ranked candidates, skipping held symbols. Each accepted
// allocation reduces the remaining slots and cash before the next is sized,
// so the total never exceeds cash.
func (a Allocator) Allocate(cands []Candidate, held types.Portfolio, openSlots int, cash, perSlot float64) []Allocation {
	buffer := a.CashBuffer
	if buffer <= 0 || buffer > 1 {
		buffer = 1
	}
	var out []Allocation
	for _, c := range Rank(cands) {
		if openSlots <= 0 {
			break
		}
		if held.Holds(c.Symbol) || c.Price <= 0 {
			continue
		}
		notional := perSlot
		if capped := cash * buffer; capped < notional {
			notional = capped
		}
		if notional <= 0 || notional < a.MinOrder {
			continue
		}
		out = append(out, Allocation{Candidate: c, Notional: notional})
		openSlots--
		cash -= notional
	}
	return out
}
