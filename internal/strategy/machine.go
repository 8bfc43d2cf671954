package strategy

import (
	"fmt"

	"sigtrade/internal/types"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Decision is the output of Machine.Decide. StopLoss and TakeProfit are set
// only for BUY.
type Decision struct {
	Action     Action
	Reason     string
	StopLoss   float64
	TakeProfit float64
}

// RiskParams sizes the protective bands around an entry.
type RiskParams struct {
	StopATRMultiplier   float64
	TargetATRMultiplier float64
	FallbackRiskPct     float64
	FallbackRewardPct   float64
}

// Machine is the per-symbol NONE/LONG state machine. Decide is pure; Apply
// performs the transition after a fill is confirmed.
type Machine struct {
	risk RiskParams
}

func NewMachine(risk RiskParams) *Machine {
	return &Machine{risk: risk}
}

// Bands returns stop-loss and take-profit for an entry. Without a usable ATR
// it falls back to fixed percentages of the entry price.
func (m *Machine) Bands(entry, atr float64) (stop, target float64) {
	if atr > 0 {
		return entry - m.risk.StopATRMultiplier*atr, entry + m.risk.TargetATRMultiplier*atr
	}
	return entry * (1 - m.risk.FallbackRiskPct), entry * (1 + m.risk.FallbackRewardPct)
}

// Decide checks exits before entries. For a LONG position the order is stop
// loss, take profit, then a SELL signal.
func (m *Machine) Decide(pred types.Prediction, price float64, pos types.Position) Decision {
	if pos.IsLong() {
		switch {
		case stopLossHit(price, pos.StopLoss):
			return Decision{Action: ActionSell, Reason: types.ReasonStopLoss}
		case takeProfitHit(price, pos.TakeProfit):
			return Decision{Action: ActionSell, Reason: types.ReasonTakeProfit}
		case pred.Signal == types.SignalSell:
			return Decision{Action: ActionSell, Reason: types.ReasonSignalFlip}
		}
		return Decision{Action: ActionHold}
	}
	if pred.Signal == types.SignalBuy && price > 0 {
		stop, target := m.Bands(price, pred.ATR)
		return Decision{Action: ActionBuy, Reason: types.ReasonSignal, StopLoss: stop, TakeProfit: target}
	}
	return Decision{Action: ActionHold}
}

// Apply mutates pos after a confirmed fill. Bands are recomputed from the
// executed price so slippage shifts them with the entry.
func (m *Machine) Apply(pos *types.Position, action Action, execPrice, amount, atr float64) error {
	if pos == nil {
		return fmt.Errorf("nil position")
	}
	switch action {
	case ActionBuy:
		if pos.IsLong() {
			return fmt.Errorf("buy on an already long position")
		}
		if amount <= 0 || execPrice <= 0 {
			return fmt.Errorf("invalid fill amount=%f price=%f", amount, execPrice)
		}
		stop, target := m.Bands(execPrice, atr)
		*pos = types.Position{
			State:      types.PositionLong,
			Amount:     amount,
			EntryPrice: execPrice,
			StopLoss:   stop,
			TakeProfit: target,
		}
	case ActionSell:
		if !pos.IsLong() {
			return fmt.Errorf("sell without an open position")
		}
		*pos = types.Position{State: types.PositionNone}
	default:
		return fmt.Errorf("unsupported action %q", action)
	}
	return nil
}
