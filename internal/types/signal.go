package types

import "strings"

// Signal is the discrete action derived from a model probability.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

func ParseSignal(s string) Signal {
	switch Signal(strings.ToUpper(strings.TrimSpace(s))) {
	case SignalBuy:
		return SignalBuy
	case SignalSell:
		return SignalSell
	default:
		return SignalHold
	}
}

const ReasonLowVolatility = "low volatility"

// Prediction is produced once per symbol per tick and logged verbatim.
type Prediction struct {
	Signal      Signal  `json:"signal"`
	Probability float64 `json:"probability"`
	Volatility  float64 `json:"volatility"`
	ATR         float64 `json:"atr"`
	ClosePrice  float64 `json:"close_price"`
	Reason      string  `json:"reason"`
}
