package types

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

// Exit and entry reasons recorded on trades.
const (
	ReasonSignal     = "SIGNAL"
	ReasonStopLoss   = "SL"
	ReasonTakeProfit = "TP"
	ReasonSignalFlip = "SIGNAL_FLIP"
	ReasonCloseOut   = "CLOSE_OUT"
)

// TradeRecord is append-only. A BUY is OPEN, its matching SELL is a new CLOSED row.
type TradeRecord struct {
	ID         uint        `json:"id"`
	TickID     string      `json:"tick_id,omitempty"`
	Symbol     string      `json:"symbol"`
	Side       Side        `json:"side"`
	Price      float64     `json:"price"`
	Amount     float64     `json:"amount"`
	Cost       float64     `json:"cost"`
	Fee        float64     `json:"fee"`
	PnL        float64     `json:"pnl"`
	Status     TradeStatus `json:"status"`
	Reason     string      `json:"reason"`
	StopLoss   float64     `json:"stop_loss,omitempty"`
	TakeProfit float64     `json:"take_profit,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// SignalRecord mirrors a Prediction for audit, whether or not it traded.
type SignalRecord struct {
	ID         uint       `json:"id"`
	TickID     string     `json:"tick_id,omitempty"`
	Symbol     string     `json:"symbol"`
	Prediction Prediction `json:"prediction"`
	Features   FeatureRow `json:"features,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// LedgerSnapshot is one cash/equity point.
type LedgerSnapshot struct {
	ID        uint      `json:"id"`
	Cash      float64   `json:"cash"`
	Equity    float64   `json:"equity"`
	Timestamp time.Time `json:"timestamp"`
}

// TradeStats summarises closed trades.
type TradeStats struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"winrate"`
	PnL         float64 `json:"pnl"`
	Fees        float64 `json:"fees"`
}
