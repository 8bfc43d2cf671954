package model

import (
	"time"

	"gorm.io/datatypes"
)

// BalanceModel is one row of balance_history.
type BalanceModel struct {
	ID        uint      `gorm:"column:id;primaryKey"`
	Balance   float64   `gorm:"column:balance"`
	Equity    float64   `gorm:"column:equity"`
	Timestamp time.Time `gorm:"column:timestamp;index"`
}

func (BalanceModel) TableName() string { return "balance_history" }

// TradeModel is one append-only fill. stop_loss/take_profit are only set on BUY rows.
type TradeModel struct {
	ID         uint      `gorm:"column:id;primaryKey"`
	TickID     string    `gorm:"column:tick_id;index"`
	Symbol     string    `gorm:"column:symbol;index"`
	Side       string    `gorm:"column:side"`
	Price      float64   `gorm:"column:price"`
	Amount     float64   `gorm:"column:amount"`
	Cost       float64   `gorm:"column:cost"`
	Fee        float64   `gorm:"column:fee"`
	PnL        float64   `gorm:"column:pnl"`
	Status     string    `gorm:"column:status;index"`
	Reason     string    `gorm:"column:reason"`
	StopLoss   float64   `gorm:"column:stop_loss"`
	TakeProfit float64   `gorm:"column:take_profit"`
	Timestamp  time.Time `gorm:"column:timestamp;index"`
}

func (TradeModel) TableName() string { return "trades" }

// SignalModel mirrors one prediction. Features holds the full feature row.
type SignalModel struct {
	ID          uint           `gorm:"column:id;primaryKey"`
	TickID      string         `gorm:"column:tick_id;index"`
	Symbol      string         `gorm:"column:symbol;index"`
	SignalType  string         `gorm:"column:signal_type"`
	Probability float64        `gorm:"column:probability"`
	Volatility  float64        `gorm:"column:volatility"`
	ATR         float64        `gorm:"column:atr"`
	ClosePrice  float64        `gorm:"column:close_price"`
	Reason      string         `gorm:"column:reason"`
	Features    datatypes.JSON `gorm:"column:features"`
	Timestamp   time.Time      `gorm:"column:timestamp;index"`
}

func (SignalModel) TableName() string { return "signals" }
