package backtest

import (
	"time"

	"sigtrade/internal/types"
)

// RunConfig 记录本次回测的参数快照，便于重放。
type RunConfig struct {
	Symbol         string  `json:"symbol" yaml:"symbol"`
	Timeframe      string  `json:"timeframe" yaml:"timeframe"`
	Bars           int     `json:"bars" yaml:"bars"`
	WarmupBars     int     `json:"warmup_bars" yaml:"warmup_bars"`
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`
	CommissionRate float64 `json:"commission_rate" yaml:"commission_rate"`
	Slippage       float64 `json:"slippage" yaml:"slippage"`
	BuyThreshold   float64 `json:"buy_threshold" yaml:"buy_threshold"`
	SellThreshold  float64 `json:"sell_threshold" yaml:"sell_threshold"`
	Volatility     float64 `json:"volatility_threshold" yaml:"volatility_threshold"`
	ModelVersion   string  `json:"model_version,omitempty" yaml:"model_version,omitempty"`
}

// RunStats 汇总收益与风险指标。
type RunStats struct {
	Decisions      int     `json:"decisions" yaml:"decisions"`
	Trades         int     `json:"trades" yaml:"trades"`
	RoundTrips     int     `json:"round_trips" yaml:"round_trips"`
	Wins           int     `json:"wins" yaml:"wins"`
	Losses         int     `json:"losses" yaml:"losses"`
	WinRate        float64 `json:"win_rate" yaml:"win_rate"`
	RealizedPnL    float64 `json:"realized_pnl" yaml:"realized_pnl"`
	Fees           float64 `json:"fees" yaml:"fees"`
	FinalCash      float64 `json:"final_cash" yaml:"final_cash"`
	FinalEquity    float64 `json:"final_equity" yaml:"final_equity"`
	ReturnPct      float64 `json:"return_pct" yaml:"return_pct"`
	Sharpe         float64 `json:"sharpe" yaml:"sharpe"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct" yaml:"max_drawdown_pct"`
	OpenAtEnd      bool    `json:"open_at_end" yaml:"open_at_end"`
}

// EquityPoint 是资金曲线上的一个点。
type EquityPoint struct {
	Time   time.Time `json:"time" yaml:"time"`
	Price  float64   `json:"price" yaml:"price"`
	Cash   float64   `json:"cash" yaml:"cash"`
	Equity float64   `json:"equity" yaml:"equity"`
}

// Result 表示一次完整回测的产出。
type Result struct {
	ID         string              `json:"id" yaml:"id"`
	Config     RunConfig           `json:"config" yaml:"config"`
	Stats      RunStats            `json:"stats" yaml:"stats"`
	Trades     []types.TradeRecord `json:"trades" yaml:"-"`
	Equity     []EquityPoint       `json:"equity" yaml:"-"`
	StartedAt  time.Time           `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time           `json:"finished_at" yaml:"finished_at"`
}
