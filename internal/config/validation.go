package config

import (
	"fmt"
	"strings"

	"sigtrade/internal/market"
	"sigtrade/internal/pkg/symbol"
)

// validate 对配置进行基础校验。配置错误在启动时即视为致命。
func validate(c *Config) error {
	switch strings.ToLower(strings.TrimSpace(c.Exchange.Market)) {
	case "spot", "futures":
	default:
		return fmt.Errorf("exchange.market must be spot or futures, got %q", c.Exchange.Market)
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Signal.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if t := c.Notify.Telegram; t.Enabled && (strings.TrimSpace(t.BotToken) == "" || strings.TrimSpace(t.ChatID) == "") {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
	}
	if strings.TrimSpace(c.Paths.Model) == "" {
		return fmt.Errorf("paths.model cannot be empty")
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if len(t.Symbols) == 0 {
		return fmt.Errorf("trading.symbols requires at least one symbol")
	}
	for _, s := range t.Symbols {
		if !symbol.IsValid(s) {
			return fmt.Errorf("trading.symbols: cannot parse %q as BASE/QUOTE", s)
		}
	}
	if _, err := market.ParseInterval(t.Timeframe); err != nil {
		return fmt.Errorf("trading.timeframe: %w", err)
	}
	if t.InitialCapital <= 0 {
		return fmt.Errorf("trading.initial_capital must be > 0")
	}
	if t.MaxOpenPositions <= 0 {
		return fmt.Errorf("trading.max_open_positions must be > 0")
	}
	if t.MinOrderUSD < 0 {
		return fmt.Errorf("trading.min_order_usd must be >= 0")
	}
	if t.CommissionRate < 0 || t.CommissionRate >= 1 {
		return fmt.Errorf("trading.commission_rate must be in [0,1)")
	}
	if t.Slippage < 0 || t.Slippage >= 1 {
		return fmt.Errorf("trading.slippage must be in [0,1)")
	}
	return nil
}

func (s *SignalConfig) validate() error {
	if s.BuyThreshold < 0 || s.BuyThreshold > 1 || s.SellThreshold < 0 || s.SellThreshold > 1 {
		return fmt.Errorf("%w: thresholds must be within [0,1]", ErrInvalidThresholds)
	}
	if s.BuyThreshold < s.SellThreshold {
		return fmt.Errorf("%w: buy_threshold %.4f < sell_threshold %.4f", ErrInvalidThresholds, s.BuyThreshold, s.SellThreshold)
	}
	if s.VolatilityThreshold < 0 {
		return fmt.Errorf("signal.volatility_threshold must be >= 0")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.StopATRMultiplier <= 0 || r.TargetATRMultiplier <= 0 {
		return fmt.Errorf("risk ATR multipliers must be > 0")
	}
	if r.FallbackRiskPct <= 0 || r.FallbackRiskPct >= 1 {
		return fmt.Errorf("risk.fallback_risk_pct must be in (0,1)")
	}
	if r.FallbackRewardPct <= 0 {
		return fmt.Errorf("risk.fallback_reward_pct must be > 0")
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.FetchAttempts <= 0 {
		return fmt.Errorf("engine.fetch_attempts must be > 0")
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if !symbol.IsValid(b.Symbol) {
		return fmt.Errorf("backtest.symbol: cannot parse %q as BASE/QUOTE", b.Symbol)
	}
	if b.WarmupBars < 0 {
		return fmt.Errorf("backtest.warmup_bars must be >= 0")
	}
	if b.Limit <= b.WarmupBars {
		return fmt.Errorf("backtest.limit must exceed warmup_bars")
	}
	return nil
}
