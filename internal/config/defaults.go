package config

import (
	"strings"

	"sigtrade/internal/pkg/symbol"
)

// 默认值常量
const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultAppHTTPAddr        = ":9991"
	defaultExchangeMarket     = "spot"
	defaultExchangeTimeout    = 15
	defaultTimeframe          = "1h"
	defaultCandleLimit        = 200
	defaultInitialCapital     = 1000
	defaultMaxOpenPositions   = 3
	defaultMinOrderUSD        = 5
	defaultCommissionRate     = 0.001
	defaultSlippage           = 0.001
	defaultCashBuffer         = 0.98
	defaultRescaleFactor      = 0.999
	defaultBuyThreshold       = 0.6
	defaultSellThreshold      = 0.4
	defaultVolatilityFloor    = 0.002
	defaultStopATRMultiplier  = 1.5
	defaultTargetATRMultipler = 2.5
	defaultFallbackRiskPct    = 0.02
	defaultFallbackRewardPct  = 0.03
	defaultIntervalSeconds    = 60
	defaultPausePollSeconds   = 5
	defaultErrorBackoff       = 10
	defaultFetchAttempts      = 3
	defaultFetchBackoff       = 3
	defaultFailureThreshold   = 5
	defaultCooldownSeconds    = 300
	defaultDatabasePath       = "data/trading.db"
	defaultModelPath          = "models/model.json"
	defaultControlFile        = "data/bot_status.json"
	defaultCandleCachePath    = "data/candles.db"
	defaultReportDir          = "data/reports"
	defaultBacktestLimit      = 2000
	defaultBacktestWarmup     = 50
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Signal.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Paths.applyDefaults(keys)
	c.Backtest.applyDefaults(keys, c.Trading)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("exchange.market", &e.Market, defaultExchangeMarket),
		intFieldDefault("exchange.http_timeout_seconds", &e.HTTPTimeoutSeconds, defaultExchangeTimeout),
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	t.Symbols = normalizeSymbols(t.Symbols)
	applyFieldDefaults(keys,
		stringFieldDefault("trading.timeframe", &t.Timeframe, defaultTimeframe),
		intFieldDefault("trading.candle_limit", &t.CandleLimit, defaultCandleLimit),
		floatFieldDefault("trading.initial_capital", &t.InitialCapital, defaultInitialCapital),
		intFieldDefault("trading.max_open_positions", &t.MaxOpenPositions, defaultMaxOpenPositions),
		floatFieldDefault("trading.min_order_usd", &t.MinOrderUSD, defaultMinOrderUSD),
		floatFieldDefault("trading.commission_rate", &t.CommissionRate, defaultCommissionRate),
		floatFieldDefault("trading.slippage", &t.Slippage, defaultSlippage),
		fieldDefault{
			key:   "trading.cash_buffer",
			need:  func() bool { return t.CashBuffer <= 0 || t.CashBuffer > 1 },
			apply: func() { t.CashBuffer = defaultCashBuffer },
		},
		fieldDefault{
			key:   "trading.rescale_factor",
			need:  func() bool { return t.RescaleFactor <= 0 || t.RescaleFactor > 1 },
			apply: func() { t.RescaleFactor = defaultRescaleFactor },
		},
	)
}

func (s *SignalConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("signal.buy_threshold", &s.BuyThreshold, defaultBuyThreshold),
		floatFieldDefault("signal.sell_threshold", &s.SellThreshold, defaultSellThreshold),
		floatFieldDefault("signal.volatility_threshold", &s.VolatilityThreshold, defaultVolatilityFloor),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("risk.stop_atr_multiplier", &r.StopATRMultiplier, defaultStopATRMultiplier),
		floatFieldDefault("risk.target_atr_multiplier", &r.TargetATRMultiplier, defaultTargetATRMultipler),
		floatFieldDefault("risk.fallback_risk_pct", &r.FallbackRiskPct, defaultFallbackRiskPct),
		floatFieldDefault("risk.fallback_reward_pct", &r.FallbackRewardPct, defaultFallbackRewardPct),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("engine.interval_seconds", &e.IntervalSeconds, defaultIntervalSeconds),
		intFieldDefault("engine.pause_poll_seconds", &e.PausePollSeconds, defaultPausePollSeconds),
		intFieldDefault("engine.error_backoff_seconds", &e.ErrorBackoffSeconds, defaultErrorBackoff),
		intFieldDefault("engine.fetch_attempts", &e.FetchAttempts, defaultFetchAttempts),
		intFieldDefault("engine.fetch_backoff_seconds", &e.FetchBackoffSeconds, defaultFetchBackoff),
		intFieldDefault("engine.failure_threshold", &e.FailureThreshold, defaultFailureThreshold),
		intFieldDefault("engine.cooldown_seconds", &e.CooldownSeconds, defaultCooldownSeconds),
	)
}

func (p *PathsConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("paths.database", &p.Database, defaultDatabasePath),
		stringFieldDefault("paths.model", &p.Model, defaultModelPath),
		stringFieldDefault("paths.control_file", &p.ControlFile, defaultControlFile),
		stringFieldDefault("paths.candle_cache", &p.CandleCache, defaultCandleCachePath),
		stringFieldDefault("paths.report_dir", &p.ReportDir, defaultReportDir),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet, trading TradingConfig) {
	if b == nil {
		return
	}
	b.Symbol = strings.ToUpper(strings.TrimSpace(b.Symbol))
	if norm := symbol.Normalize(b.Symbol); norm != "" {
		b.Symbol = norm
	}
	if b.Symbol == "" && len(trading.Symbols) > 0 {
		b.Symbol = trading.Symbols[0]
	}
	applyFieldDefaults(keys,
		intFieldDefault("backtest.limit", &b.Limit, defaultBacktestLimit),
		intFieldDefault("backtest.warmup_bars", &b.WarmupBars, defaultBacktestWarmup),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target == 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

// normalizeSymbols 统一为 BASE/QUOTE 形式并去重，保持配置顺序。
func normalizeSymbols(symbols []string) []string {
	out := symbol.NormalizeList(symbols)
	if len(out) == 0 {
		return nil
	}
	return out
}
