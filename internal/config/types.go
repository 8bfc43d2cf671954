package config

import (
	"strings"
	"time"
)

// Config 是进程级配置的根结构。
type Config struct {
	App      AppConfig      `toml:"app"`
	Exchange ExchangeConfig `toml:"exchange"`
	Trading  TradingConfig  `toml:"trading"`
	Signal   SignalConfig   `toml:"signal"`
	Risk     RiskConfig     `toml:"risk"`
	Engine   EngineConfig   `toml:"engine"`
	Paths    PathsConfig    `toml:"paths"`
	Backtest BacktestConfig `toml:"backtest"`
	Notify   NotifyConfig   `toml:"notify"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	HTTPAddr string `toml:"http_addr"`
}

type ExchangeConfig struct {
	// Market 选择 "spot" 或 "futures" K线接口。
	Market             string `toml:"market"`
	RESTBaseURL        string `toml:"rest_base_url"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
	ProxyURL           string `toml:"proxy_url"`
}

func (e ExchangeConfig) HTTPTimeout() time.Duration {
	return time.Duration(e.HTTPTimeoutSeconds) * time.Second
}

// TradingConfig 描述交易品种、仓位与成本模型。
type TradingConfig struct {
	Symbols          []string `toml:"symbols"`
	Timeframe        string   `toml:"timeframe"`
	CandleLimit      int      `toml:"candle_limit"`
	InitialCapital   float64  `toml:"initial_capital"`
	MaxOpenPositions int      `toml:"max_open_positions"`
	MinOrderUSD      float64  `toml:"min_order_usd"`
	CommissionRate   float64  `toml:"commission_rate"`
	Slippage         float64  `toml:"slippage"`
	CashBuffer       float64  `toml:"cash_buffer"`
	RescaleFactor    float64  `toml:"rescale_factor"`
}

// PerSlotBudget 是单个仓位的名义预算 (initial_capital / max_open_positions)。
func (t TradingConfig) PerSlotBudget() float64 {
	if t.MaxOpenPositions <= 0 {
		return 0
	}
	return t.InitialCapital / float64(t.MaxOpenPositions)
}

type SignalConfig struct {
	BuyThreshold        float64 `toml:"buy_threshold"`
	SellThreshold       float64 `toml:"sell_threshold"`
	VolatilityThreshold float64 `toml:"volatility_threshold"`
}

type RiskConfig struct {
	StopATRMultiplier   float64 `toml:"stop_atr_multiplier"`
	TargetATRMultiplier float64 `toml:"target_atr_multiplier"`
	FallbackRiskPct     float64 `toml:"fallback_risk_pct"`
	FallbackRewardPct   float64 `toml:"fallback_reward_pct"`
}

type EngineConfig struct {
	IntervalSeconds     int `toml:"interval_seconds"`
	PausePollSeconds    int `toml:"pause_poll_seconds"`
	ErrorBackoffSeconds int `toml:"error_backoff_seconds"`
	FetchAttempts       int `toml:"fetch_attempts"`
	FetchBackoffSeconds int `toml:"fetch_backoff_seconds"`
	// FailureThreshold 连续失败多少个 tick 后熔断。
	FailureThreshold int `toml:"failure_threshold"`
	CooldownSeconds  int `toml:"cooldown_seconds"`
}

func (e EngineConfig) Interval() time.Duration {
	return time.Duration(e.IntervalSeconds) * time.Second
}

func (e EngineConfig) PausePoll() time.Duration {
	return time.Duration(e.PausePollSeconds) * time.Second
}

func (e EngineConfig) ErrorBackoff() time.Duration {
	return time.Duration(e.ErrorBackoffSeconds) * time.Second
}

func (e EngineConfig) FetchBackoff() time.Duration {
	return time.Duration(e.FetchBackoffSeconds) * time.Second
}

func (e EngineConfig) Cooldown() time.Duration {
	return time.Duration(e.CooldownSeconds) * time.Second
}

type PathsConfig struct {
	Database    string `toml:"database"`
	Model       string `toml:"model"`
	ControlFile string `toml:"control_file"`
	CandleCache string `toml:"candle_cache"`
	ReportDir   string `toml:"report_dir"`
}

type BacktestConfig struct {
	Symbol     string `toml:"symbol"`
	Limit      int    `toml:"limit"`
	WarmupBars int    `toml:"warmup_bars"`
}

// NotifyConfig 控制成交推送，默认关闭。
type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled    bool   `toml:"enabled"`
	BotToken   string `toml:"bot_token"`
	ChatID     string `toml:"chat_id"`
	APIBaseURL string `toml:"api_base_url"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
