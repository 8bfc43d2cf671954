package app

import (
	"context"
	"errors"
	"fmt"

	"sigtrade/internal/allocator"
	brcfg "sigtrade/internal/config"
	"sigtrade/internal/control"
	"sigtrade/internal/engine"
	"sigtrade/internal/execution"
	"sigtrade/internal/features"
	"sigtrade/internal/gateway/binance"
	"sigtrade/internal/gateway/notifier"
	"sigtrade/internal/logger"
	"sigtrade/internal/market"
	"sigtrade/internal/metrics"
	"sigtrade/internal/model"
	"sigtrade/internal/pkg/circuit"
	"sigtrade/internal/store"
	"sigtrade/internal/store/gormstore"
	"sigtrade/internal/strategy"
	livehttp "sigtrade/internal/transport/http/live"
)

var appLog = logger.Component("app")

// AppBuilder 负责按配置组装实时交易所需的全部依赖。
type AppBuilder struct {
	cfg *brcfg.Config

	sourceFn func(brcfg.ExchangeConfig) (market.Source, error)
	modelFn  func(path string) (model.Classifier, error)
	ledgerFn func(path string) (*gormstore.GormStore, error)
}

type AppBuilderOption func(*AppBuilder)

// WithSource 替换行情源 (测试或离线回放使用)。
func WithSource(fn func(brcfg.ExchangeConfig) (market.Source, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.sourceFn = fn }
}

// WithModel 替换模型加载方式。
func WithModel(fn func(path string) (model.Classifier, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.modelFn = fn }
}

func NewAppBuilder(cfg *brcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:      cfg,
		sourceFn: buildSource,
		modelFn:  model.Load,
		ledgerFn: gormstore.NewGormStore,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func buildSource(cfg brcfg.ExchangeConfig) (market.Source, error) {
	return binance.New(binance.Config{
		Market:      cfg.Market,
		RESTBaseURL: cfg.RESTBaseURL,
		HTTPTimeout: cfg.HTTPTimeout(),
		ProxyURL:    cfg.ProxyURL,
	})
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	predictor, err := b.modelFn(cfg.Paths.Model)
	if err != nil {
		if errors.Is(err, model.ErrModelNotFound) {
			return nil, fmt.Errorf("model artifact missing at %s, train one before starting: %w", cfg.Paths.Model, err)
		}
		return nil, fmt.Errorf("load model: %w", err)
	}
	appLog.Infof("model loaded version=%s", predictor.Version())

	src, err := b.sourceFn(cfg.Exchange)
	if err != nil {
		return nil, fmt.Errorf("init market source: %w", err)
	}
	fetcher := market.NewRetryFetcher(src, cfg.Engine.FetchAttempts, cfg.Engine.FetchBackoff())

	ledger, err := b.ledgerFn(cfg.Paths.Database)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	closeLedger := func() {
		if cerr := ledger.Close(); cerr != nil {
			appLog.Warnf("close ledger: %v", cerr)
		}
	}

	cash, portfolio, err := engine.Restore(ctx, ledger, cfg.Trading.InitialCapital, cfg.Trading.MaxOpenPositions)
	if err != nil {
		closeLedger()
		return nil, err
	}

	sw, err := control.New(cfg.Paths.ControlFile)
	if err != nil {
		closeLedger()
		return nil, fmt.Errorf("init control switch: %w", err)
	}

	rec := metrics.New()
	candles := store.NewMemoryCandleCache(cfg.Trading.CandleLimit)
	machine := strategy.NewMachine(riskParams(cfg.Risk))
	sim := execution.NewSimulator(cash, costs(cfg.Trading), machine, ledger)
	book := engine.NewBook(engine.BookParams{
		Simulator:        sim,
		Machine:          machine,
		Allocator:        allocator.New(cfg.Trading.MinOrderUSD, cfg.Trading.CashBuffer),
		Portfolio:        portfolio,
		MaxOpenPositions: cfg.Trading.MaxOpenPositions,
		PerSlotBudget:    cfg.Trading.PerSlotBudget(),
	})

	eng, err := engine.New(engine.Params{
		Symbols:     cfg.Trading.Symbols,
		Timeframe:   cfg.Trading.Timeframe,
		CandleLimit: cfg.Trading.CandleLimit,
		Thresholds:  thresholds(cfg.Signal),
		Schedule: engine.Schedule{
			Interval:     cfg.Engine.Interval(),
			PausePoll:    cfg.Engine.PausePoll(),
			ErrorBackoff: cfg.Engine.ErrorBackoff(),
		},
		Fetcher:   fetcher,
		Features:  features.Compute,
		Predictor: predictor,
		Book:      book,
		Pauser:    sw,
		Candles:   candles,
		Metrics:   rec,
		Breaker:   circuit.New("engine", cfg.Engine.FailureThreshold, cfg.Engine.Cooldown()),
	})
	if err != nil {
		closeLedger()
		return nil, err
	}
	if fn := buildFillNotifier(cfg.Notify); fn != nil {
		eng.SetNotifier(fn)
	}
	sw.OnChange(rec.RecordPaused)

	defaultSymbol := ""
	if len(cfg.Trading.Symbols) > 0 {
		defaultSymbol = cfg.Trading.Symbols[0]
	}
	server, err := livehttp.NewServer(livehttp.ServerConfig{
		Addr: cfg.App.HTTPAddr,
		Router: &livehttp.Router{
			Ledger:        ledger,
			Control:       sw,
			Candles:       candles,
			Timeframe:     cfg.Trading.Timeframe,
			DefaultSymbol: defaultSymbol,
		},
		Metrics: rec.Handler(),
	})
	if err != nil {
		closeLedger()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		engine:  eng,
		server:  server,
		control: sw,
		closers: []func(){closeLedger},
		Summary: newStartupSummary(cfg, predictor.Version(), cash, portfolio.OpenSymbols()),
	}, nil
}

func buildFillNotifier(cfg brcfg.NotifyConfig) engine.FillNotifier {
	tg := cfg.Telegram
	if !tg.Enabled {
		return nil
	}
	appLog.Infof("telegram fill alerts enabled chat=%s", tg.ChatID)
	return notifier.NewFillAlerts(notifier.NewTelegram(tg.BotToken, tg.ChatID, tg.APIBaseURL))
}

func riskParams(r brcfg.RiskConfig) strategy.RiskParams {
	return strategy.RiskParams{
		StopATRMultiplier:   r.StopATRMultiplier,
		TargetATRMultiplier: r.TargetATRMultiplier,
		FallbackRiskPct:     r.FallbackRiskPct,
		FallbackRewardPct:   r.FallbackRewardPct,
	}
}

func thresholds(s brcfg.SignalConfig) strategy.Thresholds {
	return strategy.Thresholds{
		Buy:        s.BuyThreshold,
		Sell:       s.SellThreshold,
		Volatility: s.VolatilityThreshold,
	}
}

func costs(t brcfg.TradingConfig) execution.Costs {
	return execution.Costs{
		CommissionRate: t.CommissionRate,
		Slippage:       t.Slippage,
		MinOrder:       t.MinOrderUSD,
		RescaleFactor:  t.RescaleFactor,
	}
}
