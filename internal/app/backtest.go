package app

import (
	"context"
	"fmt"

	"sigtrade/internal/backtest"
	brcfg "sigtrade/internal/config"
	"sigtrade/internal/market"
)

// BacktestOutcome 是一次离线回测的结果与报告目录。
type BacktestOutcome struct {
	Result    *backtest.Result
	ReportDir string
}

// RunBacktest 拉取 (或读取缓存的) 历史K线，回放并写出报告。
func RunBacktest(ctx context.Context, cfg *brcfg.Config, opts ...AppBuilderOption) (*BacktestOutcome, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	b := NewAppBuilder(cfg, opts...)

	predictor, err := b.modelFn(cfg.Paths.Model)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	src, err := b.sourceFn(cfg.Exchange)
	if err != nil {
		return nil, fmt.Errorf("init market source: %w", err)
	}
	cache, err := backtest.OpenCandleStore(cfg.Paths.CandleCache)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := cache.Close(); cerr != nil {
			appLog.Warnf("close candle cache: %v", cerr)
		}
	}()

	history := &backtest.History{
		Fetcher: market.NewRetryFetcher(src, cfg.Engine.FetchAttempts, cfg.Engine.FetchBackoff()),
		Store:   cache,
	}
	symbol := cfg.Backtest.Symbol
	candles, err := history.Load(ctx, symbol, cfg.Trading.Timeframe, cfg.Backtest.Limit)
	if err != nil {
		return nil, err
	}
	appLog.Infof("backtest %s %s: %d candles", symbol, cfg.Trading.Timeframe, len(candles))

	runner := backtest.NewRunner(backtest.Settings{
		Symbol:         symbol,
		Timeframe:      cfg.Trading.Timeframe,
		InitialCapital: cfg.Trading.InitialCapital,
		WarmupBars:     cfg.Backtest.WarmupBars,
		Thresholds:     thresholds(cfg.Signal),
		Risk:           riskParams(cfg.Risk),
		Costs:          costs(cfg.Trading),
		CashBuffer:     cfg.Trading.CashBuffer,
	}, predictor)
	res, err := runner.Run(ctx, candles)
	if err != nil {
		return nil, err
	}
	dir, err := backtest.WriteReport(cfg.Paths.ReportDir, res)
	if err != nil {
		return nil, err
	}
	appLog.Infof("backtest done trades=%d return=%.2f%% sharpe=%.2f report=%s",
		res.Stats.Trades, res.Stats.ReturnPct, res.Stats.Sharpe, dir)
	return &BacktestOutcome{Result: res, ReportDir: dir}, nil
}
