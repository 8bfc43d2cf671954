package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sigtrade/internal/execution"
	"sigtrade/internal/logger"
	"sigtrade/internal/market"
	"sigtrade/internal/metrics"
	"sigtrade/internal/pkg/circuit"
	"sigtrade/internal/store"
	"sigtrade/internal/strategy"
	"sigtrade/internal/types"
)

var engineLog = logger.Component("engine")

const (
	stageFetch    = "fetch"
	stageFeatures = "features"
	stagePredict  = "predict"
)

// Fetcher returns closed candles for one symbol, retrying on its own.
type Fetcher interface {
	Fetch(ctx context.Context, symbol, interval string, limit int) (market.Candles, error)
}

// FeatureFunc turns a candle series into the feature row of its last close.
type FeatureFunc func(candles []market.Candle) (types.FeatureRow, error)

// Pauser reports the externally toggled pause flag.
type Pauser interface {
	Paused() bool
}

// FillNotifier is told about every tick that produced fills. Failures are
// logged and never fail the tick.
type FillNotifier interface {
	NotifyFills(ctx context.Context, tickID string, exits, entries []execution.Fill, snap types.LedgerSnapshot) error
}

const notifyTimeout = 30 * time.Second

// Schedule holds the loop timings.
type Schedule struct {
	Interval     time.Duration
	PausePoll    time.Duration
	ErrorBackoff time.Duration
}

type Params struct {
	Symbols     []string
	Timeframe   string
	CandleLimit int
	Thresholds  strategy.Thresholds
	Schedule    Schedule

	Fetcher   Fetcher
	Features  FeatureFunc
	Predictor strategy.Predictor
	Book      *Book
	Pauser    Pauser
	Candles   store.CandleCache
	Metrics   *metrics.Recorder
	Breaker   *circuit.Breaker
	Notifier  FillNotifier
}

// TickReport is the outcome of one scan-rank-execute pass.
type TickReport struct {
	ID      string
	Quotes  []Quote
	Failed  []string
	Result  StepResult
	Elapsed time.Duration
}

// Engine is the live paper-trading loop. One tick runs at a time.
type Engine struct {
	p     Params
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

func New(p Params) (*Engine, error) {
	if len(p.Symbols) == 0 {
		return nil, fmt.Errorf("engine: no symbols configured")
	}
	if p.Fetcher == nil || p.Predictor == nil || p.Book == nil {
		return nil, fmt.Errorf("engine: fetcher, predictor and book are required")
	}
	if p.Features == nil {
		return nil, fmt.Errorf("engine: feature function is required")
	}
	if p.Breaker == nil {
		p.Breaker = circuit.New("engine", 5, 5*time.Minute)
	}
	return &Engine{
		p:     p,
		sleep: sleepCtx,
		newID: func() string { return uuid.NewString() },
	}, nil
}

// Run loops until ctx is cancelled. A tick in flight always completes
// before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	engineLog.Infof("starting symbols=%v timeframe=%s interval=%s", e.p.Symbols, e.p.Timeframe, e.p.Schedule.Interval)
	for {
		if ctx.Err() != nil {
			engineLog.Infof("stopped")
			return nil
		}
		if e.p.Pauser != nil && e.p.Pauser.Paused() {
			e.p.Metrics.RecordPaused(true)
			_ = e.sleep(ctx, e.p.Schedule.PausePoll)
			continue
		}
		e.p.Metrics.RecordPaused(false)

		wait := e.p.Schedule.Interval
		if !e.p.Breaker.Allow() {
			engineLog.Warnf("circuit open, skipping tick")
			e.p.Metrics.RecordTick("skipped", 0)
		} else if _, err := e.runTick(context.WithoutCancel(ctx)); err != nil {
			e.p.Breaker.RecordFailure()
			wait = e.p.Schedule.ErrorBackoff
		} else {
			e.p.Breaker.RecordSuccess()
		}
		_ = e.sleep(ctx, wait)
	}
}

// runTick converts panics into errors so a single bad tick never stops the loop.
func (e *Engine) runTick(ctx context.Context) (report TickReport, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
			engineLog.Errorf("tick=%s panic: %v\n%s", report.ID, r, debug.Stack())
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
			engineLog.Errorf("tick=%s failed: %v", report.ID, err)
		}
		e.p.Metrics.RecordTick(outcome, time.Since(start))
	}()
	return e.Tick(ctx)
}

// Tick runs one full pass: scan in parallel, then mutate sequentially.
func (e *Engine) Tick(ctx context.Context) (TickReport, error) {
	start := time.Now()
	report := TickReport{ID: e.newID()}

	quotes, failed := e.scan(ctx, report.ID)
	report.Quotes = quotes
	report.Failed = failed

	res, err := e.p.Book.Step(ctx, report.ID, quotes)
	report.Result = res
	report.Elapsed = time.Since(start)

	for _, f := range res.Exits {
		e.p.Metrics.RecordFill(string(f.Side), f.Reason)
	}
	for _, f := range res.Entries {
		e.p.Metrics.RecordFill(string(f.Side), f.Reason)
	}
	e.p.Metrics.RecordLedger(res.Snapshot.Cash, res.Snapshot.Equity, e.p.Book.Portfolio.OpenCount())
	e.notify(ctx, report.ID, res)

	engineLog.Infof("tick=%s scanned=%d failed=%d exits=%d entries=%d cash=%.2f equity=%.2f took=%s",
		report.ID, len(quotes), len(failed), len(res.Exits), len(res.Entries),
		res.Snapshot.Cash, res.Snapshot.Equity, report.Elapsed.Round(time.Millisecond))
	if err != nil {
		return report, fmt.Errorf("tick %s: %w", report.ID, err)
	}
	return report, nil
}

// SetNotifier attaches fill alerts. Call before Run.
func (e *Engine) SetNotifier(n FillNotifier) {
	e.p.Notifier = n
}

func (e *Engine) notify(ctx context.Context, tickID string, res StepResult) {
	if e.p.Notifier == nil || len(res.Exits)+len(res.Entries) == 0 {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := e.p.Notifier.NotifyFills(nctx, tickID, res.Exits, res.Entries, res.Snapshot); err != nil {
		engineLog.Warnf("tick=%s fill notification failed: %v", tickID, err)
	}
}

type scanResult struct {
	quote Quote
	ok    bool
}

// scan fans out per symbol. A symbol that fails at any stage is dropped
// from this tick only. Results keep the configured symbol order.
func (e *Engine) scan(ctx context.Context, tickID string) ([]Quote, []string) {
	results := make([]scanResult, len(e.p.Symbols))
	var g errgroup.Group
	for i, sym := range e.p.Symbols {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					engineLog.Errorf("tick=%s skip %s: panic: %v", tickID, sym, r)
				}
			}()
			q, err := e.scanSymbol(ctx, sym)
			if err != nil {
				engineLog.Warnf("tick=%s skip %s: %v", tickID, sym, err)
				return nil
			}
			results[i] = scanResult{quote: q, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	quotes := make([]Quote, 0, len(results))
	var failed []string
	for i, r := range results {
		if !r.ok {
			failed = append(failed, e.p.Symbols[i])
			continue
		}
		quotes = append(quotes, r.quote)
	}
	return quotes, failed
}

func (e *Engine) scanSymbol(ctx context.Context, sym string) (Quote, error) {
	candles, err := e.p.Fetcher.Fetch(ctx, sym, e.p.Timeframe, e.p.CandleLimit)
	if err != nil {
		e.p.Metrics.RecordSymbolFailure(sym, stageFetch)
		return Quote{}, fmt.Errorf("fetch: %w", err)
	}
	if e.p.Candles != nil {
		if err := e.p.Candles.Put(ctx, sym, e.p.Timeframe, candles); err != nil {
			engineLog.Debugf("cache %s: %v", sym, err)
		}
	}
	row, err := e.p.Features(candles)
	if err != nil {
		e.p.Metrics.RecordSymbolFailure(sym, stageFeatures)
		return Quote{}, fmt.Errorf("features: %w", err)
	}
	pred, err := strategy.Evaluate(row, e.p.Predictor, e.p.Thresholds)
	if err != nil {
		e.p.Metrics.RecordSymbolFailure(sym, stagePredict)
		return Quote{}, err
	}
	last, ok := candles.Last()
	if !ok {
		e.p.Metrics.RecordSymbolFailure(sym, stageFetch)
		return Quote{}, market.ErrNoCandles
	}
	e.p.Metrics.RecordPrediction(sym, string(pred.Signal))
	engineLog.Infof("%s signal=%s prob=%.4f vol=%.5f atr=%.6f close=%.8f (%s)",
		sym, pred.Signal, pred.Probability, pred.Volatility, pred.ATR, pred.ClosePrice, pred.Reason)
	return Quote{
		Symbol:     sym,
		Price:      last.Close,
		Prediction: pred,
		Row:        row,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
