package backtest

import (
	"math"

	"sigtrade/internal/store"
	"sigtrade/internal/types"
)

// Sharpe annualises mean/std of per-step equity returns. A flat curve or
// fewer than two returns yields 0.
func Sharpe(equity []float64, barsPerYear float64) float64 {
	rets := make([]float64, 0, len(equity))
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		rets = append(rets, equity[i]/equity[i-1]-1)
	}
	if len(rets) < 2 || barsPerYear <= 0 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	variance := 0.0
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(rets)-1))
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(barsPerYear)
}

// MaxDrawdownPct is the largest peak-to-trough fall, in percent of the peak.
func MaxDrawdownPct(equity []float64) float64 {
	peak, worst := 0.0, 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := (peak - e) / peak * 100; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func summarize(cfg RunConfig, trades []types.TradeRecord, curve []EquityPoint, cash, barsPerYear float64) RunStats {
	var closed, fees []float64
	for _, t := range trades {
		fees = append(fees, t.Fee)
		if t.Status == types.StatusClosed {
			closed = append(closed, t.PnL)
		}
	}
	ts := store.Summarize(closed, fees)

	equity := make([]float64, len(curve))
	for i, p := range curve {
		equity[i] = p.Equity
	}
	final := cfg.InitialCapital
	if len(equity) > 0 {
		final = equity[len(equity)-1]
	}
	stats := RunStats{
		Decisions:      len(curve),
		Trades:         len(trades),
		RoundTrips:     ts.TotalTrades,
		Wins:           ts.Wins,
		Losses:         ts.Losses,
		WinRate:        ts.WinRate,
		RealizedPnL:    ts.PnL,
		Fees:           ts.Fees,
		FinalCash:      cash,
		FinalEquity:    final,
		Sharpe:         Sharpe(equity, barsPerYear),
		MaxDrawdownPct: MaxDrawdownPct(equity),
		OpenAtEnd:      len(trades) > 0 && trades[len(trades)-1].Side == types.SideBuy,
	}
	if cfg.InitialCapital > 0 {
		stats.ReturnPct = (final/cfg.InitialCapital - 1) * 100
	}
	return stats
}
