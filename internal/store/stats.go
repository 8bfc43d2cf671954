package store

import (
	"github.com/shopspring/decimal"

	"sigtrade/internal/types"
)

// Summarize computes closed-trade statistics. Win rate is a percentage; money
// values are rounded to cents.
func Summarize(closedPnL, fees []float64) types.TradeStats {
	stats := types.TradeStats{TotalTrades: len(closedPnL)}
	total := decimal.Zero
	for _, pnl := range closedPnL {
		d := decimal.NewFromFloat(pnl)
		total = total.Add(d)
		switch {
		case d.IsPositive():
			stats.Wins++
		case d.IsNegative():
			stats.Losses++
		}
	}
	feeTotal := decimal.Zero
	for _, f := range fees {
		feeTotal = feeTotal.Add(decimal.NewFromFloat(f))
	}
	if stats.TotalTrades > 0 {
		rate := decimal.NewFromInt(int64(stats.Wins)).
			Div(decimal.NewFromInt(int64(stats.TotalTrades))).
			Mul(decimal.NewFromInt(100))
		stats.WinRate = rate.Round(2).InexactFloat64()
	}
	stats.PnL = total.Round(2).InexactFloat64()
	stats.Fees = feeTotal.Round(2).InexactFloat64()
	return stats
}
