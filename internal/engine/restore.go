package engine

import (
	"context"
	"fmt"

	"sigtrade/internal/types"
)

// LedgerSource is the persisted state the live engine resumes from.
type LedgerSource interface {
	EnsureInitialSnapshot(ctx context.Context, capital float64) (types.LedgerSnapshot, error)
	OpenPositions(ctx context.Context) (types.Portfolio, error)
}

// Restore seeds an empty ledger with capital and rebuilds the portfolio from
// trades that were bought and never sold.
func Restore(ctx context.Context, src LedgerSource, capital float64, maxOpen int) (float64, types.Portfolio, error) {
	snap, err := src.EnsureInitialSnapshot(ctx, capital)
	if err != nil {
		return 0, nil, fmt.Errorf("restore ledger: %w", err)
	}
	portfolio, err := src.OpenPositions(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("restore positions: %w", err)
	}
	if portfolio == nil {
		portfolio = types.NewPortfolio()
	}
	if n := portfolio.OpenCount(); n > maxOpen {
		engineLog.Warnf("restored %d open positions, above max_open_positions=%d; no new entries until some close", n, maxOpen)
	}
	engineLog.Infof("restored cash=%.2f equity=%.2f open=%v", snap.Cash, snap.Equity, portfolio.OpenSymbols())
	return snap.Cash, portfolio, nil
}
