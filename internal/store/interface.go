package store

import (
	"context"

	"sigtrade/internal/types"
)

// Writer is the append-only side used by the execution simulator.
type Writer interface {
	AppendTrade(ctx context.Context, rec *types.TradeRecord) error
	AppendSnapshot(ctx context.Context, snap *types.LedgerSnapshot) error
	AppendSignal(ctx context.Context, rec *types.SignalRecord) error
}

// Reader serves the dashboard and startup rehydration.
type Reader interface {
	LatestSnapshot(ctx context.Context) (types.LedgerSnapshot, bool, error)
	ListSnapshots(ctx context.Context, limit int) ([]types.LedgerSnapshot, error)
	ListTrades(ctx context.Context, limit int) ([]types.TradeRecord, error)
	ListSignals(ctx context.Context, symbol string, limit int) ([]types.SignalRecord, error)
	LatestSignal(ctx context.Context) (types.SignalRecord, bool, error)
	OpenPositions(ctx context.Context) (types.Portfolio, error)
	Statistics(ctx context.Context) (types.TradeStats, error)
}

// LedgerStore is the entry point for ledger/trade/signal persistence.
type LedgerStore interface {
	Writer
	Reader
	// EnsureInitialSnapshot seeds the ledger when empty and returns the latest point.
	EnsureInitialSnapshot(ctx context.Context, capital float64) (types.LedgerSnapshot, error)
	Close() error
}
