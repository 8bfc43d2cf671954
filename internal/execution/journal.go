package execution

import (
	"context"
	"sync"

	"sigtrade/internal/types"
)

// Journal persists the append-only history the simulator produces.
type Journal interface {
	AppendTrade(ctx context.Context, rec *types.TradeRecord) error
	AppendSnapshot(ctx context.Context, snap *types.LedgerSnapshot) error
	AppendSignal(ctx context.Context, rec *types.SignalRecord) error
}

// MemoryJournal keeps records in memory. Used by backtests and tests.
type MemoryJournal struct {
	mu        sync.Mutex
	trades    []types.TradeRecord
	snapshots []types.LedgerSnapshot
	signals   []types.SignalRecord
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) AppendTrade(_ context.Context, rec *types.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec.ID = uint(len(j.trades) + 1)
	j.trades = append(j.trades, *rec)
	return nil
}

func (j *MemoryJournal) AppendSnapshot(_ context.Context, snap *types.LedgerSnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	snap.ID = uint(len(j.snapshots) + 1)
	j.snapshots = append(j.snapshots, *snap)
	return nil
}

func (j *MemoryJournal) AppendSignal(_ context.Context, rec *types.SignalRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec.ID = uint(len(j.signals) + 1)
	j.signals = append(j.signals, *rec)
	return nil
}

func (j *MemoryJournal) Trades() []types.TradeRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]types.TradeRecord(nil), j.trades...)
}

func (j *MemoryJournal) Snapshots() []types.LedgerSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]types.LedgerSnapshot(nil), j.snapshots...)
}

func (j *MemoryJournal) Signals() []types.SignalRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]types.SignalRecord(nil), j.signals...)
}
