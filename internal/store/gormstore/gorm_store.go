package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sigtrade/internal/store"
	storemodel "sigtrade/internal/store/model"
	"sigtrade/internal/types"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type balanceModel = storemodel.BalanceModel
type tradeModel = storemodel.TradeModel
type signalModel = storemodel.SignalModel

const defaultListLimit = 50

// GormStore implements the ledger, trade and signal history using Gorm + SQLite.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ store.LedgerStore = (*GormStore)(nil)

// NewGormStore 打开 (必要时创建) SQLite 数据库并迁移表结构。
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&balanceModel{}, &tradeModel{}, &signalModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB for shared connections.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	return s.db.DB()
}

// --------------------- Writer -------------------------

func (s *GormStore) AppendTrade(ctx context.Context, rec *types.TradeRecord) error {
	if rec == nil {
		return fmt.Errorf("nil trade record")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	m := tradeModel{
		TickID:     rec.TickID,
		Symbol:     rec.Symbol,
		Side:       string(rec.Side),
		Price:      rec.Price,
		Amount:     rec.Amount,
		Cost:       rec.Cost,
		Fee:        rec.Fee,
		PnL:        rec.PnL,
		Status:     string(rec.Status),
		Reason:     rec.Reason,
		StopLoss:   rec.StopLoss,
		TakeProfit: rec.TakeProfit,
		Timestamp:  rec.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	rec.ID = m.ID
	return nil
}

func (s *GormStore) AppendSnapshot(ctx context.Context, snap *types.LedgerSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = s.now()
	}
	m := balanceModel{Balance: snap.Cash, Equity: snap.Equity, Timestamp: snap.Timestamp}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("insert balance: %w", err)
	}
	snap.ID = m.ID
	return nil
}

func (s *GormStore) AppendSignal(ctx context.Context, rec *types.SignalRecord) error {
	if rec == nil {
		return fmt.Errorf("nil signal record")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	var features datatypes.JSON
	if len(rec.Features) > 0 {
		raw, err := json.Marshal(rec.Features)
		if err != nil {
			return fmt.Errorf("encode features: %w", err)
		}
		features = datatypes.JSON(raw)
	}
	p := rec.Prediction
	m := signalModel{
		TickID:      rec.TickID,
		Symbol:      rec.Symbol,
		SignalType:  string(p.Signal),
		Probability: p.Probability,
		Volatility:  p.Volatility,
		ATR:         p.ATR,
		ClosePrice:  p.ClosePrice,
		Reason:      p.Reason,
		Features:    features,
		Timestamp:   rec.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	rec.ID = m.ID
	return nil
}

func (s *GormStore) EnsureInitialSnapshot(ctx context.Context, capital float64) (types.LedgerSnapshot, error) {
	snap, ok, err := s.LatestSnapshot(ctx)
	if err != nil {
		return types.LedgerSnapshot{}, err
	}
	if ok {
		return snap, nil
	}
	snap = types.LedgerSnapshot{Cash: capital, Equity: capital, Timestamp: s.now()}
	if err := s.AppendSnapshot(ctx, &snap); err != nil {
		return types.LedgerSnapshot{}, err
	}
	return snap, nil
}

// --------------------- Reader -------------------------

func (s *GormStore) LatestSnapshot(ctx context.Context) (types.LedgerSnapshot, bool, error) {
	var m balanceModel
	err := s.db.WithContext(ctx).Order("id DESC").Limit(1).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.LedgerSnapshot{}, false, nil
	}
	if err != nil {
		return types.LedgerSnapshot{}, false, fmt.Errorf("latest balance: %w", err)
	}
	return toSnapshot(m), true, nil
}

// ListSnapshots returns the most recent points in chronological order.
func (s *GormStore) ListSnapshots(ctx context.Context, limit int) ([]types.LedgerSnapshot, error) {
	var rows []balanceModel
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(normalizeLimit(limit)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list balance: %w", err)
	}
	out := make([]types.LedgerSnapshot, len(rows))
	for i, m := range rows {
		out[len(rows)-1-i] = toSnapshot(m)
	}
	return out, nil
}

// ListTrades returns the most recent trades, newest first.
func (s *GormStore) ListTrades(ctx context.Context, limit int) ([]types.TradeRecord, error) {
	var rows []tradeModel
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(normalizeLimit(limit)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	out := make([]types.TradeRecord, 0, len(rows))
	for _, m := range rows {
		out = append(out, toTrade(m))
	}
	return out, nil
}

// ListSignals returns the most recent signals, newest first, optionally for one symbol.
func (s *GormStore) ListSignals(ctx context.Context, symbol string, limit int) ([]types.SignalRecord, error) {
	q := s.db.WithContext(ctx).Order("id DESC").Limit(normalizeLimit(limit))
	if symbol = strings.TrimSpace(symbol); symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var rows []signalModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	out := make([]types.SignalRecord, 0, len(rows))
	for _, m := range rows {
		rec, err := toSignal(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *GormStore) LatestSignal(ctx context.Context) (types.SignalRecord, bool, error) {
	var m signalModel
	err := s.db.WithContext(ctx).Order("id DESC").Limit(1).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.SignalRecord{}, false, nil
	}
	if err != nil {
		return types.SignalRecord{}, false, fmt.Errorf("latest signal: %w", err)
	}
	rec, err := toSignal(m)
	if err != nil {
		return types.SignalRecord{}, false, err
	}
	return rec, true, nil
}

// OpenPositions replays the trade log: a BUY opens a symbol, a later SELL
// closes it. Rows without stored bands come back with both bands disabled.
func (s *GormStore) OpenPositions(ctx context.Context) (types.Portfolio, error) {
	var rows []tradeModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	portfolio := types.NewPortfolio()
	for _, m := range rows {
		switch types.Side(m.Side) {
		case types.SideBuy:
			portfolio[m.Symbol] = &types.Position{
				State:      types.PositionLong,
				Amount:     m.Amount,
				EntryPrice: m.Price,
				StopLoss:   m.StopLoss,
				TakeProfit: m.TakeProfit,
			}
		case types.SideSell:
			delete(portfolio, m.Symbol)
		}
	}
	return portfolio, nil
}

func (s *GormStore) Statistics(ctx context.Context) (types.TradeStats, error) {
	var rows []tradeModel
	if err := s.db.WithContext(ctx).Where("status = ?", string(types.StatusClosed)).Find(&rows).Error; err != nil {
		return types.TradeStats{}, fmt.Errorf("load closed trades: %w", err)
	}
	var fees []float64
	if err := s.db.WithContext(ctx).Model(&tradeModel{}).Pluck("fee", &fees).Error; err != nil {
		return types.TradeStats{}, fmt.Errorf("load fees: %w", err)
	}
	pnls := make([]float64, len(rows))
	for i, m := range rows {
		pnls[i] = m.PnL
	}
	return store.Summarize(pnls, fees), nil
}

// --------------------- helpers -------------------------

func toSnapshot(m balanceModel) types.LedgerSnapshot {
	return types.LedgerSnapshot{ID: m.ID, Cash: m.Balance, Equity: m.Equity, Timestamp: m.Timestamp}
}

func toTrade(m tradeModel) types.TradeRecord {
	return types.TradeRecord{
		ID:         m.ID,
		TickID:     m.TickID,
		Symbol:     m.Symbol,
		Side:       types.Side(m.Side),
		Price:      m.Price,
		Amount:     m.Amount,
		Cost:       m.Cost,
		Fee:        m.Fee,
		PnL:        m.PnL,
		Status:     types.TradeStatus(m.Status),
		Reason:     m.Reason,
		StopLoss:   m.StopLoss,
		TakeProfit: m.TakeProfit,
		Timestamp:  m.Timestamp,
	}
}

func toSignal(m signalModel) (types.SignalRecord, error) {
	rec := types.SignalRecord{
		ID:     m.ID,
		TickID: m.TickID,
		Symbol: m.Symbol,
		Prediction: types.Prediction{
			Signal:      types.ParseSignal(m.SignalType),
			Probability: m.Probability,
			Volatility:  m.Volatility,
			ATR:         m.ATR,
			ClosePrice:  m.ClosePrice,
			Reason:      m.Reason,
		},
		Timestamp: m.Timestamp,
	}
	if len(m.Features) > 0 {
		if err := json.Unmarshal(m.Features, &rec.Features); err != nil {
			return types.SignalRecord{}, fmt.Errorf("decode features for signal %d: %w", m.ID, err)
		}
	}
	return rec, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
