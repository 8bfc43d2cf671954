package backtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"sigtrade/internal/market"
)

// Manifest 记录某个 symbol@timeframe 的缓存统计。
type Manifest struct {
	Symbol    string `json:"symbol" yaml:"symbol"`
	Timeframe string `json:"timeframe" yaml:"timeframe"`
	MinTime   int64  `json:"min_time" yaml:"min_time"`
	MaxTime   int64  `json:"max_time" yaml:"max_time"`
	Rows      int64  `json:"rows" yaml:"rows"`
}

// CandleStore 缓存回测使用的历史 K 线，所有 symbol/timeframe 共用一个 sqlite 文件。
type CandleStore struct {
	db   *sql.DB
	path string
}

func OpenCandleStore(path string) (*CandleStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("candle cache path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &CandleStore{db: db, path: path}, nil
}

func (s *CandleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS candles (
		symbol      TEXT    NOT NULL,
		timeframe   TEXT    NOT NULL,
		open_time   INTEGER NOT NULL,
		close_time  INTEGER NOT NULL,
		open        REAL    NOT NULL,
		high        REAL    NOT NULL,
		low         REAL    NOT NULL,
		close       REAL    NOT NULL,
		volume      REAL    NOT NULL,
		trades      INTEGER DEFAULT 0,
		inserted_at INTEGER NOT NULL,
		PRIMARY KEY (symbol, timeframe, open_time)
	);`)
	return err
}

func key(symbol, timeframe string) (string, string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	if symbol == "" || timeframe == "" {
		return "", "", fmt.Errorf("symbol/timeframe 不能为空")
	}
	return symbol, timeframe, nil
}

// InsertCandles 批量写入 K 线（重复 open_time 将被覆盖）。
func (s *CandleStore) InsertCandles(ctx context.Context, symbol, timeframe string, candles []market.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	symbol, timeframe, err := key(symbol, timeframe)
	if err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, timeframe, open_time, close_time, open, high, low, close, volume, trades, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timeframe, open_time) DO UPDATE SET
		    close_time=excluded.close_time,
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume,
		    trades=excluded.trades,
		    inserted_at=excluded.inserted_at`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	now := time.Now().UnixMilli()
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, timeframe, c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume, c.Trades, now); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(candles), nil
}

// LatestCandles 返回最新的 limit 根 K 线，按 open_time 升序。
func (s *CandleStore) LatestCandles(ctx context.Context, symbol, timeframe string, limit int) ([]market.Candle, error) {
	symbol, timeframe, err := key(symbol, timeframe)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 2000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT open_time, close_time, open, high, low, close, volume, trades
		FROM candles WHERE symbol = ? AND timeframe = ?
		ORDER BY open_time DESC LIMIT ?`, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Trades); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

func (s *CandleStore) Manifest(ctx context.Context, symbol, timeframe string) (Manifest, error) {
	symbol, timeframe, err := key(symbol, timeframe)
	if err != nil {
		return Manifest{}, err
	}
	m := Manifest{Symbol: symbol, Timeframe: timeframe}
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MIN(open_time), 0), COALESCE(MAX(open_time), 0), COUNT(1)
		FROM candles WHERE symbol = ? AND timeframe = ?`, symbol, timeframe)
	if err := row.Scan(&m.MinTime, &m.MaxTime, &m.Rows); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
