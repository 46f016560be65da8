package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/evdnx/protrader/types"
)

// ErrNotFound is returned when a signal id does not exist or is already
// closed.
var ErrNotFound = errors.New("signal not found")

// Store persists signals and serves the closed-trade history read by the
// performance filter.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSignal is a stored buy signal whose position has not been closed.
type OpenSignal struct {
	ID         int64
	Symbol     string
	SignalType string
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	SizePct    float64
	OpenedAt   int64
	Executed   bool
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS signals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    timeframe TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    signal_type TEXT NOT NULL,
    price_at_signal REAL NOT NULL,
    confidence_score REAL,
    strategy_name TEXT,
    reasoning TEXT,
    conditions_met TEXT,
    metadata TEXT,
    suggested_stop_loss REAL,
    suggested_take_profit REAL,
    position_size_pct REAL,
    risk_reward_ratio REAL,
    created_at INTEGER NOT NULL,
    is_executed INTEGER NOT NULL DEFAULT 0,
    executed_at INTEGER,
    execution_price REAL,
    is_closed INTEGER NOT NULL DEFAULT 0,
    closed_at INTEGER,
    close_price REAL,
    close_reason TEXT,
    profit_loss_pct REAL
);

CREATE INDEX IF NOT EXISTS idx_signals_symbol_closed ON signals(symbol, is_closed, closed_at);

CREATE VIEW IF NOT EXISTS signal_performance AS
SELECT
    symbol,
    COUNT(*) AS total_trades,
    SUM(CASE WHEN profit_loss_pct > 0 THEN 1 ELSE 0 END) AS winning_trades,
    SUM(CASE WHEN profit_loss_pct < 0 THEN 1 ELSE 0 END) AS losing_trades,
    100.0 * SUM(CASE WHEN profit_loss_pct > 0 THEN 1 ELSE 0 END) / COUNT(*) AS win_rate,
    AVG(profit_loss_pct) AS avg_profit_pct,
    SUM(profit_loss_pct) AS total_profit_pct,
    MAX(profit_loss_pct) AS max_profit_pct,
    MIN(profit_loss_pct) AS max_loss_pct,
    AVG((closed_at - COALESCE(executed_at, timestamp)) / 86400.0) AS avg_hold_days
FROM signals
WHERE is_closed = 1
GROUP BY symbol;
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// SaveSignal stores sig and returns its id.
func (s *Store) SaveSignal(ctx context.Context, sig *types.Signal) (int64, error) {
	if sig == nil {
		return 0, fmt.Errorf("signal is required")
	}
	rec, err := sig.Record()
	if err != nil {
		return 0, err
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = s.now().Unix()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO signals (
    symbol, timeframe, timestamp, signal_type, price_at_signal, confidence_score,
    strategy_name, reasoning, conditions_met, metadata, suggested_stop_loss,
    suggested_take_profit, position_size_pct, risk_reward_ratio, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?)
`, rec.Symbol, rec.Timeframe, rec.Timestamp, rec.SignalType, rec.Price, rec.Confidence,
		rec.Strategy, rec.Reasoning, rec.ConditionsMet, rec.Metadata, rec.StopLoss,
		rec.TakeProfit, rec.PositionSizePct, rec.RiskRewardRatio, rec.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert signal: %w", err)
	}
	return res.LastInsertId()
}

// MarkExecuted records the fill of a signal. ts <= 0 uses the current time.
func (s *Store) MarkExecuted(ctx context.Context, id int64, price float64, ts int64) error {
	if ts <= 0 {
		ts = s.now().Unix()
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE signals
SET is_executed = 1, executed_at = ?, execution_price = ?
WHERE id = ? AND is_closed = 0
`, ts, price, id)
	if err != nil {
		return fmt.Errorf("mark executed: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("mark executed %d: %w", id, ErrNotFound)
	}
	return nil
}

// CloseSignal closes the position opened by signal id at closePrice and
// returns the resulting trade. The entry is the execution price when the
// signal was filled, the signal price otherwise. ts <= 0 uses the current
// time.
func (s *Store) CloseSignal(ctx context.Context, id int64, closePrice float64, reason string, ts int64) (types.ClosedTrade, error) {
	if ts <= 0 {
		ts = s.now().Unix()
	}
	if reason == "" {
		reason = types.CloseManual
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.ClosedTrade{}, fmt.Errorf("begin close: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	trade := types.ClosedTrade{SignalID: id, ExitPrice: closePrice, CloseTimestamp: ts, CloseReason: reason}
	err = tx.QueryRowContext(ctx, `
SELECT symbol, signal_type, COALESCE(execution_price, price_at_signal), COALESCE(executed_at, timestamp)
FROM signals
WHERE id = ? AND is_closed = 0
`, id).Scan(&trade.Symbol, &trade.SignalType, &trade.EntryPrice, &trade.OpenTimestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ClosedTrade{}, fmt.Errorf("close signal %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.ClosedTrade{}, fmt.Errorf("load signal: %w", err)
	}
	trade.ProfitLossPct = types.ReturnPct(trade.EntryPrice, closePrice)

	if _, err := tx.ExecContext(ctx, `
UPDATE signals
SET is_closed = 1, closed_at = ?, close_price = ?, close_reason = ?, profit_loss_pct = ?
WHERE id = ?
`, ts, closePrice, reason, trade.ProfitLossPct, id); err != nil {
		return types.ClosedTrade{}, fmt.Errorf("close signal: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return types.ClosedTrade{}, fmt.Errorf("commit close: %w", err)
	}
	return trade, nil
}

// RecordTrade stores a trade closed outside the store. A trade tied to a
// stored signal closes that signal; otherwise a closed row is inserted.
func (s *Store) RecordTrade(ctx context.Context, t types.ClosedTrade) error {
	if t.SignalID > 0 {
		_, err := s.CloseSignal(ctx, t.SignalID, t.ExitPrice, t.CloseReason, t.CloseTimestamp)
		return err
	}
	if t.Symbol == "" {
		return fmt.Errorf("closed trade has no symbol")
	}
	reason := t.CloseReason
	if reason == "" {
		reason = types.CloseManual
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO signals (
    symbol, timeframe, timestamp, signal_type, price_at_signal, created_at,
    is_executed, executed_at, execution_price,
    is_closed, closed_at, close_price, close_reason, profit_loss_pct
) VALUES (?, '', ?, ?, ?, ?, 1, ?, ?, 1, ?, ?, ?, ?)
`, t.Symbol, t.OpenTimestamp, t.SignalType, t.EntryPrice, s.now().Unix(),
		t.OpenTimestamp, t.EntryPrice,
		t.CloseTimestamp, t.ExitPrice, reason, t.ProfitLossPct)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// OpenSignals lists buy signals whose position is still open, oldest first.
func (s *Store) OpenSignals(ctx context.Context) ([]OpenSignal, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, symbol, signal_type, COALESCE(execution_price, price_at_signal),
       COALESCE(suggested_stop_loss, 0), COALESCE(suggested_take_profit, 0),
       COALESCE(position_size_pct, 0), COALESCE(executed_at, timestamp), is_executed
FROM signals
WHERE is_closed = 0 AND signal_type IN (?, ?)
ORDER BY id ASC
`, string(types.StrongBuy), string(types.WeakBuy))
	if err != nil {
		return nil, fmt.Errorf("query open signals: %w", err)
	}
	defer rows.Close()

	var out []OpenSignal
	for rows.Next() {
		var o OpenSignal
		if err := rows.Scan(&o.ID, &o.Symbol, &o.SignalType, &o.EntryPrice, &o.StopLoss, &o.TakeProfit, &o.SizePct, &o.OpenedAt, &o.Executed); err != nil {
			return nil, fmt.Errorf("scan open signal: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open signals: %w", err)
	}
	return out, nil
}

const statsColumns = `symbol, total_trades, winning_trades, losing_trades, win_rate, avg_profit_pct,
    total_profit_pct, max_profit_pct, max_loss_pct, COALESCE(avg_hold_days, 0)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStats(r rowScanner) (types.SymbolStats, error) {
	var st types.SymbolStats
	err := r.Scan(&st.Symbol, &st.TotalTrades, &st.WinningTrades, &st.LosingTrades, &st.WinRate,
		&st.AvgProfitPct, &st.TotalProfitPct, &st.MaxProfitPct, &st.MaxLossPct, &st.AvgHoldDays)
	return st, err
}

// SymbolStats returns the aggregate record of symbol, or nil without
// closed trades.
func (s *Store) SymbolStats(ctx context.Context, symbol string) (*types.SymbolStats, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+statsColumns+` FROM signal_performance WHERE symbol = ?`, symbol)
	st, err := scanStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query symbol stats: %w", err)
	}
	return &st, nil
}

// RecentTrades returns the latest closed trades of symbol, newest first.
func (s *Store) RecentTrades(ctx context.Context, symbol string, limit int) ([]types.ClosedTrade, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, symbol, signal_type, COALESCE(execution_price, price_at_signal), close_price,
       profit_loss_pct, COALESCE(executed_at, timestamp), closed_at, COALESCE(close_reason, '')
FROM signals
WHERE symbol = ? AND is_closed = 1
ORDER BY closed_at DESC, id DESC
LIMIT ?
`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent trades: %w", err)
	}
	defer rows.Close()

	var out []types.ClosedTrade
	for rows.Next() {
		var t types.ClosedTrade
		if err := rows.Scan(&t.SignalID, &t.Symbol, &t.SignalType, &t.EntryPrice, &t.ExitPrice,
			&t.ProfitLossPct, &t.OpenTimestamp, &t.CloseTimestamp, &t.CloseReason); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return out, nil
}

// Rankings lists symbols with at least minTrades closed trades, best total
// profit first.
func (s *Store) Rankings(ctx context.Context, minTrades int) ([]types.SymbolStats, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+statsColumns+`
FROM signal_performance
WHERE total_trades >= ?
ORDER BY total_profit_pct DESC, symbol ASC
`, minTrades)
	if err != nil {
		return nil, fmt.Errorf("query rankings: %w", err)
	}
	defer rows.Close()

	var out []types.SymbolStats
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rankings: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rankings: %w", err)
	}
	return out, nil
}
