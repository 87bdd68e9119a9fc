// internal/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quantified/hindcast/internal/core"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS backtests (
	id TEXT PRIMARY KEY,
	strategy TEXT NOT NULL,
	symbol TEXT NOT NULL,
	interval TEXT NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	initial_balance REAL NOT NULL,
	final_balance REAL NOT NULL,
	total_return REAL NOT NULL,
	trades_count INTEGER NOT NULL,
	win_rate REAL NOT NULL,
	max_drawdown REAL NOT NULL,
	sharpe_ratio REAL NOT NULL,
	profit_factor REAL NOT NULL,
	params_json TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_trades (
	id TEXT PRIMARY KEY,
	backtest_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	entry_time TEXT NOT NULL,
	exit_time TEXT NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	quantity REAL NOT NULL,
	commission REAL NOT NULL,
	pnl REAL NOT NULL,
	pnl_pct REAL NOT NULL,
	exit_reason TEXT NOT NULL,
	holding_bars INTEGER NOT NULL,
	FOREIGN KEY (backtest_id) REFERENCES backtests (id)
);

CREATE TABLE IF NOT EXISTS optimization_results (
	id TEXT PRIMARY KEY,
	strategy TEXT NOT NULL,
	symbol TEXT NOT NULL,
	interval TEXT NOT NULL,
	params_json TEXT NOT NULL,
	score REAL NOT NULL,
	total_return REAL NOT NULL,
	sharpe_ratio REAL NOT NULL,
	max_drawdown REAL NOT NULL,
	trades_count INTEGER NOT NULL,
	trial_rank INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_backtests_strategy ON backtests (strategy);
CREATE INDEX IF NOT EXISTS idx_backtest_trades_run ON backtest_trades (backtest_id);
CREATE INDEX IF NOT EXISTS idx_optimization_strategy ON optimization_results (strategy);
`

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use store. Use ":memory:" for an ephemeral
// database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, fmt.Errorf("opening %s: %w", dbPath, err))
	}
	// The driver is safe for concurrent use but SQLite serializes writers;
	// a single connection avoids SQLITE_BUSY on concurrent saves.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, core.WrapError(core.ErrStoreFailed, fmt.Errorf("applying schema: %w", err))
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveBacktest inserts a run, assigning ID and CreatedAt when unset.
func (s *SQLiteStore) SaveBacktest(ctx context.Context, rec *BacktestRecord) error {
	stampRecord(&rec.ID, &rec.CreatedAt)

	params, err := json.Marshal(rec.Params)
	if err != nil {
		return core.WrapError(core.ErrStoreFailed, fmt.Errorf("encoding params: %w", err))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtests
		(id, strategy, symbol, interval, start_time, end_time,
		 initial_balance, final_balance, total_return, trades_count,
		 win_rate, max_drawdown, sharpe_ratio, profit_factor, params_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Strategy, rec.Symbol, rec.Interval,
		rec.StartTime.UTC().Format(time.RFC3339Nano),
		rec.EndTime.UTC().Format(time.RFC3339Nano),
		rec.InitialBalance, rec.FinalBalance, rec.TotalReturn, rec.TradesCount,
		rec.WinRate, rec.MaxDrawdown, rec.SharpeRatio, rec.ProfitFactor,
		string(params), rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return core.WrapError(core.ErrStoreFailed, fmt.Errorf("inserting backtest: %w", err))
	}
	return nil
}

// GetBacktest retrieves one run by ID.
func (s *SQLiteStore) GetBacktest(ctx context.Context, id string) (*BacktestRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, symbol, interval, start_time, end_time,
		       initial_balance, final_balance, total_return, trades_count,
		       win_rate, max_drawdown, sharpe_ratio, profit_factor, params_json, created_at
		FROM backtests WHERE id = ?`, id)

	rec, err := scanBacktest(row)
	if err == sql.ErrNoRows {
		return nil, core.WrapError(core.ErrNotFound, fmt.Errorf("backtest %s", id))
	}
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return rec, nil
}

// ListBacktests retrieves runs matching the filter, newest first.
func (s *SQLiteStore) ListBacktests(ctx context.Context, filter ListFilter) ([]BacktestRecord, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT id, strategy, symbol, interval, start_time, end_time,
		       initial_balance, final_balance, total_return, trades_count,
		       win_rate, max_drawdown, sharpe_ratio, profit_factor, params_json, created_at
		FROM backtests`)
	where, args := filterClauses(filter)
	query.WriteString(where)
	query.WriteString(" ORDER BY created_at DESC, id")
	query.WriteString(limitClause(filter))

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	defer rows.Close()

	var out []BacktestRecord
	for rows.Next() {
		rec, err := scanBacktest(rows)
		if err != nil {
			return nil, core.WrapError(core.ErrStoreFailed, err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return out, nil
}

// SaveTrades inserts a run's trade ledger in one transaction.
func (s *SQLiteStore) SaveTrades(ctx context.Context, backtestID string, trades []TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.WrapError(core.ErrStoreFailed, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades
		(id, backtest_id, symbol, side, entry_time, exit_time,
		 entry_price, exit_price, quantity, commission, pnl, pnl_pct,
		 exit_reason, holding_bars)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return core.WrapError(core.ErrStoreFailed, err)
	}
	defer stmt.Close()

	for i := range trades {
		trade := &trades[i]
		if trade.ID == "" {
			trade.ID = uuid.NewString()
		}
		trade.BacktestID = backtestID

		if _, err := stmt.ExecContext(ctx,
			trade.ID, trade.BacktestID, trade.Symbol, trade.Side,
			trade.EntryTime.UTC().Format(time.RFC3339Nano),
			trade.ExitTime.UTC().Format(time.RFC3339Nano),
			trade.EntryPrice, trade.ExitPrice, trade.Quantity, trade.Commission,
			trade.PnL, trade.PnLPct, trade.ExitReason, trade.HoldingBars,
		); err != nil {
			return core.WrapError(core.ErrStoreFailed, fmt.Errorf("inserting trade: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return core.WrapError(core.ErrStoreFailed, err)
	}
	return nil
}

// ListTrades retrieves a run's trades in entry-time order.
func (s *SQLiteStore) ListTrades(ctx context.Context, backtestID string) ([]TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, backtest_id, symbol, side, entry_time, exit_time,
		       entry_price, exit_price, quantity, commission, pnl, pnl_pct,
		       exit_reason, holding_bars
		FROM backtest_trades WHERE backtest_id = ?
		ORDER BY entry_time, id`, backtestID)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var trade TradeRecord
		var entryTime, exitTime string
		if err := rows.Scan(
			&trade.ID, &trade.BacktestID, &trade.Symbol, &trade.Side,
			&entryTime, &exitTime,
			&trade.EntryPrice, &trade.ExitPrice, &trade.Quantity, &trade.Commission,
			&trade.PnL, &trade.PnLPct, &trade.ExitReason, &trade.HoldingBars,
		); err != nil {
			return nil, core.WrapError(core.ErrStoreFailed, err)
		}
		if trade.EntryTime, err = time.Parse(time.RFC3339Nano, entryTime); err != nil {
			return nil, core.WrapError(core.ErrStoreFailed, fmt.Errorf("parsing entry_time: %w", err))
		}
		if trade.ExitTime, err = time.Parse(time.RFC3339Nano, exitTime); err != nil {
			return nil, core.WrapError(core.ErrStoreFailed, fmt.Errorf("parsing exit_time: %w", err))
		}
		out = append(out, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return out, nil
}

// SaveOptimization inserts one optimizer trial.
func (s *SQLiteStore) SaveOptimization(ctx context.Context, rec *OptimizationRecord) error {
	stampRecord(&rec.ID, &rec.CreatedAt)

	params, err := json.Marshal(rec.Params)
	if err != nil {
		return core.WrapError(core.ErrStoreFailed, fmt.Errorf("encoding params: %w", err))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO optimization_results
		(id, strategy, symbol, interval, params_json, score,
		 total_return, sharpe_ratio, max_drawdown, trades_count, trial_rank, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Strategy, rec.Symbol, rec.Interval, string(params), rec.Score,
		rec.TotalReturn, rec.SharpeRatio, rec.MaxDrawdown, rec.TradesCount, rec.Rank,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return core.WrapError(core.ErrStoreFailed, fmt.Errorf("inserting optimization result: %w", err))
	}
	return nil
}

// ListOptimizations retrieves trials matching the filter, best score first.
func (s *SQLiteStore) ListOptimizations(ctx context.Context, filter ListFilter) ([]OptimizationRecord, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT id, strategy, symbol, interval, params_json, score,
		       total_return, sharpe_ratio, max_drawdown, trades_count, trial_rank, created_at
		FROM optimization_results`)
	where, args := filterClauses(filter)
	query.WriteString(where)
	query.WriteString(" ORDER BY score DESC, id")
	query.WriteString(limitClause(filter))

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	defer rows.Close()

	var out []OptimizationRecord
	for rows.Next() {
		var rec OptimizationRecord
		var paramsJSON, createdAt string
		if err := rows.Scan(
			&rec.ID, &rec.Strategy, &rec.Symbol, &rec.Interval, &paramsJSON, &rec.Score,
			&rec.TotalReturn, &rec.SharpeRatio, &rec.MaxDrawdown, &rec.TradesCount, &rec.Rank,
			&createdAt,
		); err != nil {
			return nil, core.WrapError(core.ErrStoreFailed, err)
		}
		if err := decodeRecordTail(paramsJSON, createdAt, &rec.Params, &rec.CreatedAt); err != nil {
			return nil, core.WrapError(core.ErrStoreFailed, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBacktest(row rowScanner) (*BacktestRecord, error) {
	var rec BacktestRecord
	var startTime, endTime, paramsJSON, createdAt string
	if err := row.Scan(
		&rec.ID, &rec.Strategy, &rec.Symbol, &rec.Interval, &startTime, &endTime,
		&rec.InitialBalance, &rec.FinalBalance, &rec.TotalReturn, &rec.TradesCount,
		&rec.WinRate, &rec.MaxDrawdown, &rec.SharpeRatio, &rec.ProfitFactor,
		&paramsJSON, &createdAt,
	); err != nil {
		return nil, err
	}

	var err error
	if rec.StartTime, err = time.Parse(time.RFC3339Nano, startTime); err != nil {
		return nil, fmt.Errorf("parsing start_time: %w", err)
	}
	if rec.EndTime, err = time.Parse(time.RFC3339Nano, endTime); err != nil {
		return nil, fmt.Errorf("parsing end_time: %w", err)
	}
	if err := decodeRecordTail(paramsJSON, createdAt, &rec.Params, &rec.CreatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func decodeRecordTail(paramsJSON, createdAt string, params *core.Params, created *time.Time) error {
	if err := json.Unmarshal([]byte(paramsJSON), params); err != nil {
		return fmt.Errorf("decoding params: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return fmt.Errorf("parsing created_at: %w", err)
	}
	*created = ts
	return nil
}

func stampRecord(id *string, createdAt *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
}

func filterClauses(filter ListFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.Strategy != "" {
		clauses = append(clauses, "strategy = ?")
		args = append(args, filter.Strategy)
	}
	if filter.Symbol != "" {
		clauses = append(clauses, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func limitClause(filter ListFilter) string {
	if filter.Limit <= 0 {
		return ""
	}
	clause := fmt.Sprintf(" LIMIT %d", filter.Limit)
	if filter.Offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}
	return clause
}
