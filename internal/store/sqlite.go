// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"chanlun/internal/analysis"
	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/errors"
	"chanlun/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Raw bars per symbol and interval
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, interval, timestamp)
	);

	-- Sparse stage tables, one row per entry, NULL for absent prices
	CREATE TABLE IF NOT EXISTS layers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		layer TEXT NOT NULL,
		seq INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		high REAL,
		low REAL,
		UNIQUE(symbol, interval, layer, seq)
	);

	-- Pipeline runs
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		source TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		bars INTEGER NOT NULL,
		strokes INTEGER NOT NULL,
		segments INTEGER NOT NULL,
		pivots INTEGER NOT NULL,
		error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_bars_symbol_interval ON bars(symbol, interval, timestamp);
	CREATE INDEX IF NOT EXISTS idx_layers_lookup ON layers(symbol, interval, layer, seq);
	CREATE INDEX IF NOT EXISTS idx_runs_symbol_interval ON runs(symbol, interval, started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func dbError(err error, op string) error {
	return fmt.Errorf("%w: %s: %v", errors.ErrDatabaseError, op, err)
}

// ============================================================================
// Bars Methods
// ============================================================================

// SaveBars upserts bars for a symbol and interval.
func (s *SQLiteStore) SaveBars(ctx context.Context, symbol string, interval models.Interval, bars []models.Candle) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError(err, "begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, interval, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbError(err, "prepare statement")
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, symbol, string(interval), b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return dbError(err, "insert bar")
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError(err, "commit transaction")
	}

	return nil
}

// GetBars retrieves all stored bars in time order.
func (s *SQLiteStore) GetBars(ctx context.Context, symbol string, interval models.Interval) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND interval = ?
		ORDER BY timestamp ASC
	`, symbol, string(interval))
	if err != nil {
		return nil, dbError(err, "query bars")
	}
	defer rows.Close()

	var bars []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, dbError(err, "scan bar")
		}
		c.Timestamp = c.Timestamp.UTC()
		bars = append(bars, c)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError(err, "iterate bars")
	}

	return bars, nil
}

// GetBarsFreshness returns the timestamp of the most recent bar.
func (s *SQLiteStore) GetBarsFreshness(ctx context.Context, symbol string, interval models.Interval) (time.Time, error) {
	var latest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(timestamp) FROM bars WHERE symbol = ? AND interval = ?
	`, symbol, string(interval)).Scan(&latest)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, dbError(err, "bars freshness")
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return parseTimestamp(latest.String)
}

// ============================================================================
// Layer Methods
// ============================================================================

// SaveLayer replaces one stage table.
func (s *SQLiteStore) SaveLayer(ctx context.Context, symbol string, interval models.Interval, layer analysis.Layer, table chanlun.Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError(err, "begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM layers WHERE symbol = ? AND interval = ? AND layer = ?
	`, symbol, string(interval), string(layer)); err != nil {
		return dbError(err, "clear layer")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO layers (symbol, interval, layer, seq, timestamp, high, low)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbError(err, "prepare statement")
	}
	defer stmt.Close()

	for i, row := range table {
		_, err := stmt.ExecContext(ctx, symbol, string(interval), string(layer), i,
			row.Timestamp.UTC(), nullFloat(row.High), nullFloat(row.Low))
		if err != nil {
			return dbError(err, "insert layer row")
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError(err, "commit transaction")
	}

	return nil
}

// GetLayer retrieves one stage table. A table that was never saved comes
// back empty.
func (s *SQLiteStore) GetLayer(ctx context.Context, symbol string, interval models.Interval, layer analysis.Layer) (chanlun.Table, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, high, low
		FROM layers
		WHERE symbol = ? AND interval = ? AND layer = ?
		ORDER BY seq ASC
	`, symbol, string(interval), string(layer))
	if err != nil {
		return nil, dbError(err, "query layer")
	}
	defer rows.Close()

	var table chanlun.Table
	for rows.Next() {
		var (
			row       chanlun.Row
			high, low sql.NullFloat64
		)
		if err := rows.Scan(&row.Timestamp, &high, &low); err != nil {
			return nil, dbError(err, "scan layer row")
		}
		row.Timestamp = row.Timestamp.UTC()
		row.High = chanlun.NullPrice{Value: high.Float64, Valid: high.Valid}
		row.Low = chanlun.NullPrice{Value: low.Float64, Valid: low.Valid}
		table = append(table, row)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError(err, "iterate layer")
	}

	return table, nil
}

// DeleteLayers removes every stage table for a symbol and interval.
func (s *SQLiteStore) DeleteLayers(ctx context.Context, symbol string, interval models.Interval) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM layers WHERE symbol = ? AND interval = ?
	`, symbol, string(interval))
	if err != nil {
		return dbError(err, "delete layers")
	}
	return nil
}

func nullFloat(p chanlun.NullPrice) sql.NullFloat64 {
	return sql.NullFloat64{Float64: p.Value, Valid: p.Valid}
}

// ============================================================================
// Run Methods
// ============================================================================

// SaveRun records a pipeline run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *models.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, symbol, interval, source, started_at, duration_ms, bars, strokes, segments, pivots, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Symbol, string(run.Interval), run.Source, run.StartedAt.UTC(), run.Duration.Milliseconds(),
		run.Bars, run.Strokes, run.Segments, run.Pivots, nullString(run.Error))
	if err != nil {
		return dbError(err, "save run")
	}
	return nil
}

// LastRun returns the most recent run for a symbol and interval.
func (s *SQLiteStore) LastRun(ctx context.Context, symbol string, interval models.Interval) (*models.Run, error) {
	runs, err := s.ListRuns(ctx, RunFilter{Symbol: symbol, Interval: interval, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no run for %s %s", errors.ErrDataNotFound, symbol, interval)
	}
	return &runs[0], nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]models.Run, error) {
	query := `
		SELECT id, symbol, interval, source, started_at, duration_ms, bars, strokes, segments, pivots, error
		FROM runs
	`
	var conditions []string
	var args []interface{}

	if filter.Symbol != "" {
		conditions = append(conditions, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.Interval != "" {
		conditions = append(conditions, "interval = ?")
		args = append(args, string(filter.Interval))
	}
	if !filter.StartDate.IsZero() {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		conditions = append(conditions, "started_at <= ?")
		args = append(args, filter.EndDate.UTC())
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(err, "query runs")
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var (
			r          models.Run
			interval   string
			durationMS int64
			runErr     sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &interval, &r.Source, &r.StartedAt, &durationMS,
			&r.Bars, &r.Strokes, &r.Segments, &r.Pivots, &runErr); err != nil {
			return nil, dbError(err, "scan run")
		}
		r.Interval = models.Interval(interval)
		r.StartedAt = r.StartedAt.UTC()
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Error = runErr.String
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError(err, "iterate runs")
	}

	return runs, nil
}

// ============================================================================
// Symbol Methods
// ============================================================================

// Symbols returns every symbol with stored bars.
func (s *SQLiteStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, dbError(err, "query symbols")
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, dbError(err, "scan symbol")
		}
		symbols = append(symbols, symbol)
	}

	return symbols, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// parseTimestamp parses the text form sqlite3 returns for aggregated
// DATETIME values.
func parseTimestamp(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSuffix(s, "Z"), time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable timestamp %q", errors.ErrDatabaseError, s)
}
