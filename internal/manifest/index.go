// Package manifest keeps a sqlite index of persisted partitions so coverage
// of per-day data can be answered without walking directories.
package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Entry describes one persisted partition.
type Entry struct {
	AssetClass string
	Resolution string
	Symbol     string
	Date       string // YYYYMMDD for per-day partitions, empty for range files
	MinTime    int64  // unix ms of the first bar
	MaxTime    int64  // unix ms of the last bar
	Rows       int64
	Path       string
}

// Coverage summarizes every partition recorded for one symbol.
type Coverage struct {
	FirstDate  string
	LastDate   string
	MinTime    int64
	MaxTime    int64
	Partitions int64
	Rows       int64
	LastSyncAt int64
}

// Index is a sqlite-backed partition index.
type Index struct {
	db   *sql.DB
	path string
}

// Open opens or creates the index at path.
func Open(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("index path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
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
	return &Index{db: db, path: path}, nil
}

func (i *Index) Path() string { return i.path }

func (i *Index) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	return i.db.Close()
}

// RecordPartition inserts or replaces the entry for a partition.
func (i *Index) RecordPartition(ctx context.Context, e Entry) error {
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO partitions (asset_class, resolution, symbol, date, min_time, max_time, rows, path, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_class, resolution, symbol, date) DO UPDATE SET
		    min_time=excluded.min_time,
		    max_time=excluded.max_time,
		    rows=excluded.rows,
		    path=excluded.path,
		    synced_at=excluded.synced_at`,
		e.AssetClass, e.Resolution, strings.ToLower(e.Symbol), e.Date,
		e.MinTime, e.MaxTime, e.Rows, e.Path, time.Now().UnixMilli())
	return err
}

// RecordExisting adds a partition found on disk that was written before the
// index saw it. An entry already recorded is left unchanged.
func (i *Index) RecordExisting(ctx context.Context, e Entry) error {
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO partitions (asset_class, resolution, symbol, date, min_time, max_time, rows, path, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_class, resolution, symbol, date) DO NOTHING`,
		e.AssetClass, e.Resolution, strings.ToLower(e.Symbol), e.Date,
		e.MinTime, e.MaxTime, e.Rows, e.Path, time.Now().UnixMilli())
	return err
}

// Coverage aggregates entries for one symbol. ok is false when nothing has
// been recorded.
func (i *Index) Coverage(ctx context.Context, assetClass, resolution, symbol string) (Coverage, bool, error) {
	row := i.db.QueryRowContext(ctx, `
		SELECT COALESCE(MIN(date), ''), COALESCE(MAX(date), ''),
		       COALESCE(MIN(min_time), 0), COALESCE(MAX(max_time), 0),
		       COUNT(1), COALESCE(SUM(rows), 0), COALESCE(MAX(synced_at), 0)
		FROM partitions
		WHERE asset_class = ? AND resolution = ? AND symbol = ?`,
		assetClass, resolution, strings.ToLower(symbol))
	var c Coverage
	if err := row.Scan(&c.FirstDate, &c.LastDate, &c.MinTime, &c.MaxTime, &c.Partitions, &c.Rows, &c.LastSyncAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Coverage{}, false, nil
		}
		return Coverage{}, false, err
	}
	return c, c.Partitions > 0, nil
}

// Forget drops entries whose partition file no longer exists on disk.
func (i *Index) Forget(ctx context.Context, assetClass, resolution, symbol string) (int64, error) {
	rows, err := i.db.QueryContext(ctx, `SELECT date, path FROM partitions WHERE asset_class = ? AND resolution = ? AND symbol = ?`,
		assetClass, resolution, strings.ToLower(symbol))
	if err != nil {
		return 0, err
	}
	var stale []string
	for rows.Next() {
		var date, path string
		if err := rows.Scan(&date, &path); err != nil {
			rows.Close()
			return 0, err
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			stale = append(stale, date)
		}
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	var removed int64
	for _, date := range stale {
		res, err := i.db.ExecContext(ctx, `DELETE FROM partitions WHERE asset_class = ? AND resolution = ? AND symbol = ? AND date = ?`,
			assetClass, resolution, strings.ToLower(symbol), date)
		if err != nil {
			return removed, err
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS partitions (
			asset_class TEXT NOT NULL,
			resolution  TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			date        TEXT NOT NULL DEFAULT '',
			min_time    INTEGER NOT NULL,
			max_time    INTEGER NOT NULL,
			rows        INTEGER NOT NULL,
			path        TEXT NOT NULL,
			synced_at   INTEGER NOT NULL,
			PRIMARY KEY (asset_class, resolution, symbol, date)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_partitions_symbol ON partitions(asset_class, symbol);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
