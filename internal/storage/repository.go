package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"quotesheet/internal/core"
	"quotesheet/internal/log"
	"quotesheet/internal/sheets"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores the rows of every live sheet in one table.
// Rows only live as long as their sheet: the table is emptied on open and a
// sheet's rows are dropped when its session ends.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(ctx context.Context, dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time keeps Replace transactions from hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	version, _, err := SchemaVersion(dbPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	repo := &SQLiteRepository{db: db}
	purged, err := repo.PurgeAll(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.FromContext(ctx).WithComponent(log.ComponentStorage).InfoContext(ctx, "SQLite row store ready",
		"db_path", dbPath,
		"schema_version", version,
		"purged_rows", purged)
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Sheet returns the RowStore for one sheet.
func (r *SQLiteRepository) Sheet(sheetID string) *SheetRows {
	return &SheetRows{db: r.db, sheetID: sheetID}
}

// DeleteSheet drops every row of a sheet.
func (r *SQLiteRepository) DeleteSheet(ctx context.Context, sheetID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sheet_rows WHERE sheet_id = ?`, sheetID); err != nil {
		return fmt.Errorf("delete sheet %s: %w", sheetID, err)
	}
	return nil
}

// PurgeAll removes the rows of all sheets and returns how many were removed.
func (r *SQLiteRepository) PurgeAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sheet_rows`)
	if err != nil {
		return 0, fmt.Errorf("purge sheet rows: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountSheets returns the number of sheets that currently hold rows.
func (r *SQLiteRepository) CountSheets(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT sheet_id) FROM sheet_rows`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sheets: %w", err)
	}
	return n, nil
}

var _ sheets.RowStore = (*SheetRows)(nil)

// SheetRows is the sqlite-backed RowStore of a single sheet.
type SheetRows struct {
	db      *sql.DB
	sheetID string
}

// Snapshot implements sheets.RowStore
func (s *SheetRows) Snapshot(ctx context.Context) ([]core.Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, model, price, cost FROM sheet_rows WHERE sheet_id = ? ORDER BY position`,
		s.sheetID)
	if err != nil {
		return nil, fmt.Errorf("query sheet rows: %w", err)
	}
	defer rows.Close()

	var out []core.Row
	for rows.Next() {
		var r core.Row
		if err := rows.Scan(&r.ID, &r.Name, &r.Model, &r.Price, &r.Cost); err != nil {
			return nil, fmt.Errorf("scan sheet row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sheet rows: %w", err)
	}
	return out, nil
}

// Replace implements sheets.RowStore. The old rows are deleted and the new
// ones inserted in a single transaction.
func (s *SheetRows) Replace(ctx context.Context, rows []core.Row) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM sheet_rows WHERE sheet_id = ?`, s.sheetID); err != nil {
		return fmt.Errorf("clear sheet rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sheet_rows (sheet_id, position, id, name, model, price, cost) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		if _, err = stmt.ExecContext(ctx, s.sheetID, i, r.ID, r.Name, r.Model, r.Price, r.Cost); err != nil {
			return fmt.Errorf("insert row %d: %w", r.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}
