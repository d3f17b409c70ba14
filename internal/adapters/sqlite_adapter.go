package adapters

import (
	"context"

	"quotesheet/internal/sheets"
	"quotesheet/internal/storage"
)

// SQLiteAdapter gives each sheet a slice of the shared sheet_rows table.
type SQLiteAdapter struct {
	repo *storage.SQLiteRepository
}

func NewSQLiteAdapter(repo *storage.SQLiteRepository) *SQLiteAdapter {
	return &SQLiteAdapter{repo: repo}
}

// NewStore returns the rows of sheetID. Nothing is written until Seed.
func (a *SQLiteAdapter) NewStore(sheetID string) sheets.RowStore {
	return a.repo.Sheet(sheetID)
}

// Release deletes the sheet's rows.
func (a *SQLiteAdapter) Release(ctx context.Context, sheetID string) error {
	return a.repo.DeleteSheet(ctx, sheetID)
}

func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	return a.repo.Ping(ctx)
}
