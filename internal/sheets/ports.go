package sheets

import (
	"context"
	"time"

	"quotesheet/internal/core"
)

// Ports for outbound adapters.
type (
	// RowStore holds the ordered rows of one sheet.
	// Implementations install a full list atomically and hand out copies.
	RowStore interface {
		Snapshot(ctx context.Context) ([]core.Row, error)
		Replace(ctx context.Context, rows []core.Row) error
	}

	// ChangeNotifier is told about every accepted mutation.
	ChangeNotifier interface {
		SheetChanged(ctx context.Context, c Change) error
	}
)

// Operation names carried by a Change.
const (
	OpEdit   = "edit"
	OpAppend = "append"
)

// Change describes one accepted mutation of a sheet.
type Change struct {
	SheetID   string
	Op        string
	RowID     int
	RowCount  int
	Totals    core.Totals
	Timestamp time.Time
}
