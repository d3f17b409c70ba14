package sheets

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"quotesheet/internal/core"
	"quotesheet/internal/log"
)

// ErrClosed is returned by operations on a sheet whose session has ended.
var ErrClosed = errors.New("sheet closed")

// Sheet is one editable price list. It owns its RowStore and applies
// intents one at a time, in the order they arrive.
type Sheet struct {
	mu       sync.Mutex
	closed   bool
	id       string
	store    RowStore
	columns  core.Columns
	notifier ChangeNotifier
	now      func() time.Time
}

// Option configures a Sheet.
type Option func(*Sheet)

// WithNotifier registers a receiver for accepted mutations. It is called
// after the sheet is unlocked, so a slow receiver delays only the caller.
func WithNotifier(n ChangeNotifier) Option {
	return func(s *Sheet) { s.notifier = n }
}

// WithClock overrides the time source used for change timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sheet) { s.now = now }
}

// New creates a sheet over store. Call Seed before use if the store is empty.
func New(id string, store RowStore, columns core.Columns, opts ...Option) *Sheet {
	s := &Sheet{
		id:      id,
		store:   store,
		columns: columns,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the sheet identifier.
func (s *Sheet) ID() string { return s.id }

// Columns returns the optional columns this sheet shows.
func (s *Sheet) Columns() core.Columns { return s.columns }

// Close waits for the operation in progress, if any, and makes every later
// operation fail with ErrClosed. The store can be released once it returns.
func (s *Sheet) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// lock acquires the sheet for one operation.
func (s *Sheet) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("sheet %s: %w", s.id, ErrClosed)
	}
	return nil
}

// Seed installs the initial rows. Ids must be unique and values valid.
func (s *Sheet) Seed(ctx context.Context, rows []core.Row) error {
	seen := make(map[int]struct{}, len(rows))
	for _, r := range rows {
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("seed row %d: duplicate id", r.ID)
		}
		seen[r.ID] = struct{}{}
		if err := r.Validate(); err != nil {
			return fmt.Errorf("seed row %d: %w", r.ID, err)
		}
	}

	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if err := s.store.Replace(ctx, append([]core.Row(nil), rows...)); err != nil {
		return fmt.Errorf("seed sheet %s: %w", s.id, err)
	}
	return nil
}

// View returns the current rows and their totals.
func (s *Sheet) View(ctx context.Context) (core.View, error) {
	if err := s.lock(); err != nil {
		return core.View{}, err
	}
	defer s.mu.Unlock()
	rows, err := s.store.Snapshot(ctx)
	if err != nil {
		return core.View{}, fmt.Errorf("snapshot sheet %s: %w", s.id, err)
	}
	return core.NewView(rows), nil
}

// ApplyEdit validates candidate and, if acceptable, replaces the stored row
// with the same id. On rejection the candidate is returned untouched along
// with ErrInvalidNumber or ErrNegativeValue, and the store is not written.
func (s *Sheet) ApplyEdit(ctx context.Context, candidate core.Row) (core.Row, error) {
	if err := candidate.Validate(); err != nil {
		s.logRejected(ctx, candidate, err)
		return candidate, err
	}
	row, err := s.ApplyEditFunc(ctx, candidate.ID, func(core.Row) core.Row { return candidate })
	if errors.Is(err, core.ErrRowNotFound) {
		return candidate, err
	}
	return row, err
}

// ApplyEditFunc builds the candidate for row id from the row as currently
// stored and applies it like ApplyEdit. build runs with the sheet locked, so
// no other edit can land between reading the row and replacing it.
func (s *Sheet) ApplyEditFunc(ctx context.Context, id int, build func(current core.Row) core.Row) (core.Row, error) {
	if err := s.lock(); err != nil {
		return core.Row{ID: id}, err
	}

	rows, err := s.store.Snapshot(ctx)
	if err != nil {
		s.mu.Unlock()
		return core.Row{ID: id}, fmt.Errorf("snapshot sheet %s: %w", s.id, err)
	}
	idx := slices.IndexFunc(rows, func(r core.Row) bool { return r.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		return core.Row{ID: id}, fmt.Errorf("edit row %d: %w", id, core.ErrRowNotFound)
	}

	candidate := build(rows[idx])
	candidate.ID = id
	if err := candidate.Validate(); err != nil {
		s.mu.Unlock()
		s.logRejected(ctx, candidate, err)
		return candidate, err
	}

	next := slices.Clone(rows)
	next[idx] = rows[idx].Merge(candidate, s.columns)
	if err := s.store.Replace(ctx, next); err != nil {
		s.mu.Unlock()
		return candidate, fmt.Errorf("replace sheet %s: %w", s.id, err)
	}
	accepted := next[idx]
	change := s.change(OpEdit, accepted.ID, next)
	s.mu.Unlock()

	log.FromContext(ctx).WithComponent(log.ComponentSheet).InfoContext(ctx, "Row edit applied",
		log.FieldSheetID, s.id,
		log.FieldRowID, accepted.ID,
		log.FieldTotal, change.Totals.Total,
		log.FieldTotalCost, change.Totals.TotalCost)
	s.notify(ctx, change)
	return accepted, nil
}

// AppendDefault adds a default row at the end. Its id is the current row
// count plus one; rows are never removed, so that id is unused.
func (s *Sheet) AppendDefault(ctx context.Context) (core.Row, error) {
	if err := s.lock(); err != nil {
		return core.Row{}, err
	}

	rows, err := s.store.Snapshot(ctx)
	if err != nil {
		s.mu.Unlock()
		return core.Row{}, fmt.Errorf("snapshot sheet %s: %w", s.id, err)
	}

	row := core.DefaultRow(len(rows))
	next := append(rows, row)
	if err := s.store.Replace(ctx, next); err != nil {
		s.mu.Unlock()
		return core.Row{}, fmt.Errorf("replace sheet %s: %w", s.id, err)
	}
	change := s.change(OpAppend, row.ID, next)
	s.mu.Unlock()

	log.FromContext(ctx).WithComponent(log.ComponentSheet).InfoContext(ctx, "Row appended",
		log.FieldSheetID, s.id,
		log.FieldRowID, row.ID,
		log.FieldRowCount, change.RowCount,
		log.FieldTotal, change.Totals.Total)
	s.notify(ctx, change)
	return row, nil
}

func (s *Sheet) logRejected(ctx context.Context, candidate core.Row, err error) {
	log.FromContext(ctx).WithComponent(log.ComponentSheet).WarnContext(ctx, "Row edit rejected",
		log.FieldSheetID, s.id,
		log.FieldRowID, candidate.ID,
		log.FieldPrice, core.FormatAmount(candidate.Price),
		log.FieldCost, core.FormatAmount(candidate.Cost),
		log.FieldError, err)
}

// change describes a mutation that produced rows. Callers hold s.mu.
func (s *Sheet) change(op string, rowID int, rows []core.Row) Change {
	return Change{
		SheetID:   s.id,
		Op:        op,
		RowID:     rowID,
		RowCount:  len(rows),
		Totals:    core.Aggregate(rows),
		Timestamp: s.now(),
	}
}

// notify hands c to the notifier. It must be called without s.mu held.
func (s *Sheet) notify(ctx context.Context, c Change) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SheetChanged(ctx, c); err != nil {
		// The mutation is already installed; the feed is best effort.
		log.FromContext(ctx).WarnContext(ctx, "Change notification failed",
			log.FieldSheetID, s.id,
			log.FieldOperation, c.Op,
			log.FieldError, err)
	}
}
