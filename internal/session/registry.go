// Package session maps browser sessions to their private sheets.
//
// Every page load starts a new session seeded from the configured variant.
// Sessions expire after a period of inactivity; their rows go with them.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"quotesheet/internal/cache"
	"quotesheet/internal/log"
	"quotesheet/internal/sheets"
	"quotesheet/internal/variant"
)

// CookieName is the cookie carrying the session id.
const CookieName = "qs_session"

// Stores provides and releases per-sheet row storage.
type Stores interface {
	NewStore(sheetID string) sheets.RowStore
	Release(ctx context.Context, sheetID string) error
}

// Options tune a Registry.
type Options struct {
	MaxSessions int
	TTL         time.Duration
	Notifier    sheets.ChangeNotifier
	Logger      *log.Logger
}

// Registry holds the live sheets, one per session.
type Registry struct {
	sheets   *cache.LRUCache[*sheets.Sheet]
	stores   Stores
	variant  variant.Variant
	notifier sheets.ChangeNotifier
	logger   *log.Logger
	newID    func() string
}

func NewRegistry(stores Stores, v variant.Variant, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	r := &Registry{
		sheets:   cache.NewLRUCache[*sheets.Sheet](opts.MaxSessions, opts.TTL),
		stores:   stores,
		variant:  v,
		notifier: opts.Notifier,
		logger:   logger.WithComponent(log.ComponentSession),
		newID:    uuid.NewString,
	}
	r.sheets.OnEvict(r.release)
	return r
}

// Variant returns the layout every sheet in this registry uses.
func (r *Registry) Variant() variant.Variant { return r.variant }

// Create starts a new session with a freshly seeded sheet.
func (r *Registry) Create(ctx context.Context) (*sheets.Sheet, error) {
	id := r.newID()

	var opts []sheets.Option
	if r.notifier != nil {
		opts = append(opts, sheets.WithNotifier(r.notifier))
	}
	sheet := sheets.New(id, r.stores.NewStore(id), r.variant.Columns, opts...)

	if err := sheet.Seed(ctx, r.variant.Seed()); err != nil {
		_ = r.stores.Release(ctx, id)
		return nil, fmt.Errorf("create session: %w", err)
	}
	r.sheets.Set(id, sheet)

	r.logger.DebugContext(ctx, "Session created",
		log.FieldSheetID, id,
		log.FieldVariant, r.variant.Name,
		"sessions", r.sheets.Size())
	return sheet, nil
}

// Get returns the live sheet for id and refreshes its expiry.
func (r *Registry) Get(id string) (*sheets.Sheet, bool) {
	if id == "" {
		return nil, false
	}
	return r.sheets.Get(id)
}

// End drops a session immediately.
func (r *Registry) End(id string) {
	r.sheets.Delete(id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.sheets.Size()
}

// CleanExpired implements cache.Cleaner.
func (r *Registry) CleanExpired() int {
	return r.sheets.CleanExpired()
}

// release runs when a session leaves the registry. The sheet is closed first
// so no operation still holding it can write rows after they are deleted.
func (r *Registry) release(id string, sheet *sheets.Sheet) {
	sheet.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.stores.Release(ctx, id); err != nil {
		r.logger.Warn("Failed to release session rows", log.FieldSheetID, id, log.FieldError, err)
		return
	}
	r.logger.Debug("Session ended", log.FieldSheetID, id)
}
