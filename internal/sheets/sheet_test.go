package sheets_test

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"quotesheet/internal/core"
	"quotesheet/internal/sheets"
	"quotesheet/internal/sheets/memory"
)

var allColumns = core.Columns{Model: true, Cost: true}

func basicRows() []core.Row {
	prices := []float64{50, 30, 20, 40, 25, 15, 15, 15}
	rows := make([]core.Row, len(prices))
	for i, p := range prices {
		rows[i] = core.Row{ID: i + 1, Name: "part " + strconv.Itoa(i+1), Price: p}
	}
	return rows
}

// countingStore wraps a memory store and counts Replace calls.
type countingStore struct {
	*memory.Store
	replaces int
	failWith error
}

func (c *countingStore) Replace(ctx context.Context, rows []core.Row) error {
	if c.failWith != nil {
		return c.failWith
	}
	c.replaces++
	return c.Store.Replace(ctx, rows)
}

type recordingNotifier struct {
	changes []sheets.Change
	err     error
}

func (r *recordingNotifier) SheetChanged(_ context.Context, c sheets.Change) error {
	r.changes = append(r.changes, c)
	return r.err
}

func newSeeded(t *testing.T, opts ...sheets.Option) (*sheets.Sheet, *countingStore) {
	t.Helper()
	store := &countingStore{Store: memory.New()}
	s := sheets.New("test", store, allColumns, opts...)
	if err := s.Seed(context.Background(), basicRows()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store.replaces = 0
	return s, store
}

func mustView(t *testing.T, s *sheets.Sheet) core.View {
	t.Helper()
	v, err := s.View(context.Background())
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	return v
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := newSeeded(t)

	if got := mustView(t, s).Totals.Total; got != 210 {
		t.Fatalf("seed total = %v, want 210", got)
	}

	cand := mustView(t, s).Rows[0]
	cand.Price = 60
	if _, err := s.ApplyEdit(ctx, cand); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got := mustView(t, s).Totals.Total; got != 220 {
		t.Fatalf("total after edit = %v, want 220", got)
	}

	row, err := s.AppendDefault(ctx)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	v := mustView(t, s)
	if len(v.Rows) != 9 || row.ID != 9 || v.Rows[8].ID != 9 {
		t.Fatalf("after append: rows=%d id=%d", len(v.Rows), row.ID)
	}
	if v.Totals.Total != 220 {
		t.Fatalf("total after append = %v, want 220", v.Totals.Total)
	}
}

func TestApplyEditRejectsAndEchoesCandidate(t *testing.T) {
	cases := []struct {
		name  string
		price float64
		cost  float64
		want  error
	}{
		{"negative price", -1, 0, core.ErrNegativeValue},
		{"negative cost", 10, -5, core.ErrNegativeValue},
		{"nan price", math.NaN(), 0, core.ErrInvalidNumber},
		{"unparseable price", core.ParseAmount("abc"), 0, core.ErrInvalidNumber},
		{"infinite cost", 10, math.Inf(1), core.ErrInvalidNumber},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s, store := newSeeded(t)
			before := mustView(t, s)

			cand := core.Row{ID: 1, Name: "CPU", Price: tc.price, Cost: tc.cost}
			got, err := s.ApplyEdit(ctx, cand)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if got.ID != cand.ID || got.Name != cand.Name {
				t.Fatalf("candidate not echoed: %+v", got)
			}
			if !math.IsNaN(tc.price) && got.Price != tc.price {
				t.Fatalf("echoed price = %v, want %v", got.Price, tc.price)
			}
			if store.replaces != 0 {
				t.Fatalf("store replaced %d times on rejection", store.replaces)
			}
			after := mustView(t, s)
			if after.Rows[0] != before.Rows[0] || after.Totals != before.Totals {
				t.Fatalf("store changed: before=%+v after=%+v", before.Rows[0], after.Rows[0])
			}
		})
	}
}

func TestApplyEditSingleReplaceAndIdempotent(t *testing.T) {
	ctx := context.Background()
	s, store := newSeeded(t)

	cand := core.Row{ID: 4, Name: "内存 32G", Model: "DDR5", Price: 45, Cost: 33}
	got, err := s.ApplyEdit(ctx, cand)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got != cand {
		t.Fatalf("accepted row = %+v, want %+v", got, cand)
	}
	if store.replaces != 1 {
		t.Fatalf("replaces = %d, want 1", store.replaces)
	}
	once := mustView(t, s)

	if _, err := s.ApplyEdit(ctx, cand); err != nil {
		t.Fatalf("second edit: %v", err)
	}
	twice := mustView(t, s)
	for i := range once.Rows {
		if once.Rows[i] != twice.Rows[i] {
			t.Fatalf("row %d differs after repeat: %+v vs %+v", i, once.Rows[i], twice.Rows[i])
		}
	}
	if once.Totals != twice.Totals {
		t.Fatalf("totals differ after repeat")
	}
}

func TestApplyEditHiddenColumnsUntouched(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	s := sheets.New("price-only", store, core.Columns{})
	_ = s.Seed(ctx, []core.Row{{ID: 1, Name: "CPU", Model: "keep", Price: 10, Cost: 7}})

	if _, err := s.ApplyEdit(ctx, core.Row{ID: 1, Name: "CPU", Model: "x", Price: 12, Cost: 99}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	got := mustView(t, s).Rows[0]
	if got.Model != "keep" || got.Cost != 7 || got.Price != 12 {
		t.Fatalf("row = %+v", got)
	}
}

func TestApplyEditUnknownRow(t *testing.T) {
	s, store := newSeeded(t)
	_, err := s.ApplyEdit(context.Background(), core.Row{ID: 42, Price: 1})
	if !errors.Is(err, core.ErrRowNotFound) {
		t.Fatalf("err = %v, want ErrRowNotFound", err)
	}
	if store.replaces != 0 {
		t.Fatalf("store replaced on unknown row")
	}
}

func TestAppendDefaultOnEveryCount(t *testing.T) {
	ctx := context.Background()
	s := sheets.New("empty", memory.New(), allColumns)
	for n := 0; n < 5; n++ {
		row, err := s.AppendDefault(ctx)
		if err != nil {
			t.Fatalf("append %d: %v", n, err)
		}
		if row.ID != n+1 || row.Price != 0 || row.Cost != 0 || row.Model != "" {
			t.Fatalf("append %d: %+v", n, row)
		}
		if !strings.Contains(row.Name, strconv.Itoa(n+1)) {
			t.Fatalf("append %d: name %q lacks numeral", n, row.Name)
		}
		if got := len(mustView(t, s).Rows); got != n+1 {
			t.Fatalf("rows = %d, want %d", got, n+1)
		}
	}
}

func TestInvariantsHoldAcrossMixedIntents(t *testing.T) {
	ctx := context.Background()
	s, _ := newSeeded(t)
	inputs := []string{"10", "-3", "abc", "7,5", "", "0", "1e9", "120"}
	for i, in := range inputs {
		id := i%8 + 1
		_, _ = s.ApplyEdit(ctx, core.Row{ID: id, Name: "p", Price: core.ParseAmount(in), Cost: core.ParseAmount(in)})
		if i%3 == 0 {
			_, _ = s.AppendDefault(ctx)
		}
		v := mustView(t, s)
		var sum float64
		ids := map[int]bool{}
		for _, r := range v.Rows {
			if r.Price < 0 || r.Cost < 0 || math.IsNaN(r.Price) || math.IsNaN(r.Cost) {
				t.Fatalf("invalid row after %q: %+v", in, r)
			}
			if ids[r.ID] {
				t.Fatalf("duplicate id %d", r.ID)
			}
			ids[r.ID] = true
			sum += r.Price
		}
		if sum != v.Totals.Total {
			t.Fatalf("total %v != sum %v", v.Totals.Total, sum)
		}
	}
}

func TestNotifierReceivesAcceptedChangesOnly(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s, _ := newSeeded(t, sheets.WithNotifier(n), sheets.WithClock(func() time.Time { return at }))

	_, _ = s.ApplyEdit(ctx, core.Row{ID: 1, Price: -1})
	_, _ = s.ApplyEdit(ctx, core.Row{ID: 1, Name: "CPU", Price: 60})
	_, _ = s.AppendDefault(ctx)

	if len(n.changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(n.changes))
	}
	edit, app := n.changes[0], n.changes[1]
	if edit.Op != sheets.OpEdit || edit.RowID != 1 || edit.Totals.Total != 220 || !edit.Timestamp.Equal(at) {
		t.Fatalf("edit change = %+v", edit)
	}
	if app.Op != sheets.OpAppend || app.RowID != 9 || app.RowCount != 9 || app.SheetID != "test" {
		t.Fatalf("append change = %+v", app)
	}
}

func TestNotifierFailureDoesNotFailIntent(t *testing.T) {
	n := &recordingNotifier{err: errors.New("broker down")}
	s, _ := newSeeded(t, sheets.WithNotifier(n))
	if _, err := s.AppendDefault(context.Background()); err != nil {
		t.Fatalf("append failed because of notifier: %v", err)
	}
	if got := len(mustView(t, s).Rows); got != 9 {
		t.Fatalf("rows = %d, want 9", got)
	}
}

func TestStoreFailureSurfaces(t *testing.T) {
	s, store := newSeeded(t)
	store.failWith = errors.New("disk full")
	if _, err := s.AppendDefault(context.Background()); err == nil {
		t.Fatal("expected append error")
	}
	cand := core.Row{ID: 2, Price: 5}
	got, err := s.ApplyEdit(context.Background(), cand)
	if err == nil || got != cand {
		t.Fatalf("edit: got=%+v err=%v", got, err)
	}
}

func TestSeedRejectsBadRows(t *testing.T) {
	s := sheets.New("bad", memory.New(), allColumns)
	if err := s.Seed(context.Background(), []core.Row{{ID: 1}, {ID: 1}}); err == nil {
		t.Fatal("expected duplicate id error")
	}
	if err := s.Seed(context.Background(), []core.Row{{ID: 1, Price: -1}}); !errors.Is(err, core.ErrNegativeValue) {
		t.Fatalf("err = %v, want ErrNegativeValue", err)
	}
}

// blockingNotifier holds every publish until release is closed.
type blockingNotifier struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingNotifier) SheetChanged(ctx context.Context, _ sheets.Change) error {
	b.entered <- struct{}{}
	<-b.release
	return nil
}

func TestSlowNotifierDoesNotBlockSheet(t *testing.T) {
	ctx := context.Background()
	n := &blockingNotifier{entered: make(chan struct{}, 1), release: make(chan struct{})}
	s, _ := newSeeded(t, sheets.WithNotifier(n))

	appended := make(chan error, 1)
	go func() {
		_, err := s.AppendDefault(ctx)
		appended <- err
	}()
	<-n.entered

	viewed := make(chan core.View, 1)
	go func() {
		v, _ := s.View(ctx)
		viewed <- v
	}()
	select {
	case v := <-viewed:
		if len(v.Rows) != 9 {
			t.Fatalf("rows = %d, want 9 while the change is being published", len(v.Rows))
		}
	case <-time.After(time.Second):
		t.Fatal("View blocked behind the notifier")
	}

	close(n.release)
	if err := <-appended; err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestApplyEditFuncBuildsFromStoredRow(t *testing.T) {
	ctx := context.Background()
	s, _ := newSeeded(t)

	if _, err := s.ApplyEditFunc(ctx, 2, func(cur core.Row) core.Row {
		cur.Name = "renamed"
		return cur
	}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, err := s.ApplyEditFunc(ctx, 2, func(cur core.Row) core.Row {
		cur.Price = 99
		return cur
	})
	if err != nil {
		t.Fatalf("reprice: %v", err)
	}
	if got.Name != "renamed" || got.Price != 99 {
		t.Fatalf("second edit lost the first: %+v", got)
	}

	got, err = s.ApplyEditFunc(ctx, 2, func(cur core.Row) core.Row {
		cur.Price = -1
		return cur
	})
	if !errors.Is(err, core.ErrNegativeValue) || got.Price != -1 || got.Name != "renamed" {
		t.Fatalf("rejected edit: got=%+v err=%v", got, err)
	}

	if _, err := s.ApplyEditFunc(ctx, 42, func(cur core.Row) core.Row { return cur }); !errors.Is(err, core.ErrRowNotFound) {
		t.Fatalf("unknown row: err = %v", err)
	}
}

func TestClosedSheetRejectsOperations(t *testing.T) {
	ctx := context.Background()
	s, store := newSeeded(t)
	s.Close()

	if _, err := s.View(ctx); !errors.Is(err, sheets.ErrClosed) {
		t.Fatalf("view: err = %v", err)
	}
	if _, err := s.AppendDefault(ctx); !errors.Is(err, sheets.ErrClosed) {
		t.Fatalf("append: err = %v", err)
	}
	if _, err := s.ApplyEdit(ctx, core.Row{ID: 1, Price: 1}); !errors.Is(err, sheets.ErrClosed) {
		t.Fatalf("edit: err = %v", err)
	}
	if store.replaces != 0 {
		t.Fatalf("closed sheet wrote %d times", store.replaces)
	}
}
