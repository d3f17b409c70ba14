package adapters

import (
	"context"
	"path/filepath"
	"testing"

	"quotesheet/internal/core"
	"quotesheet/internal/storage"
)

func TestMemoryAdapterLifecycle(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryAdapter()

	s := a.NewStore("one")
	if err := s.Replace(ctx, []core.Row{{ID: 1, Price: 5}}); err != nil {
		t.Fatal(err)
	}
	// Asking again for the same sheet returns the same rows.
	rows, _ := a.NewStore("one").Snapshot(ctx)
	if len(rows) != 1 {
		t.Fatalf("rows = %v, want one row", rows)
	}
	a.NewStore("two")
	if a.Len() != 2 {
		t.Fatalf("Len = %d, want 2", a.Len())
	}

	if err := a.Release(ctx, "one"); err != nil {
		t.Fatal(err)
	}
	if a.Len() != 1 {
		t.Fatalf("Len after release = %d, want 1", a.Len())
	}
	rows, _ = a.NewStore("one").Snapshot(ctx)
	if len(rows) != 0 {
		t.Fatalf("released sheet came back with %v", rows)
	}
	if err := a.Ping(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteAdapterRelease(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(ctx, filepath.Join(t.TempDir(), "a.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	a := NewSQLiteAdapter(repo)

	if err := a.NewStore("s1").Replace(ctx, []core.Row{{ID: 1, Price: 2}}); err != nil {
		t.Fatal(err)
	}
	if err := a.Release(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	rows, err := a.NewStore("s1").Snapshot(ctx)
	if err != nil || len(rows) != 0 {
		t.Fatalf("rows=%v err=%v", rows, err)
	}
	if err := a.Ping(ctx); err != nil {
		t.Fatal(err)
	}
}
