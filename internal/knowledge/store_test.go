package knowledge

import (
	"context"
	"testing"

	"github.com/knowbase/knowbot/internal/database"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return NewStore(db, nil)
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	entry := Entry{
		Subject:   "Billing",
		Content:   "Invoices are issued on the first of the month.",
		Source:    "docs",
		Embedding: []float32{1, 0, 0},
	}

	if err := store.Upsert(ctx, []Entry{entry}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := store.Upsert(ctx, []Entry{entry}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 entry after duplicate upsert, got %d", count)
	}
}

func TestUpsertEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Upsert(ctx, nil); err != nil {
		t.Fatalf("upsert of empty slice: %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty store, got %d entries", count)
	}
}

func TestNearestNeighbors(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	entries := []Entry{
		{Subject: "exact", Content: "a", Embedding: []float32{1, 0, 0}},
		{Subject: "close", Content: "b", Embedding: []float32{0.9, 0.1, 0}},
		{Subject: "orthogonal", Content: "c", Embedding: []float32{0, 1, 0}},
		{Subject: "opposite", Content: "d", Embedding: []float32{-1, 0, 0}},
	}
	if err := store.Upsert(ctx, entries); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	query := []float32{1, 0, 0}

	t.Run("orders by ascending distance and applies ceiling", func(t *testing.T) {
		results, err := store.NearestNeighbors(ctx, query, 10, 0.7)
		if err != nil {
			t.Fatalf("NearestNeighbors: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 results under distance 0.7, got %d", len(results))
		}
		if results[0].Entry.Subject != "exact" || results[1].Entry.Subject != "close" {
			t.Errorf("unexpected order: %s, %s", results[0].Entry.Subject, results[1].Entry.Subject)
		}
		if results[0].Distance > results[1].Distance {
			t.Errorf("distances not ascending: %v > %v", results[0].Distance, results[1].Distance)
		}
	})

	t.Run("ceiling is exclusive", func(t *testing.T) {
		// The orthogonal entry sits at exactly distance 1.
		results, err := store.NearestNeighbors(ctx, query, 10, 1.0)
		if err != nil {
			t.Fatalf("NearestNeighbors: %v", err)
		}
		for _, r := range results {
			if r.Entry.Subject == "orthogonal" {
				t.Error("entry at exactly the ceiling distance was returned")
			}
		}
	})

	t.Run("truncates to maxResults", func(t *testing.T) {
		results, err := store.NearestNeighbors(ctx, query, 1, 2.1)
		if err != nil {
			t.Fatalf("NearestNeighbors: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("expected 1 result, got %d", len(results))
		}
		if results[0].Entry.Subject != "exact" {
			t.Errorf("expected nearest entry first, got %s", results[0].Entry.Subject)
		}
	})

	t.Run("rejects empty query", func(t *testing.T) {
		if _, err := store.NearestNeighbors(ctx, nil, 10, 0.7); err == nil {
			t.Error("expected error for empty query vector")
		}
	})
}
