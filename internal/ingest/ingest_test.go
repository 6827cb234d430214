package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/knowbase/knowbot/internal/knowledge"
	"github.com/knowbase/knowbot/internal/retry"
)

type fakeEmbedder struct {
	calls  int
	inputs []string
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.inputs = texts
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

type fakeStore struct {
	upserted []knowledge.Entry
	err      error
}

func (f *fakeStore) Upsert(ctx context.Context, entries []knowledge.Entry) error {
	f.upserted = append(f.upserted, entries...)
	return f.err
}

func (f *fakeStore) NearestNeighbors(ctx context.Context, query []float32, maxResults int, maxDistance float64) ([]knowledge.Result, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) Count(ctx context.Context) (int, error) {
	return len(f.upserted), nil
}

func fastIngestor(e *fakeEmbedder, s *fakeStore) *Ingestor {
	i := NewIngestor(e, s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	i.policy = retry.Policy{MaxAttempts: 2, MinWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1, Jitter: 0}
	return i
}

func TestIngestEmptySkipsEmbedding(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{}
	store := &fakeStore{}
	ing := fastIngestor(embedder, store)

	count, err := ing.Ingest(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0, got %d", count)
	}
	if embedder.calls != 0 {
		t.Errorf("expected no embed calls, got %d", embedder.calls)
	}
}

func TestIngestBuildsEntriesFromDocuments(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{}
	store := &fakeStore{}
	ing := fastIngestor(embedder, store)

	docs := []Document{
		{Title: "Setup", Content: "Install the agent.", Source: "docs"},
		{Title: "Billing", Content: "Invoices monthly.", Source: "docs"},
	}

	count, err := ing.Ingest(context.Background(), docs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2, got %d", count)
	}

	if len(embedder.inputs) != 2 || embedder.inputs[0] != "# Setup\nInstall the agent." {
		t.Errorf("unexpected embedding inputs: %v", embedder.inputs)
	}

	if len(store.upserted) != 2 {
		t.Fatalf("expected 2 upserted entries, got %d", len(store.upserted))
	}
	first := store.upserted[0]
	if first.ID != knowledge.EntryID("Setup", "Install the agent.") {
		t.Errorf("unexpected entry ID %s", first.ID)
	}
	if first.Subject != "Setup" || first.Source != "docs" {
		t.Errorf("unexpected entry fields: %+v", first)
	}
	if len(first.Embedding) == 0 {
		t.Error("entry missing embedding")
	}
}

func TestIngestPropagatesEmbeddingFailure(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{err: errors.New("service down")}
	store := &fakeStore{}
	ing := fastIngestor(embedder, store)

	if _, err := ing.Ingest(context.Background(), []Document{{Title: "t", Content: "c"}}); err == nil {
		t.Fatal("expected error")
	}
	if len(store.upserted) != 0 {
		t.Error("nothing should be stored when embedding fails")
	}
}

func TestIngestPropagatesStoreFailure(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{}
	store := &fakeStore{err: errors.New("disk full")}
	ing := fastIngestor(embedder, store)

	if _, err := ing.Ingest(context.Background(), []Document{{Title: "t", Content: "c"}}); err == nil {
		t.Fatal("expected error")
	}
}
