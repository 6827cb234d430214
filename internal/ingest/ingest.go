// Package ingest loads documents into the knowledge store: one batch
// embedding call, then a content-addressed upsert.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knowbase/knowbot/internal/embedding"
	"github.com/knowbase/knowbot/internal/knowledge"
	"github.com/knowbase/knowbot/internal/retry"
)

// Document is one unit of ingestable material.
type Document struct {
	Title   string
	Content string
	Source  string
}

// Ingestor embeds documents and upserts them into the knowledge store.
type Ingestor struct {
	embedder embedding.Embedder
	store    knowledge.Store
	logger   *slog.Logger
	policy   retry.Policy
}

// NewIngestor creates an Ingestor.
func NewIngestor(embedder embedding.Embedder, store knowledge.Store, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		embedder: embedder,
		store:    store,
		logger:   logger.With("component", "ingestor"),
		policy:   retry.DefaultPolicy(),
	}
}

// Ingest embeds and stores the documents, returning the number written.
// An empty input returns 0 without calling the embedding service.
// Re-ingesting identical documents is idempotent.
func (i *Ingestor) Ingest(ctx context.Context, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	inputs := make([]string, len(docs))
	for n, d := range docs {
		inputs[n] = fmt.Sprintf("# %s\n%s", d.Title, d.Content)
	}

	vectors, err := retry.Do(ctx, i.logger, i.policy, "embed_documents", func(ctx context.Context) ([][]float32, error) {
		return i.embedder.Embed(ctx, inputs)
	})
	if err != nil {
		return 0, fmt.Errorf("embedding documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return 0, fmt.Errorf("got %d embeddings for %d documents", len(vectors), len(docs))
	}

	entries := make([]knowledge.Entry, len(docs))
	for n, d := range docs {
		entries[n] = knowledge.Entry{
			ID:        knowledge.EntryID(d.Title, d.Content),
			Subject:   d.Title,
			Content:   d.Content,
			Source:    d.Source,
			Embedding: vectors[n],
		}
	}

	if err := i.store.Upsert(ctx, entries); err != nil {
		return 0, fmt.Errorf("storing documents: %w", err)
	}

	i.logger.InfoContext(ctx, "Documents ingested", "count", len(entries))
	return len(entries), nil
}
