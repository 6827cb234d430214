package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for knowledge-entry persistence and retrieval.
type Store interface {
	// Upsert inserts the entries, replacing any existing rows with the same
	// content-derived ID.
	Upsert(ctx context.Context, entries []Entry) error

	// NearestNeighbors scans all stored entries and returns up to maxResults
	// entries with cosine distance strictly below maxDistance, ordered by
	// ascending distance.
	NearestNeighbors(ctx context.Context, query []float32, maxResults int, maxDistance float64) ([]Result, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new knowledge Store backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "knowledge_store"),
	}
}

// entryRow is the database representation of an Entry, with the embedding
// encoded as a BLOB.
type entryRow struct {
	ID        string    `db:"id"`
	Subject   string    `db:"subject"`
	Content   string    `db:"content"`
	Source    string    `db:"source"`
	Embedding []byte    `db:"embedding"`
	CreatedAt time.Time `db:"created_at"`
}

// Upsert inserts the entries in one transaction, replacing rows that share a
// content-derived ID. Concurrent ingestion of identical content is benign.
func (s *sqlxStore) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for upsert", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	query := `
        INSERT INTO knowledge_entries (id, subject, content, source, embedding, created_at)
        VALUES (:id, :subject, :content, :source, :embedding, :created_at)
        ON CONFLICT (id) DO UPDATE SET
            subject = excluded.subject,
            content = excluded.content,
            source = excluded.source,
            embedding = excluded.embedding;
    `

	now := time.Now().UTC()
	for i := range entries {
		e := &entries[i]
		if e.ID == "" {
			e.ID = EntryID(e.Subject, e.Content)
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		row := entryRow{
			ID:        e.ID,
			Subject:   e.Subject,
			Content:   e.Content,
			Source:    e.Source,
			Embedding: EncodeVector(e.Embedding),
			CreatedAt: e.CreatedAt,
		}
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			s.logger.ErrorContext(ctx, "Error upserting knowledge entry", "id", e.ID, "error", err)
			return fmt.Errorf("failed to upsert knowledge entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit upsert transaction", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Upserted knowledge entries", "count", len(entries))
	return nil
}

// NearestNeighbors performs a brute-force cosine-distance scan over all
// stored embeddings. Entry counts here stay small enough that a full scan
// beats maintaining an index.
func (s *sqlxStore) NearestNeighbors(ctx context.Context, query []float32, maxResults int, maxDistance float64) ([]Result, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if maxResults <= 0 {
		return nil, fmt.Errorf("maxResults must be positive, got %d", maxResults)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var rows []entryRow
	selectQuery := `SELECT id, subject, content, source, embedding, created_at FROM knowledge_entries;`
	if err := s.db.SelectContext(ctx, &rows, selectQuery); err != nil {
		s.logger.ErrorContext(ctx, "Error scanning knowledge entries", "error", err)
		return nil, fmt.Errorf("failed to scan knowledge entries: %w", err)
	}

	var results []Result
	for _, row := range rows {
		vec, err := DecodeVector(row.Embedding)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping entry with malformed embedding", "id", row.ID, "error", err)
			continue
		}
		if len(vec) == 0 {
			continue
		}

		distance := CosineDistance(query, vec)
		if distance < maxDistance {
			results = append(results, Result{
				Entry: Entry{
					ID:        row.ID,
					Subject:   row.Subject,
					Content:   row.Content,
					Source:    row.Source,
					Embedding: vec,
					CreatedAt: row.CreatedAt,
				},
				Distance: distance,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if len(results) > maxResults {
		results = results[:maxResults]
	}

	s.logger.DebugContext(ctx, "Nearest-neighbor scan complete",
		"scanned", len(rows), "matched", len(results), "max_distance", maxDistance)
	return results, nil
}

// Count returns the number of stored entries.
func (s *sqlxStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM knowledge_entries;`); err != nil {
		return 0, fmt.Errorf("failed to count knowledge entries: %w", err)
	}
	return count, nil
}
