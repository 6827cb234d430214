// Package answer implements the retrieval-augmented answering pipeline:
// rephrase the question, embed it, retrieve nearest knowledge entries, and
// generate a reply grounded in what was found.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/knowbase/knowbot/internal/config"
	"github.com/knowbase/knowbot/internal/database"
	"github.com/knowbase/knowbot/internal/embedding"
	"github.com/knowbase/knowbot/internal/gemini"
	"github.com/knowbase/knowbot/internal/knowledge"
	"github.com/knowbase/knowbot/internal/retry"
)

// Answerer answers user questions over the knowledge store.
type Answerer struct {
	ai       gemini.Client
	embedder embedding.Embedder
	store    knowledge.Store
	cfg      config.KnowledgeConfig
	logger   *slog.Logger
	policy   retry.Policy
}

// NewAnswerer creates an Answerer with thresholds from config.
func NewAnswerer(ai gemini.Client, embedder embedding.Embedder, store knowledge.Store, cfg config.KnowledgeConfig, logger *slog.Logger) *Answerer {
	return &Answerer{
		ai:       ai,
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   logger.With("component", "answerer"),
		policy:   retry.DefaultPolicy(),
	}
}

// Answer runs the four-stage pipeline for one question. history is the
// chat's recent messages in any order; only the most recent ones inside the
// configured window are used. The rephrased question drives retrieval only;
// the generation call sees the original query, the history window, and the
// retrieved excerpts. Store errors are fatal; AI errors surface after the
// retry budget is exhausted.
func (a *Answerer) Answer(ctx context.Context, query string, history []database.Message) (string, error) {
	recent := recentWindow(history, a.cfg.HistoryLimit)

	question, err := a.rephrase(ctx, query, recent)
	if err != nil {
		return "", fmt.Errorf("rephrasing question: %w", err)
	}

	vectors, err := retry.Do(ctx, a.logger, a.policy, "embed_query", func(ctx context.Context) ([][]float32, error) {
		return a.embedder.Embed(ctx, []string{question})
	})
	if err != nil {
		return "", fmt.Errorf("embedding question: %w", err)
	}
	if len(vectors) != 1 {
		return "", fmt.Errorf("got %d embeddings for one question", len(vectors))
	}

	results, err := a.store.NearestNeighbors(ctx, vectors[0], a.cfg.MaxResults, a.cfg.MaxDistance)
	if err != nil {
		return "", fmt.Errorf("retrieving knowledge entries: %w", err)
	}

	system, user := a.buildPrompts(query, recent, results)

	a.logger.DebugContext(ctx, "Generating answer",
		"results", len(results), "grounded", len(results) > 0 && results[0].Distance < a.cfg.RelevantDistance)

	reply, err := retry.Do(ctx, a.logger, a.policy, "generate_answer", func(ctx context.Context) (string, error) {
		return a.ai.GenerateText(ctx, system, user)
	})
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}
	return reply, nil
}

// rephrase rewrites the query as a terse English search query for retrieval.
// It always runs, even without history, because translation and the shift
// from conversational phrasing to a searchable form matter on their own.
func (a *Answerer) rephrase(ctx context.Context, query string, recent []database.Message) (string, error) {
	var sb strings.Builder
	if len(recent) > 0 {
		sb.WriteString("Conversation:\n")
		writeHistory(&sb, recent)
		sb.WriteString("\n")
	}
	sb.WriteString("Latest message:\n")
	sb.WriteString(query)

	question, err := retry.Do(ctx, a.logger, a.policy, "rephrase_question", func(ctx context.Context) (string, error) {
		return a.ai.GenerateText(ctx, rephraseSystemPrompt, sb.String())
	})
	if err != nil {
		return "", err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return query, nil
	}
	return question, nil
}

// buildPrompts picks the grounded or fallback template by relevance tier and
// renders the original query, the history window, and the retrieved excerpts
// into the user prompt.
func (a *Answerer) buildPrompts(query string, recent []database.Message, results []knowledge.Result) (system, user string) {
	grounded := len(results) > 0 && results[0].Distance < a.cfg.RelevantDistance

	if grounded {
		system = fmt.Sprintf(groundedSystemPrompt, a.cfg.ProductName)
	} else {
		system = fmt.Sprintf(fallbackSystemPrompt, a.cfg.ProductName)
	}

	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n")

	if len(recent) > 0 {
		sb.WriteString("\nRecent chat history:\n")
		writeHistory(&sb, recent)
	}
	sb.WriteString("\n")

	if len(results) == 0 {
		sb.WriteString(noDocumentationNote)
	} else {
		sb.WriteString("Documentation excerpts:\n")
		for _, r := range results {
			sb.WriteString(fmt.Sprintf("\n## %s\n%s\n", r.Entry.Subject, r.Entry.Content))
		}
	}

	return system, sb.String()
}

// writeHistory renders the history window as one timestamped line per
// message, oldest first.
func writeHistory(sb *strings.Builder, recent []database.Message) {
	for _, m := range recent {
		sb.WriteString(fmt.Sprintf("[%s] %d: %s\n", m.Timestamp.UTC().Format("2006-01-02 15:04:05"), m.UserID, m.Content))
	}
}

// recentWindow returns the last 'limit' messages ordered oldest first.
func recentWindow(history []database.Message, limit int) []database.Message {
	if len(history) == 0 || limit <= 0 {
		return nil
	}
	sorted := make([]database.Message, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})
	if len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}
	return sorted
}
