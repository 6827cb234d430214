// Package embedding implements the embedding-service adapter against any
// OpenAI-compatible embeddings endpoint.
package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/knowbase/knowbot/internal/config"
	"github.com/knowbase/knowbot/internal/retry"
)

// Embedder generates fixed-dimension embedding vectors for batches of text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type openAIEmbedder struct {
	embedder   embeddings.Embedder
	dimensions int
	logger     *slog.Logger
	breaker    *retry.Breaker
}

// NewEmbedder creates an Embedder backed by the configured endpoint.
func NewEmbedder(cfg config.EmbeddingConfig, log *slog.Logger) (Embedder, error) {
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	logger := log.With("component", "embedder")
	logger.Info("Embedder initialized", "model", cfg.Model, "dimensions", cfg.Dimensions)
	return &openAIEmbedder{
		embedder:   embedder,
		dimensions: cfg.Dimensions,
		logger:     logger,
		breaker: retry.NewBreaker(retry.BreakerConfig{
			Name:    "embedding",
			Timeout: config.DefaultAITimeout,
		}, logger),
	}, nil
}

// Embed generates one embedding per input text, in input order. Vectors that
// do not match the configured dimensionality are rejected.
func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	e.logger.DebugContext(ctx, "Generating embeddings", "count", len(texts))

	var vectors [][]float32
	err := e.breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		vectors, callErr = e.embedder.EmbedDocuments(ctx, texts)
		return callErr
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to generate embeddings", "count", len(texts), "error", err)
		return nil, fmt.Errorf("embedding call failed: %w", err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != e.dimensions {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(v), e.dimensions)
		}
	}

	return vectors, nil
}
