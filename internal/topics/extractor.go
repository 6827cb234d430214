// Package topics extracts discussion topics from chat transcripts, with
// speaker identities anonymized before the transcript leaves the system.
package topics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/knowbase/knowbot/internal/anonymize"
	"github.com/knowbase/knowbot/internal/database"
	"github.com/knowbase/knowbot/internal/gemini"
	"github.com/knowbase/knowbot/internal/retry"
)

// Topic is one extracted discussion topic. Speakers maps the pseudonyms
// referenced by this topic's text back to real user IDs.
type Topic struct {
	Subject  string
	Summary  string
	Speakers map[string]string
}

// Extractor turns message windows into topics via one schema-constrained
// generation call.
type Extractor struct {
	ai     gemini.Client
	logger *slog.Logger
	policy retry.Policy
}

// NewExtractor creates a topic extractor. Transcript splitting is a long
// call, so it runs under the slow retry policy.
func NewExtractor(ai gemini.Client, logger *slog.Logger) *Extractor {
	return &Extractor{
		ai:     ai,
		logger: logger.With("component", "topic_extractor"),
		policy: retry.SlowPolicy(),
	}
}

// ExtractTopics anonymizes the messages, renders them as a transcript, and
// asks the generation service to split it into topics. An empty input (or
// one with no usable text) returns no topics without any AI call.
func (e *Extractor) ExtractTopics(ctx context.Context, messages []database.Message, selfID int64) ([]Topic, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	sorted := make([]database.Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})

	mapping := anonymize.BuildMapping(sorted, selfID)

	var sb strings.Builder
	lines := 0
	for _, m := range sorted {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		sb.WriteString(m.Timestamp.UTC().Format(time.RFC3339))
		sb.WriteString(": @")
		sb.WriteString(mapping.Pseudonym(m.UserID))
		sb.WriteString(": ")
		sb.WriteString(mapping.Deidentify(m.Content))
		sb.WriteString("\n")
		lines++
	}
	if lines == 0 {
		e.logger.DebugContext(ctx, "No textual messages in window, skipping extraction")
		return nil, nil
	}

	transcript := sb.String()
	e.logger.DebugContext(ctx, "Extracting topics", "messages", lines, "transcript_len", len(transcript))

	items, err := retry.Do(ctx, e.logger, e.policy, "extract_topics", func(ctx context.Context) ([]gemini.TopicItem, error) {
		return e.ai.GenerateTopics(ctx, extractionSystemPrompt, transcript)
	})
	if err != nil {
		return nil, fmt.Errorf("topic extraction failed: %w", err)
	}

	topics := make([]Topic, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Subject) == "" || strings.TrimSpace(item.Summary) == "" {
			e.logger.WarnContext(ctx, "Dropping topic with empty subject or summary")
			continue
		}
		topics = append(topics, Topic{
			Subject:  item.Subject,
			Summary:  item.Summary,
			Speakers: mapping.FilterReferenced(item.Subject, item.Summary),
		})
	}

	e.logger.InfoContext(ctx, "Topic extraction complete", "topics", len(topics))
	return topics, nil
}
