package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/knowbase/knowbot/internal/anonymize"
	"github.com/knowbase/knowbot/internal/ingest"
)

// topicWindow is how far back the nightly extraction looks.
const topicWindow = 24 * time.Hour

// newTopicExtractionTask creates the scheduled task that extracts discussion
// topics from each group chat's last-day transcript and ingests them into
// the knowledge store. Speaker pseudonyms are kept unless the re-identify
// policy is enabled in config.
func newTopicExtractionTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "topic_extraction")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled topic extraction task...")

		to := time.Now().UTC()
		from := to.Add(-topicWindow)

		chatIDs, err := deps.Store.GetGroupChatIDs(ctx)
		if err != nil {
			return fmt.Errorf("listing group chats: %w", err)
		}

		totalTopics := 0
		for _, chatID := range chatIDs {
			messages, err := deps.Store.GetMessagesInChatBetween(ctx, chatID, from, to)
			if err != nil {
				return fmt.Errorf("loading messages for chat %d: %w", chatID, err)
			}
			if len(messages) == 0 {
				continue
			}

			extracted, err := deps.Extractor.ExtractTopics(ctx, messages, deps.SelfID)
			if err != nil {
				return fmt.Errorf("extracting topics for chat %d: %w", chatID, err)
			}
			if len(extracted) == 0 {
				continue
			}

			docs := make([]ingest.Document, 0, len(extracted))
			for _, topic := range extracted {
				summary := topic.Summary
				if deps.Config.Knowledge.ReidentifyTopics {
					summary = anonymize.Reidentify(summary, topic.Speakers)
				}
				docs = append(docs, ingest.Document{
					Title:   topic.Subject,
					Content: summary,
					Source:  fmt.Sprintf("group:%d", chatID),
				})
			}

			count, err := deps.Ingestor.Ingest(ctx, docs)
			if err != nil {
				return fmt.Errorf("ingesting topics for chat %d: %w", chatID, err)
			}
			totalTopics += count
			log.InfoContext(ctx, "Ingested chat topics", "chat_id", chatID, "topics", count)
		}

		log.InfoContext(ctx, "Topic extraction task completed", "chats", len(chatIDs), "topics", totalTopics)
		return nil
	}
}
