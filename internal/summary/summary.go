// Package summary produces per-group activity digests for the
// administrator, on a schedule or on demand.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knowbase/knowbot/internal/database"
	"github.com/knowbase/knowbot/internal/gemini"
	"github.com/knowbase/knowbot/internal/retry"
)

// window is how far back each digest looks.
const window = 24 * time.Hour

// Sender delivers the digest to the admin chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Service builds and sends activity digests.
type Service struct {
	store       database.Store
	ai          gemini.Client
	sender      Sender
	adminChatID int64
	logger      *slog.Logger
	policy      retry.Policy
	now         func() time.Time
}

// NewService creates a digest service. The admin chat ID is where digests
// are delivered.
func NewService(store database.Store, ai gemini.Client, sender Sender, adminChatID int64, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		ai:          ai,
		sender:      sender,
		adminChatID: adminChatID,
		logger:      logger.With("component", "summary"),
		policy:      retry.DefaultPolicy(),
		now:         time.Now,
	}
}

// DailyDigest runs the scheduled digest over the last 24 hours.
func (s *Service) DailyDigest(ctx context.Context) error {
	return s.digest(ctx, "Daily")
}

// InstantDigest runs the same digest on demand.
func (s *Service) InstantDigest(ctx context.Context) error {
	return s.digest(ctx, "Instant")
}

// digest enumerates group chats, summarizes each chat's window, and sends
// one combined message. Chats with no messages are skipped; if every chat is
// quiet a single notice goes out instead.
func (s *Service) digest(ctx context.Context, label string) error {
	to := s.now().UTC()
	from := to.Add(-window)

	chatIDs, err := s.store.GetGroupChatIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing group chats: %w", err)
	}

	var sections []string
	for _, chatID := range chatIDs {
		messages, err := s.store.GetMessagesInChatBetween(ctx, chatID, from, to)
		if err != nil {
			return fmt.Errorf("loading messages for chat %d: %w", chatID, err)
		}
		if len(messages) == 0 {
			s.logger.DebugContext(ctx, "Skipping quiet chat", "chat_id", chatID)
			continue
		}

		section, err := s.summarizeChat(ctx, chatID, messages)
		if err != nil {
			return fmt.Errorf("summarizing chat %d: %w", chatID, err)
		}
		sections = append(sections, section)
	}

	if len(sections) == 0 {
		s.logger.InfoContext(ctx, "No group activity in digest window", "label", label)
		notice := fmt.Sprintf("%s digest: no group activity in the last 24 hours.", label)
		if err := s.sender.SendMessage(ctx, s.adminChatID, notice); err != nil {
			return fmt.Errorf("sending empty-digest notice: %w", err)
		}
		return nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s digest (%s to %s)\n", label,
		from.Format("2006-01-02 15:04"), to.Format("2006-01-02 15:04")))
	for _, section := range sections {
		sb.WriteString("\n")
		sb.WriteString(section)
		sb.WriteString("\n")
	}

	if err := s.sender.SendMessage(ctx, s.adminChatID, sb.String()); err != nil {
		return fmt.Errorf("sending digest: %w", err)
	}

	s.logger.InfoContext(ctx, "Digest sent", "label", label, "chats", len(sections))
	return nil
}

func (s *Service) summarizeChat(ctx context.Context, chatID int64, messages []database.Message) (string, error) {
	var sb strings.Builder
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("[%s] %d: %s\n", m.Timestamp.UTC().Format("2006-01-02 15:04:05"), m.UserID, m.Content))
	}
	if sb.Len() == 0 {
		return fmt.Sprintf("Chat %d: %d media-only messages, nothing to summarize.", chatID, len(messages)), nil
	}

	text, err := retry.Do(ctx, s.logger, s.policy, "summarize_chat", func(ctx context.Context) (string, error) {
		return s.ai.GenerateText(ctx, digestSystemPrompt, sb.String())
	})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Chat %d:\n%s", chatID, strings.TrimSpace(text)), nil
}
