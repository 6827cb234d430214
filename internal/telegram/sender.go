package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Sender is the outbound messaging adapter used by the router and the
// digest service.
type Sender struct {
	bot    *bot.Bot
	logger *slog.Logger
}

// NewSender creates a Sender over a connected bot instance.
func NewSender(b *bot.Bot, logger *slog.Logger) *Sender {
	return &Sender{
		bot:    b,
		logger: logger.With("component", "sender"),
	}
}

// SendMessage sends a plain-text message to a chat.
func (s *Sender) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to send message", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return nil
}

// ReactToMessage sets a single emoji reaction on a message.
func (s *Sender) ReactToMessage(ctx context.Context, chatID int64, messageID int, emoji string) error {
	_, err := s.bot.SetMessageReaction(ctx, &bot.SetMessageReactionParams{
		ChatID:    chatID,
		MessageID: messageID,
		Reaction: []models.ReactionType{
			{
				Type:              models.ReactionTypeTypeEmoji,
				ReactionTypeEmoji: &models.ReactionTypeEmoji{Type: "emoji", Emoji: emoji},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to set reaction on message %d in chat %d: %w", messageID, chatID, err)
	}
	return nil
}
