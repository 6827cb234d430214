package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewDigestHandler returns a handler for the admin-only /digest command,
// which produces an on-demand activity digest.
func NewDigestHandler(deps HandlerDeps) bot.HandlerFunc {
	return digestHandler{deps}.Handle
}

type digestHandler struct {
	deps HandlerDeps
}

func (h digestHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "digest")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Digest handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	log.InfoContext(ctx, "Handling /digest command", "user_id", update.Message.From.ID)

	if err := h.deps.Digester.InstantDigest(ctx); err != nil {
		log.ErrorContext(ctx, "Instant digest failed", "error", err)
		_, sendErr := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "Digest failed, check the logs.",
		})
		if sendErr != nil {
			log.ErrorContext(ctx, "Failed to send digest failure notice", "error", sendErr)
		}
	}
}
