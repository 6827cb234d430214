package handlers

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/knowbase/knowbot/internal/database"
)

// NewIncomingHandler returns the bot's default handler. Every message is
// stored first, then handed to the router for classification and dispatch.
func NewIncomingHandler(deps HandlerDeps) bot.HandlerFunc {
	return incomingHandler{deps}.Handle
}

type incomingHandler struct {
	deps HandlerDeps
}

func (h incomingHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "incoming")

	if update.Message == nil || update.Message.From == nil {
		log.DebugContext(ctx, "Ignoring update without message or sender", "update_id", update.ID)
		return
	}

	// The bot's own outgoing messages come back as updates in some group
	// setups; they are stored like any other message so transcripts show
	// both sides, but never routed.
	msg := database.Message{
		ChatID:    update.Message.Chat.ID,
		UserID:    update.Message.From.ID,
		MessageID: update.Message.ID,
		Content:   update.Message.Text,
		IsGroup:   update.Message.Chat.Type != models.ChatTypePrivate,
		Timestamp: time.Unix(int64(update.Message.Date), 0).UTC(),
	}

	if err := h.deps.Store.SaveMessage(ctx, &msg); err != nil {
		log.ErrorContext(ctx, "Failed to store incoming message",
			"chat_id", msg.ChatID, "user_id", msg.UserID, "error", err)
		// A message we could not store can still be answered.
	}

	if h.deps.Config.Telegram.BotInfo != nil && msg.UserID == h.deps.Config.Telegram.BotInfo.ID {
		return
	}

	if err := h.deps.Router.HandleIncoming(ctx, msg); err != nil {
		log.ErrorContext(ctx, "Message handling failed",
			"chat_id", msg.ChatID, "user_id", msg.UserID, "error", err)
	}
}
