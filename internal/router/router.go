package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knowbase/knowbot/internal/database"
)

// Reaction emojis used to acknowledge and confirm message handling.
const (
	ReactionAnswering = "💬"
	ReactionDigest    = "📊"
	ReactionDone      = "✅"
)

// Answerer runs the retrieval-augmented answering pipeline.
type Answerer interface {
	Answer(ctx context.Context, query string, history []database.Message) (string, error)
}

// Digester produces an on-demand activity digest for the admin.
type Digester interface {
	InstantDigest(ctx context.Context) error
}

// Sender is the outbound messaging channel.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	ReactToMessage(ctx context.Context, chatID int64, messageID int, emoji string) error
}

// HistoryStore supplies recent chat history for rephrasing.
type HistoryStore interface {
	GetRecentMessagesInChat(ctx context.Context, chatID int64, limit int) ([]database.Message, error)
}

// Router executes the side effects of a routing decision.
type Router struct {
	cfg          Config
	answerer     Answerer
	digester     Digester
	sender       Sender
	history      HistoryStore
	historyLimit int
	logger       *slog.Logger
}

// New creates a Router.
func New(cfg Config, answerer Answerer, digester Digester, sender Sender, history HistoryStore, historyLimit int, logger *slog.Logger) *Router {
	return &Router{
		cfg:          cfg,
		answerer:     answerer,
		digester:     digester,
		sender:       sender,
		history:      history,
		historyLimit: historyLimit,
		logger:       logger.With("component", "router"),
	}
}

// HandleIncoming classifies the message and runs the resulting action. The
// acknowledgment reaction goes out before any slow work; the completion
// reaction goes out only after the action verifiably succeeded. A failed
// pipeline sends no reply.
func (r *Router) HandleIncoming(ctx context.Context, msg database.Message) error {
	decision := Decide(msg, r.cfg)
	r.logger.DebugContext(ctx, "Routed message",
		"chat_id", msg.ChatID, "user_id", msg.UserID, "decision", decision.String())

	switch decision {
	case DecisionIgnore, DecisionStoreOnly:
		return nil

	case DecisionNotAllowed:
		r.logger.InfoContext(ctx, "Rejected message from user outside allow-list",
			"chat_id", msg.ChatID, "user_id", msg.UserID)
		return nil

	case DecisionInstantDigest:
		r.react(ctx, msg, ReactionDigest)
		if err := r.digester.InstantDigest(ctx); err != nil {
			return fmt.Errorf("instant digest failed: %w", err)
		}
		r.react(ctx, msg, ReactionDone)
		return nil

	case DecisionAnswer:
		r.react(ctx, msg, ReactionAnswering)

		history, err := r.history.GetRecentMessagesInChat(ctx, msg.ChatID, r.historyLimit)
		if err != nil {
			return fmt.Errorf("loading chat history: %w", err)
		}

		reply, err := r.answerer.Answer(ctx, msg.Content, history)
		if err != nil {
			return fmt.Errorf("answering failed: %w", err)
		}

		if err := r.sender.SendMessage(ctx, msg.ChatID, reply); err != nil {
			return fmt.Errorf("sending reply: %w", err)
		}
		r.react(ctx, msg, ReactionDone)
		return nil
	}

	return nil
}

// react sets a message reaction, logging and swallowing failures. Reactions
// are best-effort signaling and never fail the pipeline.
func (r *Router) react(ctx context.Context, msg database.Message, emoji string) {
	if err := r.sender.ReactToMessage(ctx, msg.ChatID, msg.MessageID, emoji); err != nil {
		r.logger.WarnContext(ctx, "Failed to set message reaction",
			"chat_id", msg.ChatID, "message_id", msg.MessageID, "emoji", emoji, "error", err)
	}
}
