package database

import "time"

// Message represents a message observed by the bot in a Telegram chat.
// It stores the message content and sender information for use as
// conversation history, digest input, and topic-extraction transcripts.
// Rows are immutable after insert.
type Message struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	ChatID    int64     `db:"chat_id"`
	UserID    int64     `db:"user_id"`
	MessageID int       `db:"message_id"`
	Content   string    `db:"content"` // empty for media-only messages
	IsGroup   bool      `db:"is_group"`
	Timestamp time.Time `db:"timestamp"`
}
