// Package tasks implements the scheduled tasks of the KnowBot Telegram bot:
// the daily digest, nightly topic extraction, and database maintenance.
package tasks

import (
	"log/slog"

	"github.com/knowbase/knowbot/internal/config"
	"github.com/knowbase/knowbot/internal/database"
	"github.com/knowbase/knowbot/internal/ingest"
	"github.com/knowbase/knowbot/internal/summary"
	"github.com/knowbase/knowbot/internal/topics"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger    *slog.Logger
	Config    *config.Config
	Store     database.Store
	Summary   *summary.Service
	Extractor *topics.Extractor
	Ingestor  *ingest.Ingestor

	// SelfID is the bot's own Telegram user ID, used to mark its messages
	// during anonymization.
	SelfID int64
}
