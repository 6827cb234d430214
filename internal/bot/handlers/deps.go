package handlers

import (
	"log/slog"

	"github.com/knowbase/knowbot/internal/config"
	"github.com/knowbase/knowbot/internal/database"
	"github.com/knowbase/knowbot/internal/router"
)

// HandlerDeps provides dependencies for Telegram command and message handlers.
type HandlerDeps struct {
	Logger   *slog.Logger
	Config   *config.Config
	Store    database.Store
	Router   *router.Router
	Digester router.Digester
}
