// Package main contains the entrypoint for the KnowBot Telegram bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/knowbase/knowbot/internal/answer"
	"github.com/knowbase/knowbot/internal/bot"
	"github.com/knowbase/knowbot/internal/bot/handlers"
	"github.com/knowbase/knowbot/internal/bot/tasks"
	"github.com/knowbase/knowbot/internal/config"
	"github.com/knowbase/knowbot/internal/database"
	"github.com/knowbase/knowbot/internal/embedding"
	"github.com/knowbase/knowbot/internal/gemini"
	"github.com/knowbase/knowbot/internal/ingest"
	"github.com/knowbase/knowbot/internal/knowledge"
	"github.com/knowbase/knowbot/internal/logger"
	"github.com/knowbase/knowbot/internal/router"
	"github.com/knowbase/knowbot/internal/summary"
	"github.com/knowbase/knowbot/internal/telegram"
	"github.com/knowbase/knowbot/internal/topics"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components, handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)
	kstore := knowledge.NewStore(db, log)

	gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}

	embedder, err := embedding.NewEmbedder(cfg.Embedding, log)
	if err != nil {
		log.Error("Failed to initialize embedder", "error", err)
		return 1
	}

	answerer := answer.NewAnswerer(gemClient, embedder, kstore, cfg.Knowledge, log)
	extractor := topics.NewExtractor(gemClient, log)
	ingestor := ingest.NewIngestor(embedder, kstore, log)

	// The default handler is wired after the bot exists because the router
	// needs the outbound sender, which needs the bot instance. It is
	// assigned before Start, so the indirection is never nil when called.
	var defaultHandler tgbot.HandlerFunc
	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			defaultHandler(ctx, b, update)
		}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	sender := telegram.NewSender(tg, log)
	summarySvc := summary.NewService(store, gemClient, sender, cfg.Telegram.AdminUserID, log)

	routerCfg := router.Config{
		AdminUserID:    cfg.Telegram.AdminUserID,
		TriggerWord:    cfg.Telegram.TriggerWord,
		AllowedUserIDs: cfg.Telegram.AllowedUserIDs,
	}
	rtr := router.New(routerCfg, answerer, summarySvc, sender, store, cfg.Knowledge.HistoryLimit, log)

	hDeps := handlers.HandlerDeps{
		Logger:   log,
		Config:   cfg,
		Store:    store,
		Router:   rtr,
		Digester: summarySvc,
	}
	defaultHandler = handlers.NewIncomingHandler(hDeps)

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	tDeps := tasks.TaskDeps{
		Logger:    log,
		Config:    cfg,
		Store:     store,
		Summary:   summarySvc,
		Extractor: extractor,
		Ingestor:  ingestor,
		SelfID:    cfg.Telegram.BotInfo.ID,
	}

	sched := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	app := bot.NewBot(log, cfg, db, tg, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
