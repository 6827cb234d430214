// Package main contains the one-shot document loader. It walks a directory
// for plain-text and markdown files and ingests them into the knowledge
// store.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/knowbase/knowbot/internal/config"
	"github.com/knowbase/knowbot/internal/database"
	"github.com/knowbase/knowbot/internal/embedding"
	"github.com/knowbase/knowbot/internal/ingest"
	"github.com/knowbase/knowbot/internal/knowledge"
	"github.com/knowbase/knowbot/internal/logger"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	dir := flag.String("dir", "", "Directory to load .txt and .md documents from")
	source := flag.String("source", "docs", "Source label stored with each document")
	flag.Parse()

	if *dir == "" {
		slog.Error("Missing required -dir flag")
		return 1
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)

	embedder, err := embedding.NewEmbedder(cfg.Embedding, log)
	if err != nil {
		log.Error("Failed to initialize embedder", "error", err)
		return 1
	}

	kstore := knowledge.NewStore(db, log)
	ingestor := ingest.NewIngestor(embedder, kstore, log)

	docs, err := collectDocuments(*dir, *source)
	if err != nil {
		log.Error("Failed to read documents", "dir", *dir, "error", err)
		return 1
	}
	if len(docs) == 0 {
		log.Warn("No .txt or .md documents found", "dir", *dir)
		return 0
	}

	count, err := ingestor.Ingest(ctx, docs)
	if err != nil {
		log.Error("Ingestion failed", "error", err)
		return 1
	}

	log.Info("Ingestion complete", "documents", count, "source", *source)
	return 0
}

// collectDocuments walks dir for .txt and .md files. The document title is
// the file name without its extension.
func collectDocuments(dir, source string) ([]ingest.Document, error) {
	var docs []ingest.Document

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".txt" && ext != ".md" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			return nil
		}

		docs = append(docs, ingest.Document{
			Title:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Content: content,
			Source:  source,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}
