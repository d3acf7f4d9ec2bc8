package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/DJ-Powehi/telegram-secretary/internal/bot"
	"github.com/DJ-Powehi/telegram-secretary/internal/config"
	"github.com/DJ-Powehi/telegram-secretary/internal/feedback"
	"github.com/DJ-Powehi/telegram-secretary/internal/ingest"
	"github.com/DJ-Powehi/telegram-secretary/internal/storage"
	"github.com/DJ-Powehi/telegram-secretary/internal/summarize"
	"github.com/DJ-Powehi/telegram-secretary/internal/summary"
	"github.com/DJ-Powehi/telegram-secretary/internal/warn"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	seedPreferences(ctx, store, cfg, log)

	var summarizer summarize.Summarizer = summarize.Disabled{}
	if cfg.OpenAIAPIKey != "" {
		summarizer = summarize.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		log.Info("topic summaries enabled")
	}

	b, err := bot.New(cfg.BotToken, store, cfg, feedback.New(store), log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	dispatcher := warn.New(store, b, cfg.ClientUserID, cfg.WarningThresholdScore, log)

	pipeline := ingest.New(store, dispatcher, cfg.OwnerUsername, log)
	if err := pipeline.RefreshHighPriority(ctx); err != nil {
		log.Error("load high priority users", "error", err)
		os.Exit(1)
	}

	sched := summary.New(store, b, summarizer,
		cfg.MinPriorityScore, cfg.SummaryIntervalHours, cfg.MaxMessagesPerSummary, log)
	if err := sched.StartUser(ctx, cfg.ClientUserID); err != nil {
		log.Error("start summary task", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	b.SetSummaryTrigger(sched)
	b.SetSnapshotRefresher(pipeline)

	log.Info("starting secretary")

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		pipeline.Run(ctx, b)
	}()

	b.Run(ctx)

	// An in-flight ingestion write and its warning check finish before
	// the process exits.
	<-pipelineDone

	log.Info("secretary stopped")
}

// seedPreferences creates the monitored user's preference row on first
// start so the reviewer surface has something to edit.
func seedPreferences(ctx context.Context, store storage.Storage, cfg *config.Config, log *slog.Logger) {
	_, err := store.GetPreferences(ctx, cfg.ClientUserID)
	if err == nil {
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		log.Error("load preferences", "error", err)
		return
	}
	if err := store.SavePreferences(ctx, cfg.DefaultPreferences()); err != nil {
		log.Error("seed preferences", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
