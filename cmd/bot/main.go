package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cryptonews_bot/internal/app"
	"cryptonews_bot/internal/bot"
	"cryptonews_bot/internal/broadcast"
	"cryptonews_bot/internal/config"
	"cryptonews_bot/internal/logging"
	"cryptonews_bot/internal/news"
	"cryptonews_bot/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := logging.New(os.Stderr, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := app.OpenStorage(cfg)
	if err != nil {
		log.Error("open storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	seen, registry := app.LoadState(ctx, cfg, store, log)

	ann, closeAI, err := app.NewAnnotator(ctx, cfg, log)
	if err != nil {
		log.Error("create annotator", "error", err)
		os.Exit(1)
	}
	defer func() { _ = closeAI() }()

	b, err := bot.New(cfg.TelegramBotToken, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	agg := app.NewAggregator(cfg, http.DefaultClient, seen, log)
	bc := broadcast.New(b, registry, cfg.SendPause, log)
	svc := news.New(agg, ann, bc, seen, registry, news.Options{
		MaxPerPoll:   cfg.MaxNewsPerPoll,
		Retention:    cfg.RetentionWindow,
		PollInterval: cfg.PollInterval,
		Location:     cfg.Location,
		AIProvider:   app.ProviderLabel(cfg),
	}, log)

	sched := scheduler.New(scheduler.Jobs{
		Poll: func(ctx context.Context) { svc.Poll(ctx) },
		Cleanup: func(ctx context.Context) {
			if _, err := svc.Cleanup(ctx); err != nil {
				log.Error("scheduled cleanup", "error", err)
			}
		},
		Digest: func(ctx context.Context) { svc.Digest(ctx) },
	}, scheduler.Options{
		PollInterval:   cfg.PollInterval,
		FirstPollDelay: cfg.FirstPollDelay,
		CleanupAt:      cfg.CleanupTime,
		DigestAt:       cfg.DigestTime,
		Location:       cfg.Location,
	}, log)

	b.SetService(svc, sched)

	log.Info("starting bot",
		"sources", len(cfg.Sources),
		"subscribers", registry.Count(),
		"seen", seen.Len(),
		"storage", cfg.StorageBackend,
	)

	go sched.Run(ctx)

	b.Run(ctx)

	log.Info("bot stopped")
}
