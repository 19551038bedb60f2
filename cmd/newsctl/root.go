package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"cryptonews_bot/internal/app"
	"cryptonews_bot/internal/config"
	"cryptonews_bot/internal/fetcher"
	"cryptonews_bot/internal/fingerprint"
	"cryptonews_bot/internal/logging"
	"cryptonews_bot/internal/storage"
	"cryptonews_bot/internal/subscriber"
)

var httpClient fetcher.HTTPClient = http.DefaultClient

type options struct {
	backend  string
	dataDir  string
	dbPath   string
	logLevel string
}

// env is what every subcommand works with.
type env struct {
	cfg      *config.Config
	store    storage.Backend
	seen     *fingerprint.Store
	registry *subscriber.Registry
	log      *slog.Logger
}

func (e *env) Close() error {
	return e.store.Close()
}

func (o *options) open(ctx context.Context, stderr io.Writer) (*env, error) {
	cfg, err := config.LoadOffline()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if o.backend != "" {
		cfg.StorageBackend = o.backend
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.dbPath != "" {
		cfg.DatabasePath = o.dbPath
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	log := logging.New(stderr, cfg.LogLevel)
	store, err := app.OpenStorage(cfg)
	if err != nil {
		return nil, err
	}
	seen, registry := app.LoadState(ctx, cfg, store, log)
	return &env{cfg: cfg, store: store, seen: seen, registry: registry, log: log}, nil
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "newsctl",
		Short: "Inspect and maintain the crypto news bot storage",
		Long: `newsctl works on the same storage as the bot: the JSON files in DATA_DIR
or the SQLite database at DATABASE_PATH. Settings come from the bot's
environment variables and can be overridden with flags.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&o.backend, "backend", "", "storage backend: file or sqlite (default from STORAGE_BACKEND)")
	root.PersistentFlags().StringVar(&o.dataDir, "data-dir", "", "directory of the JSON files (default from DATA_DIR)")
	root.PersistentFlags().StringVar(&o.dbPath, "db", "", "path to the sqlite database (default from DATABASE_PATH)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "log level (default from LOG_LEVEL)")

	root.AddCommand(
		newStatsCmd(o),
		newCleanupCmd(o),
		newResetSeenCmd(o),
		newSubscribersCmd(o),
		newFetchCmd(o),
	)
	return root
}
