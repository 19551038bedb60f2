// Package app assembles the pipeline components from the configuration.
// It is shared by the bot and the operator CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"cryptonews_bot/internal/config"
	"cryptonews_bot/internal/fetcher"
	"cryptonews_bot/internal/fingerprint"
	"cryptonews_bot/internal/llm"
	"cryptonews_bot/internal/scraper"
	"cryptonews_bot/internal/sentiment"
	"cryptonews_bot/internal/storage"
	"cryptonews_bot/internal/subscriber"
)

// OpenStorage opens the configured storage backend.
func OpenStorage(cfg *config.Config) (storage.Backend, error) {
	if cfg.StorageBackend == config.StorageSQLite {
		if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}
	backend, err := storage.Open(cfg.StorageBackend, cfg.DataDir, cfg.DatabasePath, cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.StorageBackend, err)
	}
	return backend, nil
}

// LoadState builds the fingerprint store and the subscriber registry over
// backend and loads both. Load failures are logged; the components start
// empty in that case.
func LoadState(ctx context.Context, cfg *config.Config, backend storage.Backend, log *slog.Logger) (*fingerprint.Store, *subscriber.Registry) {
	seen := fingerprint.New(backend, cfg.RetentionWindow, log)
	if err := seen.Load(ctx); err != nil {
		log.Warn("fingerprints reset after load failure", "error", err)
	}
	registry := subscriber.New(backend, log)
	if err := registry.Load(ctx); err != nil {
		log.Warn("subscribers reset after load failure", "error", err)
	}
	return seen, registry
}

// NewAggregator builds one retriever per configured source.
func NewAggregator(cfg *config.Config, client fetcher.HTTPClient, claimer fetcher.Claimer, log *slog.Logger) *fetcher.Aggregator {
	if client == nil {
		client = http.DefaultClient
	}
	f := fetcher.New(client, cfg.RequestTimeout)

	opts := fetcher.RetrieverOptions{
		RecencyWindow: cfg.RecencyWindow,
		MaxEntries:    cfg.MaxEntriesPerFeed,
	}
	if cfg.ScrapeArticles {
		opts.Scraper = scraper.New(client, cfg.RequestTimeout)
	}

	sources := make([]fetcher.Source, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		sources = append(sources, fetcher.NewRetriever(src, f, claimer, opts, log))
	}
	return fetcher.NewAggregator(sources, cfg.FetchConcurrency, log)
}

// NewAnnotator builds the sentiment annotator and the generator client it
// uses. The returned close function releases the client.
func NewAnnotator(ctx context.Context, cfg *config.Config, log *slog.Logger) (*sentiment.Annotator, func() error, error) {
	client, err := llm.NewFromConfig(ctx, LLMConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("create %s client: %w", cfg.AIProvider, err)
	}
	closeFn := func() error { return nil }
	var gen llm.Generator
	if client != nil {
		gen = client
		closeFn = client.Close
		log.Info("remote analysis enabled", "provider", cfg.AIProvider, "daily_limit", cfg.AIDailyLimit)
	} else {
		log.Info("remote analysis disabled, using keyword heuristic")
	}
	return sentiment.New(gen, cfg.AITimeout, cfg.AnalysisLanguage, log), closeFn, nil
}

// LLMConfig maps the application configuration to the llm package.
func LLMConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		Provider:     cfg.AIProvider,
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OpenAIModel:  cfg.OpenAIModel,
		OpenAIURL:    cfg.OpenAIBaseURL,
		DailyLimit:   cfg.AIDailyLimit,
	}
}

// ProviderLabel names the analysis mode shown in /status.
func ProviderLabel(cfg *config.Config) string {
	if !cfg.AIEnabled() {
		return "keywords"
	}
	return cfg.AIProvider
}
