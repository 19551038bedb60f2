package fetcher

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"cryptonews_bot/internal/model"
)

// DefaultConcurrency bounds how many sources are fetched at once.
const DefaultConcurrency = 4

// Source is anything that yields new items for one feed.
type Source interface {
	Name() string
	Fetch(ctx context.Context) []model.NewsItem
}

// Aggregator runs all sources and merges their items.
type Aggregator struct {
	sources []Source
	limit   int
	log     *slog.Logger
}

// NewAggregator creates an Aggregator over sources.
func NewAggregator(sources []Source, concurrency int, log *slog.Logger) *Aggregator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Aggregator{
		sources: sources,
		limit:   concurrency,
		log:     log.With("component", "aggregator"),
	}
}

// Sources returns the names of the configured sources.
func (a *Aggregator) Sources() []string {
	names := make([]string, len(a.sources))
	for i, s := range a.sources {
		names[i] = s.Name()
	}
	return names
}

// FetchAll fetches every source and returns the new items, newest first.
func (a *Aggregator) FetchAll(ctx context.Context) []model.NewsItem {
	results := make([][]model.NewsItem, len(a.sources))

	var g errgroup.Group
	g.SetLimit(a.limit)
	for i, src := range a.sources {
		g.Go(func() error {
			results[i] = src.Fetch(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var all []model.NewsItem
	for _, items := range results {
		all = append(all, items...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].PublishedAt.After(all[j].PublishedAt)
	})

	a.log.Debug("fetch cycle done", "sources", len(a.sources), "new_items", len(all))
	return all
}
