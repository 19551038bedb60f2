package fetcher

import (
	"context"
	"log/slog"
	"time"

	"cryptonews_bot/internal/model"
)

// Defaults for Retriever.
const (
	DefaultRecencyWindow = 24 * time.Hour
	DefaultMaxEntries    = 10
)

// Claimer records items as seen. Claim reports false for items already seen.
type Claimer interface {
	Claim(ctx context.Context, item model.NewsItem) (bool, error)
}

// Scraper fetches an article excerpt.
type Scraper interface {
	Extract(ctx context.Context, url string) (string, error)
}

// RetrieverOptions tunes a Retriever. Zero values select the defaults.
type RetrieverOptions struct {
	RecencyWindow time.Duration
	MaxEntries    int
	// Scraper is optional; without it items have an empty body.
	Scraper Scraper
}

// Retriever produces new items from one feed source.
type Retriever struct {
	source     model.Source
	fetcher    *Fetcher
	claimer    Claimer
	scraper    Scraper
	recency    time.Duration
	maxEntries int
	now        func() time.Time
	log        *slog.Logger
}

// NewRetriever creates a Retriever for source.
func NewRetriever(source model.Source, f *Fetcher, claimer Claimer, opts RetrieverOptions, log *slog.Logger) *Retriever {
	if opts.RecencyWindow <= 0 {
		opts.RecencyWindow = DefaultRecencyWindow
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	return &Retriever{
		source:     source,
		fetcher:    f,
		claimer:    claimer,
		scraper:    opts.Scraper,
		recency:    opts.RecencyWindow,
		maxEntries: opts.MaxEntries,
		now:        time.Now,
		log:        log.With("component", "retriever", "source", source.Name),
	}
}

// SetClock overrides the time source.
func (r *Retriever) SetClock(now func() time.Time) {
	r.now = now
}

// Name returns the source name.
func (r *Retriever) Name() string {
	return r.source.Name
}

// Fetch returns the entries of the feed that are recent and not seen before,
// marking each of them seen. Any failure is logged and yields no items.
func (r *Retriever) Fetch(ctx context.Context) []model.NewsItem {
	feed, err := r.fetcher.Fetch(ctx, r.source.URL)
	if err != nil {
		r.log.Warn("fetch feed", "url", r.source.URL, "error", err)
		return nil
	}

	entries := feed.Items
	if len(entries) > r.maxEntries {
		entries = entries[:r.maxEntries]
	}

	cutoff := r.now().Add(-r.recency)
	var items []model.NewsItem
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if e == nil {
			continue
		}

		item, ok := itemFromEntry(e, r.source.Name)
		if !ok {
			r.log.Debug("entry dropped: no title or publish date", "link", e.Link)
			continue
		}
		if item.PublishedAt.Before(cutoff) {
			continue
		}

		fresh, err := r.claimer.Claim(ctx, item)
		if err != nil {
			r.log.Error("persist fingerprint", "title", item.Title, "error", err)
		}
		if !fresh {
			continue
		}

		items = append(items, r.enrich(ctx, item))
	}

	if len(items) > 0 {
		r.log.Info("new items", "count", len(items))
	}
	return items
}

func (r *Retriever) enrich(ctx context.Context, item model.NewsItem) model.NewsItem {
	if r.scraper == nil || item.URL == "" {
		return item
	}
	body, err := r.scraper.Extract(ctx, item.URL)
	if err != nil {
		r.log.Debug("scrape article", "url", item.URL, "error", err)
		return item
	}
	return item.WithBody(body)
}
