// Package fetcher downloads news feeds, filters entries by recency and
// deduplicates them against the fingerprint store.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"cryptonews_bot/internal/model"
)

const (
	maxFeedSize    = 5 * 1024 * 1024
	maxSummaryLen  = 300
	defaultTimeout = 10 * time.Second
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses syndication feeds.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client and per-request timeout.
func New(client HTTPClient, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		client:  client,
		timeout: timeout,
	}
}

// Fetch downloads and parses the feed at url.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "CryptoNewsBot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// PlainSummary strips markup from a feed description and shortens it.
func PlainSummary(description string) string {
	text := description
	if strings.ContainsAny(description, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(description))
		if err == nil {
			text = doc.Text()
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > maxSummaryLen {
		return string(r[:maxSummaryLen]) + "..."
	}
	return text
}

// itemFromEntry converts a feed entry. It returns false for entries without
// a title or a parseable publish date.
func itemFromEntry(e *gofeed.Item, source string) (model.NewsItem, bool) {
	if e == nil || e.PublishedParsed == nil || strings.TrimSpace(e.Title) == "" {
		return model.NewsItem{}, false
	}
	return model.NewNewsItem(e.Title, e.Link, source, PlainSummary(e.Description), e.PublishedParsed.UTC()), true
}
