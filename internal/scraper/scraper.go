// Package scraper extracts a short plain-text excerpt from an article page.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"cryptonews_bot/internal/model"
)

// Defaults for Extractor.
const (
	DefaultMaxParagraphs = 5
	DefaultMaxChars      = 1000
	DefaultTimeout       = 10 * time.Second
)

const maxPageSize = 5 * 1024 * 1024

var contentClassHints = []string{"content", "article", "body", "text"}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Extractor downloads article pages and pulls out their leading paragraphs.
type Extractor struct {
	client        HTTPClient
	timeout       time.Duration
	maxParagraphs int
	maxChars      int
}

// New creates an Extractor with the given HTTP client and per-page timeout.
func New(client HTTPClient, timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Extractor{
		client:        client,
		timeout:       timeout,
		maxParagraphs: DefaultMaxParagraphs,
		maxChars:      DefaultMaxChars,
	}
}

// Extract returns up to maxChars of text from the first content paragraphs
// of the page at pageURL.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; CryptoNewsBot/1.0)")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	text, err := e.paragraphs(body)
	if err != nil {
		return "", err
	}
	if text == "" {
		text = readable(body, pageURL)
	}
	return model.Truncate(text, e.maxChars), nil
}

func (e *Extractor) paragraphs(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	blocks := doc.Find("p, div").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, ok := s.Attr("class")
		if !ok {
			return false
		}
		class = strings.ToLower(class)
		for _, hint := range contentClassHints {
			if strings.Contains(class, hint) {
				return true
			}
		}
		return false
	})
	if blocks.Length() == 0 {
		blocks = doc.Find("p")
	}

	var parts []string
	blocks.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := collapse(s.Text()); t != "" {
			parts = append(parts, t)
		}
		return len(parts) < e.maxParagraphs
	})
	return strings.Join(parts, " "), nil
}

// readable is the last resort for pages without usable paragraphs.
func readable(body []byte, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = nil
	}
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return ""
	}
	return collapse(article.TextContent)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
