// Package sentiment produces short market-impact assessments of news items.
// A remote text generator is tried first; any failure falls back to a
// deterministic keyword heuristic, so callers never see an error.
package sentiment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cryptonews_bot/internal/llm"
	"cryptonews_bot/internal/model"
)

// Defaults for Annotator.
const (
	DefaultTimeout  = 15 * time.Second
	DefaultLanguage = "English"

	itemMaxTokens  = 200
	batchMaxTokens = 600
	temperature    = 0.7
	bodyBudget     = 500
	batchMaxItems  = 40
)

// Annotator analyzes news items.
type Annotator struct {
	gen      llm.Generator
	timeout  time.Duration
	language string
	log      *slog.Logger
}

// New creates an Annotator. gen may be nil, in which case only the
// keyword heuristic is used.
func New(gen llm.Generator, timeout time.Duration, language string, log *slog.Logger) *Annotator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if language == "" {
		language = DefaultLanguage
	}
	return &Annotator{
		gen:      gen,
		timeout:  timeout,
		language: language,
		log:      log.With("component", "sentiment"),
	}
}

// Remote reports whether a remote generator is configured.
func (a *Annotator) Remote() bool {
	return a.gen != nil
}

// Analyze returns the assessment of one item.
func (a *Annotator) Analyze(ctx context.Context, item model.NewsItem) string {
	if a.gen != nil {
		text, err := a.generate(ctx, llm.Request{
			System:      a.systemPrompt(),
			Prompt:      itemPrompt(item),
			MaxTokens:   itemMaxTokens,
			Temperature: temperature,
		})
		if err == nil {
			return text
		}
		a.log.Warn("remote analysis failed, using keyword fallback", "title", item.Title, "error", err)
	}
	return Fallback(item)
}

// AnalyzeBatch returns a digest of items, or "" when there is nothing to summarize.
func (a *Annotator) AnalyzeBatch(ctx context.Context, items []model.NewsItem) string {
	if len(items) == 0 {
		return ""
	}
	if a.gen != nil {
		text, err := a.generate(ctx, llm.Request{
			System:      a.systemPrompt(),
			Prompt:      batchPrompt(items),
			MaxTokens:   batchMaxTokens,
			Temperature: temperature,
		})
		if err == nil {
			return text
		}
		a.log.Warn("remote digest failed, using keyword fallback", "items", len(items), "error", err)
	}
	return FallbackBatch(items)
}

func (a *Annotator) generate(ctx context.Context, req llm.Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.gen.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

func (a *Annotator) systemPrompt() string {
	return fmt.Sprintf("You are an expert analyst of cryptocurrency news. Answer in %s. Be brief.", a.language)
}

func itemPrompt(item model.NewsItem) string {
	body := item.Body
	if body == "" {
		body = item.Summary
	}
	return fmt.Sprintf(`Analyze the following crypto news item and write a short comment.

Title: %s
Source: %s
Content: %s
Link: %s

Include the market impact (Bullish/Bearish/Neutral), a one or two sentence analysis, and the risk level (Low/Medium/High).

Format:
📈 Market impact: [Bullish/Bearish/Neutral]
📊 Analysis: [short analysis]
⚠️ Risk: [Low/Medium/High]`,
		item.Title, item.Source, model.Truncate(body, bodyBudget), item.URL)
}

func batchPrompt(items []model.NewsItem) string {
	var b strings.Builder
	b.WriteString("Summarize the cryptocurrency news of the last 24 hours listed below for a daily digest.\n")
	b.WriteString("Group related stories, name the main market themes, and finish with the overall market mood (Bullish/Bearish/Mixed).\n")
	b.WriteString("Keep it under 15 lines.\n\nNews:\n")
	for i, it := range items {
		if i == batchMaxItems {
			fmt.Fprintf(&b, "... and %d more\n", len(items)-batchMaxItems)
			break
		}
		fmt.Fprintf(&b, "- %s: %s\n", it.Source, it.Title)
	}
	return b.String()
}
