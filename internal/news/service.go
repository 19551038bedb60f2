// Package news ties the pipeline together: it runs the poll, cleanup and
// digest jobs and serves the command surface used by the bot and the CLI.
package news

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"cryptonews_bot/internal/broadcast"
	"cryptonews_bot/internal/fingerprint"
	"cryptonews_bot/internal/model"
)

// Defaults for Options.
const (
	DefaultMaxPerPoll   = 5
	DefaultDigestWindow = 24 * time.Hour
	DefaultLatest       = 3
	MaxLatest           = 10
)

// Aggregator collects new items from every source.
type Aggregator interface {
	FetchAll(ctx context.Context) []model.NewsItem
	Sources() []string
}

// Annotator produces the analysis text of items.
type Annotator interface {
	Analyze(ctx context.Context, item model.NewsItem) string
	AnalyzeBatch(ctx context.Context, items []model.NewsItem) string
}

// Broadcaster delivers messages to subscribers by preference.
type Broadcaster interface {
	SendToInstant(ctx context.Context, msg string) broadcast.Report
	SendToDigest(ctx context.Context, msg string) broadcast.Report
}

// Fingerprints is the seen-item store.
type Fingerprints interface {
	Recent(since time.Time) []model.SeenRecord
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
	Reset(ctx context.Context) (string, error)
	Stats(ctx context.Context, n int) fingerprint.Stats
	Len() int
}

// Registry is the subscriber registry.
type Registry interface {
	Subscribe(ctx context.Context, id int64) (bool, error)
	Unsubscribe(ctx context.Context, id int64) (bool, error)
	IsSubscribed(id int64) bool
	Preferences(ctx context.Context, id int64) (model.Preferences, error)
	TogglePreference(ctx context.Context, id int64, key string) (bool, error)
	Snapshot() []model.Subscriber
	Count() int
}

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	MaxPerPoll   int
	Retention    time.Duration
	DigestWindow time.Duration
	PollInterval time.Duration
	Location     *time.Location
	AIProvider   string
}

// PollResult describes one poll run.
type PollResult struct {
	Fetched   int
	Broadcast int
	Dropped   int
	Delivered int
}

// DigestResult describes one digest run.
type DigestResult struct {
	Items  int
	Report broadcast.Report
}

// Status is the public bot status.
type Status struct {
	Subscribers  int
	SeenCount    int
	LastPoll     time.Time
	PollInterval time.Duration
	MaxPerPoll   int
	Sources      []string
	AIProvider   string
}

// AdminStats is the operator view of the bot state.
type AdminStats struct {
	Subscribers    int
	InstantEnabled int
	DigestEnabled  int
	Polls          int
	Delivered      int
	Fingerprints   fingerprint.Stats
}

// Service implements the bot's jobs and commands.
type Service struct {
	agg      Aggregator
	ann      Annotator
	bc       Broadcaster
	seen     Fingerprints
	registry Registry
	opts     Options
	now      func() time.Time
	log      *slog.Logger

	mu        sync.Mutex
	lastPoll  time.Time
	polls     int
	delivered int
}

// New creates a Service.
func New(agg Aggregator, ann Annotator, bc Broadcaster, seen Fingerprints, registry Registry, opts Options, log *slog.Logger) *Service {
	if opts.MaxPerPoll <= 0 {
		opts.MaxPerPoll = DefaultMaxPerPoll
	}
	if opts.Retention <= 0 {
		opts.Retention = fingerprint.DefaultRetention
	}
	if opts.DigestWindow <= 0 {
		opts.DigestWindow = DefaultDigestWindow
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.AIProvider == "" {
		opts.AIProvider = "keywords"
	}
	return &Service{
		agg:      agg,
		ann:      ann,
		bc:       bc,
		seen:     seen,
		registry: registry,
		opts:     opts,
		now:      time.Now,
		log:      log.With("component", "news"),
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Location returns the timezone used for display and daily jobs.
func (s *Service) Location() *time.Location {
	return s.opts.Location
}

// Poll fetches new items and broadcasts up to MaxPerPoll of them, newest
// first, to subscribers with instant notifications on. Items beyond the cap
// stay marked as seen and are not delivered.
func (s *Service) Poll(ctx context.Context) PollResult {
	items := s.agg.FetchAll(ctx)
	res := PollResult{Fetched: len(items)}

	if len(items) > s.opts.MaxPerPoll {
		res.Dropped = len(items) - s.opts.MaxPerPoll
		s.log.Info("poll cap reached, dropping items", "dropped", res.Dropped)
		items = items[:s.opts.MaxPerPoll]
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		analysis := s.ann.Analyze(ctx, item)
		rep := s.bc.SendToInstant(ctx, FormatItem(item, analysis, s.opts.Location))
		res.Broadcast++
		res.Delivered += rep.Delivered
	}

	s.mu.Lock()
	s.lastPoll = s.now()
	s.polls++
	s.delivered += res.Delivered
	s.mu.Unlock()

	if res.Fetched > 0 {
		s.log.Info("poll done", "fetched", res.Fetched, "broadcast", res.Broadcast, "delivered", res.Delivered)
	}
	return res
}

// Cleanup drops fingerprints older than the retention window.
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	removed, err := s.seen.Cleanup(ctx, s.opts.Retention)
	if err != nil {
		return removed, fmt.Errorf("cleanup fingerprints: %w", err)
	}
	s.log.Info("cleanup done", "removed", removed)
	return removed, nil
}

// Digest sends the daily summary of the items recorded in the digest window
// to subscribers with the daily summary on.
func (s *Service) Digest(ctx context.Context) DigestResult {
	now := s.now()
	recs := s.seen.Recent(now.Add(-s.opts.DigestWindow))
	items := lo.Map(recs, func(r model.SeenRecord, _ int) model.NewsItem { return r.Item() })

	var summary string
	if len(items) > 0 {
		summary = s.ann.AnalyzeBatch(ctx, items)
	}

	rep := s.bc.SendToDigest(ctx, FormatDigest(summary, len(items), now, s.opts.Location))
	s.log.Info("digest done", "items", len(items), "delivered", rep.Delivered)
	return DigestResult{Items: len(items), Report: rep}
}

// ManualDigest is Digest started by an operator.
func (s *Service) ManualDigest(ctx context.Context) DigestResult {
	s.log.Info("manual digest requested")
	return s.Digest(ctx)
}

// Subscribe adds id to the subscribers. It reports whether id is new.
func (s *Service) Subscribe(ctx context.Context, id int64) (bool, error) {
	added, err := s.registry.Subscribe(ctx, id)
	if err != nil {
		return added, fmt.Errorf("subscribe %d: %w", id, err)
	}
	if added {
		s.log.Info("new subscriber", "chat_id", id)
	}
	return added, nil
}

// Unsubscribe removes id. It reports whether id was subscribed.
func (s *Service) Unsubscribe(ctx context.Context, id int64) (bool, error) {
	removed, err := s.registry.Unsubscribe(ctx, id)
	if err != nil {
		return removed, fmt.Errorf("unsubscribe %d: %w", id, err)
	}
	if removed {
		s.log.Info("subscriber left", "chat_id", id)
	}
	return removed, nil
}

// IsSubscribed reports whether id is subscribed.
func (s *Service) IsSubscribed(id int64) bool {
	return s.registry.IsSubscribed(id)
}

// Latest returns up to n formatted messages of the most recently recorded
// items. n is clamped to [1, MaxLatest].
func (s *Service) Latest(n int) []string {
	n = max(1, min(n, MaxLatest))
	recs := s.seen.Recent(s.now().Add(-s.opts.Retention))
	if len(recs) > n {
		recs = recs[:n]
	}
	return lo.Map(recs, func(r model.SeenRecord, _ int) string {
		return FormatItem(r.Item(), "", s.opts.Location)
	})
}

// Status returns the public bot status.
func (s *Service) Status() Status {
	s.mu.Lock()
	last := s.lastPoll
	s.mu.Unlock()

	return Status{
		Subscribers:  s.registry.Count(),
		SeenCount:    s.seen.Len(),
		LastPoll:     last,
		PollInterval: s.opts.PollInterval,
		MaxPerPoll:   s.opts.MaxPerPoll,
		Sources:      s.agg.Sources(),
		AIProvider:   s.opts.AIProvider,
	}
}

// Preferences returns the preferences of id.
func (s *Service) Preferences(ctx context.Context, id int64) (model.Preferences, error) {
	p, err := s.registry.Preferences(ctx, id)
	if err != nil {
		return p, fmt.Errorf("preferences of %d: %w", id, err)
	}
	return p, nil
}

// TogglePreference flips one preference of id and returns the new value.
func (s *Service) TogglePreference(ctx context.Context, id int64, key string) (bool, error) {
	v, err := s.registry.TogglePreference(ctx, id, key)
	if err != nil {
		return v, fmt.Errorf("toggle %s for %d: %w", key, id, err)
	}
	return v, nil
}

// ResetFingerprints forgets every seen item after backing up the journal.
func (s *Service) ResetFingerprints(ctx context.Context) (string, error) {
	backup, err := s.seen.Reset(ctx)
	if err != nil {
		return backup, fmt.Errorf("reset fingerprints: %w", err)
	}
	return backup, nil
}

// AdminStats returns the operator view including the n most recent records.
func (s *Service) AdminStats(ctx context.Context, n int) AdminStats {
	if n <= 0 {
		n = recentInStats
	}
	subs := s.registry.Snapshot()

	s.mu.Lock()
	polls, delivered := s.polls, s.delivered
	s.mu.Unlock()

	return AdminStats{
		Subscribers:    len(subs),
		InstantEnabled: lo.CountBy(subs, func(sub model.Subscriber) bool { return sub.Preferences.InstantNotifications }),
		DigestEnabled:  lo.CountBy(subs, func(sub model.Subscriber) bool { return sub.Preferences.DailySummary }),
		Polls:          polls,
		Delivered:      delivered,
		Fingerprints:   s.seen.Stats(ctx, n),
	}
}
