// Package fingerprint keeps the set of news items already seen, so an
// article is delivered once per retention window even across restarts.
package fingerprint

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"cryptonews_bot/internal/model"
	"cryptonews_bot/internal/storage"
)

// DefaultRetention is how long a fingerprint blocks redelivery.
const DefaultRetention = 24 * time.Hour

// Stats summarizes the store.
type Stats struct {
	TotalSeen      int
	FileEntryCount int
	MostRecent     []model.SeenRecord
}

// Store is the in-memory fingerprint set backed by a persistent journal.
// It is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	records   map[model.Fingerprint]model.SeenRecord
	journal   storage.SeenJournal
	retention time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// New creates an empty store. Call Load to read the persisted journal.
func New(journal storage.SeenJournal, retention time.Duration, log *slog.Logger) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		records:   make(map[model.Fingerprint]model.SeenRecord),
		journal:   journal,
		retention: retention,
		now:       time.Now,
		log:       log.With("component", "fingerprint"),
	}
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Load replaces the in-memory set with the persisted records inside the
// retention window. A corrupt or unreadable journal is backed up and the
// store starts empty; the returned error is informational only.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[model.Fingerprint]model.SeenRecord)

	recs, err := s.journal.LoadSeen(ctx)
	if err != nil {
		backup, berr := s.journal.BackupSeen(ctx)
		if berr != nil {
			s.log.Error("backup unreadable journal", "error", berr)
		}
		s.log.Warn("fingerprint journal unreadable, starting empty", "error", err, "backup", backup)
		return fmt.Errorf("load journal: %w", err)
	}

	cutoff := s.now().Add(-s.retention)
	kept := 0
	for _, r := range recs {
		if r.Timestamp().Before(cutoff) {
			continue
		}
		s.records[r.Fingerprint] = r
		kept++
	}

	if dropped := len(recs) - kept; dropped > 0 {
		if err := s.journal.ReplaceSeen(ctx, s.snapshotLocked()); err != nil {
			s.log.Error("rewrite journal after load", "error", err)
		}
		s.log.Info("dropped expired fingerprints on load", "dropped", dropped)
	}

	s.log.Info("fingerprints loaded", "count", len(s.records))
	return nil
}

// IsSeen reports whether the fingerprint is in the set.
func (s *Store) IsSeen(fp model.Fingerprint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[fp]
	return ok
}

// MarkSeen records the item and appends it to the journal, dropping
// persisted records older than the retention window.
func (s *Store) MarkSeen(ctx context.Context, item model.NewsItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markLocked(ctx, item)
}

// Claim atomically checks and marks the item. It returns false if the item
// was already seen. The item counts as seen even when persisting fails.
func (s *Store) Claim(ctx context.Context, item model.NewsItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[item.Fingerprint]; ok {
		return false, nil
	}
	return true, s.markLocked(ctx, item)
}

func (s *Store) markLocked(ctx context.Context, item model.NewsItem) error {
	now := s.now()
	rec := model.NewSeenRecord(item, now)
	s.records[rec.Fingerprint] = rec

	if err := s.journal.AppendSeen(ctx, rec, now.Add(-s.retention)); err != nil {
		return fmt.Errorf("persist fingerprint: %w", err)
	}
	return nil
}

// Cleanup reloads the journal, keeps only records newer than olderThan and
// rewrites it. The in-memory set is refreshed to match.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.journal.LoadSeen(ctx)
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}

	cutoff := s.now().Add(-olderThan)
	kept := make(map[model.Fingerprint]model.SeenRecord, len(recs))
	for _, r := range recs {
		if r.Timestamp().Before(cutoff) {
			continue
		}
		kept[r.Fingerprint] = r
	}
	removed := len(recs) - len(kept)

	s.records = kept
	if err := s.journal.ReplaceSeen(ctx, s.snapshotLocked()); err != nil {
		return removed, fmt.Errorf("rewrite journal: %w", err)
	}
	return removed, nil
}

// Stats returns the in-memory count, the persisted count and up to n
// most recently recorded entries, newest first.
func (s *Store) Stats(ctx context.Context, n int) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{TotalSeen: len(s.records)}
	if recs, err := s.journal.LoadSeen(ctx); err != nil {
		s.log.Warn("read journal for stats", "error", err)
		st.FileEntryCount = -1
	} else {
		st.FileEntryCount = len(recs)
	}

	recent := s.snapshotLocked()
	if n >= 0 && len(recent) > n {
		recent = recent[:n]
	}
	st.MostRecent = recent
	return st
}

// Recent returns the records recorded at or after since, newest first.
func (s *Store) Recent(since time.Time) []model.SeenRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.SeenRecord
	for _, r := range s.snapshotLocked() {
		if r.Timestamp().Before(since) {
			break
		}
		out = append(out, r)
	}
	return out
}

// Reset backs up the journal, then clears memory and the journal.
// It returns the backup location, empty if there was nothing to keep.
func (s *Store) Reset(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup, err := s.journal.BackupSeen(ctx)
	if err != nil {
		return "", fmt.Errorf("backup journal: %w", err)
	}
	s.records = make(map[model.Fingerprint]model.SeenRecord)
	if err := s.journal.ReplaceSeen(ctx, nil); err != nil {
		return backup, fmt.Errorf("clear journal: %w", err)
	}
	s.log.Warn("fingerprints reset", "backup", backup)
	return backup, nil
}

// Len returns the number of fingerprints in memory.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// snapshotLocked returns all records sorted newest first.
func (s *Store) snapshotLocked() []model.SeenRecord {
	out := make([]model.SeenRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Timestamp(), out[j].Timestamp()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].Fingerprint.String() < out[j].Fingerprint.String()
	})
	return out
}
