package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"cryptonews_bot/internal/model"
)

// File names inside the data directory.
const (
	SeenFileName        = "seen_news.json"
	SubscribersFileName = "subscribers.json"
	SettingsFileName    = "user_settings.json"
)

// File implements Backend with JSON files in one directory.
// Every write replaces the file atomically through a temp file and rename.
type File struct {
	mu              sync.Mutex
	seenPath        string
	subscribersPath string
	settingsPath    string
	loc             *time.Location
	now             func() time.Time
}

var _ Backend = (*File)(nil)

// NewFile creates the data directory if needed and returns a File backend.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &File{
		seenPath:        filepath.Join(dir, SeenFileName),
		subscribersPath: filepath.Join(dir, SubscribersFileName),
		settingsPath:    filepath.Join(dir, SettingsFileName),
		loc:             time.UTC,
		now:             time.Now,
	}, nil
}

// SetLocation sets the zone assumed for timestamps stored without one.
func (f *File) SetLocation(loc *time.Location) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if loc == nil {
		loc = time.UTC
	}
	f.loc = loc
}

// Close implements Backend.
func (f *File) Close() error { return nil }

type seenEntry struct {
	Fingerprint  string  `json:"fingerprint"`
	TitleExcerpt string  `json:"title_excerpt"`
	Source       string  `json:"source"`
	URL          string  `json:"url"`
	PublishedAt  isoTime `json:"published_at"`
	RecordedAt   isoTime `json:"recorded_at"`
}

type subscribersFile struct {
	Subscribers []int64 `json:"subscribers"`
	LastUpdated isoTime `json:"last_updated"`
	TotalCount  int     `json:"total_count"`
}

type settingsEntry struct {
	InstantNotifications bool    `json:"instant_notifications"`
	DailySummary         bool    `json:"daily_summary"`
	JoinedDate           isoTime `json:"joined_date"`
	LastActivity         isoTime `json:"last_activity"`
}

// LoadSeen implements SeenJournal. Entries with an undecodable fingerprint are skipped.
func (f *File) LoadSeen(_ context.Context) ([]model.SeenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadSeen()
}

func (f *File) loadSeen() ([]model.SeenRecord, error) {
	var entries []seenEntry
	found, err := readJSON(f.seenPath, &entries)
	if err != nil || !found {
		return nil, err
	}
	recs := make([]model.SeenRecord, 0, len(entries))
	for _, e := range entries {
		fp, err := model.ParseFingerprint(e.Fingerprint)
		if err != nil {
			continue
		}
		recs = append(recs, model.SeenRecord{
			Fingerprint:  fp,
			TitleExcerpt: e.TitleExcerpt,
			Source:       e.Source,
			URL:          e.URL,
			PublishedAt:  e.PublishedAt.in(f.loc),
			RecordedAt:   e.RecordedAt.in(f.loc),
		})
	}
	return recs, nil
}

// AppendSeen implements SeenJournal. A corrupt journal is backed up and restarted.
func (f *File) AppendSeen(_ context.Context, rec model.SeenRecord, cutoff time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	recs, err := f.loadSeen()
	if errors.Is(err, ErrCorrupt) {
		if _, berr := f.backup(f.seenPath); berr != nil {
			return fmt.Errorf("backup corrupt journal: %w", berr)
		}
		recs, err = nil, nil
	}
	if err != nil {
		return err
	}
	recs = upsertRecord(keepSince(recs, cutoff), rec)
	return f.writeSeen(recs)
}

// ReplaceSeen implements SeenJournal.
func (f *File) ReplaceSeen(_ context.Context, recs []model.SeenRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeSeen(recs)
}

// BackupSeen implements SeenJournal by renaming the journal file.
func (f *File) BackupSeen(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backup(f.seenPath)
}

func (f *File) writeSeen(recs []model.SeenRecord) error {
	entries := make([]seenEntry, 0, len(recs))
	for _, r := range recs {
		entries = append(entries, seenEntry{
			Fingerprint:  r.Fingerprint.String(),
			TitleExcerpt: r.TitleExcerpt,
			Source:       r.Source,
			URL:          r.URL,
			PublishedAt:  stamp(r.PublishedAt),
			RecordedAt:   stamp(r.RecordedAt),
		})
	}
	return writeJSON(f.seenPath, entries)
}

// LoadRoster implements SubscriberStore. Preference keys that are not
// integer ids are skipped.
func (f *File) LoadRoster(_ context.Context) (model.Roster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r := model.Roster{Preferences: make(map[int64]model.Preferences)}

	var subs subscribersFile
	found, err := readJSON(f.subscribersPath, &subs)
	if err != nil {
		return r, err
	}
	if found {
		r.IDs = dedupIDs(subs.Subscribers)
		r.UpdatedAt = subs.LastUpdated.in(f.loc)
	}

	var settings map[string]settingsEntry
	if _, err := readJSON(f.settingsPath, &settings); err != nil {
		return r, err
	}
	for key, s := range settings {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		r.Preferences[id] = model.Preferences{
			InstantNotifications: s.InstantNotifications,
			DailySummary:         s.DailySummary,
			JoinedAt:             s.JoinedDate.in(f.loc),
			LastActivityAt:       s.LastActivity.in(f.loc),
		}
	}
	return r, nil
}

// SaveRoster implements SubscriberStore.
func (f *File) SaveRoster(_ context.Context, r model.Roster) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := dedupIDs(r.IDs)
	updated := r.UpdatedAt
	if updated.IsZero() {
		updated = f.now()
	}
	if err := writeJSON(f.subscribersPath, subscribersFile{
		Subscribers: ids,
		LastUpdated: stamp(updated),
		TotalCount:  len(ids),
	}); err != nil {
		return err
	}

	settings := make(map[string]settingsEntry, len(r.Preferences))
	for id, p := range r.Preferences {
		settings[strconv.FormatInt(id, 10)] = settingsEntry{
			InstantNotifications: p.InstantNotifications,
			DailySummary:         p.DailySummary,
			JoinedDate:           stamp(p.JoinedAt),
			LastActivity:         stamp(p.LastActivityAt),
		}
	}
	return writeJSON(f.settingsPath, settings)
}

// BackupRoster implements SubscriberStore. Both files are renamed; the
// returned name is the subscribers backup.
func (f *File) BackupRoster(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name, err := f.backup(f.subscribersPath)
	if err != nil {
		return "", err
	}
	if _, err := f.backup(f.settingsPath); err != nil {
		return name, err
	}
	return name, nil
}

func (f *File) backup(path string) (string, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	dst := fmt.Sprintf("%s.%s.bak", path, f.now().UTC().Format(backupLayout))
	if err := os.Rename(path, dst); err != nil {
		return "", fmt.Errorf("backup %s: %w", filepath.Base(path), err)
	}
	return dst, nil
}

// readJSON decodes path into v. It reports found=false for a missing or
// empty file and wraps decode failures with ErrCorrupt.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w: %v", filepath.Base(path), ErrCorrupt, err)
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// isoTime reads RFC 3339 timestamps as well as the zone-less ISO-8601 form
// written by older releases, and always writes RFC 3339 in UTC. Zone-less
// values carry only a wall clock; in places it in the backend's location.
type isoTime struct {
	t     time.Time
	local bool
}

func stamp(t time.Time) isoTime {
	return isoTime{t: t.UTC()}
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

func (t isoTime) in(loc *time.Location) time.Time {
	if !t.local || t.t.IsZero() {
		return t.t
	}
	w := t.t
	return time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), loc).UTC()
}

func (t isoTime) MarshalJSON() ([]byte, error) {
	if t.t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.t.UTC().Format(time.RFC3339Nano))
}

func (t *isoTime) UnmarshalJSON(data []byte) error {
	*t = isoTime{}
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.t = v.UTC()
		return nil
	}
	for _, layout := range zonelessLayouts {
		if v, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			*t = isoTime{t: v, local: true}
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}
