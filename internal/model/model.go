// Package model defines the domain types used across the application.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Source is a configured news feed.
type Source struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Fingerprint identifies a news item by its normalized title, URL and source.
type Fingerprint [16]byte

// NewFingerprint computes the fingerprint of an article.
func NewFingerprint(title, link, source string) Fingerprint {
	key := normalizeText(title) + "|" + normalizeURL(link) + "|" + normalizeText(source)
	sum := sha256.Sum256([]byte(key))
	var fp Fingerprint
	copy(fp[:], sum[:len(fp)])
	return fp
}

// String returns the lowercase hex form.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// IsZero reports whether the fingerprint is unset.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	fp, err := ParseFingerprint(string(text))
	if err != nil {
		return err
	}
	*f = fp
	return nil
}

// ParseFingerprint parses the 32-character hex form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	if len(s) != hex.EncodedLen(len(fp)) {
		return fp, fmt.Errorf("fingerprint %q: want %d hex chars", s, hex.EncodedLen(len(fp)))
	}
	if _, err := hex.Decode(fp[:], []byte(s)); err != nil {
		return fp, fmt.Errorf("fingerprint %q: %w", s, err)
	}
	return fp, nil
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func normalizeURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if u, err := url.Parse(s); err == nil {
		u.RawQuery = ""
		u.ForceQuery = false
		u.Fragment = ""
		u.RawFragment = ""
		s = u.String()
	} else {
		if i := strings.IndexAny(s, "?#"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimRight(s, "/")
}

// NewsItem is a single article produced by a feed retriever.
// Build it with NewNewsItem so the fingerprint is always set.
type NewsItem struct {
	Title       string
	Body        string
	URL         string
	Source      string
	Summary     string
	PublishedAt time.Time
	Fingerprint Fingerprint
}

// NewNewsItem builds a NewsItem and computes its fingerprint.
func NewNewsItem(title, link, source, summary string, published time.Time) NewsItem {
	return NewsItem{
		Title:       strings.TrimSpace(title),
		URL:         strings.TrimSpace(link),
		Source:      source,
		Summary:     summary,
		PublishedAt: published,
		Fingerprint: NewFingerprint(title, link, source),
	}
}

// WithBody returns a copy of the item carrying the given article body.
func (n NewsItem) WithBody(body string) NewsItem {
	n.Body = body
	return n
}

// TitleExcerptLen is the maximum number of runes kept in SeenRecord.TitleExcerpt.
const TitleExcerptLen = 100

// SeenRecord is the persisted trace of a news item that passed deduplication.
type SeenRecord struct {
	Fingerprint  Fingerprint `json:"fingerprint"`
	TitleExcerpt string      `json:"title_excerpt"`
	Source       string      `json:"source"`
	URL          string      `json:"url"`
	PublishedAt  time.Time   `json:"published_at"`
	RecordedAt   time.Time   `json:"recorded_at"`
}

// NewSeenRecord builds the record for an item recorded at the given time.
func NewSeenRecord(item NewsItem, recordedAt time.Time) SeenRecord {
	return SeenRecord{
		Fingerprint:  item.Fingerprint,
		TitleExcerpt: Truncate(item.Title, TitleExcerptLen),
		Source:       item.Source,
		URL:          item.URL,
		PublishedAt:  item.PublishedAt.UTC(),
		RecordedAt:   recordedAt.UTC(),
	}
}

// Timestamp returns RecordedAt, or PublishedAt when RecordedAt is missing.
func (r SeenRecord) Timestamp() time.Time {
	if !r.RecordedAt.IsZero() {
		return r.RecordedAt
	}
	return r.PublishedAt
}

// Item rebuilds a body-less NewsItem from the record.
func (r SeenRecord) Item() NewsItem {
	return NewsItem{
		Title:       r.TitleExcerpt,
		URL:         r.URL,
		Source:      r.Source,
		PublishedAt: r.PublishedAt,
		Fingerprint: r.Fingerprint,
	}
}

// Preference keys accepted by the subscriber registry.
const (
	PrefInstantNotifications = "instant_notifications"
	PrefDailySummary         = "daily_summary"
)

// Preferences holds the delivery settings of one subscriber.
type Preferences struct {
	InstantNotifications bool
	DailySummary         bool
	JoinedAt             time.Time
	LastActivityAt       time.Time
}

// DefaultPreferences returns the settings of a new subscriber.
func DefaultPreferences(now time.Time) Preferences {
	return Preferences{
		InstantNotifications: true,
		DailySummary:         true,
		JoinedAt:             now.UTC(),
		LastActivityAt:       now.UTC(),
	}
}

// Subscriber is a chat that receives news.
type Subscriber struct {
	ID          int64
	Preferences Preferences
}

// Roster is the persisted state of the subscriber registry.
type Roster struct {
	IDs         []int64
	Preferences map[int64]Preferences
	UpdatedAt   time.Time
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
