package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNewFingerprint_Normalization(t *testing.T) {
	base := NewFingerprint("Coin X rallies 10%", "https://e.x/a", "CoinDesk")

	tests := []struct {
		name   string
		title  string
		link   string
		source string
		same   bool
	}{
		{name: "identical", title: "Coin X rallies 10%", link: "https://e.x/a", source: "CoinDesk", same: true},
		{name: "case and whitespace", title: "  coin x   RALLIES 10% ", link: "https://e.x/a", source: "coindesk", same: true},
		{name: "query string", title: "Coin X rallies 10%", link: "https://e.x/a?utm=1", source: "CoinDesk", same: true},
		{name: "fragment and trailing slash", title: "Coin X rallies 10%", link: "HTTPS://E.X/a/#top", source: "CoinDesk", same: true},
		{name: "different source", title: "Coin X rallies 10%", link: "https://e.x/a", source: "NewsBTC", same: false},
		{name: "different path", title: "Coin X rallies 10%", link: "https://e.x/b", source: "CoinDesk", same: false},
		{name: "different title", title: "Coin X falls 10%", link: "https://e.x/a", source: "CoinDesk", same: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewFingerprint(tt.title, tt.link, tt.source)
			if (got == base) != tt.same {
				t.Errorf("fingerprint equality = %v, want %v", got == base, tt.same)
			}
		})
	}
}

func TestFingerprint_TextRoundTrip(t *testing.T) {
	fp := NewFingerprint("t", "https://e.x/a", "s")

	data, err := json.Marshal(map[string]Fingerprint{"fp": fp})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]Fingerprint
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["fp"] != fp {
		t.Errorf("round trip = %s, want %s", got["fp"], fp)
	}
}

func TestParseFingerprint_Invalid(t *testing.T) {
	for _, s := range []string{"", "abc", "zz" + NewFingerprint("a", "b", "c").String()[2:], "12345"} {
		if _, err := ParseFingerprint(s); err == nil {
			t.Errorf("ParseFingerprint(%q): expected error", s)
		}
	}
}

func TestNewSeenRecord(t *testing.T) {
	long := ""
	for i := 0; i < 150; i++ {
		long += "й"
	}
	published := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	recorded := published.Add(time.Hour)
	item := NewNewsItem(long, "https://e.x/a", "CoinDesk", "", published)

	got := NewSeenRecord(item, recorded)
	want := SeenRecord{
		Fingerprint:  item.Fingerprint,
		TitleExcerpt: long[:2*TitleExcerptLen],
		Source:       "CoinDesk",
		URL:          "https://e.x/a",
		PublishedAt:  published,
		RecordedAt:   recorded,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NewSeenRecord mismatch (-want +got):\n%s", diff)
	}
}

func TestSeenRecord_Timestamp(t *testing.T) {
	published := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	r := SeenRecord{PublishedAt: published}
	if got := r.Timestamp(); !got.Equal(published) {
		t.Errorf("Timestamp() = %v, want published fallback %v", got, published)
	}
	r.RecordedAt = published.Add(time.Hour)
	if got := r.Timestamp(); !got.Equal(r.RecordedAt) {
		t.Errorf("Timestamp() = %v, want %v", got, r.RecordedAt)
	}
}
