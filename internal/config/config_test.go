package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"cryptonews_bot/internal/model"
)

var envKeys = []string{
	"TELEGRAM_BOT_TOKEN", "LOG_LEVEL", "ALLOWED_USERS", "ADMIN_USER_IDS",
	"STORAGE_BACKEND", "DATA_DIR", "DATABASE_PATH", "FEEDS_FILE",
	"POLL_INTERVAL", "FIRST_POLL_DELAY", "MAX_NEWS_PER_POLL", "MAX_ENTRIES_PER_FEED",
	"RECENCY_WINDOW", "RETENTION_WINDOW", "REQUEST_TIMEOUT", "FETCH_CONCURRENCY",
	"SCRAPE_ARTICLES", "SEND_PAUSE", "CLEANUP_TIME", "DIGEST_TIME", "TIMEZONE",
	"AI_PROVIDER", "GEMINI_API_KEY", "GEMINI_MODEL", "OPENAI_API_KEY", "OPENAI_MODEL",
	"OPENAI_BASE_URL", "AI_TIMEOUT", "AI_DAILY_LIMIT", "ANALYSIS_LANGUAGE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

var compareLocations = cmp.Comparer(func(a, b *time.Location) bool {
	return a.String() == b.String()
})

func defaults(t *testing.T) *Config {
	t.Helper()
	baku, err := time.LoadLocation("Asia/Baku")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return &Config{
		TelegramBotToken:  "test-token",
		LogLevel:          "info",
		StorageBackend:    StorageFile,
		DataDir:           "./data",
		DatabasePath:      "./data/bot.db",
		Sources:           DefaultSources(),
		PollInterval:      90 * time.Second,
		FirstPollDelay:    10 * time.Second,
		MaxNewsPerPoll:    5,
		MaxEntriesPerFeed: 10,
		RecencyWindow:     24 * time.Hour,
		RetentionWindow:   24 * time.Hour,
		RequestTimeout:    10 * time.Second,
		FetchConcurrency:  4,
		ScrapeArticles:    true,
		SendPause:         50 * time.Millisecond,
		CleanupTime:       0,
		DigestTime:        5 * time.Minute,
		Location:          baku,
		AIProvider:        ProviderGemini,
		GeminiModel:       "gemini-2.0-flash",
		OpenAIModel:       "gpt-4o-mini",
		AITimeout:         15 * time.Second,
		AnalysisLanguage:  "English",
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    func(c *Config)
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name: "token only, defaults applied",
			env:  map[string]string{},
			want: func(*Config) {},
		},
		{
			name: "overrides",
			env: map[string]string{
				"LOG_LEVEL":         "debug",
				"ADMIN_USER_IDS":    "111, 222",
				"ALLOWED_USERS":     " 10 , 20 , ",
				"STORAGE_BACKEND":   "SQLite",
				"DATABASE_PATH":     "/tmp/bot.db",
				"POLL_INTERVAL":     "2m",
				"MAX_NEWS_PER_POLL": "3",
				"SCRAPE_ARTICLES":   "false",
				"CLEANUP_TIME":      "03:30",
				"DIGEST_TIME":       "21:00",
				"TIMEZONE":          "UTC",
				"AI_PROVIDER":       "openai",
				"OPENAI_API_KEY":    "sk-test",
				"OPENAI_BASE_URL":   "http://localhost:11434/v1",
				"AI_DAILY_LIMIT":    "100",
			},
			want: func(c *Config) {
				c.LogLevel = "debug"
				c.AdminUsers = []int64{111, 222}
				c.AllowedUsers = []int64{10, 20}
				c.StorageBackend = StorageSQLite
				c.DatabasePath = "/tmp/bot.db"
				c.PollInterval = 2 * time.Minute
				c.MaxNewsPerPoll = 3
				c.ScrapeArticles = false
				c.CleanupTime = 3*time.Hour + 30*time.Minute
				c.DigestTime = 21 * time.Hour
				c.Location = time.UTC
				c.AIProvider = ProviderOpenAI
				c.OpenAIAPIKey = "sk-test"
				c.OpenAIBaseURL = "http://localhost:11434/v1"
				c.AIDailyLimit = 100
			},
		},
		{name: "invalid admin id", env: map[string]string{"ADMIN_USER_IDS": "123,abc"}, wantErr: true},
		{name: "invalid duration", env: map[string]string{"POLL_INTERVAL": "often"}, wantErr: true},
		{name: "negative duration", env: map[string]string{"RECENCY_WINDOW": "-1h"}, wantErr: true},
		{name: "zero cap", env: map[string]string{"MAX_NEWS_PER_POLL": "0"}, wantErr: true},
		{name: "invalid clock", env: map[string]string{"DIGEST_TIME": "25:00"}, wantErr: true},
		{name: "invalid timezone", env: map[string]string{"TIMEZONE": "Mars/Olympus"}, wantErr: true},
		{name: "invalid backend", env: map[string]string{"STORAGE_BACKEND": "postgres"}, wantErr: true},
		{name: "invalid provider", env: map[string]string{"AI_PROVIDER": "oracle"}, wantErr: true},
		{name: "missing feeds file", env: map[string]string{"FEEDS_FILE": "/nonexistent/feeds.yaml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if tt.name != "missing token" {
				t.Setenv("TELEGRAM_BOT_TOKEN", "test-token")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := defaults(t)
			tt.want(want)
			if diff := cmp.Diff(want, got, compareLocations); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadOfflineWithoutToken(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadOffline()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TelegramBotToken != "" {
		t.Errorf("token = %q, want empty", cfg.TelegramBotToken)
	}
}

func TestLoadFeedsFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	data := []byte("sources:\n  - name: Cointelegraph\n    url: https://cointelegraph.com/rss\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write feeds file: %v", err)
	}
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("FEEDS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []model.Source{{Name: "Cointelegraph", URL: "https://cointelegraph.com/rss"}}
	if diff := cmp.Diff(want, cfg.Sources); diff != "" {
		t.Errorf("Sources mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSources(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    []model.Source
		wantErr bool
	}{
		{
			name: "trims fields",
			yaml: "sources:\n  - name: ' NewsBTC '\n    url: ' https://www.newsbtc.com/feed/ '\n",
			want: []model.Source{{Name: "NewsBTC", URL: "https://www.newsbtc.com/feed/"}},
		},
		{name: "empty list", yaml: "sources: []\n", wantErr: true},
		{name: "not yaml", yaml: "sources: [", wantErr: true},
		{name: "missing name", yaml: "sources:\n  - url: https://a.b/feed\n", wantErr: true},
		{name: "bad scheme", yaml: "sources:\n  - name: A\n    url: ftp://a.b/feed\n", wantErr: true},
		{
			name:    "duplicate name",
			yaml:    "sources:\n  - name: A\n    url: https://a.b/1\n  - name: A\n    url: https://a.b/2\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSources([]byte(tt.yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseSources() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "00:05", want: 5 * time.Minute},
		{in: "23:59", want: 23*time.Hour + 59*time.Minute},
		{in: "7:30", want: 7*time.Hour + 30*time.Minute},
		{in: "noon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClock(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseClock(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAccessChecks(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		userID      int64
		wantAllowed bool
		wantAdmin   bool
	}{
		{name: "empty lists", userID: 42, wantAllowed: true, wantAdmin: false},
		{name: "admin", cfg: Config{AdminUsers: []int64{1, 2}}, userID: 2, wantAllowed: true, wantAdmin: true},
		{name: "not allowed", cfg: Config{AllowedUsers: []int64{10}}, userID: 99, wantAllowed: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.IsUserAllowed(tt.userID); got != tt.wantAllowed {
				t.Errorf("IsUserAllowed() = %v, want %v", got, tt.wantAllowed)
			}
			if got := tt.cfg.IsAdmin(tt.userID); got != tt.wantAdmin {
				t.Errorf("IsAdmin() = %v, want %v", got, tt.wantAdmin)
			}
		})
	}
}

func TestAIEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{name: "gemini with key", cfg: Config{AIProvider: ProviderGemini, GeminiAPIKey: "k"}, want: true},
		{name: "gemini without key", cfg: Config{AIProvider: ProviderGemini}, want: false},
		{name: "openai with key", cfg: Config{AIProvider: ProviderOpenAI, OpenAIAPIKey: "k"}, want: true},
		{name: "none", cfg: Config{AIProvider: ProviderNone, GeminiAPIKey: "k"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.AIEnabled(); got != tt.want {
				t.Errorf("AIEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}
