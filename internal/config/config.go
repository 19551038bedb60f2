// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"cryptonews_bot/internal/model"
)

// AI providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// Storage backends.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	LogLevel         string
	AllowedUsers     []int64
	AdminUsers       []int64

	StorageBackend string
	DataDir        string
	DatabasePath   string

	FeedsFile         string
	Sources           []model.Source
	PollInterval      time.Duration
	FirstPollDelay    time.Duration
	MaxNewsPerPoll    int
	MaxEntriesPerFeed int
	RecencyWindow     time.Duration
	RetentionWindow   time.Duration
	RequestTimeout    time.Duration
	FetchConcurrency  int
	ScrapeArticles    bool
	SendPause         time.Duration

	// CleanupTime and DigestTime are offsets from midnight in Location.
	CleanupTime time.Duration
	DigestTime  time.Duration
	Location    *time.Location

	AIProvider       string
	GeminiAPIKey     string
	GeminiModel      string
	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIBaseURL    string
	AITimeout        time.Duration
	AIDailyLimit     int
	AnalysisLanguage string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	return load(token)
}

// LoadOffline reads the configuration without requiring a bot token, for
// tools that only touch storage.
func LoadOffline() (*Config, error) {
	return load(os.Getenv("TELEGRAM_BOT_TOKEN"))
}

func load(token string) (*Config, error) {
	p := &parser{}
	cfg := &Config{
		TelegramBotToken: token,
		LogLevel:         p.str("LOG_LEVEL", "info"),
		AllowedUsers:     p.ids("ALLOWED_USERS"),
		AdminUsers:       p.ids("ADMIN_USER_IDS"),

		StorageBackend: strings.ToLower(p.str("STORAGE_BACKEND", StorageFile)),
		DataDir:        p.str("DATA_DIR", "./data"),
		DatabasePath:   p.str("DATABASE_PATH", "./data/bot.db"),

		FeedsFile:         p.str("FEEDS_FILE", ""),
		PollInterval:      p.duration("POLL_INTERVAL", 90*time.Second),
		FirstPollDelay:    p.duration("FIRST_POLL_DELAY", 10*time.Second),
		MaxNewsPerPoll:    p.positive("MAX_NEWS_PER_POLL", 5),
		MaxEntriesPerFeed: p.positive("MAX_ENTRIES_PER_FEED", 10),
		RecencyWindow:     p.duration("RECENCY_WINDOW", 24*time.Hour),
		RetentionWindow:   p.duration("RETENTION_WINDOW", 24*time.Hour),
		RequestTimeout:    p.duration("REQUEST_TIMEOUT", 10*time.Second),
		FetchConcurrency:  p.positive("FETCH_CONCURRENCY", 4),
		ScrapeArticles:    p.boolean("SCRAPE_ARTICLES", true),
		SendPause:         p.duration("SEND_PAUSE", 50*time.Millisecond),

		CleanupTime: p.clock("CLEANUP_TIME", "00:00"),
		DigestTime:  p.clock("DIGEST_TIME", "00:05"),
		Location:    p.location("TIMEZONE", "Asia/Baku"),

		AIProvider:       strings.ToLower(p.str("AI_PROVIDER", ProviderGemini)),
		GeminiAPIKey:     p.str("GEMINI_API_KEY", ""),
		GeminiModel:      p.str("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:     p.str("OPENAI_API_KEY", ""),
		OpenAIModel:      p.str("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:    p.str("OPENAI_BASE_URL", ""),
		AITimeout:        p.duration("AI_TIMEOUT", 15*time.Second),
		AIDailyLimit:     p.nonNegative("AI_DAILY_LIMIT", 0),
		AnalysisLanguage: p.str("ANALYSIS_LANGUAGE", "English"),
	}
	if p.err != nil {
		return nil, p.err
	}

	switch cfg.StorageBackend {
	case StorageFile, StorageSQLite:
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q: want %s or %s", cfg.StorageBackend, StorageFile, StorageSQLite)
	}
	switch cfg.AIProvider {
	case ProviderGemini, ProviderOpenAI, ProviderNone:
	default:
		return nil, fmt.Errorf("invalid AI_PROVIDER %q", cfg.AIProvider)
	}

	if cfg.FeedsFile == "" {
		cfg.Sources = DefaultSources()
	} else {
		sources, err := LoadSources(cfg.FeedsFile)
		if err != nil {
			return nil, err
		}
		cfg.Sources = sources
	}
	return cfg, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	return len(c.AllowedUsers) == 0 || slices.Contains(c.AllowedUsers, userID)
}

// IsAdmin checks whether a user ID may run admin commands.
// Nobody is an admin when the list is empty.
func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.AdminUsers, userID)
}

// AIEnabled reports whether a remote text generator is configured.
func (c *Config) AIEnabled() bool {
	switch c.AIProvider {
	case ProviderGemini:
		return c.GeminiAPIKey != ""
	case ProviderOpenAI:
		return c.OpenAIAPIKey != ""
	default:
		return false
	}
}

// parser reads typed environment values and keeps the first error.
type parser struct {
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err == nil && d <= 0 {
		err = fmt.Errorf("must be positive")
	}
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return d
}

func (p *parser) integer(key string, def, minValue int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err == nil && n < minValue {
		err = fmt.Errorf("must be at least %d", minValue)
	}
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return n
}

func (p *parser) positive(key string, def int) int {
	return p.integer(key, def, 1)
}

func (p *parser) nonNegative(key string, def int) int {
	return p.integer(key, def, 0)
}

func (p *parser) boolean(key string, def bool) bool {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return b
}

func (p *parser) clock(key, def string) time.Duration {
	raw := p.str(key, def)
	d, err := ParseClock(raw)
	if err != nil {
		p.fail(key, raw, err)
	}
	return d
}

func (p *parser) location(key, def string) *time.Location {
	raw := p.str(key, def)
	loc, err := time.LoadLocation(raw)
	if err != nil {
		p.fail(key, raw, err)
		return time.UTC
	}
	return loc
}

func (p *parser) ids(key string) []int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			if p.err == nil {
				p.err = fmt.Errorf("invalid user ID %q in %s: %w", s, key, err)
			}
			return nil
		}
		ids = append(ids, uid)
	}
	return ids
}

// ParseClock parses an HH:MM wall clock time into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("want HH:MM")
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
