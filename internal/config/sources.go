package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"cryptonews_bot/internal/model"
)

// DefaultSources returns the built-in feed list.
func DefaultSources() []model.Source {
	return []model.Source{
		{Name: "CoinDesk", URL: "https://www.coindesk.com/arc/outboundfeeds/rss/"},
		{Name: "The Block", URL: "https://www.theblock.co/rss.xml"},
		{Name: "Crypto News", URL: "https://crypto.news/feed/"},
		{Name: "NewsBTC", URL: "https://www.newsbtc.com/feed/"},
	}
}

type sourcesFile struct {
	Sources []model.Source `yaml:"sources"`
}

// LoadSources reads the feed list from a YAML file of the form
//
//	sources:
//	  - name: CoinDesk
//	    url: https://www.coindesk.com/arc/outboundfeeds/rss/
func LoadSources(path string) ([]model.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}
	return ParseSources(data)
}

// ParseSources decodes and validates a YAML feed list.
func ParseSources(data []byte) ([]model.Source, error) {
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse feeds file: %w", err)
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("feeds file has no sources")
	}

	seen := make(map[string]bool, len(f.Sources))
	out := make([]model.Source, 0, len(f.Sources))
	for i, s := range f.Sources {
		s.Name = strings.TrimSpace(s.Name)
		s.URL = strings.TrimSpace(s.URL)
		if s.Name == "" {
			return nil, fmt.Errorf("source %d: name is required", i+1)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("source %q: duplicate name", s.Name)
		}
		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("source %q: invalid url %q", s.Name, s.URL)
		}
		seen[s.Name] = true
		out = append(out, s)
	}
	return out, nil
}
