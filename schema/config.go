package schema

import "strings"

const (
	// DefaultHomeURL is loaded by new and fallback tabs.
	DefaultHomeURL = "https://www.google.com"
	// DefaultTabTitle is shown until a page supplies a title.
	DefaultTabTitle = "New Tab"
	// DefaultHistoryMax bounds the number of stored history entries.
	DefaultHistoryMax = 100
	// HistoryKey is the key-value store key holding encoded history entries.
	HistoryKey = "history"
)

// BrowserConfig defines defaults for the browser core.
type BrowserConfig struct {
	// StartURL is loaded by the initial tab. Empty means HomeURL.
	StartURL     string
	HomeURL      string
	DefaultTitle string
	UserAgent    string
	HistoryMax   int
}

// NormalizeBrowserConfig applies defaults.
func NormalizeBrowserConfig(cfg BrowserConfig) BrowserConfig {
	cfg.HomeURL = strings.TrimSpace(cfg.HomeURL)
	if cfg.HomeURL == "" {
		cfg.HomeURL = DefaultHomeURL
	}
	cfg.StartURL = strings.TrimSpace(cfg.StartURL)
	if cfg.StartURL == "" {
		cfg.StartURL = cfg.HomeURL
	}
	if cfg.DefaultTitle == "" {
		cfg.DefaultTitle = DefaultTabTitle
	}
	if cfg.HistoryMax <= 0 {
		cfg.HistoryMax = DefaultHistoryMax
	}
	return cfg
}
