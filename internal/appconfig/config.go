package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/webtabs/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string          `mapstructure:"state_dir" yaml:"state_dir"`
	Browser       BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	History       HistoryConfig   `mapstructure:"history" yaml:"history"`
	Downloads     DownloadsConfig `mapstructure:"downloads" yaml:"downloads"`
	HTTP          HTTPConfig      `mapstructure:"http" yaml:"http"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// BrowserConfig controls tabs and the Chrome process behind them.
type BrowserConfig struct {
	// Engine selects the renderer: chrome or stub.
	Engine       string `mapstructure:"engine" yaml:"engine"`
	StartURL     string `mapstructure:"start_url" yaml:"start_url"`
	HomeURL      string `mapstructure:"home_url" yaml:"home_url"`
	DefaultTitle string `mapstructure:"default_title" yaml:"default_title"`
	UserAgent    string `mapstructure:"user_agent" yaml:"user_agent"`
	Proxy        string `mapstructure:"proxy" yaml:"proxy"`
	Headless     bool   `mapstructure:"headless" yaml:"headless"`
	NoSandbox    bool   `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	ChromePath   string `mapstructure:"chrome_path" yaml:"chrome_path"`
	WindowWidth  int    `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int    `mapstructure:"window_height" yaml:"window_height"`
	// NavTimeout bounds a single load, in seconds.
	NavTimeout   int    `mapstructure:"navigation_timeout_seconds" yaml:"navigation_timeout_seconds"`
}

// HistoryConfig selects the history backend.
type HistoryConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxEntries int    `mapstructure:"max_entries" yaml:"max_entries"`
}

// DownloadsConfig controls where downloads land and how URLs are fetched.
type DownloadsConfig struct {
	Dir          string `mapstructure:"dir" yaml:"dir"`
	MirrorPrefix string `mapstructure:"mirror_prefix" yaml:"mirror_prefix"`
	Retries      int    `mapstructure:"retries" yaml:"retries"`
}

// HTTPConfig configures the control API.
type HTTPConfig struct {
	Addr          string `mapstructure:"addr" yaml:"addr"`
	BaseURL       string `mapstructure:"base_url" yaml:"base_url"`
	BasePath      string `mapstructure:"base_path" yaml:"base_path"`
	Token         string `mapstructure:"token" yaml:"token"`
	EnableMetrics bool   `mapstructure:"enable_metrics" yaml:"enable_metrics"`
	StreamReplay  int    `mapstructure:"stream_replay" yaml:"stream_replay"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	stateDir := filepath.Join(home, ".webtabs", "state")
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      stateDir,
		Browser: BrowserConfig{
			Engine:       "chrome",
			StartURL:     schema.DefaultHomeURL,
			HomeURL:      schema.DefaultHomeURL,
			DefaultTitle: schema.DefaultTabTitle,
			UserAgent:    "",
			Proxy:        "127.0.0.1:7890",
			Headless:     true,
			NoSandbox:    false,
			ChromePath:   "",
			WindowWidth:  1280,
			WindowHeight: 800,
			NavTimeout:   60,
		},
		History: HistoryConfig{
			Backend:    "sqlite",
			Path:       "",
			MaxEntries: schema.DefaultHistoryMax,
		},
		Downloads: DownloadsConfig{
			Dir:          filepath.Join(home, "Downloads", "webtabs"),
			MirrorPrefix: "",
			Retries:      3,
		},
		HTTP: HTTPConfig{
			Addr:          "127.0.0.1:27490",
			BaseURL:       "",
			BasePath:      "",
			Token:         "",
			EnableMetrics: true,
			StreamReplay:  500,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".webtabs", "config.yaml"), nil
}

// BrowserSettings converts the browser section for the core.
func (c Config) BrowserSettings() schema.BrowserConfig {
	return schema.NormalizeBrowserConfig(schema.BrowserConfig{
		StartURL:     c.Browser.StartURL,
		HomeURL:      c.Browser.HomeURL,
		DefaultTitle: c.Browser.DefaultTitle,
		UserAgent:    c.Browser.UserAgent,
		HistoryMax:   c.History.MaxEntries,
	})
}
