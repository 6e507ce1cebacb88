package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for loanraild.
type Config struct {
	ListenAddress string         `yaml:"listen"`
	JournalPath   string         `yaml:"journal"`
	Provider      ProviderConfig `yaml:"provider"`
	Quote         QuoteConfig    `yaml:"quote"`
	Watcher       WatcherConfig  `yaml:"watcher"`
	Admin         AdminConfig    `yaml:"admin"`
	Logging       LoggingConfig  `yaml:"logging"`
}

// ProviderConfig points at the lending provider API.
type ProviderConfig struct {
	BaseURL      string   `yaml:"base_url"`
	Token        string   `yaml:"token"`
	TokenEnv     string   `yaml:"token_env"`
	Timeout      Duration `yaml:"timeout"`
	RatePerSec   float64  `yaml:"rate_per_sec"`
	RateBurst    int      `yaml:"rate_burst"`
	LTVPercent   int      `yaml:"ltv_percent"`
	ExchangeMode bool     `yaml:"exchange_mode"`
}

// QuoteConfig tunes the estimate retry engine.
type QuoteConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	Debounce    Duration `yaml:"debounce"`
	CoolDown    Duration `yaml:"cool_down"`
}

// WatcherConfig tunes post-settlement loan polling.
type WatcherConfig struct {
	Interval Duration `yaml:"interval"`
}

// AdminConfig guards the operational HTTP surface.
type AdminConfig struct {
	Token string `yaml:"token"`
}

// LoggingConfig selects log destinations beyond stdout.
type LoggingConfig struct {
	Environment string `yaml:"environment"`
	FilePath    string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7087"
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = "/var/data/loanrail.sqlite"
	}
	if cfg.Provider.Timeout.Duration == 0 {
		cfg.Provider.Timeout.Duration = 15 * time.Second
	}
	if cfg.Provider.RatePerSec <= 0 {
		cfg.Provider.RatePerSec = 8
	}
	if cfg.Provider.RateBurst <= 0 {
		cfg.Provider.RateBurst = 16
	}
	if cfg.Provider.LTVPercent <= 0 {
		cfg.Provider.LTVPercent = 50
	}
	if cfg.Quote.MaxAttempts <= 0 {
		cfg.Quote.MaxAttempts = 3
	}
	if cfg.Quote.Debounce.Duration == 0 {
		cfg.Quote.Debounce.Duration = 400 * time.Millisecond
	}
	if cfg.Quote.CoolDown.Duration == 0 {
		cfg.Quote.CoolDown.Duration = time.Minute
	}
	if cfg.Watcher.Interval.Duration == 0 {
		cfg.Watcher.Interval.Duration = 8 * time.Second
	}
	if cfg.Logging.Environment == "" {
		cfg.Logging.Environment = "development"
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Provider.BaseURL) == "" {
		return fmt.Errorf("provider base_url must be configured")
	}
	if cfg.Provider.Token == "" && cfg.Provider.TokenEnv == "" {
		return fmt.Errorf("provider token or token_env must be configured")
	}
	if cfg.Watcher.Interval.Duration < 3*time.Second {
		return fmt.Errorf("watcher interval below 3s floor")
	}
	return nil
}

// ProviderToken resolves the bearer token, preferring the environment
// variable so secrets stay out of config files.
func (c Config) ProviderToken() (string, error) {
	if c.Provider.TokenEnv != "" {
		if v := os.Getenv(c.Provider.TokenEnv); v != "" {
			return v, nil
		}
		if c.Provider.Token == "" {
			return "", fmt.Errorf("environment variable %s is empty", c.Provider.TokenEnv)
		}
	}
	return c.Provider.Token, nil
}
