package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loanraild.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
provider:
  base_url: https://api.example.com
  token: secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7087", cfg.ListenAddress)
	require.Equal(t, 3, cfg.Quote.MaxAttempts)
	require.Equal(t, 400*time.Millisecond, cfg.Quote.Debounce.Duration)
	require.Equal(t, time.Minute, cfg.Quote.CoolDown.Duration)
	require.Equal(t, 8*time.Second, cfg.Watcher.Interval.Duration)
	require.Equal(t, 50, cfg.Provider.LTVPercent)
	require.Equal(t, 15*time.Second, cfg.Provider.Timeout.Duration)
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, `
provider:
  base_url: https://api.example.com
  token: secret
  timeout: 30s
quote:
  debounce: 250ms
  cool_down: 90s
watcher:
  interval: 12s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.Provider.Timeout.Duration)
	require.Equal(t, 250*time.Millisecond, cfg.Quote.Debounce.Duration)
	require.Equal(t, 90*time.Second, cfg.Quote.CoolDown.Duration)
	require.Equal(t, 12*time.Second, cfg.Watcher.Interval.Duration)
}

func TestLoadRequiresBaseURL(t *testing.T) {
	path := writeConfig(t, `
provider:
  token: secret
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "base_url")
}

func TestLoadRequiresToken(t *testing.T) {
	path := writeConfig(t, `
provider:
  base_url: https://api.example.com
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "token")
}

func TestLoadRejectsFastWatcher(t *testing.T) {
	path := writeConfig(t, `
provider:
  base_url: https://api.example.com
  token: secret
watcher:
  interval: 1s
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "floor")
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	path := writeConfig(t, `
provider:
  base_url: https://api.example.com
  token: secret
  timeout: soon
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "parse duration")
}

func TestProviderTokenPrefersEnv(t *testing.T) {
	t.Setenv("LOANRAIL_TOKEN", "from-env")
	cfg := Config{Provider: ProviderConfig{Token: "from-file", TokenEnv: "LOANRAIL_TOKEN"}}
	token, err := cfg.ProviderToken()
	require.NoError(t, err)
	require.Equal(t, "from-env", token)

	t.Setenv("LOANRAIL_TOKEN", "")
	token, err = cfg.ProviderToken()
	require.NoError(t, err)
	require.Equal(t, "from-file", token)
}

func TestProviderTokenMissingEnv(t *testing.T) {
	t.Setenv("LOANRAIL_TOKEN", "")
	cfg := Config{Provider: ProviderConfig{TokenEnv: "LOANRAIL_TOKEN"}}
	_, err := cfg.ProviderToken()
	require.Error(t, err)
}
