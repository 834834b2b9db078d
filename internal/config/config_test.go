package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	symbols, err := cfg.SymbolList()
	require.NoError(t, err)
	require.Equal(t, domain.DefaultSymbols, symbols)
	require.Equal(t, "100000", cfg.InitialCash.String())
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, time.Minute, cfg.Market.Bucket.Duration)
	require.Equal(t, "0.1", cfg.Automation.BuyFraction.String())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "monitor"
symbols = ["btcusdt", "eth"]
initial_cash = 2500.5

[automation]
symbol = "ETH"
interval = "30s"
buy_fraction = "0.25"

[policy]
kind = "momentum"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "monitor", cfg.Mode)
	require.Equal(t, "2500.5", cfg.InitialCash.String())
	require.Equal(t, 30*time.Second, cfg.Automation.Interval.Duration)
	require.Equal(t, "0.25", cfg.Automation.BuyFraction.String())
	require.Equal(t, "momentum", cfg.Policy.Kind)
	// Untouched sections keep their defaults.
	require.Equal(t, "0.5", cfg.Automation.SellFraction.String())
	require.Equal(t, 8000, cfg.Server.Port)

	symbols, err := cfg.SymbolList()
	require.NoError(t, err)
	require.Equal(t, []domain.Symbol{"BTC", "ETH"}, symbols)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, "paper", cfg.Mode)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, `mode = `))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PAPERTRADER_MODE", "monitor")
	t.Setenv("PAPERTRADER_SYMBOLS", "BTC, SOL ,")
	t.Setenv("PAPERTRADER_INITIAL_CASH", "5000")
	t.Setenv("PAPERTRADER_AUTOMATION_INTERVAL", "1m")
	t.Setenv("PAPERTRADER_AUTOMATION_ENABLED", "true")
	t.Setenv("PAPERTRADER_SERVER_PORT", "not-a-number")
	t.Setenv("PAPERTRADER_POLICY_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "gem-key")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "monitor", cfg.Mode)
	require.Equal(t, []string{"BTC", "SOL"}, cfg.Symbols)
	require.Equal(t, "5000", cfg.InitialCash.String())
	require.Equal(t, time.Minute, cfg.Automation.Interval.Duration)
	require.True(t, cfg.Automation.Enabled)
	require.Equal(t, 8000, cfg.Server.Port, "unparsable override is ignored")
	require.Equal(t, "gem-key", cfg.Policy.APIKey)
}

func TestValidateCollectsErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "unknown mode and log level",
			mutate: func(c *Config) { c.Mode = "live"; c.LogLevel = "loud" },
			want:   []string{`unknown mode "live"`, `unknown log_level "loud"`},
		},
		{
			name:   "automation symbol outside set",
			mutate: func(c *Config) { c.Automation.Symbol = "XRP" },
			want:   []string{`automation: symbol "XRP" must be one of symbols`},
		},
		{
			name: "binance broker without credentials",
			mutate: func(c *Config) {
				c.Broker.Kind = "binance"
			},
			want: []string{"broker: api_key and api_secret are required"},
		},
		{
			name:   "bus source without redis",
			mutate: func(c *Config) { c.Market.Source = "bus" },
			want:   []string{`market: source "bus" requires redis.enabled`},
		},
		{
			name: "bad sizing",
			mutate: func(c *Config) {
				c.Automation.BuyFraction = c.Automation.BuyFraction.Neg()
				c.Automation.ConfidenceThreshold = 101
			},
			want: []string{"buy_fraction must be within (0, 1]", "confidence_threshold must be within 0-100"},
		},
		{
			name:   "half-configured telegram",
			mutate: func(c *Config) { c.Notify.TelegramToken = "t" },
			want:   []string{"telegram_token and telegram_chat_id must be set together"},
		},
		{
			name:   "no symbols",
			mutate: func(c *Config) { c.Symbols = nil },
			want:   []string{"symbols: at least one symbol is required"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			for _, w := range tt.want {
				require.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Broker.APISecret = "s3cret"
	cfg.Policy.APIKey = "gem"
	cfg.Postgres.DSN = "postgres://u:p@h/db"

	red := RedactedConfig(&cfg)
	require.Equal(t, "***", red.Broker.APISecret)
	require.Equal(t, "***", red.Policy.APIKey)
	require.Equal(t, "***", red.Postgres.DSN)
	require.Empty(t, red.Broker.APIKey, "empty secrets stay empty")

	red.Symbols[0] = "XRP"
	require.Equal(t, "BTC", cfg.Symbols[0])
	require.Equal(t, "s3cret", cfg.Broker.APISecret)
}
