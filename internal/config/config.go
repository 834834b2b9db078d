// Package config defines the top-level configuration for papertrader and
// provides validation helpers.
package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PAPERTRADER_* environment variables.
type Config struct {
	Mode        string           `toml:"mode"`
	LogLevel    string           `toml:"log_level"`
	Symbols     []string         `toml:"symbols"`
	InitialCash decimal.Decimal  `toml:"initial_cash"`
	Market      MarketConfig     `toml:"market"`
	Broker      BrokerConfig     `toml:"broker"`
	Executor    ExecutorConfig   `toml:"executor"`
	Policy      PolicyConfig     `toml:"policy"`
	Automation  AutomationConfig `toml:"automation"`
	Server      ServerConfig     `toml:"server"`
	Redis       RedisConfig      `toml:"redis"`
	Postgres    PostgresConfig   `toml:"postgres"`
	Notify      NotifyConfig     `toml:"notify"`
}

// MarketConfig selects where prices come from and how history is kept.
// Source "binance" streams from the exchange; "bus" mirrors the prices
// another papertrader instance publishes on Redis.
type MarketConfig struct {
	Source       string   `toml:"source"`
	RestURL      string   `toml:"rest_url"`
	WSURL        string   `toml:"ws_url"`
	HistoryLimit int      `toml:"history_limit"`
	HistorySize  int      `toml:"history_size"`
	Bucket       duration `toml:"bucket"`
	Timeout      duration `toml:"timeout"`
}

// BrokerConfig selects the execution venue. Kind "mock" simulates fills;
// "binance" places signed market orders (use the testnet base_url).
type BrokerConfig struct {
	Kind       string   `toml:"kind"`
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"api_key"`
	APISecret  string   `toml:"api_secret"`
	Latency    duration `toml:"latency"`
	Timeout    duration `toml:"timeout"`
	RatePerSec float64  `toml:"rate_per_sec"`
	Burst      int      `toml:"burst"`
}

// ExecutorConfig tunes the execution engine.
type ExecutorConfig struct {
	BrokerTimeout duration `toml:"broker_timeout"`
	DedupTTL      duration `toml:"dedup_ttl"`
}

// PolicyConfig selects the decision policy used by automation.
type PolicyConfig struct {
	Kind     string         `toml:"kind"`
	APIKey   string         `toml:"api_key"`
	Model    string         `toml:"model"`
	Timeout  duration       `toml:"timeout"`
	Momentum MomentumConfig `toml:"momentum"`
}

// MomentumConfig holds the rule-based policy parameters.
type MomentumConfig struct {
	StdDevThreshold float64 `toml:"std_dev_threshold"`
	MinPoints       int     `toml:"min_points"`
}

// AutomationConfig holds the loop schedule, threshold and sizing.
type AutomationConfig struct {
	Enabled             bool            `toml:"enabled"`
	Symbol              string          `toml:"symbol"`
	Interval            duration        `toml:"interval"`
	ConfidenceThreshold float64         `toml:"confidence_threshold"`
	BuyFraction         decimal.Decimal `toml:"buy_fraction"`
	SellFraction        decimal.Decimal `toml:"sell_fraction"`
	MinNotional         decimal.Decimal `toml:"min_notional"`
	HistoryWindow       int             `toml:"history_window"`
}

// ServerConfig holds HTTP API server settings.
type ServerConfig struct {
	Enabled        bool     `toml:"enabled"`
	Port           int      `toml:"port"`
	APIKey         string   `toml:"api_key"`
	CORSOrigins    []string `toml:"cors_origins"`
	RateLimit      int      `toml:"rate_limit"`       // requests per second per client IP
	OrderRateLimit int      `toml:"order_rate_limit"` // manual orders per second
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// PostgresConfig holds archive database connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	DiscordUsername   string   `toml:"discord_username"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding of values like "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with sensible defaults.
func Defaults() Config {
	return Config{
		Mode:        "paper",
		LogLevel:    "info",
		Symbols:     []string{"BTC", "ETH", "SOL", "DOGE"},
		InitialCash: decimal.NewFromInt(100_000),
		Market: MarketConfig{
			Source:       "binance",
			RestURL:      "https://api.binance.com",
			WSURL:        "wss://stream.binance.com:9443",
			HistoryLimit: 60,
			HistorySize:  50,
			Bucket:       duration{time.Minute},
			Timeout:      duration{10 * time.Second},
		},
		Broker: BrokerConfig{
			Kind:       "mock",
			BaseURL:    "https://testnet.binance.vision",
			Latency:    duration{500 * time.Millisecond},
			Timeout:    duration{10 * time.Second},
			RatePerSec: 5,
			Burst:      1,
		},
		Executor: ExecutorConfig{
			BrokerTimeout: duration{15 * time.Second},
			DedupTTL:      duration{2 * time.Minute},
		},
		Policy: PolicyConfig{
			Kind:    "gemini",
			Model:   "gemini-2.5-flash",
			Timeout: duration{15 * time.Second},
			Momentum: MomentumConfig{
				StdDevThreshold: 1.5,
				MinPoints:       5,
			},
		},
		Automation: AutomationConfig{
			Enabled:             false,
			Symbol:              "BTC",
			Interval:            duration{6 * time.Second},
			ConfidenceThreshold: 65,
			BuyFraction:         decimal.RequireFromString("0.10"),
			SellFraction:        decimal.RequireFromString("0.50"),
			MinNotional:         decimal.NewFromInt(5),
			HistoryWindow:       20,
		},
		Server: ServerConfig{
			Enabled:        true,
			Port:           8000,
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:      20,
			OrderRateLimit: 5,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "papertrader:",
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "papertrader",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Notify: NotifyConfig{
			DiscordUsername: "papertrader",
			Events:          []string{"order_filled", "order_failed", "consistency_error"},
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"paper":   true,
	"monitor": true,
}

var validLogLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

var (
	validSources  = map[string]bool{"binance": true, "bus": true}
	validBrokers  = map[string]bool{"mock": true, "binance": true}
	validPolicies = map[string]bool{"gemini": true, "momentum": true, "noop": true}
)

// SlogLevel maps LogLevel onto slog, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	if lvl, ok := validLogLevels[strings.ToLower(c.LogLevel)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// SymbolList parses and normalizes Symbols.
func (c *Config) SymbolList() ([]domain.Symbol, error) {
	out := make([]domain.Symbol, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		sym, err := domain.ParseSymbol(s)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, nil
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: paper, monitor)", c.Mode))
	}
	if _, ok := validLogLevels[strings.ToLower(c.LogLevel)]; !ok {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Symbols
	symbols, err := c.SymbolList()
	switch {
	case err != nil:
		errs = append(errs, "symbols: "+err.Error())
	case len(symbols) == 0:
		errs = append(errs, "symbols: at least one symbol is required")
	}
	if !c.InitialCash.IsPositive() {
		errs = append(errs, "initial_cash must be > 0")
	}

	// Market
	if !validSources[c.Market.Source] {
		errs = append(errs, fmt.Sprintf("market: unknown source %q (valid: binance, bus)", c.Market.Source))
	}
	if c.Market.Source == "bus" && !c.Redis.Enabled {
		errs = append(errs, "market: source \"bus\" requires redis.enabled")
	}
	if c.Market.HistorySize < 1 {
		errs = append(errs, "market: history_size must be >= 1")
	}
	if c.Market.Bucket.Duration <= 0 {
		errs = append(errs, "market: bucket must be > 0")
	}

	// Broker
	if !validBrokers[c.Broker.Kind] {
		errs = append(errs, fmt.Sprintf("broker: unknown kind %q (valid: mock, binance)", c.Broker.Kind))
	}
	if c.Broker.Kind == "binance" && (c.Broker.APIKey == "" || c.Broker.APISecret == "") {
		errs = append(errs, "broker: api_key and api_secret are required for kind binance")
	}
	if c.Broker.Latency.Duration < 0 {
		errs = append(errs, "broker: latency must be >= 0")
	}

	// Policy
	if !validPolicies[c.Policy.Kind] {
		errs = append(errs, fmt.Sprintf("policy: unknown kind %q (valid: gemini, momentum, noop)", c.Policy.Kind))
	}
	if c.Policy.Momentum.StdDevThreshold <= 0 {
		errs = append(errs, "policy: momentum.std_dev_threshold must be > 0")
	}

	// Automation
	a := c.Automation
	if sym, err := domain.ParseSymbol(a.Symbol); err != nil || !slices.Contains(symbols, sym) {
		errs = append(errs, fmt.Sprintf("automation: symbol %q must be one of symbols", a.Symbol))
	}
	if a.Interval.Duration <= 0 {
		errs = append(errs, "automation: interval must be > 0")
	}
	if a.ConfidenceThreshold < 0 || a.ConfidenceThreshold > 100 {
		errs = append(errs, "automation: confidence_threshold must be within 0-100")
	}
	one := decimal.NewFromInt(1)
	if !a.BuyFraction.IsPositive() || a.BuyFraction.GreaterThan(one) {
		errs = append(errs, "automation: buy_fraction must be within (0, 1]")
	}
	if !a.SellFraction.IsPositive() || a.SellFraction.GreaterThan(one) {
		errs = append(errs, "automation: sell_fraction must be within (0, 1]")
	}
	if a.MinNotional.IsNegative() {
		errs = append(errs, "automation: min_notional must be >= 0")
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" && c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
