package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PAPERTRADER_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PAPERTRADER_* environment variable overrides, and
// returns the final Config. A missing file is not an error: defaults and the
// environment still apply. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PAPERTRADER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setStringSlice(&cfg.Symbols, "SYMBOLS")
	setDecimal(&cfg.InitialCash, "INITIAL_CASH")

	// ── Market ──
	setStr(&cfg.Market.Source, "MARKET_SOURCE")
	setStr(&cfg.Market.RestURL, "MARKET_REST_URL")
	setStr(&cfg.Market.WSURL, "MARKET_WS_URL")
	setInt(&cfg.Market.HistoryLimit, "MARKET_HISTORY_LIMIT")
	setInt(&cfg.Market.HistorySize, "MARKET_HISTORY_SIZE")
	setDuration(&cfg.Market.Bucket, "MARKET_BUCKET")

	// ── Broker ──
	setStr(&cfg.Broker.Kind, "BROKER_KIND")
	setStr(&cfg.Broker.BaseURL, "BROKER_BASE_URL")
	setStr(&cfg.Broker.APIKey, "BROKER_API_KEY")
	setStr(&cfg.Broker.APISecret, "BROKER_API_SECRET")
	setDuration(&cfg.Broker.Latency, "BROKER_LATENCY")
	setDuration(&cfg.Broker.Timeout, "BROKER_TIMEOUT")
	setFloat64(&cfg.Broker.RatePerSec, "BROKER_RATE_PER_SEC")

	// ── Executor ──
	setDuration(&cfg.Executor.BrokerTimeout, "EXECUTOR_BROKER_TIMEOUT")
	setDuration(&cfg.Executor.DedupTTL, "EXECUTOR_DEDUP_TTL")

	// ── Policy ──
	setStr(&cfg.Policy.Kind, "POLICY_KIND")
	setStr(&cfg.Policy.APIKey, "POLICY_API_KEY")
	setStr(&cfg.Policy.Model, "POLICY_MODEL")
	setDuration(&cfg.Policy.Timeout, "POLICY_TIMEOUT")
	setFloat64(&cfg.Policy.Momentum.StdDevThreshold, "POLICY_MOMENTUM_STD_DEV_THRESHOLD")

	// ── Automation ──
	setBool(&cfg.Automation.Enabled, "AUTOMATION_ENABLED")
	setStr(&cfg.Automation.Symbol, "AUTOMATION_SYMBOL")
	setDuration(&cfg.Automation.Interval, "AUTOMATION_INTERVAL")
	setFloat64(&cfg.Automation.ConfidenceThreshold, "AUTOMATION_CONFIDENCE_THRESHOLD")
	setDecimal(&cfg.Automation.BuyFraction, "AUTOMATION_BUY_FRACTION")
	setDecimal(&cfg.Automation.SellFraction, "AUTOMATION_SELL_FRACTION")
	setDecimal(&cfg.Automation.MinNotional, "AUTOMATION_MIN_NOTIONAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "SERVER_RATE_LIMIT")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "REDIS_KEY_PREFIX")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	// GEMINI_API_KEY is honoured when no explicit override is set.
	if cfg.Policy.APIKey == "" {
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			cfg.Policy.APIKey = v
		}
	}
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present, non-empty and parses.
// ---------------------------------------------------------------------------

func getenv(key string) string {
	return os.Getenv(EnvPrefix + key)
}

func setStr(dst *string, key string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
