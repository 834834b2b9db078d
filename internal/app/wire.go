package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/papertrader/internal/cache/redis"
	"github.com/alanyoungcy/papertrader/internal/config"
	"github.com/alanyoungcy/papertrader/internal/crypto"
	"github.com/alanyoungcy/papertrader/internal/domain"
	"github.com/alanyoungcy/papertrader/internal/notify"
	"github.com/alanyoungcy/papertrader/internal/platform/binance"
	"github.com/alanyoungcy/papertrader/internal/platform/paper"
	"github.com/alanyoungcy/papertrader/internal/policy"
	"github.com/alanyoungcy/papertrader/internal/ratelimit"
	"github.com/alanyoungcy/papertrader/internal/store/postgres"
)

// Dependencies bundles the infrastructure the modes run on. It is built by
// Wire and torn down by the returned cleanup function. Optional backends are
// nil when disabled.
type Dependencies struct {
	// Redis
	PriceCache domain.PriceCache
	SignalBus  domain.SignalBus

	// Always set; Redis-backed when Redis is enabled.
	RateLimiter domain.RateLimiter
	// Set when RateLimiter is the in-process limiter, so idle keys can be pruned.
	LocalLimiter *ratelimit.Local

	// PostgreSQL
	OrderStore domain.OrderStore
	AuditStore domain.AuditStore

	Broker   domain.Broker
	History  domain.HistorySource
	Policies *policy.Registry
	Policy   domain.Policy
	Notifier *notify.Notifier
}

// Wire builds every dependency named by cfg and returns them together with a
// cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.OrderStore = postgres.NewOrderStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	} else {
		deps.LocalLimiter = ratelimit.NewLocal()
		deps.RateLimiter = deps.LocalLimiter
	}

	// --- Market history ---
	deps.History = binance.NewHistoryClient(cfg.Market.RestURL, cfg.Market.HistoryLimit, cfg.Market.Timeout.Duration)

	// --- Broker ---
	broker, err := newBroker(cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: broker: %w", err)
	}
	deps.Broker = broker

	// --- Decision policy ---
	deps.Policies, err = newPolicyRegistry(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: policy: %w", err)
	}
	deps.Policy = selectPolicy(deps.Policies, cfg.Policy.Kind, logger)

	// --- Notifications ---
	deps.Notifier = newNotifier(cfg, logger)

	return deps, cleanup, nil
}

func newBroker(cfg *config.Config, logger *slog.Logger) (domain.Broker, error) {
	switch cfg.Broker.Kind {
	case "binance":
		return binance.NewBroker(binance.BrokerConfig{
			BaseURL:    cfg.Broker.BaseURL,
			Auth:       &crypto.HMACAuth{Key: cfg.Broker.APIKey, Secret: cfg.Broker.APISecret},
			Timeout:    cfg.Broker.Timeout.Duration,
			RatePerSec: cfg.Broker.RatePerSec,
			Burst:      cfg.Broker.Burst,
		}, logger)
	case "", "mock":
		return paper.NewBroker(cfg.Broker.Latency.Duration, logger), nil
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Broker.Kind)
	}
}

// newPolicyRegistry registers every policy that can be built from cfg. Gemini
// is registered when it is selected or has a key; without a key it always
// holds.
func newPolicyRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*policy.Registry, error) {
	reg := policy.NewRegistry()
	reg.Register(policy.Noop{})
	reg.Register(policy.NewMomentum(policy.MomentumConfig{
		StdDevThreshold: cfg.Policy.Momentum.StdDevThreshold,
		MinPoints:       cfg.Policy.Momentum.MinPoints,
	}, logger))

	if cfg.Policy.Kind == "gemini" || cfg.Policy.APIKey != "" {
		g, err := policy.NewGemini(ctx, policy.GeminiConfig{
			APIKey: cfg.Policy.APIKey,
			Model:  cfg.Policy.Model,
		}, logger)
		if err != nil {
			return nil, err
		}
		reg.Register(g)
	}
	return reg, nil
}

// selectPolicy returns the configured policy, falling back to momentum when
// it is not registered.
func selectPolicy(reg *policy.Registry, kind string, logger *slog.Logger) domain.Policy {
	p, err := reg.Get(kind)
	if err == nil {
		return p
	}
	logger.Warn("policy unavailable, falling back to momentum",
		slog.String("policy", kind),
		slog.String("error", err.Error()),
	)
	p, err = reg.Get("momentum")
	if err != nil {
		return policy.Noop{}
	}
	return p
}

func newNotifier(cfg *config.Config, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, cfg.Notify.DiscordUsername))
	}
	return notify.NewNotifier(senders, cfg.Notify.Events, logger)
}
