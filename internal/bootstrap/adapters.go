package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/novalabs/wa-reporting/config"
	redisadapter "github.com/novalabs/wa-reporting/internal/adapters/redis"
	"github.com/novalabs/wa-reporting/internal/adapters/wildapricot"
	"github.com/novalabs/wa-reporting/internal/observability/statsd"
)

// Adapters holds the infrastructure-facing pieces of the application.
type Adapters struct {
	Redis    redis.UniversalClient
	Sessions *redisadapter.SessionStore
	Provider *wildapricot.Provider
	Metrics  *statsd.Client
}

// NewAdapters connects the session store, the Wild Apricot provider, and the
// metrics sink.
func NewAdapters(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Adapters, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Redis.Addr, err)
	}

	provider, err := wildapricot.NewProvider(wildapricot.ProviderOptions{
		Config: cfg.WildApricot,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("configure wild apricot provider: %w", err)
	}

	metrics, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Statsd.Enabled,
		Address: cfg.Statsd.Address,
		Prefix:  cfg.Statsd.Prefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("configure statsd: %w", err)
	}

	return &Adapters{
		Redis:    client,
		Sessions: redisadapter.NewSessionStore(client),
		Provider: provider,
		Metrics:  metrics,
	}, nil
}

// Close releases adapter resources. Safe to call on a partially built value.
func (a *Adapters) Close(logger *slog.Logger) {
	if a == nil {
		return
	}
	if err := a.Metrics.Close(); err != nil {
		logger.Warn("close statsd client", "error", err)
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Warn("close redis client", "error", err)
		}
	}
}
