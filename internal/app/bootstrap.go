package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"crypto_exchange/internal/api"
	"crypto_exchange/internal/domain"
	"crypto_exchange/internal/infra"
	"crypto_exchange/internal/infra/binance"
	"crypto_exchange/internal/infra/kucoin"
	"crypto_exchange/internal/infra/storage"
	"crypto_exchange/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	Logger     *slog.Logger
	Cache      storage.Backend
	HTTPClient *http.Client
	Metrics    *infra.Metrics
	Registry   *service.Registry
	Resolver   *service.Resolver
	Router     http.Handler
	Server     *api.Server
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration from configPath and wires every component.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	return b.InitializeWith(ctx, cfg)
}

// InitializeWith wires every component from an already loaded configuration.
func (b *Bootstrap) InitializeWith(ctx context.Context, cfg *infra.Config) error {
	b.Config = cfg

	// 2. Setup Logger
	b.Logger = infra.NewLogger(cfg)
	slog.SetDefault(b.Logger)
	b.Logger.Info("🚀 Bootstrapping crypto exchange...",
		slog.String("name", cfg.App.Name),
		slog.String("version", cfg.App.Version),
	)

	// 3. Cache backend
	cache, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	b.Cache = cache
	b.Logger.Info("✅ Cache backend ready", slog.String("driver", cfg.Cache.Driver))

	// 4. Providers
	b.Metrics = infra.NewMetrics()
	b.HTTPClient = infra.NewHTTPClient(cfg)

	registry, err := service.BuildRegistry(
		cfg.Exchange.Providers,
		upstreamFactories(cfg, b.HTTPClient, b.Logger, b.Metrics),
		cache,
		service.WithMaxDigits(cfg.Exchange.MaxFractionDigits),
		service.WithLogger(b.Logger),
		service.WithMetrics(b.Metrics),
	)
	if err != nil {
		b.Close()
		return err
	}
	b.Registry = registry
	b.Logger.Info("✅ Providers registered", slog.Any("providers", registry.Names()))

	// 5. Resolver and API
	b.Resolver = service.NewResolver(registry,
		service.WithIntermediaries(cfg.Exchange.Intermediaries),
		service.WithResolverDigits(cfg.Exchange.MaxFractionDigits),
		service.WithResolverLogger(b.Logger),
		service.WithResolverMetrics(b.Metrics),
	)

	b.Router = api.NewHandler(b.Resolver, cache, b.Metrics, b.Logger).Routes()
	b.Server = api.NewServer(cfg.Addr(), b.Router, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
	return nil
}

// Close releases shared resources: pooled upstream connections and the cache.
func (b *Bootstrap) Close() error {
	if b.HTTPClient != nil {
		b.HTTPClient.CloseIdleConnections()
	}

	var errs []error
	if b.Cache != nil {
		if err := b.Cache.Close(); err != nil {
			errs = append(errs, err)
		}
		b.Cache = nil
	}
	return errors.Join(errs...)
}

func upstreamFactories(cfg *infra.Config, httpClient *http.Client, logger *slog.Logger, metrics *infra.Metrics) map[string]service.UpstreamFactory {
	return map[string]service.UpstreamFactory{
		binance.Name: func() domain.Upstream {
			return binance.NewClient(cfg.Exchange.Binance.BaseURL, httpClient, logger, metrics)
		},
		kucoin.Name: func() domain.Upstream {
			return kucoin.NewClient(cfg.Exchange.Kucoin.BaseURL, httpClient, logger, metrics)
		},
	}
}
