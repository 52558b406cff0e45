package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"crypto_exchange/internal/domain"
	"crypto_exchange/internal/infra"
	"crypto_exchange/pkg/quant"

	"github.com/shopspring/decimal"
)

// Provider wraps one upstream with the shared contract: freshness-gated caching of
// exchange info and rates, amount validation and exact-decimal result formatting.
// It holds no per-request state and is safe for concurrent use.
type Provider struct {
	upstream  domain.Upstream
	store     domain.CacheStore
	maxDigits int32
	now       func() time.Time
	logger    *slog.Logger
	metrics   *infra.Metrics
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithClock overrides the time source used for stamping and freshness checks.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) { p.now = now }
}

// WithMaxDigits sets the number of fractional digits in formatted output.
func WithMaxDigits(digits int32) ProviderOption {
	return func(p *Provider) { p.maxDigits = digits }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *infra.Metrics) ProviderOption {
	return func(p *Provider) { p.metrics = m }
}

// NewProvider creates a Provider over upstream, caching through store.
func NewProvider(upstream domain.Upstream, store domain.CacheStore, opts ...ProviderOption) *Provider {
	p := &Provider{
		upstream:  upstream,
		store:     store,
		maxDigits: quant.DefaultMaxDigits,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("module", "provider", "provider", upstream.Name())
	return p
}

func (p *Provider) Name() string {
	return p.upstream.Name()
}

// Ticker builds the upstream symbol for the pair.
func (p *Provider) Ticker(from, to string) string {
	return p.upstream.Ticker(from, to)
}

// InfoCacheKey is the cache key of exchange info for ticker.
func (p *Provider) InfoCacheKey(ticker string) string {
	return p.Name() + "-exchange-info-" + ticker
}

// RateCacheKey is the cache key of the native rate for ticker.
func (p *Provider) RateCacheKey(ticker string) string {
	return p.Name() + "-exchange-rate-" + ticker
}

func (p *Provider) timestamp() int64 {
	return p.now().UTC().Unix()
}

// isFresh reports whether ts is within maxAge seconds of now, inclusive.
// A nil maxAge means the caller does not accept cached data at all.
func (p *Provider) isFresh(ts int64, maxAge *int64) bool {
	if maxAge == nil {
		return false
	}
	return ts >= p.timestamp()-*maxAge
}

// GetExchangeInfo returns pair limits, from cache when a fresh entry exists under
// either direction of the pair, otherwise from the upstream. Fresh fetches are
// always written back under the based ticker.
func (p *Provider) GetExchangeInfo(ctx context.Context, from, to string, cacheMaxSeconds *int64) (domain.ExchangeInfo, error) {
	if cacheMaxSeconds != nil {
		info, ok, err := p.cachedExchangeInfo(ctx, []string{p.Ticker(from, to), p.Ticker(to, from)}, cacheMaxSeconds)
		if err != nil {
			return domain.ExchangeInfo{}, err
		}
		p.metrics.RecordCacheLookup(p.Name(), infra.CacheKindInfo, ok)
		if ok {
			return info, nil
		}
	}

	info, err := p.upstream.FetchExchangeInfo(ctx, from, to)
	if err != nil {
		return domain.ExchangeInfo{}, err
	}
	info.Timestamp = p.timestamp()

	if err := p.setCache(ctx, p.InfoCacheKey(info.BasedTicker), info); err != nil {
		return domain.ExchangeInfo{}, err
	}
	return info, nil
}

func (p *Provider) cachedExchangeInfo(ctx context.Context, tickers []string, maxAge *int64) (domain.ExchangeInfo, bool, error) {
	keys := make([]string, len(tickers))
	for i, t := range tickers {
		keys[i] = p.InfoCacheKey(t)
	}

	values, err := p.store.MGet(ctx, keys...)
	if err != nil {
		return domain.ExchangeInfo{}, false, fmt.Errorf("cache mget: %w", err)
	}

	for i, raw := range values {
		if raw == nil {
			continue
		}
		var info domain.ExchangeInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			p.logger.Warn("Ignoring undecodable cache entry", slog.String("key", keys[i]), slog.Any("error", err))
			continue
		}
		if p.isFresh(info.Timestamp, maxAge) {
			return info, true, nil
		}
	}
	return domain.ExchangeInfo{}, false, nil
}

// GetExchangeRate returns the rate for from->to. The cache always holds the native
// quote of basedTicker; the inversion for the reverse direction is applied on the
// returned value only.
func (p *Provider) GetExchangeRate(ctx context.Context, basedTicker, from, to string, cacheMaxSeconds *int64) (domain.ExchangeRate, error) {
	rate, err := p.nativeRate(ctx, basedTicker, cacheMaxSeconds)
	if err != nil {
		return domain.ExchangeRate{}, err
	}

	if p.Ticker(from, to) != basedTicker {
		rate.Rate = quant.Inverse(rate.Rate)
	}
	return rate, nil
}

func (p *Provider) nativeRate(ctx context.Context, basedTicker string, cacheMaxSeconds *int64) (domain.ExchangeRate, error) {
	key := p.RateCacheKey(basedTicker)

	if cacheMaxSeconds != nil {
		raw, err := p.store.Get(ctx, key)
		if err != nil {
			return domain.ExchangeRate{}, fmt.Errorf("cache get: %w", err)
		}
		hit := false
		var cached domain.ExchangeRate
		if raw != nil {
			if err := json.Unmarshal(raw, &cached); err != nil {
				p.logger.Warn("Ignoring undecodable cache entry", slog.String("key", key), slog.Any("error", err))
			} else {
				hit = p.isFresh(cached.Timestamp, cacheMaxSeconds) && cached.Rate.IsPositive()
			}
		}
		p.metrics.RecordCacheLookup(p.Name(), infra.CacheKindRate, hit)
		if hit {
			return cached, nil
		}
	}

	price, err := p.upstream.FetchTickerPrice(ctx, basedTicker)
	if err != nil {
		return domain.ExchangeRate{}, err
	}
	rate := domain.ExchangeRate{Rate: price, Timestamp: p.timestamp()}

	if err := p.setCache(ctx, key, rate); err != nil {
		return domain.ExchangeRate{}, err
	}
	return rate, nil
}

func (p *Provider) setCache(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := p.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// CheckExchangeAmount validates amount against the leg it is denominated in:
// the "from" bounds when from is the based asset, the "to" bounds otherwise.
// Bounds are inclusive.
func (p *Provider) CheckExchangeAmount(info domain.ExchangeInfo, amount decimal.Decimal, from, to string) error {
	minAmount, maxAmount := info.ToAssetMinAmount, info.ToAssetMaxAmount
	if p.Ticker(from, to) == info.BasedTicker {
		minAmount, maxAmount = info.FromAssetMinAmount, info.FromAssetMaxAmount
	}

	if amount.LessThan(minAmount) || amount.GreaterThan(maxAmount) {
		return &domain.AmountError{Amount: amount, Min: minAmount, Max: maxAmount}
	}
	return nil
}

// Exchange converts amount of from into to on this provider.
// Rate and result are truncated toward zero so the reported value is never more
// than what can actually be obtained.
func (p *Provider) Exchange(ctx context.Context, amount decimal.Decimal, from, to string, cacheMaxSeconds *int64) (domain.ExchangeResult, error) {
	info, err := p.GetExchangeInfo(ctx, from, to, cacheMaxSeconds)
	if err != nil {
		return domain.ExchangeResult{}, err
	}

	if err := p.CheckExchangeAmount(info, amount, from, to); err != nil {
		return domain.ExchangeResult{}, err
	}

	rate, err := p.GetExchangeRate(ctx, info.BasedTicker, from, to, cacheMaxSeconds)
	if err != nil {
		return domain.ExchangeResult{}, err
	}

	return domain.ExchangeResult{
		Rate:      quant.FormatDecimal(rate.Rate, p.maxDigits),
		Result:    quant.FormatDecimal(amount.Mul(rate.Rate), p.maxDigits),
		UpdatedAt: rate.Timestamp,
	}, nil
}

// TryExchange is Exchange with the not-found outcome as a value: found is false
// (and err nil) when the upstream does not support the pair.
func (p *Provider) TryExchange(ctx context.Context, amount decimal.Decimal, from, to string, cacheMaxSeconds *int64) (domain.ExchangeResult, bool, error) {
	res, err := p.Exchange(ctx, amount, from, to, cacheMaxSeconds)
	if domain.IsPairNotFound(err) {
		return domain.ExchangeResult{}, false, nil
	}
	if err != nil {
		return domain.ExchangeResult{}, false, err
	}
	return res, true, nil
}
