package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"crypto_exchange/internal/domain"
	"crypto_exchange/internal/infra"
	"crypto_exchange/pkg/quant"

	"github.com/shopspring/decimal"
)

// DefaultIntermediaries are tried, in order, when a pair has no direct market.
var DefaultIntermediaries = []string{"USDT", "BTC", "ETH"}

// Fallback stages reported to metrics.
const (
	stageProvider     = "provider"
	stageIntermediary = "intermediary"
)

// Resolver picks a provider for a conversion and falls back through other
// providers and intermediary assets when a pair is not supported.
type Resolver struct {
	registry       *Registry
	intermediaries []string
	maxDigits      int32
	logger         *slog.Logger
	metrics        *infra.Metrics
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithIntermediaries overrides the intermediary asset list.
func WithIntermediaries(assets []string) ResolverOption {
	return func(r *Resolver) { r.intermediaries = append([]string(nil), assets...) }
}

// WithResolverDigits sets the fractional digits of the composite rate.
func WithResolverDigits(digits int32) ResolverOption {
	return func(r *Resolver) { r.maxDigits = digits }
}

func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

func WithResolverMetrics(m *infra.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

func NewResolver(registry *Registry, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		registry:       registry,
		intermediaries: DefaultIntermediaries,
		maxDigits:      quant.DefaultMaxDigits,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("module", "resolver")
	return r
}

// Resolve converts req.Amount of req.CurrencyFrom into req.CurrencyTo.
// With req.Exchange set only that provider is used; otherwise providers are tried
// in registry order and the first one that supports the pair (directly or through
// an intermediary) wins. Only pair-not-found moves on; any other error aborts.
func (r *Resolver) Resolve(ctx context.Context, req domain.ConvertRequest) (domain.Conversion, error) {
	start := time.Now()

	conv, err := r.resolve(ctx, req)

	provider := conv.Exchange
	if provider == "" {
		provider = "none"
	}
	r.metrics.RecordConversion(provider, outcomeOf(err), time.Since(start))
	return conv, err
}

func (r *Resolver) resolve(ctx context.Context, req domain.ConvertRequest) (domain.Conversion, error) {
	if err := req.Validate(); err != nil {
		return domain.Conversion{}, err
	}

	conv := domain.Conversion{CurrencyFrom: req.CurrencyFrom, CurrencyTo: req.CurrencyTo}

	if req.Exchange != "" {
		p, err := r.registry.Get(req.Exchange)
		if err != nil {
			return domain.Conversion{}, err
		}
		res, found, err := r.tryResolve(ctx, p, req)
		if err != nil {
			return domain.Conversion{}, err
		}
		if !found {
			return domain.Conversion{}, domain.NewPairNotFound(
				"Could not resolve %s/%s via intermediaries.", req.CurrencyFrom, req.CurrencyTo)
		}
		conv.Exchange = p.Name()
		conv.ExchangeResult = res
		return conv, nil
	}

	for _, p := range r.registry.Providers() {
		res, found, err := r.tryResolve(ctx, p, req)
		if err != nil {
			return domain.Conversion{}, err
		}
		if found {
			conv.Exchange = p.Name()
			conv.ExchangeResult = res
			return conv, nil
		}
		r.logger.Warn("Pair not found on provider, trying next",
			slog.String("provider", p.Name()),
			slog.String("from", req.CurrencyFrom),
			slog.String("to", req.CurrencyTo),
		)
		r.metrics.RecordFallback(stageProvider)
	}

	return domain.Conversion{}, domain.NewPairNotFound(
		"No valid exchange found for %s/%s", req.CurrencyFrom, req.CurrencyTo)
}

// tryResolve attempts the direct pair and then the intermediary chains on one provider.
func (r *Resolver) tryResolve(ctx context.Context, p *Provider, req domain.ConvertRequest) (domain.ExchangeResult, bool, error) {
	res, found, err := p.TryExchange(ctx, req.Amount, req.CurrencyFrom, req.CurrencyTo, req.CacheMaxSeconds)
	if err != nil || found {
		return res, found, err
	}

	r.logger.Info("Direct pair not found, trying intermediaries",
		slog.String("provider", p.Name()),
		slog.String("from", req.CurrencyFrom),
		slog.String("to", req.CurrencyTo),
	)
	return r.resolveViaIntermediary(ctx, p, req)
}

// resolveViaIntermediary chains from->X->to for each configured X. The second leg
// is fed the truncated result of the first, so the composite rate reflects what a
// caller would actually receive.
func (r *Resolver) resolveViaIntermediary(ctx context.Context, p *Provider, req domain.ConvertRequest) (domain.ExchangeResult, bool, error) {
	for _, mid := range r.intermediaries {
		if mid == req.CurrencyFrom || mid == req.CurrencyTo {
			continue
		}
		r.metrics.RecordFallback(stageIntermediary)

		first, found, err := p.TryExchange(ctx, req.Amount, req.CurrencyFrom, mid, req.CacheMaxSeconds)
		if err != nil {
			return domain.ExchangeResult{}, false, err
		}
		if !found {
			r.logger.Warn("First leg not found, trying next intermediary",
				slog.String("provider", p.Name()),
				slog.String("pair", req.CurrencyFrom+"/"+mid),
			)
			continue
		}

		midAmount, err := decimal.NewFromString(first.Result)
		if err != nil {
			return domain.ExchangeResult{}, false, fmt.Errorf("parse intermediate result %q: %w", first.Result, err)
		}

		second, found, err := p.TryExchange(ctx, midAmount, mid, req.CurrencyTo, req.CacheMaxSeconds)
		if err != nil {
			return domain.ExchangeResult{}, false, err
		}
		if !found {
			r.logger.Warn("Second leg not found, trying next intermediary",
				slog.String("provider", p.Name()),
				slog.String("pair", mid+"/"+req.CurrencyTo),
			)
			continue
		}

		secondRate, err := decimal.NewFromString(second.Rate)
		if err != nil {
			return domain.ExchangeResult{}, false, fmt.Errorf("parse intermediate rate %q: %w", second.Rate, err)
		}
		composite := quant.Div(midAmount.Mul(secondRate), req.Amount)

		r.logger.Info("Resolved via intermediary",
			slog.String("provider", p.Name()),
			slog.String("from", req.CurrencyFrom),
			slog.String("via", mid),
			slog.String("to", req.CurrencyTo),
		)
		return domain.ExchangeResult{
			Rate:      quant.FormatDecimal(composite, r.maxDigits),
			Result:    second.Result,
			UpdatedAt: second.UpdatedAt,
		}, true, nil
	}
	return domain.ExchangeResult{}, false, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsPairNotFound(err):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidProvider),
		errors.Is(err, domain.ErrInvalidAssetAmount),
		errors.Is(err, domain.ErrInvalidRequest):
		return "rejected"
	default:
		return "error"
	}
}
