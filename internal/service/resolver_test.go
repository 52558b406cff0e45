package service

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"crypto_exchange/internal/domain"
	"crypto_exchange/internal/infra"
	"crypto_exchange/internal/infra/storage"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(ups ...*fakeUpstream) *Resolver {
	store := storage.NewMemoryStore()
	clock := newFakeClock(testNow)
	r := NewRegistry()
	for _, up := range ups {
		r.Register(NewProvider(up, store, WithClock(clock.Now)))
	}
	return NewResolver(r)
}

func convertRequest(from, to, amount string) domain.ConvertRequest {
	return domain.ConvertRequest{
		CurrencyFrom: from,
		CurrencyTo:   to,
		Amount:       decimal.RequireFromString(amount),
	}
}

func TestResolver_Direct(t *testing.T) {
	alpha := newFakeUpstream("alpha").addMarket("BTC", "USDT", "50000")
	r := newTestResolver(alpha)

	conv, err := r.Resolve(context.Background(), convertRequest("BTC", "USDT", "1"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", conv.Exchange)
	assert.Equal(t, "BTC", conv.CurrencyFrom)
	assert.Equal(t, "USDT", conv.CurrencyTo)
	assert.Equal(t, "50000.00000000", conv.Rate)
	assert.Equal(t, "50000.00000000", conv.Result)
	assert.Equal(t, testNow, conv.UpdatedAt)
}

func TestResolver_ExplicitProvider(t *testing.T) {
	alpha := newFakeUpstream("alpha").addMarket("BTC", "USDT", "50000")
	beta := newFakeUpstream("beta").addMarket("BTC", "USDT", "51000")
	r := newTestResolver(alpha, beta)
	ctx := context.Background()

	req := convertRequest("BTC", "USDT", "1")
	req.Exchange = "BETA"
	conv, err := r.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "beta", conv.Exchange)
	assert.Equal(t, "51000.00000000", conv.Result)

	infoCalls, _ := alpha.counts()
	assert.Zero(t, infoCalls)

	t.Run("unknown provider makes no upstream call", func(t *testing.T) {
		req.Exchange = "foo"
		_, err := r.Resolve(ctx, req)
		assert.ErrorIs(t, err, domain.ErrInvalidProvider)
		assert.EqualError(t, err, "Provider 'foo' is not supported.")

		alphaInfo, _ := alpha.counts()
		betaInfo, _ := beta.counts()
		assert.Zero(t, alphaInfo)
		assert.Equal(t, 1, betaInfo)
	})

	t.Run("explicit provider does not fall back to others", func(t *testing.T) {
		req := convertRequest("SOL", "USDT", "1")
		req.Exchange = "alpha"
		beta.addMarket("SOL", "USDT", "150")

		_, err := r.Resolve(ctx, req)
		assert.ErrorIs(t, err, domain.ErrPairNotFound)
		assert.EqualError(t, err, "Could not resolve SOL/USDT via intermediaries.")
	})
}

func TestResolver_FallsBackToNextProvider(t *testing.T) {
	alpha := newFakeUpstream("alpha")
	beta := newFakeUpstream("beta").addMarket("BTC", "USDT", "50000")
	r := newTestResolver(alpha, beta)

	conv, err := r.Resolve(context.Background(), convertRequest("BTC", "USDT", "1"))
	require.NoError(t, err)
	assert.Equal(t, "beta", conv.Exchange)
	assert.Equal(t, "50000.00000000", conv.Result)
}

func TestResolver_AbortsOnOtherErrors(t *testing.T) {
	alpha := newFakeUpstream("alpha").addMarket("BTC", "USDT", "50000")
	alpha.priceErr = &domain.BadResponseError{Provider: "alpha", URL: "http://alpha", Status: 500}
	beta := newFakeUpstream("beta").addMarket("BTC", "USDT", "50000")
	r := newTestResolver(alpha, beta)

	_, err := r.Resolve(context.Background(), convertRequest("BTC", "USDT", "1"))
	assert.ErrorIs(t, err, domain.ErrProviderBadResponse)

	infoCalls, priceCalls := beta.counts()
	assert.Zero(t, infoCalls)
	assert.Zero(t, priceCalls)
}

func TestResolver_AmountErrorAborts(t *testing.T) {
	alpha := newFakeUpstream("alpha").addMarketWithLimits("BTC", "USDT", "50000", "1", "2", "1", "2")
	beta := newFakeUpstream("beta").addMarket("BTC", "USDT", "50000")
	r := newTestResolver(alpha, beta)

	_, err := r.Resolve(context.Background(), convertRequest("BTC", "USDT", "5"))
	assert.ErrorIs(t, err, domain.ErrInvalidAssetAmount)

	infoCalls, _ := beta.counts()
	assert.Zero(t, infoCalls)
}

func TestResolver_Intermediary(t *testing.T) {
	alpha := newFakeUpstream("alpha").
		addMarket("ABC", "USDT", "2").
		addMarket("EUR", "USDT", "1.25")
	r := newTestResolver(alpha)

	conv, err := r.Resolve(context.Background(), convertRequest("ABC", "EUR", "10"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", conv.Exchange)
	// 10 ABC -> 20 USDT -> 16 EUR
	assert.Equal(t, "16.00000000", conv.Result)
	assert.Equal(t, "1.60000000", conv.Rate)
	assert.Equal(t, testNow, conv.UpdatedAt)
}

func TestResolver_IntermediaryOrder(t *testing.T) {
	// Both USDT and BTC routes exist; USDT comes first.
	alpha := newFakeUpstream("alpha").
		addMarket("ABC", "USDT", "2").
		addMarket("EUR", "USDT", "1.25").
		addMarket("ABC", "BTC", "1").
		addMarket("EUR", "BTC", "1")
	r := newTestResolver(alpha)

	conv, err := r.Resolve(context.Background(), convertRequest("ABC", "EUR", "10"))
	require.NoError(t, err)
	assert.Equal(t, "16.00000000", conv.Result)
}

func TestResolver_SkipsIntermediaryEqualToEndpoint(t *testing.T) {
	alpha := newFakeUpstream("alpha").
		addMarket("BTC", "USDT", "50000").
		addMarket("XYZ", "BTC", "0.5")
	r := newTestResolver(alpha)

	conv, err := r.Resolve(context.Background(), convertRequest("USDT", "XYZ", "100000"))
	require.NoError(t, err)
	// 100000 USDT -> 2 BTC -> 4 XYZ
	assert.Equal(t, "4.00000000", conv.Result)
	assert.NotContains(t, alpha.infoCalls, "USDTUSDT")
}

func TestResolver_SecondLegNotFoundTriesNext(t *testing.T) {
	alpha := newFakeUpstream("alpha").
		addMarket("ABC", "USDT", "2").
		addMarket("ABC", "BTC", "1").
		addMarket("EUR", "BTC", "0.5")
	r := newTestResolver(alpha)

	conv, err := r.Resolve(context.Background(), convertRequest("ABC", "EUR", "10"))
	require.NoError(t, err)
	// USDT route has no USDT/EUR market; BTC route: 10 ABC -> 10 BTC -> 20 EUR
	assert.Equal(t, "20.00000000", conv.Result)
	assert.Equal(t, "2.00000000", conv.Rate)
}

func TestResolver_Exhausted(t *testing.T) {
	alpha := newFakeUpstream("alpha")
	beta := newFakeUpstream("beta")
	metrics := infra.NewMetrics()

	registry := NewRegistry()
	store := storage.NewMemoryStore()
	registry.Register(NewProvider(alpha, store))
	registry.Register(NewProvider(beta, store))
	r := NewResolver(registry, WithResolverMetrics(metrics), WithIntermediaries([]string{"USDT"}))

	_, err := r.Resolve(context.Background(), convertRequest("AAA", "BBB", "1"))
	assert.ErrorIs(t, err, domain.ErrPairNotFound)
	assert.EqualError(t, err, "No valid exchange found for AAA/BBB")

	assert.Equal(t, []string{"AAABBB", "AAAUSDT"}, alpha.infoCalls)
	assert.Equal(t, []string{"AAABBB", "AAAUSDT"}, beta.infoCalls)

	count, err := testutil.GatherAndCount(metrics.Registry(), "exchange_conversions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestResolver_RejectsInvalidRequest(t *testing.T) {
	alpha := newFakeUpstream("alpha").addMarket("BTC", "USDT", "50000")
	r := newTestResolver(alpha)

	_, err := r.Resolve(context.Background(), convertRequest("BTC", "USDT", "0"))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	infoCalls, _ := alpha.counts()
	assert.Zero(t, infoCalls)
}

func TestResolver_UsesCache(t *testing.T) {
	alpha := newFakeUpstream("alpha").addMarket("BTC", "USDT", "50000")
	r := newTestResolver(alpha)

	req := convertRequest("BTC", "USDT", "1")
	req.CacheMaxSeconds = seconds(60)
	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), req)
		require.NoError(t, err)
	}

	infoCalls, priceCalls := alpha.counts()
	assert.Equal(t, 1, infoCalls)
	assert.Equal(t, 1, priceCalls)
}

func TestResolver_LogsFailedIntermediaryLegs(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))

	alpha := newFakeUpstream("alpha").
		addMarket("ABC", "USDT", "2").
		addMarket("ABC", "BTC", "1").
		addMarket("EUR", "BTC", "0.5")
	registry := NewRegistry()
	registry.Register(NewProvider(alpha, storage.NewMemoryStore()))
	r := NewResolver(registry, WithResolverLogger(logger), WithIntermediaries([]string{"USDT", "BTC"}))

	_, err := r.Resolve(context.Background(), convertRequest("ABC", "EUR", "10"))
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, `"level":"WARN","msg":"Second leg not found, trying next intermediary"`)
	assert.Contains(t, out, `"pair":"USDT/EUR"`)
}
