package service

import (
	"context"
	"sync"
	"time"

	"crypto_exchange/internal/domain"

	"github.com/shopspring/decimal"
)

// fakeUpstream quotes markets keyed by based ticker and counts its calls.
type fakeUpstream struct {
	name string

	mu         sync.Mutex
	markets    map[string]fakeMarket
	infoErr    error
	priceErr   error
	infoCalls  []string
	priceCalls []string
}

type fakeMarket struct {
	info  domain.ExchangeInfo
	price decimal.Decimal
}

func newFakeUpstream(name string) *fakeUpstream {
	return &fakeUpstream{name: name, markets: make(map[string]fakeMarket)}
}

// addMarket registers base/quote with [1, 1000000] limits on both legs.
func (f *fakeUpstream) addMarket(base, quote, price string) *fakeUpstream {
	return f.addMarketWithLimits(base, quote, price, "1", "1000000", "1", "1000000")
}

func (f *fakeUpstream) addMarketWithLimits(base, quote, price, baseMin, baseMax, quoteMin, quoteMax string) *fakeUpstream {
	ticker := base + quote
	f.markets[ticker] = fakeMarket{
		info: domain.ExchangeInfo{
			BasedTicker:        ticker,
			FromAssetMinAmount: decimal.RequireFromString(baseMin),
			FromAssetMaxAmount: decimal.RequireFromString(baseMax),
			ToAssetMinAmount:   decimal.RequireFromString(quoteMin),
			ToAssetMaxAmount:   decimal.RequireFromString(quoteMax),
		},
		price: decimal.RequireFromString(price),
	}
	return f
}

func (f *fakeUpstream) Name() string { return f.name }

func (f *fakeUpstream) Ticker(from, to string) string { return from + to }

func (f *fakeUpstream) FetchExchangeInfo(ctx context.Context, from, to string) (domain.ExchangeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.infoCalls = append(f.infoCalls, from+to)
	if f.infoErr != nil {
		return domain.ExchangeInfo{}, f.infoErr
	}
	if m, ok := f.markets[from+to]; ok {
		return m.info, nil
	}
	if m, ok := f.markets[to+from]; ok {
		return m.info, nil
	}
	return domain.ExchangeInfo{}, domain.NewPairNotFound("%s: pair %s/%s not found", f.name, from, to)
}

func (f *fakeUpstream) FetchTickerPrice(ctx context.Context, basedTicker string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.priceCalls = append(f.priceCalls, basedTicker)
	if f.priceErr != nil {
		return decimal.Zero, f.priceErr
	}
	m, ok := f.markets[basedTicker]
	if !ok {
		return decimal.Zero, domain.NewPairNotFound("%s: ticker %s not found", f.name, basedTicker)
	}
	return m.price, nil
}

func (f *fakeUpstream) counts() (info, price int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.infoCalls), len(f.priceCalls)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(unix int64) *fakeClock {
	return &fakeClock{now: time.Unix(unix, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func seconds(n int64) *int64 {
	return &n
}
