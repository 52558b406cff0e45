package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Upstream is the capability set every exchange integration implements.
// Shared cache and validation logic lives in service.Provider.
type Upstream interface {
	// Name is the registry name, also used as the cache key namespace.
	Name() string
	// Ticker builds the upstream symbol for a pair (e.g. "BTCUSDT" or "BTC-USDT").
	Ticker(from, to string) string
	// FetchExchangeInfo asks the upstream for pair limits and its based ticker.
	FetchExchangeInfo(ctx context.Context, from, to string) (ExchangeInfo, error)
	// FetchTickerPrice returns the native price for the based ticker.
	FetchTickerPrice(ctx context.Context, basedTicker string) (decimal.Decimal, error)
}

// CacheStore is the key/value store the providers cache through.
// A missing key is reported as a nil value, not an error.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}
