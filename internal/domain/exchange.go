package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ExchangeInfo holds the trading limits of a pair as reported by an upstream.
// BasedTicker is the canonical direction the upstream quotes the pair in.
type ExchangeInfo struct {
	BasedTicker        string          `json:"based_ticker"`
	FromAssetMinAmount decimal.Decimal `json:"from_asset_min_amount"`
	FromAssetMaxAmount decimal.Decimal `json:"from_asset_max_amount"`
	ToAssetMinAmount   decimal.Decimal `json:"to_asset_min_amount"`
	ToAssetMaxAmount   decimal.Decimal `json:"to_asset_max_amount"`
	Timestamp          int64           `json:"timestamp"` // Unix seconds, UTC
}

// ExchangeRate is the price of one unit of the based asset in the quote asset.
type ExchangeRate struct {
	Rate      decimal.Decimal `json:"rate"`
	Timestamp int64           `json:"timestamp"` // Unix seconds, UTC
}

// ExchangeResult is the formatted outcome of one conversion leg (or a whole chain).
type ExchangeResult struct {
	Rate      string `json:"rate"`
	Result    string `json:"result"`
	UpdatedAt int64  `json:"updated_at"`
}

// ConvertRequest is the boundary contract accepted from callers.
type ConvertRequest struct {
	CurrencyFrom    string          `json:"currency_from"`
	CurrencyTo      string          `json:"currency_to"`
	Amount          decimal.Decimal `json:"amount"`
	Exchange        string          `json:"exchange,omitempty"`
	CacheMaxSeconds *int64          `json:"cache_max_seconds,omitempty"`
}

// Normalize upper-cases currency codes and trims whitespace.
func (r *ConvertRequest) Normalize() {
	r.CurrencyFrom = strings.ToUpper(strings.TrimSpace(r.CurrencyFrom))
	r.CurrencyTo = strings.ToUpper(strings.TrimSpace(r.CurrencyTo))
	r.Exchange = strings.TrimSpace(r.Exchange)
}

// Validate checks the request shape. It does not know about upstream limits.
func (r *ConvertRequest) Validate() error {
	switch {
	case r.CurrencyFrom == "":
		return &PairError{Msg: "currency_from is required", Err: ErrInvalidRequest}
	case r.CurrencyTo == "":
		return &PairError{Msg: "currency_to is required", Err: ErrInvalidRequest}
	case !r.Amount.IsPositive():
		return &PairError{Msg: "amount must be greater than zero", Err: ErrInvalidRequest}
	case r.CacheMaxSeconds != nil && *r.CacheMaxSeconds < 0:
		return &PairError{Msg: "cache_max_seconds must be non-negative", Err: ErrInvalidRequest}
	}
	return nil
}

// Conversion is the resolver output: the result plus the provider that produced it.
type Conversion struct {
	CurrencyFrom string `json:"currency_from"`
	CurrencyTo   string `json:"currency_to"`
	Exchange     string `json:"exchange"`
	ExchangeResult
}
