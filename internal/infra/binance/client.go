package binance

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"crypto_exchange/internal/domain"
	"crypto_exchange/internal/infra"

	"github.com/shopspring/decimal"
)

// Binance API Constants
const (
	Name    = "binance"
	BaseURL = "https://api.binance.com"

	exchangeInfoPath = "/sapi/v1/convert/exchangeInfo"
	tickerPricePath  = "/api/v3/ticker/price"

	PairNotFoundCode  = "345122"
	InvalidSymbolCode = "-1121"
)

// NotFoundCodes are the Binance error codes meaning the pair does not exist.
var NotFoundCodes = []string{PairNotFoundCode, InvalidSymbolCode}

// convertPair is one entry of the convert exchangeInfo response.
// Limits are reported in request order; fromIsBase tells which side is the base asset.
type convertPair struct {
	FromAsset          string          `json:"fromAsset"`
	ToAsset            string          `json:"toAsset"`
	FromAssetMinAmount decimal.Decimal `json:"fromAssetMinAmount"`
	FromAssetMaxAmount decimal.Decimal `json:"fromAssetMaxAmount"`
	ToAssetMinAmount   decimal.Decimal `json:"toAssetMinAmount"`
	ToAssetMaxAmount   decimal.Decimal `json:"toAssetMaxAmount"`
	FromIsBase         bool            `json:"fromIsBase"`
}

type tickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// Client is the Binance upstream.
type Client struct {
	baseURL string
	api     *infra.APIClient
}

// NewClient creates a Binance upstream. An empty baseURL selects the public API.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger, metrics *infra.Metrics) *Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		api:     infra.NewAPIClient(Name, httpClient, NotFoundCodes, logger, metrics),
	}
}

func (c *Client) Name() string {
	return Name
}

// Ticker concatenates the assets: BTC, USDT -> BTCUSDT.
func (c *Client) Ticker(from, to string) string {
	return from + to
}

// FetchExchangeInfo queries the convert endpoint and normalizes limits so that the
// "from" bounds always belong to the base asset of the based ticker.
func (c *Client) FetchExchangeInfo(ctx context.Context, from, to string) (domain.ExchangeInfo, error) {
	q := url.Values{}
	q.Set("fromAsset", from)
	q.Set("toAsset", to)
	reqURL := c.baseURL + exchangeInfoPath + "?" + q.Encode()

	var pairs []convertPair
	if err := c.api.GetJSON(ctx, "exchange_info", reqURL, &pairs); err != nil {
		return domain.ExchangeInfo{}, err
	}
	if len(pairs) == 0 {
		return domain.ExchangeInfo{}, c.api.EmptyPayload(reqURL)
	}

	p := pairs[0]
	if p.FromIsBase {
		return domain.ExchangeInfo{
			BasedTicker:        c.Ticker(p.FromAsset, p.ToAsset),
			FromAssetMinAmount: p.FromAssetMinAmount,
			FromAssetMaxAmount: p.FromAssetMaxAmount,
			ToAssetMinAmount:   p.ToAssetMinAmount,
			ToAssetMaxAmount:   p.ToAssetMaxAmount,
		}, nil
	}

	return domain.ExchangeInfo{
		BasedTicker:        c.Ticker(p.ToAsset, p.FromAsset),
		FromAssetMinAmount: p.ToAssetMinAmount,
		FromAssetMaxAmount: p.ToAssetMaxAmount,
		ToAssetMinAmount:   p.FromAssetMinAmount,
		ToAssetMaxAmount:   p.FromAssetMaxAmount,
	}, nil
}

// FetchTickerPrice returns the last price of basedTicker.
func (c *Client) FetchTickerPrice(ctx context.Context, basedTicker string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("symbol", basedTicker)
	reqURL := c.baseURL + tickerPricePath + "?" + q.Encode()

	var tp tickerPrice
	if err := c.api.GetJSON(ctx, "ticker_price", reqURL, &tp); err != nil {
		return decimal.Zero, err
	}
	if !tp.Price.IsPositive() {
		return decimal.Zero, c.api.EmptyPayload(reqURL)
	}
	return tp.Price, nil
}
