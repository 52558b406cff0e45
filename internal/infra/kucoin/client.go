package kucoin

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

// Kucoin API Constants
const (
	Name    = "kucoin"
	BaseURL = "https://api.kucoin.com"

	symbolPath = "/api/v2/symbols/"
	level1Path = "/api/v1/market/orderbook/level1"

	PairNotFoundCode = "900001"
)

// NotFoundCodes are the Kucoin error codes meaning the pair does not exist.
var NotFoundCodes = []string{PairNotFoundCode}

// response is the common Kucoin envelope.
type response[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data *T     `json:"data"`
}

type symbolData struct {
	Symbol        string          `json:"symbol"`
	BaseCurrency  string          `json:"baseCurrency"`
	QuoteCurrency string          `json:"quoteCurrency"`
	BaseMinSize   decimal.Decimal `json:"baseMinSize"`
	BaseMaxSize   decimal.Decimal `json:"baseMaxSize"`
}

type level1Data struct {
	Price decimal.Decimal `json:"price"`
}

// Client is the Kucoin upstream.
type Client struct {
	baseURL string
	api     *infra.APIClient
	logger  *slog.Logger
}

// NewClient creates a Kucoin upstream. An empty baseURL selects the public API.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger, metrics *infra.Metrics) *Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		api:     infra.NewAPIClient(Name, httpClient, NotFoundCodes, logger, metrics),
		logger:  logger.With("module", "kucoin"),
	}
}

func (c *Client) Name() string {
	return Name
}

// Ticker hyphenates the assets: BTC, USDT -> BTC-USDT.
func (c *Client) Ticker(from, to string) string {
	return from + "-" + to
}

// FetchExchangeInfo looks the symbol up in request order and, when Kucoin does not
// know it, once more reversed. The symbol that answered becomes the based ticker.
func (c *Client) FetchExchangeInfo(ctx context.Context, from, to string) (domain.ExchangeInfo, error) {
	ticker := c.Ticker(from, to)
	data, err := c.fetchSymbol(ctx, ticker)
	if domain.IsPairNotFound(err) {
		c.logger.Debug("Symbol unknown, retrying reversed", slog.String("ticker", ticker))
		ticker = c.Ticker(to, from)
		data, err = c.fetchSymbol(ctx, ticker)
	}
	if err != nil {
		return domain.ExchangeInfo{}, err
	}

	// Both legs are bounded by the base sizes; quote sizes are not applied.
	return domain.ExchangeInfo{
		BasedTicker:        ticker,
		FromAssetMinAmount: data.BaseMinSize,
		FromAssetMaxAmount: data.BaseMaxSize,
		ToAssetMinAmount:   data.BaseMinSize,
		ToAssetMaxAmount:   data.BaseMaxSize,
	}, nil
}

func (c *Client) fetchSymbol(ctx context.Context, ticker string) (*symbolData, error) {
	reqURL := c.baseURL + symbolPath + url.PathEscape(ticker)

	var resp response[symbolData]
	if err := c.api.GetJSON(ctx, "symbol", reqURL, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, c.api.EmptyPayload(reqURL)
	}
	return resp.Data, nil
}

// FetchTickerPrice returns the level1 order book price of basedTicker.
func (c *Client) FetchTickerPrice(ctx context.Context, basedTicker string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("symbol", basedTicker)
	reqURL := c.baseURL + level1Path + "?" + q.Encode()

	var resp response[level1Data]
	if err := c.api.GetJSON(ctx, "level1", reqURL, &resp); err != nil {
		return decimal.Zero, err
	}
	if resp.Data == nil || !resp.Data.Price.IsPositive() {
		return decimal.Zero, c.api.EmptyPayload(reqURL)
	}
	return resp.Data.Price, nil
}
