package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"crypto_exchange/internal/domain"
)

// APIClient performs GET requests against one upstream and classifies its errors
// using that upstream's own table of "pair does not exist" codes.
type APIClient struct {
	provider      string
	httpClient    *http.Client
	notFoundCodes map[string]struct{}
	logger        *slog.Logger
	metrics       *Metrics
}

// NewAPIClient creates a client for provider. notFoundCodes are compared against the
// "code" field of JSON object bodies; numeric and string codes are both accepted.
func NewAPIClient(provider string, httpClient *http.Client, notFoundCodes []string, logger *slog.Logger, metrics *Metrics) *APIClient {
	if logger == nil {
		logger = slog.Default()
	}
	codes := make(map[string]struct{}, len(notFoundCodes))
	for _, c := range notFoundCodes {
		codes[c] = struct{}{}
	}
	return &APIClient{
		provider:      provider,
		httpClient:    httpClient,
		notFoundCodes: codes,
		logger:        logger.With("module", provider+"_client"),
		metrics:       metrics,
	}
}

// GetJSON fetches url and decodes the body into out.
// endpoint is a short label used for metrics.
func (c *APIClient) GetJSON(ctx context.Context, endpoint, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordUpstream(c.provider, endpoint, "network_error")
		return domain.NewNetworkError("request", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordUpstream(c.provider, endpoint, "network_error")
		return domain.NewNetworkError("read", url, err)
	}

	if err := c.Classify(url, resp.StatusCode, body); err != nil {
		if domain.IsPairNotFound(err) {
			c.metrics.RecordUpstream(c.provider, endpoint, "not_found")
		} else {
			c.metrics.RecordUpstream(c.provider, endpoint, "bad_response")
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.metrics.RecordUpstream(c.provider, endpoint, "bad_response")
		c.logger.Warn("Failed to decode upstream response",
			slog.String("url", url),
			slog.Any("error", err),
		)
		return &domain.BadResponseError{Provider: c.provider, URL: url, Status: resp.StatusCode, Reason: "decode: " + err.Error()}
	}

	c.metrics.RecordUpstream(c.provider, endpoint, "ok")
	return nil
}

// Classify maps a raw response to nil, a pair-not-found error or a bad-response error.
// Not-found codes win over the HTTP status, since upstreams report them with 4xx.
func (c *APIClient) Classify(url string, status int, body []byte) error {
	if code, ok := errorCode(body); ok {
		if _, notFound := c.notFoundCodes[code]; notFound {
			return domain.NewPairNotFound("Pair not found.")
		}
	}

	if status != http.StatusOK {
		c.logger.Warn("Upstream returned unexpected status",
			slog.String("provider", c.provider),
			slog.String("url", url),
			slog.Int("status", status),
		)
		return &domain.BadResponseError{Provider: c.provider, URL: url, Status: status}
	}
	return nil
}

// errorCode extracts the "code" field of a JSON object body as a string.
func errorCode(body []byte) (string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}

	var envelope struct {
		Code json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil || len(envelope.Code) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(envelope.Code, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(envelope.Code, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// EmptyPayload builds the bad-response error for a reply that carries no usable data.
func (c *APIClient) EmptyPayload(url string) error {
	c.logger.Warn("Upstream returned empty payload", slog.String("provider", c.provider), slog.String("url", url))
	return &domain.BadResponseError{Provider: c.provider, URL: url, Status: http.StatusOK, Reason: "empty payload"}
}
