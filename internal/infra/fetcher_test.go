package infra

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crypto_exchange/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPIClient(codes ...string) *APIClient {
	return NewAPIClient("test", http.DefaultClient, codes, nil, nil)
}

func TestAPIClient_Classify(t *testing.T) {
	c := newTestAPIClient("345122", "-1121", "900001")

	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		wantNoErr bool
	}{
		{"numeric not-found code", http.StatusBadRequest, `{"code":345122,"msg":"x"}`, domain.ErrPairNotFound, false},
		{"negative numeric code", http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`, domain.ErrPairNotFound, false},
		{"string code", http.StatusOK, `{"code":"900001","msg":"Unsupported trading pair."}`, domain.ErrPairNotFound, false},
		{"unknown code with 500", http.StatusInternalServerError, `{"code":-1000}`, domain.ErrProviderBadResponse, false},
		{"empty object with 500", http.StatusInternalServerError, `{}`, domain.ErrProviderBadResponse, false},
		{"non-json with 502", http.StatusBadGateway, `<html>bad gateway</html>`, domain.ErrProviderBadResponse, false},
		{"success code", http.StatusOK, `{"code":"200000","data":{}}`, nil, true},
		{"array body", http.StatusOK, `[{"fromAsset":"BTC"}]`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Classify("http://upstream/x", tt.status, []byte(tt.body))
			if tt.wantNoErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAPIClient_BadResponseCarriesURLAndStatus(t *testing.T) {
	c := newTestAPIClient()
	err := c.Classify("http://upstream/price", http.StatusServiceUnavailable, []byte(`{}`))

	var bad *domain.BadResponseError
	require.True(t, errors.As(err, &bad))
	assert.Equal(t, "http://upstream/price", bad.URL)
	assert.Equal(t, http.StatusServiceUnavailable, bad.Status)
}

func TestAPIClient_GetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"price":"56789.12345678"}`))
		case "/broken":
			w.Write([]byte(`{"price":`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
		}
	}))
	defer server.Close()

	metrics := NewMetrics()
	c := NewAPIClient("binance", server.Client(), []string{"-1121"}, nil, metrics)
	ctx := context.Background()

	t.Run("decodes body", func(t *testing.T) {
		var out struct {
			Price string `json:"price"`
		}
		require.NoError(t, c.GetJSON(ctx, "price", server.URL+"/ok", &out))
		assert.Equal(t, "56789.12345678", out.Price)
	})

	t.Run("malformed body is a bad response", func(t *testing.T) {
		var out map[string]any
		err := c.GetJSON(ctx, "price", server.URL+"/broken", &out)
		assert.ErrorIs(t, err, domain.ErrProviderBadResponse)
	})

	t.Run("not-found code", func(t *testing.T) {
		var out map[string]any
		err := c.GetJSON(ctx, "price", server.URL+"/missing", &out)
		assert.ErrorIs(t, err, domain.ErrPairNotFound)
	})
}

func TestAPIClient_NetworkErrorIsUnclassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	cfg := DefaultConfig()
	cfg.HTTPClient.ConnectTimeout = 200 * time.Millisecond
	c := NewAPIClient("binance", NewHTTPClient(cfg), nil, nil, nil)

	var out map[string]any
	err := c.GetJSON(context.Background(), "price", url, &out)

	var netErr *domain.NetworkError
	require.True(t, errors.As(err, &netErr), "expected NetworkError, got %v", err)
	assert.False(t, errors.Is(err, domain.ErrProviderBadResponse))
	assert.False(t, domain.IsPairNotFound(err))
}

// stallingServer answers through respond and then blocks until the test ends.
func stallingServer(t *testing.T, respond func(w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })
	return server
}

func TestAPIClient_ReadTimeouts(t *testing.T) {
	const timeout = 200 * time.Millisecond

	tests := []struct {
		name    string
		respond func(w http.ResponseWriter)
	}{
		{
			name:    "stalled headers",
			respond: func(w http.ResponseWriter) {},
		},
		{
			name: "stalled body",
			respond: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"price":`))
				w.(http.Flusher).Flush()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := stallingServer(t, tt.respond)

			cfg := DefaultConfig()
			cfg.HTTPClient.ConnectTimeout = timeout
			cfg.HTTPClient.ReadTimeout = timeout
			c := NewAPIClient("binance", NewHTTPClient(cfg), nil, nil, nil)

			done := make(chan error, 1)
			start := time.Now()
			go func() {
				var out map[string]any
				done <- c.GetJSON(context.Background(), "price", server.URL, &out)
			}()

			select {
			case err := <-done:
				var netErr *domain.NetworkError
				require.True(t, errors.As(err, &netErr), "expected NetworkError, got %v", err)
				assert.Less(t, time.Since(start), 10*timeout)
			case <-time.After(3 * time.Second):
				t.Fatal("GetJSON did not time out")
			}
		})
	}
}
