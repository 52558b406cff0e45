package infra

import (
	"context"
	"net"
	"net/http"
	"time"
)

// NewHTTPClient builds the outbound client shared by all providers.
// Connect and read are bounded separately; there is no overall timeout because a
// conversion is a bounded number of sequential hops. The read timeout applies to
// every socket read, so a body that stalls after the headers fails the request.
func NewHTTPClient(cfg *Config) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.HTTPClient.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	readTimeout := cfg.HTTPClient.ReadTimeout

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &readDeadlineConn{Conn: conn, timeout: readTimeout}, nil
	}
	transport.TLSHandshakeTimeout = cfg.HTTPClient.ConnectTimeout
	transport.ResponseHeaderTimeout = readTimeout
	transport.MaxIdleConns = 100
	transport.MaxIdleConnsPerHost = 20
	transport.IdleConnTimeout = 30 * time.Second

	return &http.Client{
		Transport: transport,
	}
}

// readDeadlineConn moves the read deadline forward before each Read.
type readDeadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *readDeadlineConn) Read(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}
