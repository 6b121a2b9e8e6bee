package toxiproxy

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JaydenElliott/toxiproxy-go/collectors"
)

// DefaultEndpoint is where a locally running Toxiproxy server listens.
const DefaultEndpoint = "http://127.0.0.1:8474"

// DialTimeout bounds the reachability probe.
const DialTimeout = 3 * time.Second

// Response is the outcome of one control-plane request.
type Response struct {
	StatusCode int
	Body       []byte
}

// Conn is the shared control connection to one Toxiproxy endpoint. Every
// handle derived from a Client holds a reference to the same Conn, and all
// requests through it are serialized: concurrent callers are safe, but each
// request holds the connection exclusively for one request/response cycle.
// This is a low-volume control plane, so full serialization is acceptable.
type Conn struct {
	endpoint  string
	userAgent string
	transport Transport
	logger    zerolog.Logger
	metrics   *collectors.ClientMetricCollectors

	mu     sync.Mutex
	closed bool
}

func newConn(endpoint string) *Conn {
	return &Conn{
		endpoint:  endpoint,
		transport: defaultTransport(),
		logger:    zerolog.Nop(),
	}
}

// Endpoint returns the base URI this connection talks to.
func (c *Conn) Endpoint() string {
	return c.endpoint
}

// Close marks the connection unusable. Operations issued afterwards fail
// with ErrConnClosed instead of touching the transport.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// IsReachable attempts a bare TCP connection to the endpoint's host:port.
// Failure is the expected, tested condition, so it reports false instead of
// returning an error.
func (c *Conn) IsReachable() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return false
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Host, "80")
	}

	conn, err := net.DialTimeout("tcp", host, DialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (c *Conn) get(path string) (*Response, error) {
	return c.do(http.MethodGet, path, nil)
}

func (c *Conn) post(path string) (*Response, error) {
	return c.do(http.MethodPost, path, nil)
}

func (c *Conn) postJSON(path string, body []byte) (*Response, error) {
	return c.do(http.MethodPost, path, body)
}

func (c *Conn) del(path string) (*Response, error) {
	return c.do(http.MethodDelete, path, nil)
}

// do issues one request while holding the connection exclusively, so
// requests from concurrent callers are never interleaved on the transport.
func (c *Conn) do(method, path string, body []byte) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnClosed
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.endpoint+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.transport.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Debug().
			Str("method", method).
			Str("path", path).
			Dur("duration", elapsed).
			Err(err).
			Msg("request failed")
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", elapsed).
		Msg("request")
	if c.metrics != nil {
		c.metrics.ObserveRequest(method, resp.StatusCode, elapsed)
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
