package toxiproxy

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/JaydenElliott/toxiproxy-go/collectors"
)

// Client is the entry point to one Toxiproxy endpoint. It owns the shared
// control connection; every Proxy obtained through it is bound to that
// connection. Construct one explicitly and pass it around, there is no
// process-wide instance.
type Client struct {
	conn *Conn
}

// Option configures the client's control connection.
type Option func(*Conn)

// WithLogger sets the logger used to trace control-plane requests.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Conn) { c.logger = logger }
}

// WithMetrics wires prometheus collectors that observe every request.
func WithMetrics(m *collectors.ClientMetricCollectors) Option {
	return func(c *Conn) { c.metrics = m }
}

// WithTransport substitutes the HTTP transport.
func WithTransport(t Transport) Option {
	return func(c *Conn) { c.transport = t }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Conn) { c.userAgent = ua }
}

// NewClient creates a client for the Toxiproxy server at endpoint,
// e.g. "http://127.0.0.1:8474".
func NewClient(endpoint string, opts ...Option) *Client {
	conn := newConn(endpoint)
	for _, opt := range opts {
		opt(conn)
	}
	return &Client{conn: conn}
}

// Conn exposes the shared control connection, mainly for Close and
// IsReachable.
func (client *Client) Conn() *Conn {
	return client.conn
}

// IsRunning reports whether a server is reachable at the endpoint. It never
// returns an error; any connectivity failure collapses to false.
func (client *Client) IsRunning() bool {
	return client.conn.IsReachable()
}

// Version returns the server's version string.
func (client *Client) Version() (string, error) {
	resp, err := client.conn.get("/version")
	if err != nil {
		return "", requestError("Version", err)
	}
	if err := checkStatus(resp, http.StatusOK, "Version"); err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// Reset re-enables every proxy and removes every toxic on the server.
func (client *Client) Reset() error {
	resp, err := client.conn.post("/reset")
	if err != nil {
		return requestError("Reset", err)
	}
	return checkStatus(resp, http.StatusNoContent, "Reset")
}

// Proxies returns all proxies on the server, keyed by name and bound to
// this client's connection.
func (client *Client) Proxies() (map[string]*Proxy, error) {
	resp, err := client.conn.get("/proxies")
	if err != nil {
		return nil, requestError("Proxies", err)
	}
	if err := checkStatus(resp, http.StatusOK, "Proxies"); err != nil {
		return nil, err
	}

	proxies := make(map[string]*Proxy)
	if err := json.Unmarshal(resp.Body, &proxies); err != nil {
		return nil, requestError("Proxies", err)
	}
	for _, proxy := range proxies {
		proxy.conn = client.conn
	}
	return proxies, nil
}

// Proxy returns the proxy with the given name as-is, toxics included.
// Unlike FindProxy it does not touch the proxy's state, and a missing proxy
// is an error.
func (client *Client) Proxy(name string) (*Proxy, error) {
	resp, err := client.conn.get("/proxies/" + name)
	if err != nil {
		return nil, requestError("Proxy", err)
	}
	if err := checkStatus(resp, http.StatusOK, "Proxy"); err != nil {
		return nil, err
	}

	proxy := &Proxy{}
	if err := json.Unmarshal(resp.Body, proxy); err != nil {
		return nil, requestError("Proxy", err)
	}
	proxy.conn = client.conn
	return proxy, nil
}

// FindProxy looks up a proxy by name and prepares it for a scenario: any
// toxics left over from earlier runs are removed before the proxy is
// returned. It returns (nil, nil) when no proxy with that name exists; an
// error means the lookup or the toxic cleanup failed.
func (client *Client) FindProxy(name string) (*Proxy, error) {
	proxies, err := client.Proxies()
	if err != nil {
		return nil, err
	}
	proxy, ok := proxies[name]
	if !ok {
		return nil, nil
	}
	if err := proxy.removeAllToxics(); err != nil {
		return nil, err
	}
	proxy.ActiveToxics = nil
	return proxy, nil
}

// CreateProxy creates a single proxy on the server and returns the bound
// server-side copy.
func (client *Client) CreateProxy(name, listen, upstream string) (*Proxy, error) {
	body, err := json.Marshal(NewProxy(name, listen, upstream))
	if err != nil {
		return nil, requestError("CreateProxy", err)
	}

	resp, err := client.conn.postJSON("/proxies", body)
	if err != nil {
		return nil, requestError("CreateProxy", err)
	}
	if err := checkStatus(resp, http.StatusCreated, "CreateProxy"); err != nil {
		return nil, err
	}

	proxy := &Proxy{}
	if err := json.Unmarshal(resp.Body, proxy); err != nil {
		return nil, requestError("CreateProxy", err)
	}
	proxy.conn = client.conn
	return proxy, nil
}

// Populate creates or replaces the given proxies in one call and returns
// the server's canonical list, bound to this client's connection.
func (client *Client) Populate(proxies []Proxy) ([]*Proxy, error) {
	body, err := json.Marshal(proxies)
	if err != nil {
		return nil, requestError("Populate", err)
	}

	resp, err := client.conn.postJSON("/populate", body)
	if err != nil {
		return nil, requestError("Populate", err)
	}
	if err := checkStatus(resp, http.StatusCreated, "Populate"); err != nil {
		return nil, err
	}

	var created struct {
		Proxies []*Proxy `json:"proxies"`
	}
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return nil, requestError("Populate", err)
	}
	for _, proxy := range created.Proxies {
		proxy.conn = client.conn
	}
	return created.Proxies, nil
}
