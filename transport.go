package toxiproxy

import (
	"net/http"
	"time"
)

// Transport executes one HTTP request against the control plane. The
// default is a net/http client with a request timeout; tests and embedders
// can substitute their own.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultRequestTimeout bounds a single control-plane request. The control
// plane is low volume, so a generous timeout is fine.
const DefaultRequestTimeout = 10 * time.Second

func defaultTransport() Transport {
	return &http.Client{Timeout: DefaultRequestTimeout}
}
