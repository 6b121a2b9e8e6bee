package toxiproxy_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	toxiproxy "github.com/JaydenElliott/toxiproxy-go"
	"github.com/JaydenElliott/toxiproxy-go/testhelper"
)

func TestClient_Headers(t *testing.T) {
	t.Parallel()

	expected := "toxiproxy-cli/v1.0.0 (test)"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		if ua != expected {
			t.Errorf("User-Agent for %s %s is expected `%s', got: `%s'",
				r.Method,
				r.URL,
				expected,
				ua)
		}

		contentType := r.Header.Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("Content-Type for %s %s is expected `application/json', got: `%s'",
				r.Method,
				r.URL,
				contentType)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`foo`))
	}))
	defer server.Close()

	client := toxiproxy.NewClient(server.URL, toxiproxy.WithUserAgent(expected))

	cases := []struct {
		name string
		fn   func(c *toxiproxy.Client)
	}{
		{"get version", func(c *toxiproxy.Client) { c.Version() }},
		{"get proxies", func(c *toxiproxy.Client) { c.Proxies() }},
		{"get proxy", func(c *toxiproxy.Client) { c.Proxy("foo") }},
		{"create proxy", func(c *toxiproxy.Client) {
			c.CreateProxy("foo", "example.com:0", "example.com:0")
		}},
		{"post populate", func(c *toxiproxy.Client) {
			c.Populate([]toxiproxy.Proxy{{}})
		}},
		{"reset state", func(c *toxiproxy.Client) { c.Reset() }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(client)
		})
	}
}

func TestVersion(t *testing.T) {
	t.Parallel()

	server := testhelper.NewApiServer()
	defer server.Close()

	client := toxiproxy.NewClient(server.URL())
	version, err := client.Version()
	if err != nil {
		t.Fatalf("Failed to retrieve version: %v", err)
	}
	if version != server.Version {
		t.Fatalf("Expected version %q, got %q", server.Version, version)
	}
}

func TestPopulateRoundTrip(t *testing.T) {
	t.Parallel()

	server := testhelper.NewApiServer()
	defer server.Close()

	client := toxiproxy.NewClient(server.URL())
	created, err := client.Populate([]toxiproxy.Proxy{
		*toxiproxy.NewProxy("socket", "127.0.0.1:2000", "127.0.0.1:2001"),
		*toxiproxy.NewProxy("redis", "127.0.0.1:26379", "127.0.0.1:6379"),
	})
	if err != nil {
		t.Fatalf("Failed to populate: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("Expected 2 proxies, got %d", len(created))
	}

	proxy, err := client.FindProxy("socket")
	if err != nil {
		t.Fatalf("Failed to find proxy: %v", err)
	}
	if proxy == nil {
		t.Fatal("Expected to find proxy socket")
	}
	if proxy.Name != "socket" || proxy.Listen != "127.0.0.1:2000" || proxy.Upstream != "127.0.0.1:2001" {
		t.Fatalf("Proxy fields do not match creation values: %+v", proxy)
	}
	if !proxy.Enabled {
		t.Fatal("Expected populated proxy to be enabled")
	}
}

func TestFindProxyAbsent(t *testing.T) {
	t.Parallel()

	server := testhelper.NewApiServer()
	defer server.Close()

	client := toxiproxy.NewClient(server.URL())
	proxy, err := client.FindProxy("ghost")
	if err != nil {
		t.Fatalf("Lookup of a missing proxy should not fail: %v", err)
	}
	if proxy != nil {
		t.Fatalf("Expected nil proxy, got %+v", proxy)
	}
}

func TestFindProxyClearsToxics(t *testing.T) {
	t.Parallel()

	server := testhelper.NewApiServer()
	defer server.Close()

	client := toxiproxy.NewClient(server.URL())
	if _, err := client.Populate([]toxiproxy.Proxy{
		*toxiproxy.NewProxy("socket", "127.0.0.1:2000", "127.0.0.1:2001"),
	}); err != nil {
		t.Fatalf("Failed to populate: %v", err)
	}

	staged, err := client.FindProxy("socket")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := staged.WithLatency(toxiproxy.StreamDownstream, 500, 0, 1.0); err != nil {
		t.Fatalf("Failed to attach toxic: %v", err)
	}

	// A fresh lookup must hand back a proxy with no toxics attached.
	proxy, err := client.FindProxy("socket")
	if err != nil {
		t.Fatalf("Failed to find proxy: %v", err)
	}
	toxics, err := proxy.Toxics()
	if err != nil {
		t.Fatal(err)
	}
	if len(toxics) != 0 {
		t.Fatalf("Expected no toxics after FindProxy, got %v", toxics)
	}
}

func TestFindProxyCleanupFailure(t *testing.T) {
	t.Parallel()

	server := testhelper.NewApiServer()
	defer server.Close()

	client := toxiproxy.NewClient(server.URL())
	if _, err := client.Populate([]toxiproxy.Proxy{
		*toxiproxy.NewProxy("socket", "127.0.0.1:2000", "127.0.0.1:2001"),
	}); err != nil {
		t.Fatal(err)
	}

	staged, err := client.FindProxy("socket")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := staged.WithLatency(toxiproxy.StreamDownstream, 500, 0, 1.0); err != nil {
		t.Fatal(err)
	}

	server.FailToxicDelete = true
	proxy, err := client.FindProxy("socket")
	if err == nil {
		t.Fatal("Expected FindProxy to surface the toxic cleanup failure")
	}
	if proxy != nil {
		t.Fatalf("Expected no proxy when cleanup fails, got %+v", proxy)
	}

	var reqErr *toxiproxy.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Expected a RequestError, got %T: %v", err, err)
	}
}

func TestIsRunningWithoutServer(t *testing.T) {
	t.Parallel()

	// Nothing listens here.
	client := toxiproxy.NewClient("http://127.0.0.1:1")
	if client.IsRunning() {
		t.Fatal("Expected IsRunning to be false with no server listening")
	}
}

func TestIsRunning(t *testing.T) {
	t.Parallel()

	server := testhelper.NewApiServer()
	defer server.Close()

	client := toxiproxy.NewClient(server.URL())
	if !client.IsRunning() {
		t.Fatal("Expected IsRunning to be true while the server is up")
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	server := testhelper.NewApiServer()
	defer server.Close()

	client := toxiproxy.NewClient(server.URL())
	if _, err := client.Populate([]toxiproxy.Proxy{
		*toxiproxy.NewProxy("socket", "127.0.0.1:2000", "127.0.0.1:2001"),
	}); err != nil {
		t.Fatal(err)
	}

	proxy, err := client.FindProxy("socket")
	if err != nil {
		t.Fatal(err)
	}
	if err := proxy.Disable(); err != nil {
		t.Fatal(err)
	}
	if _, err := proxy.WithTimeout(toxiproxy.StreamUpstream, 1000, 1.0); err != nil {
		t.Fatal(err)
	}

	if err := client.Reset(); err != nil {
		t.Fatalf("Failed to reset: %v", err)
	}

	exists, enabled := server.HasProxy("socket")
	if !exists || !enabled {
		t.Fatalf("Expected socket to exist and be enabled after reset, exists=%v enabled=%v",
			exists, enabled)
	}
	if names := server.ProxyToxicNames("socket"); len(names) != 0 {
		t.Fatalf("Expected no toxics after reset, got %v", names)
	}
}

func TestProxyNotFoundError(t *testing.T) {
	t.Parallel()

	server := testhelper.NewApiServer()
	defer server.Close()

	client := toxiproxy.NewClient(server.URL())
	_, err := client.Proxy("ghost")
	if err == nil {
		t.Fatal("Expected an error for a missing proxy")
	}

	var apiErr *toxiproxy.ApiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected an ApiError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", apiErr.Status)
	}
}

// The end to end flow: populate, reset, find, inject, run, verify clean state.
func TestScenarioEndToEnd(t *testing.T) {
	t.Parallel()

	server := testhelper.NewApiServer()
	defer server.Close()

	client := toxiproxy.NewClient(server.URL())

	if _, err := client.Populate([]toxiproxy.Proxy{
		*toxiproxy.NewProxy("socket", "127.0.0.1:2000", "127.0.0.1:2001"),
	}); err != nil {
		t.Fatalf("Failed to populate: %v", err)
	}
	if err := client.Reset(); err != nil {
		t.Fatalf("Failed to reset: %v", err)
	}

	proxy, err := client.FindProxy("socket")
	if err != nil {
		t.Fatalf("Failed to find proxy: %v", err)
	}
	if proxy == nil {
		t.Fatal("Expected proxy socket to exist")
	}

	if _, err := proxy.WithLatency(toxiproxy.StreamDownstream, 2000, 0, 1.0); err != nil {
		t.Fatalf("Failed to attach latency toxic: %v", err)
	}

	ran := false
	if err := proxy.Apply(func() error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !ran {
		t.Fatal("Scenario did not run")
	}

	toxics, err := proxy.Toxics()
	if err != nil {
		t.Fatal(err)
	}
	if len(toxics) != 0 {
		t.Fatalf("Expected no toxics after Apply, got %v", toxics)
	}

	exists, enabled := server.HasProxy("socket")
	if !exists || !enabled {
		t.Fatalf("Expected socket to exist and be enabled, exists=%v enabled=%v", exists, enabled)
	}
}
