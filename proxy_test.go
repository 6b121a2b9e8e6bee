package toxiproxy_test

import (
	"errors"
	"testing"

	toxiproxy "github.com/JaydenElliott/toxiproxy-go"
	"github.com/JaydenElliott/toxiproxy-go/testhelper"
)

func setupProxy(t *testing.T) (*testhelper.ApiServer, *toxiproxy.Client, *toxiproxy.Proxy) {
	t.Helper()

	server := testhelper.NewApiServer()
	t.Cleanup(server.Close)

	client := toxiproxy.NewClient(server.URL())
	proxy, err := client.CreateProxy("socket", "127.0.0.1:2000", "127.0.0.1:2001")
	if err != nil {
		t.Fatalf("Failed to create proxy: %v", err)
	}
	return server, client, proxy
}

func TestEnableDisableIdempotent(t *testing.T) {
	t.Parallel()

	server, _, proxy := setupProxy(t)

	for i := 0; i < 2; i++ {
		if err := proxy.Disable(); err != nil {
			t.Fatalf("Disable #%d failed: %v", i+1, err)
		}
	}
	if _, enabled := server.HasProxy("socket"); enabled {
		t.Fatal("Expected proxy to be disabled")
	}

	for i := 0; i < 2; i++ {
		if err := proxy.Enable(); err != nil {
			t.Fatalf("Enable #%d failed: %v", i+1, err)
		}
	}
	if _, enabled := server.HasProxy("socket"); !enabled {
		t.Fatal("Expected proxy to be enabled")
	}
}

func TestUpdatePartialFields(t *testing.T) {
	t.Parallel()

	_, client, proxy := setupProxy(t)

	err := proxy.Update(map[string]any{"listen": "127.0.0.1:2002"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	fetched, err := client.Proxy("socket")
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Listen != "127.0.0.1:2002" {
		t.Fatalf("Expected listen to change, got %q", fetched.Listen)
	}
	if fetched.Upstream != "127.0.0.1:2001" {
		t.Fatalf("Partial update should not touch upstream, got %q", fetched.Upstream)
	}
}

func TestDeleteProxy(t *testing.T) {
	t.Parallel()

	server, client, proxy := setupProxy(t)

	if err := proxy.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if exists, _ := server.HasProxy("socket"); exists {
		t.Fatal("Expected proxy to be gone")
	}

	found, err := client.FindProxy("socket")
	if err != nil {
		t.Fatal(err)
	}
	if found != nil {
		t.Fatal("Expected FindProxy to report the proxy as absent")
	}
}

func TestWithLatencyAttributes(t *testing.T) {
	t.Parallel()

	_, _, proxy := setupProxy(t)

	if _, err := proxy.WithLatency(toxiproxy.StreamDownstream, 2000, 0, 1.0); err != nil {
		t.Fatalf("Failed to attach latency toxic: %v", err)
	}

	toxics, err := proxy.Toxics()
	if err != nil {
		t.Fatal(err)
	}
	if len(toxics) != 1 {
		t.Fatalf("Expected 1 toxic, got %d", len(toxics))
	}

	toxic := toxics[0]
	if toxic.Name != "latency_downstream" {
		t.Errorf("Expected name latency_downstream, got %q", toxic.Name)
	}
	if toxic.Type != "latency" || toxic.Stream != "downstream" {
		t.Errorf("Unexpected type/stream: %q/%q", toxic.Type, toxic.Stream)
	}
	if toxic.Toxicity != 1.0 {
		t.Errorf("Expected toxicity 1.0, got %v", toxic.Toxicity)
	}
	if toxic.Attributes["latency"] != 2000 || toxic.Attributes["jitter"] != 0 {
		t.Errorf("Unexpected attributes: %v", toxic.Attributes)
	}
}

func TestReattachReplacesToxic(t *testing.T) {
	t.Parallel()

	_, _, proxy := setupProxy(t)

	if _, err := proxy.WithLatency(toxiproxy.StreamDownstream, 1000, 0, 1.0); err != nil {
		t.Fatal(err)
	}
	if _, err := proxy.WithLatency(toxiproxy.StreamDownstream, 2000, 50, 1.0); err != nil {
		t.Fatal(err)
	}

	toxics, err := proxy.Toxics()
	if err != nil {
		t.Fatal(err)
	}
	if len(toxics) != 1 {
		t.Fatalf("Re-attaching the same type and stream must not duplicate, got %d toxics", len(toxics))
	}
	if toxics[0].Attributes["latency"] != 2000 || toxics[0].Attributes["jitter"] != 50 {
		t.Fatalf("Expected the replacement's attributes, got %v", toxics[0].Attributes)
	}
}

func TestBuilderChaining(t *testing.T) {
	t.Parallel()

	_, _, proxy := setupProxy(t)

	chained, err := proxy.WithLatency(toxiproxy.StreamDownstream, 100, 10, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := chained.WithBandwidth(toxiproxy.StreamUpstream, 64, 0.5); err != nil {
		t.Fatal(err)
	}
	if _, err := chained.WithSlicer(toxiproxy.StreamDownstream, 1024, 128, 50, 1.0); err != nil {
		t.Fatal(err)
	}

	toxics, err := proxy.Toxics()
	if err != nil {
		t.Fatal(err)
	}
	if len(toxics) != 3 {
		t.Fatalf("Expected 3 toxics, got %d", len(toxics))
	}

	names := map[string]bool{}
	for _, toxic := range toxics {
		names[toxic.Name] = true
	}
	for _, want := range []string{"latency_downstream", "bandwidth_upstream", "slicer_downstream"} {
		if !names[want] {
			t.Errorf("Missing toxic %q, have %v", want, names)
		}
	}
}

func TestBuilderFailureIsPrecondition(t *testing.T) {
	t.Parallel()

	server, client, _ := setupProxy(t)

	created, err := client.Populate([]toxiproxy.Proxy{
		*toxiproxy.NewProxy("other", "127.0.0.1:2002", "127.0.0.1:2003"),
	})
	if err != nil {
		t.Fatal(err)
	}
	proxy := created[0]
	if err := proxy.Delete(); err != nil {
		t.Fatal(err)
	}

	_, err = proxy.WithLatency(toxiproxy.StreamDownstream, 100, 0, 1.0)
	if err == nil {
		t.Fatal("Expected attaching on a deleted proxy to fail")
	}
	var precondErr *toxiproxy.PreconditionError
	if !errors.As(err, &precondErr) {
		t.Fatalf("Expected a PreconditionError, got %T: %v", err, err)
	}

	// The failed attach must not have left faults on other proxies.
	if names := server.ProxyToxicNames("socket"); len(names) != 0 {
		t.Fatalf("Expected socket untouched, got toxics %v", names)
	}
}

func TestDown(t *testing.T) {
	t.Parallel()

	server, _, proxy := setupProxy(t)

	if err := proxy.Down(); err != nil {
		t.Fatalf("Down failed: %v", err)
	}
	if _, enabled := server.HasProxy("socket"); enabled {
		t.Fatal("Expected proxy to be disabled after Down")
	}
}

func TestDownFailureIsPrecondition(t *testing.T) {
	t.Parallel()

	_, _, proxy := setupProxy(t)
	if err := proxy.Delete(); err != nil {
		t.Fatal(err)
	}

	err := proxy.Down()
	if err == nil {
		t.Fatal("Expected Down on a deleted proxy to fail")
	}
	var precondErr *toxiproxy.PreconditionError
	if !errors.As(err, &precondErr) {
		t.Fatalf("Expected a PreconditionError, got %T: %v", err, err)
	}
}

func TestUpdateToxic(t *testing.T) {
	t.Parallel()

	_, _, proxy := setupProxy(t)

	if _, err := proxy.WithLatency(toxiproxy.StreamDownstream, 100, 0, 1.0); err != nil {
		t.Fatal(err)
	}

	updated, err := proxy.UpdateToxic("latency_downstream", 0.5, toxiproxy.Attributes{
		"jitter": 30,
	})
	if err != nil {
		t.Fatalf("UpdateToxic failed: %v", err)
	}
	if updated.Toxicity != 0.5 {
		t.Errorf("Expected toxicity 0.5, got %v", updated.Toxicity)
	}
	if updated.Attributes["jitter"] != 30 || updated.Attributes["latency"] != 100 {
		t.Errorf("Unexpected attributes after update: %v", updated.Attributes)
	}
}

func TestUnboundProxyPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("Expected a remote operation on an unbound proxy to panic")
		}
	}()

	proxy := toxiproxy.NewProxy("socket", "127.0.0.1:2000", "127.0.0.1:2001")
	proxy.Disable()
}
