package toxiproxy

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Proxy is a handle on one remote proxy resource. Proxies obtained from a
// Client share its control connection; a proxy built with NewProxy is
// declarative only (for Populate) and cannot issue remote operations until
// the server binds it.
type Proxy struct {
	Name     string `json:"name"`     // The name of the proxy
	Listen   string `json:"listen"`   // The address the proxy listens on
	Upstream string `json:"upstream"` // The upstream address to proxy to
	Enabled  bool   `json:"enabled"`  // Whether the proxy is enabled

	// ActiveToxics is the toxic snapshot from the last listing; it is
	// never consulted for cleanup, Toxics() is.
	ActiveToxics Toxics `json:"toxics,omitempty"`

	conn *Conn
}

// NewProxy builds a declarative proxy definition for Populate. The result
// is not bound to a connection.
func NewProxy(name, listen, upstream string) *Proxy {
	return &Proxy{
		Name:     name,
		Listen:   listen,
		Upstream: upstream,
		Enabled:  true,
	}
}

// ensureConn panics when the proxy has no control connection. Calling a
// remote operation on an unbound proxy is a contract violation by the
// caller, not a runtime condition to recover from.
func (proxy *Proxy) ensureConn() *Conn {
	if proxy.conn == nil {
		panic("toxiproxy: proxy " + proxy.Name + " is not bound to a control connection")
	}
	return proxy.conn
}

// Update sends a partial update of the proxy's fields, e.g.
// map[string]any{"enabled": false}. Enable and Disable build on this.
func (proxy *Proxy) Update(payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return requestError("Update", err)
	}

	resp, err := proxy.ensureConn().postJSON("/proxies/"+proxy.Name, body)
	if err != nil {
		return requestError("Update", err)
	}
	return checkStatus(resp, http.StatusOK, "Update")
}

// Enable lets the proxy accept connections again. Enabling an already
// enabled proxy is a no-op on the server.
func (proxy *Proxy) Enable() error {
	err := proxy.Update(map[string]bool{"enabled": true})
	if err == nil {
		proxy.Enabled = true
	}
	return err
}

// Disable makes the proxy reject connections without deleting it. Idempotent.
func (proxy *Proxy) Disable() error {
	err := proxy.Update(map[string]bool{"enabled": false})
	if err == nil {
		proxy.Enabled = false
	}
	return err
}

// Down disables the proxy and treats failure as a scenario precondition
// failure: if the proxy cannot be taken down the scenario has nothing to
// test, so the caller should abort.
func (proxy *Proxy) Down() error {
	if err := proxy.Disable(); err != nil {
		return &PreconditionError{Op: "Down " + proxy.Name, Err: err}
	}
	return nil
}

// Delete removes the proxy from the server. The handle is stale after a
// successful delete.
func (proxy *Proxy) Delete() error {
	resp, err := proxy.ensureConn().del("/proxies/" + proxy.Name)
	if err != nil {
		return requestError("Delete", err)
	}
	return checkStatus(resp, http.StatusNoContent, "Delete")
}

// Toxics fetches the authoritative toxic list for this proxy from the
// server.
func (proxy *Proxy) Toxics() (Toxics, error) {
	resp, err := proxy.ensureConn().get("/proxies/" + proxy.Name + "/toxics")
	if err != nil {
		return nil, requestError("Toxics", err)
	}
	if err := checkStatus(resp, http.StatusOK, "Toxics"); err != nil {
		return nil, err
	}

	toxics := make(Toxics, 0)
	if err := json.Unmarshal(resp.Body, &toxics); err != nil {
		return nil, requestError("Toxics", err)
	}
	return toxics, nil
}

// AddToxic attaches a toxic to this proxy and returns the server's copy.
func (proxy *Proxy) AddToxic(toxic *Toxic) (*Toxic, error) {
	body, err := json.Marshal(toxic)
	if err != nil {
		return nil, requestError("AddToxic", err)
	}

	resp, err := proxy.ensureConn().postJSON("/proxies/"+proxy.Name+"/toxics", body)
	if err != nil {
		return nil, requestError("AddToxic", err)
	}
	if err := checkStatus(resp, http.StatusOK, "AddToxic"); err != nil {
		return nil, err
	}

	result := &Toxic{}
	if err := json.Unmarshal(resp.Body, result); err != nil {
		return nil, requestError("AddToxic", err)
	}
	return result, nil
}

// UpdateToxic sets the toxicity and attributes of an existing toxic.
func (proxy *Proxy) UpdateToxic(name string, toxicity float32, attrs Attributes) (*Toxic, error) {
	body, err := json.Marshal(map[string]any{
		"toxicity":   toxicity,
		"attributes": attrs,
	})
	if err != nil {
		return nil, requestError("UpdateToxic", err)
	}

	resp, err := proxy.ensureConn().postJSON("/proxies/"+proxy.Name+"/toxics/"+name, body)
	if err != nil {
		return nil, requestError("UpdateToxic", err)
	}
	if err := checkStatus(resp, http.StatusOK, "UpdateToxic"); err != nil {
		return nil, err
	}

	result := &Toxic{}
	if err := json.Unmarshal(resp.Body, result); err != nil {
		return nil, requestError("UpdateToxic", err)
	}
	return result, nil
}

// RemoveToxic removes the toxic with the given name.
func (proxy *Proxy) RemoveToxic(name string) error {
	resp, err := proxy.ensureConn().del("/proxies/" + proxy.Name + "/toxics/" + name)
	if err != nil {
		return requestError("RemoveToxic", err)
	}
	return checkStatus(resp, http.StatusNoContent, "RemoveToxic")
}

// attach is the common path for the With* builders. Failure to attach means
// the scenario's fault is not in place, which is fatal for the caller; no
// compensation is attempted on other proxies.
func (proxy *Proxy) attach(toxic *Toxic) (*Proxy, error) {
	if _, err := proxy.AddToxic(toxic); err != nil {
		return proxy, &PreconditionError{Op: "attach " + toxic.Name + " on " + proxy.Name, Err: err}
	}
	return proxy, nil
}

// WithLatency attaches a latency toxic delaying traffic by latency ± jitter
// milliseconds. The toxic is named latency_<stream>.
func (proxy *Proxy) WithLatency(stream string, latency, jitter uint32, toxicity float32) (*Proxy, error) {
	return proxy.attach(NewToxic("latency", stream, toxicity, Attributes{
		"latency": latency,
		"jitter":  jitter,
	}))
}

// WithBandwidth attaches a bandwidth toxic limiting traffic to rate KB/s.
func (proxy *Proxy) WithBandwidth(stream string, rate uint32, toxicity float32) (*Proxy, error) {
	return proxy.attach(NewToxic("bandwidth", stream, toxicity, Attributes{
		"rate": rate,
	}))
}

// WithSlowClose attaches a slow_close toxic delaying the connection close
// by delay milliseconds.
func (proxy *Proxy) WithSlowClose(stream string, delay uint32, toxicity float32) (*Proxy, error) {
	return proxy.attach(NewToxic("slow_close", stream, toxicity, Attributes{
		"delay": delay,
	}))
}

// WithTimeout attaches a timeout toxic that stops all data and closes the
// connection after timeout milliseconds.
func (proxy *Proxy) WithTimeout(stream string, timeout uint32, toxicity float32) (*Proxy, error) {
	return proxy.attach(NewToxic("timeout", stream, toxicity, Attributes{
		"timeout": timeout,
	}))
}

// WithSlicer attaches a slicer toxic cutting data into averageSize ±
// sizeVariation byte slices with delay microseconds between them.
func (proxy *Proxy) WithSlicer(stream string, averageSize, sizeVariation, delay uint32, toxicity float32) (*Proxy, error) {
	return proxy.attach(NewToxic("slicer", stream, toxicity, Attributes{
		"average_size":   averageSize,
		"size_variation": sizeVariation,
		"delay":          delay,
	}))
}

// WithLimitData attaches a limit_data toxic closing the connection after
// the given number of bytes.
func (proxy *Proxy) WithLimitData(stream string, bytes uint32, toxicity float32) (*Proxy, error) {
	return proxy.attach(NewToxic("limit_data", stream, toxicity, Attributes{
		"bytes": bytes,
	}))
}

// WithResetPeer attaches a reset_peer toxic simulating a TCP RESET after
// timeout milliseconds.
func (proxy *Proxy) WithResetPeer(stream string, timeout uint32, toxicity float32) (*Proxy, error) {
	return proxy.attach(NewToxic("reset_peer", stream, toxicity, Attributes{
		"timeout": timeout,
	}))
}

// Apply runs scenario under whatever toxics are attached and afterwards
// removes every toxic on this proxy, whether the scenario returned
// normally, returned an error, or panicked. A panic is re-raised after the
// cleanup has run.
//
// Apply returns nil only when the scenario succeeded and every toxic was
// removed. If cleanup fails partway through, the remaining toxics stay
// attached and the failure is surfaced; it is never retried or swallowed,
// so an interrupted scenario cannot leave fault injection active without
// the caller knowing.
func (proxy *Proxy) Apply(scenario func() error) (err error) {
	defer func() {
		err = errors.Join(err, proxy.removeAllToxics())
	}()
	return scenario()
}

// removeAllToxics lists the proxy's toxics and deletes them one by one,
// stopping at the first failure.
func (proxy *Proxy) removeAllToxics() error {
	toxics, err := proxy.Toxics()
	if err != nil {
		return err
	}
	for _, toxic := range toxics {
		if err := proxy.RemoveToxic(toxic.Name); err != nil {
			return err
		}
	}
	return nil
}
