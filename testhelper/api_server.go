// Package testhelper provides an in-memory Toxiproxy control plane and
// small TCP fixtures for testing client code without a real server.
package testhelper

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gorilla/mux"
)

// ApiServer is a fake Toxiproxy control plane holding proxies and toxics in
// memory. It implements the same routes and status codes as the real
// server, so the client can be exercised end to end over HTTP.
type ApiServer struct {
	Version string

	// FailToxicDelete makes every toxic delete return 503, for testing
	// cleanup failure paths.
	FailToxicDelete bool

	mu      sync.Mutex
	proxies map[string]*proxyRecord
	server  *httptest.Server
}

type proxyRecord struct {
	Name     string        `json:"name"`
	Listen   string        `json:"listen"`
	Upstream string        `json:"upstream"`
	Enabled  bool          `json:"enabled"`
	Toxics   []toxicRecord `json:"toxics"`
}

type toxicRecord struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Stream     string            `json:"stream"`
	Toxicity   float32           `json:"toxicity"`
	Attributes map[string]uint32 `json:"attributes"`
}

// NewApiServer starts a fake control plane on a local port. Callers must
// Close it.
func NewApiServer() *ApiServer {
	s := &ApiServer{
		Version: "2.5.0-test",
		proxies: make(map[string]*proxyRecord),
	}

	r := mux.NewRouter()
	r.HandleFunc("/proxies", s.proxyIndex).Methods("GET")
	r.HandleFunc("/proxies", s.proxyCreate).Methods("POST")
	r.HandleFunc("/populate", s.populate).Methods("POST")
	r.HandleFunc("/proxies/{proxy}", s.proxyShow).Methods("GET")
	r.HandleFunc("/proxies/{proxy}", s.proxyUpdate).Methods("POST")
	r.HandleFunc("/proxies/{proxy}", s.proxyDelete).Methods("DELETE")
	r.HandleFunc("/proxies/{proxy}/toxics", s.toxicIndex).Methods("GET")
	r.HandleFunc("/proxies/{proxy}/toxics", s.toxicCreate).Methods("POST")
	r.HandleFunc("/proxies/{proxy}/toxics/{toxic}", s.toxicUpdate).Methods("POST")
	r.HandleFunc("/proxies/{proxy}/toxics/{toxic}", s.toxicDelete).Methods("DELETE")
	r.HandleFunc("/reset", s.reset).Methods("POST")
	r.HandleFunc("/version", s.version).Methods("GET")

	s.server = httptest.NewServer(r)
	return s
}

// URL is the base endpoint clients should connect to.
func (s *ApiServer) URL() string {
	return s.server.URL
}

func (s *ApiServer) Close() {
	s.server.Close()
}

// ProxyToxicNames returns the names of the toxics currently attached to a
// proxy, for asserting end state without going through the client.
func (s *ApiServer) ProxyToxicNames(proxy string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.proxies[proxy]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(record.Toxics))
	for _, toxic := range record.Toxics {
		names = append(names, toxic.Name)
	}
	return names
}

// HasProxy reports whether a proxy exists and whether it is enabled.
func (s *ApiServer) HasProxy(name string) (exists, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.proxies[name]
	if !ok {
		return false, false
	}
	return true, record.Enabled
}

func (s *ApiServer) proxyIndex(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.proxies)
}

func (s *ApiServer) proxyCreate(w http.ResponseWriter, r *http.Request) {
	record := &proxyRecord{Enabled: true}
	if err := json.NewDecoder(r.Body).Decode(record); err != nil {
		apiError(w, http.StatusBadRequest, "bad request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.proxies[record.Name]; ok {
		apiError(w, http.StatusConflict, "proxy already exists")
		return
	}
	if record.Toxics == nil {
		record.Toxics = []toxicRecord{}
	}
	s.proxies[record.Name] = record
	writeJSON(w, http.StatusCreated, record)
}

func (s *ApiServer) populate(w http.ResponseWriter, r *http.Request) {
	var records []*proxyRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		apiError(w, http.StatusBadRequest, "bad request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		if record.Name == "" || record.Listen == "" || record.Upstream == "" {
			apiError(w, http.StatusBadRequest, "missing required field")
			return
		}
		record.Toxics = []toxicRecord{}
		s.proxies[record.Name] = record
	}
	writeJSON(w, http.StatusCreated, map[string][]*proxyRecord{"proxies": records})
}

func (s *ApiServer) proxyShow(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.proxies[mux.Vars(r)["proxy"]]
	if !ok {
		apiError(w, http.StatusNotFound, "proxy not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *ApiServer) proxyUpdate(w http.ResponseWriter, r *http.Request) {
	var update struct {
		Enabled  *bool   `json:"enabled"`
		Listen   *string `json:"listen"`
		Upstream *string `json:"upstream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		apiError(w, http.StatusBadRequest, "bad request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.proxies[mux.Vars(r)["proxy"]]
	if !ok {
		apiError(w, http.StatusNotFound, "proxy not found")
		return
	}
	if update.Enabled != nil {
		record.Enabled = *update.Enabled
	}
	if update.Listen != nil {
		record.Listen = *update.Listen
	}
	if update.Upstream != nil {
		record.Upstream = *update.Upstream
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *ApiServer) proxyDelete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := mux.Vars(r)["proxy"]
	if _, ok := s.proxies[name]; !ok {
		apiError(w, http.StatusNotFound, "proxy not found")
		return
	}
	delete(s.proxies, name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *ApiServer) toxicIndex(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.proxies[mux.Vars(r)["proxy"]]
	if !ok {
		apiError(w, http.StatusNotFound, "proxy not found")
		return
	}
	writeJSON(w, http.StatusOK, record.Toxics)
}

func (s *ApiServer) toxicCreate(w http.ResponseWriter, r *http.Request) {
	toxic := toxicRecord{Toxicity: 1.0}
	if err := json.NewDecoder(r.Body).Decode(&toxic); err != nil {
		apiError(w, http.StatusBadRequest, "bad request body")
		return
	}
	if toxic.Stream == "" {
		toxic.Stream = "downstream"
	}
	if toxic.Attributes == nil {
		toxic.Attributes = map[string]uint32{}
	}
	if toxic.Name == "" {
		toxic.Name = toxic.Type + "_" + toxic.Stream
	}
	if toxic.Stream != "upstream" && toxic.Stream != "downstream" {
		apiError(w, http.StatusBadRequest, "stream was invalid, can be either upstream or downstream")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.proxies[mux.Vars(r)["proxy"]]
	if !ok {
		apiError(w, http.StatusNotFound, "proxy not found")
		return
	}
	// Same name means same type+stream: replace in place rather than
	// accumulating duplicates.
	replaced := false
	for i := range record.Toxics {
		if record.Toxics[i].Name == toxic.Name {
			record.Toxics[i] = toxic
			replaced = true
			break
		}
	}
	if !replaced {
		record.Toxics = append(record.Toxics, toxic)
	}
	writeJSON(w, http.StatusOK, toxic)
}

func (s *ApiServer) toxicUpdate(w http.ResponseWriter, r *http.Request) {
	var update struct {
		Toxicity   *float32          `json:"toxicity"`
		Attributes map[string]uint32 `json:"attributes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		apiError(w, http.StatusBadRequest, "bad request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.proxies[mux.Vars(r)["proxy"]]
	if !ok {
		apiError(w, http.StatusNotFound, "proxy not found")
		return
	}
	name := mux.Vars(r)["toxic"]
	for i := range record.Toxics {
		if record.Toxics[i].Name != name {
			continue
		}
		if update.Toxicity != nil {
			record.Toxics[i].Toxicity = *update.Toxicity
		}
		for k, v := range update.Attributes {
			record.Toxics[i].Attributes[k] = v
		}
		writeJSON(w, http.StatusOK, record.Toxics[i])
		return
	}
	apiError(w, http.StatusNotFound, "toxic not found")
}

func (s *ApiServer) toxicDelete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailToxicDelete {
		apiError(w, http.StatusServiceUnavailable, "toxic delete disabled")
		return
	}

	record, ok := s.proxies[mux.Vars(r)["proxy"]]
	if !ok {
		apiError(w, http.StatusNotFound, "proxy not found")
		return
	}
	name := mux.Vars(r)["toxic"]
	for i := range record.Toxics {
		if record.Toxics[i].Name == name {
			record.Toxics = append(record.Toxics[:i], record.Toxics[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	apiError(w, http.StatusNotFound, "toxic not found")
}

func (s *ApiServer) reset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.proxies {
		record.Enabled = true
		record.Toxics = []toxicRecord{}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *ApiServer) version(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, s.Version)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error":  message,
		"status": status,
	})
}
