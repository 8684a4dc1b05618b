// Package testing provides an in-process fake of the OAuth token endpoint
// and the database read API, enabling auth and fetch tests without any real
// network dependency.
//
// Example usage:
//
//	backend := firetest.NewBackend()
//	defer backend.Close()
//	backend.SetData(map[string]any{"a": 1})
//
//	sess, _ := viewer.Open(credJSON, viewer.WithTokenURL(backend.TokenURL()))
package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Backend serves POST /token plus shallow and limited database reads over an
// in-memory tree.
type Backend struct {
	server *httptest.Server

	mu            sync.Mutex
	data          map[string]any
	accessToken   string
	expiresIn     int64
	exchanges     int
	lastAssertion string
	tokenStatus   int
	rootStatus    int
	keyStatus     map[string]int
}

// NewBackend starts a backend with an empty tree issuing "test-token" for
// one hour. Call Close when done.
func NewBackend() *Backend {
	b := &Backend{
		data:        map[string]any{},
		accessToken: "test-token",
		expiresIn:   3600,
		keyStatus:   map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", b.handleToken)
	mux.HandleFunc("/", b.handleData)
	b.server = httptest.NewServer(mux)
	return b
}

// URL is the database endpoint base URL.
func (b *Backend) URL() string { return b.server.URL }

// TokenURL is the OAuth token endpoint URL.
func (b *Backend) TokenURL() string { return b.server.URL + "/token" }

// Close shuts the backend down.
func (b *Backend) Close() { b.server.Close() }

// SetData replaces the tree served at the root.
func (b *Backend) SetData(data map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = data
}

// SetToken controls the access token and expires_in returned by exchanges.
func (b *Backend) SetToken(token string, expiresIn int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accessToken = token
	b.expiresIn = expiresIn
}

// FailToken makes the token endpoint answer with the given status.
func (b *Backend) FailToken(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokenStatus = status
}

// FailRoot makes the shallow root listing answer with the given status.
func (b *Backend) FailRoot(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rootStatus = status
}

// FailKey makes the subtree read for key answer with the given status.
func (b *Backend) FailKey(key string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keyStatus[key] = status
}

// Exchanges counts completed token exchanges.
func (b *Backend) Exchanges() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exchanges
}

// LastAssertion returns the assertion JWT from the most recent exchange.
func (b *Backend) LastAssertion() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAssertion
}

func (b *Backend) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("grant_type") != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
		http.Error(w, "unsupported grant_type", http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.lastAssertion = r.PostForm.Get("assertion")
	status := b.tokenStatus
	if status == 0 {
		b.exchanges++
	}
	token, expiresIn := b.accessToken, b.expiresIn
	b.mu.Unlock()
	if status != 0 {
		http.Error(w, "token exchange refused", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": token,
		"expires_in":   expiresIn,
	})
}

func (b *Backend) handleData(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	bearer := "Bearer " + b.accessToken
	data := b.data
	rootStatus := b.rootStatus
	keyStatus := make(map[string]int, len(b.keyStatus))
	for k, v := range b.keyStatus {
		keyStatus[k] = v
	}
	b.mu.Unlock()

	if r.Header.Get("Authorization") != bearer {
		http.Error(w, "missing or invalid bearer token", http.StatusUnauthorized)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/")
	if !strings.HasSuffix(path, ".json") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	key := strings.TrimSuffix(path, ".json")

	if key == "" {
		if rootStatus != 0 {
			http.Error(w, "root listing refused", rootStatus)
			return
		}
		if r.URL.Query().Get("shallow") == "true" {
			shallow := make(map[string]bool, len(data))
			for k := range data {
				shallow[k] = true
			}
			writeJSON(w, shallow)
			return
		}
		writeJSON(w, data)
		return
	}

	if status, ok := keyStatus[key]; ok {
		http.Error(w, "subtree read refused", status)
		return
	}
	value, ok := data[key]
	if !ok {
		writeJSON(w, nil)
		return
	}
	if limit := r.URL.Query().Get("limitToFirst"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			value = limitChildren(value, n)
		}
	}
	writeJSON(w, value)
}

// limitChildren keeps the first n children (by key) at the queried level,
// mirroring the store-side limitToFirst behavior.
func limitChildren(value any, n int) any {
	obj, ok := value.(map[string]any)
	if !ok || len(obj) <= n {
		return value
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, n)
	for _, k := range keys[:n] {
		out[k] = obj[k]
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
