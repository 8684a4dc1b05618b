package tree

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultLimit bounds how many keys are taken at the root and how many
	// children the store returns per subtree level.
	DefaultLimit = 5

	defaultTimeout = 30 * time.Second
)

// TokenSource supplies bearer tokens for database requests. *token.Broker
// satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// RootFetchError is fatal for the whole snapshot operation.
type RootFetchError struct {
	Err error
}

func (e *RootFetchError) Error() string { return "tree: root fetch failed: " + e.Err.Error() }
func (e *RootFetchError) Unwrap() error { return e.Err }

// KeyFetchError records a non-fatal failure for one top-level key.
type KeyFetchError struct {
	Key string
	Err error
}

func (e *KeyFetchError) Error() string {
	return fmt.Sprintf("tree: fetch at key %q failed: %v", e.Key, e.Err)
}
func (e *KeyFetchError) Unwrap() error { return e.Err }

// StatusError reports an unexpected HTTP status from the database.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string { return fmt.Sprintf("tree: unexpected status %d", e.Status) }

// Snapshot is a bounded view of the database root. Keys are lexicographic;
// Failures lists top-level keys that were omitted because their subtree
// fetch failed.
type Snapshot struct {
	Keys     []string
	Children map[string]*Value
	Failures []*KeyFetchError
}

// Empty reports whether the snapshot carries no data at all.
func (s *Snapshot) Empty() bool { return len(s.Keys) == 0 && len(s.Failures) == 0 }

// Fetcher pulls bounded snapshots from a database endpoint.
type Fetcher struct {
	endpoint string
	source   TokenSource
	client   *http.Client
	limit    int
	log      logrus.FieldLogger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client used for database reads.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithLimit overrides the per-level breadth bound (default 5).
func WithLimit(n int) Option {
	return func(f *Fetcher) { f.limit = n }
}

// WithLogger sets the logger used for non-fatal fetch reports.
func WithLogger(log logrus.FieldLogger) Option {
	return func(f *Fetcher) { f.log = log }
}

// NewFetcher builds a fetcher for the database at endpoint (no trailing
// slash) authenticating through source.
func NewFetcher(endpoint string, source TokenSource, opts ...Option) *Fetcher {
	f := &Fetcher{
		endpoint: endpoint,
		source:   source,
		client:   &http.Client{Timeout: defaultTimeout},
		limit:    DefaultLimit,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchSnapshot lists the root keys with a shallow query, takes the first
// limit keys in lexicographic order and fetches their subtrees concurrently,
// each width-bounded by the store itself. Per-key failures are recorded in
// the snapshot and the key omitted; only a root-level failure is fatal. An
// empty or non-object root yields an empty snapshot.
func (f *Fetcher) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	tok, err := f.source.Token(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := f.get(ctx, f.endpoint+"/.json?shallow=true", tok.AccessToken)
	if err != nil {
		return nil, &RootFetchError{Err: err}
	}
	rootSet, ok := raw.(map[string]any)
	if !ok || len(rootSet) == 0 {
		return &Snapshot{Children: map[string]*Value{}}, nil
	}

	keys := make([]string, 0, len(rootSet))
	for k := range rootSet {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if f.limit > 0 && len(keys) > f.limit {
		keys = keys[:f.limit]
	}

	// Fan out the independent per-key fetches; each goroutine writes only
	// its own slot, so no lock is needed.
	values := make([]*Value, len(keys))
	failures := make([]*KeyFetchError, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			v, err := f.fetchKey(gctx, key, tok.AccessToken)
			if err != nil {
				failures[i] = &KeyFetchError{Key: key, Err: err}
				f.log.WithField("key", key).WithError(err).Warn("subtree fetch failed, omitting key")
				return nil
			}
			values[i] = v
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Reassemble in key order so the result is deterministic regardless of
	// completion order.
	snap := &Snapshot{Children: make(map[string]*Value, len(keys))}
	for i, key := range keys {
		if failures[i] != nil {
			snap.Failures = append(snap.Failures, failures[i])
			continue
		}
		snap.Keys = append(snap.Keys, key)
		snap.Children[key] = values[i]
	}
	return snap, nil
}

func (f *Fetcher) fetchKey(ctx context.Context, key, bearer string) (*Value, error) {
	u := fmt.Sprintf("%s/%s.json?limitToFirst=%d", f.endpoint, url.PathEscape(key), f.limit)
	raw, err := f.get(ctx, u, bearer)
	if err != nil {
		return nil, err
	}
	return Interpret(raw, f.limit), nil
}

func (f *Fetcher) get(ctx context.Context, rawURL, bearer string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode}
	}
	var raw any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding response body: %w", err)
	}
	return raw, nil
}
