// Package viewer wires a validated credential to the auth and fetch
// machinery for the lifetime of one connection.
package viewer

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/davewd/firebase-data-gui/credential"
	"github.com/davewd/firebase-data-gui/pemkey"
	"github.com/davewd/firebase-data-gui/report"
	"github.com/davewd/firebase-data-gui/token"
	"github.com/davewd/firebase-data-gui/tree"
)

// Session holds the credential, token broker and fetcher for one connected
// database. Rendering the snapshots it produces is the caller's concern.
type Session struct {
	cred     *credential.Credential
	broker   *token.Broker
	fetcher  *tree.Fetcher
	reporter *report.Reporter
}

type config struct {
	log        logrus.FieldLogger
	tokenURL   string
	httpClient *http.Client
	limit      int
}

// Option configures a Session.
type Option func(*config)

// WithLogger sets the logger shared by the session's components.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *config) { c.log = log }
}

// WithTokenURL overrides the OAuth token endpoint (tests).
func WithTokenURL(u string) Option {
	return func(c *config) { c.tokenURL = u }
}

// WithHTTPClient overrides the HTTP client for both token exchange and
// database reads.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// WithLimit overrides the snapshot breadth bound.
func WithLimit(n int) Option {
	return func(c *config) { c.limit = n }
}

// Open parses the credential file, loads the signing key and assembles the
// session. Credential and key problems surface here, before any network
// traffic is attempted.
func Open(data []byte, opts ...Option) (*Session, error) {
	cfg := config{log: logrus.StandardLogger(), limit: tree.DefaultLimit}
	for _, opt := range opts {
		opt(&cfg)
	}

	cred, err := credential.Parse(data)
	if err != nil {
		return nil, err
	}
	key, err := pemkey.LoadRSAPrivateKey(string(cred.PrivateKeyPEM()))
	if err != nil {
		return nil, err
	}

	var signerOpts []token.SignerOption
	brokerOpts := []token.BrokerOption{token.WithLogger(cfg.log)}
	if cfg.tokenURL != "" {
		signerOpts = append(signerOpts, token.WithAudience(cfg.tokenURL))
		brokerOpts = append(brokerOpts, token.WithTokenURL(cfg.tokenURL))
	}
	if cfg.httpClient != nil {
		brokerOpts = append(brokerOpts, token.WithHTTPClient(cfg.httpClient))
	}
	signer := token.NewSigner(cred, key, signerOpts...)
	broker := token.NewBroker(signer, brokerOpts...)

	fetcherOpts := []tree.Option{tree.WithLimit(cfg.limit), tree.WithLogger(cfg.log)}
	if cfg.httpClient != nil {
		fetcherOpts = append(fetcherOpts, tree.WithHTTPClient(cfg.httpClient))
	}
	fetcher := tree.NewFetcher(cred.Endpoint(), broker, fetcherOpts...)

	return &Session{
		cred:     cred,
		broker:   broker,
		fetcher:  fetcher,
		reporter: report.NewReporter(cfg.log),
	}, nil
}

// Endpoint returns the database base URL the session reads from.
func (s *Session) Endpoint() string { return s.cred.Endpoint() }

// Snapshot fetches a bounded snapshot of the database.
func (s *Session) Snapshot(ctx context.Context) (*tree.Snapshot, error) {
	return s.fetcher.FetchSnapshot(ctx)
}

// Describe turns err into the user-visible, correlation-id-bearing message.
// The same string is written to the log.
func (s *Session) Describe(err error) string {
	return s.reporter.ReportError(err)
}

// Close scrubs the credential material. The session is unusable afterwards.
func (s *Session) Close() {
	s.cred.Scrub()
}
