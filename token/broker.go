package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	grantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// RenewalBuffer is how far ahead of expiry a cached token is still
	// trusted; anything closer is renewed so it cannot expire mid-flight.
	RenewalBuffer = 60 * time.Second

	defaultTimeout    = 30 * time.Second
	defaultRetryLimit = 10 * time.Second
)

// ErrTokenExpiryInvalid marks a token response with a non-positive expires_in.
var ErrTokenExpiryInvalid = errors.New("token: token endpoint returned a non-positive expires_in")

// TokenRequestError reports a non-200 response from the token endpoint.
type TokenRequestError struct {
	Status int
	Body   string
}

func (e *TokenRequestError) Error() string {
	return fmt.Sprintf("token: token endpoint returned status %d", e.Status)
}

// Broker exchanges signed assertions for bearer tokens and caches the
// result. Safe for concurrent use: the cache is an atomic pointer swap, and
// concurrent misses may both exchange; last writer wins, which is benign
// because exchanges are idempotent.
type Broker struct {
	signer     *Signer
	tokenURL   string
	client     *http.Client
	log        logrus.FieldLogger
	now        func() time.Time
	retryLimit time.Duration

	cached atomic.Pointer[oauth2.Token]
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithTokenURL overrides the token endpoint (tests).
func WithTokenURL(u string) BrokerOption {
	return func(b *Broker) { b.tokenURL = u }
}

// WithHTTPClient overrides the HTTP client used for the exchange.
func WithHTTPClient(c *http.Client) BrokerOption {
	return func(b *Broker) { b.client = c }
}

// WithLogger sets the logger the broker reports through.
func WithLogger(log logrus.FieldLogger) BrokerOption {
	return func(b *Broker) { b.log = log }
}

// WithClock overrides the clock used for cache freshness checks.
func WithClock(now func() time.Time) BrokerOption {
	return func(b *Broker) { b.now = now }
}

// WithRetryLimit caps how long transient transport failures are retried.
func WithRetryLimit(d time.Duration) BrokerOption {
	return func(b *Broker) { b.retryLimit = d }
}

// NewBroker builds a broker around the signer, pointed at the Google token
// endpoint unless overridden.
func NewBroker(signer *Signer, opts ...BrokerOption) *Broker {
	b := &Broker{
		signer:     signer,
		tokenURL:   TokenURL,
		client:     &http.Client{Timeout: defaultTimeout},
		log:        logrus.StandardLogger(),
		now:        time.Now,
		retryLimit: defaultRetryLimit,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Token returns a bearer token, reusing the cached one while its expiry is
// still more than RenewalBuffer away. The cache hit path performs no I/O.
func (b *Broker) Token(ctx context.Context) (*oauth2.Token, error) {
	if tok := b.cached.Load(); tok != nil && tok.Expiry.After(b.now().Add(RenewalBuffer)) {
		return tok, nil
	}
	tok, err := b.exchange(ctx)
	if err != nil {
		return nil, err
	}
	b.cached.Store(tok)
	return tok, nil
}

// TokenSource adapts the broker to the x/oauth2 TokenSource contract.
func (b *Broker) TokenSource(ctx context.Context) oauth2.TokenSource {
	return brokerSource{ctx: ctx, broker: b}
}

type brokerSource struct {
	ctx    context.Context
	broker *Broker
}

func (s brokerSource) Token() (*oauth2.Token, error) { return s.broker.Token(s.ctx) }

func (b *Broker) exchange(ctx context.Context) (*oauth2.Token, error) {
	assertion, err := b.signer.Assertion()
	if err != nil {
		return nil, err
	}
	form := url.Values{
		"grant_type": {grantType},
		"assertion":  {assertion},
	}
	body := form.Encode()

	// Only transport-level failures are retried; HTTP status errors and
	// cancellation are permanent.
	var resp *http.Response
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.tokenURL, strings.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r, err := b.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = b.retryLimit
	if err := backoff.RetryNotify(operation, backoff.WithContext(expBackoff, ctx),
		func(err error, wait time.Duration) {
			b.log.WithError(err).Warnf("token exchange failed, retrying in %s", wait)
		}); err != nil {
		return nil, fmt.Errorf("token: token request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("token: reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TokenRequestError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	var decoded struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("token: decoding token response: %w", err)
	}
	if decoded.ExpiresIn <= 0 {
		return nil, ErrTokenExpiryInvalid
	}
	tok := &oauth2.Token{
		AccessToken: decoded.AccessToken,
		TokenType:   "Bearer",
		Expiry:      b.now().Add(time.Duration(decoded.ExpiresIn) * time.Second),
	}
	b.log.WithField("expires_in", decoded.ExpiresIn).Debug("exchanged service-account assertion for access token")
	return tok, nil
}
