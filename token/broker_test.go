package token_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/davewd/firebase-data-gui/credential"
	firetest "github.com/davewd/firebase-data-gui/testing"
	"github.com/davewd/firebase-data-gui/token"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testBroker(t *testing.T, backend *firetest.Backend, clock *fakeClock) (*token.Broker, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	cred := &credential.Credential{ProjectID: "demo", ClientEmail: "svc@demo.iam.gserviceaccount.com"}
	signer := token.NewSigner(cred, key,
		token.WithAudience(backend.TokenURL()),
		token.WithSignerClock(clock.now),
	)
	broker := token.NewBroker(signer,
		token.WithTokenURL(backend.TokenURL()),
		token.WithClock(clock.now),
	)
	return broker, key
}

func TestTokenCachedWhileFresh(t *testing.T) {
	backend := firetest.NewBackend()
	defer backend.Close()
	backend.SetToken("T1", 120)
	clock := newFakeClock()
	broker, _ := testBroker(t, backend, clock)

	first, err := broker.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "T1", first.AccessToken)
	require.Equal(t, 1, backend.Exchanges())

	// Expiry is now+120s, the 60s renewal buffer leaves it valid: no
	// second network call.
	second, err := broker.Token(context.Background())
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, backend.Exchanges())
}

func TestTokenRenewedInsideBuffer(t *testing.T) {
	backend := firetest.NewBackend()
	defer backend.Close()
	backend.SetToken("T1", 3600)
	clock := newFakeClock()
	broker, _ := testBroker(t, backend, clock)

	_, err := broker.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, backend.Exchanges())

	// 30 seconds of validity left is inside the 60s buffer: exactly one
	// more exchange replaces the cache.
	clock.advance(3570 * time.Second)
	backend.SetToken("T2", 3600)
	renewed, err := broker.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "T2", renewed.AccessToken)
	require.Equal(t, 2, backend.Exchanges())

	again, err := broker.Token(context.Background())
	require.NoError(t, err)
	require.Same(t, renewed, again)
	require.Equal(t, 2, backend.Exchanges())
}

func TestTokenAssertionVerifies(t *testing.T) {
	backend := firetest.NewBackend()
	defer backend.Close()
	clock := newFakeClock()
	broker, key := testBroker(t, backend, clock)

	_, err := broker.Token(context.Background())
	require.NoError(t, err)

	parsed, err := jwxjwt.Parse([]byte(backend.LastAssertion()),
		jwxjwt.WithKey(jwa.RS256, key.Public()),
		jwxjwt.WithValidate(false),
	)
	require.NoError(t, err, "exchanged assertion must verify against the account key")
	require.Equal(t, []string{backend.TokenURL()}, parsed.Audience())
}

func TestTokenRequestFailed(t *testing.T) {
	backend := firetest.NewBackend()
	defer backend.Close()
	backend.FailToken(http.StatusForbidden)
	broker, _ := testBroker(t, backend, newFakeClock())

	_, err := broker.Token(context.Background())
	var reqErr *token.TokenRequestError
	require.True(t, errors.As(err, &reqErr), "got %v", err)
	require.Equal(t, http.StatusForbidden, reqErr.Status)
}

func TestTokenExpiryInvalid(t *testing.T) {
	backend := firetest.NewBackend()
	defer backend.Close()
	backend.SetToken("T1", 0)
	broker, _ := testBroker(t, backend, newFakeClock())

	_, err := broker.Token(context.Background())
	require.True(t, errors.Is(err, token.ErrTokenExpiryInvalid), "got %v", err)
}

func TestTokenNetworkFailure(t *testing.T) {
	backend := firetest.NewBackend()
	clock := newFakeClock()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	cred := &credential.Credential{ProjectID: "demo", ClientEmail: "svc@demo.iam.gserviceaccount.com"}
	signer := token.NewSigner(cred, key, token.WithAudience(backend.TokenURL()))
	broker := token.NewBroker(signer,
		token.WithTokenURL(backend.TokenURL()),
		token.WithClock(clock.now),
		token.WithRetryLimit(time.Millisecond),
	)
	backend.Close()

	_, err = broker.Token(context.Background())
	require.Error(t, err)
}

func TestTokenConcurrentMissesAreBenign(t *testing.T) {
	backend := firetest.NewBackend()
	defer backend.Close()
	broker, _ := testBroker(t, backend, newFakeClock())

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = broker.Token(context.Background())
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, backend.Exchanges(), 1)

	// After the dust settles the cache is self-consistent.
	tok, err := broker.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "test-token", tok.AccessToken)
}
