package token_test

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/davewd/firebase-data-gui/credential"
	"github.com/davewd/firebase-data-gui/token"
)

const testEmail = "svc@demo.iam.gserviceaccount.com"

func testSigner(t *testing.T, opts ...token.SignerOption) (*token.Signer, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	cred := &credential.Credential{ProjectID: "demo", ClientEmail: testEmail}
	return token.NewSigner(cred, key, opts...), key
}

func TestAssertionClaims(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer, key := testSigner(t, token.WithSignerClock(func() time.Time { return at }))

	assertion, err := signer.Assertion()
	require.NoError(t, err)

	parsed, err := jwxjwt.Parse([]byte(assertion),
		jwxjwt.WithKey(jwa.RS256, key.Public()),
		jwxjwt.WithValidate(false),
	)
	require.NoError(t, err, "assertion must verify against the signing key")

	require.Equal(t, testEmail, parsed.Issuer())
	require.Equal(t, testEmail, parsed.Subject())
	require.Equal(t, []string{token.TokenURL}, parsed.Audience())
	require.Equal(t, at.Unix(), parsed.IssuedAt().Unix())
	require.Equal(t, at.Add(time.Hour).Unix(), parsed.Expiration().Unix())

	scope, ok := parsed.Get("scope")
	require.True(t, ok)
	require.Equal(t, token.ReadScope, scope)
}

func TestAssertionDeterministicAtFixedInstant(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer, _ := testSigner(t, token.WithSignerClock(func() time.Time { return at }))

	first, err := signer.Assertion()
	require.NoError(t, err)
	second, err := signer.Assertion()
	require.NoError(t, err)

	// PKCS1v15 signing is deterministic per key and message, so identical
	// claims at an identical instant produce identical bytes.
	require.Equal(t, first, second)
}

func TestAssertionAudienceOverride(t *testing.T) {
	signer, key := testSigner(t, token.WithAudience("https://fake.example/token"))

	assertion, err := signer.Assertion()
	require.NoError(t, err)

	parsed, err := jwxjwt.Parse([]byte(assertion),
		jwxjwt.WithKey(jwa.RS256, key.Public()),
		jwxjwt.WithValidate(false),
	)
	require.NoError(t, err)
	require.Equal(t, []string{"https://fake.example/token"}, parsed.Audience())
}

func TestAssertionSigningFailure(t *testing.T) {
	// A toy RSA modulus is far too small to carry a SHA-256 PKCS1v15
	// signature, so the underlying sign operation fails.
	tiny := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: big.NewInt(3233), E: 17},
		D:         big.NewInt(413),
		Primes:    []*big.Int{big.NewInt(61), big.NewInt(53)},
	}
	cred := &credential.Credential{ProjectID: "demo", ClientEmail: testEmail}
	signer := token.NewSigner(cred, tiny)

	_, err := signer.Assertion()
	require.Error(t, err)
	require.True(t, errors.Is(err, token.ErrSigningFailed), "got %v", err)
}
