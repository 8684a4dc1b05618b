// Package token implements the OAuth2 JWT-bearer grant for a service
// account: signing assertions and exchanging them for cached bearer tokens.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/davewd/firebase-data-gui/credential"
)

const (
	// TokenURL is the Google OAuth2 token endpoint.
	TokenURL = "https://oauth2.googleapis.com/token"
	// ReadScope grants read access to the database plus basic identity info.
	ReadScope = "https://www.googleapis.com/auth/firebase.database https://www.googleapis.com/auth/userinfo.email"

	assertionLifetime = time.Hour
)

// ErrSigningFailed wraps RSA signing errors from the underlying JWT library.
var ErrSigningFailed = errors.New("token: assertion signing failed")

// Signer builds RS256 JWT-bearer assertions for a service account.
// Assertions are ephemeral; only the exchanged access token is ever cached.
type Signer struct {
	email    string
	key      *rsa.PrivateKey
	audience string
	now      func() time.Time
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithAudience overrides the assertion audience (tests pointing at a fake
// token endpoint).
func WithAudience(aud string) SignerOption {
	return func(s *Signer) { s.audience = aud }
}

// WithSignerClock overrides the clock used for iat/exp claims.
func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *Signer) { s.now = now }
}

// NewSigner builds a signer for the credential's principal using the parsed
// RSA private key.
func NewSigner(cred *credential.Credential, key *rsa.PrivateKey, opts ...SignerOption) *Signer {
	s := &Signer{
		email:    cred.ClientEmail,
		key:      key,
		audience: TokenURL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Assertion signs a fresh JWT-bearer assertion: iss/sub are the service
// account email, aud is the token endpoint, exp is one hour after iat.
func (s *Signer) Assertion() (string, error) {
	now := s.now().Unix()
	claims := jwt.MapClaims{
		"iss":   s.email,
		"sub":   s.email,
		"aud":   s.audience,
		"scope": ReadScope,
		"iat":   now,
		"exp":   now + int64(assertionLifetime/time.Second),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	return signed, nil
}
