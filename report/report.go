// Package report maps internal failures onto a stable category taxonomy and
// formats correlation-id-bearing messages that are logged and shown to the
// user as one and the same string.
package report

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/davewd/firebase-data-gui/credential"
	"github.com/davewd/firebase-data-gui/pemkey"
	"github.com/davewd/firebase-data-gui/token"
	"github.com/davewd/firebase-data-gui/tree"
)

// Category is a stable failure classification.
type Category string

const (
	InvalidCredential    Category = "invalid-credential"
	UnsupportedKeyFormat Category = "unsupported-key-format"
	MalformedKey         Category = "malformed-key"
	KeyLoadFailed        Category = "key-load-failed"
	SigningFailed        Category = "signing-failed"
	TokenRequestFailed   Category = "token-request-failed"
	TokenExpiryInvalid   Category = "token-expiry-invalid"
	NetworkFailure       Category = "network-failure"
	RootFetchFailed      Category = "root-fetch-failed"
	PerKeyFetchFailed    Category = "per-key-fetch-failed"
	Unknown              Category = "unknown"
)

const noDetails = "no additional details"

// Classify maps an error from any stage onto its category. Wrapping is
// honored, so classified errors survive fmt.Errorf("%w") chains.
func Classify(err error) Category {
	var (
		invalidCred *credential.InvalidCredentialError
		tokenReq    *token.TokenRequestError
		keyFetch    *tree.KeyFetchError
		rootFetch   *tree.RootFetchError
		urlErr      *url.Error
		netErr      net.Error
	)
	switch {
	case err == nil:
		return Unknown
	case errors.As(err, &invalidCred):
		return InvalidCredential
	case errors.Is(err, pemkey.ErrUnsupportedKeyFormat):
		return UnsupportedKeyFormat
	case errors.Is(err, pemkey.ErrMalformedKey):
		return MalformedKey
	case errors.Is(err, pemkey.ErrKeyLoadFailed):
		return KeyLoadFailed
	case errors.Is(err, token.ErrSigningFailed):
		return SigningFailed
	case errors.As(err, &tokenReq):
		return TokenRequestFailed
	case errors.Is(err, token.ErrTokenExpiryInvalid):
		return TokenExpiryInvalid
	case errors.As(err, &keyFetch):
		return PerKeyFetchFailed
	case errors.As(err, &rootFetch):
		return RootFetchFailed
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		return NetworkFailure
	default:
		return Unknown
	}
}

// Hint returns the default human-actionable resolution hint for a category.
func Hint(cat Category) string {
	switch cat {
	case InvalidCredential:
		return "Re-download the service-account JSON from the console; project_id, private_key and client_email must all be present"
	case UnsupportedKeyFormat:
		return "The key is in PKCS#1 format; export a PKCS#8 key (BEGIN PRIVATE KEY)"
	case MalformedKey:
		return "The private key could not be decoded; re-download the credential file"
	case KeyLoadFailed:
		return "The private key decoded but is not a usable RSA key; re-create the service-account key"
	case SigningFailed:
		return "Signing the token request failed; the key may not match the expected algorithm"
	case TokenRequestFailed:
		return "The token endpoint rejected the request; check that the service account is still active"
	case TokenExpiryInvalid:
		return "The token endpoint returned an unusable expiry; try again"
	case NetworkFailure:
		return "A network request failed; check connectivity and try again"
	case RootFetchFailed:
		return "Listing the database root failed; check the database URL and the account's read access"
	case PerKeyFetchFailed:
		return "One database key could not be fetched; the rest of the snapshot is still valid"
	default:
		return "An unexpected error occurred; try again"
	}
}

// Reporter formats failure reports. The string it returns is exactly what it
// logs, so anything shown to the user can be recovered from the logs by its
// correlation id.
type Reporter struct {
	log logrus.FieldLogger
	now func() time.Time
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithClock overrides the clock used for correlation ids.
func WithClock(now func() time.Time) ReporterOption {
	return func(r *Reporter) { r.now = now }
}

// NewReporter builds a reporter that logs through log.
func NewReporter(log logrus.FieldLogger, opts ...ReporterOption) *Reporter {
	r := &Reporter{log: log, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report formats, logs and returns a single user-visible message for the
// given category. details falls back to the cause, then to a fixed sentinel.
func (r *Reporter) Report(cat Category, hint, details string, cause error) string {
	id := r.correlationID()
	if details == "" && cause != nil {
		details = cause.Error()
	}
	if details == "" {
		details = noDetails
	}
	msg := fmt.Sprintf("[%s] %s: %s (%s)", id, cat, hint, details)
	entry := r.log.WithFields(logrus.Fields{
		"correlation_id": id,
		"category":       string(cat),
	})
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Error(msg)
	return msg
}

// ReportError classifies err and reports it with the category's default hint.
func (r *Reporter) ReportError(err error) string {
	cat := Classify(err)
	return r.Report(cat, Hint(cat), "", err)
}

// correlationID is globally unique per call: a UTC timestamp plus a random
// suffix.
func (r *Reporter) correlationID() string {
	return r.now().UTC().Format("20060102T150405.000Z") + "-" + uuid.NewString()[:8]
}
