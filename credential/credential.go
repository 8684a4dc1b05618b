// Package credential models a validated service-account credential and the
// database endpoint derived from it.
package credential

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	defaultEndpointFormat = "https://%s-default-rtdb.firebaseio.com"
	regionEndpointFormat  = "https://%s-default-rtdb.%s.firebasedatabase.app"
)

// InvalidCredentialError reports why a credential could not be constructed.
// Missing lists exactly the required JSON fields that were absent or blank.
type InvalidCredentialError struct {
	Missing []string
	Reason  string
}

func (e *InvalidCredentialError) Error() string {
	if len(e.Missing) > 0 {
		return "credential: missing required fields: " + strings.Join(e.Missing, ", ")
	}
	return "credential: " + e.Reason
}

// Credential is an immutable service-account identity. The key material is
// held privately so that Scrub can zero it on disconnect.
type Credential struct {
	ProjectID      string
	ClientEmail    string
	DatabaseURL    string
	DatabaseRegion string

	privateKey []byte
}

type credentialFile struct {
	ProjectID      string `json:"project_id"`
	PrivateKey     string `json:"private_key"`
	ClientEmail    string `json:"client_email"`
	DatabaseURL    string `json:"database_url"`
	DatabaseRegion string `json:"database_region"`
}

// Parse decodes a service-account JSON file into a Credential. project_id,
// private_key and client_email must all be non-empty after trimming.
func Parse(data []byte) (*Credential, error) {
	var file credentialFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, &InvalidCredentialError{Reason: "not a JSON object: " + err.Error()}
	}
	var missing []string
	if strings.TrimSpace(file.ProjectID) == "" {
		missing = append(missing, "project_id")
	}
	if strings.TrimSpace(file.PrivateKey) == "" {
		missing = append(missing, "private_key")
	}
	if strings.TrimSpace(file.ClientEmail) == "" {
		missing = append(missing, "client_email")
	}
	if len(missing) > 0 {
		return nil, &InvalidCredentialError{Missing: missing}
	}
	return &Credential{
		ProjectID:      strings.TrimSpace(file.ProjectID),
		ClientEmail:    strings.TrimSpace(file.ClientEmail),
		DatabaseURL:    strings.TrimSpace(file.DatabaseURL),
		DatabaseRegion: strings.TrimSpace(file.DatabaseRegion),
		privateKey:     []byte(file.PrivateKey),
	}, nil
}

// PrivateKeyPEM exposes the raw key material for the signer. Callers must
// treat the slice as read-only.
func (c *Credential) PrivateKeyPEM() []byte { return c.privateKey }

// Endpoint returns the database base URL. An explicit database_url override
// wins; otherwise the URL is derived from project id and optional region.
func (c *Credential) Endpoint() string {
	if c.DatabaseURL != "" {
		return strings.TrimRight(c.DatabaseURL, "/")
	}
	if c.DatabaseRegion != "" {
		return fmt.Sprintf(regionEndpointFormat, c.ProjectID, c.DatabaseRegion)
	}
	return fmt.Sprintf(defaultEndpointFormat, c.ProjectID)
}

// Scrub zeroes the key material. Best effort: copies handed out earlier are
// out of reach, but the long-lived buffer is cleared.
func (c *Credential) Scrub() {
	for i := range c.privateKey {
		c.privateKey[i] = 0
	}
	c.privateKey = nil
}
