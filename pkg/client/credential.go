package client

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
)

// Credential is the Audisto API key and password pair used for Basic auth.
// It is immutable and never rendered with its secret parts.
type Credential struct {
	key      string
	password string
}

// NewCredential validates and builds a Credential.
func NewCredential(key, password string) (Credential, error) {
	if key == "" || password == "" {
		return Credential{}, &APIError{
			Class:   ErrorClassAuth,
			Message: "api key and password are required",
		}
	}
	return Credential{key: key, password: password}, nil
}

// Fingerprint returns a short, non-reversible identifier for the API key.
func (c Credential) Fingerprint() string {
	sum := sha256.Sum256([]byte(c.key))
	return hex.EncodeToString(sum[:])[:12]
}

// IsZero reports whether the credential is unset.
func (c Credential) IsZero() bool {
	return c.key == "" && c.password == ""
}

// String implements fmt.Stringer without exposing secrets.
func (c Credential) String() string {
	return fmt.Sprintf("Credential(%s)", c.Fingerprint())
}

// GoString keeps %#v from printing the struct fields.
func (c Credential) GoString() string {
	return c.String()
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (c Credential) MarshalZerologObject(e *zerolog.Event) {
	e.Str("fingerprint", c.Fingerprint())
}
