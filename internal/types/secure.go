package types

import (
	"crypto/subtle"
	"log/slog"
)

const redactedPlaceholder = "***REDACTED***"

// SecretString holds a credential or token. It prints, marshals and logs as
// a redacted placeholder; Unmask returns the raw value.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

// LogValue keeps the raw value out of slog records.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// Unmask returns the raw plaintext value of the secret.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsEmpty reports whether no secret is set.
func (s SecretString) IsEmpty() bool {
	return s == ""
}

// Matches compares the secret with a presented value in constant time.
// An empty secret never matches.
func (s SecretString) Matches(presented string) bool {
	if s == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s), []byte(presented)) == 1
}
