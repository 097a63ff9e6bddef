// policy/errors.go
package policy

import "errors"

// ConfigurationError reports a contradictory or malformed policy
// configuration. It is returned at construction / merge time, never during
// request processing.
type ConfigurationError struct {
	// Field names the offending configuration field, e.g. "allow_origin".
	Field string

	// Reason is a human-readable description safe to log.
	Reason string

	// err is an optional sentinel for errors.Is checks.
	err error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "cors policy configuration error: " + e.Reason
	}
	return "cors policy configuration error: " + e.Field + ": " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.err }

// ErrCredentialedWildcard is wrapped by the ConfigurationError produced when
// a policy enables credential sharing while its allowed-origin set consists
// solely of the wildcard matcher. Browsers forbid the combination, so it is
// rejected up front rather than per request.
var ErrCredentialedWildcard = errors.New("cannot allow credentials with a wildcard-only allowed origin set")

func newCredentialedWildcardError() error {
	return &ConfigurationError{
		Field:  "allow_credentials",
		Reason: ErrCredentialedWildcard.Error(),
		err:    ErrCredentialedWildcard,
	}
}
