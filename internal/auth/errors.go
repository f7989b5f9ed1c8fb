package auth

import "fmt"

// Reason classifies why a credential was rejected.
type Reason int

const (
	Missing Reason = iota + 1
	Malformed
	InvalidSignature
	Expired
)

func (r Reason) String() string {
	switch r {
	case Missing:
		return "missing"
	case Malformed:
		return "malformed"
	case InvalidSignature:
		return "invalid_signature"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// AuthenticationError is returned by Verifier for every rejected credential.
type AuthenticationError struct {
	Reason Reason
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("authentication failed: %s", e.Reason)
	}
	return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// Is matches any AuthenticationError with the same Reason, so callers can
// write errors.Is(err, &AuthenticationError{Reason: Expired}).
func (e *AuthenticationError) Is(target error) bool {
	t, ok := target.(*AuthenticationError)
	return ok && t.Reason == e.Reason
}

func reject(reason Reason, err error) error {
	return &AuthenticationError{Reason: reason, Err: err}
}
