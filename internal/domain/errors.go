package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a referenced document or index does not exist.
var ErrNotFound = errors.New("not found")

// ConfigError is a fatal configuration problem: missing or invalid
// credentials, an unreachable endpoint, a missing required key. It is
// never retried.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// TransientError wraps a rate limit, timeout or 5xx from a collaborator.
// Callers may retry the operation with backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ValidationError indicates malformed input, such as an empty query or a
// zero-length document.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid input: " + e.Reason }

// IsTransient reports whether err is safe to retry with backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err is a configuration problem that retrying
// cannot fix.
func IsFatal(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err indicates a missing document or index.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
