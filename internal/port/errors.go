package port

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors used across ports.
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenInvalid  = errors.New("token invalid")
	ErrUserNotFound  = errors.New("user not found")
	ErrEventNotFound = errors.New("event not found")
	ErrEventExists   = errors.New("event already exists")
	ErrDuplicate     = errors.New("unique constraint violated")
)

// ValidationError describes one rejected field of a request.
// Index is the position of the offending element in a list payload, or -1.
type ValidationError struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("events[%d].%s: %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationErrors is returned when a request fails validation before any storage access.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, v := range e {
		parts[i] = v.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// StorageError wraps a failed storage operation. The enclosing transaction was rolled back.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// UpstreamError is a non-2xx answer from an external service.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Service, e.StatusCode, e.Body)
}

// RateLimited reports whether the upstream asked us to back off.
func (e *UpstreamError) RateLimited() bool { return e.StatusCode == 429 }

// IntentErrorKind classifies intent translation failures so callers can choose
// between retrying and surfacing the failure to the user.
type IntentErrorKind string

const (
	IntentEmptyOutput     IntentErrorKind = "empty_output"
	IntentMalformedOutput IntentErrorKind = "malformed_output"
	IntentMissingField    IntentErrorKind = "missing_field"
	IntentTimeout         IntentErrorKind = "timeout"
	IntentRateLimited     IntentErrorKind = "rate_limited"
	IntentUpstreamError   IntentErrorKind = "upstream_error"
)

// IntentError is returned by the intent translator.
type IntentError struct {
	Kind    IntentErrorKind
	Missing []string
	Err     error
}

func (e *IntentError) Error() string {
	switch {
	case len(e.Missing) > 0:
		return fmt.Sprintf("intent %s: %s", e.Kind, strings.Join(e.Missing, ", "))
	case e.Err != nil:
		return fmt.Sprintf("intent %s: %v", e.Kind, e.Err)
	default:
		return "intent " + string(e.Kind)
	}
}

func (e *IntentError) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed if sent again.
func (e *IntentError) Retryable() bool {
	switch e.Kind {
	case IntentTimeout, IntentRateLimited, IntentUpstreamError, IntentEmptyOutput:
		return true
	}
	return false
}

// IdentityErrorKind classifies identity verification failures.
type IdentityErrorKind string

const (
	IdentityAuthFailed        IdentityErrorKind = "auth_failed"
	IdentityTimeout           IdentityErrorKind = "timeout"
	IdentityRateLimited       IdentityErrorKind = "rate_limited"
	IdentityMalformedUpstream IdentityErrorKind = "malformed_upstream"
	IdentityUpstreamError     IdentityErrorKind = "upstream_error"
)

// IdentityError is returned by an IdentityVerifier.
type IdentityError struct {
	Kind IdentityErrorKind
	Err  error
}

func (e *IdentityError) Error() string { return fmt.Sprintf("identity %s: %v", e.Kind, e.Err) }
func (e *IdentityError) Unwrap() error { return e.Err }
