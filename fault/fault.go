// Package fault defines the error taxonomy shared by the document store,
// the memory repository, the chat proxy and the HTTP surface.
package fault

import (
	"errors"
	"fmt"
)

// Kind represents the category of a failure.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindForbidden           Kind = "forbidden"
	KindInvalidInput        Kind = "invalid_input"
	KindStoreUnavailable    Kind = "store_unavailable"
	KindStoreConflict       Kind = "store_conflict"
	KindProviderUnavailable Kind = "provider_unavailable"
)

// Error is a categorized failure. Hint carries an operator-facing remediation
// (for example which configuration value is missing).
type Error struct {
	Kind    Kind
	Message string
	Hint    string
	Err     error
	// Status overrides the HTTP status derived from Kind when non-zero.
	Status int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithHint returns a copy of e carrying the given hint.
func (e *Error) WithHint(hint string) *Error {
	cp := *e
	cp.Hint = hint
	return &cp
}

// WithStatus returns a copy of e reported with the given HTTP status.
func (e *Error) WithStatus(status int) *Error {
	cp := *e
	cp.Status = status
	return &cp
}

// StatusOf returns the status override of the first *Error in err's chain.
func StatusOf(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// HintOf returns the hint of the first *Error in err's chain.
func HintOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Hint
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsNotFound checks if an error is a missing-record error.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// IsForbidden checks if an error is a forbidden-operation error.
func IsForbidden(err error) bool { return Is(err, KindForbidden) }

// IsInvalidInput checks if an error is a validation error.
func IsInvalidInput(err error) bool { return Is(err, KindInvalidInput) }

// IsStoreConflict checks if an error is a stale concurrency token error.
func IsStoreConflict(err error) bool { return Is(err, KindStoreConflict) }

// IsStoreUnavailable checks if an error is a document store transport error.
func IsStoreUnavailable(err error) bool { return Is(err, KindStoreUnavailable) }

// IsProviderUnavailable checks if an error is a completion/email provider error.
func IsProviderUnavailable(err error) bool { return Is(err, KindProviderUnavailable) }

// NotFound creates a new not-found error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden creates a new forbidden error.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// InvalidInput creates a new validation error.
func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// StoreUnavailable wraps a document store transport, auth or decode failure.
func StoreUnavailable(message string, err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Message: message, Err: err}
}

// StoreConflict wraps a rejected concurrency token.
func StoreConflict(message string, err error) *Error {
	return &Error{
		Kind:    KindStoreConflict,
		Message: message,
		Err:     err,
		Hint:    "The document changed since it was read. Retry the request.",
	}
}

// ProviderUnavailable wraps a chat-completion or email transport failure.
func ProviderUnavailable(message string, err error) *Error {
	return &Error{Kind: KindProviderUnavailable, Message: message, Err: err}
}
