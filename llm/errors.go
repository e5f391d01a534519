package llm

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Error represents a provider-neutral LLM error.
type Error struct {
	Type        ErrorType
	Provider    string
	Message     string
	Retryable   bool
	RetryAfter  *time.Duration
	StatusCode  int
	ProviderErr error // Original provider-specific error
}

// ErrorType represents the category of error.
type ErrorType string

const (
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeRequestTooLarge ErrorType = "request_too_large"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeAuth            ErrorType = "auth"
	ErrorTypeProvider        ErrorType = "provider"
	ErrorTypeNetwork         ErrorType = "network"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeUnknown         ErrorType = "unknown"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.ProviderErr != nil {
		return msg + ": " + e.ProviderErr.Error()
	}
	return msg
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.ProviderErr
}

// TypeOf returns the ErrorType of the first *Error in err's chain.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) bool {
	return TypeOf(err) == ErrorTypeRateLimit
}

// IsRequestTooLargeError checks if an error is a request too large error.
func IsRequestTooLargeError(err error) bool {
	return TypeOf(err) == ErrorTypeRequestTooLarge
}

// IsAuthError checks if the provider rejected the credentials.
func IsAuthError(err error) bool {
	return TypeOf(err) == ErrorTypeAuth
}

// IsRetryableError checks if an error is retryable.
func IsRetryableError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// ExtractRetryAfter extracts the retry-after duration from an error.
func ExtractRetryAfter(err error) *time.Duration {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return nil
}

// NewRateLimitError creates a new rate limit error.
func NewRateLimitError(message string, retryAfter *time.Duration, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRateLimit,
		Message:     message,
		Retryable:   true,
		RetryAfter:  retryAfter,
		StatusCode:  http.StatusTooManyRequests,
		ProviderErr: providerErr,
	}
}

// NewRequestTooLargeError creates a new request too large error.
func NewRequestTooLargeError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRequestTooLarge,
		Message:     message,
		Retryable:   false,
		StatusCode:  http.StatusRequestEntityTooLarge,
		ProviderErr: providerErr,
	}
}

// NewProviderError creates a new provider error.
func NewProviderError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeProvider,
		Message:     message,
		Retryable:   false,
		ProviderErr: providerErr,
	}
}

// FromStatus classifies a failed provider call by its HTTP status code.
func FromStatus(provider string, status int, message string, providerErr error) *Error {
	e := &Error{Provider: provider, Message: message, StatusCode: status, ProviderErr: providerErr}
	switch {
	case status == http.StatusTooManyRequests:
		e.Type, e.Retryable = ErrorTypeRateLimit, true
	case status == http.StatusRequestEntityTooLarge:
		e.Type = ErrorTypeRequestTooLarge
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Type = ErrorTypeAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e.Type, e.Retryable = ErrorTypeTimeout, true
	case status >= 400 && status < 500:
		e.Type = ErrorTypeInvalidRequest
	case status >= 500:
		e.Type, e.Retryable = ErrorTypeProvider, true
	default:
		e.Type = ErrorTypeUnknown
	}
	return e
}

// FromTransport classifies an error that happened before any HTTP status was
// received.
func FromTransport(provider string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Type: ErrorTypeTimeout, Provider: provider, Message: "request timed out", Retryable: true, ProviderErr: err}
	}
	return &Error{Type: ErrorTypeNetwork, Provider: provider, Message: "request failed", Retryable: true, ProviderErr: err}
}
