package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// ErrorTypeUnknown represents an unclassified error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeValidation represents bad input from the caller
	ErrorTypeValidation
	// ErrorTypeUpstream represents a 4xx/5xx answer from GitLab
	ErrorTypeUpstream
	// ErrorTypeGatewayTimeout represents GitLab not answering within the request budget
	ErrorTypeGatewayTimeout
	// ErrorTypeUnexpectedShape represents a GitLab payload that does not match the contract
	ErrorTypeUnexpectedShape
	// ErrorTypeNetwork represents transport failures other than timeouts
	ErrorTypeNetwork
	// ErrorTypePartialRename represents a rename whose compensating step failed
	ErrorTypePartialRename
	// ErrorTypeNotFound represents a resource unknown to the cache or upstream
	ErrorTypeNotFound
	// ErrorTypeRuntime represents general runtime errors
	ErrorTypeRuntime
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeUpstream:
		return "upstream"
	case ErrorTypeGatewayTimeout:
		return "gateway_timeout"
	case ErrorTypeUnexpectedShape:
		return "unexpected_shape"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypePartialRename:
		return "partial_rename"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeRuntime:
		return "runtime"
	case ErrorTypeConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error wraps errors with type information and, for upstream failures,
// the status code and body GitLab answered with.
type Error struct {
	Type    ErrorType
	Err     error
	Context string // Additional context or help text

	// Status is the upstream HTTP status for ErrorTypeUpstream.
	Status int
	// Body is the upstream response body, JSON-decoded when possible.
	Body any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Context)
	}
	return e.Err.Error()
}

// Unwrap implements error unwrapping for Go 1.13+ error chains
func (e *Error) Unwrap() error {
	return e.Err
}

// Upstream creates an error for a GitLab 4xx/5xx response.
func Upstream(status int, body any) *Error {
	return &Error{
		Type:   ErrorTypeUpstream,
		Err:    fmt.Errorf("gitlab responded with status %d", status),
		Status: status,
		Body:   body,
	}
}

// GatewayTimeout creates an error for an upstream call that exceeded its budget.
func GatewayTimeout(err error) *Error {
	return &Error{
		Type: ErrorTypeGatewayTimeout,
		Err:  fmt.Errorf("gitlab request timed out: %w", err),
	}
}

// UnexpectedShape creates an error for a payload that does not match the expected structure.
func UnexpectedShape(path string) *Error {
	return &Error{
		Type: ErrorTypeUnexpectedShape,
		Err:  fmt.Errorf("unexpected response structure from %s", path),
	}
}

// NetworkError creates a network error
func NetworkError(err error) *Error {
	return &Error{
		Type: ErrorTypeNetwork,
		Err:  err,
	}
}

// ValidationError creates a validation error
func ValidationError(err error, context string) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Err:     err,
		Context: context,
	}
}

// Validationf creates a validation error from a format string.
func Validationf(format string, args ...any) *Error {
	return &Error{
		Type: ErrorTypeValidation,
		Err:  fmt.Errorf(format, args...),
	}
}

// NotFound creates a not-found error.
func NotFound(what string) *Error {
	return &Error{
		Type: ErrorTypeNotFound,
		Err:  fmt.Errorf("%s not found", what),
	}
}

// RuntimeError creates a runtime error
func RuntimeError(err error) *Error {
	return &Error{
		Type: ErrorTypeRuntime,
		Err:  err,
	}
}

// ConfigError creates a configuration error
func ConfigError(err error) *Error {
	return &Error{
		Type: ErrorTypeConfig,
		Err:  err,
	}
}

// ConfigErrorWithContext creates a configuration error with context
func ConfigErrorWithContext(err error, context string) *Error {
	return &Error{
		Type:    ErrorTypeConfig,
		Err:     err,
		Context: context,
	}
}

// PartialRename creates an error for a rename where the new variable exists
// but the old one could not be removed (or the reverse for hidden upgrades).
// The caller may find a duplicate under the new key.
func PartialRename(err error, context string) *Error {
	return &Error{
		Type:    ErrorTypePartialRename,
		Err:     err,
		Context: context,
	}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries the given type anywhere in its chain.
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsUpstreamStatus reports whether err is an upstream error with the given status.
func IsUpstreamStatus(err error, status int) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type == ErrorTypeUpstream && e.Status == status
	}
	return false
}

// HTTPStatus maps an error to the status the REST facade should answer with.
func HTTPStatus(err error) int {
	var e *Error
	if !stderrors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeUpstream:
		if e.Status > 0 {
			return e.Status
		}
		return http.StatusBadGateway
	case ErrorTypeGatewayTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeUnexpectedShape, ErrorTypeNetwork:
		return http.StatusBadGateway
	case ErrorTypePartialRename:
		return http.StatusMultiStatus
	case ErrorTypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
