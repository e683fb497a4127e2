package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// InvalidArgument represents bad caller input (PKCE length, unknown platform, busy engine)
	InvalidArgument ErrorType = "invalid_argument"
	// CsrfMismatch represents a callback whose state did not match the flow
	CsrfMismatch ErrorType = "csrf_mismatch"
	// ExchangeError represents a rejected or incomplete code-for-token exchange
	ExchangeError ErrorType = "exchange_error"
	// TimeoutError represents an authorization that produced no tokens before its deadline
	TimeoutError ErrorType = "timeout"
	// FileNotFound represents a missing credentials or browser state file
	FileNotFound ErrorType = "file_not_found"
	// AccountNotFound represents an account key absent from the credentials file
	AccountNotFound ErrorType = "account_not_found"
	// IncompleteTokenData represents a token pair missing either token
	IncompleteTokenData ErrorType = "incomplete_token_data"
	// ConfigurationError represents missing or invalid static configuration
	ConfigurationError ErrorType = "configuration_error"
	// ListenerError represents a failure to bind or run the loopback listener
	ListenerError ErrorType = "listener_error"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(errorType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message
func Newf(errorType ErrorType, format string, args ...any) *AppError {
	return New(errorType, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errorType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Cause:   err,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithStatusCode records the HTTP status code observed when the error occurred
func (e *AppError) WithStatusCode(code int) *AppError {
	e.StatusCode = code
	return e
}

// IsType checks if an error, or any error it wraps, is an AppError of the given type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or "" if there is none
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// Convenience constructors for common error types

// NewInvalidArgument creates an invalid argument error
func NewInvalidArgument(message string) *AppError {
	return New(InvalidArgument, message)
}

// NewCsrfMismatch creates a state mismatch error
func NewCsrfMismatch(message string) *AppError {
	return New(CsrfMismatch, message).WithStatusCode(http.StatusBadRequest)
}

// NewExchangeError creates a token exchange error carrying the upstream status and body
func NewExchangeError(message string, statusCode int, body string) *AppError {
	return New(ExchangeError, message).WithStatusCode(statusCode).WithDetails(body)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(message string) *AppError {
	return New(TimeoutError, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string) *AppError {
	return New(ConfigurationError, message)
}
