package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"

	// Pipeline failures
	ErrorTypeCookieMissing      ErrorType = "cookie_missing"
	ErrorTypeExtractionEmpty    ErrorType = "extraction_empty"
	ErrorTypeNormalizationEmpty ErrorType = "normalization_empty"
	ErrorTypeFetchFailed        ErrorType = "fetch_failed"
	ErrorTypePageOutOfRange     ErrorType = "page_out_of_range"
	ErrorTypeInvalidRequest     ErrorType = "invalid_request"
)

// Error represents a typed failure with an optional HTTP status code and cause
type Error struct {
	Type       ErrorType
	Message    string
	Code       int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error without a cause
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// TypeOf returns the type of the first *Error in err's chain, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries the given type anywhere in its chain
func Is(err error, t ErrorType) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type == t {
			return true
		}
		err = e.Err
	}
	return false
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError,
		ErrorTypeExtractionEmpty, ErrorTypeNormalizationEmpty, ErrorTypeParsing:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeCookieMissing,
		ErrorTypePageOutOfRange, ErrorTypeInvalidRequest, ErrorTypeFetchFailed:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 408, 425, 429: // Request Timeout, Too Early, Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}
