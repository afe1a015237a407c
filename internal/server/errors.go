package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ttscraper/pkg/service"
)

// ErrorResponseBody is the JSON body of every error response
type ErrorResponseBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// statusFor maps a failure kind to its HTTP status and error code
func statusFor(kind service.Kind) (int, string) {
	switch kind {
	case service.KindRateLimited:
		return http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"
	case service.KindCookieMissing:
		return http.StatusPreconditionRequired, "COOKIE_MISSING"
	case service.KindFetchFailed:
		return http.StatusServiceUnavailable, "FETCH_FAILED"
	case service.KindPageOutOfRange:
		return http.StatusBadRequest, "PAGE_OUT_OF_RANGE"
	case service.KindInvalidRequest:
		return http.StatusBadRequest, "BAD_REQUEST"
	case service.KindTimeout:
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// writeFailure writes f as an error response. Internal failures hide their cause.
func writeFailure(w http.ResponseWriter, f *service.Failure) {
	status, code := statusFor(f.Kind)

	message := f.Message
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}

	retryAfter := 0
	if f.Kind == service.KindRateLimited {
		retryAfter = f.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}

	writeError(w, status, code, message, retryAfter)
}

func writeError(w http.ResponseWriter, status int, code, message string, retryAfter int) {
	writeJSON(w, status, ErrorResponseBody{
		Error:      code,
		Message:    message,
		RetryAfter: retryAfter,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
