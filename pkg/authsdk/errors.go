package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/opticavillalba/authcore/pkg/httpx"
)

// Stable error codes returned in the "error" field.
const (
	ErrorCodeValidation          = "validation_error"
	ErrorCodeInvalidCredentials  = "invalid_credentials"
	ErrorCodeAccountDisabled     = "account_disabled"
	ErrorCodeMFANotEnabled       = "mfa_not_enabled"
	ErrorCodeMFAAlreadyEnabled   = "mfa_already_enabled"
	ErrorCodeInvalidMFACode      = "invalid_mfa_code"
	ErrorCodeRateLimited         = "rate_limited"
	ErrorCodeNotFound            = "not_found"
	ErrorCodeInvalidToken        = "invalid_token"
	ErrorCodeStoreUnavailable    = "store_unavailable"
	ErrorCodeServerError         = "server_error"
	ErrorCodeAlreadyBootstrapped = "already_bootstrapped"
	ErrorCodeUnauthorized        = "unauthorized"
)

// APIError is the error body of every failed request. The server writes it
// with WriteError and the client parses it back from the response.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is one of the ErrorCode constants
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`

	// Details maps request fields to validation messages.
	Details map[string]string `json:"details,omitempty"`

	// RetryAfter is the Retry-After header in seconds, set for rate limiting.
	RetryAfter int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this error to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	httpx.WriteJSON(w, e.StatusCode, e)
}

// WithDescription returns a copy with a different description.
func (e *APIError) WithDescription(desc string) *APIError {
	c := *e
	c.Description = desc
	return &c
}

// WithRetryAfter returns a copy carrying a Retry-After value in seconds.
func (e *APIError) WithRetryAfter(seconds int) *APIError {
	c := *e
	c.RetryAfter = seconds
	return &c
}

var (
	ErrValidation = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeValidation,
		Description: "the request is malformed or missing required fields",
	}

	// ErrInvalidCredentials covers both an unknown username and a wrong
	// password.
	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid username or password",
	}

	ErrAccountDisabled = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeAccountDisabled,
		Description: "this account is disabled",
	}

	ErrMFANotEnabled = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeMFANotEnabled,
		Description: "multi-factor authentication is not enabled for this account",
	}

	ErrMFAAlreadyEnabled = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeMFAAlreadyEnabled,
		Description: "multi-factor authentication is already enabled for this account",
	}

	ErrInvalidMFACode = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidMFACode,
		Description: "invalid authentication code",
	}

	ErrRateLimited = &APIError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeRateLimited,
		Description: "too many attempts, try again later",
	}

	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "not found",
	}

	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is missing, invalid or expired",
	}

	ErrStoreUnavailable = &APIError{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeStoreUnavailable,
		Description: "the service is temporarily unavailable",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	ErrAlreadyBootstrapped = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeAlreadyBootstrapped,
		Description: "the service has already been bootstrapped",
	}

	ErrBootstrapUnauthorized = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeUnauthorized,
		Description: "invalid bootstrap token",
	}

	ErrMethodNotAllowed = &APIError{
		StatusCode:  http.StatusMethodNotAllowed,
		Code:        ErrorCodeValidation,
		Description: "method not allowed",
	}
)

// IsCode reports whether err is an *APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// parseErrorResponse turns a non-2xx response into an *APIError. Bodies that
// are not JSON fall back to the status text.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		apiErr.StatusCode = resp.StatusCode
		apiErr.RetryAfter = retryAfter
		return &apiErr
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		RetryAfter:  retryAfter,
	}
}
