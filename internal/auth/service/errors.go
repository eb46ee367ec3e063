package service

import (
	"errors"
	"fmt"
)

// Each error message is the stable code reported to callers and stored as
// the audit reason.
var (
	ErrValidation         = errors.New("validation_error")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountDisabled    = errors.New("account_disabled")
	ErrMFANotEnabled      = errors.New("mfa_not_enabled")
	ErrMFAAlreadyEnabled  = errors.New("mfa_already_enabled")
	ErrInvalidMFACode     = errors.New("invalid_mfa_code")
	ErrRateLimited        = errors.New("rate_limited")
	ErrNotFound           = errors.New("not_found")
	ErrExpiredToken       = errors.New("expired_token")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrMalformedToken     = errors.New("malformed_token")
	ErrStoreUnavailable   = errors.New("store_unavailable")
)

// taxonomy is checked in order by Code.
var taxonomy = []error{
	ErrValidation,
	ErrInvalidCredentials,
	ErrAccountDisabled,
	ErrMFANotEnabled,
	ErrMFAAlreadyEnabled,
	ErrInvalidMFACode,
	ErrRateLimited,
	ErrNotFound,
	ErrExpiredToken,
	ErrInvalidSignature,
	ErrMalformedToken,
	ErrStoreUnavailable,
	ErrBootstrapAlready,
	ErrBootstrapUnauthorized,
	ErrUserExists,
}

// Code returns the stable code of err, "" for nil and "server_error" for
// anything outside the taxonomy.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, known := range taxonomy {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "server_error"
}

// unavailable wraps an infrastructure failure. The cause stays in the chain
// for logging but never reaches the caller.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
