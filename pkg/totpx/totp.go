// Package totpx wraps RFC 6238 time-based one-time passwords for MFA
// enrollment and login.
//
// Codes are six digits over SHA-1 with a 30 second period, the parameters
// every mainstream authenticator app understands. Verification accepts a
// configurable number of steps on either side of the current one and reports
// the step that matched so callers can refuse to accept it twice.
package totpx

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the TOTP time step.
	Period = 30 * time.Second
	// SecretSize is the number of random bytes in a generated secret (160 bits).
	SecretSize = 20
	// DefaultSkew is the number of steps accepted before and after the current one.
	DefaultSkew = 1
	// codeDigits is the length of every generated code.
	codeDigits = 6
)

var (
	// ErrInvalidSecret is returned when a secret is not valid base32.
	ErrInvalidSecret = errors.New("totpx: invalid secret")
	// ErrMissingLabel is returned when the issuer or account is empty.
	ErrMissingLabel = errors.New("totpx: issuer and account are required")
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Service generates and verifies TOTP codes.
type Service struct {
	Skew uint             // Steps accepted on each side of now
	Now  func() time.Time // Clock, time.Now when nil
}

// NewService returns a Service with the given skew and the wall clock.
func NewService(skew uint) *Service {
	return &Service{Skew: skew, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// GenerateSecret returns a fresh 160-bit secret, base32-encoded without
// padding. The labels only satisfy totp.Generate and are not part of the
// secret.
func (s *Service) GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "authcore",
		AccountName: "enrollment",
		Period:      uint(Period / time.Second),
		SecretSize:  SecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		Rand:        rand.Reader,
	})
	if err != nil {
		return "", fmt.Errorf("totpx: generate secret: %w", err)
	}
	return strings.TrimRight(key.Secret(), "="), nil
}

// ProvisioningURI builds the otpauth://totp/ URI for an existing secret.
func (s *Service) ProvisioningURI(secret, account, issuer string) (string, error) {
	if account == "" || issuer == "" {
		return "", ErrMissingLabel
	}
	raw, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      uint(Period / time.Second),
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("totpx: build key: %w", err)
	}
	return key.URL(), nil
}

// Code returns the code for the step containing t.
func (s *Service) Code(secret string, t time.Time) (string, error) {
	if _, err := decodeSecret(secret); err != nil {
		return "", err
	}
	return totp.GenerateCodeCustom(normalize(secret), t, validateOpts())
}

// Verify checks code against the current step and Skew steps on either side.
// Every candidate is compared in constant time and the loop never exits
// early. On success it returns the counter of the matching step, choosing the
// earliest one if more than one matched.
func (s *Service) Verify(secret, code string) (uint64, bool) {
	code = strings.TrimSpace(code)
	if len(code) != codeDigits || !isDigits(code) {
		return 0, false
	}
	if _, err := decodeSecret(secret); err != nil {
		return 0, false
	}
	secret = normalize(secret)

	current := Step(s.now())
	skew := uint64(s.Skew)

	var (
		matched uint64
		found   int
	)
	for step := current - min(skew, current); step <= current+skew; step++ {
		candidate, err := totp.GenerateCodeCustom(secret, StepTime(step), validateOpts())
		if err != nil {
			return 0, false
		}
		eq := subtle.ConstantTimeCompare([]byte(candidate), []byte(code))
		first := eq & (found ^ 1)
		matched = uint64(subtle.ConstantTimeSelect(first, int(step), int(matched))) // #nosec G115 - step counters fit in int
		found |= eq
	}
	return matched, found == 1
}

// Step returns the RFC 6238 counter for t.
func Step(t time.Time) uint64 {
	return uint64(t.Unix()) / uint64(Period/time.Second) // #nosec G115 - pre-1970 clocks are not supported
}

// StepTime returns the start of the given step.
func StepTime(step uint64) time.Time {
	return time.Unix(int64(step*uint64(Period/time.Second)), 0).UTC() // #nosec G115 - fits for any realistic step
}

func validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(Period / time.Second),
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func normalize(secret string) string {
	return strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
}

func decodeSecret(secret string) ([]byte, error) {
	n := normalize(secret)
	if n == "" {
		return nil, ErrInvalidSecret
	}
	raw, err := encoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return raw, nil
}

func isDigits(s string) bool {
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
