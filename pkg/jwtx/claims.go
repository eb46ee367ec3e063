package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opticavillalba/authcore/pkg/idx"
)

// DefaultSessionTTL is the default lifetime for session tokens.
const DefaultSessionTTL = 30 * time.Minute

// TypeSession is the "typ" claim carried by session tokens.
const TypeSession = "session"

// Claims are session-token claims. The subject is the username.
type Claims struct {
	jwt.RegisteredClaims

	// Token type, always TypeSession for tokens minted by this package.
	Type string `json:"typ,omitempty"`

	// Authentication Methods Reference ["pwd","otp"]
	//		"pwd": Password-based Authentication
	//		"otp": One-time Password (e.g. TOTP)
	// A refreshed token keeps the AMR of the token it replaced.
	AMR []string `json:"amr,omitempty"`
}

// NewSessionClaims builds minimally-correct claims.
func NewSessionClaims(subject, issuer string, amr []string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Type: TypeSession,
		AMR:  amr,
	}
}

// NewJTI returns a ULID for the "jti" claim.
func NewJTI() string {
	return idx.New().String()
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateType checks the "typ" claim.
func (c *Claims) ValidateType() error {
	if c.Type != TypeSession {
		return ErrInvalidClaim
	}
	return nil
}

// ValidateExpiry ensures the token hasn't expired at now. The expiry instant
// itself is still valid.
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt == nil {
		return ErrInvalidClaim
	}
	if now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	return nil
}

// ExpiresIn returns the remaining lifetime at now, never negative.
func (c *Claims) ExpiresIn(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return max(c.ExpiresAt.Sub(now), 0)
}
