package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/opticavillalba/authcore/internal/auth/domain"
	"github.com/opticavillalba/authcore/pkg/jwtx"
)

// TokenType is the token_type reported with every issued session.
const TokenType = "bearer"

// TokenService issues and verifies HS256 session tokens. It satisfies
// jwtx.Verifier so the HTTP authentication middleware can use it directly.
type TokenService struct {
	Signer   jwtx.Signer
	Verifier jwtx.Verifier
	Issuer   string
	TTL      time.Duration
	Now      func() time.Time
}

// NewTokenService builds an HS256 token service. A zero ttl means
// jwtx.DefaultSessionTTL and a nil clock means time.Now.
func NewTokenService(key []byte, issuer string, ttl time.Duration, now func() time.Time) (*TokenService, error) {
	if ttl <= 0 {
		ttl = jwtx.DefaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	signer, err := jwtx.NewSignerHS256("", key)
	if err != nil {
		return nil, err
	}
	return &TokenService{
		Signer:   signer,
		Verifier: jwtx.NewVerifierHS256(key, issuer, now),
		Issuer:   issuer,
		TTL:      ttl,
		Now:      now,
	}, nil
}

// Issue mints a token for subject valid from now until now+TTL. JWT dates
// have whole-second precision, so now is cut to the second first and the
// reported ExpiresAt is exactly the signed exp.
func (s *TokenService) Issue(subject string, amr ...string) (domain.Session, error) {
	now := s.Now().Truncate(time.Second)
	claims := jwtx.NewSessionClaims(subject, s.Issuer, amr, s.TTL, now)
	token, err := s.Signer.Sign(claims)
	if err != nil {
		return domain.Session{}, fmt.Errorf("sign session token: %w", err)
	}
	return domain.Session{
		Token:     token,
		TokenType: TokenType,
		ExpiresAt: claims.ExpiresAt.Time,
		ExpiresIn: s.TTL,
	}, nil
}

// Verify checks a bearer token and folds the jwtx errors into the service
// taxonomy. A token from another issuer, or of another type, is treated as a
// bad signature: it is not one of ours. The jwtx error stays in the chain.
func (s *TokenService) Verify(token string) (jwtx.Claims, error) {
	claims, err := s.Verifier.Verify(token)
	if err == nil {
		return claims, nil
	}

	switch {
	case errors.Is(err, jwtx.ErrExpired):
		return jwtx.Claims{}, fmt.Errorf("%w: %w", ErrExpiredToken, err)
	case errors.Is(err, jwtx.ErrMalformed):
		return jwtx.Claims{}, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	default:
		return jwtx.Claims{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
}
