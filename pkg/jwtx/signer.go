package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// MinHMACKeyLength is the shortest symmetric key accepted for HS256.
const MinHMACKeyLength = 32

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	Validate() error
}

// HS256Signer implements the Signer interface using HMAC-SHA256 with a
// server-held symmetric key.
type HS256Signer struct {
	kid string
	key []byte
}

// NewSignerHS256 creates an HS256 signer. The key is copied.
func NewSignerHS256(kid string, key []byte) (*HS256Signer, error) {
	s := &HS256Signer{kid: kid, key: append([]byte(nil), key...)}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }
func (s *HS256Signer) KID() string { return s.kid }

// Sign takes your claims and turns them into a signed JWT string.
func (s *HS256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if s.kid != "" {
		t.Header["kid"] = s.kid
	}
	return t.SignedString(s.key)
}

// Validate does a quick sanity check on the key.
func (s *HS256Signer) Validate() error {
	if len(s.key) == 0 {
		return errors.New("jwtx: empty HS256 key")
	}
	if len(s.key) < MinHMACKeyLength {
		return ErrWeakKey
	}
	return nil
}
