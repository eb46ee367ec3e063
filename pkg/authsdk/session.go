package authsdk

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// renewBefore is how long before expiry a session renews its token.
const renewBefore = time.Minute

// Session holds a bearer token and renews it before it expires. It is safe
// for concurrent use.
type Session struct {
	client *SDKClient

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

func newSession(client *SDKClient, tokenResp *TokenResponse) *Session {
	return &Session{
		client:    client,
		token:     tokenResp.Token,
		expiresAt: time.Now().Add(time.Duration(tokenResp.ExpiresInSeconds) * time.Second),
	}
}

// Token returns the current token without renewing it.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// ExpiresAt returns the local estimate of the token's expiry.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Refresh exchanges the current token for a new one unconditionally.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) error {
	var out TokenResponse
	if err := s.client.call(ctx, http.MethodPost, "/v1/auth/refresh", s.token, nil, &out); err != nil {
		return err
	}
	s.token = out.Token
	s.expiresAt = time.Now().Add(time.Duration(out.ExpiresInSeconds) * time.Second)
	return nil
}

// validToken returns the token, renewing it first when it is about to expire.
func (s *Session) validToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Until(s.expiresAt) > renewBefore {
		token := s.token
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have refreshed)
	if time.Until(s.expiresAt) > renewBefore {
		return s.token, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.token, nil
}

func (s *Session) call(ctx context.Context, method, path string, body, target any) error {
	token, err := s.validToken(ctx)
	if err != nil {
		return err
	}
	return s.client.call(ctx, method, path, token, body, target)
}

// Me returns the profile of the session's user.
func (s *Session) Me(ctx context.Context) (*ProfileResponse, error) {
	var out ProfileResponse
	if err := s.call(ctx, http.MethodGet, "/v1/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout records the logout server side and forgets the token locally.
func (s *Session) Logout(ctx context.Context) error {
	var out MessageResponse
	if err := s.call(ctx, http.MethodPost, "/v1/auth/logout", nil, &out); err != nil {
		return err
	}
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
	return nil
}

// LoginLogs lists the newest login attempts. A non-positive limit uses the
// server default.
func (s *Session) LoginLogs(ctx context.Context, limit int) (*LoginLogsResponse, error) {
	path := "/v1/admin/logs/login"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out LoginLogsResponse
	if err := s.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
