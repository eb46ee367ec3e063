package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient is a client for the authcore authentication service. It provides
// the unauthenticated operations and creates authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new auth service client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Login submits a username and password. It never yields a token; the
// response says which MFA step comes next.
func (c *SDKClient) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.call(ctx, http.MethodPost, "/v1/auth/login", "", LoginRequest{
		Username: username,
		Password: password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestMFASetup asks for a fresh TOTP secret for an account without MFA.
func (c *SDKClient) RequestMFASetup(ctx context.Context, username string) (*MFASetupResponse, error) {
	var out MFASetupResponse
	if err := c.call(ctx, http.MethodPost, "/v1/auth/mfa/setup", "", MFASetupRequest{Username: username}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmMFASetup enables MFA with the secret from RequestMFASetup and a code
// from the authenticator app, and opens a session.
func (c *SDKClient) ConfirmMFASetup(ctx context.Context, username, secret, code string) (*Session, error) {
	var out TokenResponse
	err := c.call(ctx, http.MethodPost, "/v1/auth/mfa/setup/confirm", "", MFAConfirmRequest{
		Username: username,
		Secret:   secret,
		MFACode:  code,
	}, &out)
	if err != nil {
		return nil, err
	}
	return newSession(c, &out), nil
}

// VerifyMFA completes a login for an enrolled account and opens a session.
func (c *SDKClient) VerifyMFA(ctx context.Context, username, code string) (*Session, error) {
	var out TokenResponse
	err := c.call(ctx, http.MethodPost, "/v1/auth/mfa/verify", "", MFAVerifyRequest{
		Username: username,
		MFACode:  code,
	}, &out)
	if err != nil {
		return nil, err
	}
	return newSession(c, &out), nil
}

// Bootstrap creates the first administrator on an empty deployment.
func (c *SDKClient) Bootstrap(ctx context.Context, req BootstrapRequest) (*BootstrapResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/bootstrap", "", req)
	if err != nil {
		return nil, err
	}
	var out BootstrapResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// NewSessionFromToken wraps a token obtained elsewhere.
func (c *SDKClient) NewSessionFromToken(token string, expiresIn time.Duration) *Session {
	return &Session{
		client:    c,
		token:     token,
		expiresAt: time.Now().Add(expiresIn),
	}
}
