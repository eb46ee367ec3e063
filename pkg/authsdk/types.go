package authsdk

import "time"

// Request bodies carry go-playground/validator tags; the server validates
// them before anything reaches the login flow.

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=256"`
}

// LoginResponse reports the next step. Exactly one of the flags is set.
type LoginResponse struct {
	RequiresMFASetup bool   `json:"requires_mfa_setup,omitempty"`
	RequiresMFA      bool   `json:"requires_mfa,omitempty"`
	State            string `json:"state"`
	Message          string `json:"message"`
}

// MFASetupRequest is the body of POST /v1/auth/mfa/setup.
type MFASetupRequest struct {
	Username string `json:"username" validate:"required,max=64"`
}

// MFASetupResponse carries a secret that is not stored until it is confirmed.
type MFASetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	ManualEntryKey  string `json:"manual_entry_key"`
	Issuer          string `json:"issuer"`
	Account         string `json:"account"`
}

// MFAConfirmRequest is the body of POST /v1/auth/mfa/setup/confirm.
type MFAConfirmRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Secret   string `json:"secret" validate:"required,max=128"`
	MFACode  string `json:"mfa_code" validate:"required,len=6,numeric"`
}

// MFAVerifyRequest is the body of POST /v1/auth/mfa/verify.
type MFAVerifyRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	MFACode  string `json:"mfa_code" validate:"required,len=6,numeric"`
}

// TokenResponse is returned by every endpoint that issues a session token.
type TokenResponse struct {
	Token            string `json:"token"`
	TokenType        string `json:"token_type"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

// ProfileResponse is returned by GET /v1/auth/me.
type ProfileResponse struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	MFAEnabled bool       `json:"mfa_enabled"`
	IsActive   bool       `json:"is_active"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// BootstrapRequest is the body of POST /v1/bootstrap.
type BootstrapRequest struct {
	Token    string `json:"token" validate:"required"`
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"required,min=12,max=256"`
}

// BootstrapResponse identifies the administrator that was created.
type BootstrapResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// LoginAttempt is one audit record.
type LoginAttempt struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Identifier string    `json:"identifier"`
	Event      string    `json:"event"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// LoginLogsResponse is returned by GET /v1/admin/logs/login.
type LoginLogsResponse struct {
	Attempts []LoginAttempt `json:"attempts"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}
