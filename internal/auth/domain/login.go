package domain

import "time"

// LoginState is a step of the interactive login flow. Every login response
// reports the state the caller is in next.
type LoginState string

const (
	StateInit               LoginState = "INIT"
	StateCredentialsChecked LoginState = "CREDENTIALS_CHECKED"
	StateMFASetupRequired   LoginState = "MFA_SETUP_REQUIRED"
	StateMFARequired        LoginState = "MFA_REQUIRED"
	StateAuthenticated      LoginState = "AUTHENTICATED"
)

// CredentialsResult is the outcome of a successful password check. No token
// is issued at this point.
type CredentialsResult struct {
	State            LoginState
	RequiresMFASetup bool
	RequiresMFA      bool
}

// Session is an issued bearer token.
type Session struct {
	Token     string
	TokenType string // always "bearer"
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

// Audit event names stored in LoginAttempt.Event.
const (
	EventPassword  = "password"
	EventMFAVerify = "mfa_verify"
	EventMFASetup  = "mfa_setup"
	EventRefresh   = "refresh"
	EventLogout    = "logout"
	EventBootstrap = "bootstrap"
)

// LoginAttempt is an append-only audit record. Reason holds the stable error
// code of a failure and is empty on success.
type LoginAttempt struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Identifier string    `json:"identifier"`
	Event      string    `json:"event"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
