package domain

import "time"

type User struct {
	ID           string
	Username     string // unique, compared case-insensitively
	Email        string
	PasswordHash string  // argon2id PHC string, or a legacy bcrypt hash
	MFASecret    *string // TOTP secret (nullable, base32 encoded)
	MFAEnabled   bool
	MFALastStep  uint64 // last accepted TOTP step, 0 when none
	IsActive     bool
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasMFA reports whether the user has completed enrollment and can be
// challenged for a TOTP code.
func (u User) HasMFA() bool {
	return u.MFAEnabled && u.MFASecret != nil && *u.MFASecret != ""
}

// Profile is the public view of a user returned to an authenticated caller.
type Profile struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	MFAEnabled bool       `json:"mfa_enabled"`
	IsActive   bool       `json:"is_active"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		MFAEnabled: u.MFAEnabled,
		IsActive:   u.IsActive,
		LastLogin:  u.LastLogin,
		CreatedAt:  u.CreatedAt,
	}
}
