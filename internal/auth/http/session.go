package http

import (
	"net/http"

	"github.com/opticavillalba/authcore/internal/auth/service"
	"github.com/opticavillalba/authcore/pkg/authsdk"
	"github.com/opticavillalba/authcore/pkg/httpx"
)

// SessionHandler serves the endpoints that require a session token.
type SessionHandler struct {
	LoginService *service.LoginService
	UserService  *service.UserService
}

// RequireActiveAccount re-reads the token's principal on every request, so a
// disabled account, or one whose MFA was reset, loses access before its token
// expires.
func RequireActiveAccount(login *service.LoginService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := httpx.PrincipalFromContext(r.Context())
			if !ok {
				authsdk.ErrInvalidToken.WriteError(w)
				return
			}
			if _, err := login.ActiveUser(r.Context(), principal); err != nil {
				writeServiceError(w, r, err, 0)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HandleRefresh handles POST /v1/auth/refresh.
//
//	@Summary		Refresh the session token
//	@Description	Issues a new token for the caller. Disabled accounts and accounts whose MFA was reset are refused.
//	@Tags			Session
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TokenResponse	"New session token"
//	@Failure		401	{object}	authsdk.APIError		"Invalid token or MFA no longer enabled"
//	@Failure		403	{object}	authsdk.APIError		"Account disabled"
//	@Router			/v1/auth/refresh [post].
func (h *SessionHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, ok := httpx.ClaimsFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	session, err := h.LoginService.Refresh(ctx, httpx.ClientIPFromContext(ctx), claims)
	if err != nil {
		writeServiceError(w, r, err, 0)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(session))
}

// HandleMe handles GET /v1/auth/me.
//
//	@Summary		Current user
//	@Tags			Session
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.ProfileResponse	"Profile"
//	@Failure		401	{object}	authsdk.APIError		"Invalid or missing token"
//	@Failure		403	{object}	authsdk.APIError		"Account disabled"
//	@Failure		404	{object}	authsdk.APIError		"User no longer exists"
//	@Router			/v1/auth/me [get].
func (h *SessionHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := httpx.PrincipalFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	profile, err := h.LoginService.Me(ctx, principal)
	if err != nil {
		writeServiceError(w, r, err, 0)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.ProfileResponse{
		ID:         profile.ID,
		Username:   profile.Username,
		Email:      profile.Email,
		MFAEnabled: profile.MFAEnabled,
		IsActive:   profile.IsActive,
		LastLogin:  profile.LastLogin,
		CreatedAt:  profile.CreatedAt,
	})
}

// HandleLogout handles POST /v1/auth/logout. Tokens are stateless, so this
// only records the event; the client discards its token.
//
//	@Summary		Log out
//	@Tags			Session
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MessageResponse	"Logged out"
//	@Failure		401	{object}	authsdk.APIError		"Invalid or missing token"
//	@Router			/v1/auth/logout [post].
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := httpx.PrincipalFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	h.LoginService.Logout(ctx, httpx.ClientIPFromContext(ctx), principal)
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "logged out"})
}
