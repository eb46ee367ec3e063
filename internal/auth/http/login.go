package http

import (
	"net/http"

	"github.com/opticavillalba/authcore/internal/auth/domain"
	"github.com/opticavillalba/authcore/internal/auth/service"
	"github.com/opticavillalba/authcore/pkg/authsdk"
	"github.com/opticavillalba/authcore/pkg/httpx"
)

// LoginHandler serves the unauthenticated steps of the login flow.
type LoginHandler struct {
	LoginService *service.LoginService

	// RetryAfter is sent with rate_limited responses, in seconds.
	RetryAfter int
}

// HandleLogin handles POST /v1/auth/login.
//
//	@Summary		Submit username and password
//	@Description	Checks the password. No token is issued; the response says whether MFA setup or MFA verification comes next.
//	@Tags			Login
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse	"Next step"
//	@Failure		400		{object}	authsdk.APIError		"Malformed request"
//	@Failure		401		{object}	authsdk.APIError		"Invalid username or password"
//	@Failure		403		{object}	authsdk.APIError		"Account disabled"
//	@Failure		429		{object}	authsdk.APIError		"Too many attempts"
//	@Failure		503		{object}	authsdk.APIError		"Store unavailable"
//	@Router			/v1/auth/login [post].
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	ctx := r.Context()
	res, err := h.LoginService.SubmitCredentials(ctx, httpx.ClientIPFromContext(ctx), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err, h.RetryAfter)
		return
	}

	out := authsdk.LoginResponse{
		RequiresMFASetup: res.RequiresMFASetup,
		RequiresMFA:      res.RequiresMFA,
		State:            string(res.State),
	}
	switch res.State {
	case domain.StateMFASetupRequired:
		out.Message = "password accepted, set up an authenticator app to continue"
	case domain.StateMFARequired:
		out.Message = "password accepted, enter the code from your authenticator app"
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func tokenResponse(s domain.Session) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		Token:            s.Token,
		TokenType:        s.TokenType,
		ExpiresInSeconds: int(s.ExpiresIn.Seconds()),
	}
}
