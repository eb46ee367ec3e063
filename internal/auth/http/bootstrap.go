package http

import (
	"net/http"
	"strings"

	"github.com/opticavillalba/authcore/internal/auth/domain"
	"github.com/opticavillalba/authcore/internal/auth/service"
	"github.com/opticavillalba/authcore/pkg/authsdk"
	"github.com/opticavillalba/authcore/pkg/httpx"
	"github.com/opticavillalba/authcore/pkg/slogx"
)

// BootstrapTokenHeader may carry the bootstrap token instead of the body.
const BootstrapTokenHeader = "X-Bootstrap-Token"

type BootstrapHandler struct {
	BootstrapService *service.BootstrapService
}

// ServeHTTP handles the bootstrap endpoint for initial system setup.
//
//	@Summary		Create the first administrator
//	@Description	Only available while no users exist, and only with the token configured in BOOTSTRAP_TOKEN.
//	@Tags			Bootstrap
//	@Accept			json
//	@Produce		json
//	@Param			X-Bootstrap-Token	header		string						false	"Bootstrap token, if not sent in the body"
//	@Param			request				body		authsdk.BootstrapRequest	true	"Administrator account"
//	@Success		201					{object}	authsdk.BootstrapResponse	"Created administrator"
//	@Failure		400					{object}	authsdk.APIError			"Invalid request body or validation failed"
//	@Failure		401					{object}	authsdk.APIError			"Missing or invalid bootstrap token"
//	@Failure		409					{object}	authsdk.APIError			"Already bootstrapped"
//	@Router			/v1/bootstrap [post].
func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := slogx.FromContext(ctx)

	var req authsdk.BootstrapRequest
	if req.Token == "" {
		req.Token = r.Header.Get(BootstrapTokenHeader)
	}
	if !decodeRequest(w, r, &req) {
		return
	}

	user, err := h.BootstrapService.Bootstrap(ctx, httpx.ClientIPFromContext(ctx), req.Token, domain.BootstrapData{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err, 0)
		return
	}

	l.Info("bootstrap completed", "user_id", user.ID)
	httpx.WriteJSON(w, http.StatusCreated, authsdk.BootstrapResponse{
		ID:       user.ID,
		Username: user.Username,
	})
}
