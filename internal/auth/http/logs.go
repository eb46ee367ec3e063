package http

import (
	"net/http"
	"strconv"

	"github.com/opticavillalba/authcore/pkg/authsdk"
	"github.com/opticavillalba/authcore/pkg/httpx"
)

// HandleLoginLogs handles GET /v1/admin/logs/login.
//
//	@Summary		Recent login attempts
//	@Description	Lists audit records, newest first. The limit defaults to 50 and is capped at 500.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			limit	query		int							false	"Number of records"
//	@Success		200		{object}	authsdk.LoginLogsResponse	"Attempts"
//	@Failure		400		{object}	authsdk.APIError			"Invalid limit"
//	@Failure		401		{object}	authsdk.APIError			"Invalid or missing token"
//	@Failure		403		{object}	authsdk.APIError			"Account disabled"
//	@Router			/v1/admin/logs/login [get].
func (h *SessionHandler) HandleLoginLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			authsdk.ErrValidation.WithDescription("limit must be a positive integer").WriteError(w)
			return
		}
		limit = n
	}

	attempts, err := h.UserService.LoginAttempts(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err, 0)
		return
	}

	out := authsdk.LoginLogsResponse{Attempts: make([]authsdk.LoginAttempt, 0, len(attempts))}
	for _, a := range attempts {
		out.Attempts = append(out.Attempts, authsdk.LoginAttempt{
			ID:         a.ID,
			Username:   a.Username,
			Identifier: a.Identifier,
			Event:      a.Event,
			Success:    a.Success,
			Reason:     a.Reason,
			CreatedAt:  a.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
