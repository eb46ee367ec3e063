package http

import (
	"net/http"

	"github.com/opticavillalba/authcore/pkg/authsdk"
	"github.com/opticavillalba/authcore/pkg/httpx"
)

// HandleMFASetup handles POST /v1/auth/mfa/setup.
//
//	@Summary		Start MFA enrollment
//	@Description	Generates a TOTP secret for an account that has not enrolled. The secret is not stored until it is confirmed.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFASetupRequest		true	"Account"
//	@Success		200		{object}	authsdk.MFASetupResponse	"Secret and provisioning URI"
//	@Failure		400		{object}	authsdk.APIError			"Malformed request"
//	@Failure		404		{object}	authsdk.APIError			"Unknown user"
//	@Failure		409		{object}	authsdk.APIError			"MFA already enabled"
//	@Router			/v1/auth/mfa/setup [post].
func (h *LoginHandler) HandleMFASetup(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MFASetupRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	setup, err := h.LoginService.RequestMFASetup(r.Context(), req.Username)
	if err != nil {
		writeServiceError(w, r, err, h.RetryAfter)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MFASetupResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
		ManualEntryKey:  setup.ManualEntryKey,
		Issuer:          setup.Issuer,
		Account:         setup.Account,
	})
}

// HandleMFAConfirm handles POST /v1/auth/mfa/setup/confirm.
//
//	@Summary		Confirm MFA enrollment
//	@Description	Verifies a code against the secret from setup, enables MFA and issues a session token.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFAConfirmRequest	true	"Secret and code"
//	@Success		200		{object}	authsdk.TokenResponse		"Session token"
//	@Failure		400		{object}	authsdk.APIError			"Malformed request"
//	@Failure		401		{object}	authsdk.APIError			"Invalid code"
//	@Failure		409		{object}	authsdk.APIError			"MFA already enabled"
//	@Failure		429		{object}	authsdk.APIError			"Too many attempts"
//	@Router			/v1/auth/mfa/setup/confirm [post].
func (h *LoginHandler) HandleMFAConfirm(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MFAConfirmRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	ctx := r.Context()
	session, err := h.LoginService.ConfirmMFASetup(ctx, httpx.ClientIPFromContext(ctx), req.Username, req.Secret, req.MFACode)
	if err != nil {
		writeServiceError(w, r, err, h.RetryAfter)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(session))
}

// HandleMFAVerify handles POST /v1/auth/mfa/verify.
//
//	@Summary		Verify an MFA code
//	@Description	Completes the login of an enrolled account and issues a session token.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MFAVerifyRequest	true	"Code"
//	@Success		200		{object}	authsdk.TokenResponse		"Session token"
//	@Failure		400		{object}	authsdk.APIError			"Malformed request"
//	@Failure		401		{object}	authsdk.APIError			"Invalid code or MFA not enabled"
//	@Failure		429		{object}	authsdk.APIError			"Too many attempts"
//	@Router			/v1/auth/mfa/verify [post].
func (h *LoginHandler) HandleMFAVerify(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MFAVerifyRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	ctx := r.Context()
	session, err := h.LoginService.VerifyMFALogin(ctx, httpx.ClientIPFromContext(ctx), req.Username, req.MFACode)
	if err != nil {
		writeServiceError(w, r, err, h.RetryAfter)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(session))
}
