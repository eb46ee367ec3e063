package authsdk_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/opticavillalba/authcore/pkg/authsdk"
	"github.com/opticavillalba/authcore/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func newFakeServer(t *testing.T, mux *http.ServeMux) *authsdk.SDKClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return authsdk.NewSDKClient(srv.URL + "/")
}

func TestLoginDecodesNextStep(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req authsdk.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "right" {
			authsdk.ErrInvalidCredentials.WriteError(w)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{RequiresMFA: true, State: "MFA_REQUIRED"})
	})
	client := newFakeServer(t, mux)

	res, err := client.Login(context.Background(), "admin", "right")
	require.NoError(t, err)
	require.True(t, res.RequiresMFA)
	require.False(t, res.RequiresMFASetup)

	_, err = client.Login(context.Background(), "admin", "wrong")
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeInvalidCredentials))

	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestRateLimitedCarriesRetryAfter(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/mfa/verify", func(w http.ResponseWriter, r *http.Request) {
		authsdk.ErrRateLimited.WithRetryAfter(300).WriteError(w)
	})
	client := newFakeServer(t, mux)

	_, err := client.VerifyMFA(context.Background(), "admin", "123456")
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, authsdk.ErrorCodeRateLimited, apiErr.Code)
	require.Equal(t, 300, apiErr.RetryAfter)
}

func TestNonJSONErrorFallsBack(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	client := newFakeServer(t, mux)

	_, err := client.GetReadiness(context.Background())
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	require.Equal(t, authsdk.ErrorCodeServerError, apiErr.Code)
}

func TestSessionFlow(t *testing.T) {
	t.Parallel()

	var refreshed atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/mfa/verify", func(w http.ResponseWriter, r *http.Request) {
		// Expires inside the renewal margin so the first call refreshes.
		httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{Token: "t1", TokenType: "bearer", ExpiresInSeconds: 30})
	})
	mux.HandleFunc("POST /v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer t1", r.Header.Get("Authorization"))
		refreshed.Add(1)
		httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{Token: "t2", TokenType: "bearer", ExpiresInSeconds: 1800})
	})
	mux.HandleFunc("GET /v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t2" {
			authsdk.ErrInvalidToken.WriteError(w)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, authsdk.ProfileResponse{ID: "u1", Username: "admin", MFAEnabled: true, IsActive: true})
	})
	mux.HandleFunc("GET /v1/admin/logs/login", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "10", r.URL.Query().Get("limit"))
		httpx.WriteJSON(w, http.StatusOK, authsdk.LoginLogsResponse{
			Attempts: []authsdk.LoginAttempt{{ID: "a1", Username: "admin", Event: "password", Success: true}},
		})
	})
	mux.HandleFunc("POST /v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "logged out"})
	})
	client := newFakeServer(t, mux)
	ctx := context.Background()

	session, err := client.VerifyMFA(ctx, "admin", "123456")
	require.NoError(t, err)
	require.Equal(t, "t1", session.Token())

	me, err := session.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "admin", me.Username)
	require.Equal(t, "t2", session.Token())
	require.EqualValues(t, 1, refreshed.Load())

	logs, err := session.LoginLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs.Attempts, 1)
	require.EqualValues(t, 1, refreshed.Load())

	require.NoError(t, session.Logout(ctx))
	require.Empty(t, session.Token())
}

func TestBootstrapExpectsCreated(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/bootstrap", func(w http.ResponseWriter, r *http.Request) {
		var req authsdk.BootstrapRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Token != "boot" {
			authsdk.ErrBootstrapUnauthorized.WriteError(w)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, authsdk.BootstrapResponse{ID: "u1", Username: req.Username})
	})
	client := newFakeServer(t, mux)

	res, err := client.Bootstrap(context.Background(), authsdk.BootstrapRequest{
		Token: "boot", Username: "admin", Password: "long enough password",
	})
	require.NoError(t, err)
	require.Equal(t, "admin", res.Username)

	_, err = client.Bootstrap(context.Background(), authsdk.BootstrapRequest{Token: "nope"})
	require.True(t, authsdk.IsCode(err, authsdk.ErrorCodeUnauthorized))
}
