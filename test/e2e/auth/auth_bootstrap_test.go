package auth_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opticavillalba/authcore/pkg/authsdk"
)

func TestBootstrapOnlyOnce(t *testing.T) {
	baseURL := setupAuthContainer(t, nil)
	client := authsdk.NewSDKClient(baseURL)
	ctx := t.Context()

	_, err := client.Bootstrap(ctx, authsdk.BootstrapRequest{
		Token:    "wrong-token",
		Username: adminUsername,
		Password: adminPassword,
	})
	requireAPIError(t, err, authsdk.ErrorCodeUnauthorized, http.StatusUnauthorized)

	bootstrapService(t, client)

	_, err = client.Bootstrap(ctx, authsdk.BootstrapRequest{
		Token:    bootstrapToken,
		Username: "second",
		Password: adminPassword,
	})
	requireAPIError(t, err, authsdk.ErrorCodeAlreadyBootstrapped, http.StatusConflict)
}

func TestBootstrapDisabledWithoutToken(t *testing.T) {
	baseURL := setupAuthContainer(t, map[string]string{"BOOTSTRAP_TOKEN": ""})
	client := authsdk.NewSDKClient(baseURL)

	_, err := client.Bootstrap(t.Context(), authsdk.BootstrapRequest{
		Token:    bootstrapToken,
		Username: adminUsername,
		Password: adminPassword,
	})
	requireAPIError(t, err, authsdk.ErrorCodeUnauthorized, http.StatusUnauthorized)

	ready, err := client.GetReadiness(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Checks["database"])
}
