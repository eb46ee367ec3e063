/*
Package authsdk is the client SDK for the authcore authentication service,
and the home of the wire types the service itself encodes.

# Overview

Login is a two step flow. The password step never returns a token; it tells
the caller whether the account still has to enroll a TOTP authenticator or
only has to present a code:

	client := authsdk.NewSDKClient("https://auth.example.com")

	res, err := client.Login(ctx, "alice", password)
	if err != nil {
		return err
	}

	var session *authsdk.Session
	if res.RequiresMFASetup {
		setup, err := client.RequestMFASetup(ctx, "alice")
		// show setup.ProvisioningURI as a QR code, read a code from the app
		session, err = client.ConfirmMFASetup(ctx, "alice", setup.Secret, code)
	} else {
		session, err = client.VerifyMFA(ctx, "alice", code)
	}

# Sessions

A Session holds the bearer token and renews it through /v1/auth/refresh
shortly before it expires. Renewal needs a still-valid token, so a session
left idle past its expiry has to log in again.

	profile, err := session.Me(ctx)
	logs, err := session.LoginLogs(ctx, 50)
	err = session.Logout(ctx)

# Errors

Every non-2xx response becomes an *APIError carrying the stable error code:

	_, err := client.VerifyMFA(ctx, "alice", "000000")
	if authsdk.IsCode(err, authsdk.ErrorCodeRateLimited) {
		var apiErr *authsdk.APIError
		errors.As(err, &apiErr)
		time.Sleep(time.Duration(apiErr.RetryAfter) * time.Second)
	}

The same type is used by the server to write error responses, so both sides
agree on the JSON shape.

# Bootstrap

A fresh deployment has no users. The first administrator is created with the
pre-shared bootstrap token, after which the endpoint refuses further calls:

	admin, err := client.Bootstrap(ctx, authsdk.BootstrapRequest{
		Token:    os.Getenv("BOOTSTRAP_TOKEN"),
		Username: "admin",
		Email:    "admin@example.com",
		Password: password,
	})
*/
package authsdk
