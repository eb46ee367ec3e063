package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/opticavillalba/authcore/pkg/jwtx"
	"github.com/opticavillalba/authcore/pkg/slogx"
)

// AuthnMiddleware requires a valid "Authorization: Bearer <token>" header and
// places the verified claims in the request context.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				desc := bearerErrorDescription(err)
				log.Warn("jwt verify failed", "reason", desc, "err", err)
				writeBearerError(w, desc)
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithAuth(ctx, claims)))
		})
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func bearerErrorDescription(err error) string {
	switch {
	case errors.Is(err, jwtx.ErrExpired):
		return "token expired"
	case errors.Is(err, jwtx.ErrInvalidSig):
		return "invalid signature"
	case errors.Is(err, jwtx.ErrMalformed):
		return "malformed token"
	default:
		return "token verification failed"
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "invalid_token",
		"error_description": desc,
	})
}
