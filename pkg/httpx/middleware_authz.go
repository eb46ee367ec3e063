package httpx

import (
	"net/http"
	"slices"
	"strings"
)

// RequireAuthMethods the caller's token must list every method in its "amr"
// claim. Use after AuthnMiddleware.
func RequireAuthMethods(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}
			for _, m := range required {
				if !slices.Contains(claims.AMR, m) {
					w.Header().Set("WWW-Authenticate",
						`Bearer error="insufficient_user_authentication", error_description="requires `+strings.Join(required, " ")+`"`)
					WriteJSON(w, http.StatusForbidden, map[string]string{
						"error":             "insufficient_user_authentication",
						"error_description": "token does not carry the required authentication methods",
					})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
