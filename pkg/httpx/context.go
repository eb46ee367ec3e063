package httpx

import (
	"context"

	"github.com/opticavillalba/authcore/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyPrincipal ctxKey = "principal"
	CtxKeyClaims    ctxKey = "claims"
	CtxKeyClientIP  ctxKey = "client_ip"
)

// PrincipalFromContext returns the authenticated username, if any.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(CtxKeyPrincipal).(string)
	return v, ok && v != ""
}

// ClaimsFromContext returns the verified token claims, if any.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	v, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return v, ok
}

// ClientIPFromContext returns the address recorded by ClientIPMiddleware.
func ClientIPFromContext(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyClientIP).(string)
	return v
}

func contextWithAuth(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyPrincipal, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}
