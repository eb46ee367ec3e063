package http

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/opticavillalba/authcore/api/auth" // Swagger docs
	"github.com/opticavillalba/authcore/internal/auth/metrics"
	"github.com/opticavillalba/authcore/internal/auth/service"
	"github.com/opticavillalba/authcore/pkg/httpx"
	"github.com/opticavillalba/authcore/pkg/ratelimit"
	"github.com/opticavillalba/authcore/pkg/slogx"
)

// Options tunes the router. The zero value is usable.
type Options struct {
	// TrustProxyHeaders takes the client address from X-Forwarded-For.
	TrustProxyHeaders bool
	// CORSOrigins lists the origins allowed to call the API from a browser.
	CORSOrigins []string
	// LoginWindow is advertised as Retry-After when a login is rate limited.
	LoginWindow time.Duration
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	opts         Options
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	TokenService     *service.TokenService
	LoginService     *service.LoginService
	UserService      *service.UserService
	BootstrapService *service.BootstrapService

	// ReadyChecks are pinged by /readyz, keyed by the name reported.
	ReadyChecks map[string]Pinger
}

func NewRouter(buildVersion string, logger *slog.Logger, opts Options) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		opts:         opts,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		ReadyChecks:  map[string]Pinger{},
	}

	// Set default middleware chain; the first entry runs outermost.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.ClientIPMiddleware(opts.TrustProxyHeaders),
		httpx.CORS(opts.CORSOrigins),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLogin()
	r.registerSession()
	r.registerBootstrap()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			authcore Authentication Service API
//	@version		0.1.0
//	@description	Password plus TOTP login for the administrative back office.
//	@description
//	@description				Session tokens are HS256 JWTs. Send them as "Authorization: Bearer {token}".
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) retryAfterSeconds() int {
	if r.opts.LoginWindow <= 0 {
		return int(ratelimit.DefaultWindow.Seconds())
	}
	return int(r.opts.LoginWindow.Seconds())
}

// limit counts coarse throttling rejections under the given scope.
func limit(cfg httpx.RateLimitConfig, scope string) httpx.RateLimitConfig {
	cfg.OnReject = func(*http.Request, string) {
		metrics.RateLimited.WithLabelValues(scope).Inc()
	}
	return cfg
}

func (r *Router) registerLogin() {
	h := &LoginHandler{
		LoginService: r.LoginService,
		RetryAfter:   r.retryAfterSeconds(),
	}

	// Guessing is bounded by the login service's sliding window; this
	// bucket only absorbs floods from a single address.
	throttle := httpx.RateLimitByIP(limit(httpx.AuthLimit, "http_auth"))

	r.Mux.Handle("POST /v1/auth/login", httpx.Chain(http.HandlerFunc(h.HandleLogin), throttle))
	r.Mux.Handle("POST /v1/auth/mfa/setup", httpx.Chain(http.HandlerFunc(h.HandleMFASetup), throttle))
	r.Mux.Handle("POST /v1/auth/mfa/setup/confirm", httpx.Chain(http.HandlerFunc(h.HandleMFAConfirm), throttle))
	r.Mux.Handle("POST /v1/auth/mfa/verify", httpx.Chain(http.HandlerFunc(h.HandleMFAVerify), throttle))
}

func (r *Router) registerSession() {
	h := &SessionHandler{
		LoginService: r.LoginService,
		UserService:  r.UserService,
	}

	authenticated := []httpx.Middleware{
		httpx.AuthnMiddleware(r.TokenService), // verify JWT (iss/exp/typ)
		httpx.RequireAuthMethods(service.AMRPassword, service.AMROTP),
		httpx.RateLimitByPrincipal(limit(httpx.SessionLimit, "http_session")),
	}
	active := RequireActiveAccount(r.LoginService)
	secured := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, slices.Concat(authenticated, []httpx.Middleware{active})...)
	}

	// Refresh checks the account itself so that a refused refresh is audited.
	r.Mux.Handle("POST /v1/auth/refresh", httpx.Chain(http.HandlerFunc(h.HandleRefresh), authenticated...))
	r.Mux.Handle("GET /v1/auth/me", secured(h.HandleMe))
	r.Mux.Handle("POST /v1/auth/logout", secured(h.HandleLogout))
	r.Mux.Handle("GET /v1/admin/logs/login", secured(h.HandleLoginLogs))
}

func (r *Router) registerBootstrap() {
	// POST /bootstrap - very strict rate limit by IP (one-time setup endpoint)
	bootstrapHandler := &BootstrapHandler{BootstrapService: r.BootstrapService}
	r.Mux.Handle("POST /v1/bootstrap",
		httpx.Chain(bootstrapHandler,
			httpx.RateLimitByIP(limit(httpx.AuthLimit, "http_bootstrap")),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	public := httpx.RateLimitByIP(limit(httpx.PublicLimit, "http_public"))

	r.Mux.Handle("GET /livez", httpx.Chain(LivezHandler(r.startTime, r.buildVersion), public))
	r.Mux.Handle("GET /readyz", httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.ReadyChecks), public))
	r.Mux.Handle("GET /metrics", promhttp.Handler())
}
