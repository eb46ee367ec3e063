package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	httpapi "github.com/opticavillalba/authcore/internal/auth/http"
	"github.com/opticavillalba/authcore/internal/auth/service"
	"github.com/opticavillalba/authcore/internal/auth/store/drivers/sqlite"
	"github.com/opticavillalba/authcore/pkg/cryptox"
	"github.com/opticavillalba/authcore/pkg/ratelimit"
	"github.com/opticavillalba/authcore/pkg/slogx"
	"github.com/opticavillalba/authcore/pkg/totpx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      *sqlite.Store
	hasher  *cryptox.PasswordHasher
	limiter ratelimit.Limiter
	sweep   service.SweepFunc
	pgPool  *pgxpool.Pool // nil unless the postgres limiter is used

	// Services
	tokenService        *service.TokenService
	loginService        *service.LoginService
	userService         *service.UserService
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	logger := slogx.New(slogx.Config{
		Service: "auth-service",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	return NewWithLogger(cfg, logger)
}

// NewWithLogger is New with a caller supplied logger.
func NewWithLogger(cfg Config, logger *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{cfg: cfg, logger: logger}

	hasher, err := LoadHasher(cfg)
	if err != nil {
		return nil, err
	}
	app.hasher = hasher

	db, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.db = db

	key, err := SigningKey(cfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.tokenService, err = service.NewTokenService(key, cfg.Issuer, cfg.TokenTTL, nil)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	if err := app.initLimiter(context.Background()); err != nil {
		app.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// LoadHasher reads or creates the pepper and returns the password hasher.
func LoadHasher(cfg Config) (*cryptox.PasswordHasher, error) {
	pepper, err := cryptox.LoadOrGeneratePepper(cfg.PepperFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}
	return cryptox.NewPasswordHasher(pepper), nil
}

// OpenStore opens the SQLite database, seals MFA secrets with the master
// key and applies migrations.
func OpenStore(cfg Config, logger *slog.Logger) (*sqlite.Store, error) {
	box, err := SecretBox(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secret box: %w", err)
	}

	db, err := sqlite.NewStore(sqlite.FileDSN(cfg.DatabaseFile), sqlite.WithSecretBox(box))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}

	logger.Info("database migrations applied successfully", "file", cfg.DatabaseFile)
	return db, nil
}

// initLimiter builds the login attempt limiter for the configured backend.
func (app *Application) initLimiter(ctx context.Context) error {
	limits := ratelimit.Config{
		Limit:  app.cfg.LoginMaxAttempts,
		Window: app.cfg.LoginWindow,
	}

	switch app.cfg.LimiterBackend {
	case BackendPostgres:
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pool, err := ratelimit.Connect(ctx, app.cfg.LimiterDSN)
		if err != nil {
			return fmt.Errorf("failed to connect rate limit database: %w", err)
		}
		app.pgPool = pool

		pg, err := ratelimit.NewPostgres(pool, limits)
		if err != nil {
			return err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		app.limiter = pg
		app.sweep = pg.Sweep

	default:
		mem, err := ratelimit.NewMemory(limits)
		if err != nil {
			return err
		}
		app.limiter = mem
		app.sweep = func(context.Context) (int64, error) {
			return int64(mem.Sweep()), nil
		}
	}

	app.logger.Info("login rate limiter ready",
		"backend", app.cfg.LimiterBackend,
		"max_attempts", limits.Limit,
		"window", limits.Window,
	)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.loginService = &service.LoginService{
		Store:            app.db,
		Hasher:           app.hasher,
		TOTP:             totpx.NewService(app.cfg.MFASkew),
		Tokens:           app.tokenService,
		Limiter:          app.limiter,
		MFAIssuer:        app.cfg.MFAIssuer,
		ReplayProtection: app.cfg.MFAReplayStop,
	}
	app.userService = &service.UserService{Store: app.db, Hasher: app.hasher}
	app.bootstrapService = &service.BootstrapService{
		Store:  app.db,
		Hasher: app.hasher,
		Token:  app.cfg.BootstrapToken,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.AuditRetention,
		app.sweep,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.logger, httpapi.Options{
		TrustProxyHeaders: app.cfg.TrustProxyHeaders,
		CORSOrigins:       app.cfg.CORSOrigins,
		LoginWindow:       app.cfg.LoginWindow,
	})

	// Wire services to router
	router.TokenService = app.tokenService
	router.LoginService = app.loginService
	router.UserService = app.userService
	router.BootstrapService = app.bootstrapService
	router.ReadyChecks["database"] = app.db
	if app.pgPool != nil {
		router.ReadyChecks["ratelimit"] = app.pgPool
	}
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		app.housekeepingService.Stop()
		app.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down a running application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	if err := app.Close(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// Close releases the database handles. It does not stop the server.
func (app *Application) Close() error {
	if app.pgPool != nil {
		app.pgPool.Close()
		app.pgPool = nil
	}
	if app.db == nil {
		return nil
	}
	err := app.db.Close()
	app.db = nil
	if err != nil {
		app.logger.Error("error closing database", "error", err)
	}
	return err
}
