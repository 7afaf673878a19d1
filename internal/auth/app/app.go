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

	"github.com/prometheus/client_golang/prometheus"

	httpapi "github.com/authcorehq/authcore/internal/auth/http"
	"github.com/authcorehq/authcore/internal/auth/metrics"
	"github.com/authcorehq/authcore/internal/auth/service"
	"github.com/authcorehq/authcore/internal/auth/store"
	"github.com/authcorehq/authcore/internal/auth/store/drivers/sqlite"
	"github.com/authcorehq/authcore/pkg/cryptox"
	"github.com/authcorehq/authcore/pkg/jwtx"
	"github.com/authcorehq/authcore/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the whole service together: store, services, HTTP
// server, and the background housekeeping loop.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	signer   jwtx.Signer
	verifier jwtx.Verifier

	registry  *prometheus.Registry
	collector *metrics.Collector

	tokenService        *service.TokenService
	userService         *service.UserService
	applicationService  *service.ApplicationService
	rolesService        *service.RolesService
	auditService        *service.AuditService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authcore",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(app.cfg.PepperFile)

	signer, err := jwtx.NewSignerHS256([]byte(app.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("AUTHCORE_JWT_SECRET: %w", err)
	}
	app.signer = signer
	app.verifier = jwtx.NewVerifierHS256([]byte(app.cfg.JWTSecret), app.cfg.Issuer)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.registry = prometheus.NewRegistry()
	app.collector = metrics.NewCollector(app.registry)

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("authcore starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains in-flight requests, stops housekeeping, and closes the
// database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down authcore...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("authcore stopped")
	return nil
}

// initDatabase opens the sqlite store and applies migrations.
func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		Store:             app.db,
		Signer:            app.signer,
		Issuer:            app.cfg.Issuer,
		AccessTTL:         app.cfg.AccessTokenTTL,
		RefreshTTL:        app.cfg.RefreshTokenTTL,
		FailedLoginLimit:  app.cfg.FailedLoginLimit,
		FailedLoginWindow: app.cfg.FailedLoginWindow,
	}

	app.userService = &service.UserService{Store: app.db}
	app.applicationService = &service.ApplicationService{Store: app.db}
	app.rolesService = &service.RolesService{Store: app.db}
	app.auditService = &service.AuditService{Store: app.db}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.TokenRetention,
	)
}

// initHTTP builds the router and the HTTP server.
func (app *Application) initHTTP() {
	originResolver := httpapi.NewCachedOriginResolver(app.db.Applications(), app.cfg.CORSCacheTTL)

	router := httpapi.NewRouter(
		app.verifier,
		BuildVersion,
		app.db,
		originResolver,
		app.collector,
		app.registry,
		app.logger,
	)

	router.TokenService = app.tokenService
	router.UserService = app.userService
	router.ApplicationService = app.applicationService
	router.RolesService = app.rolesService
	router.AuditService = app.auditService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
