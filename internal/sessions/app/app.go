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
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpapi "github.com/aussiebroadwan/sessions/internal/sessions/http"
	"github.com/aussiebroadwan/sessions/internal/sessions/service"
	"github.com/aussiebroadwan/sessions/internal/sessions/store"
	"github.com/aussiebroadwan/sessions/pkg/cryptox"
	"github.com/aussiebroadwan/sessions/pkg/jwtx"
	"github.com/aussiebroadwan/sessions/pkg/revcache"
	"github.com/aussiebroadwan/sessions/pkg/slogx"
)

// BuildVersion is overridden at build time with -ldflags "-X".
var BuildVersion = "v0.1.0"

// Application wires the session service together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db         store.Store
	keyManager *jwtx.KeyManager
	cache      *revcache.Redis
	registry   *prometheus.Registry

	identity     *service.LocalIdentityStore
	gateway      *service.Gateway
	housekeeping *service.HousekeepingService
	rotation     *service.KeyRotationService

	server *http.Server
}

// New creates an Application with every dependency initialised.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "sessions",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		registry: prometheus.NewRegistry(),
	}

	db, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.db = db
	app.logger.Info("database ready", "driver", cfg.DatabaseDriver)

	if err := app.initCache(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	km, sealer, err := InitKeys(ctx, cfg, db, app.logger)
	if err != nil {
		app.closeBackends()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = km
	if sealer != nil {
		app.rotation = &service.KeyRotationService{
			Store:     db,
			Sealer:    sealer,
			Algorithm: cfg.Algorithm,
			RSABits:   cfg.RSABits,
			Lifetime:  cfg.KeyLifetime(),
			Keys:      km,
		}
	}

	if err := app.initServices(); err != nil {
		app.closeBackends()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

func (app *Application) initCache(ctx context.Context) error {
	if app.cfg.RedisURL == "" {
		app.logger.Info("no shared revocation cache configured")
		return nil
	}
	client, err := revcache.Dial(ctx, app.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.cache = revcache.NewRedis(client, app.cfg.RedisPrefix)
	app.logger.Info("shared revocation cache enabled")
	return nil
}

func (app *Application) initServices() error {
	hasher, err := cryptox.LoadPasswordHasher(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	app.identity, err = service.NewLocalIdentityStore(app.db, hasher)
	if err != nil {
		return err
	}

	issuer, err := jwtx.NewIssuer(app.keyManager, jwtx.IssuerOptions{Issuer: app.cfg.Issuer})
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics(app.registry)

	revocations := service.NewRevocationStore(app.db, revcache.NewLocal(app.cfg.RevocationCacheSize), service.RevocationOptions{
		Shared:       app.cache,
		Policy:       app.cfg.Policy(),
		CacheTTL:     app.cfg.RevocationCacheTTL,
		TombstoneTTL: app.cfg.RefreshTokenTTL,
		Timeout:      app.cfg.BackendTimeout,
		Metrics:      metrics,
	})

	app.gateway = &service.Gateway{
		Identity:    app.identity,
		Store:       app.db,
		Issuer:      issuer,
		Revocations: revocations,
		Sessions: service.NewSessionRegistry(app.db, revocations, service.RegistryOptions{
			SessionTTL: app.cfg.SessionTTL,
			Timeout:    app.cfg.BackendTimeout,
			Metrics:    metrics,
		}),
		Metrics:       metrics,
		AccessTTL:     app.cfg.AccessTokenTTL,
		RefreshTTL:    app.cfg.RefreshTokenTTL,
		RotateRefresh: app.cfg.RotateRefreshTokens,
		Timeout:       app.cfg.BackendTimeout,
	}

	app.housekeeping = service.NewHousekeepingService(
		revocations,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.SessionRetention,
	)
	app.housekeeping.Keys = app.keyManager

	app.logger.Info("session service configured",
		"access_ttl", app.cfg.AccessTokenTTL,
		"refresh_ttl", app.cfg.RefreshTokenTTL,
		"session_ttl", app.cfg.SessionTTL,
		"rotate_refresh", app.cfg.RotateRefreshTokens,
		"unknown_jti", app.cfg.Policy(),
		"revocation_cache_ttl", app.cfg.RevocationCacheTTL,
	)
	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.gateway.Issuer, BuildVersion, app.gateway, app.logger)
	if app.cache != nil {
		router.Cache = app.cache
	}
	router.Gatherer = app.registry
	router.Keys = app.rotation
	if limits, err := app.cfg.RateProfiles(); err == nil {
		router.Limits = limits
	}
	router.ApplyRoutes()

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Handler exposes the HTTP handler, for tests.
func (app *Application) Handler() http.Handler { return app.server.Handler }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("sessions service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		app.housekeeping.Stop()
		app.closeBackends()
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

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down sessions service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeping.Stop()

	if err := app.closeBackends(); err != nil {
		return err
	}

	app.logger.Info("sessions service stopped")
	return nil
}

// Close releases the backends without serving, for one-shot commands.
func (app *Application) Close() error { return app.closeBackends() }

func (app *Application) closeBackends() error {
	var errs []error
	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
