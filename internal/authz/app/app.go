package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/verdantops/canopy/internal/authz/service"
	"github.com/verdantops/canopy/internal/authz/store"
	"github.com/verdantops/canopy/internal/authz/store/drivers/sqlite"
	"github.com/verdantops/canopy/internal/obs"
	"github.com/verdantops/canopy/pkg/jwtx"
	"github.com/verdantops/canopy/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags "-X".
var BuildVersion = "v0.1.0"

// Application wires the authorization engine together: store, role table,
// evaluators, session manager, gateway, and the operational HTTP surface.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db      store.Store
	metrics *obs.Metrics

	registry  *service.RoleRegistry
	scopes    *service.ScopeResolver
	overrides *service.OverrideService
	cache     *service.DecisionCache
	sessions  *service.SessionManager
	gateway   *service.Gateway
	sweeper   *service.Sweeper

	server *http.Server
}

// New creates an Application with all dependencies initialized. The role
// table is validated here: an inconsistent table aborts startup.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "canopy-authz",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: obs.NewMetrics(),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()
	return app, nil
}

// Gateway exposes the engine's public decision surface to embedders.
func (app *Application) Gateway() *service.Gateway { return app.gateway }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.sweeper.Start()

	app.logger.Info("authorization engine starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
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

// Shutdown gracefully stops the sweeper, the HTTP server, and the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down authorization engine...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.sweeper.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("authorization engine stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
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

func (app *Application) initServices() error {
	catalogue, err := service.NewCatalogue()
	if err != nil {
		return fmt.Errorf("compile permission catalogue: %w", err)
	}

	registry, err := service.NewRoleRegistry(service.DefaultRoles(), catalogue)
	if err != nil {
		return fmt.Errorf("validate role table: %w", err)
	}
	app.registry = registry

	app.scopes = service.NewScopeResolver(app.db.OrgNodes())
	app.overrides = service.NewOverrideService(app.db)
	app.cache = service.NewDecisionCache(app.cfg.CacheTTL, app.cfg.CacheMaxEntries, app.metrics)

	evaluator := service.NewCachedEvaluator(
		service.NewOverrideEvaluator(app.registry, app.scopes, app.overrides),
		app.cache,
		app.metrics,
	)

	signer, err := jwtx.NewSigner(app.cfg.Issuer)
	if err != nil {
		return fmt.Errorf("initialize token signer: %w", err)
	}

	lockouts := service.NewLockoutTracker(
		app.cfg.LockoutThreshold,
		app.cfg.LockoutWindow,
		app.cfg.LockoutDuration,
		app.metrics,
	)

	app.sessions = service.NewSessionManager(
		service.SessionConfig{
			TTL:             app.cfg.SessionTTL,
			RefreshLead:     app.cfg.RefreshLead,
			GraceWindow:     app.cfg.GraceWindow,
			RevalidateEvery: app.cfg.RevalidateEvery,
			RevalidateBurst: app.cfg.RevalidateBurst,
		},
		signer,
		service.NewStoreCredentialVerifier(app.db.Users()),
		lockouts,
		app.db.Users(),
		app.db.Audit(),
		app.metrics,
	)

	// Override mutations and session terminations drop cached decisions.
	app.overrides.OnInvalidate(func(userID string) { app.cache.Invalidate(userID) })
	app.sessions.SetInvalidator(func(userID string) { app.cache.Invalidate(userID) })

	app.gateway = service.NewGateway(app.sessions, app.db.Users(), evaluator, app.registry, app.metrics)

	app.sweeper = service.NewSweeper(
		app.db,
		app.cache,
		app.sessions,
		lockouts,
		app.logger,
		app.cfg.SweepInterval,
	)

	return nil
}

func (app *Application) initHTTP() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := app.db.Ping(r.Context()); err != nil {
			http.Error(w, "store unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", app.metrics.Handler())

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
