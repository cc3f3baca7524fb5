package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/upb/auth-service/auth"
	"github.com/upb/auth-service/config"
	"github.com/upb/auth-service/handlers"
	"github.com/upb/auth-service/internal/observability"
	"github.com/upb/auth-service/middleware"
	"github.com/upb/auth-service/repositories"
	"github.com/upb/auth-service/repositories/memory"
	"github.com/upb/auth-service/repositories/postgres"
	"github.com/upb/auth-service/services/authn"
	"github.com/upb/auth-service/services/credential"
	"github.com/upb/auth-service/services/identity"
	"github.com/upb/auth-service/services/rbac"
	"github.com/upb/auth-service/services/session"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config   *config.Config
	DB       *postgres.DB // nil with the memory store
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  observability.Metrics

	// Repositories
	Users     repositories.UserRepository
	Sessions  repositories.SessionRepository
	TxManager repositories.TransactionManager

	// Services
	Authority  *session.Authority
	Reconciler *identity.Reconciler
	Verifier   *identity.GoogleVerifier
	Exchanger  *identity.GoogleCodeExchanger
	Roles      *rbac.Client
	Auth       *authn.Service
	Sweeper    *session.Sweeper

	// HTTP
	AuthMiddleware *middleware.AuthMiddleware
	AuthHandler    *handlers.AuthHandler
	BrowserAuth    *auth.Handler
	HealthHandler  *handlers.HealthHandler

	repoFactory *postgres.RepositoryFactory
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initMetrics(cfg)

	if err := deps.initStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initHTTP(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("google_enabled", cfg.GoogleEnabled()),
		zap.Bool("rbac_enabled", deps.Roles.Enabled()))
	return deps, nil
}

func (d *Dependencies) initMetrics(cfg *config.Config) {
	if !cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NopMetrics{}
		return
	}

	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = observability.NewCollector(d.Registry)
}

// initStore opens the configured backing store
func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config) error {
	if cfg.Store.Driver == config.StoreDriverMemory {
		store := memory.NewStore()
		repos := store.Repositories()
		d.Users = repos.Users
		d.Sessions = repos.Sessions
		d.TxManager = store.TransactionManager()
		d.Logger.Warn("using in-memory store, data is lost on restart")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.repoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.HealthCheck(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("database health check failed: %w", err)
	}

	repos := factory.NewRepositories()
	d.Users = repos.Users
	d.Sessions = repos.Sessions
	d.TxManager = factory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	codec, err := credential.NewCodec([]byte(cfg.Session.Secret))
	if err != nil {
		return fmt.Errorf("failed to create credential codec: %w", err)
	}

	d.Authority = session.NewAuthority(d.Sessions, codec,
		session.Config{TTL: cfg.Session.TTL, StoreTimeout: cfg.Store.Timeout},
		d.Logger.Named("session"),
		session.WithMetrics(d.Metrics))

	d.Reconciler = identity.NewReconciler(d.Users, d.TxManager, d.Metrics, d.Logger.Named("identity"),
		identity.WithStoreTimeout(cfg.Store.Timeout))
	d.Roles = rbac.NewClient(cfg.RBAC, d.Logger.Named("rbac"))

	authDeps := authn.Deps{
		Reconciler: d.Reconciler,
		Sessions:   d.Authority,
		Users:      d.Users,
		Roles:      d.Roles,
		Metrics:    d.Metrics,
		Logger:     d.Logger.Named("authn"),

		StoreTimeout: cfg.Store.Timeout,
	}

	if cfg.GoogleEnabled() {
		d.Verifier = identity.NewGoogleVerifier(cfg.Google, d.Logger.Named("google"))
		d.Exchanger = identity.NewGoogleCodeExchanger(cfg.Google)
		authDeps.Verifier = d.Verifier
		authDeps.Exchanger = d.Exchanger
	} else {
		d.Logger.Warn("google sign-in not configured, provider login disabled")
	}

	d.Auth = authn.NewService(authDeps)

	if cfg.Session.SweepInterval > 0 {
		d.Sweeper = session.NewSweeper(d.Authority, cfg.Session.SweepInterval, d.Logger.Named("sweeper"))
	}

	return nil
}

func (d *Dependencies) initHTTP(cfg *config.Config) {
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Authority, d.Logger)
	d.AuthHandler = handlers.NewAuthHandler(d.Auth, auth.IsSecureURL(cfg.Google.CallbackURL), d.Logger)

	var consent auth.ConsentURLBuilder
	if d.Exchanger != nil {
		consent = d.Exchanger
	}
	d.BrowserAuth = auth.NewHandler(cfg, consent, d.Auth, d.Logger)

	if d.DB != nil {
		d.HealthHandler = handlers.NewHealthHandler(d.DB, d.Logger)
	} else {
		d.HealthHandler = handlers.NewHealthHandler(nil, d.Logger)
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Verifier != nil {
		d.Verifier.Close()
	}

	if d.repoFactory != nil {
		if err := d.repoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
