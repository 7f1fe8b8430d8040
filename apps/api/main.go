package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	accesscontrolhandler "github.com/craftline/craftline-platform/domains/accesscontrol/be/handler"
	accesscontrolrepo "github.com/craftline/craftline-platform/domains/accesscontrol/be/repo"
	accesscontrolschemas "github.com/craftline/craftline-platform/domains/accesscontrol/be/schemas"
	accesscontrolservice "github.com/craftline/craftline-platform/domains/accesscontrol/be/service"
	exporthandler "github.com/craftline/craftline-platform/domains/export/be/handler"
	exportservice "github.com/craftline/craftline-platform/domains/export/be/service"
	rotationhandler "github.com/craftline/craftline-platform/domains/rotation/be/handler"
	rotationservice "github.com/craftline/craftline-platform/domains/rotation/be/service"
	tenantshandler "github.com/craftline/craftline-platform/domains/tenants/be/handler"
	tenantsrepo "github.com/craftline/craftline-platform/domains/tenants/be/repo"
	tenantsservice "github.com/craftline/craftline-platform/domains/tenants/be/service"
	"github.com/craftline/craftline-platform/jobs"
	platformauth "github.com/craftline/craftline-platform/platform/go/auth"
	platformconfig "github.com/craftline/craftline-platform/platform/go/config"
	"github.com/craftline/craftline-platform/platform/go/dbops"
	platformlogging "github.com/craftline/craftline-platform/platform/go/logging"
	"github.com/craftline/craftline-platform/platform/go/persistence"
	tenantmiddleware "github.com/craftline/craftline-platform/platform/go/tenant/middleware"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := platformconfig.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	controlPool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.ControlPlaneURL})
	if err != nil {
		logger.Fatal("init control-plane pool", zap.Error(err))
	}
	defer persistence.ClosePool(controlPool)

	// The admin pool carries CREATE/DROP DATABASE privileges. It is handed to
	// dbops only; tenant request paths never see it.
	adminPool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString: cfg.AdminDatabaseURL,
		MaxConns:   2,
	})
	if err != nil {
		logger.Fatal("init admin pool", zap.Error(err))
	}
	defer persistence.ClosePool(adminPool)

	registry := persistence.NewRegistry(persistence.RegistryConfig{
		Connect: persistence.NewConnectFunc(persistence.PoolConfig{
			MaxConns:        8,
			MaxConnIdleTime: cfg.RegistryIdleTimeout,
		}),
		IdleTimeout: cfg.RegistryIdleTimeout,
		Logger:      logger,
	})
	defer registry.CloseAll()
	registry.StartSweeper(ctx, cfg.RegistrySweepInterval)

	tenantRepo := tenantsrepo.NewPostgresRepository(controlPool)
	ops := dbops.NewPostgres(adminPool, logger)
	coordinator := rotationservice.NewCoordinator(tenantRepo, ops, cfg.URLForDatabase, logger)
	tenantService := tenantsservice.New(tenantRepo, cfg.URLForDatabase, coordinator)

	exporter := exportservice.NewExporter(exportservice.Config{
		Tenants:     tenantRepo,
		Dumper:      ops,
		URLFor:      cfg.URLForDatabase,
		StorageDir:  cfg.StorageLocalDir,
		StorageType: cfg.StorageBackend,
		ExportDir:   cfg.ExportDir,
		Timeout:     cfg.ExportTimeout,
		Logger:      logger,
	})

	accessService, err := accesscontrolservice.New(
		accesscontrolrepo.NewPostgresRepository(controlPool),
		accesscontrolschemas.Defaults(),
	)
	if err != nil {
		logger.Fatal("init access-control service", zap.Error(err))
	}

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		_ = jobsClient.Close()
	}()

	tenantHTTPHandler := tenantshandler.New(tenantService, logger)
	rotationHTTPHandler := rotationhandler.New(coordinator, jobsClient, logger)
	exportHTTPHandler := exporthandler.New(exporter, jobsClient, logger)
	accessHTTPHandler := accesscontrolhandler.New(accessService, logger)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := controlPool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	apiRouter := chi.NewRouter()

	// Tenant-scoped routes: every request resolves its tenant, takes the
	// tenant's pool from the registry, and fails closed as a generic 404 when
	// the tenant cannot be named.
	apiRouter.Group(func(r chi.Router) {
		r.Use(tenantmiddleware.WithTenant(tenantService, registry))
		r.Use(platformauth.RequirePrincipal)
		r.Post("/access-control/apply", accessHTTPHandler.Apply)
		r.Put("/access-control/configurations", accessHTTPHandler.Save)
		r.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
			pool, ok := persistence.TenantPoolFromContext(r.Context())
			if !ok {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			if err := pool.Ping(r.Context()); err != nil {
				platformlogging.FromRequest(r, logger).Warn("tenant database ping failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
	})

	// Administrative routes: shared-secret gated, no tenant signal involved.
	apiRouter.Group(func(r chi.Router) {
		r.Use(platformauth.RequireAdminToken(cfg.AdminToken))
		r.Route("/admin/tenants", func(r chi.Router) {
			tenantHTTPHandler.Routes(r)
			r.Post("/{tenantID}/rotations", rotationHTTPHandler.Rotate)
			r.Post("/{tenantID}/exports", exportHTTPHandler.Export)
		})
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
