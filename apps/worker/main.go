package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	exportservice "github.com/craftline/craftline-platform/domains/export/be/service"
	rotationservice "github.com/craftline/craftline-platform/domains/rotation/be/service"
	tenantsrepo "github.com/craftline/craftline-platform/domains/tenants/be/repo"
	"github.com/craftline/craftline-platform/jobs"
	platformconfig "github.com/craftline/craftline-platform/platform/go/config"
	"github.com/craftline/craftline-platform/platform/go/dbops"
	platformlogging "github.com/craftline/craftline-platform/platform/go/logging"
	"github.com/craftline/craftline-platform/platform/go/persistence"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := platformconfig.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "worker",
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

	adminPool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString: cfg.AdminDatabaseURL,
		MaxConns:   2,
	})
	if err != nil {
		logger.Fatal("init admin pool", zap.Error(err))
	}
	defer persistence.ClosePool(adminPool)

	tenantRepo := tenantsrepo.NewPostgresRepository(controlPool)
	ops := dbops.NewPostgres(adminPool, logger)
	coordinator := rotationservice.NewCoordinator(tenantRepo, ops, cfg.URLForDatabase, logger)

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

	worker := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Tasks:     jobs.NewTasks(coordinator, exporter, logger),
	})

	logger.Info("starting worker", zap.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("worker stopped", zap.Error(err))
	}
}
