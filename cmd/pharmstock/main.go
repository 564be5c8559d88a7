package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/pharmstock/internal/app"
	"github.com/odyssey-erp/pharmstock/internal/audit"
	"github.com/odyssey-erp/pharmstock/internal/integration"
	"github.com/odyssey-erp/pharmstock/internal/inventory"
	"github.com/odyssey-erp/pharmstock/internal/observability"
	"github.com/odyssey-erp/pharmstock/internal/platform/cache"
	"github.com/odyssey-erp/pharmstock/internal/platform/db"
	"github.com/odyssey-erp/pharmstock/internal/receiving"
	"github.com/odyssey-erp/pharmstock/internal/reports"
	"github.com/odyssey-erp/pharmstock/internal/sales"
	"github.com/odyssey-erp/pharmstock/internal/shared"
	"github.com/odyssey-erp/pharmstock/jobs"
)

var version = "dev"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	_, shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName:    "pharmstock",
		ServiceVersion: version,
		Endpoint:       cfg.OtelEndpoint,
		Insecure:       cfg.OtelInsecure,
		SampleRatio:    cfg.OtelSampleRatio,
	})
	if err != nil {
		logger.Error("setup tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.PGAutoMigrate {
		if err := db.Migrate(ctx, dbpool); err != nil {
			logger.Error("migrate schema", slog.Any("error", err))
			os.Exit(1)
		}
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)

	var publisher *integration.Publisher
	if cfg.KafkaEnabled() {
		publisher = integration.NewPublisher(integration.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic), logger)
	} else {
		publisher = integration.NewPublisher(nil, logger)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("kafka close", slog.Any("error", err))
		}
	}()

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, logger)

	salesRepo := sales.NewRepository(dbpool, idempotencyStore)
	salesService := sales.NewService(salesRepo, auditLogger, publisher, reportCache, metrics, sales.ServiceConfig{
		MaxAttempts:   cfg.SaleMaxAttempts,
		MigrateLegacy: cfg.InventoryMigrateLegacy,
	}, logger)

	receivingRepo := receiving.NewRepository(dbpool)
	receivingService := receiving.NewService(receivingRepo, auditLogger, publisher, reportCache, receiving.ServiceConfig{
		MaxAttempts:   cfg.SaleMaxAttempts,
		MigrateLegacy: cfg.InventoryMigrateLegacy,
	}, logger)

	reportsRepo := reports.NewRepository(dbpool)
	reportsService := reports.NewService(reportsRepo, reportCache, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		DB:               dbpool,
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		SalesHandler:     sales.NewHandler(logger, salesService),
		ReceivingHandler: receiving.NewHandler(logger, receivingService),
		ReportsHandler:   reports.NewHandler(logger, reportsService),
		AuditHandler:     audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool))),
		JobHandler:       jobs.NewHandler(inspector, jobClient, logger),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("version", version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
