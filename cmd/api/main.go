package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/medianamer-platform/medianamer/internal/api"
	"github.com/medianamer-platform/medianamer/internal/audit"
	"github.com/medianamer-platform/medianamer/internal/auth"
	"github.com/medianamer-platform/medianamer/internal/cache"
	"github.com/medianamer-platform/medianamer/internal/config"
	"github.com/medianamer-platform/medianamer/internal/credits"
	"github.com/medianamer-platform/medianamer/internal/database"
	"github.com/medianamer-platform/medianamer/internal/ratelimit"
	iredis "github.com/medianamer-platform/medianamer/internal/redis"
	"github.com/medianamer-platform/medianamer/internal/rename"
	"github.com/medianamer-platform/medianamer/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Audit bus and persister. The service runs without audit if NATS is
	// down; readiness reports it as degraded.
	var bus *audit.Bus
	bus, err = audit.NewBus(ctx, cfg.NATS)
	if err != nil {
		slog.Warn("audit bus unavailable, events will not be recorded", "error", err)
		bus = nil
	} else {
		defer bus.Close()
		auditRepo := audit.NewRepository(pool)
		consumer := audit.NewConsumer(auditRepo, bus)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	// Auth
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer)

	// Credits
	creditRepo := credits.NewRepository(pool)
	settlement := credits.NewSettlementClient(cfg.Credits)
	creditSvc := credits.NewService(creditRepo, settlement, cfg.Credits)
	creditHandler := credits.NewHandler(creditSvc)

	// Rename orchestration
	limiter := ratelimit.New(redisClient, cfg.RateLimit, cfg.Debug)
	cacheMgr := cache.NewManager(redisClient, cfg.Cache)
	aiClient := rename.NewAIClient(cfg.NameGen)
	renameRepo := rename.NewRepository(pool)

	var publisher rename.Publisher
	if bus != nil {
		publisher = bus
	}
	renameSvc := rename.NewService(renameRepo, creditSvc, limiter, cacheMgr,
		aiClient, aiClient, aiClient, publisher, cfg.NameGen.DefaultSuggested)
	renameHandler := rename.NewHandler(renameSvc)

	auditHandler := audit.NewHandler(audit.NewRepository(pool))

	// Router
	var auditBus api.AuditBus
	if bus != nil {
		auditBus = bus
	}
	router := api.NewRouter(pool, auditBus, api.RouterConfig{}, api.HandlerSet{
		Rename:     renameHandler.Rename,
		Suggest:    renameHandler.Suggest,
		RenameBulk: renameHandler.RenameBulk,
		History:    renameHandler.History,

		CreditStatus: creditHandler.Status,
		CreditGrant:  creditHandler.Grant,
		CreditReset:  creditHandler.Reset,

		ListAuditLogs: auditHandler.List,

		AuthMiddleware:  auth.Middleware(jwtManager),
		AdminMiddleware: auth.RequireAdmin(publisher),
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
