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

	"github.com/berties-books/bookshop/internal/app"
	"github.com/berties-books/bookshop/internal/audit"
	audithttp "github.com/berties-books/bookshop/internal/audit/http"
	"github.com/berties-books/bookshop/internal/auth"
	"github.com/berties-books/bookshop/internal/observability"
	"github.com/berties-books/bookshop/internal/platform/cache"
	"github.com/berties-books/bookshop/internal/platform/db"
	"github.com/berties-books/bookshop/internal/shared"
	"github.com/berties-books/bookshop/internal/users"
	"github.com/berties-books/bookshop/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	sessions := shared.NewSessionStore(redisClient, cfg.SessionCookie, shared.SessionPolicy{
		IdleTTL:     cfg.SessionIdleTTL,
		AbsoluteTTL: cfg.SessionAbsoluteTTL,
	}, cfg.IsProduction())

	auditRepo := audit.NewRepository(dbpool)
	inlineRecorder := audit.NewRecorder(auditRepo, logger, metrics)
	var recorder auth.AuditRecorder = inlineRecorder

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
	if cfg.AuditMode == app.AuditModeQueue {
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		recorder = audit.NewQueueRecorder(jobClient, inlineRecorder)
	}

	usersRepo := users.NewRepository(dbpool)
	hasher := auth.NewBoundedHasher(auth.NewBcryptHasher(cfg.BcryptCost), cfg.HashConcurrency)
	authService := auth.NewService(usersRepo, hasher, sessions, recorder, logger, metrics)
	authHandler := auth.NewHandler(logger, authService, sessions, cfg.LoginRateLimit)

	usersHandler := users.NewHandler(logger, users.NewService(usersRepo))
	auditHandler := audithttp.NewHandler(logger, audit.NewService(auditRepo, cfg.AuditRecentLimit), auth.RequireUser)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		Sessions:     sessions,
		AuthHandler:  authHandler,
		UsersHandler: usersHandler,
		AuditHandler: auditHandler,
		JobHandler:   jobHandler,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("audit_mode", cfg.AuditMode))
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
