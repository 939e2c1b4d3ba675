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

	"github.com/washpark/washpark/internal/app"
	"github.com/washpark/washpark/internal/auth"
	"github.com/washpark/washpark/internal/authz"
	"github.com/washpark/washpark/internal/observability"
	"github.com/washpark/washpark/internal/platform/cache"
	"github.com/washpark/washpark/internal/platform/db"
	"github.com/washpark/washpark/internal/roles"
	"github.com/washpark/washpark/internal/session"
	"github.com/washpark/washpark/internal/staff"
	"github.com/washpark/washpark/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionStore := session.NewStore(redisClient, cfg.SessionTTL, logger)
	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo, session.ContextChecker{}, sessionStore, jobsClient, logger)

	staffRepo := staff.NewRepository(pool)
	staffService := staff.NewService(staffRepo, rolesService, session.ContextChecker{}, sessionStore, logger)

	guard := session.Middleware{
		Store:  sessionStore,
		Source: rolesService,
		Staff:  staffService,
		Logger: logger,
		Secure: cfg.IsProduction(),
	}

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, rolesService, sessionStore)
	authHandler := auth.NewHandler(logger, authService, guard, cfg.SessionTTL)

	staffHandler := staff.NewHandler(logger, staffService, guard)

	rolesHandler := roles.NewHandler(logger, rolesService, guard)
	permissionsHandler := authz.NewPermissionsHandler()

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Session:            guard,
		AuthHandler:        authHandler,
		RolesHandler:       rolesHandler,
		StaffHandler:       staffHandler,
		PermissionsHandler: permissionsHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
