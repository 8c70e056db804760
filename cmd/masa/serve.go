package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/masa-erp/masa/internal/app"
	"github.com/masa-erp/masa/internal/audit"
	audithttp "github.com/masa-erp/masa/internal/audit/http"
	"github.com/masa-erp/masa/internal/auth"
	"github.com/masa-erp/masa/internal/gate"
	"github.com/masa-erp/masa/internal/observability"
	"github.com/masa-erp/masa/internal/platform/cache"
	"github.com/masa-erp/masa/internal/platform/db"
	"github.com/masa-erp/masa/internal/platform/ratelimit"
	"github.com/masa-erp/masa/internal/rbac"
	"github.com/masa-erp/masa/internal/roles"
	"github.com/masa-erp/masa/internal/session"
	"github.com/masa-erp/masa/internal/shared"
	"github.com/masa-erp/masa/internal/users"
	"github.com/masa-erp/masa/jobs"
)

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	authzMetrics := observability.NewAuthzMetrics(metrics.Registerer())

	table, err := gate.NewRouteTable(cfg.ProtectedPrefix, gate.DefaultRoutes())
	if err != nil {
		return fmt.Errorf("build route table: %w", err)
	}
	edge := gate.New(table, gate.Config{}, logger).WithMetrics(authzMetrics)

	store := rbac.NewPGStore(pool)
	checker := rbac.NewService(store, logger).WithMetrics(authzMetrics)
	rbacMiddleware := rbac.Middleware{Service: checker, Logger: logger}
	markers := session.NewMarkerStore(redisClient, cfg.SessionInvalidationTTL).
		WithClockSkew(cfg.SessionMarkerSkew).
		WithMetrics(authzMetrics)
	admin := rbac.NewAdminService(store, checker, markers, shared.NewAuditLogger(pool), logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	if cfg.InvalidationAsync {
		jobClient := jobs.NewClient(redisOpts)
		defer jobClient.Close()
		admin.WithFanout(jobClient)
	}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	tokens := session.NewTokenManager(cfg.SessionSecret, cfg.SessionIssuer, cfg.SessionTTL, session.CookieOptions{
		Name:   cfg.SessionCookie,
		Domain: cfg.SessionCookieDomain,
		Secure: cfg.IsProduction(),
	})
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	checkLimiter, err := ratelimit.NewRedisLimiter(redisClient, ratelimit.Config{
		Limit:  cfg.SessionCheckLimit,
		Window: cfg.SessionCheckWindow,
		Prefix: "ratelimit:session-check",
	})
	if err != nil {
		return err
	}

	authHandler := auth.NewHandler(logger, auth.NewService(auth.NewRepository(pool), logger), checker, tokens, csrfManager)
	sessionHandler := session.NewHandler(tokens, markers, checkLimiter, checker, logger).
		WithMetrics(authzMetrics).
		WithCSRF(csrfManager)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Tokens:             tokens,
		CSRFManager:        csrfManager,
		Gate:               edge,
		RateCounter:        ratelimit.NewCounter(redisClient, "httprate"),
		Metrics:            metrics,
		AuthHandler:        authHandler,
		SessionHandler:     sessionHandler,
		PermissionsHandler: rbac.NewPermissionsHandler(logger, checker, rbacMiddleware),
		UsersHandler:       users.NewHandler(logger, users.NewService(store, admin), rbacMiddleware),
		RolesHandler:       roles.NewHandler(logger, roles.NewService(store, admin), rbacMiddleware),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(audit.NewPGRepository(pool)), rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
