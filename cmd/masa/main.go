package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/masa-erp/masa/cmd/masa/cli"
	"github.com/masa-erp/masa/internal/app"
	"github.com/masa-erp/masa/internal/platform/cache"
	"github.com/masa-erp/masa/internal/platform/db"
	"github.com/masa-erp/masa/internal/rbac"
	"github.com/masa-erp/masa/internal/session"
	"github.com/masa-erp/masa/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	if err := app.LoadDotEnv(); err != nil {
		slog.Default().Error("load .env", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	case "sessions":
		os.Exit(runSessions(ctx, cfg, args))
	case "jobs":
		os.Exit(runJobs(ctx, cfg, args))
	default:
		fmt.Fprintf(os.Stderr, "usage: masa [serve|sessions invalidate|jobs trigger|jobs inspect]\nunknown command %q\n", command)
		os.Exit(2)
	}
}

func runSessions(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 || args[0] != "invalidate" {
		fmt.Fprintln(os.Stderr, "usage: masa sessions invalidate [--user 1,2] [--role id] [--json]")
		return 2
	}
	opts, err := cli.ParseInvalidateArgs(args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessions invalidate: %v\n", err)
		return 2
	}

	pool, err := db.New(ctx, cfg.PGDSN, 2)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessions invalidate: %v\n", err)
		return 1
	}
	defer pool.Close()
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessions invalidate: %v\n", err)
		return 1
	}
	defer redisClient.Close()

	markers := session.NewMarkerStore(redisClient, cfg.SessionInvalidationTTL)
	return cli.NewSessionsCLI(markers, rbac.NewPGStore(pool)).InvalidateCommand(ctx, opts)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	client := jobs.NewClient(redisOpts)
	defer client.Close()
	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()
	return cli.NewJobsCLI(client, inspector).JobsCommand(ctx, args, os.Stdout, os.Stderr)
}
