// Command masa-agent keeps a headless terminal session (e.g. a POS station)
// signed in and in step with permission changes made by administrators.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/masa-erp/masa/internal/session/reconcile"
)

type agentConfig struct {
	BaseURL    string        `envconfig:"MASA_AGENT_BASE_URL" default:"http://localhost:8080"`
	Email      string        `envconfig:"MASA_AGENT_EMAIL" required:"true"`
	Password   string        `envconfig:"MASA_AGENT_PASSWORD" required:"true"`
	Interval   time.Duration `envconfig:"MASA_AGENT_INTERVAL" default:"5s"`
	Timeout    time.Duration `envconfig:"MASA_AGENT_TIMEOUT" default:"10s"`
	RetryDelay time.Duration `envconfig:"MASA_AGENT_RETRY_DELAY" default:"30s"`
}

func main() {
	_ = godotenv.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With(slog.String("app", "masa-agent"))

	var cfg agentConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		err := runSession(ctx, cfg, logger)
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			logger.Info("agent stopped")
			return
		}
		if err != nil {
			logger.Warn("session ended", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.RetryDelay):
		}
	}
}

// runSession signs in and reconciles until the session is lost.
func runSession(ctx context.Context, cfg agentConfig, logger *slog.Logger) error {
	client, err := reconcile.NewHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return err
	}
	if err := client.Login(ctx, cfg.Email, cfg.Password); err != nil {
		return err
	}
	logger.Info("signed in", slog.String("base_url", cfg.BaseURL))

	r := reconcile.New(client, cfg.Interval, logger)
	r.OnRefresh = func() {
		logger.Info("permissions updated from server")
	}
	return r.Run(ctx)
}
