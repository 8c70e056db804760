package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/masa-erp/masa/internal/jobs"
	"github.com/masa-erp/masa/internal/rbac"
	"github.com/masa-erp/masa/internal/shared"
)

// PermissionRegistrar upserts permission rows.
type PermissionRegistrar interface {
	EnsurePermission(ctx context.Context, def shared.PermissionDef) (rbac.Permission, error)
}

// RegistrySyncJob keeps the permissions table aligned with the compiled registry.
type RegistrySyncJob struct {
	Store   PermissionRegistrar
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRegistrySyncJob initialises the registry sync handler.
func NewRegistrySyncJob(store PermissionRegistrar, logger *slog.Logger, metrics *jobmetrics.Metrics) *RegistrySyncJob {
	return &RegistrySyncJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle satisfies asynq.HandlerFunc.
func (j *RegistrySyncJob) Handle(ctx context.Context, _ *asynq.Task) error {
	_, err := j.Sync(ctx)
	return err
}

// Sync upserts every registry entry and returns how many were written.
func (j *RegistrySyncJob) Sync(ctx context.Context) (n int, resultErr error) {
	if j == nil || j.Store == nil {
		return 0, errors.New("registry sync: store not configured")
	}
	tracker := j.Metrics.Track(TaskRegistrySync)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	for _, def := range shared.Registry() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, err := j.Store.EnsurePermission(ctx, def); err != nil {
			return n, fmt.Errorf("registry sync: %s: %w", def.Code, err)
		}
		n++
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("permission registry synced", slog.Int("permissions", n))
	return n, nil
}
