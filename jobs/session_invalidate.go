package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/masa-erp/masa/internal/jobs"
	"github.com/masa-erp/masa/internal/shared"
)

// RoleHolders lists the active users of a role.
type RoleHolders interface {
	ListUserIDsByRole(ctx context.Context, roleID int64) ([]int64, error)
}

// SessionMarker writes invalidation markers.
type SessionMarker interface {
	InvalidateUsers(ctx context.Context, userIDs []int64) error
}

// RoleInvalidationJob marks every session of a role after its permissions change.
type RoleInvalidationJob struct {
	Holders RoleHolders
	Markers SessionMarker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRoleInvalidationJob initialises the role fan-out handler.
func NewRoleInvalidationJob(holders RoleHolders, markers SessionMarker, logger *slog.Logger, metrics *jobmetrics.Metrics) *RoleInvalidationJob {
	return &RoleInvalidationJob{Holders: holders, Markers: markers, Logger: logger, Metrics: metrics}
}

// Handle executes one fan-out.
func (j *RoleInvalidationJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Holders == nil || j.Markers == nil {
		return errors.New("role invalidation: handler not configured")
	}
	var payload RoleInvalidationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.RoleID <= 0 {
		return fmt.Errorf("role invalidation: bad payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskSessionInvalidateRole)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	logger := j.logger().With(slog.Int64("role_id", payload.RoleID))

	ids, err := j.Holders.ListUserIDsByRole(ctx, payload.RoleID)
	if errors.Is(err, shared.ErrRoleNotFound) {
		logger.Info("role gone before fan-out, nothing to mark")
		return nil
	}
	if err != nil {
		logger.Error("list role holders", slog.Any("error", err))
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := j.Markers.InvalidateUsers(ctx, ids); err != nil {
		logger.Error("mark role sessions", slog.Int("users", len(ids)), slog.Any("error", err))
		return err
	}
	j.Metrics.AddSessions(TaskSessionInvalidateRole, len(ids))
	logger.Info("role sessions marked",
		slog.Int("users", len(ids)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *RoleInvalidationJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
