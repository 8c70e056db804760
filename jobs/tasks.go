package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueSessions carries session invalidation work and is drained first.
	QueueSessions = "sessions"

	// TaskSessionInvalidateRole marks the sessions of every holder of a role.
	TaskSessionInvalidateRole = "session:invalidate-role"
	// TaskRegistrySync writes the compiled permission registry into the store.
	TaskRegistrySync = "rbac:sync-registry"
)

// RoleInvalidationPayload identifies the role whose holders need a refresh.
type RoleInvalidationPayload struct {
	RoleID int64 `json:"role_id"`
}

// NewRoleInvalidationTask constructs a role fan-out task.
func NewRoleInvalidationTask(roleID int64) (*asynq.Task, error) {
	if roleID <= 0 {
		return nil, errors.New("jobs: role id must be positive")
	}
	data, err := json.Marshal(RoleInvalidationPayload{RoleID: roleID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionInvalidateRole, data, asynq.Queue(QueueSessions), asynq.MaxRetry(5)), nil
}

// NewRegistrySyncTask constructs the registry sync task.
func NewRegistrySyncTask() *asynq.Task {
	return asynq.NewTask(TaskRegistrySync, nil, asynq.Queue(QueueDefault))
}
