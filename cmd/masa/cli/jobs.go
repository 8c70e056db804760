package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"
	"github.com/juju/gnuflag"

	"github.com/masa-erp/masa/jobs"
)

// Job names accepted by the trigger command.
const (
	JobRegistrySync   = "registry-sync"
	JobRoleInvalidate = "role-invalidate"
)

// Enqueuer submits the background jobs the CLI can trigger.
type Enqueuer interface {
	EnqueueRoleInvalidation(ctx context.Context, roleID int64) error
	EnqueueRegistrySync(ctx context.Context) error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector jobs.QueueInspector
}

// NewJobsCLI builds the helpers over an enqueuer and a queue inspector.
func NewJobsCLI(client Enqueuer, inspector jobs.QueueInspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, roleID int64) error {
	if c == nil || c.client == nil {
		return errors.New("jobs cli: client not configured")
	}
	switch name {
	case JobRegistrySync:
		return c.client.EnqueueRegistrySync(ctx)
	case JobRoleInvalidate:
		if roleID <= 0 {
			return errors.New("jobs cli: --role is required for role-invalidate")
		}
		return c.client.EnqueueRoleInvalidation(ctx, roleID)
	default:
		return fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
}

// InspectQueues reports the session and default queues. A queue that has
// never held a task reports zeroes.
func (c *JobsCLI) InspectQueues() ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	var out []QueueStats
	for _, name := range []string{jobs.QueueSessions, jobs.QueueDefault} {
		stats := QueueStats{Queue: name}
		info, err := c.inspector.GetQueueInfo(name)
		if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, fmt.Errorf("jobs cli: inspect %s: %w", name, err)
		}
		if info != nil {
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
		}
		out = append(out, stats)
	}
	return out, nil
}

// JobsCommand runs `jobs trigger <name> [--role id]` or `jobs inspect` and
// returns the process exit code.
func (c *JobsCLI) JobsCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "usage: masa jobs trigger <registry-sync|role-invalidate> [--role id] | masa jobs inspect")
		return 2
	}
	switch args[0] {
	case "trigger":
		fs := gnuflag.NewFlagSet("jobs trigger", gnuflag.ContinueOnError)
		fs.SetOutput(stderr)
		var roleID int64
		fs.Int64Var(&roleID, "role", 0, "role id for role-invalidate")
		if err := fs.Parse(true, args[1:]); err != nil {
			return 2
		}
		if fs.NArg() != 1 {
			_, _ = fmt.Fprintln(stderr, "jobs trigger: exactly one job name is required")
			return 2
		}
		if err := c.Trigger(ctx, fs.Arg(0), roleID); err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s\n", fs.Arg(0))
		return 0
	case "inspect":
		stats, err := c.InspectQueues()
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs inspect: %v\n", err)
			return 1
		}
		if err := json.NewEncoder(stdout).Encode(stats); err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs inspect: encode json: %v\n", err)
			return 1
		}
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "jobs: unknown subcommand %q\n", args[0])
		return 2
	}
}
