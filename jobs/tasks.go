// Package jobs wires background work through Asynq. The only task today is
// the stale-session sweep: role mutations bump an epoch synchronously, the
// sweep garbage-collects session records left behind.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep is the task type for stale session garbage collection.
	TaskSessionSweep = "authz:session_sweep"
)

// SessionSweepPayload names the role whose stale sessions should be swept.
type SessionSweepPayload struct {
	RoleID int64 `json:"role_id"`
}

// NewSessionSweepTask constructs an Asynq task.
func NewSessionSweepTask(roleID int64) (*asynq.Task, error) {
	data, err := json.Marshal(SessionSweepPayload{RoleID: roleID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, data), nil
}

// SessionSweeper deletes session records made stale by an epoch bump.
type SessionSweeper interface {
	SweepStaleSessions(ctx context.Context, roleID int64) (int, error)
}

// NewSessionSweepHandler builds the Asynq handler for TaskSessionSweep.
func NewSessionSweepHandler(sweeper SessionSweeper) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SessionSweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		_, err := sweeper.SweepStaleSessions(ctx, payload.RoleID)
		return err
	}
}
