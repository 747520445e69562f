package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionsPrune is the task type for pruning expired session records.
	TaskSessionsPrune = "sessions:prune"
)

// SessionPruner removes durable session records past their expiry.
type SessionPruner interface {
	PruneExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// SessionsPrunePayload carries optional parameters for the prune task.
type SessionsPrunePayload struct {
	Before time.Time `json:"before,omitempty"`
}

// NewSessionsPruneTask constructs an Asynq task.
func NewSessionsPruneTask(payload SessionsPrunePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionsPrune, data), nil
}

// NewSessionsPruneHandler returns the handler for TaskSessionsPrune tasks.
func NewSessionsPruneHandler(pruner SessionPruner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SessionsPrunePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		cutoff := payload.Before
		if cutoff.IsZero() {
			cutoff = time.Now().UTC()
		}
		pruned, err := pruner.PruneExpiredSessions(ctx, cutoff)
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("pruned expired sessions", slog.Int64("count", pruned))
		}
		return nil
	}
}
