// Package jobs runs background work over Asynq: the post-close valuation run
// and housekeeping crons.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pampa-erp/pampa-erp/internal/valuation"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCloseValuation records the closing and opening inventory valuations
	// after a period close.
	TaskCloseValuation = "valuation:close_run"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "housekeeping:idempotency_cleanup"
)

// CloseValuationPayload identifies the closed period to valuate.
type CloseValuationPayload struct {
	PeriodID int64            `json:"period_id"`
	FirmID   int64            `json:"firm_id"`
	Method   valuation.Method `json:"method"`
	ActorID  int64            `json:"actor_id"`
}

// NewCloseValuationTask constructs an Asynq task for the post-close run.
func NewCloseValuationTask(payload CloseValuationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCloseValuation, data, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload carries scheduling metadata.
type IdempotencyCleanupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewIdempotencyCleanupTask constructs the housekeeping task.
func NewIdempotencyCleanupTask(at time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleaner prunes expired idempotency keys.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

const idempotencyRetention = 30 * 24 * time.Hour

// NewIdempotencyCleanupHandler builds the handler for the housekeeping cron.
func NewIdempotencyCleanupHandler(logger *slog.Logger, store IdempotencyCleaner) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := store.Cleanup(ctx, idempotencyRetention); err != nil {
			return err
		}
		logger.Info("idempotency cleanup done")
		return nil
	}
}
