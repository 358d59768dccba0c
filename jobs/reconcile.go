package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/battwheels/ledgercore/internal/jobs"
)

// Reposter retries journal postings for documents stored with posted=false.
type Reposter interface {
	RepostPending(ctx context.Context, limit int) (int, error)
}

// ReconcileJob drives every registered reposter once per run.
type ReconcileJob struct {
	Reposters    map[string]Reposter
	DefaultLimit int
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
}

// NewReconcileJob initialises the reconciliation handler.
func NewReconcileJob(reposters map[string]Reposter, limit int, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Reposters: reposters, DefaultLimit: limit, Logger: logger, Metrics: metrics}
}

// Handle runs reconciliation for an asynq task.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("ledger reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("ledger reconcile: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := j.Run(ctx, payload.Limit)
	return err
}

// Run returns the number of documents posted per reposter. One failing
// reposter does not stop the others.
func (j *ReconcileJob) Run(ctx context.Context, limit int) (map[string]int, error) {
	if limit <= 0 {
		limit = j.DefaultLimit
	}
	if limit <= 0 {
		limit = 100
	}
	tracker := j.metrics().Track(TaskLedgerReconcile)
	logger := j.logger()
	start := time.Now()

	posted := make(map[string]int, len(j.Reposters))
	var errs []error
	for name, reposter := range j.Reposters {
		n, err := reposter.RepostPending(ctx, limit)
		posted[name] = n
		if err != nil {
			logger.Error("repost failed", slog.String("documents", name), slog.Int("posted", n), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if n > 0 {
			logger.Info("reposted documents", slog.String("documents", name), slog.Int("posted", n))
		}
	}
	err := errors.Join(errs...)
	if err == nil {
		logger.Info("reconcile completed", slog.Duration("duration", time.Since(start)))
	}
	return posted, tracker.End(err)
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerReconcile))
	}
	return slog.Default().With(slog.String("job", TaskLedgerReconcile))
}

func (j *ReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
