package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskLedgerIntegrity recomputes trial balances and running-balance drift per tenant.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskLedgerReconcile retries journal postings for documents saved with posted=false.
	TaskLedgerReconcile = "ledger:reconcile"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// IntegrityPayload optionally narrows the check to some tenants.
type IntegrityPayload struct {
	Tenants []string `json:"tenants,omitempty"`
}

// ReconcilePayload bounds how many documents each reposter handles per run.
type ReconcilePayload struct {
	Limit int `json:"limit"`
}

// CleanupPayload carries the key retention window.
type CleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIntegrityTask constructs a ledger:integrity task.
func NewIntegrityTask(tenants ...string) (*asynq.Task, error) {
	return newTask(TaskLedgerIntegrity, IntegrityPayload{Tenants: tenants})
}

// NewReconcileTask constructs a ledger:reconcile task.
func NewReconcileTask(limit int) (*asynq.Task, error) {
	return newTask(TaskLedgerReconcile, ReconcilePayload{Limit: limit})
}

// NewCleanupTask constructs an idempotency:cleanup task.
func NewCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, CleanupPayload{Retention: retention})
}

// Defaults carries the payload values used when a task is triggered by name.
type Defaults struct {
	ReconcileLimit int
	Retention      time.Duration
}

// NewTaskByName builds a supported task with default payload.
func NewTaskByName(name string, defaults Defaults) (*asynq.Task, error) {
	switch name {
	case TaskLedgerIntegrity:
		return NewIntegrityTask()
	case TaskLedgerReconcile:
		return NewReconcileTask(defaults.ReconcileLimit)
	case TaskIdempotencyCleanup:
		return NewCleanupTask(defaults.Retention)
	default:
		return nil, fmt.Errorf("jobs: unsupported task %q", name)
	}
}

func newTask(name string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(name, body, asynq.Queue(QueueDefault)), nil
}
