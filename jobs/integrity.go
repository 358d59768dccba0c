package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/battwheels/ledgercore/internal/accounting/reports"
	jobmetrics "github.com/battwheels/ledgercore/internal/jobs"
)

// TenantLister enumerates tenants with a chart of accounts.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]string, error)
}

// LedgerChecker recomputes statements from journal lines.
type LedgerChecker interface {
	TrialBalance(ctx context.Context, tenantID string, asOf *time.Time) (reports.TrialBalance, error)
	CheckDrift(ctx context.Context, tenantID string) ([]reports.Drift, error)
}

// TenantResult is the outcome of one tenant's check.
type TenantResult struct {
	TenantID   string
	Balanced   bool
	Difference string
	Drift      []reports.Drift
}

// IntegrityReport summarises a run.
type IntegrityReport struct {
	Results []TenantResult
}

// Healthy reports whether every tenant closed without drift.
func (r IntegrityReport) Healthy() bool {
	for _, res := range r.Results {
		if !res.Balanced || len(res.Drift) > 0 {
			return false
		}
	}
	return true
}

// IntegrityJob checks every tenant's trial balance and running balances.
type IntegrityJob struct {
	Tenants     TenantLister
	Ledger      LedgerChecker
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

// NewIntegrityJob initialises the integrity handler.
func NewIntegrityJob(tenants TenantLister, ledger LedgerChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Tenants: tenants, Ledger: ledger, Logger: logger, Metrics: metrics, Concurrency: 4}
}

// Handle runs the check for an asynq task.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload IntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("ledger integrity: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := j.Run(ctx, payload.Tenants...)
	return err
}

// Run checks the given tenants, or all tenants when none are named. An
// imbalance is reported, not returned as an error; storage failures are.
func (j *IntegrityJob) Run(ctx context.Context, tenants ...string) (IntegrityReport, error) {
	tracker := j.metrics().Track(TaskLedgerIntegrity)
	logger := j.logger()
	start := time.Now()

	if len(tenants) == 0 {
		listed, err := j.Tenants.ListTenants(ctx)
		if err != nil {
			return IntegrityReport{}, tracker.End(fmt.Errorf("ledger integrity: list tenants: %w", err))
		}
		tenants = listed
	}

	var (
		mu      sync.Mutex
		results = make([]TenantResult, 0, len(tenants))
	)
	g, gctx := errgroup.WithContext(ctx)
	limit := j.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for _, tenant := range tenants {
		g.Go(func() error {
			res, err := j.checkTenant(gctx, tenant)
			if err != nil {
				return fmt.Errorf("tenant %s: %w", tenant, err)
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	sort.Slice(results, func(a, b int) bool { return results[a].TenantID < results[b].TenantID })
	report := IntegrityReport{Results: results}
	if err != nil {
		logger.Error("integrity check failed", slog.Any("error", err))
		return report, tracker.End(fmt.Errorf("ledger integrity: %w", err))
	}
	logger.Info("integrity check completed",
		slog.Int("tenants", len(results)),
		slog.Bool("healthy", report.Healthy()),
		slog.Duration("duration", time.Since(start)),
	)
	return report, tracker.End(nil)
}

func (j *IntegrityJob) checkTenant(ctx context.Context, tenant string) (TenantResult, error) {
	logger := j.logger().With(slog.String("tenant", tenant))
	tb, err := j.Ledger.TrialBalance(ctx, tenant, nil)
	if err != nil {
		return TenantResult{}, err
	}
	drift, err := j.Ledger.CheckDrift(ctx, tenant)
	if err != nil {
		return TenantResult{}, err
	}
	res := TenantResult{TenantID: tenant, Balanced: tb.IsBalanced, Difference: tb.Difference.StringFixed(2), Drift: drift}
	if !tb.IsBalanced {
		j.metrics().Imbalanced()
		logger.Error("trial balance does not close",
			slog.String("total_debit", tb.TotalDebit.StringFixed(2)),
			slog.String("total_credit", tb.TotalCredit.StringFixed(2)),
			slog.String("difference", res.Difference),
		)
	}
	for _, d := range drift {
		logger.Warn("running balance drift",
			slog.String("account", d.Code),
			slog.String("running", d.Running.StringFixed(2)),
			slog.String("recomputed", d.Recomputed.StringFixed(2)),
		)
	}
	j.metrics().AddDrift(len(drift))
	return res, nil
}

func (j *IntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *IntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
