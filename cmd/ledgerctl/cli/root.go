// Package cli implements the ledgerctl operator commands.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/battwheels/ledgercore/internal/accounting/reports"
	"github.com/battwheels/ledgercore/internal/app"
	"github.com/battwheels/ledgercore/internal/platform/db"
	"github.com/battwheels/ledgercore/jobs"
)

var version = "0.1.0"

// LedgerReader recomputes statements for a tenant.
type LedgerReader interface {
	TrialBalance(ctx context.Context, tenantID string, asOf *time.Time) (reports.TrialBalance, error)
	CheckDrift(ctx context.Context, tenantID string) ([]reports.Drift, error)
}

// Queue submits and inspects background jobs.
type Queue interface {
	Enqueue(ctx context.Context, task *asynq.Task) (*asynq.TaskInfo, error)
	Stats() (jobs.QueueStats, error)
	Close() error
}

// Deps are the collaborators commands resolve lazily, so a command only
// connects to what it uses.
type Deps struct {
	Out     io.Writer
	Config  func() (*app.Config, error)
	Migrate func(dsn string, dir db.Direction, logger *slog.Logger) error
	Ledger  func(ctx context.Context, cfg *app.Config, logger *slog.Logger) (LedgerReader, func(), error)
	Queue   func(cfg *app.Config) (Queue, error)
}

// DefaultDeps connects to the stores named by the environment.
func DefaultDeps() Deps {
	return Deps{
		Out:     os.Stdout,
		Config:  func() (*app.Config, error) { return app.LoadConfig() },
		Migrate: db.Migrate,
		Ledger: func(ctx context.Context, cfg *app.Config, logger *slog.Logger) (LedgerReader, func(), error) {
			pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
			if err != nil {
				return nil, nil, err
			}
			return reports.NewService(reports.NewRepository(pool), logger), pool.Close, nil
		},
		Queue: func(cfg *app.Config) (Queue, error) {
			return jobs.NewClient(cfg.QueueRedisOpt()), nil
		},
	}
}

type runtime struct {
	deps   Deps
	cfg    *app.Config
	logger *slog.Logger
}

// NewRootCommand builds the ledgerctl command tree over deps.
func NewRootCommand(deps Deps) *cobra.Command {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	rt := &runtime{deps: deps}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the ledger core: migrations, jobs and ledger checks",
		Long: `ledgerctl runs operator tasks against the ledger database and job
queue configured through the same environment as the ledger server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.Config()
			if err != nil {
				return err
			}
			rt.cfg = cfg
			rt.logger = app.NewLogger(cfg)
			return nil
		},
	}
	root.SetOut(deps.Out)

	root.AddCommand(newMigrateCommand(rt), newJobsCommand(rt), newTrialBalanceCommand(rt), newDriftCommand(rt))
	return root
}

// Execute runs ledgerctl with the process arguments.
func Execute(ctx context.Context, deps Deps, args []string) error {
	root := NewRootCommand(deps)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
