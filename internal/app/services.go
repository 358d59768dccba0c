package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/battwheels/ledgercore/internal/accounting/accounts"
	"github.com/battwheels/ledgercore/internal/accounting/journals"
	"github.com/battwheels/ledgercore/internal/accounting/reports"
	"github.com/battwheels/ledgercore/internal/accounting/sequences"
	"github.com/battwheels/ledgercore/internal/ar"
	"github.com/battwheels/ledgercore/internal/creditnotes"
	"github.com/battwheels/ledgercore/internal/integration"
	"github.com/battwheels/ledgercore/internal/inventory"
	"github.com/battwheels/ledgercore/internal/observability"
	"github.com/battwheels/ledgercore/internal/shared"
)

type auditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Repositories are the storage ports behind the services. A nil port leaves
// the services that depend on it unbuilt.
type Repositories struct {
	Accounts    accounts.Repository
	Sequences   sequences.Store
	Journals    journals.Repository
	Reports     reports.Repository
	Invoices    ar.RepositoryPort
	CreditNotes creditnotes.Repository
	Inventory   inventory.RepositoryPort
	Idempotency shared.IdempotencyChecker
	Audit       auditRecorder
}

// PostgresRepositories builds the pgx-backed ports. Document numbers come from
// Redis when cfg selects it, which then requires rdb.
func PostgresRepositories(pool *pgxpool.Pool, rdb redis.Cmdable, cfg *Config) (Repositories, error) {
	if pool == nil {
		return Repositories{}, errors.New("app: postgres pool required")
	}
	var store sequences.Store = sequences.NewPostgresStore(pool)
	if cfg != nil && cfg.SequenceBackend == SequenceBackendRedis {
		if rdb == nil {
			return Repositories{}, errors.New("app: redis sequence backend selected without a redis client")
		}
		store = sequences.NewRedisStore(rdb)
	}
	return Repositories{
		Accounts:    accounts.NewRepository(pool),
		Sequences:   store,
		Journals:    journals.NewRepository(pool),
		Reports:     reports.NewRepository(pool),
		Invoices:    ar.NewRepository(pool),
		CreditNotes: creditnotes.NewRepository(pool),
		Inventory:   inventory.NewRepository(pool),
		Idempotency: shared.NewIdempotencyStore(pool),
		Audit:       shared.NewAuditLogger(pool),
	}, nil
}

// Services is the wired ledger core.
type Services struct {
	Accounts    *accounts.Service
	Sequences   *sequences.Service
	Journals    *journals.Service
	Reports     *reports.Service
	Invoices    *ar.Service
	CreditNotes *creditnotes.Service
	Inventory   *inventory.Service
	Hooks       *integration.Hooks
}

// NewServices wires services over repos. Ledger metrics are attached when
// metrics is non-nil.
func NewServices(repos Repositories, cfg *Config, metrics *observability.Metrics, logger *slog.Logger) *Services {
	if logger == nil {
		logger = slog.Default()
	}
	var ledgerMetrics *observability.LedgerMetrics
	if metrics != nil {
		ledgerMetrics = metrics.Ledger
	}
	var audit journals.AuditPort
	if repos.Audit != nil {
		audit = repos.Audit
	}

	svc := &Services{}
	if repos.Accounts != nil {
		svc.Accounts = accounts.NewService(repos.Accounts, logger.With(slog.String("module", "accounts")))
	}
	if repos.Sequences != nil {
		svc.Sequences = sequences.NewService(repos.Sequences, logger.With(slog.String("module", "sequences")))
		if ledgerMetrics != nil {
			svc.Sequences.WithObserver(ledgerMetrics)
		}
	}
	if repos.Journals != nil {
		svc.Journals = journals.NewService(repos.Journals, audit, logger.With(slog.String("module", "journals")))
		if ledgerMetrics != nil {
			svc.Journals.WithObserver(ledgerMetrics)
		}
		if cfg != nil {
			svc.Journals.WithTimeout(cfg.LedgerPostTimeout)
		}
	}
	if repos.Reports != nil {
		svc.Reports = reports.NewService(repos.Reports, logger.With(slog.String("module", "reports")))
		if ledgerMetrics != nil {
			svc.Reports.WithObserver(ledgerMetrics)
		}
	}
	if svc.Journals != nil && svc.Accounts != nil {
		svc.Hooks = integration.NewHooks(svc.Journals, svc.Accounts, logger.With(slog.String("module", "integration")))
	}
	if repos.Invoices != nil && svc.Journals != nil && svc.Sequences != nil && svc.Accounts != nil {
		svc.Invoices = ar.NewService(repos.Invoices, svc.Journals, svc.Sequences, svc.Accounts, logger.With(slog.String("module", "ar")))
		if repos.CreditNotes != nil {
			svc.CreditNotes = creditnotes.NewService(repos.CreditNotes, ar.NewCreditSource(repos.Invoices), svc.Journals,
				svc.Sequences, svc.Accounts, logger.With(slog.String("module", "creditnotes")))
		}
	}
	if repos.Inventory != nil {
		var hooks inventory.IntegrationHandler
		if svc.Hooks != nil {
			hooks = svc.Hooks
		}
		var invAudit inventory.AuditPort
		if repos.Audit != nil {
			invAudit = repos.Audit
		}
		svc.Inventory = inventory.NewService(repos.Inventory, invAudit, repos.Idempotency, hooks, logger.With(slog.String("module", "inventory")))
	}
	return svc
}
