package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battwheels/ledgercore/cmd/ledgerctl/cli"
	"github.com/battwheels/ledgercore/internal/accounting/accounts"
	"github.com/battwheels/ledgercore/internal/accounting/journals"
	"github.com/battwheels/ledgercore/internal/accounting/ledgertest"
	"github.com/battwheels/ledgercore/internal/accounting/reports"
	"github.com/battwheels/ledgercore/internal/app"
	"github.com/battwheels/ledgercore/internal/platform/db"
	"github.com/battwheels/ledgercore/jobs"
	_ "github.com/battwheels/ledgercore/testing"
)

const tenant = "org123"

type harness struct {
	out      *bytes.Buffer
	cfg      *app.Config
	ledger   *ledgertest.Ledger
	migrated []db.Direction
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ledger := ledgertest.New()
	ledger.Seed(tenant)
	return &harness{
		out:    &bytes.Buffer{},
		ledger: ledger,
		cfg: &app.Config{
			PGDSN:                "postgres://unused",
			LogLevel:             "error",
			LogFormat:            "json",
			ReconcileBatchSize:   50,
			IdempotencyRetention: 24 * time.Hour,
		},
	}
}

func (h *harness) deps() cli.Deps {
	return cli.Deps{
		Out:    h.out,
		Config: func() (*app.Config, error) { return h.cfg, nil },
		Migrate: func(dsn string, dir db.Direction, logger *slog.Logger) error {
			h.migrated = append(h.migrated, dir)
			return nil
		},
		Ledger: func(ctx context.Context, cfg *app.Config, logger *slog.Logger) (cli.LedgerReader, func(), error) {
			return reports.NewService(h.ledger.Reports(), logger), func() {}, nil
		},
		Queue: func(cfg *app.Config) (cli.Queue, error) {
			return jobs.NewClient(cfg.QueueRedisOpt()), nil
		},
	}
}

func (h *harness) run(args ...string) error {
	h.out.Reset()
	return cli.Execute(context.Background(), h.deps(), args)
}

func (h *harness) post(t *testing.T, lines ...journals.PostingLineInput) {
	t.Helper()
	svc := journals.NewService(h.ledger.Journals(), nil, nil)
	_, err := svc.PostJournal(context.Background(), journals.PostingInput{
		TenantID:    tenant,
		Date:        time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		Description: "cli fixture",
		Type:        journals.EntryTypeSales,
		Source:      journals.SourceRef{Kind: "test", ID: "fixture"},
		Lines:       lines,
	})
	require.NoError(t, err)
}

func line(code, debit, credit string) journals.PostingLineInput {
	return journals.PostingLineInput{
		AccountCode: code,
		Debit:       decimal.RequireFromString(debit),
		Credit:      decimal.RequireFromString(credit),
	}
}

func TestMigrateCommand(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("migrate", "up"))
	require.NoError(t, h.run("migrate", "down"))
	assert.Equal(t, []db.Direction{db.DirectionUp, db.DirectionDown}, h.migrated)
	assert.Contains(t, h.out.String(), "migrations down complete")

	require.Error(t, h.run("migrate", "sideways"))
	assert.Len(t, h.migrated, 2)
}

func TestTrialBalanceCommandJSON(t *testing.T) {
	h := newHarness(t)
	h.post(t,
		line(accounts.CodeAccountsReceivable, "1180", "0"),
		line(accounts.CodeSalesRevenue, "0", "1000"),
		line(accounts.CodeCGSTPayable, "0", "90"),
		line(accounts.CodeSGSTPayable, "0", "90"))

	require.NoError(t, h.run("trial-balance", "--tenant", tenant, "--as-of", "2026-03-31", "--json"))

	var view struct {
		TenantID    string `json:"tenant_id"`
		AsOf        string `json:"as_of"`
		TotalDebit  string `json:"total_debit"`
		TotalCredit string `json:"total_credit"`
		Balanced    bool   `json:"balanced"`
		Accounts    []struct {
			Code  string `json:"code"`
			Debit string `json:"debit"`
		} `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &view))
	assert.Equal(t, tenant, view.TenantID)
	assert.Equal(t, "2026-03-31", view.AsOf)
	assert.Equal(t, "1180.00", view.TotalDebit)
	assert.Equal(t, "1180.00", view.TotalCredit)
	assert.True(t, view.Balanced)
	require.NotEmpty(t, view.Accounts)
	assert.Equal(t, accounts.CodeAccountsReceivable, view.Accounts[0].Code)
	assert.Equal(t, "1180.00", view.Accounts[0].Debit)
}

func TestTrialBalanceCommandTable(t *testing.T) {
	h := newHarness(t)
	h.post(t, line(accounts.CodeBank, "500", "0"), line(accounts.CodeSalesRevenue, "0", "500"))

	require.NoError(t, h.run("trial-balance", "--tenant", tenant, "--as-of", "2026-03-31"))
	out := h.out.String()
	assert.Contains(t, out, "Trial balance org123 as of 2026-03-31")
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "balanced")
}

func TestTrialBalanceCommandValidatesInput(t *testing.T) {
	h := newHarness(t)

	require.Error(t, h.run("trial-balance"))
	err := h.run("trial-balance", "--tenant", tenant, "--as-of", "31/03/2026")
	require.ErrorContains(t, err, "--as-of must be YYYY-MM-DD")
}

func TestDriftCommandFlagsMismatch(t *testing.T) {
	h := newHarness(t)
	h.post(t, line(accounts.CodeCash, "100", "0"), line(accounts.CodeSalesRevenue, "0", "100"))

	require.NoError(t, h.run("drift", "--tenant", tenant))
	assert.Contains(t, h.out.String(), "no drift for org123")

	h.ledger.SetBalance(tenant, accounts.CodeCash, decimal.RequireFromString("90"))
	err := h.run("drift", "--tenant", tenant)
	require.True(t, errors.Is(err, cli.ErrLedgerUnhealthy))
	assert.Contains(t, h.out.String(), accounts.CodeCash)
	assert.Contains(t, h.out.String(), "-10.00")
}

func TestJobsTriggerAndStats(t *testing.T) {
	mr := miniredis.RunT(t)
	h := newHarness(t)
	h.cfg.RedisAddr = mr.Addr()

	require.NoError(t, h.run("jobs", "stats"))
	var stats jobs.QueueStats
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &stats))
	assert.Equal(t, jobs.QueueDefault, stats.Queue)
	assert.Zero(t, stats.Pending)

	require.NoError(t, h.run("jobs", "trigger", jobs.TaskLedgerReconcile))
	assert.Contains(t, h.out.String(), "enqueued ledger:reconcile")
	pending, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.Error(t, h.run("jobs", "trigger", "unknown:task"))
}

func TestConfigErrorStopsCommand(t *testing.T) {
	deps := newHarness(t).deps()
	deps.Config = func() (*app.Config, error) { return nil, errors.New("PG_DSN must be provided") }

	err := cli.Execute(context.Background(), deps, []string{"migrate", "up"})
	require.ErrorContains(t, err, "PG_DSN")
}
