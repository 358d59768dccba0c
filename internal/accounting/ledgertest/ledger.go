// Package ledgertest provides an in-memory ledger that satisfies the accounts,
// journals, sequences and reports repositories over one shared state, so
// service tests can observe balances move.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/accounts"
	"github.com/battwheels/ledgercore/internal/accounting/journals"
	"github.com/battwheels/ledgercore/internal/accounting/reports"
	"github.com/battwheels/ledgercore/internal/accounting/sequences"
	"github.com/battwheels/ledgercore/internal/accounting/shared"
)

// Operations that can be made to fail with Fail.
const (
	OpFind         = "find"
	OpTxFind       = "tx_find"
	OpMissing      = "missing_accounts"
	OpLockAccounts = "lock_accounts"
	OpNextNumber   = "next_number"
	OpInsertEntry  = "insert_entry"
	OpInsertLines  = "insert_lines"
	OpBalance      = "apply_balance"
	OpBegin        = "begin"
	OpCommit       = "commit"
	OpActivity     = "activity"
	OpIncrement    = "increment"
	OpSeed         = "seed"
)

// Ledger is a mutex-guarded fake of the Postgres ledger schema. Transactions
// hold the mutex for their whole duration and stage writes until commit.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]map[string]accounts.Account
	entries  map[uuid.UUID]journals.JournalEntry
	order    []uuid.UUID
	keys     map[string]uuid.UUID
	counters map[string]int64
	failures map[string]error

	// OnCommit runs just before a transaction commits; a non-nil error
	// rolls it back.
	OnCommit func(ctx context.Context) error
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		accounts: make(map[string]map[string]accounts.Account),
		entries:  make(map[uuid.UUID]journals.JournalEntry),
		keys:     make(map[string]uuid.UUID),
		counters: make(map[string]int64),
		failures: make(map[string]error),
	}
}

// Fail makes op return err until cleared with a nil err.
func (l *Ledger) Fail(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, op)
		return
	}
	l.failures[op] = err
}

func (l *Ledger) failure(op string) error {
	return l.failures[op]
}

// Seed installs the system chart for tenantID.
func (l *Ledger) Seed(tenantID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seed(tenantID, accounts.SystemAccounts())
}

func (l *Ledger) seed(tenantID string, seeds []accounts.SeedAccount) int64 {
	chart, ok := l.accounts[tenantID]
	if !ok {
		chart = make(map[string]accounts.Account)
		l.accounts[tenantID] = chart
	}
	var created int64
	for _, s := range seeds {
		if _, exists := chart[s.Code]; exists {
			continue
		}
		chart[s.Code] = accounts.Account{
			TenantID: tenantID, Code: s.Code, Name: s.Name, Type: s.Type, SubType: s.SubType,
			IsSystem: true, IsActive: true,
		}
		created++
	}
	return created
}

// Balance returns the running balance of an account.
func (l *Ledger) Balance(tenantID, code string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[tenantID][code].Balance
}

// SetBalance overwrites a running balance, used to simulate drift.
func (l *Ledger) SetBalance(tenantID, code string, balance decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.accounts[tenantID][code]
	acc.Balance = balance
	l.accounts[tenantID][code] = acc
}

// Entries returns committed entries for tenantID in posting order.
func (l *Ledger) Entries(tenantID string) []journals.JournalEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []journals.JournalEntry
	for _, id := range l.order {
		if e := l.entries[id]; e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out
}

// Accounts returns an accounts.Repository view.
func (l *Ledger) Accounts() accounts.Repository { return accountRepo{l} }

// Journals returns a journals.Repository view.
func (l *Ledger) Journals() journals.Repository { return journalRepo{l} }

// Sequences returns a sequences.Store view sharing the journal counters.
func (l *Ledger) Sequences() sequences.Store { return sequenceStore{l} }

// Reports returns a reports.Repository view.
func (l *Ledger) Reports() reports.Repository { return reportRepo{l} }

func keyOf(tenantID string, key uuid.UUID) string {
	return tenantID + "|" + key.String()
}

func counterOf(tenantID string, kind sequences.Kind) string {
	return string(kind) + "_" + tenantID
}

type accountRepo struct{ l *Ledger }

func (r accountRepo) InsertSystemAccounts(ctx context.Context, tenantID string, seeds []accounts.SeedAccount) (int64, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if err := r.l.failure(OpSeed); err != nil {
		return 0, err
	}
	return r.l.seed(tenantID, seeds), nil
}

func (r accountRepo) Get(ctx context.Context, tenantID, code string) (accounts.Account, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	acc, ok := r.l.accounts[tenantID][code]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return acc, nil
}

func (r accountRepo) List(ctx context.Context, tenantID string) ([]accounts.Account, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	out := make([]accounts.Account, 0, len(r.l.accounts[tenantID]))
	for _, acc := range r.l.accounts[tenantID] {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r accountRepo) Create(ctx context.Context, in accounts.CreateInput) (accounts.Account, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	chart, ok := r.l.accounts[in.TenantID]
	if !ok {
		chart = make(map[string]accounts.Account)
		r.l.accounts[in.TenantID] = chart
	}
	if _, exists := chart[in.Code]; exists {
		return accounts.Account{}, shared.ErrDuplicateAccount
	}
	acc := accounts.Account{TenantID: in.TenantID, Code: in.Code, Name: in.Name, Type: in.Type, SubType: in.SubType, IsActive: true}
	chart[in.Code] = acc
	return acc, nil
}

func (r accountRepo) CountPostings(ctx context.Context, tenantID, code string) (int64, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var n int64
	for _, e := range r.l.entries {
		if e.TenantID != tenantID {
			continue
		}
		for _, line := range e.Lines {
			if line.AccountCode == code {
				n++
			}
		}
	}
	return n, nil
}

func (r accountRepo) Delete(ctx context.Context, tenantID, code string) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if r.l.accounts[tenantID][code].IsSystem {
		return shared.ErrSystemAccount
	}
	delete(r.l.accounts[tenantID], code)
	return nil
}

func (r accountRepo) ListTenants(ctx context.Context) ([]string, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	out := make([]string, 0, len(r.l.accounts))
	for tenant := range r.l.accounts {
		out = append(out, tenant)
	}
	sort.Strings(out)
	return out, nil
}

type sequenceStore struct{ l *Ledger }

func (s sequenceStore) Increment(ctx context.Context, tenantID string, kind sequences.Kind) (int64, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	if err := s.l.failure(OpIncrement); err != nil {
		return 0, err
	}
	key := counterOf(tenantID, kind)
	s.l.counters[key]++
	return s.l.counters[key], nil
}

type reportRepo struct{ l *Ledger }

func (r reportRepo) Activity(ctx context.Context, tenantID string, window reports.Window) ([]reports.AccountActivity, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if err := r.l.failure(OpActivity); err != nil {
		return nil, err
	}
	sums := make(map[string]*reports.AccountActivity)
	for code, acc := range r.l.accounts[tenantID] {
		sums[code] = &reports.AccountActivity{Code: code, Name: acc.Name, Type: acc.Type, Running: acc.Balance}
	}
	for _, e := range r.l.entries {
		if e.TenantID != tenantID || !e.Posted {
			continue
		}
		if window.From != nil && e.Date.Before(*window.From) {
			continue
		}
		if window.To != nil && e.Date.After(*window.To) {
			continue
		}
		for _, line := range e.Lines {
			row, ok := sums[line.AccountCode]
			if !ok {
				return nil, fmt.Errorf("line references unknown account %s", line.AccountCode)
			}
			row.Debit = row.Debit.Add(line.Debit)
			row.Credit = row.Credit.Add(line.Credit)
		}
	}
	out := make([]reports.AccountActivity, 0, len(sums))
	for _, row := range sums {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
