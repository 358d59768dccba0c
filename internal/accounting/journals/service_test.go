package journals_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battwheels/ledgercore/internal/accounting/accounts"
	"github.com/battwheels/ledgercore/internal/accounting/journals"
	"github.com/battwheels/ledgercore/internal/accounting/ledgertest"
	"github.com/battwheels/ledgercore/internal/accounting/shared"
	internalShared "github.com/battwheels/ledgercore/internal/shared"
)

const tenant = "org123"

type auditStub struct {
	mu   sync.Mutex
	logs []internalShared.AuditLog
	err  error
}

func (a *auditStub) Record(ctx context.Context, log internalShared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return a.err
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *outcomeRecorder) PostingObserved(entryType, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[entryType+"/"+outcome]++
}

func newService(t *testing.T) (*journals.Service, *ledgertest.Ledger, *auditStub) {
	t.Helper()
	ledger := ledgertest.New()
	ledger.Seed(tenant)
	audit := &auditStub{}
	svc := journals.NewService(ledger.Journals(), audit, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC) })
	return svc, ledger, audit
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func saleInput() journals.PostingInput {
	return journals.PostingInput{
		TenantID:    tenant,
		Date:        time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Description: "Invoice INV-00001",
		Type:        journals.EntryTypeSales,
		Source:      journals.SourceRef{Kind: "invoice", ID: "inv-1"},
		CreatedBy:   "user-7",
		Lines: []journals.PostingLineInput{
			{AccountCode: accounts.CodeAccountsReceivable, Debit: d("1180.00")},
			{AccountCode: accounts.CodeSalesRevenue, Credit: d("1000.00")},
			{AccountCode: accounts.CodeCGSTPayable, Credit: d("90.00")},
			{AccountCode: accounts.CodeSGSTPayable, Credit: d("90.00")},
		},
	}
}

func TestPostJournalMovesBalances(t *testing.T) {
	svc, ledger, audit := newService(t)

	entry, err := svc.PostJournal(context.Background(), saleInput())
	require.NoError(t, err)
	require.Equal(t, "JE-00001", entry.Number)
	require.True(t, entry.Posted)
	require.Len(t, entry.Lines, 4)
	require.Equal(t, 1, entry.Lines[0].LineNo)

	debit, credit := entry.Totals()
	require.True(t, debit.Equal(credit))

	require.True(t, d("1180").Equal(ledger.Balance(tenant, accounts.CodeAccountsReceivable)))
	require.True(t, d("1000").Equal(ledger.Balance(tenant, accounts.CodeSalesRevenue)))
	require.True(t, d("90").Equal(ledger.Balance(tenant, accounts.CodeCGSTPayable)))

	require.Len(t, audit.logs, 1)
	require.Equal(t, "journal.post", audit.logs[0].Action)
	require.Equal(t, tenant, audit.logs[0].TenantID)
}

func TestPostJournalReplaysSameSource(t *testing.T) {
	svc, ledger, _ := newService(t)
	observer := &outcomeRecorder{outcomes: make(map[string]int)}
	svc.WithObserver(observer)
	ctx := context.Background()

	first, err := svc.PostJournal(ctx, saleInput())
	require.NoError(t, err)

	res := svc.Attempt(ctx, saleInput())
	require.True(t, res.Posted)
	require.True(t, res.Replayed)
	require.Equal(t, first.ID, res.EntryID)
	require.Equal(t, first.Number, res.Number)

	require.Len(t, ledger.Entries(tenant), 1)
	require.True(t, d("1180").Equal(ledger.Balance(tenant, accounts.CodeAccountsReceivable)))
	require.Equal(t, 1, observer.outcomes["sales/posted"])
	require.Equal(t, 1, observer.outcomes["sales/replayed"])

	found, err := svc.FindBySource(ctx, tenant, journals.SourceRef{Kind: "invoice", ID: "inv-1"}, journals.EntryTypeSales)
	require.NoError(t, err)
	require.Equal(t, first.ID, found.ID)
}

func TestPostJournalConcurrentDuplicatesPostOnce(t *testing.T) {
	svc, ledger, _ := newService(t)
	ctx := context.Background()

	ids := make([]uuid.UUID, 12)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := svc.PostJournal(ctx, saleInput())
			assert.NoError(t, err)
			ids[i] = entry.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
	require.Len(t, ledger.Entries(tenant), 1)
}

func TestPostJournalUniqueViolationResolvesToReplay(t *testing.T) {
	svc, ledger, _ := newService(t)
	ctx := context.Background()
	first, err := svc.PostJournal(ctx, saleInput())
	require.NoError(t, err)

	// the in-transaction lookup misses, so the insert hits the unique key
	ledger.Fail(ledgertest.OpTxFind, shared.ErrJournalNotFound)
	res := svc.Attempt(ctx, saleInput())
	require.NoError(t, res.Err)
	require.True(t, res.Replayed)
	require.Equal(t, first.ID, res.EntryID)
}

func TestPostJournalDistinctNumbersUnderConcurrency(t *testing.T) {
	svc, ledger, _ := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := saleInput()
			in.Source.ID = uuid.NewString()
			_, err := svc.PostJournal(ctx, in)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, e := range ledger.Entries(tenant) {
		require.False(t, seen[e.Number], "duplicate number %s", e.Number)
		seen[e.Number] = true
	}
	require.Len(t, seen, 20)
	require.True(t, d("23600").Equal(ledger.Balance(tenant, accounts.CodeAccountsReceivable)))
}

func TestPostJournalRejectsUnbalanced(t *testing.T) {
	svc, ledger, _ := newService(t)
	in := saleInput()
	in.Lines[0].Debit = d("1179.99")

	_, err := svc.PostJournal(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrUnbalanced)
	var unbalanced *shared.UnbalancedError
	require.True(t, errors.As(err, &unbalanced))
	require.True(t, d("1179.99").Equal(unbalanced.Debit))
	require.True(t, d("1180").Equal(unbalanced.Credit))
	require.True(t, d("-0.01").Equal(unbalanced.Delta()))

	require.Empty(t, ledger.Entries(tenant))
	require.True(t, ledger.Balance(tenant, accounts.CodeAccountsReceivable).IsZero())
}

func TestPostJournalRejectsMalformedLines(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	cases := map[string]func(*journals.PostingInput){
		"both sides": func(in *journals.PostingInput) { in.Lines[0].Credit = d("1") },
		"no amount":  func(in *journals.PostingInput) { in.Lines[0].Debit = decimal.Zero },
		"negative":   func(in *journals.PostingInput) { in.Lines[1].Credit = d("-1000") },
		"precision":  func(in *journals.PostingInput) { in.Lines[0].Debit = d("1180.001") },
		"no account": func(in *journals.PostingInput) { in.Lines[2].AccountCode = " " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := saleInput()
			mutate(&in)
			_, err := svc.PostJournal(ctx, in)
			require.ErrorIs(t, err, shared.ErrMalformedLine)
			require.True(t, shared.IsValidation(err))
		})
	}

	in := saleInput()
	in.Lines = nil
	_, err := svc.PostJournal(ctx, in)
	require.ErrorIs(t, err, shared.ErrEmptyEntry)

	in = saleInput()
	in.Type = "barter"
	_, err = svc.PostJournal(ctx, in)
	require.ErrorIs(t, err, shared.ErrInvalidEntryType)

	in = saleInput()
	in.TenantID = ""
	_, err = svc.PostJournal(ctx, in)
	require.ErrorIs(t, err, shared.ErrTenantRequired)
}

func TestPostJournalUnknownAccount(t *testing.T) {
	svc, ledger, _ := newService(t)
	in := saleInput()
	in.Lines[1].AccountCode = "4999"

	require.ErrorIs(t, svc.Validate(context.Background(), in), shared.ErrAccountNotFound)

	res := svc.Attempt(context.Background(), in)
	require.False(t, res.Posted)
	require.ErrorIs(t, res.Err, shared.ErrAccountNotFound)
	require.Contains(t, res.Message, "4999")
	require.Empty(t, ledger.Entries(tenant))
}

func TestPostJournalStorageFailureLeavesNoTrace(t *testing.T) {
	svc, ledger, _ := newService(t)
	ledger.Fail(ledgertest.OpBalance, errors.New("connection reset by peer"))

	_, err := svc.PostJournal(context.Background(), saleInput())
	require.ErrorIs(t, err, shared.ErrStorageUnavailable)
	require.True(t, shared.IsRecoverable(err))
	require.Empty(t, ledger.Entries(tenant))

	// the rolled back transaction must not burn an entry number
	ledger.Fail(ledgertest.OpBalance, nil)
	entry, err := svc.PostJournal(context.Background(), saleInput())
	require.NoError(t, err)
	require.Equal(t, "JE-00001", entry.Number)
}

func TestPostJournalNumberingFailure(t *testing.T) {
	svc, ledger, _ := newService(t)
	ledger.Fail(ledgertest.OpNextNumber, errors.New("sequences: relation locked"))

	_, err := svc.PostJournal(context.Background(), saleInput())
	require.ErrorIs(t, err, shared.ErrSequenceUnavailable)
	require.NotErrorIs(t, err, shared.ErrStorageUnavailable)
}

func TestPostJournalTimeoutIsOutcomeUnknown(t *testing.T) {
	svc, ledger, _ := newService(t)
	svc.WithTimeout(5 * time.Millisecond)
	ledger.OnCommit = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := svc.PostJournal(context.Background(), saleInput())
	require.ErrorIs(t, err, shared.ErrOutcomeUnknown)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ledger.OnCommit = nil
	_, err = svc.FindBySource(context.Background(), tenant, journals.SourceRef{Kind: "invoice", ID: "inv-1"}, journals.EntryTypeSales)
	require.ErrorIs(t, err, shared.ErrJournalNotFound)
}

func TestAuditFailureDoesNotFailPosting(t *testing.T) {
	svc, _, audit := newService(t)
	audit.err = errors.New("audit_logs unavailable")

	_, err := svc.PostJournal(context.Background(), saleInput())
	require.NoError(t, err)
}

func TestReverseEntryRestoresBalances(t *testing.T) {
	svc, ledger, audit := newService(t)
	ctx := context.Background()
	original, err := svc.PostJournal(ctx, saleInput())
	require.NoError(t, err)

	reversal, err := svc.ReverseEntry(ctx, journals.ReverseInput{TenantID: tenant, EntryID: original.ID, Reason: "posted twice", ActorID: "user-9"})
	require.NoError(t, err)
	require.Equal(t, journals.EntryTypeReversal, reversal.Type)
	require.Equal(t, "JE-00002", reversal.Number)
	require.Equal(t, "posted twice", reversal.Description)
	require.Equal(t, journals.SourceRef{Kind: journals.SourceKindJournalEntry, ID: original.ID.String()}, reversal.Source)
	require.NotNil(t, reversal.ReversalOf)
	require.Equal(t, original.ID, *reversal.ReversalOf)
	require.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), reversal.Date)

	require.Len(t, reversal.Lines, len(original.Lines))
	for i, line := range reversal.Lines {
		require.Equal(t, original.Lines[i].AccountCode, line.AccountCode)
		require.True(t, original.Lines[i].Debit.Equal(line.Credit))
		require.True(t, original.Lines[i].Credit.Equal(line.Debit))
	}

	for _, code := range []string{accounts.CodeAccountsReceivable, accounts.CodeSalesRevenue, accounts.CodeCGSTPayable, accounts.CodeSGSTPayable} {
		require.True(t, ledger.Balance(tenant, code).IsZero(), code)
	}

	stored, err := svc.Get(ctx, tenant, original.ID)
	require.NoError(t, err)
	require.True(t, stored.Reversed)
	require.Equal(t, reversal.ID, *stored.ReversedBy)
	require.Equal(t, "journal.reverse", audit.logs[len(audit.logs)-1].Action)
}

func TestReverseEntryIsIdempotentAndGuarded(t *testing.T) {
	svc, ledger, _ := newService(t)
	ctx := context.Background()
	original, err := svc.PostJournal(ctx, saleInput())
	require.NoError(t, err)

	in := journals.ReverseInput{TenantID: tenant, EntryID: original.ID}
	first, err := svc.ReverseEntry(ctx, in)
	require.NoError(t, err)
	require.Equal(t, "Reversal of JE-00001", first.Description)

	again, err := svc.ReverseEntry(ctx, in)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.Len(t, ledger.Entries(tenant), 2)

	_, err = svc.ReverseEntry(ctx, journals.ReverseInput{TenantID: tenant, EntryID: first.ID})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	_, err = svc.ReverseEntry(ctx, journals.ReverseInput{TenantID: tenant, EntryID: uuid.New()})
	require.ErrorIs(t, err, shared.ErrJournalNotFound)

	_, err = svc.ReverseEntry(ctx, journals.ReverseInput{TenantID: "org456", EntryID: original.ID})
	require.ErrorIs(t, err, shared.ErrJournalNotFound)
}

func TestListFiltersByType(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.PostJournal(ctx, saleInput())
	require.NoError(t, err)
	_, err = svc.PostJournal(ctx, journals.PostingInput{
		TenantID: tenant,
		Date:     time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Type:     journals.EntryTypeTransfer,
		Lines: []journals.PostingLineInput{
			{AccountCode: accounts.CodeBank, Debit: d("500")},
			{AccountCode: accounts.CodeCash, Credit: d("500")},
		},
	})
	require.NoError(t, err)

	all, err := svc.List(ctx, tenant, journals.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	transfers, err := svc.List(ctx, tenant, journals.ListFilter{Type: journals.EntryTypeTransfer})
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	require.Equal(t, "JE-00002", transfers[0].Number)
}

func TestIdempotencyKeyIsDeterministic(t *testing.T) {
	ref := journals.SourceRef{Kind: "credit_note", ID: "cn-1"}
	a := journals.IdempotencyKey(tenant, ref, journals.EntryTypeCreditNote)
	b := journals.IdempotencyKey(tenant, ref, journals.EntryTypeCreditNote)
	require.Equal(t, a, b)
	require.NotEqual(t, a, journals.IdempotencyKey("org456", ref, journals.EntryTypeCreditNote))
	require.NotEqual(t, a, journals.IdempotencyKey(tenant, ref, journals.EntryTypeReversal))

	require.Equal(t, uuid.Nil, journals.PostingInput{TenantID: tenant}.Key())
}

func TestFindBySourceMatchesExplicitKey(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	input := saleInput()
	input.IdempotencyKey = uuid.New()

	posted, err := svc.PostJournal(ctx, input)
	require.NoError(t, err)
	require.Equal(t, input.IdempotencyKey, posted.IdempotencyKey)

	found, err := svc.FindBySource(ctx, tenant, input.Source, journals.EntryTypeSales)
	require.NoError(t, err)
	require.Equal(t, posted.ID, found.ID)

	_, err = svc.FindBySource(ctx, tenant, input.Source, journals.EntryTypePayment)
	require.ErrorIs(t, err, shared.ErrJournalNotFound)

	_, err = svc.FindBySource(ctx, tenant, journals.SourceRef{Kind: "invoice"}, journals.EntryTypeSales)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}
