package creditnotes

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
	"github.com/battwheels/ledgercore/internal/accounting/gst"
	"github.com/battwheels/ledgercore/internal/accounting/journals"
	"github.com/battwheels/ledgercore/internal/accounting/ledgertest"
	"github.com/battwheels/ledgercore/internal/accounting/sequences"
	"github.com/battwheels/ledgercore/internal/accounting/shared"
)

const tenant = "org123"

type memoryRepo struct {
	mu    sync.Mutex
	notes map[uuid.UUID]CreditNote
	order []uuid.UUID
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{notes: make(map[uuid.UUID]CreditNote)}
}

func (r *memoryRepo) Get(ctx context.Context, tenantID string, id uuid.UUID) (CreditNote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok || n.TenantID != tenantID {
		return CreditNote{}, ErrNotFound
	}
	return n, nil
}

func (r *memoryRepo) ListByInvoice(ctx context.Context, tenantID string, invoiceID uuid.UUID) ([]CreditNote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CreditNote
	for _, id := range r.order {
		if n := r.notes[id]; n.TenantID == tenantID && n.InvoiceID == invoiceID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListUnposted(ctx context.Context, limit int) ([]CreditNote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CreditNote
	for _, id := range r.order {
		if n := r.notes[id]; !n.Posted && n.Status == StatusIssued {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdatePosting(ctx context.Context, tenantID string, id uuid.UUID, entryID *uuid.UUID, postingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok {
		return ErrNotFound
	}
	n.Posted, n.JournalEntryID, n.PostingError = entryID != nil, entryID, postingError
	r.notes[id] = n
	return nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, staged: make(map[uuid.UUID]CreditNote)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.order = append(r.order, tx.order...)
	for id, n := range tx.staged {
		r.notes[id] = n
	}
	return nil
}

type memoryTx struct {
	repo   *memoryRepo
	staged map[uuid.UUID]CreditNote
	order  []uuid.UUID
}

// LockInvoice is a no-op: WithTx already holds the repository mutex.
func (tx *memoryTx) LockInvoice(ctx context.Context, tenantID string, invoiceID uuid.UUID) error {
	return nil
}

func (tx *memoryTx) CreditedTotal(ctx context.Context, tenantID string, invoiceID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, n := range tx.repo.notes {
		if n.TenantID == tenantID && n.InvoiceID == invoiceID && n.Status != StatusCancelled {
			total = total.Add(n.Total)
		}
	}
	return total, nil
}

func (tx *memoryTx) Insert(ctx context.Context, note CreditNote) error {
	tx.staged[note.ID] = note
	tx.order = append(tx.order, note.ID)
	return nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (CreditNote, error) {
	n, ok := tx.repo.notes[id]
	if !ok || n.TenantID != tenantID {
		return CreditNote{}, ErrNotFound
	}
	return n, nil
}

func (tx *memoryTx) MarkCancelled(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	n, ok := tx.repo.notes[id]
	if !ok || n.Status != StatusIssued {
		return ErrAlreadyCancelled
	}
	n.Status, n.UpdatedAt = StatusCancelled, at
	tx.staged[id] = n
	return nil
}

type invoiceStub map[uuid.UUID]InvoiceSnapshot

func (s invoiceStub) InvoiceSnapshot(ctx context.Context, tenantID string, id uuid.UUID) (InvoiceSnapshot, error) {
	inv, ok := s[id]
	if !ok || inv.TenantID != tenantID {
		return InvoiceSnapshot{}, ErrInvoiceNotFound
	}
	return inv, nil
}

type fixture struct {
	svc      *Service
	repo     *memoryRepo
	ledger   *ledgertest.Ledger
	invoices invoiceStub
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ledger := ledgertest.New()
	ledger.Seed(tenant)
	return newFixtureWith(t, ledger, accounts.NewService(ledger.Accounts(), nil))
}

func newFixtureWith(t *testing.T, ledger *ledgertest.Ledger, chart ChartPort) fixture {
	t.Helper()
	repo := newMemoryRepo()
	invoices := invoiceStub{}
	svc := NewService(repo, invoices,
		journals.NewService(ledger.Journals(), nil, nil),
		sequences.NewService(ledger.Sequences(), nil),
		chart, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 5, 11, 15, 0, 0, 0, time.UTC) })
	return fixture{svc: svc, repo: repo, ledger: ledger, invoices: invoices}
}

// staleChart reports success without creating anything.
type staleChart struct{}

func (staleChart) EnsureSystemAccounts(ctx context.Context, tenantID string) error { return nil }

func (f fixture) invoice(grandTotal, cgst, sgst, igst string, paid bool) uuid.UUID {
	id := uuid.New()
	f.invoices[id] = InvoiceSnapshot{
		ID: id, TenantID: tenant, Number: "INV-00007",
		GrandTotal: d(grandTotal), CGST: d(cgst), SGST: d(sgst), IGST: d(igst), Paid: paid,
	}
	return id
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func untaxed(amount string) []gst.Item {
	return []gst.Item{{Name: "Goodwill discount", Quantity: d("1"), Rate: d(amount), TaxRate: decimal.Zero}}
}

func issue(f fixture, invoiceID uuid.UUID, items []gst.Item) (IssueResult, error) {
	return f.svc.Issue(context.Background(), IssueInput{
		TenantID: tenant, InvoiceID: invoiceID, Reason: "Customer complaint", Items: items, ActorID: "user-7",
	})
}

func TestIssueEnforcesInvoiceCeiling(t *testing.T) {
	f := newFixture(t)
	invoiceID := f.invoice("1000", "0", "0", "0", false)

	first, err := issue(f, invoiceID, untaxed("400"))
	require.NoError(t, err)
	require.Equal(t, "CN-00001", first.CreditNote.Number)
	require.True(t, first.CreditNote.Posted)

	_, err = issue(f, invoiceID, untaxed("700"))
	require.ErrorIs(t, err, shared.ErrExceedsCreditable)
	var exceeds *shared.ExceedsCreditableError
	require.True(t, errors.As(err, &exceeds))
	require.True(t, d("600").Equal(exceeds.Remaining))
	require.True(t, d("400").Equal(exceeds.AlreadyCredited))
	require.Contains(t, err.Error(), "remaining creditable amount (₹600.00); already credited: ₹400.00")

	second, err := issue(f, invoiceID, untaxed("600"))
	require.NoError(t, err)
	require.Equal(t, "CN-00002", second.CreditNote.Number)

	notes, err := f.svc.List(context.Background(), tenant, invoiceID)
	require.NoError(t, err)
	total := decimal.Zero
	for _, n := range notes {
		total = total.Add(n.Total)
	}
	require.True(t, d("1000").Equal(total))

	_, err = issue(f, invoiceID, untaxed("0.01"))
	require.ErrorIs(t, err, shared.ErrExceedsCreditable)
}

func TestConcurrentIssuesNeverExceedCeiling(t *testing.T) {
	f := newFixture(t)
	invoiceID := f.invoice("1000", "0", "0", "0", false)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := issue(f, invoiceID, untaxed("300"))
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, shared.ErrExceedsCreditable)
		}()
	}
	wg.Wait()
	require.Equal(t, 3, accepted)
	require.True(t, d("-900").Equal(f.ledger.Balance(tenant, accounts.CodeAccountsReceivable)))
}

func TestIssueSplitsGSTLikeTheInvoice(t *testing.T) {
	f := newFixture(t)
	intra := f.invoice("1180", "90", "90", "0", false)

	res, err := issue(f, intra, []gst.Item{{Name: "Brake pads", Quantity: d("1"), Rate: d("1000"), TaxRate: d("18")}})
	require.NoError(t, err)
	note := res.CreditNote
	require.Equal(t, gst.TreatmentIntraState, note.Treatment)
	require.True(t, d("90").Equal(note.CGST))
	require.True(t, d("90").Equal(note.SGST))
	require.True(t, note.IGST.IsZero())
	require.True(t, d("1180").Equal(note.Total))
	require.False(t, note.Refund)

	require.True(t, d("-1000").Equal(f.ledger.Balance(tenant, accounts.CodeSalesRevenue)))
	require.True(t, d("-90").Equal(f.ledger.Balance(tenant, accounts.CodeCGSTPayable)))
	require.True(t, d("-90").Equal(f.ledger.Balance(tenant, accounts.CodeSGSTPayable)))
	require.True(t, d("-1180").Equal(f.ledger.Balance(tenant, accounts.CodeAccountsReceivable)))

	inter := f.invoice("1180", "0", "0", "180", false)
	res, err = issue(f, inter, []gst.Item{{Name: "Brake pads", Quantity: d("1"), Rate: d("1000"), TaxRate: d("18")}})
	require.NoError(t, err)
	require.Equal(t, gst.TreatmentInterState, res.CreditNote.Treatment)
	require.True(t, d("180").Equal(res.CreditNote.IGST))
	require.True(t, d("-180").Equal(f.ledger.Balance(tenant, accounts.CodeIGSTPayable)))

	entries := f.ledger.Entries(tenant)
	require.Len(t, entries, 2)
	require.Equal(t, journals.EntryTypeCreditNote, entries[0].Type)
	require.Len(t, entries[1].Lines, 3)
}

func TestPaidInvoiceCreditsRefundPayable(t *testing.T) {
	f := newFixture(t)
	invoiceID := f.invoice("1180", "90", "90", "0", true)

	res, err := issue(f, invoiceID, untaxed("500"))
	require.NoError(t, err)
	require.True(t, res.CreditNote.Refund)
	require.True(t, d("500").Equal(f.ledger.Balance(tenant, accounts.CodeRefundPayable)))
	require.True(t, f.ledger.Balance(tenant, accounts.CodeAccountsReceivable).IsZero())
}

func TestStorageFailureKeepsNoteUnposted(t *testing.T) {
	f := newFixture(t)
	invoiceID := f.invoice("1000", "0", "0", "0", false)
	f.ledger.Fail(ledgertest.OpInsertEntry, errors.New("connection refused"))

	res, err := issue(f, invoiceID, untaxed("250"))
	require.NoError(t, err)
	require.NotNil(t, res.PostError)
	require.True(t, res.PostError.Retryable)
	require.False(t, res.CreditNote.Posted)
	require.Contains(t, res.CreditNote.PostingError, "credit note recorded but journal posting pending")

	stored, err := f.svc.Get(context.Background(), tenant, res.CreditNote.ID)
	require.NoError(t, err)
	require.False(t, stored.Posted)
	require.Empty(t, f.ledger.Entries(tenant))

	f.ledger.Fail(ledgertest.OpInsertEntry, nil)
	posted, err := f.svc.RepostPending(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, posted)
	posted, err = f.svc.RepostPending(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, posted)
	require.Len(t, f.ledger.Entries(tenant), 1)
}

func TestCancelReversesAndFreesCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	invoiceID := f.invoice("1000", "0", "0", "0", false)

	res, err := issue(f, invoiceID, untaxed("1000"))
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, tenant, res.CreditNote.ID, "user-9")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.True(t, f.ledger.Balance(tenant, accounts.CodeAccountsReceivable).IsZero())
	require.True(t, f.ledger.Balance(tenant, accounts.CodeSalesRevenue).IsZero())

	entries := f.ledger.Entries(tenant)
	require.Len(t, entries, 2)
	require.True(t, entries[0].Reversed)
	require.Equal(t, journals.EntryTypeReversal, entries[1].Type)

	_, err = f.svc.Cancel(ctx, tenant, res.CreditNote.ID, "user-9")
	require.ErrorIs(t, err, ErrAlreadyCancelled)

	_, err = issue(f, invoiceID, untaxed("1000"))
	require.NoError(t, err)
}

func TestIssueRejections(t *testing.T) {
	f := newFixture(t)
	invoiceID := f.invoice("1000", "0", "0", "0", false)

	_, err := f.svc.Issue(context.Background(), IssueInput{TenantID: tenant, InvoiceID: invoiceID, Items: untaxed("10")})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = issue(f, invoiceID, nil)
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = issue(f, uuid.New(), untaxed("10"))
	require.ErrorIs(t, err, ErrInvoiceNotFound)

	voided := f.invoice("1000", "0", "0", "0", false)
	snap := f.invoices[voided]
	snap.Void = true
	f.invoices[voided] = snap
	_, err = issue(f, voided, untaxed("10"))
	require.ErrorIs(t, err, ErrInvoiceVoid)

	f.ledger.Fail(ledgertest.OpIncrement, errors.New("redis down"))
	_, err = issue(f, invoiceID, untaxed("10"))
	require.ErrorIs(t, err, shared.ErrSequenceUnavailable)
	notes, err := f.svc.List(context.Background(), tenant, invoiceID)
	require.NoError(t, err)
	require.Empty(t, notes)
}

func TestIssueBlockedWhenSystemAccountMissing(t *testing.T) {
	f := newFixtureWith(t, ledgertest.New(), staleChart{})
	invoiceID := f.invoice("1000", "0", "0", "0", false)

	res, err := issue(f, invoiceID, untaxed("100"))
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
	require.Empty(t, res.CreditNote.Number)
	require.Empty(t, f.repo.notes)
	require.Empty(t, f.ledger.Entries(tenant))

	next, err := sequences.NewService(f.ledger.Sequences(), nil).Next(context.Background(), tenant, sequences.KindCreditNote)
	require.NoError(t, err)
	require.Equal(t, "CN-00001", next)
}

func TestIssueBootstrapsChartForNewTenant(t *testing.T) {
	ledger := ledgertest.New()
	f := newFixtureWith(t, ledger, accounts.NewService(ledger.Accounts(), nil))
	invoiceID := f.invoice("1000", "0", "0", "0", false)

	res, err := issue(f, invoiceID, untaxed("100"))
	require.NoError(t, err)
	require.Nil(t, res.PostError)
	require.True(t, res.CreditNote.Posted)
	assert.True(t, d("-100").Equal(ledger.Balance(tenant, accounts.CodeSalesRevenue)))
	assert.True(t, d("-100").Equal(ledger.Balance(tenant, accounts.CodeAccountsReceivable)))
}
