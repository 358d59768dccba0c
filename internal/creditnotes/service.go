package creditnotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/accounts"
	"github.com/battwheels/ledgercore/internal/accounting/gst"
	"github.com/battwheels/ledgercore/internal/accounting/journals"
	"github.com/battwheels/ledgercore/internal/accounting/sequences"
	"github.com/battwheels/ledgercore/internal/accounting/shared"
)

// SourceKind tags journal entries posted for credit notes.
const SourceKind = "credit_note"

// LedgerPort is the posting engine as seen by credit notes.
type LedgerPort interface {
	Attempt(ctx context.Context, input journals.PostingInput) journals.PostingResult
	ReverseEntry(ctx context.Context, input journals.ReverseInput) (journals.JournalEntry, error)
	FindBySource(ctx context.Context, tenantID string, ref journals.SourceRef, entryType journals.EntryType) (journals.JournalEntry, error)
	Validate(ctx context.Context, input journals.PostingInput) error
}

// ChartPort bootstraps the system chart before first use.
type ChartPort interface {
	EnsureSystemAccounts(ctx context.Context, tenantID string) error
}

// NumberPort allocates CN numbers.
type NumberPort interface {
	Next(ctx context.Context, tenantID string, kind sequences.Kind) (string, error)
}

// Service issues and cancels credit notes against invoices.
type Service struct {
	repo     Repository
	invoices InvoiceSource
	ledger   LedgerPort
	numbers  NumberPort
	chart    ChartPort
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, invoices InvoiceSource, ledger LedgerPort, numbers NumberPort, chart ChartPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, invoices: invoices, ledger: ledger, numbers: numbers, chart: chart, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func validateIssue(in IssueInput) error {
	if strings.TrimSpace(in.TenantID) == "" {
		return shared.ErrTenantRequired
	}
	if in.InvoiceID == uuid.Nil {
		return fmt.Errorf("%w: invoice id required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Reason) == "" {
		return fmt.Errorf("%w: reason required", shared.ErrInvalidInput)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: at least one line item required", shared.ErrInvalidInput)
	}
	for idx, item := range in.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("line %d: %w", idx, err)
		}
	}
	return nil
}

// Issue credits part of an invoice. The running total of non-cancelled notes
// never exceeds the invoice grand total; the check and the insert happen under
// a lock held for the invoice. The posting is validated against the chart
// before anything is written, so a missing account blocks the note. A
// storage-class posting failure still returns the saved note, with PostError set.
func (s *Service) Issue(ctx context.Context, in IssueInput) (IssueResult, error) {
	if err := validateIssue(in); err != nil {
		return IssueResult{}, err
	}
	invoice, err := s.invoices.InvoiceSnapshot(ctx, in.TenantID, in.InvoiceID)
	if err != nil {
		return IssueResult{}, err
	}
	if invoice.Void {
		return IssueResult{}, ErrInvoiceVoid
	}
	if err := s.chart.EnsureSystemAccounts(ctx, in.TenantID); err != nil {
		return IssueResult{}, err
	}

	treatment := invoice.Treatment()
	summary := gst.Summarize(in.Items, treatment)
	now := s.now().UTC()
	date := in.Date
	if date.IsZero() {
		date = now
	}
	y, m, d := date.Date()
	note := CreditNote{
		ID:            uuid.New(),
		TenantID:      in.TenantID,
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.Number,
		Reason:        strings.TrimSpace(in.Reason),
		Date:          time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Treatment:     treatment,
		Subtotal:      summary.Subtotal,
		CGST:          summary.CGST,
		SGST:          summary.SGST,
		IGST:          summary.IGST,
		GSTAmount:     summary.GST,
		Total:         summary.Total,
		Refund:        invoice.Paid,
		Status:        StatusIssued,
		CreatedBy:     in.ActorID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for idx, line := range summary.Lines {
		note.Lines = append(note.Lines, Line{LineNo: idx + 1, Line: line})
	}
	if err := s.ledger.Validate(ctx, postingFor(note)); err != nil {
		return IssueResult{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockInvoice(ctx, in.TenantID, invoice.ID); err != nil {
			return err
		}
		credited, err := tx.CreditedTotal(ctx, in.TenantID, invoice.ID)
		if err != nil {
			return err
		}
		remaining := invoice.GrandTotal.Sub(credited)
		if note.Total.GreaterThan(invoice.GrandTotal) || note.Total.GreaterThan(remaining) {
			return &shared.ExceedsCreditableError{Requested: note.Total, Remaining: remaining, AlreadyCredited: credited}
		}
		number, err := s.numbers.Next(ctx, in.TenantID, sequences.KindCreditNote)
		if err != nil {
			return err
		}
		note.Number = number
		return tx.Insert(ctx, note)
	})
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrExceedsCreditable), errors.Is(err, shared.ErrSequenceUnavailable):
		return IssueResult{}, err
	default:
		return IssueResult{}, fmt.Errorf("%w: save credit note: %w", shared.ErrStorageUnavailable, err)
	}

	return s.post(ctx, note)
}

func (s *Service) post(ctx context.Context, note CreditNote) (IssueResult, error) {
	res := s.ledger.Attempt(ctx, postingFor(note))
	if res.Posted {
		note.Posted, note.JournalEntryID, note.PostingError = true, &res.EntryID, ""
		if err := s.repo.UpdatePosting(ctx, note.TenantID, note.ID, note.JournalEntryID, ""); err != nil {
			s.logger.Error("record credit note posting", slog.String("tenant", note.TenantID), slog.String("credit_note", note.Number), slog.Any("error", err))
		}
		return IssueResult{CreditNote: note}, nil
	}
	if shared.IsRejection(res.Err) {
		if err := s.cancelUnposted(ctx, note); err != nil {
			s.logger.Error("cancel rejected credit note", slog.String("credit_note", note.Number), slog.Any("error", err))
		}
		return IssueResult{}, res.Err
	}
	postErr := shared.WrapLedgerPostError("credit note", res.Err)
	note.PostingError = postErr.Message
	if err := s.repo.UpdatePosting(ctx, note.TenantID, note.ID, nil, postErr.Message); err != nil {
		s.logger.Error("record credit note posting error", slog.String("credit_note", note.Number), slog.Any("error", err))
	}
	s.logger.Warn("credit note saved with journal posting pending",
		slog.String("tenant", note.TenantID),
		slog.String("credit_note", note.Number),
		slog.String("entry_type", string(journals.EntryTypeCreditNote)),
		slog.Any("error", res.Err))
	return IssueResult{CreditNote: note, PostError: postErr}, nil
}

// postingFor reverses the revenue and tax of the credited lines against
// receivables, or against refund payable once the invoice is paid.
func postingFor(note CreditNote) journals.PostingInput {
	lines := []journals.PostingLineInput{
		{AccountCode: accounts.CodeSalesRevenue, Debit: note.Subtotal, Description: "Credit note " + note.Number},
	}
	for _, tax := range []struct {
		code   string
		amount decimal.Decimal
	}{
		{accounts.CodeCGSTPayable, note.CGST},
		{accounts.CodeSGSTPayable, note.SGST},
		{accounts.CodeIGSTPayable, note.IGST},
	} {
		if tax.amount.IsPositive() {
			lines = append(lines, journals.PostingLineInput{AccountCode: tax.code, Debit: tax.amount})
		}
	}
	counter := accounts.CodeAccountsReceivable
	if note.Refund {
		counter = accounts.CodeRefundPayable
	}
	lines = append(lines, journals.PostingLineInput{AccountCode: counter, Credit: note.Total})
	return journals.PostingInput{
		TenantID:    note.TenantID,
		Date:        note.Date,
		Description: fmt.Sprintf("Credit note %s against %s: %s", note.Number, note.InvoiceNumber, note.Reason),
		Type:        journals.EntryTypeCreditNote,
		Source:      journals.SourceRef{Kind: SourceKind, ID: note.ID.String()},
		CreatedBy:   note.CreatedBy,
		Lines:       lines,
	}
}

func (s *Service) cancelUnposted(ctx context.Context, note CreditNote) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.MarkCancelled(ctx, note.TenantID, note.ID, s.now().UTC())
	})
}

// Cancel reverses the note's journal entry, if any, and frees its amount
// under the invoice ceiling.
func (s *Service) Cancel(ctx context.Context, tenantID string, id uuid.UUID, actorID string) (CreditNote, error) {
	if strings.TrimSpace(tenantID) == "" {
		return CreditNote{}, shared.ErrTenantRequired
	}
	note, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return CreditNote{}, err
	}
	if note.Status == StatusCancelled {
		return CreditNote{}, ErrAlreadyCancelled
	}

	entryID := note.JournalEntryID
	if entryID == nil {
		// an unknown outcome may have posted without the note hearing about it
		entry, err := s.ledger.FindBySource(ctx, tenantID, journals.SourceRef{Kind: SourceKind, ID: note.ID.String()}, journals.EntryTypeCreditNote)
		switch {
		case err == nil:
			entryID = &entry.ID
		case !errors.Is(err, shared.ErrJournalNotFound):
			return CreditNote{}, err
		}
	}
	if entryID != nil {
		_, err := s.ledger.ReverseEntry(ctx, journals.ReverseInput{
			TenantID: tenantID,
			EntryID:  *entryID,
			Reason:   fmt.Sprintf("Cancellation of credit note %s", note.Number),
			ActorID:  actorID,
		})
		if err != nil && !errors.Is(err, shared.ErrAlreadyReversed) {
			return CreditNote{}, err
		}
	}

	at := s.now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockInvoice(ctx, tenantID, note.InvoiceID); err != nil {
			return err
		}
		return tx.MarkCancelled(ctx, tenantID, id, at)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyCancelled) {
			return CreditNote{}, err
		}
		return CreditNote{}, fmt.Errorf("%w: cancel credit note: %w", shared.ErrStorageUnavailable, err)
	}
	note.Status, note.UpdatedAt = StatusCancelled, at
	s.logger.Info("credit note cancelled", slog.String("tenant", tenantID), slog.String("credit_note", note.Number))
	return note, nil
}

// Get returns one credit note with lines.
func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (CreditNote, error) {
	if strings.TrimSpace(tenantID) == "" {
		return CreditNote{}, shared.ErrTenantRequired
	}
	return s.repo.Get(ctx, tenantID, id)
}

// List returns notes raised against an invoice, oldest first.
func (s *Service) List(ctx context.Context, tenantID string, invoiceID uuid.UUID) ([]CreditNote, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.ListByInvoice(ctx, tenantID, invoiceID)
}

// RepostPending retries posting for issued notes still marked unposted and
// returns how many were posted.
func (s *Service) RepostPending(ctx context.Context, limit int) (int, error) {
	notes, err := s.repo.ListUnposted(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("%w: list unposted credit notes: %w", shared.ErrStorageUnavailable, err)
	}
	posted := 0
	for _, note := range notes {
		res, err := s.post(ctx, note)
		if err != nil {
			s.logger.Error("repost credit note rejected", slog.String("credit_note", note.Number), slog.Any("error", err))
			continue
		}
		if res.CreditNote.Posted {
			posted++
		}
	}
	return posted, nil
}
