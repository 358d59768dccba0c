package ar

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

// Source kinds recorded on journal entries posted by this package.
const (
	SourceKindInvoice = "invoice"
	SourceKindPayment = "payment"
)

// LedgerPort is the slice of the posting engine AR depends on.
type LedgerPort interface {
	Attempt(ctx context.Context, input journals.PostingInput) journals.PostingResult
	Validate(ctx context.Context, input journals.PostingInput) error
}

// NumberPort issues document numbers.
type NumberPort interface {
	Next(ctx context.Context, tenantID string, kind sequences.Kind) (string, error)
}

// ChartPort bootstraps the system chart before first use.
type ChartPort interface {
	EnsureSystemAccounts(ctx context.Context, tenantID string) error
}

// Service handles AR business logic.
type Service struct {
	repo    RepositoryPort
	ledger  LedgerPort
	numbers NumberPort
	chart   ChartPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, ledger LedgerPort, numbers NumberPort, chart ChartPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, numbers: numbers, chart: chart, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// IssueInvoice prices, numbers and stores an invoice, then posts it. A
// recoverable posting failure leaves the invoice saved with posted=false.
func (s *Service) IssueInvoice(ctx context.Context, input IssueInvoiceInput) (InvoiceResult, error) {
	if strings.TrimSpace(input.TenantID) == "" {
		return InvoiceResult{}, shared.ErrTenantRequired
	}
	if strings.TrimSpace(input.CustomerName) == "" {
		return InvoiceResult{}, fmt.Errorf("%w: customer name required", shared.ErrInvalidInput)
	}
	if len(input.Items) == 0 {
		return InvoiceResult{}, fmt.Errorf("%w: at least one line item required", shared.ErrInvalidInput)
	}
	for idx, item := range input.Items {
		if err := item.Validate(); err != nil {
			return InvoiceResult{}, fmt.Errorf("line %d: %w", idx, err)
		}
	}
	if err := s.chart.EnsureSystemAccounts(ctx, input.TenantID); err != nil {
		return InvoiceResult{}, err
	}

	treatment := gst.TreatmentIntraState
	if input.InterState {
		treatment = gst.TreatmentInterState
	}
	summary := gst.Summarize(input.Items, treatment)
	now := s.now().UTC()
	date := input.Date
	if date.IsZero() {
		date = now
	}
	inv := Invoice{
		ID:           uuid.New(),
		TenantID:     input.TenantID,
		CustomerName: input.CustomerName,
		Date:         dateOnly(date),
		Treatment:    treatment,
		Subtotal:     summary.Subtotal,
		CGST:         summary.CGST,
		SGST:         summary.SGST,
		IGST:         summary.IGST,
		GrandTotal:   summary.Total,
		Status:       StatusOutstanding,
		CreatedBy:    input.ActorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for idx, line := range summary.Lines {
		inv.Lines = append(inv.Lines, InvoiceLine{LineNo: idx + 1, Line: line})
	}
	if err := s.ledger.Validate(ctx, invoicePosting(inv)); err != nil {
		return InvoiceResult{}, err
	}
	number, err := s.numbers.Next(ctx, input.TenantID, sequences.KindInvoice)
	if err != nil {
		return InvoiceResult{}, err
	}
	inv.Number = number
	if err := s.repo.InsertInvoice(ctx, inv); err != nil {
		return InvoiceResult{}, fmt.Errorf("%w: save invoice: %w", shared.ErrStorageUnavailable, err)
	}

	return s.postInvoice(ctx, inv)
}

func (s *Service) postInvoice(ctx context.Context, inv Invoice) (InvoiceResult, error) {
	res := s.ledger.Attempt(ctx, invoicePosting(inv))
	if res.Posted {
		inv.Posted, inv.JournalEntryID, inv.PostingError = true, &res.EntryID, ""
		if err := s.repo.UpdateInvoicePosting(ctx, inv.TenantID, inv.ID, inv.JournalEntryID, ""); err != nil {
			s.logger.Error("record invoice posting", slog.String("tenant", inv.TenantID), slog.String("invoice", inv.Number), slog.Any("error", err))
		}
		return InvoiceResult{Invoice: inv}, nil
	}
	if shared.IsRejection(res.Err) {
		// the engine refused a document we built ourselves; nothing is owed
		if err := s.repo.VoidInvoice(ctx, inv.TenantID, inv.ID); err != nil {
			s.logger.Error("void rejected invoice", slog.String("invoice", inv.Number), slog.Any("error", err))
		}
		return InvoiceResult{}, res.Err
	}
	postErr := shared.WrapLedgerPostError("invoice", res.Err)
	inv.PostingError = postErr.Message
	if err := s.repo.UpdateInvoicePosting(ctx, inv.TenantID, inv.ID, nil, postErr.Message); err != nil {
		s.logger.Error("record invoice posting error", slog.String("invoice", inv.Number), slog.Any("error", err))
	}
	s.logger.Warn("invoice saved with journal posting pending",
		slog.String("tenant", inv.TenantID),
		slog.String("invoice", inv.Number),
		slog.String("entry_type", string(journals.EntryTypeSales)),
		slog.Any("error", res.Err))
	return InvoiceResult{Invoice: inv, PostError: postErr}, nil
}

// invoicePosting builds DEBIT receivable / CREDIT revenue and tax components.
func invoicePosting(inv Invoice) journals.PostingInput {
	lines := []journals.PostingLineInput{
		{AccountCode: accounts.CodeAccountsReceivable, Debit: inv.GrandTotal, Description: "Invoice " + inv.Number},
		{AccountCode: accounts.CodeSalesRevenue, Credit: inv.Subtotal},
	}
	for _, tax := range []struct {
		code   string
		amount decimal.Decimal
	}{
		{accounts.CodeCGSTPayable, inv.CGST},
		{accounts.CodeSGSTPayable, inv.SGST},
		{accounts.CodeIGSTPayable, inv.IGST},
	} {
		if tax.amount.IsPositive() {
			lines = append(lines, journals.PostingLineInput{AccountCode: tax.code, Credit: tax.amount})
		}
	}
	return journals.PostingInput{
		TenantID:    inv.TenantID,
		Date:        inv.Date,
		Description: fmt.Sprintf("Invoice %s to %s", inv.Number, inv.CustomerName),
		Type:        journals.EntryTypeSales,
		Source:      journals.SourceRef{Kind: SourceKindInvoice, ID: inv.ID.String()},
		CreatedBy:   inv.CreatedBy,
		Lines:       lines,
	}
}

// RecordPayment settles part or all of an invoice and posts the receipt.
func (s *Service) RecordPayment(ctx context.Context, input PaymentInput) (PaymentResult, error) {
	if strings.TrimSpace(input.TenantID) == "" {
		return PaymentResult{}, shared.ErrTenantRequired
	}
	if !input.Amount.IsPositive() || !shared.HasMinorPrecision(input.Amount) {
		return PaymentResult{}, fmt.Errorf("%w: amount must be positive with at most two decimals", shared.ErrInvalidInput)
	}
	if input.Method != MethodCash && input.Method != MethodBank {
		return PaymentResult{}, fmt.Errorf("%w: method must be cash or bank", shared.ErrInvalidInput)
	}
	if err := s.chart.EnsureSystemAccounts(ctx, input.TenantID); err != nil {
		return PaymentResult{}, err
	}

	now := s.now().UTC()
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	payment := Payment{
		ID:        uuid.New(),
		TenantID:  input.TenantID,
		InvoiceID: input.InvoiceID,
		Amount:    input.Amount,
		Method:    input.Method,
		PaidAt:    paidAt,
		CreatedBy: input.ActorID,
		CreatedAt: now,
	}
	if err := s.ledger.Validate(ctx, paymentPosting(payment, "")); err != nil {
		return PaymentResult{}, err
	}
	number, err := s.numbers.Next(ctx, input.TenantID, sequences.KindPayment)
	if err != nil {
		return PaymentResult{}, err
	}
	payment.Number = number
	var inv Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, input.TenantID, input.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status == StatusVoid {
			return ErrInvoiceVoid
		}
		if input.Amount.GreaterThan(inv.Outstanding()) {
			return fmt.Errorf("%w: outstanding %s", ErrOverpayment, shared.FormatINR(inv.Outstanding()))
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		inv.AmountPaid = inv.AmountPaid.Add(input.Amount)
		inv.Status = settlementStatus(inv)
		return tx.UpdateInvoiceSettlement(ctx, inv.TenantID, inv.ID, inv.AmountPaid, inv.Status)
	})
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) || errors.Is(err, ErrInvoiceVoid) || errors.Is(err, ErrOverpayment) {
			return PaymentResult{}, err
		}
		return PaymentResult{}, fmt.Errorf("%w: record payment: %w", shared.ErrStorageUnavailable, err)
	}

	result := PaymentResult{Invoice: inv}
	result.Payment, result.PostError = s.postPayment(ctx, payment, inv.Number)
	return result, nil
}

func (s *Service) postPayment(ctx context.Context, p Payment, invoiceNumber string) (Payment, *shared.LedgerPostError) {
	res := s.ledger.Attempt(ctx, paymentPosting(p, invoiceNumber))
	if res.Posted {
		p.Posted, p.JournalEntryID, p.PostingError = true, &res.EntryID, ""
		if err := s.repo.UpdatePaymentPosting(ctx, p.TenantID, p.ID, p.JournalEntryID, ""); err != nil {
			s.logger.Error("record payment posting", slog.String("payment", p.Number), slog.Any("error", err))
		}
		return p, nil
	}
	postErr := shared.WrapLedgerPostError("payment", res.Err)
	p.PostingError = postErr.Message
	if err := s.repo.UpdatePaymentPosting(ctx, p.TenantID, p.ID, nil, postErr.Message); err != nil {
		s.logger.Error("record payment posting error", slog.String("payment", p.Number), slog.Any("error", err))
	}
	s.logger.Warn("payment saved with journal posting pending",
		slog.String("tenant", p.TenantID),
		slog.String("payment", p.Number),
		slog.String("entry_type", string(journals.EntryTypePayment)),
		slog.Any("error", res.Err))
	return p, postErr
}

func paymentPosting(p Payment, invoiceNumber string) journals.PostingInput {
	asset := accounts.CodeCash
	if p.Method == MethodBank {
		asset = accounts.CodeBank
	}
	return journals.PostingInput{
		TenantID:    p.TenantID,
		Date:        p.PaidAt,
		Description: fmt.Sprintf("Payment %s against %s", p.Number, invoiceNumber),
		Type:        journals.EntryTypePayment,
		Source:      journals.SourceRef{Kind: SourceKindPayment, ID: p.ID.String()},
		CreatedBy:   p.CreatedBy,
		Lines: []journals.PostingLineInput{
			{AccountCode: asset, Debit: p.Amount},
			{AccountCode: accounts.CodeAccountsReceivable, Credit: p.Amount},
		},
	}
}

func settlementStatus(inv Invoice) InvoiceStatus {
	switch {
	case inv.AmountPaid.IsZero():
		return StatusOutstanding
	case inv.AmountPaid.GreaterThanOrEqual(inv.GrandTotal):
		return StatusPaid
	default:
		return StatusPartiallyPaid
	}
}

// GetInvoice returns an invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, tenantID string, id uuid.UUID) (Invoice, error) {
	if strings.TrimSpace(tenantID) == "" {
		return Invoice{}, shared.ErrTenantRequired
	}
	return s.repo.GetInvoice(ctx, tenantID, id)
}

// ListInvoices returns recent invoices.
func (s *Service) ListInvoices(ctx context.Context, tenantID string, limit int) ([]Invoice, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.ListInvoices(ctx, tenantID, limit)
}

// ListPayments returns receipts recorded against an invoice.
func (s *Service) ListPayments(ctx context.Context, tenantID string, invoiceID uuid.UUID) ([]Payment, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.ListPayments(ctx, tenantID, invoiceID)
}

// RepostPending retries journal posting for saved but unposted invoices and
// payments. Posting is idempotent per document, so a retry after an unknown
// outcome finds the existing entry. It returns how many documents were posted.
func (s *Service) RepostPending(ctx context.Context, limit int) (int, error) {
	invoices, err := s.repo.ListUnpostedInvoices(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("%w: list unposted invoices: %w", shared.ErrStorageUnavailable, err)
	}
	posted := 0
	for _, inv := range invoices {
		res, err := s.postInvoice(ctx, inv)
		if err != nil {
			s.logger.Error("repost invoice rejected", slog.String("invoice", inv.Number), slog.Any("error", err))
			continue
		}
		if res.Invoice.Posted {
			posted++
		}
	}
	payments, err := s.repo.ListUnpostedPayments(ctx, limit)
	if err != nil {
		return posted, fmt.Errorf("%w: list unposted payments: %w", shared.ErrStorageUnavailable, err)
	}
	for _, p := range payments {
		inv, err := s.repo.GetInvoice(ctx, p.TenantID, p.InvoiceID)
		if err != nil {
			s.logger.Error("repost payment: load invoice", slog.String("payment", p.Number), slog.Any("error", err))
			continue
		}
		if updated, postErr := s.postPayment(ctx, p, inv.Number); postErr == nil && updated.Posted {
			posted++
		}
	}
	return posted, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
