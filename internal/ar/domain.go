package ar

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/gst"
	"github.com/battwheels/ledgercore/internal/accounting/shared"
)

// InvoiceStatus enumerates invoice settlement states.
type InvoiceStatus string

const (
	StatusOutstanding   InvoiceStatus = "outstanding"
	StatusPartiallyPaid InvoiceStatus = "partially_paid"
	StatusPaid          InvoiceStatus = "paid"
	StatusVoid          InvoiceStatus = "void"
)

// PaymentMethod selects the asset account a receipt lands in.
type PaymentMethod string

const (
	MethodCash PaymentMethod = "cash"
	MethodBank PaymentMethod = "bank"
)

var (
	// ErrInvoiceNotFound indicates the invoice does not exist for the tenant.
	ErrInvoiceNotFound = errors.New("ar: invoice not found")
	// ErrInvoiceVoid rejects operations on a void invoice.
	ErrInvoiceVoid = errors.New("ar: invoice is void")
	// ErrOverpayment rejects receipts larger than the outstanding amount.
	ErrOverpayment = errors.New("ar: payment exceeds outstanding amount")
	// ErrPaymentNotFound indicates the payment does not exist.
	ErrPaymentNotFound = errors.New("ar: payment not found")
)

// InvoiceLine stores a priced item.
type InvoiceLine struct {
	LineNo int
	gst.Line
}

// Invoice is the ledger-facing slice of a sales invoice.
type Invoice struct {
	ID             uuid.UUID
	TenantID       string
	Number         string
	CustomerName   string
	Date           time.Time
	Treatment      gst.Treatment
	Lines          []InvoiceLine
	Subtotal       decimal.Decimal
	CGST           decimal.Decimal
	SGST           decimal.Decimal
	IGST           decimal.Decimal
	GrandTotal     decimal.Decimal
	AmountPaid     decimal.Decimal
	Status         InvoiceStatus
	Posted         bool
	JournalEntryID *uuid.UUID
	PostingError   string
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Outstanding returns the unpaid remainder.
func (i Invoice) Outstanding() decimal.Decimal {
	return i.GrandTotal.Sub(i.AmountPaid)
}

// GST returns the sum of all tax components.
func (i Invoice) GST() decimal.Decimal {
	return i.CGST.Add(i.SGST).Add(i.IGST)
}

// Payment is a receipt against one invoice.
type Payment struct {
	ID             uuid.UUID
	TenantID       string
	InvoiceID      uuid.UUID
	Number         string
	Amount         decimal.Decimal
	Method         PaymentMethod
	PaidAt         time.Time
	Posted         bool
	JournalEntryID *uuid.UUID
	PostingError   string
	CreatedBy      string
	CreatedAt      time.Time
}

// IssueInvoiceInput carries a new invoice request.
type IssueInvoiceInput struct {
	TenantID     string
	CustomerName string
	Date         time.Time
	InterState   bool
	Items        []gst.Item
	ActorID      string
}

// PaymentInput carries a receipt request.
type PaymentInput struct {
	TenantID  string
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
	Method    PaymentMethod
	PaidAt    time.Time
	ActorID   string
}

// InvoiceResult is returned by IssueInvoice. PostError is set when the invoice
// was saved but its journal entry is pending.
type InvoiceResult struct {
	Invoice   Invoice
	PostError *shared.LedgerPostError
}

// PaymentResult is returned by RecordPayment.
type PaymentResult struct {
	Payment   Payment
	Invoice   Invoice
	PostError *shared.LedgerPostError
}
