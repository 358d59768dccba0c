package creditnotes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/gst"
	"github.com/battwheels/ledgercore/internal/accounting/shared"
)

// Status of a credit note.
type Status string

const (
	StatusIssued    Status = "issued"
	StatusCancelled Status = "cancelled"
)

var (
	ErrNotFound         = errors.New("creditnotes: credit note not found")
	ErrInvoiceNotFound  = errors.New("creditnotes: invoice not found")
	ErrInvoiceVoid      = errors.New("creditnotes: invoice is void")
	ErrAlreadyCancelled = errors.New("creditnotes: credit note already cancelled")
)

// InvoiceSnapshot is what a credit note needs to know about the invoice it
// credits.
type InvoiceSnapshot struct {
	ID         uuid.UUID
	TenantID   string
	Number     string
	GrandTotal decimal.Decimal
	CGST       decimal.Decimal
	SGST       decimal.Decimal
	IGST       decimal.Decimal
	Paid       bool
	Void       bool
}

// Treatment mirrors the GST treatment the invoice was raised under.
func (s InvoiceSnapshot) Treatment() gst.Treatment {
	return gst.Classify(s.CGST, s.SGST, s.IGST)
}

// InvoiceSource loads invoice snapshots. It returns ErrInvoiceNotFound for
// unknown invoices.
type InvoiceSource interface {
	InvoiceSnapshot(ctx context.Context, tenantID string, id uuid.UUID) (InvoiceSnapshot, error)
}

// Line is one credited item.
type Line struct {
	LineNo int
	gst.Line
}

// CreditNote reduces what a customer owes on an invoice, or records a refund
// once the invoice has been paid.
type CreditNote struct {
	ID             uuid.UUID
	TenantID       string
	Number         string
	InvoiceID      uuid.UUID
	InvoiceNumber  string
	Reason         string
	Date           time.Time
	Treatment      gst.Treatment
	Lines          []Line
	Subtotal       decimal.Decimal
	CGST           decimal.Decimal
	SGST           decimal.Decimal
	IGST           decimal.Decimal
	GSTAmount      decimal.Decimal
	Total          decimal.Decimal
	Refund         bool
	Status         Status
	Posted         bool
	JournalEntryID *uuid.UUID
	PostingError   string
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IssueInput carries a credit note request.
type IssueInput struct {
	TenantID  string
	InvoiceID uuid.UUID
	Reason    string
	Date      time.Time
	Items     []gst.Item
	ActorID   string
}

// IssueResult returns the stored note and, when journal posting did not
// complete, the reason.
type IssueResult struct {
	CreditNote CreditNote
	PostError  *shared.LedgerPostError
}
