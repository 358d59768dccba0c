package ar

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/battwheels/ledgercore/internal/creditnotes"
)

// CreditSource exposes invoices to the credit note service.
type CreditSource struct {
	repo RepositoryPort
}

func NewCreditSource(repo RepositoryPort) *CreditSource {
	return &CreditSource{repo: repo}
}

// InvoiceSnapshot implements creditnotes.InvoiceSource.
func (c *CreditSource) InvoiceSnapshot(ctx context.Context, tenantID string, id uuid.UUID) (creditnotes.InvoiceSnapshot, error) {
	inv, err := c.repo.GetInvoice(ctx, tenantID, id)
	if errors.Is(err, ErrInvoiceNotFound) {
		return creditnotes.InvoiceSnapshot{}, creditnotes.ErrInvoiceNotFound
	}
	if err != nil {
		return creditnotes.InvoiceSnapshot{}, err
	}
	return creditnotes.InvoiceSnapshot{
		ID:         inv.ID,
		TenantID:   inv.TenantID,
		Number:     inv.Number,
		GrandTotal: inv.GrandTotal,
		CGST:       inv.CGST,
		SGST:       inv.SGST,
		IGST:       inv.IGST,
		Paid:       inv.Status == StatusPaid,
		Void:       inv.Status == StatusVoid,
	}, nil
}

var _ creditnotes.InvoiceSource = (*CreditSource)(nil)
