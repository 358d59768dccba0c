package ar

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/platform/db"
)

// RepositoryPort defines data access methods for AR.
type RepositoryPort interface {
	InsertInvoice(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, tenantID string, id uuid.UUID) (Invoice, error)
	ListInvoices(ctx context.Context, tenantID string, limit int) ([]Invoice, error)
	UpdateInvoicePosting(ctx context.Context, tenantID string, id uuid.UUID, entryID *uuid.UUID, postingError string) error
	VoidInvoice(ctx context.Context, tenantID string, id uuid.UUID) error
	ListPayments(ctx context.Context, tenantID string, invoiceID uuid.UUID) ([]Payment, error)
	UpdatePaymentPosting(ctx context.Context, tenantID string, id uuid.UUID, entryID *uuid.UUID, postingError string) error
	ListUnpostedInvoices(ctx context.Context, limit int) ([]Invoice, error)
	ListUnpostedPayments(ctx context.Context, limit int) ([]Payment, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the settlement writes that must share a transaction.
type TxRepository interface {
	GetInvoiceForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (Invoice, error)
	InsertPayment(ctx context.Context, p Payment) error
	UpdateInvoiceSettlement(ctx context.Context, tenantID string, id uuid.UUID, amountPaid decimal.Decimal, status InvoiceStatus) error
}

// Repository provides PostgreSQL backed persistence for AR.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `id, tenant_id, number, customer_name, invoice_date, treatment, subtotal, cgst, sgst, igst,
grand_total, amount_paid, status, posted, journal_entry_id, posting_error, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.Number, &inv.CustomerName, &inv.Date, &inv.Treatment,
		&inv.Subtotal, &inv.CGST, &inv.SGST, &inv.IGST, &inv.GrandTotal, &inv.AmountPaid, &inv.Status,
		&inv.Posted, &inv.JournalEntryID, &inv.PostingError, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, err
}

const paymentColumns = `id, tenant_id, invoice_id, number, amount, method, paid_at, posted, journal_entry_id,
posting_error, created_by, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.TenantID, &p.InvoiceID, &p.Number, &p.Amount, &p.Method, &p.PaidAt, &p.Posted,
		&p.JournalEntryID, &p.PostingError, &p.CreatedBy, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

// InsertInvoice stores the header and lines in one transaction.
func (r *Repository) InsertInvoice(ctx context.Context, inv Invoice) error {
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO invoices (`+invoiceColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
			inv.ID, inv.TenantID, inv.Number, inv.CustomerName, inv.Date, string(inv.Treatment),
			inv.Subtotal, inv.CGST, inv.SGST, inv.IGST, inv.GrandTotal, inv.AmountPaid, string(inv.Status),
			inv.Posted, inv.JournalEntryID, inv.PostingError, inv.CreatedBy, inv.CreatedAt, inv.UpdatedAt)
		if err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, line := range inv.Lines {
			batch.Queue(`INSERT INTO invoice_lines (invoice_id, line_no, name, quantity, rate, tax_rate, amount, tax, cgst, sgst, igst)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
				inv.ID, line.LineNo, line.Name, line.Quantity, line.Rate, line.TaxRate,
				line.Amount, line.Tax, line.CGST, line.SGST, line.IGST)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// GetInvoice loads an invoice with its lines.
func (r *Repository) GetInvoice(ctx context.Context, tenantID string, id uuid.UUID) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		return Invoice{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT line_no, name, quantity, rate, tax_rate, amount, tax, cgst, sgst, igst
FROM invoice_lines WHERE invoice_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.LineNo, &line.Name, &line.Quantity, &line.Rate, &line.TaxRate,
			&line.Amount, &line.Tax, &line.CGST, &line.SGST, &line.IGST); err != nil {
			return Invoice{}, err
		}
		inv.Lines = append(inv.Lines, line)
	}
	return inv, rows.Err()
}

// ListInvoices returns the newest invoices first, without lines.
func (r *Repository) ListInvoices(ctx context.Context, tenantID string, limit int) ([]Invoice, error) {
	return r.queryInvoices(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id=$1
ORDER BY invoice_date DESC, number DESC LIMIT $2`, tenantID, clampLimit(limit))
}

// ListUnpostedInvoices returns invoices of every tenant still awaiting a journal entry.
func (r *Repository) ListUnpostedInvoices(ctx context.Context, limit int) ([]Invoice, error) {
	return r.queryInvoices(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE NOT posted AND status <> 'void'
ORDER BY created_at LIMIT $1`, clampLimit(limit))
}

func (r *Repository) queryInvoices(ctx context.Context, sql string, args ...any) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// UpdateInvoicePosting records the posting outcome.
func (r *Repository) UpdateInvoicePosting(ctx context.Context, tenantID string, id uuid.UUID, entryID *uuid.UUID, postingError string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET posted = $3 IS NOT NULL, journal_entry_id = $3, posting_error = $4,
updated_at = NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, entryID, postingError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// VoidInvoice marks an invoice void.
func (r *Repository) VoidInvoice(ctx context.Context, tenantID string, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET status='void', updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// ListPayments returns receipts for an invoice in payment order.
func (r *Repository) ListPayments(ctx context.Context, tenantID string, invoiceID uuid.UUID) ([]Payment, error) {
	return r.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE tenant_id=$1 AND invoice_id=$2
ORDER BY paid_at, number`, tenantID, invoiceID)
}

// ListUnpostedPayments returns receipts of every tenant awaiting a journal entry.
func (r *Repository) ListUnpostedPayments(ctx context.Context, limit int) ([]Payment, error) {
	return r.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE NOT posted ORDER BY created_at LIMIT $1`, clampLimit(limit))
}

func (r *Repository) queryPayments(ctx context.Context, sql string, args ...any) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePaymentPosting records the posting outcome of a receipt.
func (r *Repository) UpdatePaymentPosting(ctx context.Context, tenantID string, id uuid.UUID, entryID *uuid.UUID, postingError string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE payments SET posted = $3 IS NOT NULL, journal_entry_id = $3, posting_error = $4
WHERE tenant_id=$1 AND id=$2`, tenantID, id, entryID, postingError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// WithTx runs fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (Invoice, error) {
	return scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO payments (`+paymentColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.TenantID, p.InvoiceID, p.Number, p.Amount, string(p.Method), p.PaidAt, p.Posted,
		p.JournalEntryID, p.PostingError, p.CreatedBy, p.CreatedAt)
	return err
}

func (r *txRepository) UpdateInvoiceSettlement(ctx context.Context, tenantID string, id uuid.UUID, amountPaid decimal.Decimal, status InvoiceStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoices SET amount_paid=$3, status=$4, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`,
		tenantID, id, amountPaid, string(status))
	return err
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
