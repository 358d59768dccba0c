package creditnotes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/platform/db"
	"github.com/battwheels/ledgercore/internal/shared"
)

// Repository is the credit note store.
type Repository interface {
	Get(ctx context.Context, tenantID string, id uuid.UUID) (CreditNote, error)
	ListByInvoice(ctx context.Context, tenantID string, invoiceID uuid.UUID) ([]CreditNote, error)
	ListUnposted(ctx context.Context, limit int) ([]CreditNote, error)
	UpdatePosting(ctx context.Context, tenantID string, id uuid.UUID, entryID *uuid.UUID, postingError string) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository holds the writes that run under the per-invoice ceiling lock.
type TxRepository interface {
	LockInvoice(ctx context.Context, tenantID string, invoiceID uuid.UUID) error
	CreditedTotal(ctx context.Context, tenantID string, invoiceID uuid.UUID) (decimal.Decimal, error)
	Insert(ctx context.Context, note CreditNote) error
	GetForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (CreditNote, error)
	MarkCancelled(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres-backed store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const noteColumns = `id, tenant_id, number, invoice_id, invoice_number, reason, note_date, treatment, subtotal,
cgst, sgst, igst, gst_amount, total, refund, status, posted, journal_entry_id, posting_error, created_by,
created_at, updated_at`

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanNote(row pgx.Row) (CreditNote, error) {
	var n CreditNote
	err := row.Scan(&n.ID, &n.TenantID, &n.Number, &n.InvoiceID, &n.InvoiceNumber, &n.Reason, &n.Date,
		&n.Treatment, &n.Subtotal, &n.CGST, &n.SGST, &n.IGST, &n.GSTAmount, &n.Total, &n.Refund, &n.Status,
		&n.Posted, &n.JournalEntryID, &n.PostingError, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CreditNote{}, ErrNotFound
	}
	return n, err
}

func loadLines(ctx context.Context, q queryer, note *CreditNote) error {
	rows, err := q.Query(ctx, `SELECT line_no, name, quantity, rate, tax_rate, amount, tax, cgst, sgst, igst
FROM credit_note_lines WHERE credit_note_id=$1 ORDER BY line_no`, note.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.LineNo, &line.Name, &line.Quantity, &line.Rate, &line.TaxRate,
			&line.Amount, &line.Tax, &line.CGST, &line.SGST, &line.IGST); err != nil {
			return err
		}
		note.Lines = append(note.Lines, line)
	}
	return rows.Err()
}

func (r *pgRepository) Get(ctx context.Context, tenantID string, id uuid.UUID) (CreditNote, error) {
	note, err := scanNote(r.pool.QueryRow(ctx, `SELECT `+noteColumns+` FROM credit_notes WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		return CreditNote{}, err
	}
	return note, loadLines(ctx, r.pool, &note)
}

func (r *pgRepository) ListByInvoice(ctx context.Context, tenantID string, invoiceID uuid.UUID) ([]CreditNote, error) {
	return r.query(ctx, `SELECT `+noteColumns+` FROM credit_notes WHERE tenant_id=$1 AND invoice_id=$2
ORDER BY created_at, number`, tenantID, invoiceID)
}

func (r *pgRepository) ListUnposted(ctx context.Context, limit int) ([]CreditNote, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.query(ctx, `SELECT `+noteColumns+` FROM credit_notes WHERE NOT posted AND status='issued'
ORDER BY created_at LIMIT $1`, limit)
}

func (r *pgRepository) query(ctx context.Context, sql string, args ...any) ([]CreditNote, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CreditNote
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, note)
	}
	return out, rows.Err()
}

func (r *pgRepository) UpdatePosting(ctx context.Context, tenantID string, id uuid.UUID, entryID *uuid.UUID, postingError string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE credit_notes SET posted = $3 IS NOT NULL, journal_entry_id=$3, posting_error=$4,
updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, entryID, postingError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

// LockInvoice serialises ceiling checks for one invoice until commit.
func (t *pgTx) LockInvoice(ctx context.Context, tenantID string, invoiceID uuid.UUID) error {
	id := shared.AdvisoryLockID(shared.LedgerLockKey("credit_note", tenantID, invoiceID.String()))
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, id)
	return err
}

func (t *pgTx) CreditedTotal(ctx context.Context, tenantID string, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(total), 0) FROM credit_notes
WHERE tenant_id=$1 AND invoice_id=$2 AND status <> 'cancelled'`, tenantID, invoiceID).Scan(&total)
	return total, err
}

func (t *pgTx) Insert(ctx context.Context, n CreditNote) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO credit_notes (`+noteColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		n.ID, n.TenantID, n.Number, n.InvoiceID, n.InvoiceNumber, n.Reason, n.Date, string(n.Treatment),
		n.Subtotal, n.CGST, n.SGST, n.IGST, n.GSTAmount, n.Total, n.Refund, string(n.Status), n.Posted,
		n.JournalEntryID, n.PostingError, n.CreatedBy, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return err
	}
	rows := make([][]any, 0, len(n.Lines))
	for _, line := range n.Lines {
		rows = append(rows, []any{n.ID, line.LineNo, line.Name, db.Numeric(line.Quantity), db.Numeric(line.Rate),
			db.Numeric(line.TaxRate), db.Numeric(line.Amount), db.Numeric(line.Tax), db.Numeric(line.CGST),
			db.Numeric(line.SGST), db.Numeric(line.IGST)})
	}
	_, err = t.tx.CopyFrom(ctx, pgx.Identifier{"credit_note_lines"},
		[]string{"credit_note_id", "line_no", "name", "quantity", "rate", "tax_rate", "amount", "tax", "cgst", "sgst", "igst"},
		pgx.CopyFromRows(rows))
	return err
}

func (t *pgTx) GetForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (CreditNote, error) {
	note, err := scanNote(t.tx.QueryRow(ctx, `SELECT `+noteColumns+` FROM credit_notes WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
	if err != nil {
		return CreditNote{}, err
	}
	return note, loadLines(ctx, t.tx, &note)
}

func (t *pgTx) MarkCancelled(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE credit_notes SET status='cancelled', updated_at=$3
WHERE tenant_id=$1 AND id=$2 AND status='issued'`, tenantID, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyCancelled
	}
	return nil
}
