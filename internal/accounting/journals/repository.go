package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/accounts"
	"github.com/battwheels/ledgercore/internal/accounting/sequences"
	"github.com/battwheels/ledgercore/internal/accounting/shared"
	"github.com/battwheels/ledgercore/internal/platform/db"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	Get(ctx context.Context, tenantID string, id uuid.UUID) (JournalEntry, error)
	FindByKey(ctx context.Context, tenantID string, key uuid.UUID) (JournalEntry, error)
	FindBySource(ctx context.Context, tenantID string, ref SourceRef, entryType EntryType) (JournalEntry, error)
	List(ctx context.Context, tenantID string, filter ListFilter) ([]JournalEntry, error)
	MissingAccounts(ctx context.Context, tenantID string, codes []string) ([]string, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	FindByKey(ctx context.Context, tenantID string, key uuid.UUID) (JournalEntry, error)
	LockAccounts(ctx context.Context, tenantID string, codes []string) (map[string]accounts.AccountType, error)
	NextNumber(ctx context.Context, tenantID string) (string, error)
	InsertEntry(ctx context.Context, entry JournalEntry) error
	InsertLines(ctx context.Context, entry JournalEntry) error
	ApplyBalanceDelta(ctx context.Context, tenantID, code string, delta decimal.Decimal) error
	GetEntryForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (JournalEntry, error)
	MarkReversed(ctx context.Context, tenantID string, id, reversedBy uuid.UUID) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const entryColumns = `id, number, tenant_id, entry_date, description, entry_type, source_kind, source_id,
idempotency_key, posted, reversed, reversed_by, reversal_of, created_by, created_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var (
		e                 JournalEntry
		sourceKind, srcID *string
		key               *uuid.UUID
	)
	err := row.Scan(&e.ID, &e.Number, &e.TenantID, &e.Date, &e.Description, &e.Type, &sourceKind, &srcID,
		&key, &e.Posted, &e.Reversed, &e.ReversedBy, &e.ReversalOf, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	if sourceKind != nil && srcID != nil {
		e.Source = SourceRef{Kind: *sourceKind, ID: *srcID}
	}
	if key != nil {
		e.IdempotencyKey = *key
	}
	return e, nil
}

func loadLines(ctx context.Context, q queryer, entryID uuid.UUID) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT line_no, account_code, debit, credit, description
FROM journal_lines WHERE entry_id=$1 ORDER BY line_no ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.LineNo, &line.AccountCode, &line.Debit, &line.Credit, &line.Description); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func getWithLines(ctx context.Context, q queryer, query string, args ...any) (JournalEntry, error) {
	entry, err := scanEntry(q.QueryRow(ctx, query, args...))
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, q, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *repository) Get(ctx context.Context, tenantID string, id uuid.UUID) (JournalEntry, error) {
	return getWithLines(ctx, r.db, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenantID, id)
}

func (r *repository) FindByKey(ctx context.Context, tenantID string, key uuid.UUID) (JournalEntry, error) {
	return getWithLines(ctx, r.db, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND idempotency_key=$2`, tenantID, key)
}

// FindBySource returns the earliest entry of entryType linked to ref.
func (r *repository) FindBySource(ctx context.Context, tenantID string, ref SourceRef, entryType EntryType) (JournalEntry, error) {
	return getWithLines(ctx, r.db, `SELECT `+entryColumns+` FROM journal_entries
WHERE tenant_id=$1 AND source_kind=$2 AND source_id=$3 AND entry_type=$4
ORDER BY created_at ASC, number ASC LIMIT 1`, tenantID, ref.Kind, ref.ID, string(entryType))
}

func (r *repository) List(ctx context.Context, tenantID string, filter ListFilter) ([]JournalEntry, error) {
	clauses := []string{"tenant_id=$1"}
	args := []any{tenantID}
	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, fmt.Sprintf("entry_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, fmt.Sprintf("entry_date <= $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		clauses = append(clauses, fmt.Sprintf("entry_type = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM journal_entries WHERE %s ORDER BY entry_date DESC, number DESC LIMIT $%d`,
		entryColumns, strings.Join(clauses, " AND "), len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) MissingAccounts(ctx context.Context, tenantID string, codes []string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT c FROM unnest($2::text[]) AS c
WHERE NOT EXISTS (SELECT 1 FROM accounts a WHERE a.tenant_id=$1 AND a.code=c) ORDER BY c`, tenantID, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var missing []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		missing = append(missing, code)
	}
	return missing, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) FindByKey(ctx context.Context, tenantID string, key uuid.UUID) (JournalEntry, error) {
	return getWithLines(ctx, r.tx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND idempotency_key=$2`, tenantID, key)
}

// LockAccounts takes row locks in code order so concurrent postings touching
// the same accounts cannot deadlock.
func (r *txRepository) LockAccounts(ctx context.Context, tenantID string, codes []string) (map[string]accounts.AccountType, error) {
	rows, err := r.tx.Query(ctx, `SELECT code, type FROM accounts WHERE tenant_id=$1 AND code = ANY($2)
ORDER BY code FOR UPDATE`, tenantID, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	types := make(map[string]accounts.AccountType, len(codes))
	for rows.Next() {
		var code string
		var typ accounts.AccountType
		if err := rows.Scan(&code, &typ); err != nil {
			return nil, err
		}
		types[code] = typ
	}
	return types, rows.Err()
}

func (r *txRepository) NextNumber(ctx context.Context, tenantID string) (string, error) {
	value, err := sequences.Increment(ctx, r.tx, tenantID, sequences.KindJournal)
	if err != nil {
		return "", err
	}
	return sequences.Format(sequences.KindJournal, value), nil
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) error {
	var sourceKind, sourceID, key any
	if !entry.Source.IsZero() {
		sourceKind, sourceID = entry.Source.Kind, entry.Source.ID
	}
	if entry.IdempotencyKey != uuid.Nil {
		key = entry.IdempotencyKey
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO journal_entries (id, number, tenant_id, entry_date, description, entry_type,
source_kind, source_id, idempotency_key, posted, reversal_of, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		entry.ID, entry.Number, entry.TenantID, entry.Date, entry.Description, string(entry.Type),
		sourceKind, sourceID, key, entry.Posted, entry.ReversalOf, entry.CreatedBy, entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "uq_journal_entries_idempotency" {
			return shared.ErrSourceAlreadyLinked
		}
		return err
	}
	return nil
}

func (r *txRepository) InsertLines(ctx context.Context, entry JournalEntry) error {
	rows := make([][]any, 0, len(entry.Lines))
	for _, line := range entry.Lines {
		rows = append(rows, []any{entry.ID, line.LineNo, entry.TenantID, line.AccountCode, db.Numeric(line.Debit), db.Numeric(line.Credit), line.Description})
	}
	_, err := r.tx.CopyFrom(ctx, pgx.Identifier{"journal_lines"},
		[]string{"entry_id", "line_no", "tenant_id", "account_code", "debit", "credit", "description"},
		pgx.CopyFromRows(rows))
	return err
}

func (r *txRepository) ApplyBalanceDelta(ctx context.Context, tenantID, code string, delta decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $3, updated_at = NOW() WHERE tenant_id=$1 AND code=$2`,
		tenantID, code, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", shared.ErrAccountNotFound, code)
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (JournalEntry, error) {
	return getWithLines(ctx, r.tx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
}

func (r *txRepository) MarkReversed(ctx context.Context, tenantID string, id, reversedBy uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `UPDATE journal_entries SET reversed=TRUE, reversed_by=$3 WHERE tenant_id=$1 AND id=$2 AND NOT reversed`,
		tenantID, id, reversedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAlreadyReversed
	}
	return nil
}
