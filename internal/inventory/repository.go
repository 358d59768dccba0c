package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/battwheels/ledgercore/internal/platform/db"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBalance(ctx context.Context, tenantID, itemCode string) (Balance, error)
	ListMovements(ctx context.Context, tenantID, itemCode string, limit int) ([]Movement, error)
	UpdateMovementPosting(ctx context.Context, tenantID string, id uuid.UUID, posted bool, postingError string) error
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, tenantID, itemCode string) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, m Movement) error
}

// ErrBalanceNotFound indicates missing balance row.
var ErrBalanceNotFound = errors.New("inventory balance not found")

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a read-committed transaction; the
// balance row lock serialises movements of one item.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const balanceColumns = `tenant_id, item_code, item_name, qty, avg_cost, updated_at`

func scanBalance(row pgx.Row) (Balance, error) {
	var b Balance
	err := row.Scan(&b.TenantID, &b.ItemCode, &b.ItemName, &b.Qty, &b.AvgCost, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, ErrBalanceNotFound
	}
	return b, err
}

// GetBalance returns the current balance of an item.
func (r *Repository) GetBalance(ctx context.Context, tenantID, itemCode string) (Balance, error) {
	return scanBalance(r.pool.QueryRow(ctx, `SELECT `+balanceColumns+` FROM stock_balances WHERE tenant_id=$1 AND item_code=$2`, tenantID, itemCode))
}

// ListMovements returns the newest movements of an item first.
func (r *Repository) ListMovements(ctx context.Context, tenantID, itemCode string, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, item_code, kind, qty, unit_cost, reference, posted, posting_error,
created_by, created_at FROM stock_movements WHERE tenant_id=$1 AND item_code=$2 ORDER BY created_at DESC LIMIT $3`,
		tenantID, itemCode, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ItemCode, &m.Kind, &m.Qty, &m.UnitCost, &m.Reference,
			&m.Posted, &m.PostingError, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMovementPosting records the journal outcome of a movement.
func (r *Repository) UpdateMovementPosting(ctx context.Context, tenantID string, id uuid.UUID, posted bool, postingError string) error {
	_, err := r.pool.Exec(ctx, `UPDATE stock_movements SET posted=$3, posting_error=$4 WHERE tenant_id=$1 AND id=$2`,
		tenantID, id, posted, postingError)
	return err
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) GetBalanceForUpdate(ctx context.Context, tenantID, itemCode string) (Balance, error) {
	return scanBalance(t.tx.QueryRow(ctx, `SELECT `+balanceColumns+` FROM stock_balances
WHERE tenant_id=$1 AND item_code=$2 FOR UPDATE`, tenantID, itemCode))
}

func (t *txRepo) UpsertBalance(ctx context.Context, b Balance) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_balances (`+balanceColumns+`) VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (tenant_id, item_code) DO UPDATE SET item_name=EXCLUDED.item_name, qty=EXCLUDED.qty,
avg_cost=EXCLUDED.avg_cost, updated_at=EXCLUDED.updated_at`,
		b.TenantID, b.ItemCode, b.ItemName, b.Qty, b.AvgCost, b.UpdatedAt)
	return err
}

func (t *txRepo) InsertMovement(ctx context.Context, m Movement) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_movements (id, tenant_id, item_code, kind, qty, unit_cost, reference,
posted, posting_error, created_by, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		m.ID, m.TenantID, m.ItemCode, string(m.Kind), m.Qty, m.UnitCost, m.Reference, m.Posted, m.PostingError,
		m.CreatedBy, m.CreatedAt)
	return err
}
