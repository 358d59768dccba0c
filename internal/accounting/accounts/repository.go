package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/battwheels/ledgercore/internal/accounting/shared"
)

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	InsertSystemAccounts(ctx context.Context, tenantID string, seeds []SeedAccount) (int64, error)
	Get(ctx context.Context, tenantID, code string) (Account, error)
	List(ctx context.Context, tenantID string) ([]Account, error)
	Create(ctx context.Context, in CreateInput) (Account, error)
	CountPostings(ctx context.Context, tenantID, code string) (int64, error)
	Delete(ctx context.Context, tenantID, code string) error
	ListTenants(ctx context.Context) ([]string, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `tenant_id, code, name, type, sub_type, balance, is_system, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.TenantID, &a.Code, &a.Name, &a.Type, &a.SubType, &a.Balance, &a.IsSystem, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *repository) InsertSystemAccounts(ctx context.Context, tenantID string, seeds []SeedAccount) (int64, error) {
	batch := &pgx.Batch{}
	for _, seed := range seeds {
		batch.Queue(`INSERT INTO accounts (tenant_id, code, name, type, sub_type, is_system)
VALUES ($1,$2,$3,$4,$5,TRUE) ON CONFLICT (tenant_id, code) DO NOTHING`, tenantID, seed.Code, seed.Name, seed.Type, seed.SubType)
	}
	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	var created int64
	for range seeds {
		tag, err := results.Exec()
		if err != nil {
			return created, err
		}
		created += tag.RowsAffected()
	}
	return created, nil
}

func (r *repository) Get(ctx context.Context, tenantID, code string) (Account, error) {
	acc, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code=$2`, tenantID, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return acc, nil
}

func (r *repository) List(ctx context.Context, tenantID string) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) Create(ctx context.Context, in CreateInput) (Account, error) {
	acc, err := scanAccount(r.db.QueryRow(ctx, `INSERT INTO accounts (tenant_id, code, name, type, sub_type, is_system)
VALUES ($1,$2,$3,$4,$5,FALSE) RETURNING `+accountColumns, in.TenantID, in.Code, in.Name, in.Type, in.SubType))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, shared.ErrDuplicateAccount
		}
		return Account{}, err
	}
	return acc, nil
}

func (r *repository) CountPostings(ctx context.Context, tenantID, code string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM journal_lines WHERE tenant_id=$1 AND account_code=$2`, tenantID, code).Scan(&count)
	return count, err
}

func (r *repository) Delete(ctx context.Context, tenantID, code string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE tenant_id=$1 AND code=$2 AND NOT is_system`, tenantID, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *repository) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT tenant_id FROM accounts ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}
