package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Window bounds the entry dates included in an aggregation. Nil ends are open.
type Window struct {
	From *time.Time
	To   *time.Time
}

// Repository reads ledger activity straight from journal lines.
type Repository interface {
	Activity(ctx context.Context, tenantID string, window Window) ([]AccountActivity, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const activitySQL = `WITH activity AS (
	SELECT l.account_code, SUM(l.debit) AS debit, SUM(l.credit) AS credit
	FROM journal_lines l
	JOIN journal_entries e ON e.id = l.entry_id
	WHERE l.tenant_id = $1 AND e.posted
	  AND ($2::date IS NULL OR e.entry_date >= $2::date)
	  AND ($3::date IS NULL OR e.entry_date <= $3::date)
	GROUP BY l.account_code
)
SELECT a.code, a.name, a.type, a.balance, COALESCE(x.debit, 0), COALESCE(x.credit, 0)
FROM accounts a
LEFT JOIN activity x ON x.account_code = a.code
WHERE a.tenant_id = $1
ORDER BY a.code`

func (r *repository) Activity(ctx context.Context, tenantID string, window Window) ([]AccountActivity, error) {
	rows, err := r.db.Query(ctx, activitySQL, tenantID, window.From, window.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountActivity
	for rows.Next() {
		var a AccountActivity
		if err := rows.Scan(&a.Code, &a.Name, &a.Type, &a.Running, &a.Debit, &a.Credit); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
