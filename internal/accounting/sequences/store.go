package sequences

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Store performs one atomic increment-and-fetch per call.
type Store interface {
	Increment(ctx context.Context, tenantID string, kind Kind) (int64, error)
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Increment bumps the (tenant, kind) counter through q. Called with a pgx.Tx the
// increment rolls back together with the caller's transaction.
func Increment(ctx context.Context, q Querier, tenantID string, kind Kind) (int64, error) {
	var value int64
	err := q.QueryRow(ctx, `INSERT INTO sequences (tenant_id, kind, value) VALUES ($1,$2,1)
ON CONFLICT (tenant_id, kind) DO UPDATE SET value = sequences.value + 1, updated_at = NOW()
RETURNING value`, tenantID, string(kind)).Scan(&value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

// PostgresStore keeps counters in the sequences table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Increment(ctx context.Context, tenantID string, kind Kind) (int64, error) {
	return Increment(ctx, s.pool, tenantID, kind)
}

// RedisStore keeps counters as Redis integers.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, prefix: "sequence"}
}

// Key returns the counter key, e.g. sequence:credit_note_org123.
func (s *RedisStore) Key(tenantID string, kind Kind) string {
	return fmt.Sprintf("%s:%s_%s", s.prefix, kind, strings.TrimSpace(tenantID))
}

func (s *RedisStore) Increment(ctx context.Context, tenantID string, kind Kind) (int64, error) {
	return s.client.Incr(ctx, s.Key(tenantID, kind)).Result()
}
