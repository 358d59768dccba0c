package shared

import (
	"fmt"
	"hash/fnv"
)

// LedgerLockKey builds keys for ledger critical sections such as the
// per-invoice credit ceiling check.
func LedgerLockKey(scope, tenantID, id string) string {
	return fmt.Sprintf("ledger:%s:%s:%s:lock", scope, tenantID, id)
}

// AdvisoryLockID folds a lock key into the bigint space of pg_advisory_xact_lock.
func AdvisoryLockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
