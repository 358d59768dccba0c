package ledgertest

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/accounts"
	"github.com/battwheels/ledgercore/internal/accounting/journals"
	"github.com/battwheels/ledgercore/internal/accounting/sequences"
	"github.com/battwheels/ledgercore/internal/accounting/shared"
)

type journalRepo struct{ l *Ledger }

func (r journalRepo) Get(ctx context.Context, tenantID string, id uuid.UUID) (journals.JournalEntry, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if err := r.l.failure(OpFind); err != nil {
		return journals.JournalEntry{}, err
	}
	e, ok := r.l.entries[id]
	if !ok || e.TenantID != tenantID {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	return e, nil
}

func (r journalRepo) FindByKey(ctx context.Context, tenantID string, key uuid.UUID) (journals.JournalEntry, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if err := r.l.failure(OpFind); err != nil {
		return journals.JournalEntry{}, err
	}
	id, ok := r.l.keys[keyOf(tenantID, key)]
	if !ok {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	return r.l.entries[id], nil
}

func (r journalRepo) FindBySource(ctx context.Context, tenantID string, ref journals.SourceRef, entryType journals.EntryType) (journals.JournalEntry, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if err := r.l.failure(OpFind); err != nil {
		return journals.JournalEntry{}, err
	}
	for _, id := range r.l.order {
		if e := r.l.entries[id]; e.TenantID == tenantID && e.Source == ref && e.Type == entryType {
			return e, nil
		}
	}
	return journals.JournalEntry{}, shared.ErrJournalNotFound
}

func (r journalRepo) List(ctx context.Context, tenantID string, filter journals.ListFilter) ([]journals.JournalEntry, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var out []journals.JournalEntry
	for i := len(r.l.order) - 1; i >= 0; i-- {
		e := r.l.entries[r.l.order[i]]
		switch {
		case e.TenantID != tenantID,
			filter.From != nil && e.Date.Before(*filter.From),
			filter.To != nil && e.Date.After(*filter.To),
			filter.Type != "" && e.Type != filter.Type:
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r journalRepo) MissingAccounts(ctx context.Context, tenantID string, codes []string) ([]string, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if err := r.l.failure(OpMissing); err != nil {
		return nil, err
	}
	var missing []string
	for _, code := range codes {
		if _, ok := r.l.accounts[tenantID][code]; !ok {
			missing = append(missing, code)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

func (r journalRepo) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if err := r.l.failure(OpBegin); err != nil {
		return err
	}
	tx := &journalTx{
		l:        r.l,
		entries:  make(map[uuid.UUID]journals.JournalEntry),
		deltas:   make(map[accountKey]decimal.Decimal),
		counters: make(map[string]int64),
		reversed: make(map[uuid.UUID]uuid.UUID),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := r.l.failure(OpCommit); err != nil {
		return err
	}
	if r.l.OnCommit != nil {
		if err := r.l.OnCommit(ctx); err != nil {
			return err
		}
	}
	tx.commit()
	return nil
}

// journalTx stages writes and applies them only on commit.
type journalTx struct {
	l        *Ledger
	entries  map[uuid.UUID]journals.JournalEntry
	order    []uuid.UUID
	deltas   map[accountKey]decimal.Decimal
	counters map[string]int64
	reversed map[uuid.UUID]uuid.UUID
}

type accountKey struct {
	tenantID string
	code     string
}

func (tx *journalTx) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.l.failure(op)
}

func (tx *journalTx) FindByKey(ctx context.Context, tenantID string, key uuid.UUID) (journals.JournalEntry, error) {
	if err := tx.check(ctx, OpTxFind); err != nil {
		return journals.JournalEntry{}, err
	}
	for _, e := range tx.entries {
		if e.TenantID == tenantID && e.IdempotencyKey == key {
			return e, nil
		}
	}
	id, ok := tx.l.keys[keyOf(tenantID, key)]
	if !ok {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	return tx.l.entries[id], nil
}

func (tx *journalTx) LockAccounts(ctx context.Context, tenantID string, codes []string) (map[string]accounts.AccountType, error) {
	if err := tx.check(ctx, OpLockAccounts); err != nil {
		return nil, err
	}
	types := make(map[string]accounts.AccountType, len(codes))
	for _, code := range codes {
		if acc, ok := tx.l.accounts[tenantID][code]; ok {
			types[code] = acc.Type
		}
	}
	return types, nil
}

func (tx *journalTx) NextNumber(ctx context.Context, tenantID string) (string, error) {
	if err := tx.check(ctx, OpNextNumber); err != nil {
		return "", err
	}
	key := counterOf(tenantID, sequences.KindJournal)
	tx.counters[key]++
	return sequences.Format(sequences.KindJournal, tx.l.counters[key]+tx.counters[key]), nil
}

func (tx *journalTx) InsertEntry(ctx context.Context, entry journals.JournalEntry) error {
	if err := tx.check(ctx, OpInsertEntry); err != nil {
		return err
	}
	if entry.IdempotencyKey != uuid.Nil {
		if _, dup := tx.l.keys[keyOf(entry.TenantID, entry.IdempotencyKey)]; dup {
			return shared.ErrSourceAlreadyLinked
		}
	}
	entry.Lines = nil
	tx.entries[entry.ID] = entry
	tx.order = append(tx.order, entry.ID)
	return nil
}

func (tx *journalTx) InsertLines(ctx context.Context, entry journals.JournalEntry) error {
	if err := tx.check(ctx, OpInsertLines); err != nil {
		return err
	}
	staged, ok := tx.entries[entry.ID]
	if !ok {
		return fmt.Errorf("lines for unknown entry %s", entry.ID)
	}
	staged.Lines = append([]journals.JournalLine(nil), entry.Lines...)
	tx.entries[entry.ID] = staged
	return nil
}

func (tx *journalTx) ApplyBalanceDelta(ctx context.Context, tenantID, code string, delta decimal.Decimal) error {
	if err := tx.check(ctx, OpBalance); err != nil {
		return err
	}
	if _, ok := tx.l.accounts[tenantID][code]; !ok {
		return fmt.Errorf("%w: %s", shared.ErrAccountNotFound, code)
	}
	key := accountKey{tenantID: tenantID, code: code}
	tx.deltas[key] = tx.deltas[key].Add(delta)
	return nil
}

func (tx *journalTx) GetEntryForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (journals.JournalEntry, error) {
	if err := tx.check(ctx, OpTxFind); err != nil {
		return journals.JournalEntry{}, err
	}
	e, ok := tx.l.entries[id]
	if !ok || e.TenantID != tenantID {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	return e, nil
}

func (tx *journalTx) MarkReversed(ctx context.Context, tenantID string, id, reversedBy uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, ok := tx.l.entries[id]
	if !ok || e.TenantID != tenantID {
		return shared.ErrJournalNotFound
	}
	if e.Reversed {
		return shared.ErrAlreadyReversed
	}
	tx.reversed[id] = reversedBy
	return nil
}

func (tx *journalTx) commit() {
	l := tx.l
	for _, id := range tx.order {
		e := tx.entries[id]
		l.entries[id] = e
		l.order = append(l.order, id)
		if e.IdempotencyKey != uuid.Nil {
			l.keys[keyOf(e.TenantID, e.IdempotencyKey)] = id
		}
	}
	for id, by := range tx.reversed {
		e := l.entries[id]
		by := by
		e.Reversed = true
		e.ReversedBy = &by
		l.entries[id] = e
	}
	for key, delta := range tx.deltas {
		acc := l.accounts[key.tenantID][key.code]
		acc.Balance = acc.Balance.Add(delta)
		l.accounts[key.tenantID][key.code] = acc
	}
	for key, n := range tx.counters {
		l.counters[key] += n
	}
}
