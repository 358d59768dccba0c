package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/shared"
	internalShared "github.com/battwheels/ledgercore/internal/shared"
)

// Posting outcomes reported to the Observer.
const (
	OutcomePosted   = "posted"
	OutcomeReplayed = "replayed"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// SourceKindJournalEntry marks reversal entries pointing at their original.
const SourceKindJournalEntry = "journal_entry"

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Observer is notified once per posting attempt.
type Observer interface {
	PostingObserved(entryType, outcome string)
}

type Service struct {
	repo     Repository
	audit    AuditPort
	logger   *slog.Logger
	observer Observer
	timeout  time.Duration
	now      func() time.Time
}

func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithObserver attaches a posting observer.
func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

// WithTimeout bounds each posting transaction. Zero disables the bound.
func (s *Service) WithTimeout(d time.Duration) *Service {
	s.timeout = d
	return s
}

func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (JournalEntry, error) {
	if strings.TrimSpace(tenantID) == "" {
		return JournalEntry{}, shared.ErrTenantRequired
	}
	entry, err := s.repo.Get(ctx, tenantID, id)
	if err != nil && !errors.Is(err, shared.ErrJournalNotFound) {
		return JournalEntry{}, classify(ctx, err)
	}
	return entry, err
}

func (s *Service) List(ctx context.Context, tenantID string, filter ListFilter) ([]JournalEntry, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, shared.ErrTenantRequired
	}
	entries, err := s.repo.List(ctx, tenantID, filter)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return entries, nil
}

// FindBySource returns the entry previously posted for (source, entry type).
// The derived idempotency key is tried first; entries posted under an
// explicit key are found through their stored source reference.
func (s *Service) FindBySource(ctx context.Context, tenantID string, ref SourceRef, entryType EntryType) (JournalEntry, error) {
	if strings.TrimSpace(tenantID) == "" {
		return JournalEntry{}, shared.ErrTenantRequired
	}
	if ref.Kind == "" || ref.ID == "" {
		return JournalEntry{}, fmt.Errorf("%w: source reference requires kind and id", shared.ErrInvalidInput)
	}
	entry, err := s.repo.FindByKey(ctx, tenantID, IdempotencyKey(tenantID, ref, entryType))
	if errors.Is(err, shared.ErrJournalNotFound) {
		entry, err = s.repo.FindBySource(ctx, tenantID, ref, entryType)
	}
	if err != nil && !errors.Is(err, shared.ErrJournalNotFound) {
		return JournalEntry{}, classify(ctx, err)
	}
	return entry, err
}

// Validate runs every check PostJournal performs before writing, including
// account existence, without persisting anything.
func (s *Service) Validate(ctx context.Context, input PostingInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	missing, err := s.repo.MissingAccounts(ctx, input.TenantID, accountCodes(input.Lines))
	if err != nil {
		return classify(ctx, err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", shared.ErrAccountNotFound, strings.Join(missing, ", "))
	}
	return nil
}

// PostJournal atomically records a balanced entry and moves account balances.
// A repeated request for the same idempotency key returns the stored entry.
func (s *Service) PostJournal(ctx context.Context, input PostingInput) (JournalEntry, error) {
	entry, _, err := s.post(ctx, input)
	return entry, err
}

// Attempt posts like PostJournal but never fails; the outcome is reported in
// the result so callers can record their document regardless.
func (s *Service) Attempt(ctx context.Context, input PostingInput) PostingResult {
	entry, replayed, err := s.post(ctx, input)
	if err != nil {
		return PostingResult{Message: err.Error(), Err: err}
	}
	return PostingResult{EntryID: entry.ID, Number: entry.Number, Posted: true, Replayed: replayed}
}

func (s *Service) post(ctx context.Context, input PostingInput) (JournalEntry, bool, error) {
	if err := input.Validate(); err != nil {
		s.observe(input.Type, OutcomeRejected)
		return JournalEntry{}, false, err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	key := input.Key()
	var (
		entry    JournalEntry
		replayed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, replayed, err = s.insert(ctx, tx, input, key, nil)
		return err
	})
	if errors.Is(err, shared.ErrSourceAlreadyLinked) && key != uuid.Nil {
		// A concurrent request with the same key committed first.
		entry, err = s.repo.FindByKey(ctx, input.TenantID, key)
		replayed = err == nil
	}
	if err != nil {
		err = classify(ctx, err)
		if shared.IsValidation(err) {
			s.observe(input.Type, OutcomeRejected)
		} else {
			s.observe(input.Type, OutcomeFailed)
			s.logger.Error("journal posting failed",
				slog.String("tenant", input.TenantID),
				slog.String("type", string(input.Type)),
				slog.String("source", input.Source.String()),
				slog.Any("error", err))
		}
		return JournalEntry{}, false, err
	}
	if replayed {
		s.observe(input.Type, OutcomeReplayed)
		return entry, true, nil
	}
	s.observe(input.Type, OutcomePosted)
	s.record(ctx, internalShared.AuditLog{
		TenantID: input.TenantID,
		ActorID:  input.CreatedBy,
		Action:   "journal.post",
		Entity:   "journal_entry",
		EntityID: entry.ID.String(),
		Meta: map[string]any{
			"number": entry.Number,
			"type":   string(entry.Type),
			"source": input.Source.String(),
		},
		At: s.now(),
	})
	return entry, false, nil
}

// insert performs the write half of a posting inside tx. The replay flag is
// set when key already names a committed entry.
func (s *Service) insert(ctx context.Context, tx TxRepository, input PostingInput, key uuid.UUID, reversalOf *uuid.UUID) (JournalEntry, bool, error) {
	if key != uuid.Nil {
		existing, err := tx.FindByKey(ctx, input.TenantID, key)
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, shared.ErrJournalNotFound) {
			return JournalEntry{}, false, err
		}
	}
	codes := accountCodes(input.Lines)
	types, err := tx.LockAccounts(ctx, input.TenantID, codes)
	if err != nil {
		return JournalEntry{}, false, err
	}
	var missing []string
	for _, code := range codes {
		if _, ok := types[code]; !ok {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		return JournalEntry{}, false, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, strings.Join(missing, ", "))
	}
	number, err := tx.NextNumber(ctx, input.TenantID)
	if err != nil {
		if ctx.Err() != nil {
			return JournalEntry{}, false, err
		}
		return JournalEntry{}, false, fmt.Errorf("%w: %w", shared.ErrSequenceUnavailable, err)
	}
	entry := JournalEntry{
		ID:             uuid.New(),
		Number:         number,
		TenantID:       input.TenantID,
		Date:           dateOnly(input.Date),
		Description:    input.Description,
		Type:           input.Type,
		Source:         input.Source,
		IdempotencyKey: key,
		Posted:         true,
		ReversalOf:     reversalOf,
		CreatedBy:      input.CreatedBy,
		CreatedAt:      s.now().UTC(),
		Lines:          toJournalLines(input.Lines),
	}
	if err := tx.InsertEntry(ctx, entry); err != nil {
		return JournalEntry{}, false, err
	}
	if err := tx.InsertLines(ctx, entry); err != nil {
		return JournalEntry{}, false, err
	}
	deltas := make(map[string]decimal.Decimal, len(codes))
	for _, line := range entry.Lines {
		deltas[line.AccountCode] = deltas[line.AccountCode].Add(types[line.AccountCode].Signed(line.Debit, line.Credit))
	}
	for _, code := range codes {
		if deltas[code].IsZero() {
			continue
		}
		if err := tx.ApplyBalanceDelta(ctx, input.TenantID, code, deltas[code]); err != nil {
			return JournalEntry{}, false, err
		}
	}
	return entry, false, nil
}

// ReverseEntry posts the mirror image of a posted entry and flags the
// original as reversed. Retrying returns the reversal already posted.
func (s *Service) ReverseEntry(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if strings.TrimSpace(input.TenantID) == "" {
		return JournalEntry{}, shared.ErrTenantRequired
	}
	if input.EntryID == uuid.Nil {
		return JournalEntry{}, fmt.Errorf("%w: entry id required", shared.ErrInvalidInput)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	date := s.now()
	if input.Date != nil {
		date = *input.Date
	}
	source := SourceRef{Kind: SourceKindJournalEntry, ID: input.EntryID.String()}
	key := IdempotencyKey(input.TenantID, source, EntryTypeReversal)

	var (
		reversal JournalEntry
		original JournalEntry
		replayed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindByKey(ctx, input.TenantID, key)
		if err == nil {
			reversal, replayed = existing, true
			return nil
		}
		if !errors.Is(err, shared.ErrJournalNotFound) {
			return err
		}
		original, err = tx.GetEntryForUpdate(ctx, input.TenantID, input.EntryID)
		if err != nil {
			return err
		}
		switch {
		case original.Type == EntryTypeReversal, !original.Posted:
			return shared.ErrInvalidStatus
		case original.Reversed:
			return shared.ErrAlreadyReversed
		}
		posting := PostingInput{
			TenantID:       input.TenantID,
			Date:           date,
			Description:    defaultReversalMemo(input.Reason, original.Number),
			Type:           EntryTypeReversal,
			Source:         source,
			CreatedBy:      input.ActorID,
			IdempotencyKey: key,
			Lines:          reverseLines(original.Lines),
		}
		if err := posting.Validate(); err != nil {
			return err
		}
		reversal, _, err = s.insert(ctx, tx, posting, key, &original.ID)
		if err != nil {
			return err
		}
		return tx.MarkReversed(ctx, input.TenantID, original.ID, reversal.ID)
	})
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrJournalNotFound), errors.Is(err, shared.ErrAlreadyReversed),
			errors.Is(err, shared.ErrInvalidStatus):
			return JournalEntry{}, err
		}
		s.observe(EntryTypeReversal, OutcomeFailed)
		return JournalEntry{}, classify(ctx, err)
	}
	if replayed {
		s.observe(EntryTypeReversal, OutcomeReplayed)
		return reversal, nil
	}
	s.observe(EntryTypeReversal, OutcomePosted)
	s.record(ctx, internalShared.AuditLog{
		TenantID: input.TenantID,
		ActorID:  input.ActorID,
		Action:   "journal.reverse",
		Entity:   "journal_entry",
		EntityID: original.ID.String(),
		Meta: map[string]any{
			"reversal_id":     reversal.ID.String(),
			"reversal_number": reversal.Number,
			"reason":          input.Reason,
		},
		At: s.now(),
	})
	return reversal, nil
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) observe(entryType EntryType, outcome string) {
	if s.observer != nil {
		s.observer.PostingObserved(string(entryType), outcome)
	}
}

func (s *Service) record(ctx context.Context, log internalShared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", log.Action), slog.Any("error", err))
	}
}

// classify maps raw failures onto the ledger error taxonomy. Validation and
// numbering errors keep their identity; an expired context means the commit
// may or may not have landed.
func classify(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case shared.IsValidation(err), errors.Is(err, shared.ErrOutcomeUnknown), errors.Is(err, shared.ErrStorageUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), ctx.Err() != nil:
		return fmt.Errorf("%w: %w", shared.ErrOutcomeUnknown, err)
	case errors.Is(err, shared.ErrSequenceUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %w", shared.ErrStorageUnavailable, err)
	}
}

func reverseLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountCode: line.AccountCode,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Description: line.Description,
		})
	}
	return out
}

func toJournalLines(lines []PostingLineInput) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for idx, line := range lines {
		out = append(out, JournalLine{
			LineNo:      idx + 1,
			AccountCode: line.AccountCode,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
		})
	}
	return out
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func defaultReversalMemo(memo, number string) string {
	if memo != "" {
		return memo
	}
	return "Reversal of " + number
}
