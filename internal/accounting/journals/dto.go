package journals

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/battwheels/ledgercore/internal/accounting/shared"
)

// idempotencyNamespace scopes deterministic posting keys.
var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("ledgercore.journal"))

// PostingLineInput describes a journal line for posting request.
type PostingLineInput struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	TenantID       string
	Date           time.Time
	Description    string
	Type           EntryType
	Source         SourceRef
	CreatedBy      string
	IdempotencyKey uuid.UUID
	Lines          []PostingLineInput
}

// IdempotencyKey derives the posting key for (tenant, source, entry type).
func IdempotencyKey(tenantID string, ref SourceRef, entryType EntryType) uuid.UUID {
	return uuid.NewSHA1(idempotencyNamespace, []byte(fmt.Sprintf("%s|%s|%s|%s", tenantID, ref.Kind, ref.ID, entryType)))
}

// Key returns the explicit key, the source-derived key, or uuid.Nil.
func (in PostingInput) Key() uuid.UUID {
	if in.IdempotencyKey != uuid.Nil {
		return in.IdempotencyKey
	}
	if in.Source.IsZero() {
		return uuid.Nil
	}
	return IdempotencyKey(in.TenantID, in.Source, in.Type)
}

// Totals sums both sides of the request.
func (in PostingInput) Totals() (debit, credit decimal.Decimal) {
	for _, line := range in.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// Validate ensures posting input meets minimum criteria. No account lookups
// happen here.
func (in PostingInput) Validate() error {
	if strings.TrimSpace(in.TenantID) == "" {
		return shared.ErrTenantRequired
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: %q", shared.ErrInvalidEntryType, in.Type)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: entry date required", shared.ErrInvalidInput)
	}
	if len(in.Lines) == 0 {
		return shared.ErrEmptyEntry
	}
	if (in.Source.Kind == "") != (in.Source.ID == "") {
		return fmt.Errorf("%w: source reference requires kind and id", shared.ErrInvalidInput)
	}
	var debit, credit decimal.Decimal
	for idx, line := range in.Lines {
		if strings.TrimSpace(line.AccountCode) == "" {
			return fmt.Errorf("%w: line %d missing account", shared.ErrMalformedLine, idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d negative amount", shared.ErrMalformedLine, idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d cannot be both debit and credit", shared.ErrMalformedLine, idx)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return fmt.Errorf("%w: line %d has no amount", shared.ErrMalformedLine, idx)
		}
		if !shared.HasMinorPrecision(line.Debit) || !shared.HasMinorPrecision(line.Credit) {
			return fmt.Errorf("%w: line %d has more than two decimal places", shared.ErrMalformedLine, idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return &shared.UnbalancedError{Debit: debit, Credit: credit}
	}
	return nil
}

// accountCodes returns the distinct codes referenced by lines in sorted order.
func accountCodes(lines []PostingLineInput) []string {
	seen := make(map[string]struct{}, len(lines))
	codes := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountCode]; ok {
			continue
		}
		seen[line.AccountCode] = struct{}{}
		codes = append(codes, line.AccountCode)
	}
	sort.Strings(codes)
	return codes
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	TenantID string
	EntryID  uuid.UUID
	Reason   string
	ActorID  string
	Date     *time.Time
}

// ListFilter narrows entry listings.
type ListFilter struct {
	From  *time.Time
	To    *time.Time
	Type  EntryType
	Limit int
}

// PostingResult is the non-throwing outcome handed to business documents.
type PostingResult struct {
	EntryID  uuid.UUID
	Number   string
	Posted   bool
	Replayed bool
	Message  string
	Err      error
}
