package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType tags the business event behind a journal entry.
type EntryType string

const (
	EntryTypeSales      EntryType = "sales"
	EntryTypePurchase   EntryType = "purchase"
	EntryTypeOpening    EntryType = "opening"
	EntryTypeTransfer   EntryType = "transfer"
	EntryTypeCOGS       EntryType = "cogs"
	EntryTypeJournal    EntryType = "journal"
	EntryTypeCreditNote EntryType = "credit_note"
	EntryTypePayment    EntryType = "payment"
	EntryTypeReversal   EntryType = "reversal"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeSales, EntryTypePurchase, EntryTypeOpening, EntryTypeTransfer, EntryTypeCOGS,
		EntryTypeJournal, EntryTypeCreditNote, EntryTypePayment, EntryTypeReversal:
		return true
	}
	return false
}

// SourceRef points at the business document behind an entry. The ledger
// stores it verbatim and never resolves it.
type SourceRef struct {
	Kind string
	ID   string
}

// IsZero reports whether no reference is set.
func (r SourceRef) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

func (r SourceRef) String() string {
	return r.Kind + "/" + r.ID
}

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID             uuid.UUID
	Number         string
	TenantID       string
	Date           time.Time
	Description    string
	Type           EntryType
	Source         SourceRef
	IdempotencyKey uuid.UUID
	Posted         bool
	Reversed       bool
	ReversedBy     *uuid.UUID
	ReversalOf     *uuid.UUID
	CreatedBy      string
	CreatedAt      time.Time
	Lines          []JournalLine
}

// Totals sums both sides of the entry.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	LineNo      int
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}
