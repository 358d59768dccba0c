package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrTenantRequired indicates a call without tenant scope.
	ErrTenantRequired = errors.New("accounting: tenant required")
	// ErrInvalidInput indicates a request that fails field validation.
	ErrInvalidInput = errors.New("accounting: invalid input")
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrEmptyEntry indicates a journal without lines.
	ErrEmptyEntry = errors.New("accounting: journal requires at least one line")
	// ErrMalformedLine indicates a line that is not exactly one-sided.
	ErrMalformedLine = errors.New("accounting: malformed journal line")
	// ErrInvalidEntryType indicates an unknown entry type.
	ErrInvalidEntryType = errors.New("accounting: invalid entry type")
	// ErrAccountNotFound indicates a missing chart-of-accounts entry.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrDuplicateAccount indicates the account code is already taken.
	ErrDuplicateAccount = errors.New("accounting: account code already exists")
	// ErrSystemAccount indicates a mutation that system accounts do not allow.
	ErrSystemAccount = errors.New("accounting: system accounts cannot be deleted")
	// ErrAccountInUse indicates the account already carries postings.
	ErrAccountInUse = errors.New("accounting: account has postings")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrAlreadyReversed indicates the entry already carries a reversal.
	ErrAlreadyReversed = errors.New("accounting: journal entry already reversed")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = errors.New("accounting: source already linked")
	// ErrExceedsCreditable indicates a credit note above the invoice ceiling.
	ErrExceedsCreditable = errors.New("accounting: credit exceeds creditable amount")
	// ErrSequenceUnavailable indicates the counter store could not increment.
	ErrSequenceUnavailable = errors.New("accounting: sequence unavailable")
	// ErrStorageUnavailable indicates a persistence failure.
	ErrStorageUnavailable = errors.New("accounting: storage unavailable")
	// ErrOutcomeUnknown indicates a write that timed out; it may or may not have landed.
	ErrOutcomeUnknown = errors.New("accounting: posting outcome unknown")
)

// UnbalancedError carries the sums of a rejected entry.
type UnbalancedError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// Delta returns debit minus credit.
func (e *UnbalancedError) Delta() decimal.Decimal {
	return e.Debit.Sub(e.Credit)
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("%s: debits sum is %s and credits sum is %s (delta %s)",
		ErrUnbalanced.Error(), e.Debit.StringFixed(2), e.Credit.StringFixed(2), e.Delta().StringFixed(2))
}

// Is lets errors.Is match ErrUnbalanced.
func (e *UnbalancedError) Is(target error) bool {
	return target == ErrUnbalanced
}

// ExceedsCreditableError names the remaining ceiling of an invoice.
type ExceedsCreditableError struct {
	Requested       decimal.Decimal
	Remaining       decimal.Decimal
	AlreadyCredited decimal.Decimal
}

func (e *ExceedsCreditableError) Error() string {
	return fmt.Sprintf("Credit note total exceeds remaining creditable amount (%s); already credited: %s",
		FormatINR(e.Remaining), FormatINR(e.AlreadyCredited))
}

// Is lets errors.Is match ErrExceedsCreditable.
func (e *ExceedsCreditableError) Is(target error) bool {
	return target == ErrExceedsCreditable
}

// IsValidation reports errors that must block the triggering business action.
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrTenantRequired),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUnbalanced),
		errors.Is(err, ErrEmptyEntry),
		errors.Is(err, ErrMalformedLine),
		errors.Is(err, ErrInvalidEntryType),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrExceedsCreditable):
		return true
	}
	return false
}

// IsRecoverable reports infrastructure errors that leave a document unposted
// but do not block it.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrOutcomeUnknown) ||
		errors.Is(err, ErrSequenceUnavailable)
}
