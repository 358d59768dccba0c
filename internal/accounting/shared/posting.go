package shared

import (
	"errors"
	"fmt"
)

// LedgerPostError indicates the document was recorded but journal posting failed.
type LedgerPostError struct {
	Err       error
	Retryable bool
	Message   string
}

func (e *LedgerPostError) Error() string {
	return e.Message
}

func (e *LedgerPostError) Unwrap() error {
	return e.Err
}

// WrapLedgerPostError describes a posting failure for the given document label.
func WrapLedgerPostError(document string, err error) *LedgerPostError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrOutcomeUnknown):
		return &LedgerPostError{
			Err:       err,
			Retryable: true,
			Message:   fmt.Sprintf("Ledger write timed out; %s recorded and posting will be re-checked", document),
		}
	case errors.Is(err, ErrSequenceUnavailable):
		return &LedgerPostError{
			Err:       err,
			Retryable: true,
			Message:   fmt.Sprintf("Journal numbering unavailable; %s recorded but journal posting pending", document),
		}
	case errors.Is(err, ErrStorageUnavailable):
		return &LedgerPostError{
			Err:       err,
			Retryable: true,
			Message:   fmt.Sprintf("Ledger storage unavailable; %s recorded but journal posting pending", document),
		}
	case errors.Is(err, ErrAccountNotFound):
		return &LedgerPostError{
			Err:       err,
			Retryable: true,
			Message:   fmt.Sprintf("System account missing; %s recorded but journal posting pending", document),
		}
	default:
		return &LedgerPostError{
			Err:       err,
			Retryable: false,
			Message:   fmt.Sprintf("Failed to post %s to ledger; journal posting pending (%s)", document, err.Error()),
		}
	}
}

// IsRejection reports engine errors that mean the document itself cannot be
// posted and must not stay saved, a missing account included.
func IsRejection(err error) bool {
	return IsValidation(err)
}
