package shared

import (
	"errors"
	"net/http"
)

// HTTPStatus maps the ledger error taxonomy onto a response status and title.
func HTTPStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrJournalNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, ErrDuplicateAccount),
		errors.Is(err, ErrAlreadyReversed),
		errors.Is(err, ErrSourceAlreadyLinked),
		errors.Is(err, ErrSystemAccount),
		errors.Is(err, ErrAccountInUse),
		errors.Is(err, ErrInvalidStatus):
		return http.StatusConflict, "Conflict"
	case IsValidation(err):
		return http.StatusUnprocessableEntity, "Validation Failed"
	case errors.Is(err, ErrOutcomeUnknown):
		return http.StatusGatewayTimeout, "Outcome Unknown"
	case errors.Is(err, ErrSequenceUnavailable), errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "Service Unavailable"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}
