// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrDuplicate     = errors.New("duplicate entry")
	ErrValidation    = errors.New("validation failed")
	ErrUnprocessable = errors.New("unprocessable entity")
	ErrUnauthorized  = errors.New("unauthorized")
)

// Mapper translates domain errors into a status code and problem title.
type Mapper func(error) (int, string)

// RespondError maps transport errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	RespondMapped(w, err, nil)
}

// RespondMapped writes a problem document for err, consulting mapper for
// errors the transport layer does not know about. Server-side failures never
// leak their cause into the response body.
func RespondMapped(w http.ResponseWriter, err error, mapper Mapper) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
		return
	case errors.Is(err, ErrUnprocessable):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
		return
	}
	if mapper == nil {
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	status, title := mapper(err)
	detail := err.Error()
	if status >= http.StatusInternalServerError {
		detail = ""
	}
	Problem(w, status, title, detail)
}
