// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, title := Classify(err)
	detail := ""
	if status != http.StatusInternalServerError || errors.Is(err, shared.ErrImbalance) {
		detail = err.Error()
	}
	Problem(w, status, title, detail)
}

// Classify returns the status code and problem title for a domain error.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, shared.ErrValidation):
		return http.StatusUnprocessableEntity, "Validation Failed"
	case errors.Is(err, shared.ErrReference):
		return http.StatusUnprocessableEntity, "Unknown Reference"
	case errors.Is(err, shared.ErrAlreadyPosted):
		return http.StatusConflict, "Already Posted"
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, shared.ErrImbalance):
		return http.StatusInternalServerError, "Unbalanced Entry"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}
