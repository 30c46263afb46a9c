// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/mms-dairy/mms/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var stockErr *shared.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		JSON(w, http.StatusConflict, InsufficientStockProblem{
			ProblemDetail: ProblemDetail{
				Type:   "insufficient-stock",
				Title:  "Insufficient Stock",
				Status: http.StatusConflict,
				Detail: stockErr.Error(),
			},
			ProductID: stockErr.ProductID,
			Requested: stockErr.Requested.StringFixed(3),
			Available: stockErr.Available.StringFixed(3),
		})
	case errors.Is(err, shared.ErrConcurrencyConflict):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusConflict, "Busy", "the resource is locked by another request, retry shortly")
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrReference):
		Problem(w, http.StatusUnprocessableEntity, "Unknown Reference", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// InsufficientStockProblem extends the problem document with stock amounts.
type InsufficientStockProblem struct {
	ProblemDetail
	ProductID int64  `json:"product_id"`
	Requested string `json:"requested"`
	Available string `json:"available"`
}

// StatusFor returns the status code RespondError would answer err with.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInsufficientStock),
		errors.Is(err, shared.ErrConcurrencyConflict),
		errors.Is(err, shared.ErrIdempotencyConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrReference):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
