package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mms-dairy/mms/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", shared.NewValidationError("quantity", "must be greater than zero"), http.StatusBadRequest},
		{"reference", fmt.Errorf("sales: %w", &shared.ReferenceError{Entity: "shop", ID: 3}), http.StatusUnprocessableEntity},
		{"conflict", &shared.ConcurrencyConflictError{Key: "ledger:product:1:lock"}, http.StatusConflict},
		{"not found", shared.ErrNotFound, http.StatusNotFound},
		{"duplicate", shared.ErrIdempotencyConflict, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, tc.err)
			require.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestRespondErrorInsufficientStockCarriesAmounts(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, &shared.InsufficientStockError{ProductID: 4, Requested: decimal.NewFromInt(12), Available: decimal.NewFromInt(10)})
	require.Equal(t, http.StatusConflict, rr.Code)

	var body InsufficientStockProblem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, int64(4), body.ProductID)
	require.Equal(t, "12.000", body.Requested)
	require.Equal(t, "10.000", body.Available)
	require.Equal(t, "Insufficient Stock", body.Title)
}

func TestRespondErrorConflictSetsRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, &shared.ConcurrencyConflictError{Key: "k"})
	require.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestStatusForMatchesRespondError(t *testing.T) {
	errs := []error{
		shared.NewValidationError("x", "bad"),
		&shared.InsufficientStockError{},
		&shared.ConcurrencyConflictError{Key: "k"},
		&shared.ReferenceError{Entity: "stock", ID: 1},
		shared.ErrNotFound,
		errors.New("boom"),
	}
	for _, err := range errs {
		rr := httptest.NewRecorder()
		RespondError(rr, err)
		require.Equal(t, rr.Code, StatusFor(err), err.Error())
	}
}
