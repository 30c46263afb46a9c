package inventory_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mms-dairy/mms/internal/inventory"
	"github.com/mms-dairy/mms/internal/platform/httpx"
	"github.com/mms-dairy/mms/internal/shared"
	_ "github.com/mms-dairy/mms/testing"
)

func newTestRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	inventory.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlePurchaseAndStockLevel(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/purchases",
		fmt.Sprintf(`{"supplier_id":%d,"product_id":%d,"quantity":"100","extra_ice":0,"rate":"2.00"}`, f.supplier, f.milk))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var purchase inventory.Purchase
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&purchase))
	assert.True(t, purchase.TotalAmount.Equal(dec("200")))

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/stock/%d", f.milk), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var level struct {
		ProductID int64  `json:"product_id"`
		Quantity  string `json:"quantity"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&level))
	assert.Equal(t, f.milk, level.ProductID)
	assert.Equal(t, "100", level.Quantity)
}

func TestHandleWastageInsufficientStock(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "5", "0", "2")
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/wastages", fmt.Sprintf(`{"product_id":%d,"quantity":"6","reason":"spoilage"}`, f.milk))

	require.Equal(t, http.StatusConflict, rec.Code)
	var problem httpx.InsufficientStockProblem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	assert.Equal(t, f.milk, problem.ProductID)
	assert.Equal(t, "6.000", problem.Requested)
	assert.Equal(t, "5.000", problem.Available)
}

func TestHandlePurchaseRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	cases := []struct {
		name    string
		body    string
		headers []string
	}{
		{name: "missing supplier", body: fmt.Sprintf(`{"product_id":%d,"quantity":"1","rate":"1"}`, f.milk)},
		{name: "unknown field", body: `{"supplier_id":1,"product_id":1,"quantity":"1","rate":"1","colour":"white"}`},
		{name: "malformed json", body: `{"supplier_id":`},
		{name: "bad idempotency key", body: fmt.Sprintf(`{"supplier_id":%d,"product_id":%d,"quantity":"1","rate":"1"}`, f.supplier, f.milk),
			headers: []string{httpx.IdempotencyKeyHeader, "not-a-uuid"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/purchases", tc.body, tc.headers...)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, f.store.Purchases())
}

func TestHandlePurchaseDuplicateKey(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)
	body := fmt.Sprintf(`{"supplier_id":%d,"product_id":%d,"quantity":"3","rate":"2"}`, f.supplier, f.milk)
	key := "3f2d3c1a-7b4e-4e57-9c4b-1f1de4c0b8a2"

	rec := do(t, h, http.MethodPost, "/purchases", body, httpx.IdempotencyKeyHeader, key)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, "/purchases", body, httpx.IdempotencyKeyHeader, key)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, f.store.Purchases(), 1)
}

func TestHandleUnknownSupplier(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/purchases", fmt.Sprintf(`{"supplier_id":999,"product_id":%d,"quantity":"3","rate":"2"}`, f.milk))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleMovementsListing(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "10", "0", "2")
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/movements", fmt.Sprintf(`{"product_id":%d,"quantity":"2","direction":"out","note":"count"}`, f.milk))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/movements?product_id=%d&from=2026-03-01&to=2026-03-01", f.milk), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page shared.KeysetPage[inventory.Movement]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, inventory.DirectionIn, page.Items[0].Direction)
	assert.Equal(t, inventory.DirectionOut, page.Items[1].Direction)
	assert.Zero(t, page.NextAfterID)

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/movements?product_id=%d&limit=1", f.milk), "")
	require.Equal(t, http.StatusOK, rec.Code)
	page = shared.KeysetPage[inventory.Movement]{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Items, 1)
	require.Equal(t, page.Items[0].ID, page.NextAfterID)

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/movements?product_id=%d&after_id=%d", f.milk, page.NextAfterID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	page = shared.KeysetPage[inventory.Movement]{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, inventory.DirectionOut, page.Items[0].Direction)

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/movements?product_id=%d&from=2026-03-02", f.milk), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())

	for _, query := range []string{"from=yesterday", "limit=lots", "after_id=-4"} {
		rec = do(t, h, http.MethodGet, fmt.Sprintf("/movements?product_id=%d&%s", f.milk, query), "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestHandleReadBackPurchasesAndWastages(t *testing.T) {
	f := newFixture(t)
	purchase := f.purchase(t, "10", "0.5", "2")
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/wastages", fmt.Sprintf(`{"product_id":%d,"quantity":"1.5","reason":"sour"}`, f.milk))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var wastage inventory.Wastage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&wastage))

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/purchases?product_id=%d", f.milk), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var purchases shared.KeysetPage[inventory.Purchase]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&purchases))
	require.Len(t, purchases.Items, 1)
	assert.Equal(t, purchase.ID, purchases.Items[0].ID)

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/purchases/%d", purchase.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got inventory.Purchase
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.True(t, got.ExtraIce.Equal(dec("0.5")))

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/wastages/%d", wastage.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/wastages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reason":"sour"`)

	rec = do(t, h, http.MethodGet, "/purchases/424242", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, "/wastages/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePurchaseOutOfRangeIsBadRequest(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/purchases",
		fmt.Sprintf(`{"supplier_id":%d,"product_id":%d,"quantity":"12345678901234.5","rate":"2"}`, f.supplier, f.milk))

	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Empty(t, f.store.Purchases())
}

func TestHandleStockAndReconciliation(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "10", "0", "2")
	h := newTestRouter(f)

	rec := do(t, h, http.MethodGet, "/stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stock []inventory.Stock
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stock))
	require.Len(t, stock, 1)
	assert.Equal(t, "Milk", stock[0].ProductName)

	rec = do(t, h, http.MethodGet, "/reconciliation", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/stock/zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/stock/404", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
