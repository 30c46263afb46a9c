package masterdata

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mms-dairy/mms/internal/platform/httpx"
	"github.com/mms-dairy/mms/internal/shared"
)

// Handler manages master data endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Get("/products/{id}", h.showProduct)
	r.Put("/products/{id}", h.updateProduct)

	r.Get("/suppliers", h.listSuppliers)
	r.Post("/suppliers", h.createSupplier)
	r.Get("/suppliers/{id}", h.showSupplier)
	r.Put("/suppliers/{id}", h.updateSupplier)

	r.Get("/shops", h.listShops)
	r.Post("/shops", h.createShop)
	r.Get("/shops/{id}", h.showShop)
	r.Put("/shops/{id}", h.updateShop)

	r.Get("/customers", h.listCustomers)
	r.Post("/customers", h.createCustomer)
	r.Get("/customers/{id}", h.showCustomer)
}

type listResponse[T any] struct {
	Items      []T               `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

type productRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=500"`
	Unit        Unit   `json:"unit" validate:"omitempty,oneof=liter kg"`
}

type supplierRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Contact string `json:"contact" validate:"max=120"`
	Address string `json:"address" validate:"max=500"`
	Active  *bool  `json:"active"`
}

type shopRequest struct {
	Name                   string           `json:"name" validate:"required,max=120"`
	Contact                string           `json:"contact" validate:"max=120"`
	Address                string           `json:"address" validate:"max=500"`
	DeliveryRoute          string           `json:"delivery_route" validate:"max=120"`
	DefaultSellingRate     *decimal.Decimal `json:"default_selling_rate"`
	DefaultSellingQuantity *decimal.Decimal `json:"default_selling_quantity"`
	PaymentPref            PaymentPref      `json:"payment_pref" validate:"omitempty,oneof=cash credit"`
	Active                 *bool            `json:"active"`
}

type customerRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"max=40"`
}

func activeOrDefault(v *bool) bool {
	return v == nil || *v
}

func filtersFromRequest(r *http.Request) ListFilters {
	q := r.URL.Query()
	filters := ListFilters{
		Page:   httpx.QueryInt(r, "page"),
		Limit:  httpx.QueryInt(r, "limit"),
		Search: q.Get("search"),
	}
	if v := q.Get("is_active"); v != "" {
		active := v == "true"
		filters.IsActive = &active
	}
	return filters
}

func respondList[T any](w http.ResponseWriter, filters ListFilters, items []T, total int) {
	httpx.JSON(w, http.StatusOK, listResponse[T]{
		Items:      items,
		Pagination: shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Warn(op+" failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	filters := filtersFromRequest(r)
	items, total, err := h.service.ListProducts(r.Context(), filters)
	if err != nil {
		h.fail(w, r, "list products", err)
		return
	}
	respondList(w, filters, items, total)
}

func (h *Handler) showProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), Product{Name: req.Name, Description: req.Description, Unit: req.Unit})
	if err != nil {
		h.fail(w, r, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req productRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.UpdateProduct(r.Context(), id, Product{Name: req.Name, Description: req.Description, Unit: req.Unit}); err != nil {
		if errors.Is(err, ErrProductUnitLocked) {
			httpx.Problem(w, http.StatusConflict, "Unit Locked", err.Error())
			return
		}
		h.fail(w, r, "update product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	filters := filtersFromRequest(r)
	items, total, err := h.service.ListSuppliers(r.Context(), filters)
	if err != nil {
		h.fail(w, r, "list suppliers", err)
		return
	}
	respondList(w, filters, items, total)
}

func (h *Handler) showSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	supplier, err := h.service.GetSupplier(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), Supplier{
		Name: req.Name, Contact: req.Contact, Address: req.Address, Active: activeOrDefault(req.Active),
	})
	if err != nil {
		h.fail(w, r, "create supplier", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) updateSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req supplierRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	err = h.service.UpdateSupplier(r.Context(), id, Supplier{
		Name: req.Name, Contact: req.Contact, Address: req.Address, Active: activeOrDefault(req.Active),
	})
	if err != nil {
		h.fail(w, r, "update supplier", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listShops(w http.ResponseWriter, r *http.Request) {
	filters := filtersFromRequest(r)
	items, total, err := h.service.ListShops(r.Context(), filters)
	if err != nil {
		h.fail(w, r, "list shops", err)
		return
	}
	respondList(w, filters, items, total)
}

func (h *Handler) showShop(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shop, err := h.service.GetShop(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get shop", err)
		return
	}
	httpx.JSON(w, http.StatusOK, shop)
}

func (req shopRequest) toShop() Shop {
	return Shop{
		Name:                   req.Name,
		Contact:                req.Contact,
		Address:                req.Address,
		DeliveryRoute:          req.DeliveryRoute,
		DefaultSellingRate:     req.DefaultSellingRate,
		DefaultSellingQuantity: req.DefaultSellingQuantity,
		PaymentPref:            req.PaymentPref,
		Active:                 activeOrDefault(req.Active),
	}
}

func (h *Handler) createShop(w http.ResponseWriter, r *http.Request) {
	var req shopRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	shop, err := h.service.CreateShop(r.Context(), req.toShop())
	if err != nil {
		h.fail(w, r, "create shop", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, shop)
}

func (h *Handler) updateShop(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req shopRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.UpdateShop(r.Context(), id, req.toShop()); err != nil {
		h.fail(w, r, "update shop", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	filters := filtersFromRequest(r)
	items, total, err := h.service.ListCustomers(r.Context(), filters)
	if err != nil {
		h.fail(w, r, "list customers", err)
		return
	}
	respondList(w, filters, items, total)
}

func (h *Handler) showCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	customer, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get customer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	customer, err := h.service.CreateCustomer(r.Context(), Customer{Name: req.Name, Phone: req.Phone})
	if err != nil {
		h.fail(w, r, "create customer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}
