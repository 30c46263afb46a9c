package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mms-dairy/mms/internal/platform/httpx"
	"github.com/mms-dairy/mms/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchases", h.handlePurchase)
	r.Get("/purchases", h.listPurchases)
	r.Get("/purchases/{id}", h.showPurchase)
	r.Post("/wastages", h.handleWastage)
	r.Get("/wastages", h.listWastages)
	r.Get("/wastages/{id}", h.showWastage)
	r.Post("/movements", h.handleMovement)
	r.Get("/movements", h.listMovements)
	r.Get("/stock", h.listStock)
	r.Get("/stock/{productID}", h.showStock)
	r.Get("/reconciliation", h.reconcile)
}

type purchaseRequest struct {
	SupplierID int64           `json:"supplier_id" validate:"required,gt=0"`
	ProductID  int64           `json:"product_id" validate:"required,gt=0"`
	Quantity   decimal.Decimal `json:"quantity"`
	ExtraIce   decimal.Decimal `json:"extra_ice"`
	Rate       decimal.Decimal `json:"rate"`
	Notes      string          `json:"notes" validate:"max=1000"`
}

type wastageRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	Reason    string          `json:"reason" validate:"required,max=1000"`
}

type movementRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	Direction Direction       `json:"direction" validate:"required,oneof=in out"`
	Note      string          `json:"note" validate:"max=1000"`
}

type stockLevelResponse struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	level := slog.LevelWarn
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, op+" failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	purchase, err := h.service.RecordPurchase(r.Context(), PurchaseInput{
		SupplierID:     req.SupplierID,
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		ExtraIce:       req.ExtraIce,
		Rate:           req.Rate,
		Notes:          req.Notes,
		ActorID:        shared.ActorFromContext(r.Context()),
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, r, "record purchase", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchase)
}

func (h *Handler) handleWastage(w http.ResponseWriter, r *http.Request) {
	var req wastageRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	wastage, err := h.service.RecordWastage(r.Context(), WastageInput{
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		Reason:         req.Reason,
		ActorID:        shared.ActorFromContext(r.Context()),
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, r, "record wastage", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, wastage)
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	movement, err := h.service.RecordMovement(r.Context(), MovementInput{
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		Direction:      req.Direction,
		Note:           req.Note,
		ActorID:        shared.ActorFromContext(r.Context()),
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, r, "record movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	filter, err := httpx.ParseListFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	filter, err := httpx.ParseListFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListPurchases(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list purchases", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) showPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	purchase, err := h.service.GetPurchase(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get purchase", err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) listWastages(w http.ResponseWriter, r *http.Request) {
	filter, err := httpx.ParseListFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListWastages(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list wastages", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) showWastage(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	wastage, err := h.service.GetWastage(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get wastage", err)
		return
	}
	httpx.JSON(w, http.StatusOK, wastage)
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	stock, err := h.service.ListStock(r.Context())
	if err != nil {
		h.fail(w, r, "list stock", err)
		return
	}
	if stock == nil {
		stock = []Stock{}
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) showStock(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.IDParam(r, "productID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	qty, err := h.service.GetStockLevel(r.Context(), productID)
	if err != nil {
		h.fail(w, r, "get stock level", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stockLevelResponse{ProductID: productID, Quantity: qty})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	discrepancies, err := h.service.Reconcile(r.Context())
	if err != nil {
		h.fail(w, r, "reconcile", err)
		return
	}
	if discrepancies == nil {
		discrepancies = []Discrepancy{}
	}
	httpx.JSON(w, http.StatusOK, discrepancies)
}
