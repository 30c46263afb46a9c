package sales

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mms-dairy/mms/internal/platform/httpx"
	"github.com/mms-dairy/mms/internal/shared"
)

// Handler handles HTTP requests for sales.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates a new sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes mounts sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/wholesale", h.createWholesale)
	r.Get("/wholesale", h.listWholesale)
	r.Get("/wholesale/{id}", h.showWholesale)
	r.Post("/retail", h.createRetail)
	r.Get("/retail", h.listRetail)
	r.Get("/retail/{id}", h.showRetail)

	r.Route("/subscriptions", func(r chi.Router) {
		r.Get("/", h.listSubscriptions)
		r.Post("/", h.createSubscription)
		r.Post("/generate", h.generate)
		r.Put("/{id}/exceptions", h.setException)
	})
}

type wholesaleRequest struct {
	ShopID        int64           `json:"shop_id" validate:"required,gt=0"`
	StockID       int64           `json:"stock_id" validate:"required,gt=0"`
	Quantity      decimal.Decimal `json:"quantity"`
	AddedWater    decimal.Decimal `json:"added_water"`
	Rate          decimal.Decimal `json:"rate"`
	Discount      decimal.Decimal `json:"discount"`
	Shift         Shift           `json:"shift" validate:"omitempty,oneof=morning evening"`
	PaymentStatus PaymentStatus   `json:"payment_status" validate:"omitempty,oneof=paid pending partial"`
	Notes         string          `json:"notes" validate:"max=1000"`
}

type retailRequest struct {
	CustomerID    int64           `json:"customer_id" validate:"gte=0"`
	StockID       int64           `json:"stock_id" validate:"required,gt=0"`
	Quantity      decimal.Decimal `json:"quantity"`
	AddedWater    decimal.Decimal `json:"added_water"`
	Rate          decimal.Decimal `json:"rate"`
	Shift         Shift           `json:"shift" validate:"omitempty,oneof=morning evening"`
	PaymentStatus PaymentStatus   `json:"payment_status" validate:"omitempty,oneof=paid pending"`
	Notes         string          `json:"notes" validate:"max=1000"`
}

type subscriptionRequest struct {
	CustomerID int64           `json:"customer_id" validate:"gte=0"`
	ShopID     int64           `json:"shop_id" validate:"gte=0"`
	StockID    int64           `json:"stock_id" validate:"required,gt=0"`
	Quantity   decimal.Decimal `json:"quantity"`
	Rate       decimal.Decimal `json:"rate"`
	Shift      Shift           `json:"shift" validate:"required,oneof=morning evening"`
	StartDate  string          `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate    string          `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Active     *bool           `json:"active"`
}

type exceptionRequest struct {
	Date     string           `json:"date" validate:"required,datetime=2006-01-02"`
	Quantity *decimal.Decimal `json:"quantity"`
	Skip     bool             `json:"skip"`
	Notes    string           `json:"notes" validate:"max=1000"`
}

type generateRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type generateResponse struct {
	Date  string          `json:"date"`
	Sales []GeneratedSale `json:"sales"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Warn(op+" failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}

func (h *Handler) createWholesale(w http.ResponseWriter, r *http.Request) {
	var req wholesaleRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.RecordWholesaleSale(r.Context(), WholesaleInput{
		ShopID:         req.ShopID,
		StockID:        req.StockID,
		Quantity:       req.Quantity,
		AddedWater:     req.AddedWater,
		Rate:           req.Rate,
		Discount:       req.Discount,
		Shift:          req.Shift,
		PaymentStatus:  req.PaymentStatus,
		Notes:          req.Notes,
		ActorID:        shared.ActorFromContext(r.Context()),
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, r, "record wholesale sale", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) createRetail(w http.ResponseWriter, r *http.Request) {
	var req retailRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.RecordRetailSale(r.Context(), RetailInput{
		CustomerID:     req.CustomerID,
		StockID:        req.StockID,
		Quantity:       req.Quantity,
		AddedWater:     req.AddedWater,
		Rate:           req.Rate,
		Shift:          req.Shift,
		PaymentStatus:  req.PaymentStatus,
		Notes:          req.Notes,
		ActorID:        shared.ActorFromContext(r.Context()),
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, r, "record retail sale", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) listWholesale(w http.ResponseWriter, r *http.Request) {
	filter, err := httpx.ParseListFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListWholesaleSales(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list wholesale sales", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) showWholesale(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.GetWholesaleSale(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get wholesale sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) listRetail(w http.ResponseWriter, r *http.Request) {
	filter, err := httpx.ParseListFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListRetailSales(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list retail sales", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) showRetail(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.GetRetailSale(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get retail sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.ListSubscriptions(r.Context())
	if err != nil {
		h.fail(w, r, "list subscriptions", err)
		return
	}
	if subs == nil {
		subs = []Subscription{}
	}
	httpx.JSON(w, http.StatusOK, subs)
}

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sub := Subscription{
		CustomerID: req.CustomerID,
		ShopID:     req.ShopID,
		StockID:    req.StockID,
		Quantity:   req.Quantity,
		Rate:       req.Rate,
		Shift:      req.Shift,
		Active:     req.Active == nil || *req.Active,
	}
	if req.StartDate != "" {
		sub.StartDate, _ = time.Parse(time.DateOnly, req.StartDate)
	}
	if req.EndDate != "" {
		end, _ := time.Parse(time.DateOnly, req.EndDate)
		sub.EndDate = &end
	}
	created, err := h.service.CreateSubscription(r.Context(), sub)
	if err != nil {
		h.fail(w, r, "create subscription", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) setException(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req exceptionRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := time.Parse(time.DateOnly, req.Date)
	saved, err := h.service.SetSubscriptionException(r.Context(), SubscriptionException{
		SubscriptionID: id,
		Date:           date,
		Quantity:       req.Quantity,
		Skip:           req.Skip,
		Notes:          req.Notes,
	})
	if err != nil {
		h.fail(w, r, "set subscription exception", err)
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeAndValidate(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	day := time.Now().UTC()
	if req.Date != "" {
		day, _ = time.Parse(time.DateOnly, req.Date)
	}
	day = Day(day)
	results, err := h.service.GenerateSubscriptionSales(r.Context(), day, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "generate subscription sales", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, generateResponse{Date: day.Format(time.DateOnly), Sales: results})
}
