package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// Shift tags a sale with its delivery window. Informational only.
type Shift string

const (
	ShiftNone    Shift = ""
	ShiftMorning Shift = "morning"
	ShiftEvening Shift = "evening"
)

// Valid reports whether s is a known shift; the empty shift is allowed.
func (s Shift) Valid() bool {
	return s == ShiftNone || s == ShiftMorning || s == ShiftEvening
}

// PaymentStatus tracks settlement of a sale.
type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
)

// Channel names the sale channel.
type Channel string

const (
	ChannelWholesale Channel = "wholesale"
	ChannelRetail    Channel = "retail"
)

// WholesaleSale is a sale to a shop. Cost is attributed at the latest purchase rate.
type WholesaleSale struct {
	ID            int64           `json:"id"`
	ShopID        int64           `json:"shop_id"`
	StockID       int64           `json:"stock_id"`
	ProductID     int64           `json:"product_id"`
	Shift         Shift           `json:"shift"`
	Quantity      decimal.Decimal `json:"quantity"`
	AddedWater    decimal.Decimal `json:"added_water"`
	Rate          decimal.Decimal `json:"rate"`
	Discount      decimal.Decimal `json:"discount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Cost          decimal.Decimal `json:"cost"`
	Profit        decimal.Decimal `json:"profit"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Notes         string          `json:"notes,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	ActorID       int64           `json:"actor_id,omitempty"`
}

// DeliveredQuantity is milk plus water handed over.
func (s WholesaleSale) DeliveredQuantity() decimal.Decimal {
	return s.Quantity.Add(s.AddedWater)
}

// RetailSale is a counter or delivery sale to a consumer. Cost is attributed at the
// weighted average purchase rate.
type RetailSale struct {
	ID            int64           `json:"id"`
	CustomerID    int64           `json:"customer_id,omitempty"`
	StockID       int64           `json:"stock_id"`
	ProductID     int64           `json:"product_id"`
	Shift         Shift           `json:"shift"`
	Quantity      decimal.Decimal `json:"quantity"`
	AddedWater    decimal.Decimal `json:"added_water"`
	Rate          decimal.Decimal `json:"rate"`
	Total         decimal.Decimal `json:"total"`
	Cost          decimal.Decimal `json:"cost"`
	Profit        decimal.Decimal `json:"profit"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Notes         string          `json:"notes,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	ActorID       int64           `json:"actor_id,omitempty"`
}

// DeliveredQuantity is milk plus water handed over.
func (s RetailSale) DeliveredQuantity() decimal.Decimal {
	return s.Quantity.Add(s.AddedWater)
}

// WholesaleInput describes a wholesale sale to record.
type WholesaleInput struct {
	ShopID         int64
	StockID        int64
	Quantity       decimal.Decimal
	AddedWater     decimal.Decimal
	Rate           decimal.Decimal
	Discount       decimal.Decimal
	Shift          Shift
	PaymentStatus  PaymentStatus
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// RetailInput describes a retail sale. CustomerID zero is a walk-in sale.
type RetailInput struct {
	CustomerID     int64
	StockID        int64
	Quantity       decimal.Decimal
	AddedWater     decimal.Decimal
	Rate           decimal.Decimal
	Shift          Shift
	PaymentStatus  PaymentStatus
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// Subscription is a standing daily order for a customer or a shop.
type Subscription struct {
	ID         int64           `json:"id"`
	CustomerID int64           `json:"customer_id,omitempty"`
	ShopID     int64           `json:"shop_id,omitempty"`
	StockID    int64           `json:"stock_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Rate       decimal.Decimal `json:"rate"`
	Shift      Shift           `json:"shift"`
	StartDate  time.Time       `json:"start_date"`
	EndDate    *time.Time      `json:"end_date,omitempty"`
	Active     bool            `json:"active"`
}

// Channel reports which sale a subscription generates.
func (s Subscription) Channel() Channel {
	if s.CustomerID != 0 {
		return ChannelRetail
	}
	return ChannelWholesale
}

// SubscriptionException overrides one day of a subscription.
type SubscriptionException struct {
	SubscriptionID int64            `json:"subscription_id"`
	Date           time.Time        `json:"date"`
	Quantity       *decimal.Decimal `json:"quantity,omitempty"`
	Skip           bool             `json:"skip"`
	Notes          string           `json:"notes,omitempty"`
}

// GeneratedSale reports what happened to one subscription during a generation run.
type GeneratedSale struct {
	SubscriptionID int64           `json:"subscription_id"`
	Channel        Channel         `json:"channel"`
	SaleID         int64           `json:"sale_id,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	Skipped        bool            `json:"skipped,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
