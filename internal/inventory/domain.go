package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Direction tells whether a movement adds to or draws from stock.
type Direction string

const (
	// DirectionIn increases stock.
	DirectionIn Direction = "in"
	// DirectionOut decreases stock.
	DirectionOut Direction = "out"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// QuantityPlaces is the precision stock quantities are kept at.
const QuantityPlaces = 3

// MoneyPlaces is the precision monetary amounts are stored at.
const MoneyPlaces = 2

// ErrStockNotFound indicates the product has no stock row yet.
var ErrStockNotFound = errors.New("inventory: stock not found")

// Stock is the single current quantity held for a product.
type Stock struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Movement is an append-only ledger entry.
type Movement struct {
	ID         int64           `json:"id"`
	ProductID  int64           `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Direction  Direction       `json:"direction"`
	OccurredAt time.Time       `json:"occurred_at"`
	Note       string          `json:"note"`
	ActorID    int64           `json:"actor_id,omitempty"`
	RefModule  string          `json:"ref_module,omitempty"`
	RefID      int64           `json:"ref_id,omitempty"`
}

// Signed returns the quantity with the sign of its direction.
func (m Movement) Signed() decimal.Decimal {
	if m.Direction == DirectionOut {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// Purchase records milk received from a supplier.
type Purchase struct {
	ID          int64           `json:"id"`
	SupplierID  int64           `json:"supplier_id"`
	ProductID   int64           `json:"product_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	ExtraIce    decimal.Decimal `json:"extra_ice"`
	Rate        decimal.Decimal `json:"rate"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Notes       string          `json:"notes,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
	ActorID     int64           `json:"actor_id,omitempty"`
}

// Wastage records stock written off.
type Wastage struct {
	ID         int64           `json:"id"`
	ProductID  int64           `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Reason     string          `json:"reason"`
	OccurredAt time.Time       `json:"occurred_at"`
	ActorID    int64           `json:"actor_id,omitempty"`
}

// PurchaseInput describes a purchase to record.
type PurchaseInput struct {
	SupplierID     int64
	ProductID      int64
	Quantity       decimal.Decimal
	ExtraIce       decimal.Decimal
	Rate           decimal.Decimal
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// WastageInput describes a write-off.
type WastageInput struct {
	ProductID      int64
	Quantity       decimal.Decimal
	Reason         string
	ActorID        int64
	IdempotencyKey string
}

// MovementInput describes a direct stock correction.
type MovementInput struct {
	ProductID      int64
	Quantity       decimal.Decimal
	Direction      Direction
	Note           string
	ActorID        int64
	IdempotencyKey string
}

// PurchaseTotals aggregates the purchase history of a product.
type PurchaseTotals struct {
	Quantity decimal.Decimal
	Cost     decimal.Decimal
}

// LedgerBalance pairs the stored stock quantity with the movement log totals.
type LedgerBalance struct {
	ProductID     int64
	StockQuantity decimal.Decimal
	MovementIn    decimal.Decimal
	MovementOut   decimal.Decimal
}

// Discrepancy reports a product whose stock disagrees with its movement log.
type Discrepancy struct {
	ProductID      int64           `json:"product_id"`
	StockQuantity  decimal.Decimal `json:"stock_quantity"`
	LedgerQuantity decimal.Decimal `json:"ledger_quantity"`
}

// Difference is stock minus ledger.
func (d Discrepancy) Difference() decimal.Decimal {
	return d.StockQuantity.Sub(d.LedgerQuantity)
}
