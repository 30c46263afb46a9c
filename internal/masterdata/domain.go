package masterdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Unit is the unit of measure a product is stocked in.
type Unit string

const (
	// UnitLiter is a volume unit.
	UnitLiter Unit = "liter"
	// UnitKilogram is a mass unit.
	UnitKilogram Unit = "kg"
)

// Valid reports whether u is a supported unit.
func (u Unit) Valid() bool {
	return u == UnitLiter || u == UnitKilogram
}

// PaymentPref is the payment preference of a shop.
type PaymentPref string

const (
	PaymentCash   PaymentPref = "cash"
	PaymentCredit PaymentPref = "credit"
)

// ListFilters represents standard list filters.
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	IsActive *bool
}

// Product is a stocked item. Name and description stay editable; unit is fixed once
// purchases or sales reference the product.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Unit        Unit      `json:"unit"`
	CreatedAt   time.Time `json:"created_at"`
}

// Supplier delivers milk to the business.
type Supplier struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Address   string    `json:"address"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Shop is a wholesale buyer.
type Shop struct {
	ID                     int64            `json:"id"`
	Name                   string           `json:"name"`
	Contact                string           `json:"contact"`
	Address                string           `json:"address"`
	DeliveryRoute          string           `json:"delivery_route"`
	DefaultSellingRate     *decimal.Decimal `json:"default_selling_rate"`
	DefaultSellingQuantity *decimal.Decimal `json:"default_selling_quantity"`
	PaymentPref            PaymentPref      `json:"payment_pref"`
	Active                 bool             `json:"active"`
	CreatedAt              time.Time        `json:"created_at"`
}

// Customer is a retail buyer.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists registry data.
type Repository interface {
	ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	CreateProduct(ctx context.Context, product Product) (Product, error)
	UpdateProductDetails(ctx context.Context, id int64, name, description string) error
	ProductInUse(ctx context.Context, id int64) (bool, error)
	UpdateProductUnit(ctx context.Context, id int64, unit Unit) error

	ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error)
	UpdateSupplier(ctx context.Context, id int64, supplier Supplier) error

	ListShops(ctx context.Context, filters ListFilters) ([]Shop, int, error)
	GetShop(ctx context.Context, id int64) (Shop, error)
	CreateShop(ctx context.Context, shop Shop) (Shop, error)
	UpdateShop(ctx context.Context, id int64, shop Shop) error

	ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	CreateCustomer(ctx context.Context, customer Customer) (Customer, error)
}
