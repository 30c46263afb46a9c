package masterdata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mms-dairy/mms/internal/shared"
)

// ErrProductUnitLocked is returned when the unit of a referenced product is changed.
var ErrProductUnitLocked = errors.New("masterdata: product unit cannot change once purchases or sales reference it")

// Service implements registry use cases.
type Service struct {
	repo Repository
}

// NewService creates a new master data service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Product operations
func (s *Service) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, normalizeFilters(filters))
}

func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.NewValidationError("id", "invalid product ID")
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, product Product) (Product, error) {
	if product.Unit == "" {
		product.Unit = UnitLiter
	}
	if err := validateProduct(product); err != nil {
		return Product{}, err
	}
	return s.repo.CreateProduct(ctx, product)
}

// UpdateProduct updates descriptive fields, and the unit only while nothing references the product.
func (s *Service) UpdateProduct(ctx context.Context, id int64, product Product) error {
	if id <= 0 {
		return shared.NewValidationError("id", "invalid product ID")
	}
	current, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if product.Unit == "" {
		product.Unit = current.Unit
	}
	if err := validateProduct(product); err != nil {
		return err
	}
	if product.Unit != current.Unit {
		inUse, err := s.repo.ProductInUse(ctx, id)
		if err != nil {
			return fmt.Errorf("masterdata: check product usage: %w", err)
		}
		if inUse {
			return ErrProductUnitLocked
		}
		if err := s.repo.UpdateProductUnit(ctx, id, product.Unit); err != nil {
			return err
		}
	}
	return s.repo.UpdateProductDetails(ctx, id, strings.TrimSpace(product.Name), product.Description)
}

// Supplier operations
func (s *Service) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	return s.repo.ListSuppliers(ctx, normalizeFilters(filters))
}

func (s *Service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, shared.NewValidationError("id", "invalid supplier ID")
	}
	return s.repo.GetSupplier(ctx, id)
}

func (s *Service) CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error) {
	if strings.TrimSpace(supplier.Name) == "" {
		return Supplier{}, shared.NewValidationError("name", "supplier name is required")
	}
	return s.repo.CreateSupplier(ctx, supplier)
}

func (s *Service) UpdateSupplier(ctx context.Context, id int64, supplier Supplier) error {
	if id <= 0 {
		return shared.NewValidationError("id", "invalid supplier ID")
	}
	if strings.TrimSpace(supplier.Name) == "" {
		return shared.NewValidationError("name", "supplier name is required")
	}
	return s.repo.UpdateSupplier(ctx, id, supplier)
}

// Shop operations
func (s *Service) ListShops(ctx context.Context, filters ListFilters) ([]Shop, int, error) {
	return s.repo.ListShops(ctx, normalizeFilters(filters))
}

func (s *Service) GetShop(ctx context.Context, id int64) (Shop, error) {
	if id <= 0 {
		return Shop{}, shared.NewValidationError("id", "invalid shop ID")
	}
	return s.repo.GetShop(ctx, id)
}

func (s *Service) CreateShop(ctx context.Context, shop Shop) (Shop, error) {
	if shop.PaymentPref == "" {
		shop.PaymentPref = PaymentCash
	}
	if err := validateShop(shop); err != nil {
		return Shop{}, err
	}
	return s.repo.CreateShop(ctx, shop)
}

func (s *Service) UpdateShop(ctx context.Context, id int64, shop Shop) error {
	if id <= 0 {
		return shared.NewValidationError("id", "invalid shop ID")
	}
	if shop.PaymentPref == "" {
		shop.PaymentPref = PaymentCash
	}
	if err := validateShop(shop); err != nil {
		return err
	}
	return s.repo.UpdateShop(ctx, id, shop)
}

// Customer operations
func (s *Service) ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error) {
	return s.repo.ListCustomers(ctx, normalizeFilters(filters))
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	if id <= 0 {
		return Customer{}, shared.NewValidationError("id", "invalid customer ID")
	}
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) CreateCustomer(ctx context.Context, customer Customer) (Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return Customer{}, shared.NewValidationError("name", "customer name is required")
	}
	return s.repo.CreateCustomer(ctx, customer)
}

func validateProduct(p Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return shared.NewValidationError("name", "product name is required")
	}
	if !p.Unit.Valid() {
		return shared.NewValidationError("unit", "unit must be either 'liter' or 'kg'")
	}
	return nil
}

func validateShop(shop Shop) error {
	if strings.TrimSpace(shop.Name) == "" {
		return shared.NewValidationError("name", "shop name is required")
	}
	if shop.PaymentPref != PaymentCash && shop.PaymentPref != PaymentCredit {
		return shared.NewValidationError("payment_pref", "payment preference must be 'cash' or 'credit'")
	}
	if shop.DefaultSellingRate != nil && shop.DefaultSellingRate.IsNegative() {
		return shared.NewValidationError("default_selling_rate", "must not be negative")
	}
	if shop.DefaultSellingQuantity != nil && shop.DefaultSellingQuantity.IsNegative() {
		return shared.NewValidationError("default_selling_quantity", "must not be negative")
	}
	return nil
}

func normalizeFilters(f ListFilters) ListFilters {
	p := shared.NewPagination(f.Page, f.Limit, 0)
	f.Page = p.Page
	f.Limit = p.PerPage
	return f
}
