package masterdata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mms-dairy/mms/internal/shared"
)

// repo implements Repository on PostgreSQL.
type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new master data repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

// listQuery appends search, active filter and pagination to a base SELECT over table.
func listQuery(base, countBase string, searchCols []string, hasActive bool, filters ListFilters) (string, string, []any) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND (`
		for i, col := range searchCols {
			if i > 0 {
				where += ` OR `
			}
			where += col + ` ILIKE $1`
		}
		where += `)`
	}
	if hasActive && filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND active = $` + strconv.Itoa(len(args))
	}
	countQuery := countBase + where
	query := base + where + ` ORDER BY name ASC, id ASC`
	if filters.Limit > 0 {
		page := shared.NewPagination(filters.Page, filters.Limit, 0)
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, page.PerPage, page.Offset())
	}
	return query, countQuery, args
}

func notFound(err error, entity string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", entity, shared.ErrNotFound)
	}
	return err
}

// Product operations
func (r *repo) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	query, countQuery, args := listQuery(
		`SELECT id, name, COALESCE(description, ''), unit, created_at FROM products`,
		`SELECT COUNT(*) FROM products`,
		[]string{"name", "description"}, false, filters)

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Unit, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repo) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.db.QueryRow(ctx, `SELECT id, name, COALESCE(description, ''), unit, created_at FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Unit, &p.CreatedAt)
	return p, notFound(err, "product")
}

func (r *repo) CreateProduct(ctx context.Context, product Product) (Product, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, `INSERT INTO products (name, description, unit, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		product.Name, product.Description, string(product.Unit), now).Scan(&product.ID)
	if err != nil {
		return Product{}, err
	}
	product.CreatedAt = now
	return product, nil
}

func (r *repo) UpdateProductDetails(ctx context.Context, id int64, name, description string) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET name = $1, description = $2 WHERE id = $3`, name, description, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product: %w", shared.ErrNotFound)
	}
	return nil
}

func (r *repo) ProductInUse(ctx context.Context, id int64) (bool, error) {
	var inUse bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchases WHERE product_id = $1)
	OR EXISTS (SELECT 1 FROM wastages WHERE product_id = $1)
	OR EXISTS (SELECT 1 FROM stock_movements WHERE product_id = $1)`, id).Scan(&inUse)
	return inUse, err
}

func (r *repo) UpdateProductUnit(ctx context.Context, id int64, unit Unit) error {
	_, err := r.db.Exec(ctx, `UPDATE products SET unit = $1 WHERE id = $2`, string(unit), id)
	return err
}

// Supplier operations
func (r *repo) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	query, countQuery, args := listQuery(
		`SELECT id, name, COALESCE(contact, ''), COALESCE(address, ''), active, created_at FROM suppliers`,
		`SELECT COUNT(*) FROM suppliers`,
		[]string{"name", "contact"}, true, filters)

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	suppliers := []Supplier{}
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.Contact, &s.Address, &s.Active, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, total, rows.Err()
}

func (r *repo) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.db.QueryRow(ctx, `SELECT id, name, COALESCE(contact, ''), COALESCE(address, ''), active, created_at FROM suppliers WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Contact, &s.Address, &s.Active, &s.CreatedAt)
	return s, notFound(err, "supplier")
}

func (r *repo) CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, `INSERT INTO suppliers (name, contact, address, active, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		supplier.Name, supplier.Contact, supplier.Address, supplier.Active, now).Scan(&supplier.ID)
	if err != nil {
		return Supplier{}, err
	}
	supplier.CreatedAt = now
	return supplier, nil
}

func (r *repo) UpdateSupplier(ctx context.Context, id int64, supplier Supplier) error {
	tag, err := r.db.Exec(ctx, `UPDATE suppliers SET name = $1, contact = $2, address = $3, active = $4 WHERE id = $5`,
		supplier.Name, supplier.Contact, supplier.Address, supplier.Active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("supplier: %w", shared.ErrNotFound)
	}
	return nil
}

// Shop operations
const shopColumns = `id, name, COALESCE(contact, ''), COALESCE(address, ''), COALESCE(delivery_route, ''),
	default_selling_rate, default_selling_quantity, payment_pref, active, created_at`

func scanShop(row pgx.Row) (Shop, error) {
	var s Shop
	err := row.Scan(&s.ID, &s.Name, &s.Contact, &s.Address, &s.DeliveryRoute,
		&s.DefaultSellingRate, &s.DefaultSellingQuantity, &s.PaymentPref, &s.Active, &s.CreatedAt)
	return s, err
}

func (r *repo) ListShops(ctx context.Context, filters ListFilters) ([]Shop, int, error) {
	query, countQuery, args := listQuery(
		`SELECT `+shopColumns+` FROM shops`,
		`SELECT COUNT(*) FROM shops`,
		[]string{"name", "delivery_route"}, true, filters)

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	shops := []Shop{}
	for rows.Next() {
		s, err := scanShop(rows)
		if err != nil {
			return nil, 0, err
		}
		shops = append(shops, s)
	}
	return shops, total, rows.Err()
}

func (r *repo) GetShop(ctx context.Context, id int64) (Shop, error) {
	s, err := scanShop(r.db.QueryRow(ctx, `SELECT `+shopColumns+` FROM shops WHERE id = $1`, id))
	return s, notFound(err, "shop")
}

func (r *repo) CreateShop(ctx context.Context, shop Shop) (Shop, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, `INSERT INTO shops (name, contact, address, delivery_route, default_selling_rate, default_selling_quantity, payment_pref, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		shop.Name, shop.Contact, shop.Address, shop.DeliveryRoute, shop.DefaultSellingRate, shop.DefaultSellingQuantity,
		string(shop.PaymentPref), shop.Active, now).Scan(&shop.ID)
	if err != nil {
		return Shop{}, err
	}
	shop.CreatedAt = now
	return shop, nil
}

func (r *repo) UpdateShop(ctx context.Context, id int64, shop Shop) error {
	tag, err := r.db.Exec(ctx, `UPDATE shops SET name = $1, contact = $2, address = $3, delivery_route = $4,
default_selling_rate = $5, default_selling_quantity = $6, payment_pref = $7, active = $8 WHERE id = $9`,
		shop.Name, shop.Contact, shop.Address, shop.DeliveryRoute, shop.DefaultSellingRate, shop.DefaultSellingQuantity,
		string(shop.PaymentPref), shop.Active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("shop: %w", shared.ErrNotFound)
	}
	return nil
}

// Customer operations
func (r *repo) ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error) {
	query, countQuery, args := listQuery(
		`SELECT id, name, COALESCE(phone, ''), created_at FROM retail_customers`,
		`SELECT COUNT(*) FROM retail_customers`,
		[]string{"name", "phone"}, false, filters)

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	customers := []Customer{}
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt); err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

func (r *repo) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `SELECT id, name, COALESCE(phone, ''), created_at FROM retail_customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt)
	return c, notFound(err, "customer")
}

func (r *repo) CreateCustomer(ctx context.Context, customer Customer) (Customer, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, `INSERT INTO retail_customers (name, phone, created_at) VALUES ($1, $2, $3) RETURNING id`,
		customer.Name, customer.Phone, now).Scan(&customer.ID)
	if err != nil {
		return Customer{}, err
	}
	customer.CreatedAt = now
	return customer, nil
}
