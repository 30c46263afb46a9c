package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mms-dairy/mms/internal/inventory"
	"github.com/mms-dairy/mms/internal/platform/db"
	"github.com/mms-dairy/mms/internal/shared"
)

// Repository handles database operations for sales.
type Repository struct {
	pool  *pgxpool.Pool
	txCfg db.TxConfig
}

// NewRepository creates a new sales repository.
func NewRepository(pool *pgxpool.Pool, txCfg db.TxConfig) *Repository {
	return &Repository{pool: pool, txCfg: txCfg}
}

type txRepo struct {
	*inventory.PgLedgerTx
}

// WithTx runs fn in a ledger transaction shared with the stock rows it touches.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, r.txCfg, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{PgLedgerTx: inventory.NewPgLedgerTx(tx)})
	})
	return shared.TranslatePgError("sales", err)
}

func (r *Repository) StockProductID(ctx context.Context, stockID int64) (int64, error) {
	var productID int64
	err := r.pool.QueryRow(ctx, `SELECT product_id FROM stocks WHERE id = $1`, stockID).Scan(&productID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &shared.ReferenceError{Entity: "stock", ID: stockID}
	}
	return productID, err
}

const subscriptionColumns = `id, COALESCE(customer_id, 0), COALESCE(shop_id, 0), stock_id, quantity, rate, shift, start_date, end_date, active`

func scanSubscription(row pgx.Row) (Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.CustomerID, &s.ShopID, &s.StockID, &s.Quantity, &s.Rate, &s.Shift, &s.StartDate, &s.EndDate, &s.Active)
	return s, err
}

func (r *Repository) CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO subscriptions (customer_id, shop_id, stock_id, quantity, rate, shift, start_date, end_date, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+subscriptionColumns,
		inventory.NullInt64(sub.CustomerID), inventory.NullInt64(sub.ShopID), sub.StockID, sub.Quantity, sub.Rate,
		string(sub.Shift), sub.StartDate, sub.EndDate, sub.Active)
	created, err := scanSubscription(row)
	if err != nil {
		return Subscription{}, shared.TranslatePgError("subscription", err)
	}
	return created, nil
}

func (r *Repository) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	return r.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY id`)
}

func (r *Repository) ActiveSubscriptions(ctx context.Context, day time.Time) ([]Subscription, error) {
	return r.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
WHERE active AND start_date <= $1 AND (end_date IS NULL OR end_date >= $1)
ORDER BY id`, day)
}

func (r *Repository) querySubscriptions(ctx context.Context, query string, args ...any) ([]Subscription, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) UpsertSubscriptionException(ctx context.Context, exc SubscriptionException) (SubscriptionException, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO subscription_exceptions (subscription_id, date, quantity, skip, notes)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (subscription_id, date) DO UPDATE SET quantity = EXCLUDED.quantity, skip = EXCLUDED.skip, notes = EXCLUDED.notes`,
		exc.SubscriptionID, exc.Date, exc.Quantity, exc.Skip, exc.Notes)
	if err != nil {
		return SubscriptionException{}, shared.TranslatePgError("subscription_exception", err)
	}
	return exc, nil
}

func (r *Repository) SubscriptionExceptions(ctx context.Context, day time.Time) (map[int64]SubscriptionException, error) {
	rows, err := r.pool.Query(ctx, `SELECT subscription_id, date, quantity, skip, COALESCE(notes, '')
FROM subscription_exceptions WHERE date = $1`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]SubscriptionException)
	for rows.Next() {
		var e SubscriptionException
		if err := rows.Scan(&e.SubscriptionID, &e.Date, &e.Quantity, &e.Skip, &e.Notes); err != nil {
			return nil, err
		}
		out[e.SubscriptionID] = e
	}
	return out, rows.Err()
}

// Sale rows carry stock_id only; the derived tables expose the product for filtering.
const (
	wholesaleSource = `(SELECT w.*, s.product_id FROM wholesale_sales w JOIN stocks s ON s.id = w.stock_id) sale`
	wholesaleFields = `id, shop_id, stock_id, product_id, shift, quantity, added_water, rate, discount, total_amount, cost, profit,
	payment_status, COALESCE(notes, ''), occurred_at, COALESCE(actor_id, 0)`
	retailSource = `(SELECT r.*, s.product_id FROM retail_sales r JOIN stocks s ON s.id = r.stock_id) sale`
	retailFields = `id, COALESCE(customer_id, 0), stock_id, product_id, shift, quantity, added_water, rate, total, cost, profit,
	payment_status, COALESCE(notes, ''), occurred_at, COALESCE(actor_id, 0)`
)

func scanWholesale(row pgx.Row) (WholesaleSale, error) {
	var s WholesaleSale
	err := row.Scan(&s.ID, &s.ShopID, &s.StockID, &s.ProductID, &s.Shift, &s.Quantity, &s.AddedWater, &s.Rate, &s.Discount,
		&s.TotalAmount, &s.Cost, &s.Profit, &s.PaymentStatus, &s.Notes, &s.OccurredAt, &s.ActorID)
	return s, err
}

func scanRetail(row pgx.Row) (RetailSale, error) {
	var s RetailSale
	err := row.Scan(&s.ID, &s.CustomerID, &s.StockID, &s.ProductID, &s.Shift, &s.Quantity, &s.AddedWater, &s.Rate,
		&s.Total, &s.Cost, &s.Profit, &s.PaymentStatus, &s.Notes, &s.OccurredAt, &s.ActorID)
	return s, err
}

func (r *Repository) ListWholesaleSales(ctx context.Context, filter shared.ListFilter) ([]WholesaleSale, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+wholesaleFields+` FROM `+wholesaleSource+` WHERE `+inventory.ListWindow, inventory.ListWindowArgs(filter)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WholesaleSale
	for rows.Next() {
		sale, err := scanWholesale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sale)
	}
	return out, rows.Err()
}

func (r *Repository) GetWholesaleSale(ctx context.Context, id int64) (WholesaleSale, error) {
	sale, err := scanWholesale(r.pool.QueryRow(ctx, `SELECT `+wholesaleFields+` FROM `+wholesaleSource+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return WholesaleSale{}, fmt.Errorf("wholesale sale %d: %w", id, shared.ErrNotFound)
	}
	return sale, err
}

func (r *Repository) ListRetailSales(ctx context.Context, filter shared.ListFilter) ([]RetailSale, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+retailFields+` FROM `+retailSource+` WHERE `+inventory.ListWindow, inventory.ListWindowArgs(filter)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RetailSale
	for rows.Next() {
		sale, err := scanRetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sale)
	}
	return out, rows.Err()
}

func (r *Repository) GetRetailSale(ctx context.Context, id int64) (RetailSale, error) {
	sale, err := scanRetail(r.pool.QueryRow(ctx, `SELECT `+retailFields+` FROM `+retailSource+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return RetailSale{}, fmt.Errorf("retail sale %d: %w", id, shared.ErrNotFound)
	}
	return sale, err
}

func (t *txRepo) ShopName(ctx context.Context, shopID int64) (string, error) {
	var name string
	err := t.Tx().QueryRow(ctx, `SELECT name FROM shops WHERE id = $1`, shopID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", &shared.ReferenceError{Entity: "shop", ID: shopID}
	}
	return name, err
}

func (t *txRepo) CustomerName(ctx context.Context, customerID int64) (string, error) {
	var name string
	err := t.Tx().QueryRow(ctx, `SELECT name FROM retail_customers WHERE id = $1`, customerID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", &shared.ReferenceError{Entity: "customer", ID: customerID}
	}
	return name, err
}

func (t *txRepo) InsertWholesaleSale(ctx context.Context, s WholesaleSale) (WholesaleSale, error) {
	err := t.Tx().QueryRow(ctx, `INSERT INTO wholesale_sales (shop_id, stock_id, shift, quantity, added_water, rate, discount,
	total_amount, cost, profit, payment_status, notes, occurred_at, actor_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
		s.ShopID, s.StockID, string(s.Shift), s.Quantity, s.AddedWater, s.Rate, s.Discount,
		s.TotalAmount, s.Cost, s.Profit, string(s.PaymentStatus), s.Notes, s.OccurredAt, inventory.NullInt64(s.ActorID)).
		Scan(&s.ID)
	return s, err
}

func (t *txRepo) InsertRetailSale(ctx context.Context, s RetailSale) (RetailSale, error) {
	err := t.Tx().QueryRow(ctx, `INSERT INTO retail_sales (customer_id, stock_id, shift, quantity, added_water, rate,
	total, cost, profit, payment_status, notes, occurred_at, actor_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`,
		inventory.NullInt64(s.CustomerID), s.StockID, string(s.Shift), s.Quantity, s.AddedWater, s.Rate,
		s.Total, s.Cost, s.Profit, string(s.PaymentStatus), s.Notes, s.OccurredAt, inventory.NullInt64(s.ActorID)).
		Scan(&s.ID)
	return s, err
}
