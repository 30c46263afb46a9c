package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mms-dairy/mms/internal/platform/db"
	"github.com/mms-dairy/mms/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool  *pgxpool.Pool
	txCfg db.TxConfig
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, txCfg db.TxConfig) *Repository {
	return &Repository{pool: pool, txCfg: txCfg}
}

type txRepo struct {
	*PgLedgerTx
}

// WithTx executes the callback inside a ledger transaction. Lock timeouts and
// serialization failures surface as shared.ConcurrencyConflictError.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, r.txCfg, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{PgLedgerTx: NewPgLedgerTx(tx)})
	})
	return shared.TranslatePgError("inventory", err)
}

func (r *Repository) GetStock(ctx context.Context, productID int64) (Stock, error) {
	var s Stock
	err := r.pool.QueryRow(ctx, `SELECT s.id, s.product_id, p.name, s.quantity, s.updated_at
FROM stocks s JOIN products p ON p.id = s.product_id WHERE s.product_id = $1`, productID).
		Scan(&s.ID, &s.ProductID, &s.ProductName, &s.Quantity, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stock{}, ErrStockNotFound
	}
	return s, err
}

func (r *Repository) ProductExists(ctx context.Context, productID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists)
	return exists, err
}

func (r *Repository) ListStock(ctx context.Context) ([]Stock, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.product_id, p.name, s.quantity, s.updated_at
FROM stocks s JOIN products p ON p.id = s.product_id ORDER BY p.name, s.product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Stock
	for rows.Next() {
		var s Stock
		if err := rows.Scan(&s.ID, &s.ProductID, &s.ProductName, &s.Quantity, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListWindow is the WHERE clause of id-ordered ledger listings, bound by ListWindowArgs:
// $1 product, $2 from, $3 to, $4 after id, $5 limit.
const ListWindow = `($1::bigint IS NULL OR product_id = $1)
	AND ($2::timestamptz IS NULL OR occurred_at >= $2)
	AND ($3::timestamptz IS NULL OR occurred_at <= $3)
	AND id > $4
ORDER BY id ASC
LIMIT $5`

// ListWindowArgs binds a filter to the placeholders of an id-ordered listing.
func ListWindowArgs(filter shared.ListFilter) []any {
	return []any{NullInt64(filter.ProductID), nullTime(filter.From), nullTime(filter.To), filter.AfterID, filter.Limit}
}

func (r *Repository) ListMovements(ctx context.Context, filter shared.ListFilter) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, quantity, direction, occurred_at, COALESCE(note, ''),
	COALESCE(actor_id, 0), COALESCE(ref_module, ''), COALESCE(ref_id, 0)
FROM stock_movements
WHERE `+ListWindow, ListWindowArgs(filter)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Quantity, &m.Direction, &m.OccurredAt, &m.Note,
			&m.ActorID, &m.RefModule, &m.RefID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const purchaseColumns = `id, supplier_id, product_id, quantity, extra_ice, rate, total_amount, COALESCE(notes, ''), occurred_at, COALESCE(actor_id, 0)`

func scanPurchase(row pgx.Row) (Purchase, error) {
	var p Purchase
	err := row.Scan(&p.ID, &p.SupplierID, &p.ProductID, &p.Quantity, &p.ExtraIce, &p.Rate, &p.TotalAmount, &p.Notes, &p.OccurredAt, &p.ActorID)
	return p, err
}

func (r *Repository) ListPurchases(ctx context.Context, filter shared.ListFilter) ([]Purchase, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE `+ListWindow, ListWindowArgs(filter)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	p, err := scanPurchase(r.pool.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, fmt.Errorf("purchase %d: %w", id, shared.ErrNotFound)
	}
	return p, err
}

const wastageColumns = `id, product_id, quantity, reason, occurred_at, COALESCE(actor_id, 0)`

func scanWastage(row pgx.Row) (Wastage, error) {
	var w Wastage
	err := row.Scan(&w.ID, &w.ProductID, &w.Quantity, &w.Reason, &w.OccurredAt, &w.ActorID)
	return w, err
}

func (r *Repository) ListWastages(ctx context.Context, filter shared.ListFilter) ([]Wastage, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+wastageColumns+` FROM wastages WHERE `+ListWindow, ListWindowArgs(filter)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Wastage
	for rows.Next() {
		w, err := scanWastage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *Repository) GetWastage(ctx context.Context, id int64) (Wastage, error) {
	w, err := scanWastage(r.pool.QueryRow(ctx, `SELECT `+wastageColumns+` FROM wastages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Wastage{}, fmt.Errorf("wastage %d: %w", id, shared.ErrNotFound)
	}
	return w, err
}

func (r *Repository) LedgerBalances(ctx context.Context) ([]LedgerBalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.product_id, s.quantity,
	COALESCE(SUM(m.quantity) FILTER (WHERE m.direction = 'in'), 0),
	COALESCE(SUM(m.quantity) FILTER (WHERE m.direction = 'out'), 0)
FROM stocks s
LEFT JOIN stock_movements m ON m.product_id = s.product_id
GROUP BY s.product_id, s.quantity
ORDER BY s.product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerBalance
	for rows.Next() {
		var b LedgerBalance
		if err := rows.Scan(&b.ProductID, &b.StockQuantity, &b.MovementIn, &b.MovementOut); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *txRepo) SupplierName(ctx context.Context, supplierID int64) (string, error) {
	var name string
	err := r.tx.QueryRow(ctx, `SELECT name FROM suppliers WHERE id = $1`, supplierID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", &shared.ReferenceError{Entity: "supplier", ID: supplierID}
	}
	return name, err
}

func (r *txRepo) InsertPurchase(ctx context.Context, p Purchase) (Purchase, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchases (supplier_id, product_id, quantity, extra_ice, rate, total_amount, notes, occurred_at, actor_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		p.SupplierID, p.ProductID, p.Quantity, p.ExtraIce, p.Rate, p.TotalAmount, p.Notes, p.OccurredAt, NullInt64(p.ActorID)).
		Scan(&p.ID)
	return p, err
}

func (r *txRepo) InsertWastage(ctx context.Context, w Wastage) (Wastage, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO wastages (product_id, quantity, reason, occurred_at, actor_id)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		w.ProductID, w.Quantity, w.Reason, w.OccurredAt, NullInt64(w.ActorID)).Scan(&w.ID)
	return w, err
}

// PgLedgerTx implements LedgerTx on a pgx transaction. Other recorders embed it in their
// own transactional repositories.
type PgLedgerTx struct {
	tx pgx.Tx
}

// NewPgLedgerTx wraps tx.
func NewPgLedgerTx(tx pgx.Tx) *PgLedgerTx {
	return &PgLedgerTx{tx: tx}
}

// Tx exposes the underlying transaction.
func (l *PgLedgerTx) Tx() pgx.Tx {
	return l.tx
}

const lockStockSQL = `SELECT id, product_id, quantity, updated_at FROM stocks WHERE product_id = $1 FOR UPDATE`

func (l *PgLedgerTx) LockStock(ctx context.Context, productID int64) (Stock, error) {
	s, err := scanStock(l.tx.QueryRow(ctx, lockStockSQL, productID))
	if !errors.Is(err, pgx.ErrNoRows) {
		return s, err
	}
	// First movement for this product: create the row, then lock it.
	if _, err := l.tx.Exec(ctx, `INSERT INTO stocks (product_id, quantity, created_at, updated_at)
SELECT id, 0, NOW(), NOW() FROM products WHERE id = $1
ON CONFLICT (product_id) DO NOTHING`, productID); err != nil {
		return Stock{}, fmt.Errorf("inventory: create stock: %w", err)
	}
	s, err = scanStock(l.tx.QueryRow(ctx, lockStockSQL, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Stock{}, &shared.ReferenceError{Entity: "product", ID: productID}
	}
	return s, err
}

func (l *PgLedgerTx) LockStockByID(ctx context.Context, stockID int64) (Stock, error) {
	s, err := scanStock(l.tx.QueryRow(ctx, `SELECT id, product_id, quantity, updated_at FROM stocks WHERE id = $1 FOR UPDATE`, stockID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Stock{}, &shared.ReferenceError{Entity: "stock", ID: stockID}
	}
	return s, err
}

func (l *PgLedgerTx) SaveStockQuantity(ctx context.Context, stockID int64, quantity decimal.Decimal, at time.Time) error {
	_, err := l.tx.Exec(ctx, `UPDATE stocks SET quantity = $1, updated_at = $2 WHERE id = $3`, quantity, at, stockID)
	return err
}

func (l *PgLedgerTx) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := l.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, quantity, direction, occurred_at, note, actor_id, ref_module, ref_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		m.ProductID, m.Quantity, string(m.Direction), m.OccurredAt, m.Note, NullInt64(m.ActorID), m.RefModule, NullInt64(m.RefID)).
		Scan(&m.ID)
	return m, err
}

func (l *PgLedgerTx) LatestPurchaseRate(ctx context.Context, productID int64) (decimal.Decimal, bool, error) {
	var rate decimal.Decimal
	err := l.tx.QueryRow(ctx, `SELECT rate FROM purchases WHERE product_id = $1 ORDER BY occurred_at DESC, id DESC LIMIT 1`, productID).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return rate, true, nil
}

func (l *PgLedgerTx) PurchaseTotals(ctx context.Context, productID int64) (PurchaseTotals, error) {
	var t PurchaseTotals
	err := l.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0), COALESCE(SUM(quantity * rate), 0) FROM purchases WHERE product_id = $1`, productID).
		Scan(&t.Quantity, &t.Cost)
	return t, err
}

func (l *PgLedgerTx) ClaimKey(ctx context.Context, key, module string) error {
	return shared.ClaimIdempotencyKey(ctx, l.tx, key, module, time.Now())
}

func scanStock(row pgx.Row) (Stock, error) {
	var s Stock
	err := row.Scan(&s.ID, &s.ProductID, &s.Quantity, &s.UpdatedAt)
	return s, err
}

// NullInt64 maps zero ids to SQL NULL.
func NullInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
