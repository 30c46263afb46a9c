// Package ledgermem is an in-memory ledger store for tests. Transactions run one at a time
// against a copy of the state that replaces the committed state only when the callback succeeds.
package ledgermem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mms-dairy/mms/internal/inventory"
	"github.com/mms-dairy/mms/internal/sales"
	"github.com/mms-dairy/mms/internal/shared"
)

type exceptionKey struct {
	subscriptionID int64
	day            time.Time
}

type state struct {
	nextID        int64
	products      map[int64]string
	suppliers     map[int64]string
	shops         map[int64]string
	customers     map[int64]string
	stocks        map[int64]inventory.Stock
	stockOf       map[int64]int64
	movements     []inventory.Movement
	purchases     []inventory.Purchase
	wastages      []inventory.Wastage
	wholesale     []sales.WholesaleSale
	retail        []sales.RetailSale
	subscriptions map[int64]sales.Subscription
	exceptions    map[exceptionKey]sales.SubscriptionException
	keys          map[string]string
}

func newState() *state {
	return &state{
		products:      map[int64]string{},
		suppliers:     map[int64]string{},
		shops:         map[int64]string{},
		customers:     map[int64]string{},
		stocks:        map[int64]inventory.Stock{},
		stockOf:       map[int64]int64{},
		subscriptions: map[int64]sales.Subscription{},
		exceptions:    map[exceptionKey]sales.SubscriptionException{},
		keys:          map[string]string{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		nextID:        s.nextID,
		products:      cloneMap(s.products),
		suppliers:     cloneMap(s.suppliers),
		shops:         cloneMap(s.shops),
		customers:     cloneMap(s.customers),
		stocks:        cloneMap(s.stocks),
		stockOf:       cloneMap(s.stockOf),
		movements:     append([]inventory.Movement(nil), s.movements...),
		purchases:     append([]inventory.Purchase(nil), s.purchases...),
		wastages:      append([]inventory.Wastage(nil), s.wastages...),
		wholesale:     append([]sales.WholesaleSale(nil), s.wholesale...),
		retail:        append([]sales.RetailSale(nil), s.retail...),
		subscriptions: cloneMap(s.subscriptions),
		exceptions:    cloneMap(s.exceptions),
		keys:          cloneMap(s.keys),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store holds the committed ledger state.
type Store struct {
	mu          sync.Mutex
	st          *state
	failInserts error
	txDelay     time.Duration
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// FailMovementInserts makes every movement insert fail with err until called with nil.
func (s *Store) FailMovementInserts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failInserts = err
}

// SetTxDelay holds every transaction open for d before it commits.
func (s *Store) SetTxDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txDelay = d
}

func (s *Store) withTx(ctx context.Context, fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &Tx{st: s.st.clone(), failInserts: s.failInserts}
	if err := fn(tx); err != nil {
		return err
	}
	if s.txDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(s.txDelay):
		}
	}
	// A cancelled caller never commits.
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

func (s *Store) read(fn func(*state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

// Seed helpers

func (s *Store) add(target func(*state) map[int64]string, name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.st.id()
	target(s.st)[id] = name
	return id
}

// AddProduct registers a product.
func (s *Store) AddProduct(name string) int64 {
	return s.add(func(st *state) map[int64]string { return st.products }, name)
}

// AddSupplier registers a supplier.
func (s *Store) AddSupplier(name string) int64 {
	return s.add(func(st *state) map[int64]string { return st.suppliers }, name)
}

// AddShop registers a shop.
func (s *Store) AddShop(name string) int64 {
	return s.add(func(st *state) map[int64]string { return st.shops }, name)
}

// AddCustomer registers a retail customer.
func (s *Store) AddCustomer(name string) int64 {
	return s.add(func(st *state) map[int64]string { return st.customers }, name)
}

// TamperStock overwrites a stock quantity without a movement.
func (s *Store) TamperStock(productID int64, quantity decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.st.stockOf[productID]; ok {
		stock := s.st.stocks[id]
		stock.Quantity = quantity
		s.st.stocks[id] = stock
	}
}

// Accessors

// StockID returns the stock row id of a product.
func (s *Store) StockID(productID int64) (int64, bool) {
	var id int64
	var ok bool
	s.read(func(st *state) { id, ok = st.stockOf[productID] })
	return id, ok
}

// StockQuantity returns the committed quantity of a product, zero when never stocked.
func (s *Store) StockQuantity(productID int64) decimal.Decimal {
	qty := decimal.Zero
	s.read(func(st *state) {
		if id, ok := st.stockOf[productID]; ok {
			qty = st.stocks[id].Quantity
		}
	})
	return qty
}

// Movements returns the committed movements of a product in insertion order.
func (s *Store) Movements(productID int64) []inventory.Movement {
	var out []inventory.Movement
	s.read(func(st *state) {
		for _, m := range st.movements {
			if m.ProductID == productID {
				out = append(out, m)
			}
		}
	})
	return out
}

// Purchases returns every committed purchase.
func (s *Store) Purchases() []inventory.Purchase {
	var out []inventory.Purchase
	s.read(func(st *state) { out = append(out, st.purchases...) })
	return out
}

// Wastages returns every committed wastage.
func (s *Store) Wastages() []inventory.Wastage {
	var out []inventory.Wastage
	s.read(func(st *state) { out = append(out, st.wastages...) })
	return out
}

// WholesaleSales returns every committed wholesale sale.
func (s *Store) WholesaleSales() []sales.WholesaleSale {
	var out []sales.WholesaleSale
	s.read(func(st *state) { out = append(out, st.wholesale...) })
	return out
}

// RetailSales returns every committed retail sale.
func (s *Store) RetailSales() []sales.RetailSale {
	var out []sales.RetailSale
	s.read(func(st *state) { out = append(out, st.retail...) })
	return out
}

// HasKey reports whether a request key was committed.
func (s *Store) HasKey(key string) bool {
	var ok bool
	s.read(func(st *state) { _, ok = st.keys[key] })
	return ok
}

// Seen implements inventory.IdempotencyPort over the committed keys.
func (s *Store) Seen(_ context.Context, key string) (bool, error) {
	return s.HasKey(key), nil
}

// Tx is an open transaction over a private copy of the state.
type Tx struct {
	st          *state
	failInserts error
}

func (t *Tx) LockStock(_ context.Context, productID int64) (inventory.Stock, error) {
	if id, ok := t.st.stockOf[productID]; ok {
		return t.st.stocks[id], nil
	}
	name, ok := t.st.products[productID]
	if !ok {
		return inventory.Stock{}, &shared.ReferenceError{Entity: "product", ID: productID}
	}
	stock := inventory.Stock{ID: t.st.id(), ProductID: productID, ProductName: name, Quantity: decimal.Zero}
	t.st.stocks[stock.ID] = stock
	t.st.stockOf[productID] = stock.ID
	return stock, nil
}

func (t *Tx) LockStockByID(_ context.Context, stockID int64) (inventory.Stock, error) {
	stock, ok := t.st.stocks[stockID]
	if !ok {
		return inventory.Stock{}, &shared.ReferenceError{Entity: "stock", ID: stockID}
	}
	return stock, nil
}

func (t *Tx) SaveStockQuantity(_ context.Context, stockID int64, quantity decimal.Decimal, at time.Time) error {
	stock := t.st.stocks[stockID]
	stock.Quantity = quantity
	stock.UpdatedAt = at
	t.st.stocks[stockID] = stock
	return nil
}

func (t *Tx) InsertMovement(_ context.Context, m inventory.Movement) (inventory.Movement, error) {
	if t.failInserts != nil {
		return inventory.Movement{}, t.failInserts
	}
	m.ID = t.st.id()
	t.st.movements = append(t.st.movements, m)
	return m, nil
}

func (t *Tx) LatestPurchaseRate(_ context.Context, productID int64) (decimal.Decimal, bool, error) {
	var latest *inventory.Purchase
	for i := range t.st.purchases {
		p := &t.st.purchases[i]
		if p.ProductID != productID {
			continue
		}
		if latest == nil || p.OccurredAt.After(latest.OccurredAt) ||
			(p.OccurredAt.Equal(latest.OccurredAt) && p.ID > latest.ID) {
			latest = p
		}
	}
	if latest == nil {
		return decimal.Zero, false, nil
	}
	return latest.Rate, true, nil
}

func (t *Tx) PurchaseTotals(_ context.Context, productID int64) (inventory.PurchaseTotals, error) {
	totals := inventory.PurchaseTotals{Quantity: decimal.Zero, Cost: decimal.Zero}
	for _, p := range t.st.purchases {
		if p.ProductID == productID {
			totals.Quantity = totals.Quantity.Add(p.Quantity)
			totals.Cost = totals.Cost.Add(p.Quantity.Mul(p.Rate))
		}
	}
	return totals, nil
}

func (t *Tx) ClaimKey(_ context.Context, key, module string) error {
	if _, ok := t.st.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	t.st.keys[key] = module
	return nil
}

func (t *Tx) SupplierName(_ context.Context, id int64) (string, error) {
	return lookup(t.st.suppliers, "supplier", id)
}

func (t *Tx) ShopName(_ context.Context, id int64) (string, error) {
	return lookup(t.st.shops, "shop", id)
}

func (t *Tx) CustomerName(_ context.Context, id int64) (string, error) {
	return lookup(t.st.customers, "customer", id)
}

func lookup(m map[int64]string, entity string, id int64) (string, error) {
	name, ok := m[id]
	if !ok {
		return "", &shared.ReferenceError{Entity: entity, ID: id}
	}
	return name, nil
}

func (t *Tx) InsertPurchase(_ context.Context, p inventory.Purchase) (inventory.Purchase, error) {
	p.ID = t.st.id()
	t.st.purchases = append(t.st.purchases, p)
	return p, nil
}

func (t *Tx) InsertWastage(_ context.Context, w inventory.Wastage) (inventory.Wastage, error) {
	w.ID = t.st.id()
	t.st.wastages = append(t.st.wastages, w)
	return w, nil
}

func (t *Tx) InsertWholesaleSale(_ context.Context, sale sales.WholesaleSale) (sales.WholesaleSale, error) {
	sale.ID = t.st.id()
	t.st.wholesale = append(t.st.wholesale, sale)
	return sale, nil
}

func (t *Tx) InsertRetailSale(_ context.Context, sale sales.RetailSale) (sales.RetailSale, error) {
	sale.ID = t.st.id()
	t.st.retail = append(t.st.retail, sale)
	return sale, nil
}

// Inventory returns the store as an inventory repository.
func (s *Store) Inventory() inventory.RepositoryPort {
	return inventoryRepo{s: s}
}

type inventoryRepo struct {
	s *Store
}

func (r inventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.s.withTx(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

func (r inventoryRepo) GetStock(_ context.Context, productID int64) (inventory.Stock, error) {
	var (
		stock inventory.Stock
		ok    bool
	)
	r.s.read(func(st *state) {
		var id int64
		if id, ok = st.stockOf[productID]; ok {
			stock = st.stocks[id]
		}
	})
	if !ok {
		return inventory.Stock{}, inventory.ErrStockNotFound
	}
	return stock, nil
}

func (r inventoryRepo) ProductExists(_ context.Context, productID int64) (bool, error) {
	var ok bool
	r.s.read(func(st *state) { _, ok = st.products[productID] })
	return ok, nil
}

func (r inventoryRepo) ListStock(_ context.Context) ([]inventory.Stock, error) {
	var out []inventory.Stock
	r.s.read(func(st *state) {
		for _, stock := range st.stocks {
			out = append(out, stock)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// window applies a listing filter to rows kept in id order.
func window[T any](rows []T, f shared.ListFilter, id, product func(T) int64, at func(T) time.Time) []T {
	var out []T
	for _, row := range rows {
		switch {
		case id(row) <= f.AfterID,
			f.ProductID != 0 && product(row) != f.ProductID,
			!f.From.IsZero() && at(row).Before(f.From),
			!f.To.IsZero() && at(row).After(f.To):
			continue
		}
		out = append(out, row)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func find[T any](rows []T, id int64, rowID func(T) int64, entity string) (T, error) {
	for _, row := range rows {
		if rowID(row) == id {
			return row, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%s %d: %w", entity, id, shared.ErrNotFound)
}

func (r inventoryRepo) ListMovements(_ context.Context, filter shared.ListFilter) ([]inventory.Movement, error) {
	var out []inventory.Movement
	r.s.read(func(st *state) {
		out = window(st.movements, filter,
			func(m inventory.Movement) int64 { return m.ID },
			func(m inventory.Movement) int64 { return m.ProductID },
			func(m inventory.Movement) time.Time { return m.OccurredAt })
	})
	return out, nil
}

func purchaseID(p inventory.Purchase) int64 { return p.ID }

func wastageID(w inventory.Wastage) int64 { return w.ID }

func (r inventoryRepo) ListPurchases(_ context.Context, filter shared.ListFilter) ([]inventory.Purchase, error) {
	var out []inventory.Purchase
	r.s.read(func(st *state) {
		out = window(st.purchases, filter, purchaseID,
			func(p inventory.Purchase) int64 { return p.ProductID },
			func(p inventory.Purchase) time.Time { return p.OccurredAt })
	})
	return out, nil
}

func (r inventoryRepo) GetPurchase(_ context.Context, id int64) (inventory.Purchase, error) {
	var (
		p   inventory.Purchase
		err error
	)
	r.s.read(func(st *state) { p, err = find(st.purchases, id, purchaseID, "purchase") })
	return p, err
}

func (r inventoryRepo) ListWastages(_ context.Context, filter shared.ListFilter) ([]inventory.Wastage, error) {
	var out []inventory.Wastage
	r.s.read(func(st *state) {
		out = window(st.wastages, filter, wastageID,
			func(w inventory.Wastage) int64 { return w.ProductID },
			func(w inventory.Wastage) time.Time { return w.OccurredAt })
	})
	return out, nil
}

func (r inventoryRepo) GetWastage(_ context.Context, id int64) (inventory.Wastage, error) {
	var (
		w   inventory.Wastage
		err error
	)
	r.s.read(func(st *state) { w, err = find(st.wastages, id, wastageID, "wastage") })
	return w, err
}

func (r inventoryRepo) LedgerBalances(_ context.Context) ([]inventory.LedgerBalance, error) {
	var out []inventory.LedgerBalance
	r.s.read(func(st *state) {
		for _, stock := range st.stocks {
			b := inventory.LedgerBalance{ProductID: stock.ProductID, StockQuantity: stock.Quantity, MovementIn: decimal.Zero, MovementOut: decimal.Zero}
			for _, m := range st.movements {
				if m.ProductID != stock.ProductID {
					continue
				}
				if m.Direction == inventory.DirectionIn {
					b.MovementIn = b.MovementIn.Add(m.Quantity)
				} else {
					b.MovementOut = b.MovementOut.Add(m.Quantity)
				}
			}
			out = append(out, b)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// Sales returns the store as a sales repository.
func (s *Store) Sales() sales.RepositoryPort {
	return salesRepo{s: s}
}

type salesRepo struct {
	s *Store
}

func (r salesRepo) WithTx(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	return r.s.withTx(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

func (r salesRepo) StockProductID(_ context.Context, stockID int64) (int64, error) {
	var (
		stock inventory.Stock
		ok    bool
	)
	r.s.read(func(st *state) { stock, ok = st.stocks[stockID] })
	if !ok {
		return 0, &shared.ReferenceError{Entity: "stock", ID: stockID}
	}
	return stock.ProductID, nil
}

func (r salesRepo) CreateSubscription(_ context.Context, sub sales.Subscription) (sales.Subscription, error) {
	var err error
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	switch {
	case sub.CustomerID != 0 && st.customers[sub.CustomerID] == "":
		err = &shared.ReferenceError{Entity: "customer", ID: sub.CustomerID}
	case sub.ShopID != 0 && st.shops[sub.ShopID] == "":
		err = &shared.ReferenceError{Entity: "shop", ID: sub.ShopID}
	}
	if _, ok := st.stocks[sub.StockID]; err == nil && !ok {
		err = &shared.ReferenceError{Entity: "stock", ID: sub.StockID}
	}
	if err != nil {
		return sales.Subscription{}, err
	}
	sub.ID = st.id()
	st.subscriptions[sub.ID] = sub
	return sub, nil
}

func (r salesRepo) ListSubscriptions(_ context.Context) ([]sales.Subscription, error) {
	var out []sales.Subscription
	r.s.read(func(st *state) {
		for _, sub := range st.subscriptions {
			out = append(out, sub)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r salesRepo) UpsertSubscriptionException(_ context.Context, exc sales.SubscriptionException) (sales.SubscriptionException, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.subscriptions[exc.SubscriptionID]; !ok {
		return sales.SubscriptionException{}, &shared.ReferenceError{Entity: "subscription", ID: exc.SubscriptionID}
	}
	r.s.st.exceptions[exceptionKey{exc.SubscriptionID, sales.Day(exc.Date)}] = exc
	return exc, nil
}

func (r salesRepo) ActiveSubscriptions(_ context.Context, day time.Time) ([]sales.Subscription, error) {
	all, _ := r.ListSubscriptions(context.Background())
	var out []sales.Subscription
	for _, sub := range all {
		if !sub.Active || sub.StartDate.After(day) {
			continue
		}
		if sub.EndDate != nil && sub.EndDate.Before(day) {
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}

func (r salesRepo) SubscriptionExceptions(_ context.Context, day time.Time) (map[int64]sales.SubscriptionException, error) {
	out := make(map[int64]sales.SubscriptionException)
	r.s.read(func(st *state) {
		for key, exc := range st.exceptions {
			if key.day.Equal(sales.Day(day)) {
				out[key.subscriptionID] = exc
			}
		}
	})
	return out, nil
}

func wholesaleID(sale sales.WholesaleSale) int64 { return sale.ID }

func retailID(sale sales.RetailSale) int64 { return sale.ID }

func (r salesRepo) ListWholesaleSales(_ context.Context, filter shared.ListFilter) ([]sales.WholesaleSale, error) {
	var out []sales.WholesaleSale
	r.s.read(func(st *state) {
		out = window(st.wholesale, filter, wholesaleID,
			func(sale sales.WholesaleSale) int64 { return sale.ProductID },
			func(sale sales.WholesaleSale) time.Time { return sale.OccurredAt })
	})
	return out, nil
}

func (r salesRepo) GetWholesaleSale(_ context.Context, id int64) (sales.WholesaleSale, error) {
	var (
		sale sales.WholesaleSale
		err  error
	)
	r.s.read(func(st *state) { sale, err = find(st.wholesale, id, wholesaleID, "wholesale sale") })
	return sale, err
}

func (r salesRepo) ListRetailSales(_ context.Context, filter shared.ListFilter) ([]sales.RetailSale, error) {
	var out []sales.RetailSale
	r.s.read(func(st *state) {
		out = window(st.retail, filter, retailID,
			func(sale sales.RetailSale) int64 { return sale.ProductID },
			func(sale sales.RetailSale) time.Time { return sale.OccurredAt })
	})
	return out, nil
}

func (r salesRepo) GetRetailSale(_ context.Context, id int64) (sales.RetailSale, error) {
	var (
		sale sales.RetailSale
		err  error
	)
	r.s.read(func(st *state) { sale, err = find(st.retail, id, retailID, "retail sale") })
	return sale, err
}
