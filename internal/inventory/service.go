package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mms-dairy/mms/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStock(ctx context.Context, productID int64) (Stock, error)
	ProductExists(ctx context.Context, productID int64) (bool, error)
	ListStock(ctx context.Context) ([]Stock, error)
	ListMovements(ctx context.Context, filter shared.ListFilter) ([]Movement, error)
	ListPurchases(ctx context.Context, filter shared.ListFilter) ([]Purchase, error)
	GetPurchase(ctx context.Context, id int64) (Purchase, error)
	ListWastages(ctx context.Context, filter shared.ListFilter) ([]Wastage, error)
	GetWastage(ctx context.Context, id int64) (Wastage, error)
	LedgerBalances(ctx context.Context) ([]LedgerBalance, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LedgerTx
	// SupplierName resolves a supplier, failing with ReferenceError when it does not exist.
	SupplierName(ctx context.Context, supplierID int64) (string, error)
	InsertPurchase(ctx context.Context, purchase Purchase) (Purchase, error)
	InsertWastage(ctx context.Context, wastage Wastage) (Wastage, error)
}

// Operation names used for metrics, audit and idempotency scoping.
const (
	OpPurchase = "inventory.purchase"
	OpWastage  = "inventory.wastage"
	OpMovement = "inventory.movement"
)

// Service coordinates inventory operations.
type Service struct {
	repo      RepositoryPort
	ledger    *Ledger
	snapshots *SnapshotCache
	logger    *slog.Logger
}

// NewService builds Service. snapshots may be nil, in which case stock listings read the database.
func NewService(repo RepositoryPort, ledger *Ledger, snapshots *SnapshotCache, logger *slog.Logger) *Service {
	if ledger == nil {
		ledger = NewLedger(LedgerConfig{Logger: logger})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, snapshots: snapshots, logger: logger}
}

// RecordPurchase books milk received from a supplier. Stock grows by quantity plus ice while
// the total is charged on quantity alone.
func (s *Service) RecordPurchase(ctx context.Context, input PurchaseInput) (Purchase, error) {
	if err := validatePurchase(input); err != nil {
		return Purchase{}, err
	}
	quantity, ice, rate := input.Quantity, input.ExtraIce, input.Rate
	total := quantity.Mul(rate).Round(MoneyPlaces)
	if total.GreaterThan(MaxAmount) {
		return Purchase{}, shared.NewValidationError("quantity", "purchase total must not exceed "+MaxAmount.String())
	}

	var purchase Purchase
	op := Operation{Name: OpPurchase, ProductID: input.ProductID, ActorID: input.ActorID, IdempotencyKey: input.IdempotencyKey}
	err := s.ledger.Run(ctx, op, func(ctx context.Context) (Outcome, error) {
		var movement Movement
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			supplier, err := tx.SupplierName(ctx, input.SupplierID)
			if err != nil {
				return err
			}
			stock, err := tx.LockStock(ctx, input.ProductID)
			if err != nil {
				return err
			}
			now := s.ledger.Now()
			purchase, err = tx.InsertPurchase(ctx, Purchase{
				SupplierID:  input.SupplierID,
				ProductID:   input.ProductID,
				Quantity:    quantity,
				ExtraIce:    ice,
				Rate:        rate,
				TotalAmount: total,
				Notes:       strings.TrimSpace(input.Notes),
				OccurredAt:  now,
				ActorID:     input.ActorID,
			})
			if err != nil {
				return fmt.Errorf("inventory: insert purchase: %w", err)
			}
			note := "Purchase from " + supplier
			if ice.IsPositive() {
				note += fmt.Sprintf(" (incl. %s ice)", ice.StringFixed(QuantityPlaces))
			}
			_, movement, err = ApplyMovement(ctx, tx, stock, MovementParams{
				Delta:     quantity.Add(ice),
				Note:      note,
				ActorID:   input.ActorID,
				RefModule: "purchase",
				RefID:     purchase.ID,
				At:        now,
			})
			return err
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Entity:     "purchase",
			EntityID:   purchase.ID,
			MovementID: movement.ID,
			Meta: map[string]any{
				"product_id":  purchase.ProductID,
				"supplier_id": purchase.SupplierID,
				"quantity":    purchase.Quantity.String(),
				"extra_ice":   purchase.ExtraIce.String(),
				"total":       purchase.TotalAmount.String(),
			},
		}, nil
	})
	if err != nil {
		return Purchase{}, err
	}
	return purchase, nil
}

func validatePurchase(input PurchaseInput) error {
	switch {
	case input.SupplierID <= 0:
		return shared.NewValidationError("supplier_id", "supplier is required")
	case input.ProductID <= 0:
		return shared.NewValidationError("product_id", "product is required")
	}
	if err := CheckQuantity("quantity", input.Quantity); err != nil {
		return err
	}
	if !input.Quantity.IsPositive() {
		return shared.NewValidationError("quantity", "purchase quantity must be greater than zero")
	}
	if err := CheckQuantity("extra_ice", input.ExtraIce); err != nil {
		return err
	}
	if input.ExtraIce.IsNegative() {
		return shared.NewValidationError("extra_ice", "extra ice cannot be negative")
	}
	if err := CheckRate("rate", input.Rate); err != nil {
		return err
	}
	if !input.Rate.IsPositive() {
		return shared.NewValidationError("rate", "rate must be greater than zero")
	}
	return nil
}

// RecordWastage writes off stock. The wastage may not exceed what is on hand.
func (s *Service) RecordWastage(ctx context.Context, input WastageInput) (Wastage, error) {
	quantity := input.Quantity
	reason := strings.TrimSpace(input.Reason)
	if input.ProductID <= 0 {
		return Wastage{}, shared.NewValidationError("product_id", "product is required")
	}
	if err := CheckQuantity("quantity", quantity); err != nil {
		return Wastage{}, err
	}
	switch {
	case !quantity.IsPositive():
		return Wastage{}, shared.NewValidationError("quantity", "wastage quantity must be greater than zero")
	case reason == "":
		return Wastage{}, shared.NewValidationError("reason", "reason is required")
	}

	var wastage Wastage
	op := Operation{Name: OpWastage, ProductID: input.ProductID, ActorID: input.ActorID, IdempotencyKey: input.IdempotencyKey}
	err := s.ledger.Run(ctx, op, func(ctx context.Context) (Outcome, error) {
		var movement Movement
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			stock, err := tx.LockStock(ctx, input.ProductID)
			if err != nil {
				return err
			}
			if err := EnsureAvailable(stock, quantity); err != nil {
				return err
			}
			now := s.ledger.Now()
			wastage, err = tx.InsertWastage(ctx, Wastage{
				ProductID:  input.ProductID,
				Quantity:   quantity,
				Reason:     reason,
				OccurredAt: now,
				ActorID:    input.ActorID,
			})
			if err != nil {
				return fmt.Errorf("inventory: insert wastage: %w", err)
			}
			_, movement, err = ApplyMovement(ctx, tx, stock, MovementParams{
				Delta:     quantity.Neg(),
				Note:      "Wastage: " + reason,
				ActorID:   input.ActorID,
				RefModule: "wastage",
				RefID:     wastage.ID,
				At:        now,
			})
			return err
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Entity:     "wastage",
			EntityID:   wastage.ID,
			MovementID: movement.ID,
			Meta: map[string]any{
				"product_id": wastage.ProductID,
				"quantity":   wastage.Quantity.String(),
				"reason":     wastage.Reason,
			},
		}, nil
	})
	if err != nil {
		return Wastage{}, err
	}
	return wastage, nil
}

// RecordMovement posts a direct stock correction.
func (s *Service) RecordMovement(ctx context.Context, input MovementInput) (Movement, error) {
	quantity := input.Quantity
	if input.ProductID <= 0 {
		return Movement{}, shared.NewValidationError("product_id", "product is required")
	}
	if err := CheckQuantity("quantity", quantity); err != nil {
		return Movement{}, err
	}
	switch {
	case !quantity.IsPositive():
		return Movement{}, shared.NewValidationError("quantity", "movement quantity must be greater than zero")
	case !input.Direction.Valid():
		return Movement{}, shared.NewValidationError("direction", "direction must be 'in' or 'out'")
	}
	delta := quantity
	if input.Direction == DirectionOut {
		delta = quantity.Neg()
	}

	var movement Movement
	op := Operation{Name: OpMovement, ProductID: input.ProductID, ActorID: input.ActorID, IdempotencyKey: input.IdempotencyKey}
	err := s.ledger.Run(ctx, op, func(ctx context.Context) (Outcome, error) {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			stock, err := tx.LockStock(ctx, input.ProductID)
			if err != nil {
				return err
			}
			_, movement, err = ApplyMovement(ctx, tx, stock, MovementParams{
				Delta:     delta,
				Note:      strings.TrimSpace(input.Note),
				ActorID:   input.ActorID,
				RefModule: "movement",
				At:        s.ledger.Now(),
			})
			return err
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Entity:     "stock_movement",
			EntityID:   movement.ID,
			MovementID: movement.ID,
			Meta: map[string]any{
				"product_id": movement.ProductID,
				"direction":  string(movement.Direction),
				"quantity":   movement.Quantity.String(),
			},
		}, nil
	})
	if err != nil {
		return Movement{}, err
	}
	return movement, nil
}

// GetStockLevel returns the current quantity of a product. A product that was never
// stocked reports zero.
func (s *Service) GetStockLevel(ctx context.Context, productID int64) (decimal.Decimal, error) {
	if productID <= 0 {
		return decimal.Zero, shared.NewValidationError("product_id", "product is required")
	}
	stock, err := s.repo.GetStock(ctx, productID)
	if err == nil {
		return stock.Quantity, nil
	}
	if !errors.Is(err, ErrStockNotFound) {
		return decimal.Zero, err
	}
	exists, err := s.repo.ProductExists(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	if !exists {
		return decimal.Zero, &shared.ReferenceError{Entity: "product", ID: productID}
	}
	return decimal.Zero, nil
}

// ListMovements pages through the movements of a product in id order. Follow
// NextAfterID until it is zero to read the whole range.
func (s *Service) ListMovements(ctx context.Context, filter shared.ListFilter) (shared.KeysetPage[Movement], error) {
	if filter.ProductID <= 0 {
		return shared.KeysetPage[Movement]{}, shared.NewValidationError("product_id", "product is required")
	}
	filter, err := filter.Normalize()
	if err != nil {
		return shared.KeysetPage[Movement]{}, err
	}
	rows, err := s.repo.ListMovements(ctx, filter.LookAhead())
	if err != nil {
		return shared.KeysetPage[Movement]{}, fmt.Errorf("inventory: list movements: %w", err)
	}
	return shared.NewKeysetPage(rows, filter.Limit, func(m Movement) int64 { return m.ID }), nil
}

// ListPurchases pages through recorded purchases in id order.
func (s *Service) ListPurchases(ctx context.Context, filter shared.ListFilter) (shared.KeysetPage[Purchase], error) {
	filter, err := filter.Normalize()
	if err != nil {
		return shared.KeysetPage[Purchase]{}, err
	}
	rows, err := s.repo.ListPurchases(ctx, filter.LookAhead())
	if err != nil {
		return shared.KeysetPage[Purchase]{}, fmt.Errorf("inventory: list purchases: %w", err)
	}
	return shared.NewKeysetPage(rows, filter.Limit, func(p Purchase) int64 { return p.ID }), nil
}

// GetPurchase returns one purchase.
func (s *Service) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	if id <= 0 {
		return Purchase{}, shared.NewValidationError("id", "must be a positive integer")
	}
	return s.repo.GetPurchase(ctx, id)
}

// ListWastages pages through recorded wastages in id order.
func (s *Service) ListWastages(ctx context.Context, filter shared.ListFilter) (shared.KeysetPage[Wastage], error) {
	filter, err := filter.Normalize()
	if err != nil {
		return shared.KeysetPage[Wastage]{}, err
	}
	rows, err := s.repo.ListWastages(ctx, filter.LookAhead())
	if err != nil {
		return shared.KeysetPage[Wastage]{}, fmt.Errorf("inventory: list wastages: %w", err)
	}
	return shared.NewKeysetPage(rows, filter.Limit, func(w Wastage) int64 { return w.ID }), nil
}

// GetWastage returns one wastage.
func (s *Service) GetWastage(ctx context.Context, id int64) (Wastage, error) {
	if id <= 0 {
		return Wastage{}, shared.NewValidationError("id", "must be a positive integer")
	}
	return s.repo.GetWastage(ctx, id)
}

// ListStock returns every stock row. Results may lag the latest commit by one cache fill.
func (s *Service) ListStock(ctx context.Context) ([]Stock, error) {
	if s.snapshots == nil {
		return s.repo.ListStock(ctx)
	}
	return s.snapshots.Stock(ctx, s.repo.ListStock)
}

// Reconcile compares every stock row against its movement log.
func (s *Service) Reconcile(ctx context.Context) ([]Discrepancy, error) {
	balances, err := s.repo.LedgerBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("inventory: ledger balances: %w", err)
	}
	var out []Discrepancy
	for _, b := range balances {
		ledgerQty := b.MovementIn.Sub(b.MovementOut)
		if !ledgerQty.Equal(b.StockQuantity) {
			out = append(out, Discrepancy{ProductID: b.ProductID, StockQuantity: b.StockQuantity, LedgerQuantity: ledgerQty})
		}
	}
	if len(out) > 0 {
		s.logger.Warn("stock ledger discrepancies", slog.Int("count", len(out)))
	}
	return out, nil
}
