package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mms-dairy/mms/internal/inventory"
	"github.com/mms-dairy/mms/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	// StockProductID resolves the product behind a stock row without locking it.
	StockProductID(ctx context.Context, stockID int64) (int64, error)

	CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
	UpsertSubscriptionException(ctx context.Context, exc SubscriptionException) (SubscriptionException, error)
	// ActiveSubscriptions lists active subscriptions whose date range covers day.
	ActiveSubscriptions(ctx context.Context, day time.Time) ([]Subscription, error)
	SubscriptionExceptions(ctx context.Context, day time.Time) (map[int64]SubscriptionException, error)

	ListWholesaleSales(ctx context.Context, filter shared.ListFilter) ([]WholesaleSale, error)
	GetWholesaleSale(ctx context.Context, id int64) (WholesaleSale, error)
	ListRetailSales(ctx context.Context, filter shared.ListFilter) ([]RetailSale, error)
	GetRetailSale(ctx context.Context, id int64) (RetailSale, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	inventory.LedgerTx
	ShopName(ctx context.Context, shopID int64) (string, error)
	CustomerName(ctx context.Context, customerID int64) (string, error)
	InsertWholesaleSale(ctx context.Context, sale WholesaleSale) (WholesaleSale, error)
	InsertRetailSale(ctx context.Context, sale RetailSale) (RetailSale, error)
}

// Operation names used for metrics, audit and idempotency scoping.
const (
	OpWholesale = "sales.wholesale"
	OpRetail    = "sales.retail"
)

const walkIn = "Walk-in"

// Service records sales against the stock ledger.
type Service struct {
	repo   RepositoryPort
	ledger *inventory.Ledger
	logger *slog.Logger
}

// NewService constructs a sales service.
func NewService(repo RepositoryPort, ledger *inventory.Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if ledger == nil {
		ledger = inventory.NewLedger(inventory.LedgerConfig{Logger: logger})
	}
	return &Service{repo: repo, ledger: ledger, logger: logger}
}

type saleAmounts struct {
	quantity decimal.Decimal
	water    decimal.Decimal
	rate     decimal.Decimal
}

// validateAmounts checks the raw inputs; nothing is rounded into range.
func validateAmounts(stockID int64, quantity, water, rate decimal.Decimal, shift Shift) (saleAmounts, error) {
	a := saleAmounts{quantity: quantity, water: water, rate: rate}
	if stockID <= 0 {
		return a, shared.NewValidationError("stock_id", "stock is required")
	}
	if err := inventory.CheckQuantity("quantity", quantity); err != nil {
		return a, err
	}
	if !quantity.IsPositive() {
		return a, shared.NewValidationError("quantity", "sale quantity must be greater than zero")
	}
	if err := inventory.CheckQuantity("added_water", water); err != nil {
		return a, err
	}
	if water.IsNegative() {
		return a, shared.NewValidationError("added_water", "added water cannot be negative")
	}
	if err := inventory.CheckRate("rate", rate); err != nil {
		return a, err
	}
	if rate.IsNegative() {
		return a, shared.NewValidationError("rate", "rate cannot be negative")
	}
	if !shift.Valid() {
		return a, shared.NewValidationError("shift", "shift must be 'morning' or 'evening'")
	}
	return a, nil
}

// checkQuote rejects a priced sale whose money columns would not fit.
func checkQuote(q Quote) error {
	for _, v := range []struct {
		field string
		value decimal.Decimal
	}{
		{"total", q.Revenue},
		{"cost", q.Cost},
		{"profit", q.Profit},
	} {
		if v.value.Abs().GreaterThan(inventory.MaxAmount) {
			return shared.NewValidationError(v.field, "sale "+v.field+" must not exceed "+inventory.MaxAmount.String())
		}
	}
	return nil
}

// RecordWholesaleSale books a sale to a shop. Only milk leaves stock; water is billed free of cost.
func (s *Service) RecordWholesaleSale(ctx context.Context, input WholesaleInput) (WholesaleSale, error) {
	if input.ShopID <= 0 {
		return WholesaleSale{}, shared.NewValidationError("shop_id", "shop is required")
	}
	amounts, err := validateAmounts(input.StockID, input.Quantity, input.AddedWater, input.Rate, input.Shift)
	if err != nil {
		return WholesaleSale{}, err
	}
	discount := input.Discount
	if err := inventory.CheckAmount("discount", discount); err != nil {
		return WholesaleSale{}, err
	}
	if discount.IsNegative() {
		return WholesaleSale{}, shared.NewValidationError("discount", "discount cannot be negative")
	}
	status := input.PaymentStatus
	if status == "" {
		status = PaymentPending
	}
	if status != PaymentPaid && status != PaymentPending && status != PaymentPartial {
		return WholesaleSale{}, shared.NewValidationError("payment_status", "payment status must be paid, pending or partial")
	}
	productID, err := s.repo.StockProductID(ctx, input.StockID)
	if err != nil {
		return WholesaleSale{}, err
	}

	var sale WholesaleSale
	op := inventory.Operation{Name: OpWholesale, ProductID: productID, ActorID: input.ActorID, IdempotencyKey: input.IdempotencyKey}
	err = s.ledger.Run(ctx, op, func(ctx context.Context) (inventory.Outcome, error) {
		var movement inventory.Movement
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			shop, err := tx.ShopName(ctx, input.ShopID)
			if err != nil {
				return err
			}
			stock, err := tx.LockStockByID(ctx, input.StockID)
			if err != nil {
				return err
			}
			if err := inventory.EnsureAvailable(stock, amounts.quantity); err != nil {
				return err
			}
			latest, _, err := tx.LatestPurchaseRate(ctx, stock.ProductID)
			if err != nil {
				return fmt.Errorf("sales: latest purchase rate: %w", err)
			}
			quote := QuoteWholesale(amounts.quantity, amounts.water, amounts.rate, discount, latest)
			if err := checkQuote(quote); err != nil {
				return err
			}
			now := s.ledger.Now()
			sale, err = tx.InsertWholesaleSale(ctx, WholesaleSale{
				ShopID:        input.ShopID,
				StockID:       stock.ID,
				ProductID:     stock.ProductID,
				Shift:         input.Shift,
				Quantity:      amounts.quantity,
				AddedWater:    amounts.water,
				Rate:          amounts.rate,
				Discount:      discount,
				TotalAmount:   quote.Revenue,
				Cost:          quote.Cost,
				Profit:        quote.Profit,
				PaymentStatus: status,
				Notes:         strings.TrimSpace(input.Notes),
				OccurredAt:    now,
				ActorID:       input.ActorID,
			})
			if err != nil {
				return fmt.Errorf("sales: insert wholesale sale: %w", err)
			}
			_, movement, err = inventory.ApplyMovement(ctx, tx, stock, inventory.MovementParams{
				Delta:     amounts.quantity.Neg(),
				Note:      "Wholesale sale to " + shop,
				ActorID:   input.ActorID,
				RefModule: "wholesale_sale",
				RefID:     sale.ID,
				At:        now,
			})
			return err
		})
		if err != nil {
			return inventory.Outcome{}, err
		}
		return inventory.Outcome{
			Entity:     "wholesale_sale",
			EntityID:   sale.ID,
			MovementID: movement.ID,
			Meta: map[string]any{
				"shop_id":  sale.ShopID,
				"stock_id": sale.StockID,
				"quantity": sale.Quantity.String(),
				"total":    sale.TotalAmount.String(),
				"profit":   sale.Profit.String(),
			},
		}, nil
	})
	if err != nil {
		return WholesaleSale{}, err
	}
	return sale, nil
}

// RecordRetailSale books a consumer sale. A zero customer is a walk-in.
func (s *Service) RecordRetailSale(ctx context.Context, input RetailInput) (RetailSale, error) {
	if input.CustomerID < 0 {
		return RetailSale{}, shared.NewValidationError("customer_id", "invalid customer")
	}
	amounts, err := validateAmounts(input.StockID, input.Quantity, input.AddedWater, input.Rate, input.Shift)
	if err != nil {
		return RetailSale{}, err
	}
	status := input.PaymentStatus
	if status == "" {
		status = PaymentPaid
	}
	if status != PaymentPaid && status != PaymentPending {
		return RetailSale{}, shared.NewValidationError("payment_status", "payment status must be paid or pending")
	}
	productID, err := s.repo.StockProductID(ctx, input.StockID)
	if err != nil {
		return RetailSale{}, err
	}

	var sale RetailSale
	op := inventory.Operation{Name: OpRetail, ProductID: productID, ActorID: input.ActorID, IdempotencyKey: input.IdempotencyKey}
	err = s.ledger.Run(ctx, op, func(ctx context.Context) (inventory.Outcome, error) {
		var movement inventory.Movement
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			buyer := walkIn
			if input.CustomerID != 0 {
				name, err := tx.CustomerName(ctx, input.CustomerID)
				if err != nil {
					return err
				}
				buyer = name
			}
			stock, err := tx.LockStockByID(ctx, input.StockID)
			if err != nil {
				return err
			}
			if err := inventory.EnsureAvailable(stock, amounts.quantity); err != nil {
				return err
			}
			history, err := tx.PurchaseTotals(ctx, stock.ProductID)
			if err != nil {
				return fmt.Errorf("sales: purchase totals: %w", err)
			}
			quote := QuoteRetail(amounts.quantity, amounts.water, amounts.rate, history)
			if err := checkQuote(quote); err != nil {
				return err
			}
			now := s.ledger.Now()
			sale, err = tx.InsertRetailSale(ctx, RetailSale{
				CustomerID:    input.CustomerID,
				StockID:       stock.ID,
				ProductID:     stock.ProductID,
				Shift:         input.Shift,
				Quantity:      amounts.quantity,
				AddedWater:    amounts.water,
				Rate:          amounts.rate,
				Total:         quote.Revenue,
				Cost:          quote.Cost,
				Profit:        quote.Profit,
				PaymentStatus: status,
				Notes:         strings.TrimSpace(input.Notes),
				OccurredAt:    now,
				ActorID:       input.ActorID,
			})
			if err != nil {
				return fmt.Errorf("sales: insert retail sale: %w", err)
			}
			_, movement, err = inventory.ApplyMovement(ctx, tx, stock, inventory.MovementParams{
				Delta:     amounts.quantity.Neg(),
				Note:      "Retail sale to " + buyer,
				ActorID:   input.ActorID,
				RefModule: "retail_sale",
				RefID:     sale.ID,
				At:        now,
			})
			return err
		})
		if err != nil {
			return inventory.Outcome{}, err
		}
		return inventory.Outcome{
			Entity:     "retail_sale",
			EntityID:   sale.ID,
			MovementID: movement.ID,
			Meta: map[string]any{
				"customer_id": sale.CustomerID,
				"stock_id":    sale.StockID,
				"quantity":    sale.Quantity.String(),
				"total":       sale.Total.String(),
				"profit":      sale.Profit.String(),
			},
		}, nil
	})
	if err != nil {
		return RetailSale{}, err
	}
	return sale, nil
}

// ListWholesaleSales pages through wholesale sales in id order. ProductID filters by the
// product behind the sold stock row.
func (s *Service) ListWholesaleSales(ctx context.Context, filter shared.ListFilter) (shared.KeysetPage[WholesaleSale], error) {
	filter, err := filter.Normalize()
	if err != nil {
		return shared.KeysetPage[WholesaleSale]{}, err
	}
	rows, err := s.repo.ListWholesaleSales(ctx, filter.LookAhead())
	if err != nil {
		return shared.KeysetPage[WholesaleSale]{}, fmt.Errorf("sales: list wholesale sales: %w", err)
	}
	return shared.NewKeysetPage(rows, filter.Limit, func(sale WholesaleSale) int64 { return sale.ID }), nil
}

// GetWholesaleSale returns one wholesale sale.
func (s *Service) GetWholesaleSale(ctx context.Context, id int64) (WholesaleSale, error) {
	if id <= 0 {
		return WholesaleSale{}, shared.NewValidationError("id", "must be a positive integer")
	}
	return s.repo.GetWholesaleSale(ctx, id)
}

// ListRetailSales pages through retail sales in id order.
func (s *Service) ListRetailSales(ctx context.Context, filter shared.ListFilter) (shared.KeysetPage[RetailSale], error) {
	filter, err := filter.Normalize()
	if err != nil {
		return shared.KeysetPage[RetailSale]{}, err
	}
	rows, err := s.repo.ListRetailSales(ctx, filter.LookAhead())
	if err != nil {
		return shared.KeysetPage[RetailSale]{}, fmt.Errorf("sales: list retail sales: %w", err)
	}
	return shared.NewKeysetPage(rows, filter.Limit, func(sale RetailSale) int64 { return sale.ID }), nil
}

// GetRetailSale returns one retail sale.
func (s *Service) GetRetailSale(ctx context.Context, id int64) (RetailSale, error) {
	if id <= 0 {
		return RetailSale{}, shared.NewValidationError("id", "must be a positive integer")
	}
	return s.repo.GetRetailSale(ctx, id)
}
