package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mms-dairy/mms/internal/inventory"
	"github.com/mms-dairy/mms/internal/shared"
)

// CreateSubscription registers a standing order for exactly one customer or shop.
func (s *Service) CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error) {
	if (sub.CustomerID == 0) == (sub.ShopID == 0) {
		return Subscription{}, shared.NewValidationError("customer_id", "exactly one of customer or shop is required")
	}
	if sub.StockID <= 0 {
		return Subscription{}, shared.NewValidationError("stock_id", "stock is required")
	}
	if err := inventory.CheckQuantity("quantity", sub.Quantity); err != nil {
		return Subscription{}, err
	}
	if !sub.Quantity.IsPositive() {
		return Subscription{}, shared.NewValidationError("quantity", "daily quantity must be greater than zero")
	}
	if err := inventory.CheckRate("rate", sub.Rate); err != nil {
		return Subscription{}, err
	}
	if sub.Rate.IsNegative() {
		return Subscription{}, shared.NewValidationError("rate", "rate cannot be negative")
	}
	if sub.Shift != ShiftMorning && sub.Shift != ShiftEvening {
		return Subscription{}, shared.NewValidationError("shift", "shift must be 'morning' or 'evening'")
	}
	if sub.StartDate.IsZero() {
		sub.StartDate = s.ledger.Now()
	}
	sub.StartDate = Day(sub.StartDate)
	if sub.EndDate != nil {
		end := Day(*sub.EndDate)
		if end.Before(sub.StartDate) {
			return Subscription{}, shared.NewValidationError("end_date", "end date is before start date")
		}
		sub.EndDate = &end
	}
	created, err := s.repo.CreateSubscription(ctx, sub)
	if err != nil {
		return Subscription{}, fmt.Errorf("sales: create subscription: %w", err)
	}
	return created, nil
}

// ListSubscriptions lists every subscription.
func (s *Service) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	return s.repo.ListSubscriptions(ctx)
}

// SetSubscriptionException skips or overrides one day of a subscription.
func (s *Service) SetSubscriptionException(ctx context.Context, exc SubscriptionException) (SubscriptionException, error) {
	if exc.SubscriptionID <= 0 {
		return SubscriptionException{}, shared.NewValidationError("subscription_id", "subscription is required")
	}
	if exc.Date.IsZero() {
		return SubscriptionException{}, shared.NewValidationError("date", "date is required")
	}
	exc.Date = Day(exc.Date)
	if exc.Quantity != nil {
		if err := inventory.CheckQuantity("quantity", *exc.Quantity); err != nil {
			return SubscriptionException{}, err
		}
		if exc.Quantity.IsNegative() {
			return SubscriptionException{}, shared.NewValidationError("quantity", "quantity cannot be negative")
		}
	}
	saved, err := s.repo.UpsertSubscriptionException(ctx, exc)
	if err != nil {
		return SubscriptionException{}, fmt.Errorf("sales: save subscription exception: %w", err)
	}
	return saved, nil
}

// GenerateSubscriptionSales books the sales due on date for every active subscription.
// A subscription that cannot be sold is reported in its result and does not stop the batch.
// Each sale is keyed by subscription and day, so re-running a day does not sell twice when
// the ledger has an idempotency store.
func (s *Service) GenerateSubscriptionSales(ctx context.Context, date time.Time, actorID int64) ([]GeneratedSale, error) {
	day := Day(date)
	subs, err := s.repo.ActiveSubscriptions(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("sales: active subscriptions: %w", err)
	}
	exceptions, err := s.repo.SubscriptionExceptions(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("sales: subscription exceptions: %w", err)
	}

	results := make([]GeneratedSale, 0, len(subs))
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result := GeneratedSale{SubscriptionID: sub.ID, Channel: sub.Channel(), Quantity: sub.Quantity}
		exc, hasException := exceptions[sub.ID]
		if hasException && exc.Skip {
			result.Skipped, result.Reason = true, "skipped for the day"
			results = append(results, result)
			continue
		}
		if hasException && exc.Quantity != nil {
			result.Quantity = *exc.Quantity
		}
		if !result.Quantity.IsPositive() {
			result.Skipped, result.Reason = true, "nothing to deliver"
			results = append(results, result)
			continue
		}

		key := fmt.Sprintf("subscription:%d:%s", sub.ID, day.Format(time.DateOnly))
		switch sub.Channel() {
		case ChannelRetail:
			sale, err := s.RecordRetailSale(ctx, RetailInput{
				CustomerID:     sub.CustomerID,
				StockID:        sub.StockID,
				Quantity:       result.Quantity,
				Rate:           sub.Rate,
				Shift:          sub.Shift,
				ActorID:        actorID,
				IdempotencyKey: key,
			})
			result.SaleID = sale.ID
			s.noteFailure(&result, err)
		default:
			sale, err := s.RecordWholesaleSale(ctx, WholesaleInput{
				ShopID:         sub.ShopID,
				StockID:        sub.StockID,
				Quantity:       result.Quantity,
				Rate:           sub.Rate,
				Shift:          sub.Shift,
				ActorID:        actorID,
				IdempotencyKey: key,
			})
			result.SaleID = sale.ID
			s.noteFailure(&result, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *Service) noteFailure(result *GeneratedSale, err error) {
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrIdempotencyConflict):
		result.Skipped, result.Reason = true, "already generated"
	default:
		result.Error = err.Error()
		s.logger.Warn("subscription sale failed",
			slog.Int64("subscription_id", result.SubscriptionID),
			slog.String("channel", string(result.Channel)),
			slog.Any("error", err))
	}
}
