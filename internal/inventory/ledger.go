package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mms-dairy/mms/internal/shared"
)

// LedgerTx is the transactional surface shared by every recorder that mutates stock.
// All methods must be called inside one repository transaction.
type LedgerTx interface {
	// LockStock locks the stock row of a product, creating an empty one on first use.
	LockStock(ctx context.Context, productID int64) (Stock, error)
	// LockStockByID locks a stock row by its own id.
	LockStockByID(ctx context.Context, stockID int64) (Stock, error)
	SaveStockQuantity(ctx context.Context, stockID int64, quantity decimal.Decimal, at time.Time) error
	InsertMovement(ctx context.Context, movement Movement) (Movement, error)
	// LatestPurchaseRate returns the rate of the most recent purchase, false when none exists.
	LatestPurchaseRate(ctx context.Context, productID int64) (decimal.Decimal, bool, error)
	PurchaseTotals(ctx context.Context, productID int64) (PurchaseTotals, error)
	// ClaimKey records a request key in the transaction, failing with
	// shared.ErrIdempotencyConflict when it was committed before.
	ClaimKey(ctx context.Context, key, module string) error
}

// MovementParams describes a signed stock change.
type MovementParams struct {
	Delta     decimal.Decimal
	Note      string
	ActorID   int64
	RefModule string
	RefID     int64
	At        time.Time
}

// EnsureAvailable fails with InsufficientStockError when stock cannot cover quantity.
func EnsureAvailable(stock Stock, quantity decimal.Decimal) error {
	if quantity.GreaterThan(stock.Quantity) {
		return &shared.InsufficientStockError{
			ProductID: stock.ProductID,
			Requested: quantity,
			Available: stock.Quantity,
		}
	}
	return nil
}

// ApplyMovement applies a signed delta to a locked stock row and appends exactly one movement.
// Nothing is written when the result would be negative or exceed MaxQuantity. A request key
// carried by ctx from Ledger.Run is claimed in the same transaction.
func ApplyMovement(ctx context.Context, tx LedgerTx, stock Stock, params MovementParams) (Stock, Movement, error) {
	delta := params.Delta
	if err := CheckQuantity("quantity", delta); err != nil {
		return Stock{}, Movement{}, err
	}
	if delta.IsZero() {
		return Stock{}, Movement{}, shared.NewValidationError("quantity", "must be greater than zero")
	}
	direction := DirectionIn
	if delta.IsNegative() {
		direction = DirectionOut
		if err := EnsureAvailable(stock, delta.Neg()); err != nil {
			return Stock{}, Movement{}, err
		}
	}
	next := stock.Quantity.Add(delta)
	if next.GreaterThan(MaxQuantity) {
		return Stock{}, Movement{}, shared.NewValidationError("quantity", "stock would exceed "+MaxQuantity.String())
	}
	at := params.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if claim, ok := claimFromContext(ctx); ok {
		if err := tx.ClaimKey(ctx, claim.key, claim.module); err != nil {
			return Stock{}, Movement{}, err
		}
	}
	if err := tx.SaveStockQuantity(ctx, stock.ID, next, at); err != nil {
		return Stock{}, Movement{}, fmt.Errorf("inventory: save stock: %w", err)
	}
	movement, err := tx.InsertMovement(ctx, Movement{
		ProductID:  stock.ProductID,
		Quantity:   delta.Abs(),
		Direction:  direction,
		OccurredAt: at,
		Note:       params.Note,
		ActorID:    params.ActorID,
		RefModule:  params.RefModule,
		RefID:      params.RefID,
	})
	if err != nil {
		return Stock{}, Movement{}, fmt.Errorf("inventory: insert movement: %w", err)
	}
	stock.Quantity = next
	stock.UpdatedAt = at
	return stock, movement, nil
}

// IdempotencyPort looks up committed request keys so a replay is rejected before it takes
// the transaction.
type IdempotencyPort interface {
	Seen(ctx context.Context, key string) (bool, error)
}

type requestClaim struct {
	key    string
	module string
}

type claimContextKey struct{}

func withClaim(ctx context.Context, claim requestClaim) context.Context {
	return context.WithValue(ctx, claimContextKey{}, claim)
}

func claimFromContext(ctx context.Context) (requestClaim, bool) {
	claim, ok := ctx.Value(claimContextKey{}).(requestClaim)
	return claim, ok
}

// RequestKey is the stored form of a client key, scoped to the operation name.
func RequestKey(op, key string) string {
	return op + ":" + key
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsRecorder observes ledger operations.
type MetricsRecorder interface {
	ObserveLedgerOp(op, outcome string, elapsed time.Duration)
}

// LedgerConfig groups the collaborators of a Ledger. Every field is optional.
type LedgerConfig struct {
	Locker      shared.Locker
	Idempotency IdempotencyPort
	Audit       AuditPort
	Metrics     MetricsRecorder
	Listeners   []MovementListener
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Ledger wraps ledger mutations with the per-product lock, request idempotency,
// metrics and post-commit side effects.
type Ledger struct {
	locker    shared.Locker
	idem      IdempotencyPort
	audit     AuditPort
	metrics   MetricsRecorder
	listeners []MovementListener
	logger    *slog.Logger
	clock     func() time.Time
}

// NewLedger builds a Ledger.
func NewLedger(cfg LedgerConfig) *Ledger {
	l := &Ledger{
		locker:    cfg.Locker,
		idem:      cfg.Idempotency,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		listeners: cfg.Listeners,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
	}
	if l.locker == nil {
		l.locker = shared.NoopLocker{}
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.clock == nil {
		l.clock = time.Now
	}
	return l
}

// Now returns the ledger clock in UTC.
func (l *Ledger) Now() time.Time {
	return l.clock().UTC()
}

// Operation identifies one ledger mutation.
type Operation struct {
	Name           string
	ProductID      int64
	ActorID        int64
	IdempotencyKey string
}

// Outcome is what a committed mutation reports for audit and listeners.
type Outcome struct {
	Entity     string
	EntityID   int64
	MovementID int64
	Meta       map[string]any
}

// Run executes fn, which must perform the whole mutation in one transaction and post its
// movement through ApplyMovement.
func (l *Ledger) Run(ctx context.Context, op Operation, fn func(ctx context.Context) (Outcome, error)) (err error) {
	start := time.Now()
	defer func() {
		if l.metrics != nil {
			l.metrics.ObserveLedgerOp(op.Name, OutcomeLabel(err), time.Since(start))
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}

	release, err := l.locker.Acquire(ctx, shared.ProductLockKey(op.ProductID))
	if err != nil {
		return err
	}
	defer release(context.WithoutCancel(ctx))

	if op.IdempotencyKey != "" {
		key := RequestKey(op.Name, op.IdempotencyKey)
		if l.idem != nil {
			seen, err := l.idem.Seen(ctx, key)
			if err != nil {
				return fmt.Errorf("ledger: idempotency lookup: %w", err)
			}
			if seen {
				return shared.ErrIdempotencyConflict
			}
		}
		ctx = withClaim(ctx, requestClaim{key: key, module: op.Name})
	}

	outcome, err := fn(ctx)
	if err != nil {
		return err
	}

	l.afterCommit(context.WithoutCancel(ctx), op, outcome)
	return nil
}

func (l *Ledger) afterCommit(ctx context.Context, op Operation, outcome Outcome) {
	at := l.Now()
	if l.audit != nil {
		err := l.audit.Record(ctx, shared.AuditLog{
			ActorID:  op.ActorID,
			Action:   op.Name,
			Entity:   outcome.Entity,
			EntityID: fmt.Sprintf("%d", outcome.EntityID),
			Meta:     outcome.Meta,
			At:       at,
		})
		if err != nil {
			l.logger.Warn("audit ledger operation", slog.String("op", op.Name), slog.Any("error", err))
		}
	}
	evt := MovementRecordedEvent{
		Operation:  op.Name,
		ProductID:  op.ProductID,
		MovementID: outcome.MovementID,
		OccurredAt: at,
	}
	for _, listener := range l.listeners {
		if err := listener.HandleMovementRecorded(ctx, evt); err != nil {
			l.logger.Warn("ledger listener failed", slog.String("op", op.Name), slog.Any("error", err))
		}
	}
}

// OutcomeLabel classifies an operation result for metrics.
func OutcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrValidation):
		return "validation"
	case errors.Is(err, shared.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, shared.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, shared.ErrReference):
		return "reference"
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return "duplicate"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
