package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxConfig tunes ledger transactions.
type TxConfig struct {
	// LockTimeout bounds how long a statement waits for a row lock; zero keeps the server default.
	LockTimeout time.Duration
}

// WithTx executes fn within a ReadCommitted transaction. Row locks taken with FOR UPDATE
// serialise writers; every read issued after the lock sees the latest committed state.
// The transaction is rolled back when fn fails or ctx is cancelled.
func WithTx(ctx context.Context, pool *pgxpool.Pool, cfg TxConfig, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if cfg.LockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", cfg.LockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
			return fmt.Errorf("platform/db: set lock timeout: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
