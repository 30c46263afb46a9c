package inventory

import "context"

// MovementListener receives committed ledger events. Listener errors never undo the commit.
type MovementListener interface {
	HandleMovementRecorded(ctx context.Context, evt MovementRecordedEvent) error
}
