package inventory

import "time"

// MovementRecordedEvent is emitted after a ledger mutation commits.
type MovementRecordedEvent struct {
	Operation  string
	ProductID  int64
	MovementID int64
	OccurredAt time.Time
}
