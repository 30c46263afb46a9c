package ledgermem

import (
	"context"
	"sync"

	"github.com/mms-dairy/mms/internal/shared"
)

// Audit collects audit entries.
type Audit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (a *Audit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	return nil
}

// Entries returns the recorded entries in order.
func (a *Audit) Entries() []shared.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]shared.AuditLog(nil), a.entries...)
}
