package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mms-dairy/mms/internal/inventory"
)

// Reconciler compares stock rows against the movement log.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]inventory.Discrepancy, error)
}

// ReconcileOptions defines available flags for the reconcile command.
type ReconcileOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ReconcileSummary describes the JSON response for reconcile.
type ReconcileSummary struct {
	OK            bool                    `json:"ok"`
	Discrepancies []inventory.Discrepancy `json:"discrepancies"`
}

// ExitDiscrepancies is returned when reconcile finds drift.
const ExitDiscrepancies = 10

// ReconcileCommand runs a reconciliation and prints the outcome. It exits 0 when every stock row
// matches its movement log, ExitDiscrepancies when some do not and 1 on errors.
func ReconcileCommand(ctx context.Context, reconciler Reconciler, opts ReconcileOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	found, err := reconciler.Reconcile(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "reconcile: %v\n", err)
		return 1
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ProductID < found[j].ProductID })
	if found == nil {
		found = []inventory.Discrepancy{}
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(ReconcileSummary{OK: len(found) == 0, Discrepancies: found}); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile: encode json: %v\n", err)
			return 1
		}
	} else {
		renderReconcileHuman(opts.Stdout, found)
	}
	if len(found) > 0 {
		return ExitDiscrepancies
	}
	return 0
}

func renderReconcileHuman(out io.Writer, found []inventory.Discrepancy) {
	if len(found) == 0 {
		_, _ = fmt.Fprintln(out, "Stock matches the movement log for every product.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d discrepancy(ies) detected:\n", len(found))
	for _, d := range found {
		_, _ = fmt.Fprintf(out, " - product %d: stock %s, ledger %s (diff %s)\n",
			d.ProductID, d.StockQuantity.StringFixed(3), d.LedgerQuantity.StringFixed(3), d.Difference().StringFixed(3))
	}
}
