package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamesSorted(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "0001_ledger.sql", names[0])
}

func TestLedgerSchemaGuardsStock(t *testing.T) {
	body, err := Files.ReadFile("0001_ledger.sql")
	require.NoError(t, err)
	schema := string(body)

	for _, table := range []string{
		"products", "suppliers", "shops", "retail_customers", "stocks", "stock_movements",
		"purchases", "wastages", "wholesale_sales", "retail_sales", "subscriptions",
		"subscription_exceptions", "idempotency_keys", "audit_logs",
	} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
	assert.Contains(t, schema, "product_id BIGINT NOT NULL UNIQUE REFERENCES products(id)")
	assert.True(t, strings.Contains(schema, "CHECK (quantity >= 0)"), "stock quantity must never go negative")
	assert.Contains(t, schema, "UNIQUE (subscription_id, date)")
}

func TestRetailSalesAcceptOnlyPaidOrPending(t *testing.T) {
	body, err := Files.ReadFile("0001_ledger.sql")
	require.NoError(t, err)
	schema := string(body)

	retail := schema[strings.Index(schema, "CREATE TABLE IF NOT EXISTS retail_sales ("):]
	retail = retail[:strings.Index(retail, ");")]
	assert.Contains(t, retail, "CHECK (payment_status IN ('paid', 'pending'))")
	assert.NotContains(t, retail, "partial")

	wholesale := schema[strings.Index(schema, "CREATE TABLE IF NOT EXISTS wholesale_sales ("):]
	wholesale = wholesale[:strings.Index(wholesale, ");")]
	assert.Contains(t, wholesale, "'partial'")
}
