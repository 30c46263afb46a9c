package inventory

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mms-dairy/mms/internal/shared"
)

func TestCheckDecimalBounds(t *testing.T) {
	cases := []struct {
		name  string
		check func(string, decimal.Decimal) error
		value string
		ok    bool
	}{
		{"quantity three places", CheckQuantity, "12.345", true},
		{"quantity trailing zeros", CheckQuantity, "12.34500", true},
		{"quantity four places", CheckQuantity, "12.3456", false},
		{"tiny negative", CheckQuantity, "-0.0004", false},
		{"quantity at max", CheckQuantity, "999999999.999", true},
		{"quantity over max", CheckQuantity, "12345678901234.5", false},
		{"rate two places", CheckRate, "2.45", true},
		{"rate three places", CheckRate, "2.455", false},
		{"rate over max", CheckRate, "10000000000", false},
		{"amount at max", CheckAmount, "999999999999.99", true},
		{"amount over max", CheckAmount, "1000000000000", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.check("field", decimal.RequireFromString(tc.value))
			if tc.ok {
				require.NoError(t, err)
				return
			}
			var verr *shared.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "field", verr.Field)
		})
	}
}
