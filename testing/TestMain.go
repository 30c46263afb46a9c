package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("MMS_TEST_MODE", "1")
		if os.Getenv("STOCK_CACHE_TTL") == "" {
			_ = os.Setenv("STOCK_CACHE_TTL", "1s")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
