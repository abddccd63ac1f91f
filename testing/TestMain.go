// Package testing prepares a hermetic environment for tests that load runtime configuration.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

// configEnv lists variables read by app.LoadConfig that must not leak from the host.
var configEnv = []string{
	"APP_ENV",
	"LOG_FORMAT",
	"PG_DSN",
	"REDIS_ADDR",
	"LEDGER_FALLBACK_CURRENCY",
	"LEDGER_LOCK_TIMEOUT",
	"LEDGER_STATEMENT_TIMEOUT",
	"LEDGER_ROLE_CACHE_TTL",
	"LEDGER_CLOSE_LOCK_TTL",
	"RATE_LIMIT_PER_MINUTE",
	"IDEMPOTENCY_RETENTION",
}

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		for _, key := range configEnv {
			_ = os.Unsetenv(key)
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
