package library

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	for _, k := range []string{
		"LIBRARY_BORROW_DELAY", "LIBRARY_LOW_STOCK_THRESHOLD",
		"LIBRARY_SEED", "LIBRARY_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.BorrowDelay)
	assert.Equal(t, DefaultLowStockThreshold, cfg.LowStockThreshold)
	assert.True(t, cfg.Seed)
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("LIBRARY_BORROW_DELAY", "1.5s")
	t.Setenv("LIBRARY_LOW_STOCK_THRESHOLD", "-1")
	t.Setenv("LIBRARY_LEDGER_PATH", "/tmp/loans.db")
	t.Setenv("LIBRARY_SEED", "false")
	t.Setenv("LIBRARY_LOG_LEVEL", "debug")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, Config{
		BorrowDelay:       1500 * time.Millisecond,
		LowStockThreshold: -1,
		LedgerPath:        "/tmp/loans.db",
		Seed:              false,
		LogLevel:          "debug",
	}, cfg)
}

func TestConfigFromEnvRejectsBadValues(t *testing.T) {
	testCases := map[string]string{
		"LIBRARY_BORROW_DELAY":        "soon",
		"LIBRARY_LOW_STOCK_THRESHOLD": "two",
		"LIBRARY_SEED":                "maybe",
	}
	for key, value := range testCases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := ConfigFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}
