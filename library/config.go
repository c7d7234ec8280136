package library

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config controls how a LibraryManager is assembled.
type Config struct {
	// BorrowDelay is the fixed pause before a borrow or return completes.
	BorrowDelay time.Duration
	// LowStockThreshold is the available count at or below which a borrow
	// raises a low-stock warning. Negative disables the warning.
	LowStockThreshold int
	// LedgerPath is the SQLite file for loan history; empty keeps it in memory.
	LedgerPath string
	// Seed loads the demo books and members.
	Seed bool
	// LogLevel is read by the command line tools only.
	LogLevel string
}

// DefaultConfig returns the settings the demo library ships with.
func DefaultConfig() Config {
	return Config{
		BorrowDelay:       500 * time.Millisecond,
		LowStockThreshold: DefaultLowStockThreshold,
		Seed:              true,
		LogLevel:          "info",
	}
}

// ConfigFromEnv starts from DefaultConfig and applies any LIBRARY_* variables that are set.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("LIBRARY_BORROW_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("LIBRARY_BORROW_DELAY: %w", err)
		}
		cfg.BorrowDelay = d
	}
	if v := os.Getenv("LIBRARY_LOW_STOCK_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("LIBRARY_LOW_STOCK_THRESHOLD: %w", err)
		}
		cfg.LowStockThreshold = n
	}
	if v, ok := os.LookupEnv("LIBRARY_LEDGER_PATH"); ok {
		cfg.LedgerPath = v
	}
	if v := os.Getenv("LIBRARY_SEED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("LIBRARY_SEED: %w", err)
		}
		cfg.Seed = b
	}
	if v := os.Getenv("LIBRARY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}
