package database

import (
	"fmt"
	"os"
	"path/filepath"

	"goaltrack/internal/config"
	"goaltrack/internal/gt"
)

// DatabaseFileName is the SQLite file inside the configured data dir.
const DatabaseFileName = "goaltrack.db"

// NewStoreFromConfig creates a SQLiteStore based on the store config type.
func NewStoreFromConfig(cfg config.StoreConfig, clock gt.Clock) (*SQLiteStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite store")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, DatabaseFileName), clock)
	case "memory":
		return NewSQLiteStore(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
