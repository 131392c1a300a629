package database

import (
	"fmt"
	"os"
	"path/filepath"

	"stv-go/internal/config"
)

// JournalFileName is the journal database file inside the data dir.
const JournalFileName = "stv.db"

// NewJournalFromConfig opens the journal selected by the database config type.
func NewJournalFromConfig(cfg config.DatabaseConfig) (*SQLiteJournal, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return NewSQLiteJournal(filepath.Join(cfg.DataDir, JournalFileName))
	case "memory":
		return NewSQLiteJournal(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
