package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ordersync/shopify-fishbowl-bridge/app/models"
)

var DB *gorm.DB

// SetupDatabase opens (creating if absent) the SQLite ledger under dataDir
// and migrates the schema. WAL mode keeps concurrent webhook deliveries from
// tripping over each other; busy_timeout covers short write contention.
func SetupDatabase(dataDir string) error {
	if dataDir == "" {
		return fmt.Errorf("dataDir is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "idempotency.sqlite")
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", dbPath)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("open sqlite ledger: %w", err)
	}

	// SQLite permits a single writer; funneling all access through one
	// connection turns lock contention between concurrent deliveries into
	// ordinary queueing.
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.WebhookEvent{}); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}

	DB = db
	return nil
}

func GetDB() *gorm.DB {
	return DB
}

// CloseDatabase flushes and closes the underlying SQLite handle.
func CloseDatabase() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	DB = nil
	return sqlDB.Close()
}
