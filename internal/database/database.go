package database

import (
	"fmt"

	"github.com/ksred/trading-core/internal/audit"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase initializes and returns a new GORM DB connection for the
// audit trail.
func NewDatabase(path string) (*gorm.DB, error) {
	if path == "" {
		path = "trading.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&audit.OrderEvent{},
		&audit.TradeRecord{},
		&audit.RuleSnapshot{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
