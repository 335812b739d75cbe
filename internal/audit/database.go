package audit

import (
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOrderEvent(event *OrderEvent) error {
	return d.db.Create(event).Error
}

func (d *Database) CreateTradeRecord(record *TradeRecord) error {
	return d.db.Create(record).Error
}

func (d *Database) CreateRuleSnapshot(snapshot *RuleSnapshot) error {
	return d.db.Create(snapshot).Error
}

// OrderEvents returns the recorded lifecycle of one order, oldest first.
func (d *Database) OrderEvents(orderID string, limit, offset int) ([]OrderEvent, error) {
	var events []OrderEvent
	err := d.db.Where("order_id = ?", orderID).
		Order("id asc").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	return events, err
}

// Trades returns recorded trades, optionally filtered by symbol and
// account, newest first.
func (d *Database) Trades(symbol, account string, limit, offset int) ([]TradeRecord, error) {
	query := d.db.Model(&TradeRecord{})
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}
	if account != "" {
		query = query.Where("account = ?", account)
	}

	var trades []TradeRecord
	err := query.Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&trades).Error
	return trades, err
}
