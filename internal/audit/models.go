package audit

import (
	"time"

	"gorm.io/gorm"
)

// OrderEvent is one row per order-update notification: the full
// post-mutation snapshot, so the lifecycle of every order can be
// replayed for audit.
type OrderEvent struct {
	gorm.Model     `json:"-"`
	OrderID        string    `gorm:"index" json:"order_id"`
	ClientID       string    `json:"client_id"`
	Symbol         string    `gorm:"index" json:"symbol"`
	Side           string    `json:"side"`
	OrderType      string    `json:"order_type"`
	Status         string    `json:"status"`
	Quantity       float64   `json:"quantity"`
	Price          float64   `json:"price"`
	FilledQuantity float64   `json:"filled_quantity"`
	AvgFillPrice   float64   `json:"avg_fill_price"`
	Account        string    `gorm:"index" json:"account"`
	StrategyID     string    `json:"strategy_id"`
	EventTime      time.Time `json:"event_time"`
}

// RuleSnapshot records one risk rule as it was configured when the
// server loaded, so rejections can be interpreted against the rule set
// in force at the time.
type RuleSnapshot struct {
	gorm.Model `json:"-"`
	RuleID     string    `gorm:"index" json:"rule_id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Params     string    `json:"params"` // JSON-encoded parameter map
	Enabled    bool      `json:"enabled"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// TradeRecord is one row per trade notification.
type TradeRecord struct {
	gorm.Model `json:"-"`
	TradeID    string    `gorm:"uniqueIndex" json:"trade_id"`
	OrderID    string    `gorm:"index" json:"order_id"`
	Symbol     string    `gorm:"index" json:"symbol"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Account    string    `gorm:"index" json:"account"`
	StrategyID string    `json:"strategy_id"`
	ExecutedAt time.Time `json:"executed_at"`
}
