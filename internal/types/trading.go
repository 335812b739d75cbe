package types

import (
	"time"
)

// QuantityEpsilon is the tolerance used when comparing quantities.
// An order is FILLED once its filled quantity is within this tolerance
// of the requested quantity.
const QuantityEpsilon = 1e-6

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

func (s OrderSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

type OrderType string

const (
	TypeMarket    OrderType = "MARKET"
	TypeLimit     OrderType = "LIMIT"
	TypeStop      OrderType = "STOP"
	TypeStopLimit OrderType = "STOP_LIMIT"
)

func (t OrderType) Valid() bool {
	switch t {
	case TypeMarket, TypeLimit, TypeStop, TypeStopLimit:
		return true
	}
	return false
}

type OrderStatus string

const (
	StatusPending       OrderStatus = "PENDING"
	StatusSubmitted     OrderStatus = "SUBMITTED"
	StatusPartialFilled OrderStatus = "PARTIAL_FILLED"
	StatusFilled        OrderStatus = "FILLED"
	StatusCanceled      OrderStatus = "CANCELED"
	StatusRejected      OrderStatus = "REJECTED"
)

// Terminal reports whether the status permits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// Order is the unit of work driven through the lifecycle state machine.
// The order store owns it exclusively: callers receive copies, and only
// the lifecycle manager mutates the stored instance.
type Order struct {
	OrderID        string      `json:"order_id"`
	ClientID       string      `json:"client_id"`
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Type           OrderType   `json:"order_type"`
	Status         OrderStatus `json:"status"`
	Quantity       float64     `json:"quantity"`
	Price          float64     `json:"price,omitempty"`      // limit price, zero when unset
	StopPrice      float64     `json:"stop_price,omitempty"` // for STOP / STOP_LIMIT orders
	FilledQuantity float64     `json:"filled_quantity"`
	AvgFillPrice   float64     `json:"avg_fill_price"` // zero until the first fill
	Account        string      `json:"account"`
	StrategyID     string      `json:"strategy_id"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() float64 {
	return o.Quantity - o.FilledQuantity
}

// Trade is an immutable record of a single fill applied to an order.
type Trade struct {
	TradeID    string    `json:"trade_id"`
	OrderID    string    `json:"order_id"`
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Account    string    `json:"account"`
	StrategyID string    `json:"strategy_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Fill is the event a venue adapter delivers when part of an order executes.
type Fill struct {
	OrderID   string    `json:"order_id"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Position is the net exposure for one (symbol, account, strategy) key.
// Quantity is signed: positive is long, negative is short. AvgPrice is
// only meaningful while Quantity is non-zero.
type Position struct {
	Symbol        string    `json:"symbol"`
	Account       string    `json:"account"`
	StrategyID    string    `json:"strategy_id"`
	Quantity      float64   `json:"quantity"`
	AvgPrice      float64   `json:"avg_price"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Notional returns the absolute monetary value of the position at its
// average entry price.
func (p *Position) Notional() float64 {
	n := p.Quantity * p.AvgPrice
	if n < 0 {
		return -n
	}
	return n
}
