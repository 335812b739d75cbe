package orders

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/trading-core/internal/ledger"
	"github.com/ksred/trading-core/internal/risk"
	"github.com/ksred/trading-core/internal/types"
	"github.com/rs/zerolog"
)

// RiskRejectedError is returned by Submit when the pre-trade check
// fails. The order is stored with status REJECTED and the full check
// result is carried for diagnostics.
type RiskRejectedError struct {
	Result risk.Result
}

func (e *RiskRejectedError) Error() string {
	msgs := make([]string, 0, len(e.Result.Violations))
	for _, v := range e.Result.Violations {
		msgs = append(msgs, v.Message)
	}
	return "order rejected by risk check: " + strings.Join(msgs, "; ")
}

// OrderFilter selects orders in Query. Zero-valued fields are ignored;
// supplied predicates combine with logical AND.
type OrderFilter struct {
	Symbol     string
	Status     types.OrderStatus
	Side       types.OrderSide
	Type       types.OrderType
	Account    string
	StrategyID string

	// Limit and Offset paginate the result after filtering. A zero Limit
	// returns everything.
	Limit  int
	Offset int
}

func (f *OrderFilter) matches(o *types.Order) bool {
	if f.Symbol != "" && o.Symbol != f.Symbol {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.Side != "" && o.Side != f.Side {
		return false
	}
	if f.Type != "" && o.Type != f.Type {
		return false
	}
	if f.Account != "" && o.Account != f.Account {
		return false
	}
	if f.StrategyID != "" && o.StrategyID != f.StrategyID {
		return false
	}
	return true
}

// Manager is the authoritative order store and lifecycle state machine.
//
// One mutex guards the order map. The pre-trade risk check runs while
// holding it, against a view that counts both filled positions and the
// unfilled remainder of every open order, so two concurrent submissions
// for the same key cannot both pass a position-size check: the first
// accepted order is visible as open exposure before the second check
// runs. Fills update the ledger under the same lock so the view never
// tears between the order store and the ledger. Listener callbacks
// always run after the lock is released.
type Manager struct {
	mu       sync.Mutex
	orders   map[string]*types.Order
	engine   *risk.Engine
	ledger   *ledger.Ledger
	notifier *notifier
	logger   zerolog.Logger
}

// riskView is the snapshot the engine checks submissions against: the
// position ledger plus the signed unfilled quantity of open orders.
// Only constructed while the manager's mutex is held, so reading the
// order map directly is safe.
type riskView struct {
	*ledger.Ledger
	manager *Manager
}

// OpenExposure sums the signed remaining quantity of every non-terminal
// order for the key. Cancels and rejections release their exposure by
// dropping out of the sum.
func (v riskView) OpenExposure(symbol, account, strategyID string) float64 {
	var total float64
	for _, order := range v.manager.orders {
		if order.Status.Terminal() {
			continue
		}
		if order.Symbol != symbol || order.Account != account || order.StrategyID != strategyID {
			continue
		}
		remaining := order.Remaining()
		if order.Side == types.SideSell {
			remaining = -remaining
		}
		total += remaining
	}
	return total
}

// NewManager creates a lifecycle manager wired to the risk engine and
// the position ledger.
func NewManager(engine *risk.Engine, book *ledger.Ledger, logger zerolog.Logger) *Manager {
	return &Manager{
		orders:   make(map[string]*types.Order),
		engine:   engine,
		ledger:   book,
		notifier: newNotifier(logger),
		logger:   logger.With().Str("component", "order_manager").Logger(),
	}
}

// OnOrderUpdate registers a listener for post-mutation order snapshots.
func (m *Manager) OnOrderUpdate(listener OrderListener) {
	m.notifier.onOrderUpdate(listener)
}

// OnTrade registers a listener for trade records.
func (m *Manager) OnTrade(listener TradeListener) {
	m.notifier.onTrade(listener)
}

// Submit validates the request, assigns an order ID, runs the pre-trade
// risk check and stores the order. On a passing check the order is stored
// PENDING; a venue adapter later moves it to SUBMITTED. On a failing
// check the order is stored REJECTED and a RiskRejectedError carrying
// the full check result is returned alongside the stored order.
func (m *Manager) Submit(request types.Order) (types.Order, error) {
	if err := validate(&request); err != nil {
		m.logger.Warn().Err(err).Str("symbol", request.Symbol).Msg("order submission rejected")
		return types.Order{}, err
	}

	order := request
	order.OrderID = "ORD_" + uuid.New().String()
	order.Status = types.StatusPending
	order.FilledQuantity = 0
	order.AvgFillPrice = 0
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	m.mu.Lock()
	// Check-then-insert is atomic with respect to other submissions, and
	// the view includes open-order exposure, so an accepted order gates
	// later submissions even before its first fill.
	result := m.engine.Check(order, riskView{Ledger: m.ledger, manager: m})
	if !result.Passed {
		order.Status = types.StatusRejected
	}
	stored := order
	m.orders[order.OrderID] = &stored
	m.mu.Unlock()

	if !result.Passed {
		m.logger.Warn().
			Str("order_id", order.OrderID).
			Str("symbol", order.Symbol).
			Int("violations", len(result.Violations)).
			Msg("order rejected by pre-trade risk check")

		m.notifier.notifyOrder(order)
		return order, &RiskRejectedError{Result: result}
	}

	m.logger.Info().
		Str("order_id", order.OrderID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("order_type", string(order.Type)).
		Float64("quantity", order.Quantity).
		Float64("price", order.Price).
		Msg("order submitted")

	m.notifier.notifyOrder(order)
	return order, nil
}

// Cancel transitions a non-terminal order to CANCELED and returns true.
// Unknown and already-terminal orders are a no-op returning false, not
// an error: cancellation races are expected.
func (m *Manager) Cancel(orderID string) bool {
	m.mu.Lock()

	order, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn().Str("order_id", orderID).Msg("cannot cancel order: not found")
		return false
	}
	if order.Status.Terminal() {
		status := order.Status
		m.mu.Unlock()
		m.logger.Warn().
			Str("order_id", orderID).
			Str("status", string(status)).
			Msg("cannot cancel order: already terminal")
		return false
	}

	order.Status = types.StatusCanceled
	order.UpdatedAt = time.Now()
	snapshot := *order
	m.mu.Unlock()

	m.logger.Info().Str("order_id", orderID).Msg("order canceled")
	m.notifier.notifyOrder(snapshot)
	return true
}

// CancelAll cancels every non-terminal order, or only those for the
// given symbol when it is non-empty. Returns the number canceled.
func (m *Manager) CancelAll(symbol string) int {
	m.mu.Lock()
	snapshots := make([]types.Order, 0)
	for _, order := range m.orders {
		if order.Status.Terminal() {
			continue
		}
		if symbol != "" && order.Symbol != symbol {
			continue
		}
		order.Status = types.StatusCanceled
		order.UpdatedAt = time.Now()
		snapshots = append(snapshots, *order)
	}
	m.mu.Unlock()

	for _, snapshot := range snapshots {
		m.notifier.notifyOrder(snapshot)
	}

	if len(snapshots) > 0 {
		m.logger.Info().Str("symbol", symbol).Int("count", len(snapshots)).Msg("orders canceled")
	}
	return len(snapshots)
}

// MarkSubmitted moves a PENDING order to SUBMITTED. Venue adapters call
// it once the order has been accepted downstream.
func (m *Manager) MarkSubmitted(orderID string) error {
	m.mu.Lock()

	order, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return types.ErrOrderNotFound
	}
	if order.Status != types.StatusPending {
		status := order.Status
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot submit order in state %s", types.ErrInvalidStateTransition, status)
	}

	order.Status = types.StatusSubmitted
	order.UpdatedAt = time.Now()
	snapshot := *order
	m.mu.Unlock()

	m.logger.Info().Str("order_id", orderID).Msg("order submitted to venue")
	m.notifier.notifyOrder(snapshot)
	return nil
}

// ApplyFill applies one fill to a non-terminal order, recomputing the
// volume-weighted average fill price and the lifecycle status, updates
// the position ledger, and returns the resulting trade record.
//
// Cumulative filled quantity must never exceed the order quantity: a
// fill beyond the remaining amount is a ValidationError, never clamped.
func (m *Manager) ApplyFill(fill types.Fill) (types.Trade, error) {
	if fill.Quantity <= 0 {
		return types.Trade{}, types.NewValidationError("fill quantity must be positive, got %g", fill.Quantity)
	}
	if fill.Price <= 0 {
		return types.Trade{}, types.NewValidationError("fill price must be positive, got %g", fill.Price)
	}

	m.mu.Lock()

	order, ok := m.orders[fill.OrderID]
	if !ok {
		m.mu.Unlock()
		return types.Trade{}, types.ErrOrderNotFound
	}
	if order.Status.Terminal() {
		status := order.Status
		m.mu.Unlock()
		return types.Trade{}, fmt.Errorf("%w: cannot fill order in state %s", types.ErrInvalidStateTransition, status)
	}

	remaining := order.Remaining()
	if fill.Quantity > remaining+types.QuantityEpsilon {
		m.mu.Unlock()
		return types.Trade{}, types.NewValidationError(
			"fill quantity %g exceeds remaining %g on order %s", fill.Quantity, remaining, fill.OrderID)
	}

	previousFilled := order.FilledQuantity
	order.FilledQuantity += fill.Quantity
	order.AvgFillPrice = (order.AvgFillPrice*previousFilled + fill.Price*fill.Quantity) / order.FilledQuantity

	if math.Abs(order.FilledQuantity-order.Quantity) < types.QuantityEpsilon {
		order.FilledQuantity = order.Quantity
		order.Status = types.StatusFilled
	} else {
		order.Status = types.StatusPartialFilled
	}
	order.UpdatedAt = time.Now()

	timestamp := fill.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	trade := types.Trade{
		TradeID:    "TRD_" + uuid.New().String(),
		OrderID:    order.OrderID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   fill.Quantity,
		Price:      fill.Price,
		Account:    order.Account,
		StrategyID: order.StrategyID,
		Timestamp:  timestamp,
	}

	// The ledger update stays under the order store lock so a risk check
	// racing with this fill sees either the pre-fill or post-fill ledger,
	// never a torn state.
	m.ledger.ApplyTrade(trade)

	snapshot := *order
	m.mu.Unlock()

	m.logger.Info().
		Str("order_id", order.OrderID).
		Str("trade_id", trade.TradeID).
		Float64("fill_quantity", fill.Quantity).
		Float64("fill_price", fill.Price).
		Float64("filled_quantity", snapshot.FilledQuantity).
		Float64("avg_fill_price", snapshot.AvgFillPrice).
		Str("status", string(snapshot.Status)).
		Msg("fill applied")

	m.notifier.notifyOrder(snapshot)
	m.notifier.notifyTrade(trade)
	return trade, nil
}

// Get returns a copy of the order, if known.
func (m *Manager) Get(orderID string) (types.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return types.Order{}, false
	}
	return *order, true
}

// Query returns copies of every order matching the filter, oldest
// first. No matches yields an empty slice, not an error.
func (m *Manager) Query(filter OrderFilter) []types.Order {
	m.mu.Lock()
	matched := make([]types.Order, 0)
	for _, order := range m.orders {
		if filter.matches(order) {
			matched = append(matched, *order)
		}
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].OrderID < matched[j].OrderID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []types.Order{}
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched
}

// OpenOrders returns every order still eligible for fills, optionally
// restricted to one symbol.
func (m *Manager) OpenOrders(symbol string) []types.Order {
	open := make([]types.Order, 0)
	for _, order := range m.Query(OrderFilter{Symbol: symbol}) {
		switch order.Status {
		case types.StatusPending, types.StatusSubmitted, types.StatusPartialFilled:
			open = append(open, order)
		}
	}
	return open
}

func validate(order *types.Order) error {
	if order.Symbol == "" {
		return types.NewValidationError("symbol must not be empty")
	}
	if order.Quantity <= 0 {
		return types.NewValidationError("quantity must be positive, got %g", order.Quantity)
	}
	if !order.Side.Valid() {
		return types.NewValidationError("side must be BUY or SELL, got %q", order.Side)
	}
	if order.Type == "" {
		order.Type = types.TypeMarket
	}
	if !order.Type.Valid() {
		return types.NewValidationError("unknown order type %q", order.Type)
	}
	if order.Type == types.TypeLimit && order.Price <= 0 {
		return types.NewValidationError("limit orders require a positive price")
	}
	if (order.Type == types.TypeStop || order.Type == types.TypeStopLimit) && order.StopPrice <= 0 {
		return types.NewValidationError("stop orders require a positive stop price")
	}
	return nil
}
