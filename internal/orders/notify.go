package orders

import (
	"sync"

	"github.com/ksred/trading-core/internal/types"
	"github.com/rs/zerolog"
)

// OrderListener receives the post-mutation snapshot of an order after
// every state-changing operation.
type OrderListener func(order types.Order)

// TradeListener receives each trade record as fills are applied.
type TradeListener func(trade types.Trade)

// notifier dispatches order-update and trade events synchronously, in
// registration order. Callers must invoke it outside the order store's
// critical section: a listener may legally re-enter the manager (for
// example to cancel another order).
type notifier struct {
	mu             sync.RWMutex
	orderListeners []OrderListener
	tradeListeners []TradeListener
	logger         zerolog.Logger
}

func newNotifier(logger zerolog.Logger) *notifier {
	return &notifier{
		logger: logger.With().Str("component", "notifier").Logger(),
	}
}

func (n *notifier) onOrderUpdate(listener OrderListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orderListeners = append(n.orderListeners, listener)
}

func (n *notifier) onTrade(listener TradeListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tradeListeners = append(n.tradeListeners, listener)
}

func (n *notifier) notifyOrder(order types.Order) {
	n.mu.RLock()
	listeners := make([]OrderListener, len(n.orderListeners))
	copy(listeners, n.orderListeners)
	n.mu.RUnlock()

	for _, listener := range listeners {
		n.safeInvokeOrder(listener, order)
	}
}

func (n *notifier) notifyTrade(trade types.Trade) {
	n.mu.RLock()
	listeners := make([]TradeListener, len(n.tradeListeners))
	copy(listeners, n.tradeListeners)
	n.mu.RUnlock()

	for _, listener := range listeners {
		n.safeInvokeTrade(listener, trade)
	}
}

// safeInvokeOrder isolates a listener so one panicking callback cannot
// prevent subsequent listeners from running.
func (n *notifier) safeInvokeOrder(listener OrderListener, order types.Order) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error().
				Interface("panic", r).
				Str("order_id", order.OrderID).
				Msg("order listener panicked")
		}
	}()
	listener(order)
}

func (n *notifier) safeInvokeTrade(listener TradeListener, trade types.Trade) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error().
				Interface("panic", r).
				Str("trade_id", trade.TradeID).
				Msg("trade listener panicked")
		}
	}()
	listener(trade)
}
