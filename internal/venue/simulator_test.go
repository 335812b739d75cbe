package venue

import (
	"testing"

	"github.com/ksred/trading-core/internal/ledger"
	"github.com/ksred/trading-core/internal/orders"
	"github.com/ksred/trading-core/internal/risk"
	"github.com/ksred/trading-core/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSimulator(t *testing.T) (*Simulator, *orders.Manager) {
	t.Helper()
	book := ledger.NewLedger(zerolog.Nop())
	engine := risk.NewEngine(risk.Config{DefaultMarkPrice: 100.0}, zerolog.Nop())
	manager := orders.NewManager(engine, book, zerolog.Nop())
	simulator := NewSimulator(manager, Options{Seed: 1}, zerolog.Nop())
	return simulator, manager
}

// runUntil drives cycles until the predicate holds or the attempt budget
// runs out.
func runUntil(t *testing.T, simulator *Simulator, predicate func() bool) {
	t.Helper()
	for i := 0; i < 500; i++ {
		if predicate() {
			return
		}
		simulator.Cycle()
	}
	require.True(t, predicate(), "condition not reached within cycle budget")
}

func TestCycleAcknowledgesPendingOrders(t *testing.T) {
	t.Parallel()

	simulator, manager := newTestSimulator(t)

	order, err := manager.Submit(types.Order{
		Symbol:   "AAPL",
		Side:     types.SideBuy,
		Quantity: 100,
		Account:  "ACC_1",
	})
	require.NoError(t, err)
	require.Equal(t, types.StatusPending, order.Status)

	simulator.Cycle()

	stored, _ := manager.Get(order.OrderID)
	assert.NotEqual(t, types.StatusPending, stored.Status)
}

func TestOrdersEventuallyFillCompletely(t *testing.T) {
	t.Parallel()

	simulator, manager := newTestSimulator(t)

	order, err := manager.Submit(types.Order{
		Symbol:   "AAPL",
		Side:     types.SideBuy,
		Quantity: 100,
		Account:  "ACC_1",
	})
	require.NoError(t, err)

	runUntil(t, simulator, func() bool {
		stored, _ := manager.Get(order.OrderID)
		return stored.Status == types.StatusFilled
	})

	stored, _ := manager.Get(order.OrderID)
	assert.Equal(t, order.Quantity, stored.FilledQuantity)
	// Market order fills stay within the slippage band around the base price.
	assert.InDelta(t, 100.0, stored.AvgFillPrice, 0.5)
}

func TestLimitOrdersRespectLimitPrice(t *testing.T) {
	t.Parallel()

	simulator, manager := newTestSimulator(t)

	buy, err := manager.Submit(types.Order{
		Symbol:   "AAPL",
		Side:     types.SideBuy,
		Type:     types.TypeLimit,
		Quantity: 100,
		Price:    50.0,
		Account:  "ACC_1",
	})
	require.NoError(t, err)

	sell, err := manager.Submit(types.Order{
		Symbol:   "MSFT",
		Side:     types.SideSell,
		Type:     types.TypeLimit,
		Quantity: 100,
		Price:    80.0,
		Account:  "ACC_1",
	})
	require.NoError(t, err)

	var buyTrades, sellTrades []types.Trade
	manager.OnTrade(func(trade types.Trade) {
		switch trade.OrderID {
		case buy.OrderID:
			buyTrades = append(buyTrades, trade)
		case sell.OrderID:
			sellTrades = append(sellTrades, trade)
		}
	})

	runUntil(t, simulator, func() bool {
		b, _ := manager.Get(buy.OrderID)
		s, _ := manager.Get(sell.OrderID)
		return b.Status == types.StatusFilled && s.Status == types.StatusFilled
	})

	require.NotEmpty(t, buyTrades)
	for _, trade := range buyTrades {
		assert.LessOrEqual(t, trade.Price, buy.Price)
	}
	require.NotEmpty(t, sellTrades)
	for _, trade := range sellTrades {
		assert.GreaterOrEqual(t, trade.Price, sell.Price)
	}
}

func TestCanceledOrdersAreLeftAlone(t *testing.T) {
	t.Parallel()

	simulator, manager := newTestSimulator(t)

	order, err := manager.Submit(types.Order{
		Symbol:   "AAPL",
		Side:     types.SideBuy,
		Quantity: 100,
		Account:  "ACC_1",
	})
	require.NoError(t, err)
	require.True(t, manager.Cancel(order.OrderID))

	for i := 0; i < 50; i++ {
		simulator.Cycle()
	}

	stored, _ := manager.Get(order.OrderID)
	assert.Equal(t, types.StatusCanceled, stored.Status)
	assert.Zero(t, stored.FilledQuantity)
}

func TestSeededRunsAreReproducible(t *testing.T) {
	t.Parallel()

	run := func() []float64 {
		book := ledger.NewLedger(zerolog.Nop())
		engine := risk.NewEngine(risk.Config{DefaultMarkPrice: 100.0}, zerolog.Nop())
		manager := orders.NewManager(engine, book, zerolog.Nop())
		simulator := NewSimulator(manager, Options{Seed: 7}, zerolog.Nop())

		var prices []float64
		manager.OnTrade(func(trade types.Trade) {
			prices = append(prices, trade.Price)
		})

		order, err := manager.Submit(types.Order{
			Symbol:   "AAPL",
			Side:     types.SideBuy,
			Quantity: 100,
			Account:  "ACC_1",
		})
		require.NoError(t, err)

		for i := 0; i < 200; i++ {
			simulator.Cycle()
			stored, _ := manager.Get(order.OrderID)
			if stored.Status == types.StatusFilled {
				break
			}
		}
		return prices
	}

	assert.Equal(t, run(), run())
}
