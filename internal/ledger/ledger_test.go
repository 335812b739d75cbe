package ledger

import (
	"testing"
	"time"

	"github.com/ksred/trading-core/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tradeFor(side types.OrderSide, quantity, price float64) types.Trade {
	return types.Trade{
		TradeID:    "TRD_test",
		OrderID:    "ORD_test",
		Symbol:     "AAPL",
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Account:    "ACC_1",
		StrategyID: "alpha",
		Timestamp:  time.Now(),
	}
}

func TestApplyTradeBuildsVolumeWeightedBasis(t *testing.T) {
	t.Parallel()

	book := NewLedger(zerolog.Nop())

	book.ApplyTrade(tradeFor(types.SideBuy, 100, 10.0))
	book.ApplyTrade(tradeFor(types.SideBuy, 100, 20.0))

	pos, ok := book.Position("AAPL", "ACC_1", "alpha")
	require.True(t, ok)
	assert.InDelta(t, 200.0, pos.Quantity, 1e-9)
	assert.InDelta(t, 15.0, pos.AvgPrice, 1e-9)
	assert.Zero(t, pos.RealizedPnL)
}

func TestPartialCloseRealizesAgainstBasis(t *testing.T) {
	t.Parallel()

	book := NewLedger(zerolog.Nop())
	book.ApplyTrade(tradeFor(types.SideBuy, 200, 15.0))

	book.ApplyTrade(tradeFor(types.SideSell, 100, 20.0))

	pos, _ := book.Position("AAPL", "ACC_1", "alpha")
	assert.InDelta(t, 100.0, pos.Quantity, 1e-9)
	// Basis is unchanged by a partial close.
	assert.InDelta(t, 15.0, pos.AvgPrice, 1e-9)
	// (20 - 15) * 100
	assert.InDelta(t, 500.0, pos.RealizedPnL, 1e-9)
}

func TestFullCloseFlattensPosition(t *testing.T) {
	t.Parallel()

	book := NewLedger(zerolog.Nop())
	book.ApplyTrade(tradeFor(types.SideBuy, 100, 10.0))
	book.ApplyTrade(tradeFor(types.SideSell, 100, 8.0))

	pos, ok := book.Position("AAPL", "ACC_1", "alpha")
	require.True(t, ok)
	assert.Zero(t, pos.Quantity)
	assert.Zero(t, pos.AvgPrice)
	assert.InDelta(t, -200.0, pos.RealizedPnL, 1e-9)
}

func TestZeroCrossResetsBasis(t *testing.T) {
	t.Parallel()

	book := NewLedger(zerolog.Nop())
	book.ApplyTrade(tradeFor(types.SideBuy, 100, 10.0))

	// Sell 150: close 100 long at 12, open 50 short at 12.
	book.ApplyTrade(tradeFor(types.SideSell, 150, 12.0))

	pos, _ := book.Position("AAPL", "ACC_1", "alpha")
	assert.InDelta(t, -50.0, pos.Quantity, 1e-9)
	assert.InDelta(t, 12.0, pos.AvgPrice, 1e-9)
	// (12 - 10) * 100 realized on the closed long.
	assert.InDelta(t, 200.0, pos.RealizedPnL, 1e-9)
}

func TestShortPositionPnL(t *testing.T) {
	t.Parallel()

	book := NewLedger(zerolog.Nop())
	book.ApplyTrade(tradeFor(types.SideSell, 100, 20.0))

	pos, _ := book.Position("AAPL", "ACC_1", "alpha")
	assert.InDelta(t, -100.0, pos.Quantity, 1e-9)
	assert.InDelta(t, 20.0, pos.AvgPrice, 1e-9)

	// Buying back below the entry realizes a gain: (20 - 15) * 50.
	book.ApplyTrade(tradeFor(types.SideBuy, 50, 15.0))

	pos, _ = book.Position("AAPL", "ACC_1", "alpha")
	assert.InDelta(t, -50.0, pos.Quantity, 1e-9)
	assert.InDelta(t, 20.0, pos.AvgPrice, 1e-9)
	assert.InDelta(t, 250.0, pos.RealizedPnL, 1e-9)
}

func TestAddingToShortAveragesOnAbsoluteSize(t *testing.T) {
	t.Parallel()

	book := NewLedger(zerolog.Nop())
	book.ApplyTrade(tradeFor(types.SideSell, 100, 20.0))
	book.ApplyTrade(tradeFor(types.SideSell, 100, 30.0))

	pos, _ := book.Position("AAPL", "ACC_1", "alpha")
	assert.InDelta(t, -200.0, pos.Quantity, 1e-9)
	assert.InDelta(t, 25.0, pos.AvgPrice, 1e-9)
}

func TestPositionsAreKeyedPerAccountAndStrategy(t *testing.T) {
	t.Parallel()

	book := NewLedger(zerolog.Nop())

	first := tradeFor(types.SideBuy, 100, 10.0)
	book.ApplyTrade(first)

	second := first
	second.Account = "ACC_2"
	book.ApplyTrade(second)

	third := first
	third.StrategyID = "beta"
	book.ApplyTrade(third)

	assert.Len(t, book.Positions(""), 3)
	assert.Len(t, book.Positions("ACC_1"), 2)
	assert.Len(t, book.Positions("ACC_2"), 1)

	pos, ok := book.Position("AAPL", "ACC_1", "beta")
	require.True(t, ok)
	assert.InDelta(t, 100.0, pos.Quantity, 1e-9)

	_, ok = book.Position("AAPL", "ACC_3", "alpha")
	assert.False(t, ok)
}

func TestPositionsOrderIsDeterministic(t *testing.T) {
	t.Parallel()

	book := NewLedger(zerolog.Nop())
	for _, symbol := range []string{"MSFT", "AAPL", "GOOGL"} {
		trade := tradeFor(types.SideBuy, 10, 10.0)
		trade.Symbol = symbol
		book.ApplyTrade(trade)
	}

	first := book.Positions("")
	second := book.Positions("")
	require.Equal(t, first, second)
	assert.Equal(t, "AAPL", first[0].Symbol)
}

func TestMarkRefreshesUnrealized(t *testing.T) {
	t.Parallel()

	book := NewLedger(zerolog.Nop())
	book.ApplyTrade(tradeFor(types.SideBuy, 100, 10.0))

	// No mark recorded yet.
	pos, _ := book.Position("AAPL", "ACC_1", "alpha")
	assert.Zero(t, pos.UnrealizedPnL)
	_, ok := book.MarkPrice("AAPL")
	assert.False(t, ok)

	book.Mark("AAPL", 12.0)

	price, ok := book.MarkPrice("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 12.0, price, 1e-9)

	pos, _ = book.Position("AAPL", "ACC_1", "alpha")
	assert.InDelta(t, 200.0, pos.UnrealizedPnL, 1e-9)

	// New trades against a marked symbol refresh immediately.
	book.ApplyTrade(tradeFor(types.SideBuy, 100, 14.0))
	pos, _ = book.Position("AAPL", "ACC_1", "alpha")
	assert.InDelta(t, (12.0-12.0)*200, pos.UnrealizedPnL, 1e-9)
}

func TestSeedAndRemove(t *testing.T) {
	t.Parallel()

	book := NewLedger(zerolog.Nop())
	book.Seed(types.Position{
		Symbol: "AAPL", Account: "ACC_1", StrategyID: "alpha",
		Quantity: 400, AvgPrice: 10,
	})

	pos, ok := book.Position("AAPL", "ACC_1", "alpha")
	require.True(t, ok)
	assert.InDelta(t, 400.0, pos.Quantity, 1e-9)
	assert.False(t, pos.UpdatedAt.IsZero())

	// Seeding the same key overwrites.
	book.Seed(types.Position{
		Symbol: "AAPL", Account: "ACC_1", StrategyID: "alpha",
		Quantity: 50, AvgPrice: 12,
	})
	pos, _ = book.Position("AAPL", "ACC_1", "alpha")
	assert.InDelta(t, 50.0, pos.Quantity, 1e-9)

	assert.True(t, book.Remove("AAPL", "ACC_1", "alpha"))
	_, ok = book.Position("AAPL", "ACC_1", "alpha")
	assert.False(t, ok)

	assert.False(t, book.Remove("AAPL", "ACC_1", "alpha"))
}

func TestPositionReturnsCopy(t *testing.T) {
	t.Parallel()

	book := NewLedger(zerolog.Nop())
	book.ApplyTrade(tradeFor(types.SideBuy, 100, 10.0))

	pos, _ := book.Position("AAPL", "ACC_1", "alpha")
	pos.Quantity = 9999

	stored, _ := book.Position("AAPL", "ACC_1", "alpha")
	assert.InDelta(t, 100.0, stored.Quantity, 1e-9)
}
