package risk

import (
	"testing"

	"github.com/ksred/trading-core/internal/ledger"
	"github.com/ksred/trading-core/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, failFast bool, rules ...Rule) *Engine {
	t.Helper()
	return NewEngine(Config{
		FailFast:         failFast,
		DefaultMarkPrice: 100.0,
		Rules:            rules,
	}, zerolog.Nop())
}

func seededLedger(t *testing.T, positions ...types.Position) *ledger.Ledger {
	t.Helper()
	book := ledger.NewLedger(zerolog.Nop())
	for _, p := range positions {
		book.Seed(p)
	}
	return book
}

func candidateOrder(side types.OrderSide, quantity, price float64) types.Order {
	return types.Order{
		Symbol:     "AAPL",
		Side:       side,
		Type:       types.TypeLimit,
		Quantity:   quantity,
		Price:      price,
		Account:    "ACC_1",
		StrategyID: "alpha",
	}
}

func TestMaxOrderSizeRule(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, false, Rule{
		ID:      "size-cap",
		Kind:    MaxOrderSize,
		Params:  map[string]float64{"max_size": 100},
		Enabled: true,
	})
	book := seededLedger(t)

	assert.True(t, engine.Check(candidateOrder(types.SideBuy, 100, 10), book).Passed)

	result := engine.Check(candidateOrder(types.SideBuy, 150, 10), book)
	require.False(t, result.Passed)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, "size-cap", result.Violations[0].RuleID)
	assert.Contains(t, result.Violations[0].Message, "150")
}

func TestMaxPositionSizeRule(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, false, Rule{
		ID:      "pos-cap",
		Kind:    MaxPositionSize,
		Params:  map[string]float64{"max_size": 500},
		Enabled: true,
	})
	book := seededLedger(t, types.Position{
		Symbol: "AAPL", Account: "ACC_1", StrategyID: "alpha",
		Quantity: 400, AvgPrice: 10,
	})

	tests := []struct {
		name     string
		side     types.OrderSide
		quantity float64
		passed   bool
	}{
		{"buy within cap", types.SideBuy, 100, true},
		{"buy breaching cap", types.SideBuy, 200, false},
		{"sell reducing exposure", types.SideSell, 300, true},
		{"sell reversing past cap", types.SideSell, 1000, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := engine.Check(candidateOrder(tt.side, tt.quantity, 10), book)
			assert.Equal(t, tt.passed, result.Passed)
		})
	}
}

// exposureView wraps a ledger with a fixed open-order exposure per key,
// standing in for the view the lifecycle manager supplies.
type exposureView struct {
	*ledger.Ledger
	open map[string]float64
}

func (v exposureView) OpenExposure(symbol, account, strategyID string) float64 {
	return v.open[symbol+"|"+account+"|"+strategyID]
}

func TestMaxPositionSizeCountsOpenExposure(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, false, Rule{
		Kind:    MaxPositionSize,
		Params:  map[string]float64{"max_size": 500},
		Enabled: true,
	})
	view := exposureView{
		Ledger: seededLedger(t, types.Position{
			Symbol: "AAPL", Account: "ACC_1", StrategyID: "alpha",
			Quantity: 200, AvgPrice: 10,
		}),
		open: map[string]float64{"AAPL|ACC_1|alpha": 200},
	}

	// Filled 200 plus open 200: BUY 100 reaches exactly 500, BUY 101
	// breaches.
	assert.True(t, engine.Check(candidateOrder(types.SideBuy, 100, 10), view).Passed)
	assert.False(t, engine.Check(candidateOrder(types.SideBuy, 101, 10), view).Passed)

	// Open sell exposure nets against the filled position.
	view.open["AAPL|ACC_1|alpha"] = -200
	assert.True(t, engine.Check(candidateOrder(types.SideBuy, 500, 10), view).Passed)
	assert.False(t, engine.Check(candidateOrder(types.SideBuy, 501, 10), view).Passed)
}

func TestMaxPositionSizeWithNoExistingPosition(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, false, Rule{
		Kind:    MaxPositionSize,
		Params:  map[string]float64{"max_size": 500},
		Enabled: true,
	})
	book := seededLedger(t)

	assert.True(t, engine.Check(candidateOrder(types.SideSell, 500, 10), book).Passed)
	assert.False(t, engine.Check(candidateOrder(types.SideSell, 501, 10), book).Passed)
}

func TestMaxConcentrationRule(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, false, Rule{
		ID:      "conc-cap",
		Kind:    MaxConcentration,
		Params:  map[string]float64{"max_concentration": 0.5},
		Enabled: true,
	})
	book := seededLedger(t,
		types.Position{Symbol: "AAPL", Account: "ACC_1", StrategyID: "alpha", Quantity: 100, AvgPrice: 10},
		types.Position{Symbol: "MSFT", Account: "ACC_1", StrategyID: "alpha", Quantity: 100, AvgPrice: 30},
	)

	// AAPL is 1000 of 4000 total. Buying 1000 more makes it 2000 of
	// 5000, still at 40%.
	assert.True(t, engine.Check(candidateOrder(types.SideBuy, 100, 10), book).Passed)

	// Buying 3000 more makes AAPL 4000 of 7000, over the 50% cap.
	result := engine.Check(candidateOrder(types.SideBuy, 300, 10), book)
	require.False(t, result.Passed)
	assert.Contains(t, result.Violations[0].Message, "AAPL")

	// Sells reduce the symbol's exposure and never add concentration.
	assert.True(t, engine.Check(candidateOrder(types.SideSell, 100, 10), book).Passed)
}

func TestMaxConcentrationUsesDefaultMarkPrice(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, false, Rule{
		Kind:    MaxConcentration,
		Params:  map[string]float64{"max_concentration": 0.5},
		Enabled: true,
	})
	book := seededLedger(t,
		types.Position{Symbol: "MSFT", Account: "ACC_1", StrategyID: "alpha", Quantity: 10, AvgPrice: 30},
	)

	// Market order with no limit price and no existing AAPL position:
	// notional falls back to the configured default of 100. 5*100 = 500
	// against 300 of MSFT is 62.5% of the resulting total.
	order := candidateOrder(types.SideBuy, 5, 0)
	order.Type = types.TypeMarket
	assert.False(t, engine.Check(order, book).Passed)
}

func TestMaxDrawdownRule(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, false, Rule{
		ID:      "dd-cap",
		Kind:    MaxDrawdown,
		Params:  map[string]float64{"max_drawdown": 0.10},
		Enabled: true,
	})
	book := seededLedger(t)
	order := candidateOrder(types.SideBuy, 10, 10)

	// No drawdown recorded yet.
	assert.True(t, engine.Check(order, book).Passed)

	engine.SetDrawdown("ACC_1", 0.08)
	assert.True(t, engine.Check(order, book).Passed)

	engine.SetDrawdown("ACC_1", 0.15)
	result := engine.Check(order, book)
	require.False(t, result.Passed)
	assert.Contains(t, result.Violations[0].Message, "drawdown")

	// Other accounts are unaffected.
	other := order
	other.Account = "ACC_2"
	assert.True(t, engine.Check(other, book).Passed)
}

func TestCustomRule(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, false, Rule{
		ID:      "no-shorts",
		Kind:    Custom,
		Enabled: true,
		Check: func(order types.Order, view LedgerView) (bool, string) {
			if order.Side == types.SideSell {
				pos, ok := view.Position(order.Symbol, order.Account, order.StrategyID)
				if !ok || pos.Quantity < order.Quantity {
					return false, "short selling is not permitted"
				}
			}
			return true, ""
		},
	})
	book := seededLedger(t, types.Position{
		Symbol: "AAPL", Account: "ACC_1", StrategyID: "alpha",
		Quantity: 50, AvgPrice: 10,
	})

	assert.True(t, engine.Check(candidateOrder(types.SideBuy, 100, 10), book).Passed)
	assert.True(t, engine.Check(candidateOrder(types.SideSell, 50, 10), book).Passed)

	result := engine.Check(candidateOrder(types.SideSell, 100, 10), book)
	require.False(t, result.Passed)
	assert.Equal(t, "short selling is not permitted", result.Violations[0].Message)
}

func TestCustomRuleWithNilPredicatePasses(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, false, Rule{Kind: Custom, Enabled: true})
	assert.True(t, engine.Check(candidateOrder(types.SideBuy, 10, 10), seededLedger(t)).Passed)
}

func TestMissingRequiredParameterPasses(t *testing.T) {
	t.Parallel()

	// A mistyped parameter key silently disables the rule. The config
	// loader warns about this at startup; the engine itself lets the
	// order through.
	engine := newTestEngine(t, false, Rule{
		Kind:    MaxOrderSize,
		Params:  map[string]float64{"max_sze": 100},
		Enabled: true,
	})
	assert.True(t, engine.Check(candidateOrder(types.SideBuy, 1e9, 10), seededLedger(t)).Passed)
}

func TestDisabledRuleIsSkipped(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, false, Rule{
		Kind:    MaxOrderSize,
		Params:  map[string]float64{"max_size": 100},
		Enabled: false,
	})
	assert.True(t, engine.Check(candidateOrder(types.SideBuy, 500, 10), seededLedger(t)).Passed)
}

func failingRules() []Rule {
	return []Rule{
		{ID: "r1", Kind: MaxOrderSize, Params: map[string]float64{"max_size": 1}, Enabled: true},
		{ID: "r2", Kind: MaxPositionSize, Params: map[string]float64{"max_size": 1}, Enabled: true},
		{ID: "r3", Kind: Custom, Enabled: true, Check: func(types.Order, LedgerView) (bool, string) {
			return false, "always fails"
		}},
	}
}

func TestFailFastStopsAtFirstViolation(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, true, failingRules()...)
	result := engine.Check(candidateOrder(types.SideBuy, 100, 10), seededLedger(t))

	require.False(t, result.Passed)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, "r1", result.Violations[0].RuleID)
}

func TestEvaluateAllCollectsEveryViolation(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, false, failingRules()...)
	result := engine.Check(candidateOrder(types.SideBuy, 100, 10), seededLedger(t))

	require.False(t, result.Passed)
	require.Len(t, result.Violations, 3)
	assert.Equal(t, "r1", result.Violations[0].RuleID)
	assert.Equal(t, "r2", result.Violations[1].RuleID)
	assert.Equal(t, "r3", result.Violations[2].RuleID)
}

func TestCheckDoesNotMutateLedger(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, false, failingRules()...)
	book := seededLedger(t, types.Position{
		Symbol: "AAPL", Account: "ACC_1", StrategyID: "alpha",
		Quantity: 400, AvgPrice: 10,
	})

	before, _ := book.Position("AAPL", "ACC_1", "alpha")
	engine.Check(candidateOrder(types.SideBuy, 100, 10), book)
	after, _ := book.Position("AAPL", "ACC_1", "alpha")

	assert.Equal(t, before, after)
	assert.Len(t, book.Positions(""), 1)
}

func TestRuleManagement(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, false)
	book := seededLedger(t)
	order := candidateOrder(types.SideBuy, 500, 10)

	// No rules: everything passes.
	assert.True(t, engine.Check(order, book).Passed)

	ruleID := engine.AddRule(Rule{
		Name:    "order size cap",
		Kind:    MaxOrderSize,
		Params:  map[string]float64{"max_size": 100},
		Enabled: true,
	})
	assert.Contains(t, ruleID, "RULE_")
	assert.False(t, engine.Check(order, book).Passed)

	require.True(t, engine.EnableRule(ruleID, false))
	assert.True(t, engine.Check(order, book).Passed)

	require.True(t, engine.EnableRule(ruleID, true))
	assert.False(t, engine.Check(order, book).Passed)

	require.True(t, engine.RemoveRule(ruleID))
	assert.True(t, engine.Check(order, book).Passed)

	assert.False(t, engine.RemoveRule(ruleID))
	assert.False(t, engine.EnableRule("RULE_unknown", true))
}

func TestRulesReturnsCopyInOrder(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, false)
	engine.AddRule(Rule{ID: "a", Kind: MaxOrderSize, Enabled: true})
	engine.AddRule(Rule{ID: "b", Kind: MaxDrawdown, Enabled: true})

	rules := engine.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "a", rules[0].ID)
	assert.Equal(t, "b", rules[1].ID)

	// Mutating the copy does not affect the engine.
	rules[0].Enabled = false
	assert.True(t, engine.Rules()[0].Enabled)
}

func TestTotalExposure(t *testing.T) {
	t.Parallel()

	book := seededLedger(t,
		types.Position{Symbol: "AAPL", Account: "ACC_1", StrategyID: "alpha", Quantity: 100, AvgPrice: 10},
		types.Position{Symbol: "MSFT", Account: "ACC_1", StrategyID: "alpha", Quantity: -50, AvgPrice: 20},
		types.Position{Symbol: "AAPL", Account: "ACC_2", StrategyID: "alpha", Quantity: 10, AvgPrice: 10},
	)

	// Shorts count at absolute value: 1000 + 1000.
	assert.InDelta(t, 2000.0, TotalExposure(book, "ACC_1"), 1e-9)
	assert.InDelta(t, 100.0, TotalExposure(book, "ACC_2"), 1e-9)
	assert.InDelta(t, 2100.0, TotalExposure(book, ""), 1e-9)
}
