package risk

import (
	"fmt"
	"math"

	"github.com/ksred/trading-core/internal/types"
)

// RuleKind identifies the check a rule performs.
type RuleKind string

const (
	MaxOrderSize     RuleKind = "MAX_ORDER_SIZE"
	MaxPositionSize  RuleKind = "MAX_POSITION_SIZE"
	MaxConcentration RuleKind = "MAX_CONCENTRATION"
	MaxDrawdown      RuleKind = "MAX_DRAWDOWN"
	Custom           RuleKind = "CUSTOM"
)

func (k RuleKind) Valid() bool {
	switch k {
	case MaxOrderSize, MaxPositionSize, MaxConcentration, MaxDrawdown, Custom:
		return true
	}
	return false
}

// requiredParam maps each rule kind to the parameter it needs to be
// applicable. CUSTOM rules carry no parameters.
var requiredParam = map[RuleKind]string{
	MaxOrderSize:     "max_size",
	MaxPositionSize:  "max_size",
	MaxConcentration: "max_concentration",
	MaxDrawdown:      "max_drawdown",
}

// RequiredParam returns the parameter key a rule kind depends on, if any.
func RequiredParam(kind RuleKind) (string, bool) {
	p, ok := requiredParam[kind]
	return p, ok
}

// Predicate is the check injected into a CUSTOM rule. It returns whether
// the order passes and, on failure, a human-readable message.
type Predicate func(order types.Order, view LedgerView) (bool, string)

// Rule is one entry in the engine's ordered rule list.
//
// A rule whose required parameter is missing passes rather than failing:
// this is a deliberate permissive default carried over from the original
// configuration format, and a known hazard when a parameter key is
// mistyped. The config loader warns about it at startup.
type Rule struct {
	ID      string             `json:"rule_id"`
	Name    string             `json:"name"`
	Kind    RuleKind           `json:"kind"`
	Params  map[string]float64 `json:"params,omitempty"`
	Enabled bool               `json:"enabled"`

	// Check is consulted only for CUSTOM rules. A nil check always passes.
	Check Predicate `json:"-"`
}

func (r *Rule) param(key string) (float64, bool) {
	v, ok := r.Params[key]
	return v, ok
}

// evaluate runs a single rule against the order and ledger snapshot.
// It returns pass/fail and a failure message.
func (e *Engine) evaluate(r Rule, order types.Order, view LedgerView) (bool, string) {
	switch r.Kind {
	case MaxOrderSize:
		return e.checkMaxOrderSize(r, order)
	case MaxPositionSize:
		return e.checkMaxPositionSize(r, order, view)
	case MaxConcentration:
		return e.checkMaxConcentration(r, order, view)
	case MaxDrawdown:
		return e.checkMaxDrawdown(r, order)
	case Custom:
		if r.Check == nil {
			return true, ""
		}
		return r.Check(order, view)
	default:
		e.logger.Warn().Str("rule_id", r.ID).Str("kind", string(r.Kind)).Msg("unknown risk rule kind, treating as pass")
		return true, ""
	}
}

func (e *Engine) checkMaxOrderSize(r Rule, order types.Order) (bool, string) {
	maxSize, ok := r.param("max_size")
	if !ok {
		return true, ""
	}

	if order.Quantity > maxSize {
		return false, fmt.Sprintf("order quantity %g exceeds maximum allowed %g", order.Quantity, maxSize)
	}
	return true, ""
}

func (e *Engine) checkMaxPositionSize(r Rule, order types.Order, view LedgerView) (bool, string) {
	maxSize, ok := r.param("max_size")
	if !ok {
		return true, ""
	}

	var current float64
	if pos, found := view.Position(order.Symbol, order.Account, order.StrategyID); found {
		current = pos.Quantity
	}
	// Accepted-but-unfilled orders are exposure too: without them, N
	// open orders each pass against the same filled snapshot.
	if open, ok := view.(OpenExposureView); ok {
		current += open.OpenExposure(order.Symbol, order.Account, order.StrategyID)
	}

	resulting := current
	if order.Side == types.SideBuy {
		resulting += order.Quantity
	} else {
		resulting -= order.Quantity
	}

	if math.Abs(resulting) > maxSize {
		return false, fmt.Sprintf("resulting position size %g would exceed maximum allowed %g", math.Abs(resulting), maxSize)
	}
	return true, ""
}

// checkMaxConcentration compares the symbol's share of the account's total
// absolute notional after the order against the configured fraction.
// Effective price resolution: the order's limit price if present, else the
// position's average price, else the engine's configured default.
func (e *Engine) checkMaxConcentration(r Rule, order types.Order, view LedgerView) (bool, string) {
	maxConcentration, ok := r.param("max_concentration")
	if !ok {
		return true, ""
	}

	pos, havePos := view.Position(order.Symbol, order.Account, order.StrategyID)

	effectivePrice := order.Price
	if effectivePrice <= 0 {
		if havePos && pos.Quantity != 0 {
			effectivePrice = pos.AvgPrice
		} else {
			effectivePrice = e.defaultMarkPrice
		}
	}
	if effectivePrice <= 0 {
		// No price reference available, cannot compute notional.
		return true, ""
	}

	orderNotional := order.Quantity * effectivePrice

	var symbolValue, totalNotional float64
	for _, p := range view.Positions(order.Account) {
		totalNotional += p.Notional()
		if p.Symbol == order.Symbol {
			symbolValue += p.Quantity * p.AvgPrice
		}
	}

	if order.Side == types.SideBuy {
		symbolValue += orderNotional
		totalNotional += orderNotional
	} else {
		// Sells reduce exposure and do not add to the account total.
		symbolValue -= orderNotional
	}

	if totalNotional > 0 {
		share := math.Abs(symbolValue) / totalNotional
		if share > maxConcentration {
			return false, fmt.Sprintf("resulting concentration %.4f for %s would exceed maximum allowed %.4f",
				share, order.Symbol, maxConcentration)
		}
	}
	return true, ""
}

// checkMaxDrawdown reads the externally supplied drawdown metric for the
// order's account. The engine does not compute P&L history itself.
func (e *Engine) checkMaxDrawdown(r Rule, order types.Order) (bool, string) {
	maxDrawdown, ok := r.param("max_drawdown")
	if !ok {
		return true, ""
	}

	drawdown := e.drawdowns[order.Account]
	if drawdown > maxDrawdown {
		return false, fmt.Sprintf("current drawdown %.4f exceeds maximum allowed %.4f", drawdown, maxDrawdown)
	}
	return true, ""
}
