package risk

import (
	"sync"

	"github.com/google/uuid"
	"github.com/ksred/trading-core/internal/types"
	"github.com/rs/zerolog"
)

// LedgerView is the read-only position snapshot the engine evaluates
// orders against. The position ledger implements it.
type LedgerView interface {
	Position(symbol, account, strategyID string) (types.Position, bool)
	Positions(account string) []types.Position
}

// OpenExposureView extends a LedgerView with the signed unfilled
// quantity of accepted orders for a key. Position-size checks against a
// view that implements it count exposure that has been accepted but not
// yet filled, closing the window where several open orders each pass
// against the same filled snapshot and jointly breach the cap. The
// lifecycle manager supplies such a view at submission time; a bare
// ledger does not carry it, so standalone checks gate on filled
// positions only.
type OpenExposureView interface {
	OpenExposure(symbol, account, strategyID string) float64
}

// Violation records one failed rule with its diagnostic message.
type Violation struct {
	RuleID  string `json:"rule_id"`
	Message string `json:"message"`
}

// Result is the outcome of a pre-trade check. It is produced fresh on
// every call and carries every failing rule (one, in fail-fast mode).
type Result struct {
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`
}

// Config is the value object the engine receives at construction,
// normally supplied by the configuration loader.
type Config struct {
	// FailFast stops evaluation at the first failing rule. When false the
	// engine collects every failure before returning.
	FailFast bool

	// DefaultMarkPrice is the fallback price for notional calculations
	// when an order has no limit price and no position exists yet.
	DefaultMarkPrice float64

	Rules []Rule
}

// Engine evaluates candidate orders against an ordered list of risk
// rules. Check is a pure query: it never mutates the ledger.
type Engine struct {
	mu               sync.RWMutex
	rules            []Rule
	failFast         bool
	defaultMarkPrice float64
	drawdowns        map[string]float64
	logger           zerolog.Logger
}

// NewEngine creates a risk engine with the given configuration.
func NewEngine(cfg Config, logger zerolog.Logger) *Engine {
	e := &Engine{
		failFast:         cfg.FailFast,
		defaultMarkPrice: cfg.DefaultMarkPrice,
		drawdowns:        make(map[string]float64),
		logger:           logger.With().Str("component", "risk_engine").Logger(),
	}
	for _, r := range cfg.Rules {
		e.AddRule(r)
	}
	return e
}

// AddRule appends a rule to the evaluation order and returns its ID,
// assigning one when the rule arrives without.
func (e *Engine) AddRule(r Rule) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r.ID == "" {
		r.ID = "RULE_" + uuid.New().String()
	}
	e.rules = append(e.rules, r)

	e.logger.Info().
		Str("rule_id", r.ID).
		Str("name", r.Name).
		Str("kind", string(r.Kind)).
		Bool("enabled", r.Enabled).
		Msg("risk rule added")

	return r.ID
}

// RemoveRule deletes a rule by ID. Returns false if the ID is unknown.
func (e *Engine) RemoveRule(ruleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, r := range e.rules {
		if r.ID == ruleID {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			e.logger.Info().Str("rule_id", ruleID).Str("name", r.Name).Msg("risk rule removed")
			return true
		}
	}

	e.logger.Warn().Str("rule_id", ruleID).Msg("cannot remove risk rule: not found")
	return false
}

// EnableRule toggles a rule by ID. Returns false if the ID is unknown.
func (e *Engine) EnableRule(ruleID string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.rules {
		if e.rules[i].ID == ruleID {
			e.rules[i].Enabled = enabled
			e.logger.Info().Str("rule_id", ruleID).Bool("enabled", enabled).Msg("risk rule toggled")
			return true
		}
	}

	e.logger.Warn().Str("rule_id", ruleID).Msg("cannot toggle risk rule: not found")
	return false
}

// Rules returns a copy of the rule list in evaluation order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// FailFast reports the configured evaluation policy.
func (e *Engine) FailFast() bool {
	return e.failFast
}

// SetDrawdown records the externally computed drawdown metric for an
// account, as a fraction. MAX_DRAWDOWN rules read it on the next check.
func (e *Engine) SetDrawdown(account string, drawdown float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drawdowns[account] = drawdown
}

// Check evaluates the order against every enabled rule in registration
// order. In fail-fast mode it stops at the first violation; otherwise it
// collects all of them. The ledger snapshot is never mutated.
func (e *Engine) Check(order types.Order, view LedgerView) Result {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := Result{Passed: true}

	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}

		passed, message := e.evaluate(rule, order, view)
		if passed {
			continue
		}

		result.Passed = false
		result.Violations = append(result.Violations, Violation{
			RuleID:  rule.ID,
			Message: message,
		})

		e.logger.Warn().
			Str("rule_id", rule.ID).
			Str("rule_name", rule.Name).
			Str("order_symbol", order.Symbol).
			Str("account", order.Account).
			Str("message", message).
			Msg("order failed risk check")

		if e.failFast {
			break
		}
	}

	return result
}

// TotalExposure sums the absolute notional across an account's positions.
func TotalExposure(view LedgerView, account string) float64 {
	var total float64
	for _, p := range view.Positions(account) {
		total += p.Notional()
	}
	return total
}
