package ledger

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ksred/trading-core/internal/types"
	"github.com/rs/zerolog"
)

// Ledger is the keyed store of net positions per (symbol, account,
// strategy). It is mutated by trade application from the lifecycle
// manager and by administrative seeding, and read by the risk engine.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*types.Position
	marks     map[string]float64
	logger    zerolog.Logger
}

// NewLedger creates an empty position ledger.
func NewLedger(logger zerolog.Logger) *Ledger {
	return &Ledger{
		positions: make(map[string]*types.Position),
		marks:     make(map[string]float64),
		logger:    logger.With().Str("component", "ledger").Logger(),
	}
}

func positionKey(symbol, account, strategyID string) string {
	return symbol + "|" + account + "|" + strategyID
}

// ApplyTrade updates the position keyed by the trade's symbol, account
// and strategy. Quantity moves with the trade side, average entry price
// follows the volume-weighted formula, reductions realize P&L against
// the entry basis, and a position crossing through zero resets its
// average-price basis to the crossing trade's price.
func (l *Ledger) ApplyTrade(trade types.Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := positionKey(trade.Symbol, trade.Account, trade.StrategyID)
	pos, exists := l.positions[key]
	if !exists {
		pos = &types.Position{
			Symbol:     trade.Symbol,
			Account:    trade.Account,
			StrategyID: trade.StrategyID,
		}
		l.positions[key] = pos
	}

	delta := trade.Quantity
	if trade.Side == types.SideSell {
		delta = -delta
	}

	current := pos.Quantity
	resulting := current + delta

	switch {
	case current == 0 || sameSign(current, delta):
		// Opening or adding: volume-weighted average on absolute size.
		pos.AvgPrice = (pos.AvgPrice*math.Abs(current) + trade.Price*math.Abs(delta)) / math.Abs(resulting)
		pos.Quantity = resulting

	default:
		// Reducing, flattening or reversing: realize P&L on the closed
		// portion against the current basis.
		closed := math.Min(math.Abs(delta), math.Abs(current))
		if current > 0 {
			pos.RealizedPnL += (trade.Price - pos.AvgPrice) * closed
		} else {
			pos.RealizedPnL += (pos.AvgPrice - trade.Price) * closed
		}

		switch {
		case math.Abs(resulting) < types.QuantityEpsilon:
			pos.Quantity = 0
			pos.AvgPrice = 0
		case sameSign(resulting, current):
			// Partial close keeps the entry basis.
			pos.Quantity = resulting
		default:
			// Crossed through zero: the remainder opens a fresh position.
			pos.Quantity = resulting
			pos.AvgPrice = trade.Price
		}
	}

	l.refreshUnrealized(pos)

	pos.UpdatedAt = trade.Timestamp
	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = time.Now()
	}

	l.logger.Debug().
		Str("symbol", pos.Symbol).
		Str("account", pos.Account).
		Str("strategy_id", pos.StrategyID).
		Float64("quantity", pos.Quantity).
		Float64("avg_price", pos.AvgPrice).
		Float64("realized_pnl", pos.RealizedPnL).
		Msg("position updated from trade")
}

// Position returns a copy of the position for the key, if present.
func (l *Ledger) Position(symbol, account, strategyID string) (types.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[positionKey(symbol, account, strategyID)]
	if !ok {
		return types.Position{}, false
	}
	return *pos, true
}

// Positions returns copies of every position, or only those for the
// given account when it is non-empty. Output order is deterministic.
func (l *Ledger) Positions(account string) []types.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := make([]string, 0, len(l.positions))
	for key, pos := range l.positions {
		if account != "" && pos.Account != account {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]types.Position, 0, len(keys))
	for _, key := range keys {
		out = append(out, *l.positions[key])
	}
	return out
}

// Seed overwrites the position for the key, creating it if needed. Used
// by reconciliation feeds and administrative tooling.
func (l *Ledger) Seed(position types.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if position.UpdatedAt.IsZero() {
		position.UpdatedAt = time.Now()
	}

	key := positionKey(position.Symbol, position.Account, position.StrategyID)
	pos := position
	l.refreshUnrealized(&pos)
	l.positions[key] = &pos

	l.logger.Info().
		Str("symbol", position.Symbol).
		Str("account", position.Account).
		Str("strategy_id", position.StrategyID).
		Float64("quantity", position.Quantity).
		Float64("avg_price", position.AvgPrice).
		Msg("position seeded")
}

// Remove deletes a position. Positions are never removed implicitly;
// this is the explicit administrative operation.
func (l *Ledger) Remove(symbol, account, strategyID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := positionKey(symbol, account, strategyID)
	if _, ok := l.positions[key]; !ok {
		l.logger.Warn().
			Str("symbol", symbol).
			Str("account", account).
			Str("strategy_id", strategyID).
			Msg("cannot remove position: not found")
		return false
	}

	delete(l.positions, key)
	l.logger.Info().
		Str("symbol", symbol).
		Str("account", account).
		Str("strategy_id", strategyID).
		Msg("position removed")
	return true
}

// Mark records the latest mark price for a symbol and refreshes the
// unrealized P&L of every position holding it. The mark is used for
// presentation only, never for risk gating.
func (l *Ledger) Mark(symbol string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.marks[symbol] = price
	for _, pos := range l.positions {
		if pos.Symbol == symbol {
			l.refreshUnrealized(pos)
		}
	}
}

// MarkPrice returns the last recorded mark for a symbol, if any.
func (l *Ledger) MarkPrice(symbol string) (float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	price, ok := l.marks[symbol]
	return price, ok
}

// refreshUnrealized recomputes unrealized P&L when a mark is known.
// With no mark the value goes stale, which callers must tolerate.
// Caller holds the lock.
func (l *Ledger) refreshUnrealized(pos *types.Position) {
	mark, ok := l.marks[pos.Symbol]
	if !ok {
		return
	}
	pos.UnrealizedPnL = (mark - pos.AvgPrice) * pos.Quantity
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
