// Package venue contains execution venue adapters. The real system
// receives fills from an exchange connection; the Simulator below is an
// explicitly-named stand-in behind the same fill-producing path, used
// for demos and integration testing. It is never part of the core.
package venue

import (
	"context"
	"math/rand"
	"time"

	"github.com/ksred/trading-core/internal/orders"
	"github.com/ksred/trading-core/internal/types"
	"github.com/rs/zerolog"
)

// Simulator drives open orders through the lifecycle the way a venue
// would: PENDING orders are acknowledged as SUBMITTED, then filled in
// one or more slices with bounded slippage around the reference price.
type Simulator struct {
	manager   *orders.Manager
	interval  time.Duration
	rng       *rand.Rand
	basePrice float64
	logger    zerolog.Logger
}

// Options configures the simulator.
type Options struct {
	// Interval between processing cycles.
	Interval time.Duration

	// Seed makes fill sequences reproducible. Zero seeds from the clock.
	Seed int64

	// BasePrice is the reference price for market orders without a limit.
	BasePrice float64
}

// NewSimulator creates a simulator driving the given manager.
func NewSimulator(manager *orders.Manager, opts Options, logger zerolog.Logger) *Simulator {
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.BasePrice <= 0 {
		opts.BasePrice = 100.0
	}

	return &Simulator{
		manager:   manager,
		interval:  opts.Interval,
		rng:       rand.New(rand.NewSource(opts.Seed)),
		basePrice: opts.BasePrice,
		logger:    logger.With().Str("component", "venue_simulator").Logger(),
	}
}

// Start runs processing cycles until the context is canceled.
func (s *Simulator) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("starting venue simulator")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("shutting down venue simulator")
			return
		case <-ticker.C:
			s.Cycle()
		}
	}
}

// Cycle performs one pass: acknowledge pending orders, then fill a
// random subset of submitted and partially filled ones.
func (s *Simulator) Cycle() {
	for _, order := range s.manager.Query(orders.OrderFilter{Status: types.StatusPending}) {
		if err := s.manager.MarkSubmitted(order.OrderID); err != nil {
			// Lost a race with a cancel; nothing to do.
			s.logger.Debug().Err(err).Str("order_id", order.OrderID).Msg("skipping acknowledgement")
		}
	}

	for _, order := range s.manager.OpenOrders("") {
		if order.Status != types.StatusSubmitted && order.Status != types.StatusPartialFilled {
			continue
		}
		// 30% chance of execution activity per cycle.
		if s.rng.Float64() >= 0.3 {
			continue
		}
		s.fill(order)
	}
}

func (s *Simulator) fill(order types.Order) {
	remaining := order.Remaining()
	if remaining <= 0 {
		return
	}

	// 70% chance of filling the full remainder, otherwise a partial slice.
	quantity := remaining
	if s.rng.Float64() >= 0.7 {
		quantity = remaining * (0.1 + 0.8*s.rng.Float64())
	}
	if quantity <= 0 {
		return
	}

	price := s.fillPrice(order)

	trade, err := s.manager.ApplyFill(types.Fill{
		OrderID:   order.OrderID,
		Quantity:  quantity,
		Price:     price,
		Timestamp: time.Now(),
	})
	if err != nil {
		// Terminal races and rounding overshoot are expected; log and move on.
		s.logger.Warn().Err(err).Str("order_id", order.OrderID).Msg("simulated fill rejected")
		return
	}

	s.logger.Debug().
		Str("order_id", order.OrderID).
		Str("trade_id", trade.TradeID).
		Float64("quantity", quantity).
		Float64("price", price).
		Msg("simulated fill applied")
}

// fillPrice derives an execution price with up to ±0.5% slippage,
// respecting limit prices: a buy never fills above its limit, a sell
// never below.
func (s *Simulator) fillPrice(order types.Order) float64 {
	reference := order.Price
	if reference <= 0 {
		reference = s.basePrice
	}

	slippage := (s.rng.Float64() - 0.5) / 100.0
	price := reference * (1.0 + slippage)

	if order.Type == types.TypeLimit && order.Price > 0 {
		if order.Side == types.SideBuy && price > order.Price {
			price = order.Price
		}
		if order.Side == types.SideSell && price < order.Price {
			price = order.Price
		}
	}
	return price
}
