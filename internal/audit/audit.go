package audit

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/trading-core/internal/orders"
	"github.com/ksred/trading-core/internal/risk"
	"github.com/ksred/trading-core/internal/types"
	"github.com/ksred/trading-core/pkg/response"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Service persists every order update and trade flowing through the
// lifecycle manager. Orders are never deleted from the core; this is
// the queryable archival record of how each one got to its state.
type Service struct {
	db     *Database
	logger zerolog.Logger
}

// NewService creates an audit service on the given database connection
func NewService(gormDB *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Attach registers the service on the manager's notification fan-out.
// Persistence failures are logged, never propagated: the audit trail
// must not break the order path.
func (s *Service) Attach(manager *orders.Manager) {
	manager.OnOrderUpdate(func(order types.Order) {
		event := &OrderEvent{
			OrderID:        order.OrderID,
			ClientID:       order.ClientID,
			Symbol:         order.Symbol,
			Side:           string(order.Side),
			OrderType:      string(order.Type),
			Status:         string(order.Status),
			Quantity:       order.Quantity,
			Price:          order.Price,
			FilledQuantity: order.FilledQuantity,
			AvgFillPrice:   order.AvgFillPrice,
			Account:        order.Account,
			StrategyID:     order.StrategyID,
			EventTime:      order.UpdatedAt,
		}
		if err := s.db.CreateOrderEvent(event); err != nil {
			s.logger.Error().Err(err).Str("order_id", order.OrderID).Msg("failed to persist order event")
		}
	})

	manager.OnTrade(func(trade types.Trade) {
		record := &TradeRecord{
			TradeID:    trade.TradeID,
			OrderID:    trade.OrderID,
			Symbol:     trade.Symbol,
			Side:       string(trade.Side),
			Quantity:   trade.Quantity,
			Price:      trade.Price,
			Account:    trade.Account,
			StrategyID: trade.StrategyID,
			ExecutedAt: trade.Timestamp,
		}
		if err := s.db.CreateTradeRecord(record); err != nil {
			s.logger.Error().Err(err).Str("trade_id", trade.TradeID).Msg("failed to persist trade record")
		}
	})
}

// RecordRules persists a snapshot of the rule set in force. Called at
// startup once the engine is constructed; failures are logged only.
func (s *Service) RecordRules(rules []risk.Rule) {
	now := time.Now()
	for _, rule := range rules {
		params, err := json.Marshal(rule.Params)
		if err != nil {
			s.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("failed to encode rule parameters")
			continue
		}

		snapshot := &RuleSnapshot{
			RuleID:   rule.ID,
			Name:     rule.Name,
			Kind:     string(rule.Kind),
			Params:   string(params),
			Enabled:  rule.Enabled,
			LoadedAt: now,
		}
		if err := s.db.CreateRuleSnapshot(snapshot); err != nil {
			s.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("failed to persist rule snapshot")
		}
	}
}

// GinHandlers contains HTTP handlers for audit endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for audit endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// OrderHistoryHandler handles GET requests for an order's recorded
// lifecycle
// URL parameter: order_id
func (h *GinHandlers) OrderHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")

		events, err := h.service.db.OrderEvents(orderID, intQuery(c, "limit", 100), intQuery(c, "offset", 0))
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if len(events) == 0 {
			response.NotFound(c, "No events recorded for order")
			return
		}
		response.Success(c, events)
	}
}

// TradesHandler handles GET requests for recorded trades with optional
// symbol and account filters
func (h *GinHandlers) TradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trades, err := h.service.db.Trades(
			c.Query("symbol"),
			c.Query("account"),
			intQuery(c, "limit", 100),
			intQuery(c, "offset", 0),
		)
		response.Handle(c, trades, err)
	}
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
