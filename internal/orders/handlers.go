package orders

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ksred/trading-core/internal/auth"
	"github.com/ksred/trading-core/internal/types"
	"github.com/ksred/trading-core/pkg/response"
)

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	manager *Manager
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints
func NewGinHandlers(manager *Manager) *GinHandlers {
	return &GinHandlers{
		manager: manager,
	}
}

// CreateOrderHandler handles POST requests to submit new orders
// Requires a valid JWT token; the client ID is taken from the claims.
// Request body should contain the order details
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request types.Order
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if claims, exists := c.Get("claims"); exists {
			if clientID := auth.GetClientID(claims); clientID != "" {
				request.ClientID = clientID
			}
		}

		order, err := h.manager.Submit(request)
		if err != nil {
			var rejected *RiskRejectedError
			switch {
			case errors.As(err, &rejected):
				response.RiskRejected(c, gin.H{
					"order":  order,
					"result": rejected.Result,
				})
			case types.IsValidation(err):
				response.BadRequest(c, err.Error())
			default:
				response.InternalError(c, err.Error())
			}
			return
		}

		response.Success(c, order)
	}
}

// GetOrderHandler handles GET requests to retrieve an order
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "Order ID is required")
			return
		}

		order, ok := h.manager.Get(orderID)
		if !ok {
			response.NotFound(c, "Order not found")
			return
		}
		response.Success(c, order)
	}
}

// ListOrdersHandler handles GET requests to query orders with optional
// filters: symbol, status, side, order_type, account, strategy_id, plus
// limit/offset pagination.
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := OrderFilter{
			Symbol:     c.Query("symbol"),
			Status:     types.OrderStatus(c.Query("status")),
			Side:       types.OrderSide(c.Query("side")),
			Type:       types.OrderType(c.Query("order_type")),
			Account:    c.Query("account"),
			StrategyID: c.Query("strategy_id"),
		}
		filter.Limit = intQuery(c, "limit", 100)
		filter.Offset = intQuery(c, "offset", 0)

		response.Success(c, h.manager.Query(filter))
	}
}

// CancelOrderHandler handles DELETE requests to cancel an order
// URL parameter: order_id
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")

		canceled := h.manager.Cancel(orderID)
		if !canceled {
			if _, ok := h.manager.Get(orderID); !ok {
				response.NotFound(c, "Order not found")
				return
			}
		}
		response.Success(c, gin.H{"order_id": orderID, "canceled": canceled})
	}
}

// CancelAllHandler handles POST requests to cancel all open orders,
// optionally restricted to one symbol via the symbol query parameter.
func (h *GinHandlers) CancelAllHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		count := h.manager.CancelAll(c.Query("symbol"))
		response.Success(c, gin.H{"canceled": count})
	}
}

// FillHandler handles POST requests from venue adapters reporting fills
// Requires internal authentication
func (h *GinHandlers) FillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var fill types.Fill
		if err := c.ShouldBindJSON(&fill); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.manager.ApplyFill(fill)
		if err != nil {
			switch {
			case errors.Is(err, types.ErrOrderNotFound):
				response.NotFound(c, "Order not found")
			case errors.Is(err, types.ErrInvalidStateTransition):
				response.Conflict(c, err.Error())
			case types.IsValidation(err):
				response.BadRequest(c, err.Error())
			default:
				response.InternalError(c, err.Error())
			}
			return
		}

		response.Success(c, trade)
	}
}

// MarkSubmittedHandler handles POST requests from venue adapters
// acknowledging that an order has been accepted downstream
// URL parameter: order_id
func (h *GinHandlers) MarkSubmittedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")

		if err := h.manager.MarkSubmitted(orderID); err != nil {
			switch {
			case errors.Is(err, types.ErrOrderNotFound):
				response.NotFound(c, "Order not found")
			case errors.Is(err, types.ErrInvalidStateTransition):
				response.Conflict(c, err.Error())
			default:
				response.InternalError(c, err.Error())
			}
			return
		}

		order, _ := h.manager.Get(orderID)
		response.Success(c, order)
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
