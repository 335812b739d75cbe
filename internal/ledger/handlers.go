package ledger

import (
	"github.com/gin-gonic/gin"
	"github.com/ksred/trading-core/internal/types"
	"github.com/ksred/trading-core/pkg/response"
)

// GinHandlers contains HTTP handlers for position endpoints
type GinHandlers struct {
	ledger *Ledger
}

// NewGinHandlers creates a new set of HTTP handlers for position endpoints
func NewGinHandlers(ledger *Ledger) *GinHandlers {
	return &GinHandlers{
		ledger: ledger,
	}
}

// ListPositionsHandler handles GET requests for positions, optionally
// filtered by account.
func (h *GinHandlers) ListPositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.ledger.Positions(c.Query("account")))
	}
}

// GetPositionHandler handles GET requests for one position
// URL parameter: symbol; query parameters: account, strategy_id
func (h *GinHandlers) GetPositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := c.Param("symbol")
		account := c.Query("account")
		strategyID := c.Query("strategy_id")

		position, ok := h.ledger.Position(symbol, account, strategyID)
		if !ok {
			response.NotFound(c, "Position not found")
			return
		}
		response.Success(c, position)
	}
}

// SeedPositionHandler handles POST requests overwriting a position,
// used by reconciliation feeds.
func (h *GinHandlers) SeedPositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var position types.Position
		if err := c.ShouldBindJSON(&position); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if position.Symbol == "" {
			response.BadRequest(c, "symbol is required")
			return
		}

		h.ledger.Seed(position)
		response.Success(c, position)
	}
}

// RemovePositionHandler handles DELETE requests for a position
// URL parameter: symbol; query parameters: account, strategy_id
func (h *GinHandlers) RemovePositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := c.Param("symbol")
		account := c.Query("account")
		strategyID := c.Query("strategy_id")

		if !h.ledger.Remove(symbol, account, strategyID) {
			response.NotFound(c, "Position not found")
			return
		}
		response.Success(c, gin.H{"removed": true})
	}
}

// MarkPriceHandler handles POST requests from the market data source
// reporting the latest mark price for a symbol.
func (h *GinHandlers) MarkPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Symbol string  `json:"symbol"`
			Price  float64 `json:"price"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if body.Symbol == "" || body.Price <= 0 {
			response.BadRequest(c, "symbol and a positive price are required")
			return
		}

		h.ledger.Mark(body.Symbol, body.Price)
		response.Success(c, gin.H{"symbol": body.Symbol, "price": body.Price})
	}
}
