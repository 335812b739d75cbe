package risk

import (
	"github.com/gin-gonic/gin"
	"github.com/ksred/trading-core/internal/types"
	"github.com/ksred/trading-core/pkg/response"
)

// GinHandlers contains HTTP handlers for risk endpoints
type GinHandlers struct {
	engine *Engine
	view   LedgerView
}

// NewGinHandlers creates a new set of HTTP handlers for risk endpoints
func NewGinHandlers(engine *Engine, view LedgerView) *GinHandlers {
	return &GinHandlers{
		engine: engine,
		view:   view,
	}
}

// CheckOrderHandler handles POST requests to run a pre-trade check without
// submitting the order. The request body contains the candidate order.
func (h *GinHandlers) CheckOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var order types.Order
		if err := c.ShouldBindJSON(&order); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if !order.Side.Valid() {
			response.BadRequest(c, "side must be BUY or SELL")
			return
		}

		result := h.engine.Check(order, h.view)
		response.Success(c, result)
	}
}

// ListRulesHandler handles GET requests for the configured rule list
func (h *GinHandlers) ListRulesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.engine.Rules())
	}
}

// AddRuleHandler handles POST requests to register a new risk rule
func (h *GinHandlers) AddRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var rule Rule
		if err := c.ShouldBindJSON(&rule); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if !rule.Kind.Valid() {
			response.BadRequest(c, "unknown rule kind")
			return
		}

		ruleID := h.engine.AddRule(rule)
		response.Success(c, gin.H{"rule_id": ruleID})
	}
}

// RemoveRuleHandler handles DELETE requests for a rule
// URL parameter: rule_id
func (h *GinHandlers) RemoveRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ruleID := c.Param("rule_id")
		if !h.engine.RemoveRule(ruleID) {
			response.NotFound(c, "Rule not found")
			return
		}
		response.Success(c, gin.H{"removed": true})
	}
}

// EnableRuleHandler handles PUT requests toggling a rule's enabled flag
// URL parameter: rule_id
func (h *GinHandlers) EnableRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ruleID := c.Param("rule_id")

		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if !h.engine.EnableRule(ruleID, body.Enabled) {
			response.NotFound(c, "Rule not found")
			return
		}
		response.Success(c, gin.H{"rule_id": ruleID, "enabled": body.Enabled})
	}
}

// SetDrawdownHandler handles POST requests from the reconciliation feed
// reporting an account's current drawdown fraction.
func (h *GinHandlers) SetDrawdownHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Account  string  `json:"account"`
			Drawdown float64 `json:"drawdown"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if body.Account == "" {
			response.BadRequest(c, "account is required")
			return
		}

		h.engine.SetDrawdown(body.Account, body.Drawdown)
		response.Success(c, gin.H{"account": body.Account, "drawdown": body.Drawdown})
	}
}

// ExposureHandler handles GET requests for an account's total absolute
// notional exposure.
func (h *GinHandlers) ExposureHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := c.Query("account")
		if account == "" {
			response.BadRequest(c, "account query parameter is required")
			return
		}

		response.Success(c, gin.H{
			"account":        account,
			"total_exposure": TotalExposure(h.view, account),
		})
	}
}
