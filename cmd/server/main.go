package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/trading-core/internal/audit"
	"github.com/ksred/trading-core/internal/auth"
	"github.com/ksred/trading-core/internal/config"
	"github.com/ksred/trading-core/internal/database"
	"github.com/ksred/trading-core/internal/ledger"
	"github.com/ksred/trading-core/internal/orders"
	"github.com/ksred/trading-core/internal/risk"
	"github.com/ksred/trading-core/internal/venue"
	"github.com/ksred/trading-core/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the trading core server with graceful
// shutdown support. It wires the risk engine, position ledger, order
// lifecycle manager, audit trail and API routes together.
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath, zlog.Logger)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database for the audit trail
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Core: ledger, risk engine, lifecycle manager
	book := ledger.NewLedger(zlog.Logger)
	engine := risk.NewEngine(cfg.RiskConfig(), zlog.Logger)
	manager := orders.NewManager(engine, book, zlog.Logger)

	// Audit trail listens on the notification fan-out
	auditService := audit.NewService(db, zlog.Logger)
	auditService.Attach(manager)
	auditService.RecordRules(engine.Rules())

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.Auth.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	orderHandlers := orders.NewGinHandlers(manager)
	riskHandlers := risk.NewGinHandlers(engine, book)
	ledgerHandlers := ledger.NewGinHandlers(book)
	auditHandlers := audit.NewGinHandlers(auditService)

	// Optionally run the simulated venue against the manager
	simCtx, simCancel := context.WithCancel(context.Background())
	defer simCancel()
	if cfg.Simulation.Enabled {
		simulator := venue.NewSimulator(manager, venue.Options{
			Interval:  cfg.Simulation.Interval,
			Seed:      cfg.Simulation.Seed,
			BasePrice: cfg.Risk.DefaultMarkPrice,
		}, zlog.Logger)
		go simulator.Start(simCtx)
	}

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.Auth.JWTSecret, authHandlers, orderHandlers, riskHandlers, ledgerHandlers, auditHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Order/position/risk routes: Protected by JWT authentication
// - Internal routes: venue adapters and data feeds, protected by
//   internal authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	orderHandlers *orders.GinHandlers,
	riskHandlers *risk.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	auditHandlers *audit.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Order routes
		orderGroup := v1.Group("/orders")
		orderGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			orderGroup.POST("", orderHandlers.CreateOrderHandler())
			orderGroup.GET("", orderHandlers.ListOrdersHandler())
			orderGroup.GET("/:order_id", orderHandlers.GetOrderHandler())
			orderGroup.DELETE("/:order_id", orderHandlers.CancelOrderHandler())
			orderGroup.POST("/cancel_all", orderHandlers.CancelAllHandler())
		}

		// Risk routes
		riskGroup := v1.Group("/risk")
		riskGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			riskGroup.POST("/check", riskHandlers.CheckOrderHandler())
			riskGroup.GET("/rules", riskHandlers.ListRulesHandler())
			riskGroup.POST("/rules", riskHandlers.AddRuleHandler())
			riskGroup.DELETE("/rules/:rule_id", riskHandlers.RemoveRuleHandler())
			riskGroup.PUT("/rules/:rule_id", riskHandlers.EnableRuleHandler())
			riskGroup.GET("/exposure", riskHandlers.ExposureHandler())
		}

		// Position routes
		positionGroup := v1.Group("/positions")
		positionGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			positionGroup.GET("", ledgerHandlers.ListPositionsHandler())
			positionGroup.GET("/:symbol", ledgerHandlers.GetPositionHandler())
		}

		// Audit routes
		auditGroup := v1.Group("/audit")
		auditGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			auditGroup.GET("/orders/:order_id", auditHandlers.OrderHistoryHandler())
			auditGroup.GET("/trades", auditHandlers.TradesHandler())
		}

		// Internal routes (should additionally be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/fills", orderHandlers.FillHandler())
			internal.POST("/orders/:order_id/submitted", orderHandlers.MarkSubmittedHandler())
			internal.POST("/marks", ledgerHandlers.MarkPriceHandler())
			internal.POST("/positions", ledgerHandlers.SeedPositionHandler())
			internal.DELETE("/positions/:symbol", ledgerHandlers.RemovePositionHandler())
			internal.POST("/risk/drawdown", riskHandlers.SetDrawdownHandler())
		}
	}
}
