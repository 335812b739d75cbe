package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/trading-core/internal/auth"
	"github.com/ksred/trading-core/internal/ledger"
	"github.com/ksred/trading-core/internal/orders"
	"github.com/ksred/trading-core/internal/risk"
	"github.com/ksred/trading-core/internal/types"
	"github.com/ksred/trading-core/internal/venue"
	"github.com/ksred/trading-core/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minOrders     = 15
	maxOrders     = 150
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
)

var (
	symbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META"}
	sides   = []string{"BUY", "SELL"}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the trading API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates with the API and prepares performance tracking
func newSimulationClient() (*simulationClient, error) {
	// Create HTTP client with timeout
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":      {name: "Authentication"},
			"create":    {name: "Create Order"},
			"get":       {name: "Get Order"},
			"cancel":    {name: "Cancel Order"},
			"positions": {name: "List Positions"},
		},
	}

	// Get auth token
	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"jwt_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Token, nil
}

// createOrder submits a new order to the API
// Returns the order ID on success
func (sc *simulationClient) createOrder(order *types.Order) (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["create"].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(order)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/orders", sc.baseURL),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Create order response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats["create"].failures++
		return "", fmt.Errorf("create order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			OrderID string `json:"order_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	if result.Data.OrderID == "" {
		return "", fmt.Errorf("no order ID in response: %s", string(respBody))
	}

	return result.Data.OrderID, nil
}

// getOrder retrieves the current status of an order
func (sc *simulationClient) getOrder(orderID string) (*types.Order, error) {
	start := time.Now()
	defer func() {
		sc.stats["get"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/orders/%s", sc.baseURL, orderID),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		sc.stats["get"].failures++
		return nil, fmt.Errorf("get order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool        `json:"success"`
		Data    types.Order `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return &result.Data, nil
}

// cancelOrder requests cancellation of an order
// Returns whether the order was actually canceled
func (sc *simulationClient) cancelOrder(orderID string) (bool, error) {
	start := time.Now()
	defer func() {
		sc.stats["cancel"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"DELETE",
		fmt.Sprintf("%s/api/v1/orders/%s", sc.baseURL, orderID),
		nil,
	)
	if err != nil {
		return false, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		sc.stats["cancel"].failures++
		return false, fmt.Errorf("cancel order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Canceled bool `json:"canceled"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return false, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return result.Data.Canceled, nil
}

// listPositions retrieves the current position ledger
func (sc *simulationClient) listPositions() ([]types.Position, error) {
	start := time.Now()
	defer func() {
		sc.stats["positions"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/positions", sc.baseURL),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		sc.stats["positions"].failures++
		return nil, fmt.Errorf("list positions failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool             `json:"success"`
		Data    []types.Position `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return result.Data, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\n📊 API Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the trading simulation
// It starts a local API server with a simulated venue attached and runs
// multiple concurrent trading clients against it
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	// Initialize simulation client
	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	// Generate random number of orders to process
	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")

	// Channel to collect order IDs
	ordersChan := make(chan string, targetOrders)
	var wg sync.WaitGroup

	// Start worker goroutines
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			createOrdersHTTP(workerID, targetOrders/numWorkers, simClient, ordersChan)
		}(i)
	}

	// Wait for all orders to be created
	wg.Wait()
	close(ordersChan)

	// Collect all order IDs
	var orderIDs []string
	for orderID := range ordersChan {
		orderIDs = append(orderIDs, orderID)
	}

	log.Info().Int("orders_created", len(orderIDs)).Msg("All orders created")

	// Cancel a slice of orders while the venue is filling the rest
	canceledCount := 0
	for i, orderID := range orderIDs {
		if i%10 != 0 {
			continue
		}
		canceled, err := simClient.cancelOrder(orderID)
		if err != nil {
			log.Error().Err(err).Str("order_id", orderID).Msg("Failed to cancel order")
			continue
		}
		if canceled {
			canceledCount++
			log.Info().Str("order_id", orderID).Msg("Order canceled")
		}
	}

	// Give the venue time to work through the book
	time.Sleep(5 * time.Second)

	// Collect statistics from final order states
	stats := struct {
		TotalOrders   int
		FilledOrders  int
		PartialOrders int
		OpenOrders    int
		Canceled      int
		Rejected      int
		TotalValue    float64
		StartTime     time.Time
		Symbols       map[string]int
		Sides         map[string]int
	}{
		StartTime: time.Now(),
		Symbols:   make(map[string]int),
		Sides:     make(map[string]int),
	}
	stats.TotalOrders = len(orderIDs)
	stats.Canceled = canceledCount

	for _, orderID := range orderIDs {
		order, err := simClient.getOrder(orderID)
		if err != nil {
			log.Error().Err(err).Str("order_id", orderID).Msg("Failed to fetch order")
			continue
		}

		stats.Symbols[order.Symbol]++
		stats.Sides[string(order.Side)]++
		stats.TotalValue += order.AvgFillPrice * order.FilledQuantity

		switch order.Status {
		case types.StatusFilled:
			stats.FilledOrders++
		case types.StatusPartialFilled:
			stats.PartialOrders++
		case types.StatusSubmitted, types.StatusPending:
			stats.OpenOrders++
		case types.StatusRejected:
			stats.Rejected++
		}
	}

	// Fetch the resulting position ledger
	positions, err := simClient.listPositions()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch positions")
	}

	// Print summary
	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("🚀 TRADING SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
📊 Order Statistics
------------------
Total Orders:     %d
Filled:           %d
Partially Filled: %d
Still Open:       %d
Canceled:         %d
Rejected:         %d
Traded Value:     $%.2f
Duration:         %v

📈 Symbol Distribution
--------------------
`, stats.TotalOrders, stats.FilledOrders, stats.PartialOrders, stats.OpenOrders,
		stats.Canceled, stats.Rejected, stats.TotalValue, duration.Round(time.Millisecond))

	// Print symbol distribution with simple ASCII bar chart
	maxSymbolCount := 0
	for _, count := range stats.Symbols {
		if count > maxSymbolCount {
			maxSymbolCount = count
		}
	}

	for symbol, count := range stats.Symbols {
		barLength := int(float64(count) / float64(maxSymbolCount) * 20)
		bar := strings.Repeat("█", barLength)
		fmt.Printf("%-6s: %s (%d)\n", symbol, bar, count)
	}

	fmt.Println("\n📉 Side Distribution")
	fmt.Println("------------------")
	for side, count := range stats.Sides {
		barLength := int(float64(count) / float64(stats.TotalOrders) * 20)
		bar := strings.Repeat("█", barLength)
		fmt.Printf("%-4s: %s (%d)\n", side, bar, count)
	}

	fmt.Println("\n💼 Resulting Positions")
	fmt.Println("--------------------")
	for _, pos := range positions {
		fmt.Printf("%-6s %-10s qty %10.2f  avg %10.2f  realized %10.2f\n",
			pos.Symbol, pos.Account, pos.Quantity, pos.AvgPrice, pos.RealizedPnL)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	// Fill rate calculation
	fillRate := float64(stats.FilledOrders) / float64(stats.TotalOrders) * 100
	log.Info().
		Float64("fill_rate", fillRate).
		Int("total_orders", stats.TotalOrders).
		Int("filled_orders", stats.FilledOrders).
		Float64("traded_value", stats.TotalValue).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// createOrdersHTTP generates and submits random orders to the API
// Runs as a worker goroutine, sending created order IDs to ordersChan
func createOrdersHTTP(workerID, numOrders int, simClient *simulationClient, ordersChan chan<- string) {
	for i := 0; i < numOrders; i++ {
		order := &types.Order{
			Symbol:     symbols[rand.Intn(len(symbols))],
			Side:       types.OrderSide(sides[rand.Intn(len(sides))]),
			Type:       types.TypeMarket,
			Quantity:   float64(rand.Intn(100) + 1),
			Account:    fmt.Sprintf("ACC_%d", workerID),
			StrategyID: "sim",
		}

		orderID, err := simClient.createOrder(order)
		if err != nil {
			log.Error().Err(err).
				Str("worker_id", fmt.Sprintf("%d", workerID)).
				Str("symbol", order.Symbol).
				Msg("Failed to create order")
			continue
		}

		ordersChan <- orderID
		log.Info().
			Str("worker_id", fmt.Sprintf("%d", workerID)).
			Str("order_id", orderID).
			Str("symbol", order.Symbol).
			Str("side", string(order.Side)).
			Float64("quantity", order.Quantity).
			Msg("Order created")

		// Random sleep between orders
		time.Sleep(time.Duration(rand.Intn(500)) * time.Millisecond)
	}
}

// startServer initializes and starts the trading API server with a
// simulated venue filling orders in the background
func startServer() error {
	const jwtSecret = "simulation-secret-key"

	// Core services
	book := ledger.NewLedger(log.Logger)
	engine := risk.NewEngine(risk.Config{
		DefaultMarkPrice: 500.0,
		Rules: []risk.Rule{
			{
				Name:    "order size cap",
				Kind:    risk.MaxOrderSize,
				Params:  map[string]float64{"max_size": 500},
				Enabled: true,
			},
			{
				Name:    "position cap",
				Kind:    risk.MaxPositionSize,
				Params:  map[string]float64{"max_size": 10000},
				Enabled: true,
			},
		},
	}, log.Logger)
	manager := orders.NewManager(engine, book, log.Logger)

	// Simulated venue fills orders in the background
	simulator := venue.NewSimulator(manager, venue.Options{
		Interval:  200 * time.Millisecond,
		BasePrice: 500.0,
	}, log.Logger)
	go simulator.Start(context.Background())

	// Initialize services
	authService := auth.NewService(jwtSecret)
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	// Initialize router
	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	orderHandlers := orders.NewGinHandlers(manager)
	ledgerHandlers := ledger.NewGinHandlers(book)

	// Setup routes
	setupRoutes(router, jwtSecret, authHandlers, orderHandlers, ledgerHandlers)

	// Start the server
	return router.Run(":8080")
}

// setupRoutes configures the endpoints the simulation exercises
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	orderHandlers *orders.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
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
			orderGroup.GET("/:order_id", orderHandlers.GetOrderHandler())
			orderGroup.DELETE("/:order_id", orderHandlers.CancelOrderHandler())
		}

		// Position routes
		positionGroup := v1.Group("/positions")
		positionGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			positionGroup.GET("", ledgerHandlers.ListPositionsHandler())
		}
	}
}
