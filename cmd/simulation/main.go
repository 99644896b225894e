package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/fintick/tradesim/internal/auth"
	"github.com/fintick/tradesim/internal/database"
	"github.com/fintick/tradesim/internal/quotes"
	"github.com/fintick/tradesim/internal/trading"
	"github.com/fintick/tradesim/internal/types"
	"github.com/fintick/tradesim/pkg/middleware"
)

const (
	numTraders      = 5
	minTradesEach   = 5
	maxTradesEach   = 25
	serverAddress   = "http://localhost:8080"
	simStartingCash = "10000.00"
)

var symbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META"}

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
	mu         sync.Mutex
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

func (rs *routeStats) addFailure() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// traderClient drives one simulated user through the API
type traderClient struct {
	baseURL  string
	username string
	token    string
	client   *http.Client
	stats    map[string]*routeStats
}

// newTraderClient registers a fresh user and returns an authenticated client
func newTraderClient(username string, stats map[string]*routeStats) (*traderClient, error) {
	tc := &traderClient{
		baseURL:  serverAddress,
		username: username,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		stats: stats,
	}

	if err := tc.register(); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", username, err)
	}

	return tc, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do sends a request, records timing under the given stats key, and decodes
// the response envelope
func (tc *traderClient) do(statsKey, method, path string, form url.Values) (*envelope, int, error) {
	start := time.Now()
	defer func() {
		tc.stats[statsKey].addDuration(time.Since(start))
	}()

	var body io.Reader
	contentType := ""
	if form != nil {
		body = bytes.NewBufferString(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequest(method, tc.baseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tc.token != "" {
		req.Header.Set("Authorization", "Bearer "+tc.token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		tc.stats[statsKey].addFailure()
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Str("response", string(respBody)).Msg("API response")

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	if !env.Success {
		tc.stats[statsKey].addFailure()
	}

	return &env, resp.StatusCode, nil
}

func (tc *traderClient) register() error {
	form := url.Values{}
	form.Set("username", tc.username)
	form.Set("password", "simulated-password")
	form.Set("confirmation", "simulated-password")

	env, status, err := tc.do("register", "POST", "/api/v1/auth/register", form)
	if err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("registration failed with status %d", status)
	}

	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return err
	}
	if data.Token == "" {
		return fmt.Errorf("no token in registration response")
	}
	tc.token = data.Token

	return nil
}

// quoteSymbol runs the quote/price round trip for a random symbol
func (tc *traderClient) quoteSymbol(symbol string) error {
	form := url.Values{}
	form.Set("symbol", symbol)

	env, status, err := tc.do("quote", "POST", "/api/v1/quote", form)
	if err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("quote failed with status %d", status)
	}

	env, status, err = tc.do("price", "GET", "/api/v1/price", nil)
	if err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("price failed with status %d", status)
	}

	return nil
}

// trade submits a buy or sell and reports whether it was accepted
func (tc *traderClient) trade(direction string, symbol string, shares int) (bool, error) {
	form := url.Values{}
	form.Set("symbol", symbol)
	form.Set("shares", fmt.Sprintf("%d", shares))

	path := "/api/v1/buy"
	statsKey := "buy"
	if direction == trading.DirectionSell {
		path = "/api/v1/sell"
		statsKey = "sell"
	}

	env, _, err := tc.do(statsKey, "POST", path, form)
	if err != nil {
		return false, err
	}

	return env.Success, nil
}

// portfolio fetches the derived portfolio view and returns the total net worth
func (tc *traderClient) portfolio() (decimal.Decimal, error) {
	env, status, err := tc.do("portfolio", "GET", "/api/v1/portfolio", nil)
	if err != nil {
		return decimal.Zero, err
	}
	if !env.Success {
		return decimal.Zero, fmt.Errorf("portfolio failed with status %d", status)
	}

	var data types.PortfolioResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return decimal.Zero, err
	}

	return data.Total, nil
}

// simStats aggregates trade outcomes across all simulated traders
type simStats struct {
	mu             sync.Mutex
	trades         int
	accepted       int
	rejected       int
	symbols        map[string]int
	finalNetWorths map[string]decimal.Decimal
}

// main runs the trading simulation
// It starts a local API server and drives multiple concurrent simulated traders
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	stats := map[string]*routeStats{
		"register":  {name: "Register"},
		"quote":     {name: "Quote"},
		"price":     {name: "Price"},
		"buy":       {name: "Buy"},
		"sell":      {name: "Sell"},
		"portfolio": {name: "Portfolio"},
		"history":   {name: "History"},
	}

	results := &simStats{
		symbols:        make(map[string]int),
		finalNetWorths: make(map[string]decimal.Decimal),
	}

	startTime := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < numTraders; i++ {
		wg.Add(1)
		go func(traderID int) {
			defer wg.Done()
			runTrader(traderID, stats, results)
		}(i)
	}
	wg.Wait()

	duration := time.Since(startTime)

	// Print summary
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("TRADING SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Traders:          %d
Trades Submitted: %d
Accepted:         %d
Rejected:         %d
Duration:         %v

Symbol Distribution
-------------------
`, numTraders, results.trades, results.accepted, results.rejected, duration.Round(time.Millisecond))

	for symbol, count := range results.symbols {
		fmt.Printf("%-6s: %s (%d)\n", symbol, strings.Repeat("#", count), count)
	}

	fmt.Println("\nFinal Net Worth")
	fmt.Println("---------------")
	for username, total := range results.finalNetWorths {
		fmt.Printf("%-12s: $%s\n", username, total.StringFixed(2))
	}

	printPerformanceStats(stats)
}

// runTrader registers one user and runs a random trade sequence
func runTrader(traderID int, stats map[string]*routeStats, results *simStats) {
	username := fmt.Sprintf("trader_%d_%d", traderID, time.Now().UnixNano())

	tc, err := newTraderClient(username, stats)
	if err != nil {
		log.Error().Err(err).Int("trader_id", traderID).Msg("Failed to initialize trader")
		return
	}

	numTrades := rand.Intn(maxTradesEach-minTradesEach) + minTradesEach
	for i := 0; i < numTrades; i++ {
		symbol := symbols[rand.Intn(len(symbols))]
		shares := rand.Intn(20) + 1

		if err := tc.quoteSymbol(symbol); err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("Quote round trip failed")
		}

		// Lean towards buys so sells have something to work against
		direction := trading.DirectionBuy
		if rand.Intn(3) == 0 {
			direction = trading.DirectionSell
		}

		accepted, err := tc.trade(direction, symbol, shares)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("Trade request failed")
			continue
		}

		results.mu.Lock()
		results.trades++
		if accepted {
			results.accepted++
			results.symbols[symbol]++
		} else {
			results.rejected++
		}
		results.mu.Unlock()

		log.Info().
			Int("trader_id", traderID).
			Str("symbol", symbol).
			Str("direction", direction).
			Int("shares", shares).
			Bool("accepted", accepted).
			Msg("Trade submitted")

		// Random sleep between trades
		time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
	}

	if _, _, err := tc.do("history", "GET", "/api/v1/history", nil); err != nil {
		log.Error().Err(err).Msg("History request failed")
	}

	total, err := tc.portfolio()
	if err != nil {
		log.Error().Err(err).Msg("Portfolio request failed")
		return
	}

	results.mu.Lock()
	results.finalNetWorths[username] = total
	results.mu.Unlock()
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func printPerformanceStats(stats map[string]*routeStats) {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, rs := range stats {
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			rs.name,
			rs.totalCalls,
			rs.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// startServer initializes and starts the trading simulation API server
// Sets up all required services, handlers and routes
func startServer() error {
	// Initialize database
	db, err := database.NewDatabase("simulation.db")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services against the static quote table
	provider := quotes.NewStaticProvider()
	authService := auth.NewService(db, "simulation-secret-key", 24*time.Hour, decimal.RequireFromString(simStartingCash))
	tradingService := trading.NewService(db, provider)

	// Initialize router
	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	// Setup routes
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.POST("/login", authHandlers.LoginHandler())
		}

		session := v1.Group("")
		session.Use(middleware.SessionAuth(authService))
		{
			session.POST("/auth/logout", authHandlers.LogoutHandler())
			session.POST("/auth/reset", authHandlers.ResetPasswordHandler())
			session.GET("/portfolio", tradingHandlers.PortfolioHandler())
			session.POST("/buy", tradingHandlers.BuyHandler())
			session.POST("/sell", tradingHandlers.SellHandler())
			session.GET("/history", tradingHandlers.HistoryHandler())
			session.POST("/quote", tradingHandlers.QuoteHandler())
			session.GET("/price", tradingHandlers.PriceHandler())
		}
	}

	// Start the server
	return router.Run(":8080")
}
