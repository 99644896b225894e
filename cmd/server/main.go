package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/fintick/tradesim/internal/auth"
	"github.com/fintick/tradesim/internal/config"
	"github.com/fintick/tradesim/internal/database"
	"github.com/fintick/tradesim/internal/quotes"
	"github.com/fintick/tradesim/internal/trading"
	"github.com/fintick/tradesim/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the trading simulation server with graceful
// shutdown support. It wires the database, quote provider chain, services,
// and API routes.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Initialize services and handlers
	provider := newQuoteProvider(cfg)

	authService := auth.NewService(db, cfg.JWTSecret, cfg.SessionTTL, cfg.StartingCashAmount())
	authHandlers := auth.NewGinHandlers(authService)

	tradingService := trading.NewService(db, provider)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	// Drop expired sessions periodically
	go func() {
		for {
			time.Sleep(time.Hour)
			if err := authService.GetDB().DeleteExpiredSessions(); err != nil {
				zlog.Warn().Err(err).Msg("session cleanup failed")
			}
		}
	}()

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authService, authHandlers, tradingHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
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

// newQuoteProvider builds the quote provider chain: an external HTTP source
// when configured, the static table otherwise, optionally fronted by a
// Redis cache.
func newQuoteProvider(cfg *config.Config) quotes.Provider {
	var provider quotes.Provider
	if cfg.QuoteAPIURL != "" {
		provider = quotes.NewHTTPProvider(cfg.QuoteAPIURL, cfg.QuoteAPIKey)
		zlog.Info().Str("url", cfg.QuoteAPIURL).Msg("using external quote provider")
	} else {
		provider = quotes.NewStaticProvider()
		zlog.Info().Msg("using static quote table")
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			zlog.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		provider = quotes.NewCachedProvider(provider, rdb, cfg.QuoteCacheTTL)
		zlog.Info().Str("addr", cfg.RedisAddr).Msg("quote cache enabled")
	}

	return provider
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for registration and login
// - Session routes: Everything else, gated on a valid session
// Parameters:
//   - router: The main Gin router instance
//   - authService: Session validator backing the auth middleware
//   - authHandlers: Handlers for authentication endpoints
//   - tradingHandlers: Handlers for trades, portfolio, and quotes
func setupRoutes(
	router *gin.Engine,
	authService *auth.Service,
	authHandlers *auth.GinHandlers,
	tradingHandlers *trading.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.POST("/login", authHandlers.LoginHandler())
		}

		// Session-gated routes
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
}
