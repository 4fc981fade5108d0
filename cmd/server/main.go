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

	"github.com/archiveone/pan-auction/internal/auction"
	"github.com/archiveone/pan-auction/internal/auth"
	"github.com/archiveone/pan-auction/internal/bidding"
	"github.com/archiveone/pan-auction/internal/database"
	"github.com/archiveone/pan-auction/internal/notification"
	"github.com/archiveone/pan-auction/internal/payments"
	"github.com/archiveone/pan-auction/internal/registration"
	"github.com/archiveone/pan-auction/internal/settlement"
	"github.com/archiveone/pan-auction/pkg/middleware"

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

// main initializes and runs the auction API server with graceful shutdown support
// It sets up all required services, database connections, and API routes
func main() {
	// Initialize database
	db, err := database.NewDatabase()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "pan-auction-secret-key"
	}

	// Initialize services and handlers
	authService := auth.NewService(jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	notifier := notification.NewLogNotifier()
	processor := payments.NewMockProcessor()

	settlementService := settlement.NewService(db, notifier)
	settlementHandlers := settlement.NewGinHandlers(settlementService)

	auctionService := auction.NewService(db, notifier, settlementService)
	auctionHandlers := auction.NewGinHandlers(auctionService)

	registrationService := registration.NewService(db, notifier)
	registrationHandlers := registration.NewGinHandlers(registrationService)

	biddingService := bidding.NewService(db, registrationService, processor, settlementService, notifier)
	biddingHandlers := bidding.NewGinHandlers(biddingService)

	// Create and start the closing sweeper
	sweepInterval := 30 * time.Second
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			sweepInterval = d
		}
	}
	sweeper := auction.NewSweeper(auctionService, sweepInterval)
	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	defer sweeperCancel()

	go sweeper.Start(sweeperCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authHandlers, auctionHandlers, biddingHandlers, registrationHandlers, settlementHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
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
// - Auction and bid routes: Protected by JWT authentication
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	auctionHandlers *auction.GinHandlers,
	biddingHandlers *bidding.GinHandlers,
	registrationHandlers *registration.GinHandlers,
	settlementHandlers *settlement.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Auction routes. Lifecycle writes need the sell permission, bid
		// placement the bid permission; reads need only a valid token.
		auctions := v1.Group("/auctions")
		auctions.Use(middleware.JWTAuth())
		{
			auctions.POST("", middleware.RequirePermission(auth.PermissionSell), auctionHandlers.CreateAuctionHandler())
			auctions.POST("/:auction_id/publish", middleware.RequirePermission(auth.PermissionSell), auctionHandlers.PublishAuctionHandler())
			auctions.GET("/:auction_id", auctionHandlers.GetAuctionHandler())
			auctions.POST("/:auction_id/cancel", middleware.RequirePermission(auth.PermissionSell), auctionHandlers.CancelAuctionHandler())
			auctions.GET("/:auction_id/bids", biddingHandlers.GetBidsHandler())
			auctions.POST("/:auction_id/bids", middleware.RequirePermission(auth.PermissionBid), biddingHandlers.PlaceBidHandler())
		}

		// Event registration routes
		events := v1.Group("/events")
		events.Use(middleware.JWTAuth())
		{
			events.POST("/:event_id/registrations", registrationHandlers.RegisterBidderHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth())
		{
			internal.POST("/registrations/:registration_id/approve", registrationHandlers.ApproveRegistrationHandler())
			internal.POST("/registrations/:registration_id/reject", registrationHandlers.RejectRegistrationHandler())
			internal.GET("/registrations/:registration_id", registrationHandlers.GetRegistrationHandler())
			internal.POST("/close-due", auctionHandlers.CloseDueAuctionsHandler())
			internal.POST("/events/:event_id/settle", settlementHandlers.SettleEventHandler())
			internal.POST("/auctions/:auction_id/settle", settlementHandlers.SettleAuctionHandler())
			internal.GET("/settlements/invoice/:event_id/:buyer_id", settlementHandlers.GetInvoiceHandler())
			internal.GET("/settlements/payout/:event_id/:seller_id", settlementHandlers.GetPayoutHandler())
			internal.GET("/settlements/auction/:auction_id", settlementHandlers.GetAuctionSettlementHandler())
		}
	}
}
