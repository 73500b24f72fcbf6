package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/internal/auth"
	"fieldserve/dispatch/dispatch-backend/internal/config"
	"fieldserve/dispatch/dispatch-backend/internal/engagements"
	"fieldserve/dispatch/dispatch-backend/internal/matching"
	"fieldserve/dispatch/dispatch-backend/internal/payments"
	"fieldserve/dispatch/dispatch-backend/internal/presence"
	"fieldserve/dispatch/dispatch-backend/internal/providers"
	"fieldserve/dispatch/dispatch-backend/internal/verification"
	"fieldserve/dispatch/dispatch-backend/pkg/security"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	if os.Getenv("APP_ENV") == "development" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, relying on process environment")
	}

	// Load configuration
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Connect to database
	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	// Repositories
	providerRepo := providers.NewPostgresRepository(db)
	verificationRepo := verification.NewPostgresRepository(db)
	engagementRepo := engagements.NewPostgresRepository(db)

	// Services and the presence manager. The manager is the live
	// Broadcaster behind every lifecycle event.
	matchingService := matching.NewService(providerRepo, nil, cfg.Policy, logger)
	manager := presence.NewManager(providerRepo, engagementRepo, matchingService, cfg.Policy, logger)

	providerService := providers.NewService(providerRepo, logger)
	verificationService := verification.NewService(verificationRepo, providerRepo, cfg.Policy, logger)
	engagementService := engagements.NewService(engagementRepo, providerRepo, manager, cfg.Policy, logger)
	signer := security.NewSigner(cfg.Security.PaymentSecret)
	paymentService := payments.NewService(engagementRepo, engagementService, signer, logger)

	// Handlers
	providerHandler := providers.NewHandler(providerService, logger)
	verificationHandler := verification.NewHandler(verificationService, logger)
	matchingHandler := matching.NewHandler(matchingService, logger)
	engagementHandler := engagements.NewHandler(engagementService, logger)
	paymentHandler := payments.NewHandler(paymentService, logger)
	presenceHandler := presence.NewHandler(manager, cfg.Security.JWTSecret, logger)

	// Setup Router
	if os.Getenv("APP_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	api := router.Group("/api/v1")
	api.Use(auth.Middleware(cfg.Security.JWTSecret))
	{
		providerHandler.RegisterRoutes(api)
		verificationHandler.RegisterRoutes(api)
		matchingHandler.RegisterRoutes(api)
		engagementHandler.RegisterRoutes(api)
		paymentHandler.RegisterRoutes(api)
	}
	presenceHandler.RegisterRoutes(router)

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"sessions":  manager.SessionCount(),
			"timestamp": time.Now(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:    cfg.Server.GetServerAddr(),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", cfg.Server.GetServerAddr()))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	manager.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
