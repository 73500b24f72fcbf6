package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"fieldserve/dispatch/dispatch-backend/internal/config"
	"fieldserve/dispatch/dispatch-backend/internal/matching"
	"fieldserve/dispatch/dispatch-backend/internal/providers"
	"fieldserve/dispatch/dispatch-backend/internal/verification"
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

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	providerRepo := providers.NewPostgresRepository(db)
	verificationRepo := verification.NewPostgresRepository(db)
	verificationService := verification.NewService(verificationRepo, providerRepo, cfg.Policy, logger)
	matchingService := matching.NewService(providerRepo, nil, cfg.Policy, logger)

	worker := NewMaintenanceWorker(db, verificationService, matchingService, logger)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", worker.SweepExpiredApprovals); err != nil {
		logger.Fatal("Failed to schedule approval sweep", zap.Error(err))
	}
	if _, err := scheduler.AddFunc("@every 5m", worker.RematchStaleRequests); err != nil {
		logger.Fatal("Failed to schedule stale-request rematch", zap.Error(err))
	}
	scheduler.Start()
	logger.Info("Maintenance worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down maintenance worker...")
	<-scheduler.Stop().Done()
	logger.Info("Maintenance worker exiting")
}
