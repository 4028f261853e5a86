package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"khata/internal/config"
	"khata/internal/database"
	"khata/internal/docstore"
	"khata/internal/docstore/gormstore"
	"khata/internal/docstore/memory"
	"khata/internal/events"
	"khata/internal/handlers"
	"khata/internal/ledger"
	"khata/internal/logger"
	"khata/internal/middleware"
	"khata/internal/repair"
	"khata/internal/validator"
)

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Open the configured document store backend
	store, cleanup, err := openStore(appConfig)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Change events are optional; without a broker the engine publishes
	// into a no-op sink.
	var publisher events.Publisher = events.Noop{}
	if appConfig.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(appConfig.AMQPURL, appConfig.AMQPExchange, appConfig.AMQPQueue)
		if err != nil {
			return fmt.Errorf("failed to connect to message broker: %w", err)
		}
		defer func() {
			if err := amqpPublisher.Close(); err != nil {
				log.Warnf("broker close error: %v", err)
			}
		}()
		publisher = amqpPublisher
	}

	// Initialize the ledger engine
	ledgerService := ledger.NewService(store, publisher)

	// Initialize handlers
	transactionHandler := handlers.NewTransactionHandler(ledgerService)
	sourceHandler := handlers.NewSourceHandler(ledgerService)

	// Register custom binding validators
	validator.Register()

	// Periodic aggregate repair sweep
	if appConfig.RepairSchedule != "" {
		sweeper := repair.NewSweeper(ledgerService)
		if err := sweeper.Start(appConfig.RepairSchedule); err != nil {
			return fmt.Errorf("failed to start repair sweeper: %w", err)
		}
		defer sweeper.Stop()
	}

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group
	v1 := router.Group("/api/v1")

	// Source routes
	sources := v1.Group("/sources")
	sources.GET("", sourceHandler.ListSources)
	sources.GET("/:source", sourceHandler.GetSource)
	sources.GET("/:source/summary", sourceHandler.SummarizeByCategory)
	sources.POST("/:source/recompute", sourceHandler.RecomputeSourceTotals)

	// Transaction routes scoped to a source
	sources.POST("/:source/transactions", transactionHandler.CreateTransaction)
	sources.GET("/:source/transactions", transactionHandler.ListTransactions)
	sources.PUT("/:source/transactions/:id", transactionHandler.UpdateTransaction)
	sources.PATCH("/:source/transactions/:id/status", transactionHandler.UpdateTransactionStatus)
	sources.DELETE("/:source/transactions/:id", transactionHandler.DeleteTransaction)
	sources.POST("/:source/transactions/:id/move", transactionHandler.MoveTransaction)
	sources.POST("/:source/transactions/bulk-status", transactionHandler.BulkUpdateTransactionStatus)

	// Cross-source listing and label catalogs
	v1.GET("/transactions", transactionHandler.ListAllTransactions)
	v1.GET("/categories", sourceHandler.ListCategories)
	v1.GET("/owners", sourceHandler.ListOwners)

	log.Infof("Starting khata backend server on port %s (store backend: %s)", appConfig.Port, appConfig.StoreBackend)
	return router.Run(":" + appConfig.Port)
}

// openStore builds the document store for the configured backend. The
// returned cleanup closes the underlying connection, nil for the in-memory
// backend.
func openStore(cfg *config.Config) (docstore.Store, func(), error) {
	if cfg.StoreBackend == config.StoreMemory {
		return memory.New(), nil, nil
	}

	dbManager, err := database.NewManager(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database manager: %w", err)
	}
	if err := dbManager.Migrate(); err != nil {
		return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	cleanup := func() {
		if err := dbManager.Close(); err != nil {
			logger.Get().Warnf("database close error: %v", err)
		}
	}
	return gormstore.New(dbManager.DB()), cleanup, nil
}
