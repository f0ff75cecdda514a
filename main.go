package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"calmreach/automation"
	"calmreach/config"
	"calmreach/middleware"
	"calmreach/routes"
	"calmreach/utils"
	"calmreach/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "CALMREACH: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Build the enrollment automation core
	scheduler := automation.NewScheduler(config.AppConfig.Location())
	scheduler.StartHour = config.AppConfig.BusinessStartHour
	scheduler.EndHour = config.AppConfig.BusinessEndHour

	activitySink := automation.NewGormActivitySink(config.DB)
	manager := automation.NewEnrollmentManager(
		automation.NewGormEnrollmentStore(config.DB),
		automation.NewGormSequenceCatalog(config.DB),
		activitySink,
		scheduler,
		automation.SystemClock(),
		logrus.New(),
	)

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Initialize mailer and start the dispatch worker
	mailer := utils.NewSequenceMailer(config.AppConfig)
	dispatchWorker := worker.NewDispatchWorker(
		config.DB,
		mailer,
		scheduler,
		activitySink,
		log.New(os.Stdout, "DISPATCH: ", log.LstdFlags),
		time.Duration(config.AppConfig.DispatchInterval)*time.Second,
		config.AppConfig.DispatchBatchSize,
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatchWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, manager)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
