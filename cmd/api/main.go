package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/greenroute/greenroute_core/internal/api"
	"github.com/greenroute/greenroute_core/internal/cache"
	"github.com/greenroute/greenroute_core/internal/config"
	"github.com/greenroute/greenroute_core/internal/db"
	"github.com/greenroute/greenroute_core/internal/dgvi"
	"github.com/greenroute/greenroute_core/internal/feed"
	"github.com/greenroute/greenroute_core/internal/greenery"
	"github.com/greenroute/greenroute_core/internal/planner"
	"github.com/greenroute/greenroute_core/internal/store"
)

func main() {
	log.Println("Starting GreenRoute API server...")

	opts := config.FromEnv()

	// Initialize database connection
	pool, err := db.GetDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("✓ Database connection established")

	// Initialize Redis connection
	if _, err := cache.GetClient(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cache.Close()
	log.Println("✓ Redis connection established")

	spatial := store.New(pool)
	evaluator := dgvi.NewEvaluator(spatial)
	departures := feed.NewClient(opts.FeedBaseURL, opts.APIDelay, opts.FeedTimeout)
	gvi := greenery.NewClient(opts.GreeneryBaseURL, 30*time.Second)
	routePlanner := planner.New(spatial, departures, evaluator, opts)

	server := api.NewServer(routePlanner, spatial, evaluator, gvi, opts, cache.LoadConfigFromEnv().TTL)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "GreenRoute API",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: opts.PlanTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: customErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	// Routes
	server.Register(app)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(fiber.Map{
			"error": "endpoint not found",
		})
	})

	// Get port from environment
	port := getEnv("API_PORT", "8080")
	addr := fmt.Sprintf(":%s", port)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	// Start server
	log.Printf("🚀 Server listening on http://localhost%s", addr)
	log.Printf("📍 Route planning: POST http://localhost%s/v1/plan-routes", addr)
	log.Printf("❤️  Health check: http://localhost%s/health", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// customErrorHandler handles errors returned from handlers
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	log.Printf("Error: %v", err)

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
