package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/transitiq/transitiq_core/internal/api"
	"github.com/transitiq/transitiq_core/internal/cache"
	"github.com/transitiq/transitiq_core/internal/db"
	"github.com/transitiq/transitiq_core/internal/metrics"
	"github.com/transitiq/transitiq_core/internal/middleware"
	"github.com/transitiq/transitiq_core/internal/timetable"
)

func main() {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	log.Println("Starting TransitIQ API server...")

	// Initialize database connection
	if _, err := db.GetDB(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("✓ Database connection established")

	// Initialize Redis connection
	rdb, err := cache.GetClient()
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cache.Close()
	log.Println("✓ Redis connection established")

	// Load timetable into memory
	pool, _ := db.GetDB()
	store := timetable.GetStore()
	if err := store.LoadFromDB(context.Background(), pool); err != nil {
		log.Fatalf("Failed to load timetable: %v", err)
	}
	log.Println("✓ Timetable loaded into memory")

	// Metrics
	collector := metrics.NewCollector()
	collector.Connections.Set(float64(store.Timetable().Len()))
	collector.Stops.Set(float64(store.Timetable().NStops))
	api.SetCollector(collector)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "TransitIQ API",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
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
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	perSecond, _ := strconv.Atoi(getEnv("RATE_LIMIT_PER_SECOND", "10"))
	perDay, _ := strconv.Atoi(getEnv("RATE_LIMIT_PER_DAY", "100000"))
	app.Use(middleware.RateLimitMiddleware(rdb, perSecond, perDay))

	// Routes
	app.Get("/health", api.Health)
	app.Get("/metrics", adaptor.HTTPHandler(collector.Handler()))
	app.Get("/v2/journey", api.Journey)
	app.Get("/v2/isochrone", api.Isochrone)
	app.Get("/v2/traveltimes", api.TravelTimes)

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
	log.Printf("📍 Journey search: http://localhost%s/v2/journey?from=ID&to=ID&start=HH:MM:SS&end=HH:MM:SS", addr)
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
