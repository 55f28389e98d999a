package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/i474232898/weather-stream-pipeline/internal/api/http"
	"github.com/i474232898/weather-stream-pipeline/internal/config"
	"github.com/i474232898/weather-stream-pipeline/internal/orchestrator"
	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
	"github.com/i474232898/weather-stream-pipeline/internal/publish"
	"github.com/i474232898/weather-stream-pipeline/internal/scheduler"
	"github.com/i474232898/weather-stream-pipeline/internal/secrets"
	"github.com/i474232898/weather-stream-pipeline/internal/source"
	"github.com/i474232898/weather-stream-pipeline/internal/store"
)

func main() {
	appLogger := log.New(os.Stdout, "pipeline ", log.LstdFlags|log.LUTC)

	// Load configuration. config.Load handles the .env bootstrap.
	cfg, err := config.Load()
	if err != nil {
		appLogger.Fatalf("failed to load config: %v", err)
	}

	// Secret store: Redis when configured, environment fallback for local runs.
	var secretStore secrets.Store
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		secretStore = secrets.NewRedisStore(redisClient)
		appLogger.Printf("secret store: redis addr=%s db=%d", cfg.RedisAddr, cfg.RedisDB)
	} else {
		secretStore = secrets.EnvStore{}
		appLogger.Printf("secret store: environment")
	}
	auth := secrets.NewAuthenticator(secretStore)

	// Shared HTTP client for outbound source calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// One source client per configured category.
	var clients []source.Client
	for _, cat := range cfg.Categories {
		switch cat {
		case pipeline.CategoryCurrentConditions:
			clients = append(clients, source.NewCurrentClient(httpClient, cfg.UpstreamBaseURL, cfg.SourceBackoff, auth, cfg.APIKeySecret))
		case pipeline.CategoryForecast:
			clients = append(clients, source.NewForecastClient(httpClient, cfg.UpstreamBaseURL, cfg.SourceBackoff, auth, cfg.APIKeySecret, cfg.ForecastDays))
		case pipeline.CategoryAlerts:
			clients = append(clients, source.NewAlertsClient(httpClient, cfg.UpstreamBaseURL, cfg.SourceBackoff, auth, cfg.APIKeySecret))
		case pipeline.CategoryAirQuality:
			clients = append(clients, source.NewAirQualityClient(httpClient, cfg.UpstreamBaseURL, cfg.SourceBackoff, auth, cfg.APIKeySecret))
		}
	}

	// Publisher delivering to the Kafka sink.
	writerFactory := publish.NewKafkaWriterFactory(auth, cfg.SinkCredentialSecret, cfg.KafkaTopic, cfg.SinkTimeout)
	publisher := publish.New(writerFactory, auth, cfg.SinkCredentialSecret, cfg.PublishBatchSize, cfg.PublishBackoff, appLogger)
	defer publisher.Close()

	// Recent-record buffer backing the inspection API.
	memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

	// Orchestrator and the scheduler driving it.
	orch := orchestrator.New(cfg.Locations, clients, publisher, memStore, cfg.Concurrency, appLogger)
	holder := &orchestrator.ReportHolder{}

	sched := scheduler.New(cfg.FetchInterval, orch, holder, appLogger)
	if err := sched.Start(); err != nil {
		appLogger.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-stream-pipeline",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-stream-pipeline",
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, holder, memStore)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			appLogger.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		appLogger.Printf("error during shutdown: %v", err)
	}
}
