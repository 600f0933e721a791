package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mirrorhq/opportunity-engine/internal/api"
	"github.com/mirrorhq/opportunity-engine/internal/config"
	"github.com/mirrorhq/opportunity-engine/internal/detector"
	"github.com/mirrorhq/opportunity-engine/internal/notifications"
	"github.com/mirrorhq/opportunity-engine/internal/providers"
	"github.com/mirrorhq/opportunity-engine/internal/proxy"
	"github.com/mirrorhq/opportunity-engine/internal/scheduler"
	"github.com/mirrorhq/opportunity-engine/internal/signals"
	"github.com/mirrorhq/opportunity-engine/internal/storage"
	"github.com/mirrorhq/opportunity-engine/internal/synapse"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Infof("Starting Opportunity Engine with %d watched brands", len(cfg.Watchlist))

	ctx := context.Background()

	// Provider clients report ErrDisabled when their key is missing
	semrush := providers.NewSemrushClient(cfg.SemrushAPIKey)
	buzzsumo := providers.NewBuzzSumoClient(cfg.BuzzSumoAPIKey)
	weather := providers.NewWeatherClient(cfg.OpenWeatherAPIKey)
	outscraper := providers.NewOutScraperClient(cfg.OutScraperAPIKey)
	apify := providers.NewApifyClient(cfg.ApifyToken)
	openrouter := providers.NewOpenRouterClient(cfg.OpenRouterAPIKey, cfg.OpenRouterModel, cfg.OpenRouterReferer)

	weatherService := signals.NewWeatherService(weather, cfg.WeatherCacheSize, cfg.WeatherCacheTTL, nil)
	trendingService := signals.NewTrendingService(buzzsumo, cfg.TrendingCacheSize, cfg.TrendingCacheTTL, nil)

	var completer synapse.Completer = openrouter
	if cfg.LLMBackend == "anthropic" {
		completer = providers.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	}

	// Initialize opportunity storage
	var store storage.OpportunityStore
	if cfg.DatabaseURL != "" {
		pg, err := storage.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logrus.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			logrus.Fatalf("Failed to migrate database: %v", err)
		}
		store = pg
	} else {
		logrus.Warn("DATABASE_URL not set, opportunities are kept in memory")
		store = storage.NewMemoryStore()
	}

	// Report archive is optional
	var archive storage.ArchiveInterface
	if cfg.StorageAccount != "" {
		azure, err := storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize storage: %v", err)
		}
		archive = azure
	}

	// Initialize notification services
	var notifier notifications.NotificationInterface
	if cfg.NotificationsEnabled() {
		notifier = notifications.NewService(cfg)
	}

	// Initialize detection service
	detectorService := detector.NewService(cfg, detector.Sources{
		Weather:   weatherService,
		Trending:  trendingService,
		Rankings:  semrush,
		Reviews:   outscraper,
		Generator: synapse.NewGenerator(completer, ""),
		LLMSource: cfg.LLMBackend,
	}, store, archive, notifier)

	// Function proxy
	registry := proxy.NewRegistry()
	registry.Register(semrush, proxy.SemrushActions(semrush)...)
	registry.Register(buzzsumo, proxy.BuzzSumoActions(buzzsumo)...)
	registry.Register(weather, proxy.WeatherActions(weather)...)
	registry.Register(outscraper, proxy.OutScraperActions(outscraper)...)
	registry.Register(apify, proxy.ApifyActions(apify)...)
	registry.Register(openrouter, proxy.OpenRouterActions(openrouter)...)

	for name, enabled := range registry.Providers() {
		if !enabled {
			logrus.Warnf("Provider %s is not configured", name)
		}
	}

	// Initialize scheduler
	schedulerService := scheduler.NewService(cfg, detectorService, weatherService, trendingService)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logrus.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logrus.Fatalf("Failed to connect to Redis: %v", err)
		}
		schedulerService.WithLocker(scheduler.NewRedisLocker(redisClient, "opportunity-engine:"))
	}

	// Start scheduler
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	handler := api.NewHandler(detectorService, registry, cfg.Watchlist, promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.DetectionTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
