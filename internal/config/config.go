package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration
	DetectionSchedule string // cron expression with seconds
	SweepSchedule     string
	DetectionTimeout  time.Duration
	WatchlistFile     string
	Watchlist         []models.Brand

	// Persistence
	DatabaseURL      string
	StorageAccount   string
	StorageContainer string
	RedisURL         string // shared job locks across replicas

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	NotifyUrgencies   []string

	// Provider credentials
	SemrushAPIKey     string
	SemrushDatabase   string
	BuzzSumoAPIKey    string
	OpenWeatherAPIKey string
	OutScraperAPIKey  string
	ApifyToken        string

	// LLM configuration
	LLMBackend        string // "openrouter" or "anthropic"
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterReferer string
	AnthropicAPIKey   string
	AnthropicModel    string

	// Signal caches
	WeatherCacheSize  int
	WeatherCacheTTL   time.Duration
	TrendingCacheSize int
	TrendingCacheTTL  time.Duration

	// Detection tuning
	TrendingDays      int
	SeasonalLookahead time.Duration
}

// watchlistFile is the YAML layout of WATCHLIST_FILE
type watchlistFile struct {
	Brands []models.Brand `yaml:"brands"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		DetectionSchedule: getEnv("DETECTION_SCHEDULE", "0 0 */6 * * *"),
		SweepSchedule:     getEnv("SWEEP_SCHEDULE", "0 0 * * * *"),
		DetectionTimeout:  getDurationEnv("DETECTION_TIMEOUT", 2*time.Minute),
		WatchlistFile:     getEnv("WATCHLIST_FILE", ""),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "opportunities"),
		RedisURL:         getEnv("REDIS_URL", ""),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		NotifyUrgencies:   getSliceEnv("NOTIFY_URGENCIES", []string{"critical", "high"}),

		SemrushAPIKey:     getEnv("SEMRUSH_API_KEY", ""),
		SemrushDatabase:   getEnv("SEMRUSH_DATABASE", "us"),
		BuzzSumoAPIKey:    getEnv("BUZZSUMO_API_KEY", ""),
		OpenWeatherAPIKey: getEnv("OPENWEATHER_API_KEY", ""),
		OutScraperAPIKey:  getEnv("OUTSCRAPER_API_KEY", ""),
		ApifyToken:        getEnv("APIFY_TOKEN", ""),

		LLMBackend:        strings.ToLower(getEnv("LLM_BACKEND", "openrouter")),
		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterModel:   getEnv("OPENROUTER_MODEL", ""),
		OpenRouterReferer: getEnv("OPENROUTER_REFERER", ""),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:    getEnv("ANTHROPIC_MODEL", ""),

		WeatherCacheSize:  getIntEnv("WEATHER_CACHE_SIZE", 500),
		WeatherCacheTTL:   getDurationEnv("WEATHER_CACHE_TTL", time.Hour),
		TrendingCacheSize: getIntEnv("TRENDING_CACHE_SIZE", 500),
		TrendingCacheTTL:  getDurationEnv("TRENDING_CACHE_TTL", 30*time.Minute),

		TrendingDays:      getIntEnv("TRENDING_DAYS", 7),
		SeasonalLookahead: getDurationEnv("SEASONAL_LOOKAHEAD", 45*24*time.Hour),
	}

	if cfg.WatchlistFile != "" {
		brands, err := LoadWatchlist(cfg.WatchlistFile)
		if err != nil {
			return nil, err
		}
		cfg.Watchlist = brands
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadWatchlist reads the brands scheduled for periodic detection
func LoadWatchlist(path string) ([]models.Brand, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist %s: %w", path, err)
	}

	var file watchlistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse watchlist %s: %w", path, err)
	}

	return file.Brands, nil
}

func (c *Config) validate() error {
	if c.LLMBackend != "openrouter" && c.LLMBackend != "anthropic" {
		return fmt.Errorf("LLM_BACKEND must be 'openrouter' or 'anthropic'")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	for _, urgency := range c.NotifyUrgencies {
		switch models.Urgency(urgency) {
		case models.UrgencyCritical, models.UrgencyHigh, models.UrgencyMedium, models.UrgencyLow:
		default:
			return fmt.Errorf("NOTIFY_URGENCIES contains unknown urgency %q", urgency)
		}
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.DetectionSchedule); err != nil {
		return fmt.Errorf("invalid DETECTION_SCHEDULE: %w", err)
	}
	if _, err := parser.Parse(c.SweepSchedule); err != nil {
		return fmt.Errorf("invalid SWEEP_SCHEDULE: %w", err)
	}

	if c.WeatherCacheSize <= 0 || c.TrendingCacheSize <= 0 {
		return fmt.Errorf("cache sizes must be positive")
	}
	if c.WeatherCacheTTL <= 0 || c.TrendingCacheTTL <= 0 || c.DetectionTimeout <= 0 {
		return fmt.Errorf("cache TTLs and DETECTION_TIMEOUT must be positive")
	}

	seen := make(map[string]bool, len(c.Watchlist))
	for i, brand := range c.Watchlist {
		if brand.ID == "" || brand.Name == "" {
			return fmt.Errorf("watchlist brand %d needs an id and a name", i)
		}
		if seen[brand.ID] {
			return fmt.Errorf("watchlist brand %s is listed twice", brand.ID)
		}
		seen[brand.ID] = true
	}

	return nil
}

// NotificationsEnabled reports whether any digest channel is configured
func (c *Config) NotificationsEnabled() bool {
	return c.TeamsWebhookURL != "" || c.NotificationEmail != ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}
