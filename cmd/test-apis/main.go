package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mirrorhq/opportunity-engine/internal/config"
	"github.com/mirrorhq/opportunity-engine/internal/providers"
	"github.com/mirrorhq/opportunity-engine/internal/signals"
)

// Phoenix, AZ
const (
	testLat = 33.4484
	testLon = -112.0740
)

func main() {
	fmt.Println("🔍 Opportunity Engine - Provider Connectivity Test")
	fmt.Println("=================================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	fmt.Println("\n📡 Testing providers...")
	fmt.Println(strings.Repeat("-", 40))

	semrush := providers.NewSemrushClient(cfg.SemrushAPIKey)
	testProvider(semrush, func() (string, error) {
		rankings, err := semrush.DomainOrganic(ctx, "semrush.com", cfg.SemrushDatabase, 5)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d rankings", len(rankings)), nil
	})

	buzzsumo := providers.NewBuzzSumoClient(cfg.BuzzSumoAPIKey)
	testProvider(buzzsumo, func() (string, error) {
		articles, err := buzzsumo.SearchArticles(ctx, "marketing", 7, 5)
		if err != nil {
			return "", err
		}
		if len(articles) > 0 {
			return fmt.Sprintf("%d articles, top: \"%s\"", len(articles), signals.StripHTML(articles[0].Title)), nil
		}
		return "0 articles", nil
	})

	weather := providers.NewWeatherClient(cfg.OpenWeatherAPIKey)
	testProvider(weather, func() (string, error) {
		periods, err := weather.Forecast(ctx, testLat, testLon)
		if err != nil {
			return "", err
		}
		events := signals.DetectWeatherEvents(periods)
		return fmt.Sprintf("%d periods, %d events", len(periods), len(events)), nil
	})

	outscraper := providers.NewOutScraperClient(cfg.OutScraperAPIKey)
	testProvider(outscraper, func() (string, error) {
		reviews, err := outscraper.Reviews(ctx, "Phoenix Sky Harbor Airport", 5)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d reviews", len(reviews)), nil
	})

	apify := providers.NewApifyClient(cfg.ApifyToken)
	testProvider(apify, func() (string, error) {
		items, err := apify.RunActor(ctx, "apify/hello-world", map[string]any{})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d dataset items", len(items)), nil
	})

	openrouter := providers.NewOpenRouterClient(cfg.OpenRouterAPIKey, cfg.OpenRouterModel, cfg.OpenRouterReferer)
	anthropic := providers.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	for _, llm := range []interface {
		providers.Provider
		Complete(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error)
	}{openrouter, anthropic} {
		testProvider(llm, func() (string, error) {
			resp, err := llm.Complete(ctx, providers.ChatRequest{Prompt: "Reply with the word ready.", MaxTokens: 10})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("\"%s\" (%d tokens)", strings.TrimSpace(resp.Content), resp.Usage.TotalTokens), nil
		})
	}

	fmt.Println("\n✅ Provider connectivity test completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Configure missing API keys in .env file")
	fmt.Println("   • Run the engine with: go run ./cmd/engine")
}

func testProvider(provider providers.Provider, call func() (string, error)) {
	fmt.Printf("🔸 Testing %s... ", provider.GetName())

	if !provider.IsEnabled() {
		fmt.Printf("⚠️  DISABLED (missing API key)\n")
		return
	}

	summary, err := call()
	if err != nil {
		var statusErr *providers.StatusError
		if errors.As(err, &statusErr) {
			fmt.Printf("❌ HTTP %d: %v\n", statusErr.StatusCode, err)
			return
		}
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}

	fmt.Printf("✅ SUCCESS (%s)\n", summary)
}
