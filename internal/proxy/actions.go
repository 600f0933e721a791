package proxy

import (
	"context"

	"github.com/mirrorhq/opportunity-engine/internal/providers"
	"github.com/mirrorhq/opportunity-engine/internal/signals"
)

// SemrushActions exposes organic rankings and keyword overviews
func SemrushActions(client *providers.SemrushClient) []Action {
	return []Action{
		{
			Name:     "domain_organic",
			Required: []string{"domain"},
			Call: func(ctx context.Context, p Params) (any, error) {
				limit, err := p.Int("limit", 100)
				if err != nil {
					return nil, err
				}
				rankings, err := client.DomainOrganic(ctx, p.String("domain"), p.String("database"), limit)
				if err != nil {
					return nil, err
				}
				return signals.NormalizeRankings(rankings, p.String("brandName")), nil
			},
		},
		{
			Name:     "keyword_overview",
			Required: []string{"phrase"},
			Call: func(ctx context.Context, p Params) (any, error) {
				return client.KeywordOverview(ctx, p.String("phrase"), p.String("database"))
			},
		},
	}
}

// BuzzSumoActions exposes trending article search
func BuzzSumoActions(client *providers.BuzzSumoClient) []Action {
	return []Action{
		{
			Name:     "trending_articles",
			Required: []string{"query"},
			Call: func(ctx context.Context, p Params) (any, error) {
				days, err := p.Int("days", 7)
				if err != nil {
					return nil, err
				}
				limit, err := p.Int("limit", 20)
				if err != nil {
					return nil, err
				}
				articles, err := client.SearchArticles(ctx, p.String("query"), days, limit)
				if err != nil {
					return nil, err
				}
				return signals.NormalizeArticles(articles), nil
			},
		},
	}
}

// WeatherActions exposes forecasts and current conditions
func WeatherActions(client *providers.WeatherClient) []Action {
	coordinates := func(p Params) (float64, float64, error) {
		lat, err := p.Float("lat")
		if err != nil {
			return 0, 0, err
		}
		lon, err := p.Float("lon")
		if err != nil {
			return 0, 0, err
		}
		return lat, lon, nil
	}

	return []Action{
		{
			Name:     "forecast",
			Required: []string{"lat", "lon"},
			Call: func(ctx context.Context, p Params) (any, error) {
				lat, lon, err := coordinates(p)
				if err != nil {
					return nil, err
				}
				periods, err := client.Forecast(ctx, lat, lon)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"periods": periods,
					"events":  signals.DetectWeatherEvents(periods),
				}, nil
			},
		},
		{
			Name:     "current",
			Required: []string{"lat", "lon"},
			Call: func(ctx context.Context, p Params) (any, error) {
				lat, lon, err := coordinates(p)
				if err != nil {
					return nil, err
				}
				return client.Current(ctx, lat, lon)
			},
		},
	}
}

// OutScraperActions exposes Google Maps reviews
func OutScraperActions(client *providers.OutScraperClient) []Action {
	return []Action{
		{
			Name:     "reviews",
			Required: []string{"query"},
			Call: func(ctx context.Context, p Params) (any, error) {
				limit, err := p.Int("limit", 50)
				if err != nil {
					return nil, err
				}
				reviews, err := client.Reviews(ctx, p.String("query"), limit)
				if err != nil {
					return nil, err
				}
				return signals.NormalizeReviews(reviews), nil
			},
		},
	}
}

// ApifyActions exposes synchronous actor runs
func ApifyActions(client *providers.ApifyClient) []Action {
	return []Action{
		{
			Name:     "run_actor",
			Required: []string{"actorId"},
			Call: func(ctx context.Context, p Params) (any, error) {
				input, err := p.Object("input")
				if err != nil {
					return nil, err
				}
				return client.RunActor(ctx, p.String("actorId"), input)
			},
		},
	}
}

// OpenRouterActions exposes single-turn chat completions
func OpenRouterActions(client *providers.OpenRouterClient) []Action {
	return []Action{
		{
			Name:     "chat",
			Required: []string{"prompt"},
			Call: func(ctx context.Context, p Params) (any, error) {
				temperature, err := p.OptionalFloat("temperature")
				if err != nil {
					return nil, err
				}
				maxTokens, err := p.Int("maxTokens", 0)
				if err != nil {
					return nil, err
				}
				return client.Complete(ctx, providers.ChatRequest{
					Prompt:      p.String("prompt"),
					System:      p.String("system"),
					Model:       p.String("model"),
					Temperature: temperature,
					MaxTokens:   maxTokens,
				})
			},
		},
	}
}
