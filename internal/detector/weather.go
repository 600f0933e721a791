package detector

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/cache"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/mirrorhq/opportunity-engine/internal/scoring"
	"github.com/mirrorhq/opportunity-engine/internal/signals"
)

// ForecastProvider returns forecast periods for a brand location
type ForecastProvider interface {
	Forecast(ctx context.Context, loc models.Location) ([]models.WeatherPeriod, error)
}

type weatherProfile struct {
	title   string
	reach   float64
	actions []models.SuggestedAction
}

var weatherProfiles = map[string]weatherProfile{
	"heat": {
		title: "Heat wave",
		reach: 85,
		actions: []models.SuggestedAction{
			action("create-content", "Publish heat-safety and cooling tips before temperatures peak", "high", "low", 70),
			action("adjust-bids", "Raise bids on weather-driven search terms for the heat window", "high", "low", 75),
		},
	},
	"freeze": {
		title: "Hard freeze",
		reach: 80,
		actions: []models.SuggestedAction{
			action("create-content", "Share freeze-preparation guidance with local customers", "high", "low", 70),
			action("promote-offer", "Run a limited-time offer tied to the cold snap", "medium", "medium", 60),
		},
	},
	"storm": {
		title: "Thunderstorms",
		reach: 75,
		actions: []models.SuggestedAction{
			action("create-content", "Post storm-readiness content and post-storm service availability", "high", "low", 65),
		},
	},
	"heavy-rain": {
		title: "Heavy rain",
		reach: 60,
		actions: []models.SuggestedAction{
			action("create-content", "Promote rainy-day services or indoor alternatives", "medium", "low", 55),
		},
	},
	"snow": {
		title: "Snowfall",
		reach: 70,
		actions: []models.SuggestedAction{
			action("promote-offer", "Feature snow-day offers in email and social", "medium", "low", 60),
		},
	},
}

// industries whose demand follows specific weather
var weatherSensitiveIndustries = map[string][]string{
	"hvac":        {"heat", "freeze"},
	"roofing":     {"storm", "heavy-rain", "snow"},
	"plumbing":    {"freeze", "heavy-rain"},
	"landscaping": {"heat", "freeze", "heavy-rain"},
	"auto":        {"snow", "freeze", "storm"},
	"restaurant":  {"heat", "heavy-rain", "snow"},
	"retail":      {"heat", "freeze", "snow"},
	"pool":        {"heat"},
}

// WeatherDetector turns forecast events near a brand into opportunities
type WeatherDetector struct {
	forecasts ForecastProvider
	clock     cache.Clock
}

// NewWeatherDetector creates a weather detector. A nil clock uses real time.
func NewWeatherDetector(forecasts ForecastProvider, clock cache.Clock) *WeatherDetector {
	if clock == nil {
		clock = cache.RealClock
	}
	return &WeatherDetector{forecasts: forecasts, clock: clock}
}

func (d *WeatherDetector) Name() string                 { return "weather" }
func (d *WeatherDetector) Type() models.OpportunityType { return models.TypeWeatherBased }

// Detect reports one insight per forecast event kind
func (d *WeatherDetector) Detect(ctx context.Context, brand models.Brand) Result {
	if d.forecasts == nil {
		return Unavailable(d, "no forecast source configured")
	}
	if !brand.Location.HasCoordinates() {
		return Unavailable(d, "brand location has no coordinates")
	}

	periods, err := d.forecasts.Forecast(ctx, brand.Location)
	if err != nil {
		return fromError(d, err)
	}

	now := d.clock.Now()
	place := brand.Location.City
	if place == "" {
		place = "your area"
	}

	var insights []models.OpportunityInsight
	for _, event := range signals.DetectWeatherEvents(periods) {
		profile, ok := weatherProfiles[event.Kind]
		if !ok {
			continue
		}

		hoursAhead := math.Max(event.StartsAt.Sub(now).Hours(), 0)
		insights = append(insights, newInsight(brand, d.Type(), draft{
			key:         event.Kind + "|" + event.StartsAt.UTC().Format("2006-01-02"),
			title:       fmt.Sprintf("%s in %s", profile.title, place),
			description: fmt.Sprintf("%s. Weather-driven demand usually peaks right before and during the event.", event.Summary),
			source:      "openweathermap",
			sourceData: map[string]any{
				"kind":     event.Kind,
				"startsAt": event.StartsAt,
				"peak":     event.Peak,
			},
			factors: scoring.Factors{
				Reach:      profile.reach,
				Relevance:  weatherRelevance(brand.Industry, event.Kind),
				Timeliness: weatherTimeliness(hoursAhead),
				Confidence: math.Max(0.9-0.1*math.Floor(hoursAhead/24), 0.5),
			},
			expiresAt: timePtr(event.StartsAt.Add(24 * time.Hour)),
			actions:   profile.actions,
		}, now))
	}

	return OK(d, insights)
}

func weatherRelevance(industry, kind string) float64 {
	industry = strings.ToLower(industry)
	sensitive := false
	for key, kinds := range weatherSensitiveIndustries {
		if !strings.Contains(industry, key) {
			continue
		}
		sensitive = true
		for _, k := range kinds {
			if k == kind {
				return 90
			}
		}
	}
	if sensitive {
		return 60
	}
	return 40
}

func weatherTimeliness(hoursAhead float64) float64 {
	switch {
	case hoursAhead <= 24:
		return 95
	case hoursAhead <= 72:
		return 80
	default:
		return 60
	}
}
