package signals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/cache"
	"github.com/mirrorhq/opportunity-engine/internal/models"
)

// Weather thresholds in °F and precipitation probability
const (
	HeatThresholdF   = 90.0
	FreezeThresholdF = 32.0
	HeavyRainChance  = 0.7
)

// ForecastSource provides forecast periods for a coordinate
type ForecastSource interface {
	Forecast(ctx context.Context, lat, lon float64) ([]models.WeatherPeriod, error)
}

// WeatherService serves cached forecasts
type WeatherService struct {
	source ForecastSource
	cache  *cache.Cache[string, []models.WeatherPeriod]
}

// NewWeatherService creates a forecast service caching up to size locations for ttl
func NewWeatherService(source ForecastSource, size int, ttl time.Duration, clock cache.Clock) *WeatherService {
	return &WeatherService{
		source: source,
		cache:  cache.New[string, []models.WeatherPeriod](size, ttl, clock),
	}
}

// Forecast returns the forecast for a location. Coordinates are rounded to
// two decimals (about 1km) for caching.
func (s *WeatherService) Forecast(ctx context.Context, loc models.Location) ([]models.WeatherPeriod, error) {
	if !loc.HasCoordinates() {
		return nil, fmt.Errorf("location has no coordinates")
	}

	key := fmt.Sprintf("%.2f,%.2f", loc.Lat, loc.Lon)
	if periods, ok := s.cache.Get(key); ok {
		return periods, nil
	}

	periods, err := s.source.Forecast(ctx, loc.Lat, loc.Lon)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, periods)
	return periods, nil
}

// PurgeExpired drops stale forecasts
func (s *WeatherService) PurgeExpired() int {
	return s.cache.Purge()
}

// DetectWeatherEvents finds marketable conditions in a forecast. Each kind
// is reported once, starting at its first occurrence, with its extreme value.
func DetectWeatherEvents(periods []models.WeatherPeriod) []models.WeatherEvent {
	events := make(map[string]*models.WeatherEvent)
	var order []string

	record := func(kind string, p models.WeatherPeriod, value float64, higherIsWorse bool) {
		e, ok := events[kind]
		if !ok {
			events[kind] = &models.WeatherEvent{Kind: kind, StartsAt: p.Time, Peak: value}
			order = append(order, kind)
			return
		}
		if (higherIsWorse && value > e.Peak) || (!higherIsWorse && value < e.Peak) {
			e.Peak = value
		}
	}

	for _, p := range periods {
		condition := strings.ToLower(p.Condition)

		if p.TemperatureF >= HeatThresholdF {
			record("heat", p, p.TemperatureF, true)
		}
		if p.TemperatureF <= FreezeThresholdF {
			record("freeze", p, p.TemperatureF, false)
		}
		if condition == "thunderstorm" {
			record("storm", p, p.WindSpeedMph, true)
		}
		if condition == "rain" && p.PrecipChance >= HeavyRainChance {
			record("heavy-rain", p, p.PrecipChance, true)
		}
		if condition == "snow" {
			record("snow", p, p.PrecipChance, true)
		}
	}

	result := make([]models.WeatherEvent, 0, len(order))
	for _, kind := range order {
		e := events[kind]
		e.Summary = summarizeWeatherEvent(*e)
		result = append(result, *e)
	}
	return result
}

func summarizeWeatherEvent(e models.WeatherEvent) string {
	day := e.StartsAt.Format("Mon Jan 2")
	switch e.Kind {
	case "heat":
		return fmt.Sprintf("Heat wave from %s, peaking at %.0f°F", day, e.Peak)
	case "freeze":
		return fmt.Sprintf("Freezing temperatures from %s, down to %.0f°F", day, e.Peak)
	case "storm":
		return fmt.Sprintf("Thunderstorms expected %s with winds up to %.0f mph", day, e.Peak)
	case "heavy-rain":
		return fmt.Sprintf("Heavy rain likely %s (%.0f%% chance)", day, e.Peak*100)
	case "snow":
		return fmt.Sprintf("Snow expected %s", day)
	default:
		return fmt.Sprintf("%s expected %s", e.Kind, day)
	}
}
