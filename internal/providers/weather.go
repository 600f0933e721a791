package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/mirrorhq/opportunity-engine/internal/schema"
)

const weatherBaseURL = "https://api.openweathermap.org"

// WeatherMapping maps a flattened OpenWeatherMap forecast step
var WeatherMapping = schema.Mapping{
	Provider: "weather",
	Fields: []schema.Field{
		{Upstream: "dt", Local: "time", Kind: schema.Time, Required: true},
		{Upstream: "main.temp", Local: "temperatureF", Kind: schema.Float, Required: true},
		{Upstream: "main.feels_like", Local: "feelsLikeF", Kind: schema.Float},
		{Upstream: "main.humidity", Local: "humidity", Kind: schema.Float},
		{Upstream: "wind.speed", Local: "windSpeedMph", Kind: schema.Float},
		{Upstream: "pop", Local: "precipChance", Kind: schema.Float},
		{Upstream: "weather.main", Local: "condition", Kind: schema.String},
		{Upstream: "weather.description", Local: "description", Kind: schema.String},
	},
}

// WeatherClient reads forecasts from OpenWeatherMap
type WeatherClient struct {
	apiKey  string
	baseURL string
	client  *resty.Client
}

type weatherForecastResponse struct {
	List []map[string]any `json:"list"`
}

// NewWeatherClient creates a new weather client
func NewWeatherClient(apiKey string) *WeatherClient {
	return &WeatherClient{
		apiKey:  apiKey,
		baseURL: weatherBaseURL,
		client:  newClient(),
	}
}

// WithBaseURL points the client at a different host
func (w *WeatherClient) WithBaseURL(baseURL string) *WeatherClient {
	w.baseURL = strings.TrimRight(baseURL, "/")
	return w
}

func (w *WeatherClient) GetName() string {
	return "weather"
}

func (w *WeatherClient) IsEnabled() bool {
	return w.apiKey != ""
}

// Forecast returns the 5 day / 3 hour forecast for a coordinate
func (w *WeatherClient) Forecast(ctx context.Context, lat, lon float64) ([]models.WeatherPeriod, error) {
	body, err := w.get(ctx, "/data/2.5/forecast", lat, lon)
	if err != nil {
		return nil, err
	}

	var forecast weatherForecastResponse
	if err := json.Unmarshal(body, &forecast); err != nil {
		return nil, fmt.Errorf("failed to parse weather forecast: %w", err)
	}
	if forecast.List == nil {
		return nil, &schema.ValidationError{Provider: "weather", Field: "list", Reason: "is missing"}
	}

	periods := make([]models.WeatherPeriod, 0, len(forecast.List))
	for _, item := range forecast.List {
		period, err := decodeWeather(item)
		if err != nil {
			return nil, err
		}
		periods = append(periods, period)
	}
	return periods, nil
}

// Current returns current conditions for a coordinate
func (w *WeatherClient) Current(ctx context.Context, lat, lon float64) (*models.WeatherPeriod, error) {
	body, err := w.get(ctx, "/data/2.5/weather", lat, lon)
	if err != nil {
		return nil, err
	}

	var item map[string]any
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("failed to parse current weather: %w", err)
	}

	period, err := decodeWeather(item)
	if err != nil {
		return nil, err
	}
	return &period, nil
}

func (w *WeatherClient) get(ctx context.Context, path string, lat, lon float64) ([]byte, error) {
	if !w.IsEnabled() {
		return nil, ErrDisabled
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":   strconv.FormatFloat(lat, 'f', 4, 64),
			"lon":   strconv.FormatFloat(lon, 'f', 4, 64),
			"units": "imperial",
			"appid": w.apiKey,
		}).
		Get(w.baseURL + path)

	if err := checkResponse("weather", resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func decodeWeather(item map[string]any) (models.WeatherPeriod, error) {
	var period models.WeatherPeriod

	local, err := WeatherMapping.ToLocal(flattenWeather(item))
	if err != nil {
		return period, err
	}
	if err := schema.Decode(local, &period); err != nil {
		return period, fmt.Errorf("failed to decode weather period: %w", err)
	}
	return period, nil
}

// flattenWeather lifts nested objects into dotted keys. Only the first
// element of the weather array is kept.
func flattenWeather(item map[string]any) map[string]any {
	flat := make(map[string]any, len(item))
	for key, value := range item {
		switch v := value.(type) {
		case map[string]any:
			for nestedKey, nestedValue := range v {
				flat[key+"."+nestedKey] = nestedValue
			}
		case []any:
			if len(v) > 0 {
				if first, ok := v[0].(map[string]any); ok {
					for nestedKey, nestedValue := range first {
						flat[key+"."+nestedKey] = nestedValue
					}
				}
			}
		default:
			flat[key] = value
		}
	}
	return flat
}
