package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/mirrorhq/opportunity-engine/internal/schema"
	"github.com/sirupsen/logrus"
)

const outscraperBaseURL = "https://api.app.outscraper.com"

// OutScraperReviewMapping maps Google Maps review rows
var OutScraperReviewMapping = schema.Mapping{
	Provider: "outscraper",
	Fields: []schema.Field{
		{Upstream: "review_id", Local: "id", Kind: schema.String, Required: true},
		{Upstream: "author_title", Local: "author", Kind: schema.String},
		{Upstream: "review_text", Local: "text", Kind: schema.String},
		{Upstream: "review_rating", Local: "rating", Kind: schema.Float},
		{Upstream: "review_timestamp", Local: "publishedAt", Kind: schema.Time},
		{Upstream: "owner_answer", Local: "ownerAnswer", Kind: schema.String},
	},
}

// OutScraperClient fetches Google Maps reviews through OutScraper
type OutScraperClient struct {
	apiKey       string
	baseURL      string
	client       *resty.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
}

type outscraperResponse struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	ResultsLocation string `json:"results_location"`
	Data            []struct {
		Name        string           `json:"name"`
		Rating      float64          `json:"rating"`
		Reviews     int              `json:"reviews"`
		ReviewsData []map[string]any `json:"reviews_data"`
	} `json:"data"`
}

// NewOutScraperClient creates a new OutScraper client
func NewOutScraperClient(apiKey string) *OutScraperClient {
	return &OutScraperClient{
		apiKey:       apiKey,
		baseURL:      outscraperBaseURL,
		client:       newClient(),
		pollInterval: 3 * time.Second,
		pollTimeout:  2 * time.Minute,
	}
}

// WithBaseURL points the client at a different host
func (o *OutScraperClient) WithBaseURL(baseURL string) *OutScraperClient {
	o.baseURL = strings.TrimRight(baseURL, "/")
	return o
}

// WithPolling overrides the result polling cadence and ceiling
func (o *OutScraperClient) WithPolling(interval, timeout time.Duration) *OutScraperClient {
	o.pollInterval = interval
	o.pollTimeout = timeout
	return o
}

func (o *OutScraperClient) GetName() string {
	return "outscraper"
}

func (o *OutScraperClient) IsEnabled() bool {
	return o.apiKey != ""
}

// Reviews returns the newest reviews for a Google Maps place query
func (o *OutScraperClient) Reviews(ctx context.Context, query string, limit int) ([]models.Review, error) {
	if !o.IsEnabled() {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}

	resp, err := o.client.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", o.apiKey).
		SetQueryParams(map[string]string{
			"query":        query,
			"reviewsLimit": strconv.Itoa(limit),
			"sort":         "newest",
			"async":        "true",
		}).
		Get(o.baseURL + "/maps/reviews-v3")

	if err := checkResponse("outscraper", resp, err); err != nil {
		return nil, err
	}

	var result outscraperResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse OutScraper response: %w", err)
	}

	if !strings.EqualFold(result.Status, "Success") {
		if result.ResultsLocation == "" {
			return nil, &schema.ValidationError{Provider: "outscraper", Field: "results_location", Reason: "is missing"}
		}
		polled, err := o.poll(ctx, result.ResultsLocation)
		if err != nil {
			return nil, err
		}
		result = *polled
	}

	var reviews []models.Review
	for _, place := range result.Data {
		local, err := OutScraperReviewMapping.ToLocalRows(place.ReviewsData)
		if err != nil {
			return nil, err
		}
		for _, row := range local {
			var review models.Review
			if err := schema.Decode(row, &review); err != nil {
				return nil, fmt.Errorf("failed to decode OutScraper review: %w", err)
			}
			reviews = append(reviews, review)
		}
	}

	return reviews, nil
}

// poll waits for an async request to finish, up to the configured ceiling
func (o *OutScraperClient) poll(ctx context.Context, location string) (*outscraperResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, o.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("outscraper results not ready after %v: %w", o.pollTimeout, ctx.Err())
		case <-ticker.C:
		}

		resp, err := o.client.R().
			SetContext(ctx).
			SetHeader("X-API-KEY", o.apiKey).
			Get(location)

		if err := checkResponse("outscraper", resp, err); err != nil {
			return nil, err
		}

		var result outscraperResponse
		if err := json.Unmarshal(resp.Body(), &result); err != nil {
			return nil, fmt.Errorf("failed to parse OutScraper result: %w", err)
		}

		switch strings.ToLower(result.Status) {
		case "success":
			return &result, nil
		case "pending", "in progress", "":
			logrus.Debugf("OutScraper request still pending (attempt %d)", attempt)
		default:
			return nil, fmt.Errorf("outscraper request ended with status %q", result.Status)
		}
	}
}
