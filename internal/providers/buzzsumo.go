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

const buzzsumoBaseURL = "https://api.buzzsumo.com"

// BuzzSumoArticleMapping maps article search results
var BuzzSumoArticleMapping = schema.Mapping{
	Provider: "buzzsumo",
	Fields: []schema.Field{
		{Upstream: "id", Local: "id", Kind: schema.String, Required: true},
		{Upstream: "title", Local: "title", Kind: schema.String, Required: true},
		{Upstream: "url", Local: "url", Kind: schema.String},
		{Upstream: "domain_name", Local: "domain", Kind: schema.String},
		{Upstream: "author_name", Local: "author", Kind: schema.String},
		{Upstream: "published_date", Local: "publishedAt", Kind: schema.Time},
		{Upstream: "total_shares", Local: "totalShares", Kind: schema.Int},
		{Upstream: "total_facebook_shares", Local: "facebookShares", Kind: schema.Int},
		{Upstream: "twitter_shares", Local: "twitterShares", Kind: schema.Int},
		{Upstream: "pinterest_shares", Local: "pinterestShares", Kind: schema.Int},
		{Upstream: "total_reddit_engagements", Local: "redditShares", Kind: schema.Int},
		{Upstream: "evergreen_score", Local: "evergreenScore", Kind: schema.Float},
	},
}

// BuzzSumoClient searches trending content on BuzzSumo
type BuzzSumoClient struct {
	apiKey  string
	baseURL string
	client  *resty.Client
}

type buzzsumoSearchResponse struct {
	Results      []map[string]any `json:"results"`
	TotalResults int              `json:"total_results"`
}

// NewBuzzSumoClient creates a new BuzzSumo client
func NewBuzzSumoClient(apiKey string) *BuzzSumoClient {
	return &BuzzSumoClient{
		apiKey:  apiKey,
		baseURL: buzzsumoBaseURL,
		client:  newClient(),
	}
}

// WithBaseURL points the client at a different host
func (b *BuzzSumoClient) WithBaseURL(baseURL string) *BuzzSumoClient {
	b.baseURL = strings.TrimRight(baseURL, "/")
	return b
}

func (b *BuzzSumoClient) GetName() string {
	return "buzzsumo"
}

func (b *BuzzSumoClient) IsEnabled() bool {
	return b.apiKey != ""
}

// SearchArticles returns the most shared articles for a query over the last days
func (b *BuzzSumoClient) SearchArticles(ctx context.Context, query string, days, limit int) ([]models.TrendingArticle, error) {
	if !b.IsEnabled() {
		return nil, ErrDisabled
	}
	if days <= 0 {
		days = 7
	}
	if limit <= 0 {
		limit = 20
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":           query,
			"num_days":    strconv.Itoa(days),
			"num_results": strconv.Itoa(limit),
			"api_key":     b.apiKey,
		}).
		Get(b.baseURL + "/search/articles.json")

	if err := checkResponse("buzzsumo", resp, err); err != nil {
		return nil, err
	}

	var searchResp buzzsumoSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse BuzzSumo response: %w", err)
	}
	if searchResp.Results == nil {
		return nil, &schema.ValidationError{Provider: "buzzsumo", Field: "results", Reason: "is missing"}
	}

	local, err := BuzzSumoArticleMapping.ToLocalRows(searchResp.Results)
	if err != nil {
		return nil, err
	}

	articles := make([]models.TrendingArticle, 0, len(local))
	for _, row := range local {
		var article models.TrendingArticle
		if err := schema.Decode(row, &article); err != nil {
			return nil, fmt.Errorf("failed to decode BuzzSumo article: %w", err)
		}
		articles = append(articles, article)
	}

	return articles, nil
}
