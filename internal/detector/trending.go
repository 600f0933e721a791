package detector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/cache"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/mirrorhq/opportunity-engine/internal/scoring"
	"github.com/mirrorhq/opportunity-engine/internal/signals"
)

const (
	minTrendingShares = 100
	maxTrendingItems  = 3
	trendingWindow    = 72 * time.Hour
)

// ArticleFetcher returns trending articles for a query
type ArticleFetcher interface {
	Articles(ctx context.Context, query string, days int) ([]models.TrendingArticle, error)
}

// TrendingDetector surfaces fast-moving content in a brand's topic space
type TrendingDetector struct {
	articles ArticleFetcher
	days     int
	clock    cache.Clock
}

// NewTrendingDetector creates a trending-topic detector looking back days
func NewTrendingDetector(articles ArticleFetcher, days int, clock cache.Clock) *TrendingDetector {
	if clock == nil {
		clock = cache.RealClock
	}
	if days <= 0 {
		days = 7
	}
	return &TrendingDetector{articles: articles, days: days, clock: clock}
}

func (d *TrendingDetector) Name() string                 { return "trending" }
func (d *TrendingDetector) Type() models.OpportunityType { return models.TypeTrendingTopic }

// Detect reports the articles with the highest share velocity
func (d *TrendingDetector) Detect(ctx context.Context, brand models.Brand) Result {
	if d.articles == nil {
		return Unavailable(d, "no trending content source configured")
	}
	query := trendingQuery(brand)
	if query == "" {
		return Unavailable(d, "brand has no keywords or industry to search")
	}

	articles, err := d.articles.Articles(ctx, query, d.days)
	if err != nil {
		return fromError(d, err)
	}

	now := d.clock.Now()
	type scored struct {
		article  models.TrendingArticle
		velocity float64
	}
	var candidates []scored
	for _, a := range articles {
		if a.TotalShares < minTrendingShares {
			continue
		}
		candidates = append(candidates, scored{article: a, velocity: signals.ShareVelocity(a, now)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].velocity > candidates[j].velocity
	})
	if len(candidates) > maxTrendingItems {
		candidates = candidates[:maxTrendingItems]
	}

	insights := make([]models.OpportunityInsight, 0, len(candidates))
	for _, c := range candidates {
		a := c.article
		insights = append(insights, newInsight(brand, d.Type(), draft{
			key:         trendingKey(a),
			title:       fmt.Sprintf("Trending: %s", a.Title),
			description: fmt.Sprintf("%s has %d shares (about %.0f per hour). Joining the conversation early captures the attention while it lasts.", a.Domain, a.TotalShares, c.velocity),
			source:      "buzzsumo",
			sourceData: map[string]any{
				"url":      a.URL,
				"domain":   a.Domain,
				"shares":   a.TotalShares,
				"velocity": math.Round(c.velocity*10) / 10,
				"query":    query,
			},
			factors: scoring.Factors{
				Reach:      math.Log10(float64(a.TotalShares)) * 20,
				Relevance:  trendingRelevance(a.Title, brand.Keywords),
				Timeliness: 40 + c.velocity,
				Confidence: 0.7,
			},
			expiresAt: timePtr(now.Add(trendingWindow)),
			actions: []models.SuggestedAction{
				action("create-content", "Publish a response piece or social post referencing the story", "high", "medium", 65),
				action("share", "Share the article with the brand's perspective added", "medium", "low", 40),
			},
		}, now))
	}

	return OK(d, insights)
}

// trendingKey prefers the article URL since titles get edited while a story trends
func trendingKey(a models.TrendingArticle) string {
	if a.URL != "" {
		return a.URL
	}
	return a.Title
}

func trendingQuery(brand models.Brand) string {
	var terms []string
	for _, k := range brand.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			terms = append(terms, k)
		}
		if len(terms) == 3 {
			break
		}
	}
	if len(terms) > 0 {
		return strings.Join(terms, " OR ")
	}
	return strings.TrimSpace(brand.Industry)
}

func trendingRelevance(title string, keywords []string) float64 {
	title = strings.ToLower(title)
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(title, k) {
			return 85
		}
	}
	return 60
}
