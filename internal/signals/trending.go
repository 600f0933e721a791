package signals

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/cache"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/sirupsen/logrus"
)

// ArticleSource searches engagement data for articles
type ArticleSource interface {
	SearchArticles(ctx context.Context, query string, days, limit int) ([]models.TrendingArticle, error)
}

// TrendingService serves cached, normalized trending articles
type TrendingService struct {
	source ArticleSource
	limit  int
	cache  *cache.Cache[string, []models.TrendingArticle]
}

// NewTrendingService creates a trending content service
func NewTrendingService(source ArticleSource, size int, ttl time.Duration, clock cache.Clock) *TrendingService {
	return &TrendingService{
		source: source,
		limit:  20,
		cache:  cache.New[string, []models.TrendingArticle](size, ttl, clock),
	}
}

// Articles returns trending articles for a query over the last days.
// Failures are logged and returned; nothing is cached on failure.
func (s *TrendingService) Articles(ctx context.Context, query string, days int) ([]models.TrendingArticle, error) {
	key := fmt.Sprintf("%s|%d", strings.ToLower(strings.TrimSpace(query)), days)
	if articles, ok := s.cache.Get(key); ok {
		return articles, nil
	}

	articles, err := s.source.SearchArticles(ctx, query, days, s.limit)
	if err != nil {
		logrus.Errorf("Failed to fetch trending articles for '%s': %v", query, err)
		return nil, err
	}

	articles = NormalizeArticles(articles)
	s.cache.Set(key, articles)
	return articles, nil
}

// PurgeExpired drops stale entries
func (s *TrendingService) PurgeExpired() int {
	return s.cache.Purge()
}

// NormalizeArticles cleans titles, backfills total shares from the per-network
// counts, and orders by total shares descending.
func NormalizeArticles(articles []models.TrendingArticle) []models.TrendingArticle {
	out := make([]models.TrendingArticle, 0, len(articles))
	for _, a := range articles {
		a.Title = StripHTML(a.Title)
		networkTotal := a.FacebookShares + a.TwitterShares + a.PinterestShares + a.RedditShares
		if a.TotalShares < networkTotal {
			a.TotalShares = networkTotal
		}
		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalShares > out[j].TotalShares
	})
	return out
}

// ShareVelocity is shares per hour since publication
func ShareVelocity(a models.TrendingArticle, now time.Time) float64 {
	if a.PublishedAt.IsZero() {
		return 0
	}
	hours := now.Sub(a.PublishedAt).Hours()
	if hours < 1 {
		hours = 1
	}
	return float64(a.TotalShares) / hours
}
